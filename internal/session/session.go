// Package session runs the anomaly analysis conversation against a chat model.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/priscilla100/goose-llm/internal/apperr"
	"github.com/priscilla100/goose-llm/internal/conversation"
	"github.com/priscilla100/goose-llm/internal/llm"
	"github.com/priscilla100/goose-llm/internal/logging"
	"github.com/priscilla100/goose-llm/internal/tokenizer"
)

// Session owns a conversation log and the provider that answers it.
// Calls on one Session are serialised.
type Session struct {
	provider llm.ChatProvider
	model    string
	logger   *logging.Logger
	counter  *tokenizer.Counter

	mu  sync.Mutex
	log conversation.Log
}

// Option configures a Session.
type Option func(*Session)

// WithCounter makes the session log the token size of every prompt it sends.
func WithCounter(c *tokenizer.Counter) Option {
	return func(s *Session) {
		s.counter = c
	}
}

// New creates a session with an empty log.
func New(provider llm.ChatProvider, model string, logger *logging.Logger, opts ...Option) *Session {
	s := &Session{provider: provider, model: model, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Model returns the name of the model the session talks to.
func (s *Session) Model() string {
	return s.model
}

// Start replaces the log with the prepared analysis, sends it and records the
// reply. On failure the session log is left as it was.
func (s *Session) Start(ctx context.Context, analysis conversation.Log) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := analysis.Clone()
	reply, err := s.complete(ctx, pending)
	if err != nil {
		return "", err
	}
	pending.Append(llm.RoleAssistant, reply)
	s.log = pending
	return reply, nil
}

// Ask sends a follow-up question with the whole history and records both turns.
// A failed call keeps neither the question nor a reply.
func (s *Session) Ask(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", apperr.Invalid("question must not be blank")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.log.Clone()
	pending.Append(llm.RoleUser, question)
	reply, err := s.complete(ctx, pending)
	if err != nil {
		return "", err
	}
	pending.Append(llm.RoleAssistant, reply)
	s.log = pending
	return reply, nil
}

// Log returns a copy of the conversation so far.
func (s *Session) Log() conversation.Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.Clone()
}

// Fork returns an independent session with the same provider and a copy of the log.
func (s *Session) Fork() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Session{
		provider: s.provider,
		model:    s.model,
		logger:   s.logger,
		counter:  s.counter,
		log:      s.log.Clone(),
	}
}

// ForkWith returns a copy of the session that continues the same conversation
// with a different provider and model.
func (s *Session) ForkWith(provider llm.ChatProvider, model string) *Session {
	fork := s.Fork()
	fork.provider = provider
	fork.model = model
	return fork
}

func (s *Session) complete(ctx context.Context, log conversation.Log) (string, error) {
	messages := log.Messages()
	if s.counter != nil {
		total := 0
		for _, m := range messages {
			total += s.counter.Count(m.Content)
		}
		s.logger.Debugf("Sending %d messages (%d tokens) to %s", len(messages), total, s.model)
	} else {
		s.logger.Debugf("Sending %d messages to %s", len(messages), s.model)
	}

	reply, err := llm.Complete(ctx, s.provider, llm.ChatRequest{
		Model:    s.model,
		Messages: messages,
	}, nil)
	if err != nil {
		s.logger.Errorf("Completion with %s failed: %v", s.model, err)
		return "", err
	}
	s.logger.Infof("Received %d characters from %s", len(reply), s.model)
	return reply, nil
}
