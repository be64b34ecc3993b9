package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/priscilla100/goose-llm/internal/apperr"
	"github.com/priscilla100/goose-llm/internal/conversation"
	"github.com/priscilla100/goose-llm/internal/llm"
)

type stubProvider struct {
	mu        sync.Mutex
	responses []string
	err       error
	requests  []llm.ChatRequest
}

func (s *stubProvider) Stream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	ch := make(chan llm.StreamChunk, 3)
	ch <- llm.StreamChunk{Type: llm.ChunkThinking}
	if s.err != nil {
		ch <- llm.StreamChunk{Type: llm.ChunkError, Err: s.err}
		close(ch)
		return ch, nil
	}
	reply := ""
	if len(s.responses) > 0 {
		reply = s.responses[0]
		s.responses = s.responses[1:]
	}
	ch <- llm.StreamChunk{Type: llm.ChunkToken, Content: reply}
	ch <- llm.StreamChunk{Type: llm.ChunkDone}
	close(ch)
	return ch, nil
}

func analysis() conversation.Log {
	return conversation.New(
		llm.Message{Role: llm.RoleUser, Content: "chunk 1"},
		llm.Message{Role: llm.RoleSystem, Content: "detect anomalies"},
		llm.Message{Role: llm.RoleUser, Content: "instructions"},
	)
}

func TestStartAppendsAssistantReply(t *testing.T) {
	provider := &stubProvider{responses: []string{"Record 1: Normal"}}
	s := New(provider, "gpt-4o-mini", nil)

	reply, err := s.Start(context.Background(), analysis())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if reply != "Record 1: Normal" {
		t.Fatalf("unexpected reply %q", reply)
	}

	log := s.Log()
	if log.Len() != 4 {
		t.Fatalf("expected 4 messages, got %d", log.Len())
	}
	last, _ := log.Last()
	if last.Role != llm.RoleAssistant || last.Content != reply {
		t.Fatalf("unexpected last message %+v", last)
	}
	if got := provider.requests[0].Model; got != "gpt-4o-mini" {
		t.Fatalf("unexpected model %q", got)
	}
	if got := len(provider.requests[0].Messages); got != 3 {
		t.Fatalf("expected the analysis prompt to be sent, got %d messages", got)
	}
}

func TestAskSendsFullHistory(t *testing.T) {
	provider := &stubProvider{responses: []string{"first", "second"}}
	s := New(provider, "m", nil)
	if _, err := s.Start(context.Background(), analysis()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	reply, err := s.Ask(context.Background(), "Which lines are DoS?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if reply != "second" {
		t.Fatalf("unexpected reply %q", reply)
	}

	sent := provider.requests[1].Messages
	if len(sent) != 5 {
		t.Fatalf("expected 5 messages sent, got %d", len(sent))
	}
	if sent[4].Role != llm.RoleUser || sent[4].Content != "Which lines are DoS?" {
		t.Fatalf("unexpected final sent message %+v", sent[4])
	}
	if s.Log().Len() != 6 {
		t.Fatalf("expected 6 messages in log, got %d", s.Log().Len())
	}
}

func TestAskRejectsBlankQuestion(t *testing.T) {
	s := New(&stubProvider{}, "m", nil)
	_, err := s.Ask(context.Background(), "   ")
	if !apperr.Is(err, apperr.InvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestFailedAskLeavesLogUnchanged(t *testing.T) {
	provider := &stubProvider{responses: []string{"ok"}}
	s := New(provider, "m", nil)
	if _, err := s.Start(context.Background(), analysis()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	before := s.Log().Len()

	provider.err = errors.New("status 503")
	_, err := s.Ask(context.Background(), "again?")
	if !apperr.Is(err, apperr.RemoteServiceFailure) {
		t.Fatalf("expected RemoteServiceFailure, got %v", err)
	}
	if got := s.Log().Len(); got != before {
		t.Fatalf("expected log length %d after failure, got %d", before, got)
	}
}

func TestFailedStartKeepsEmptyLog(t *testing.T) {
	s := New(&stubProvider{err: errors.New("unreachable")}, "m", nil)
	if _, err := s.Start(context.Background(), analysis()); err == nil {
		t.Fatalf("expected error")
	}
	if s.Log().Len() != 0 {
		t.Fatalf("expected empty log, got %d", s.Log().Len())
	}
}

func TestForkIsIndependent(t *testing.T) {
	provider := &stubProvider{responses: []string{"base", "fork reply"}}
	base := New(provider, "m", nil)
	if _, err := base.Start(context.Background(), analysis()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	fork := base.Fork()
	if _, err := fork.Ask(context.Background(), "only in fork"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if base.Log().Len() != 4 {
		t.Fatalf("base log changed: %d", base.Log().Len())
	}
	if fork.Log().Len() != 6 {
		t.Fatalf("fork log should have 6 messages, got %d", fork.Log().Len())
	}
	if fork.Model() != "m" {
		t.Fatalf("fork lost model: %q", fork.Model())
	}
}

func TestForkWithSwitchesModel(t *testing.T) {
	first := &stubProvider{responses: []string{"analysis"}}
	second := &stubProvider{responses: []string{"follow-up"}}
	s := New(first, "model-a", nil)
	if _, err := s.Start(context.Background(), analysis()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	switched := s.ForkWith(second, "model-b")
	if _, err := switched.Ask(context.Background(), "continue"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(first.requests) != 1 {
		t.Fatalf("first provider should not receive the follow-up, got %d requests", len(first.requests))
	}
	if got := second.requests[0]; got.Model != "model-b" || len(got.Messages) != 5 {
		t.Fatalf("unexpected request to second provider: model=%q messages=%d", got.Model, len(got.Messages))
	}
}
