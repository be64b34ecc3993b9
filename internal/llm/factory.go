package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	openai "github.com/sashabaranov/go-openai"

	"github.com/priscilla100/goose-llm/internal/apperr"
	"github.com/priscilla100/goose-llm/internal/config"
)

// HTTPClient abstracts http.Client for testability.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// anthropicMaxTokens caps the length of an Anthropic reply; the API requires a value.
const anthropicMaxTokens = 4096

// Factory wires config models to providers.
type Factory struct {
	client HTTPClient
}

// NewFactory builds a Factory with optional custom HTTP client.
func NewFactory(client HTTPClient) *Factory {
	if client == nil {
		client = &http.Client{Timeout: 0}
	}
	return &Factory{client: client}
}

// Create instantiates a provider for a model.
func (f *Factory) Create(model config.Model) (ChatProvider, error) {
	switch strings.ToLower(model.Provider) {
	case "openai":
		if model.APIKey == "" {
			return nil, apperr.Invalid("openai provider requires apiKey")
		}
		cfg := openai.DefaultConfig(model.APIKey)
		if model.BaseURL != "" {
			cfg.BaseURL = strings.TrimRight(model.BaseURL, "/")
		}
		cfg.HTTPClient = f.client
		return &openAIProvider{client: openai.NewClientWithConfig(cfg)}, nil
	case "anthropic":
		if model.APIKey == "" {
			return nil, apperr.Invalid("anthropic provider requires apiKey")
		}
		opts := make([]anthropic.ClientOption, 0, 2)
		if model.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(strings.TrimRight(model.BaseURL, "/")))
		}
		if hc, ok := f.client.(*http.Client); ok {
			opts = append(opts, anthropic.WithHTTPClient(hc))
		}
		return &anthropicProvider{client: anthropic.NewClient(model.APIKey, opts...)}, nil
	case "ollama":
		base := model.BaseURL
		if base == "" {
			base = "http://localhost:11434"
		}
		return &ollamaProvider{
			client:  f.client,
			baseURL: strings.TrimRight(base, "/"),
		}, nil
	default:
		return nil, apperr.Invalid("unknown provider %q", model.Provider)
	}
}

var _ ChatProvider = (*openAIProvider)(nil)
var _ ChatProvider = (*anthropicProvider)(nil)
var _ ChatProvider = (*ollamaProvider)(nil)

func sender(ctx context.Context, out chan<- StreamChunk) func(StreamChunk) bool {
	return func(chunk StreamChunk) bool {
		select {
		case <-ctx.Done():
			return false
		case out <- chunk:
			return true
		}
	}
}

func remoteErr(provider string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.New(apperr.RemoteServiceFailure, provider+" chat completion", err)
}

type openAIProvider struct {
	client *openai.Client
}

func (p *openAIProvider) Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, remoteErr("openai", err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer stream.Close()

		send := sender(ctx, out)
		if !send(StreamChunk{Type: ChunkThinking}) {
			return
		}
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				send(StreamChunk{Type: ChunkDone})
				return
			}
			if err != nil {
				send(StreamChunk{Type: ChunkError, Err: remoteErr("openai", err)})
				return
			}
			for _, choice := range resp.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !send(StreamChunk{Type: ChunkToken, Content: choice.Delta.Content}) {
					return
				}
			}
		}
	}()
	return out, nil
}

type anthropicProvider struct {
	client *anthropic.Client
}

// Stream sends one Messages API request and replays the reply as a stream.
// System messages are lifted into the request's system prompt.
func (p *anthropicProvider) Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	var (
		system   []string
		messages = make([]anthropic.Message, 0, len(req.Messages))
	)
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantTextMessage(msg.Content))
		default:
			messages = append(messages, anthropic.NewUserTextMessage(msg.Content))
		}
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)

		send := sender(ctx, out)
		if !send(StreamChunk{Type: ChunkThinking}) {
			return
		}
		resp, err := p.client.CreateMessages(ctx, anthropic.MessagesRequest{
			Model:     anthropic.Model(req.Model),
			MaxTokens: anthropicMaxTokens,
			System:    strings.Join(system, "\n\n"),
			Messages:  messages,
		})
		if err != nil {
			send(StreamChunk{Type: ChunkError, Err: remoteErr("anthropic", err)})
			return
		}
		if text := resp.GetFirstContentText(); text != "" {
			if !send(StreamChunk{Type: ChunkToken, Content: text}) {
				return
			}
		}
		send(StreamChunk{Type: ChunkDone})
	}()
	return out, nil
}

type ollamaProvider struct {
	client  HTTPClient
	baseURL string
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequestPayload struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Messages []ollamaMessage `json:"messages"`
}

type ollamaStreamChunk struct {
	Done    bool `json:"done"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
}

func (p *ollamaProvider) Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	payload, err := buildOllamaRequest(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, remoteErr("ollama", err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, remoteErr("ollama", fmt.Errorf("response %d: %s", resp.StatusCode, string(body)))
	}

	out := make(chan StreamChunk)
	go func() {
		defer resp.Body.Close()
		defer close(out)

		send := sender(ctx, out)
		if !send(StreamChunk{Type: ChunkThinking}) {
			return
		}

		decoder := json.NewDecoder(resp.Body)
		for {
			var chunk ollamaStreamChunk
			if err := decoder.Decode(&chunk); err != nil {
				if errors.Is(err, io.EOF) {
					send(StreamChunk{Type: ChunkDone})
					return
				}
				send(StreamChunk{Type: ChunkError, Err: remoteErr("ollama", err)})
				return
			}

			if chunk.Error != "" {
				send(StreamChunk{Type: ChunkError, Err: remoteErr("ollama", errors.New(chunk.Error))})
				return
			}

			if chunk.Message.Content != "" {
				if !send(StreamChunk{Type: ChunkToken, Content: chunk.Message.Content}) {
					return
				}
			}

			if chunk.Done {
				send(StreamChunk{Type: ChunkDone})
				return
			}
		}
	}()

	return out, nil
}

func buildOllamaRequest(req ChatRequest) ([]byte, error) {
	messages := make([]ollamaMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, ollamaMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return json.Marshal(ollamaRequestPayload{
		Model:    req.Model,
		Stream:   true,
		Messages: messages,
	})
}
