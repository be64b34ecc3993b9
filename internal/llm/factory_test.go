package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/priscilla100/goose-llm/internal/apperr"
	"github.com/priscilla100/goose-llm/internal/config"
)

func analysisRequest(model string) ChatRequest {
	return ChatRequest{
		Model: model,
		Messages: []Message{
			{Role: RoleUser, Content: "Chunk 1/1:\n1,2,3\n"},
			{Role: RoleSystem, Content: "You are an anomaly analyst."},
			{Role: RoleUser, Content: "Classify each record."},
		},
	}
}

func collect(t *testing.T, ch <-chan StreamChunk) []StreamChunk {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var chunks []StreamChunk
	for {
		select {
		case <-ctx.Done():
			t.Fatalf("context done before stream closed: %v", ctx.Err())
		case chunk, ok := <-ch:
			if !ok {
				return chunks
			}
			chunks = append(chunks, chunk)
		}
	}
}

func joinTokens(chunks []StreamChunk) string {
	var b strings.Builder
	for _, c := range chunks {
		if c.Type == ChunkToken {
			b.WriteString(c.Content)
		}
	}
	return b.String()
}

func TestFactoryCreateRejectsUnknownProvider(t *testing.T) {
	t.Parallel()

	_, err := NewFactory(nil).Create(config.Model{Name: "x", Provider: "bard"})
	if !apperr.Is(err, apperr.InvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestFactoryCreateRequiresAPIKey(t *testing.T) {
	t.Parallel()

	for _, provider := range []string{"openai", "anthropic"} {
		_, err := NewFactory(nil).Create(config.Model{Name: "m", Provider: provider})
		if !apperr.Is(err, apperr.InvalidArgument) {
			t.Fatalf("%s: expected InvalidArgument, got %v", provider, err)
		}
	}
}

func TestBuildOllamaRequestKeepsMessageOrder(t *testing.T) {
	t.Parallel()

	data, err := buildOllamaRequest(analysisRequest("llama3.2"))
	if err != nil {
		t.Fatalf("buildOllamaRequest returned error: %v", err)
	}

	var payload ollamaRequestPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if !payload.Stream {
		t.Fatalf("expected stream to be enabled")
	}
	roles := make([]string, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		roles = append(roles, m.Role)
	}
	if got := strings.Join(roles, ","); got != "user,system,user" {
		t.Fatalf("unexpected role order %q", got)
	}
}

func TestOllamaProviderStream(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Record 1: "},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Normal"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer server.Close()

	provider, err := NewFactory(server.Client()).Create(config.Model{Name: "llama3.2", Provider: "ollama", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	stream, err := provider.Stream(context.Background(), analysisRequest("llama3.2"))
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	chunks := collect(t, stream)
	if chunks[0].Type != ChunkThinking {
		t.Fatalf("expected thinking chunk first, got %v", chunks[0].Type)
	}
	if last := chunks[len(chunks)-1]; last.Type != ChunkDone {
		t.Fatalf("expected done chunk last, got %v", last.Type)
	}
	if got := joinTokens(chunks); got != "Record 1: Normal" {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestOllamaProviderStatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	provider, err := NewFactory(server.Client()).Create(config.Model{Name: "missing", Provider: "ollama", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	_, err = provider.Stream(context.Background(), analysisRequest("missing"))
	if !apperr.Is(err, apperr.RemoteServiceFailure) {
		t.Fatalf("expected RemoteServiceFailure, got %v", err)
	}
	if !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("expected body in error, got %v", err)
	}
}

func TestOllamaProviderInlineError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"error":"out of memory"}`)
	}))
	defer server.Close()

	provider, _ := NewFactory(server.Client()).Create(config.Model{Name: "m", Provider: "ollama", BaseURL: server.URL})
	_, err := Complete(context.Background(), provider, analysisRequest("m"), nil)
	if !apperr.Is(err, apperr.RemoteServiceFailure) {
		t.Fatalf("expected RemoteServiceFailure, got %v", err)
	}
}

func TestOpenAIProviderStream(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("unexpected authorization header %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{"Record 1: ", "DoS"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", piece)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	provider, err := NewFactory(server.Client()).Create(config.Model{
		Name:     "gpt-4o-mini",
		Provider: "openai",
		APIKey:   "sk-test",
		BaseURL:  server.URL + "/v1",
	})
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}

	var seen []string
	reply, err := Complete(context.Background(), provider, analysisRequest("gpt-4o-mini"), func(s string) {
		seen = append(seen, s)
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply != "Record 1: DoS" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if len(seen) != 2 {
		t.Fatalf("expected two streamed tokens, got %v", seen)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Fatalf("unexpected model in request: %v", gotBody["model"])
	}
	if msgs, _ := gotBody["messages"].([]any); len(msgs) != 3 {
		t.Fatalf("expected three messages in request, got %v", gotBody["messages"])
	}
}

func TestOpenAIProviderServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	provider, _ := NewFactory(server.Client()).Create(config.Model{
		Name: "gpt-4o-mini", Provider: "openai", APIKey: "sk-bad", BaseURL: server.URL,
	})
	_, err := Complete(context.Background(), provider, analysisRequest("gpt-4o-mini"), nil)
	if !apperr.Is(err, apperr.RemoteServiceFailure) {
		t.Fatalf("expected RemoteServiceFailure, got %v", err)
	}
}

func TestAnthropicProviderLiftsSystemPrompt(t *testing.T) {
	t.Parallel()

	var payload struct {
		Model    string `json:"model"`
		System   any    `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if key := r.Header.Get("x-api-key"); key != "ak-test" {
			t.Errorf("unexpected api key header %q", key)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",`+
			`"content":[{"type":"text","text":"Record 1: MS"}],"stop_reason":"end_turn",`+
			`"usage":{"input_tokens":10,"output_tokens":4}}`)
	}))
	defer server.Close()

	provider, err := NewFactory(server.Client()).Create(config.Model{
		Name:     "claude-3-5-haiku-latest",
		Provider: "anthropic",
		APIKey:   "ak-test",
		BaseURL:  server.URL + "/v1",
	})
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}

	reply, err := Complete(context.Background(), provider, analysisRequest("claude-3-5-haiku-latest"), nil)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply != "Record 1: MS" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if len(payload.Messages) != 2 {
		t.Fatalf("expected system message to be lifted out, got %d messages", len(payload.Messages))
	}
	for _, m := range payload.Messages {
		if m.Role == RoleSystem {
			t.Fatalf("system role must not be sent as a message")
		}
	}
	if !strings.Contains(fmt.Sprint(payload.System), "anomaly analyst") {
		t.Fatalf("expected system prompt in request, got %v", payload.System)
	}
}

type failingProvider struct {
	err error
}

func (f failingProvider) Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 2)
	ch <- StreamChunk{Type: ChunkToken, Content: "partial"}
	ch <- StreamChunk{Type: ChunkError, Err: f.err}
	close(ch)
	return ch, nil
}

func TestCompleteWrapsPlainStreamErrors(t *testing.T) {
	t.Parallel()

	_, err := Complete(context.Background(), failingProvider{err: errors.New("connection reset")}, ChatRequest{}, nil)
	if !apperr.Is(err, apperr.RemoteServiceFailure) {
		t.Fatalf("expected RemoteServiceFailure, got %v", err)
	}
}

func TestCompleteReturnsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Complete(ctx, failingProvider{err: context.Canceled}, ChatRequest{}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
