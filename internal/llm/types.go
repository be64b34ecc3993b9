package llm

import (
	"context"
)

// Role tags the author of a message.
type Role = string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single conversation message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes a LLM chat completion request.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// ChunkType is the type of a streaming response chunk.
type ChunkType int

const (
	// ChunkThinking indicates the provider accepted the request and is preparing a response.
	ChunkThinking ChunkType = iota + 1
	// ChunkToken carries a new piece of response text.
	ChunkToken
	// ChunkDone signals the response has finished streaming.
	ChunkDone
	// ChunkError signals an error mid stream.
	ChunkError
)

// StreamChunk represents a single streamed chunk.
type StreamChunk struct {
	Type    ChunkType
	Content string
	Err     error
}

// ChatProvider defines streaming chat interactions.
type ChatProvider interface {
	Stream(context.Context, ChatRequest) (<-chan StreamChunk, error)
}
