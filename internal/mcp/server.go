// Package mcp exposes dataset chunking to MCP clients over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/priscilla100/goose-llm/internal/anomaly"
	"github.com/priscilla100/goose-llm/internal/chunker"
	"github.com/priscilla100/goose-llm/internal/llm"
	"github.com/priscilla100/goose-llm/internal/logging"
	"github.com/priscilla100/goose-llm/internal/tokenizer"
)

// Tool names.
const (
	ToolChunkDataset   = "chunk_dataset"
	ToolCountTokens    = "count_tokens"
	ToolAnalysisPrompt = "analysis_prompt"
)

// Defaults apply when a tool call leaves maxTokens or limit out. A nil Limit
// means no truncation.
type Defaults struct {
	MaxTokens int
	Limit     *int
}

// Server is an MCP server with the dataset tools registered.
type Server struct {
	server   *sdk.Server
	counter  *tokenizer.Counter
	logger   *logging.Logger
	defaults Defaults
}

// NewServer registers the tools. counter may be nil, in which case token
// counts are reported as unavailable.
func NewServer(version string, counter *tokenizer.Counter, logger *logging.Logger, defaults Defaults) *Server {
	if defaults.MaxTokens == 0 {
		defaults.MaxTokens = chunker.DefaultMaxTokens
	}
	s := &Server{
		server:   sdk.NewServer(&sdk.Implementation{Name: "goose-llm", Version: version}, nil),
		counter:  counter,
		logger:   logger,
		defaults: defaults,
	}

	datasetProps := map[string]any{
		"path":      map[string]any{"type": "string", "description": "Path to the GOOSE CSV file."},
		"maxTokens": map[string]any{"type": "integer", "description": "Chunk size limit before the 250 character margin."},
		"limit":     map[string]any{"type": "integer", "description": "Only consider the first N lines."},
	}

	s.server.AddTool(&sdk.Tool{
		Name:        ToolChunkDataset,
		Description: "Split a GOOSE CSV dataset into prompt-sized chunks and report their sizes.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": datasetProps,
			"required":   []any{"path"},
		},
	}, s.handleChunkDataset)

	s.server.AddTool(&sdk.Tool{
		Name:        ToolAnalysisPrompt,
		Description: "Build the anomaly analysis conversation for a GOOSE CSV dataset.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":       datasetProps["path"],
				"maxTokens":  datasetProps["maxTokens"],
				"limit":      datasetProps["limit"],
				"heuristics": map[string]any{"type": "string", "description": "Optional YAML heuristics file."},
			},
			"required": []any{"path"},
		},
	}, s.handleAnalysisPrompt)

	s.server.AddTool(&sdk.Tool{
		Name:        ToolCountTokens,
		Description: "Count the BPE tokens of a text.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []any{"text"},
		},
	}, s.handleCountTokens)

	return s
}

// Run serves over stdin/stdout until the client disconnects or ctx ends.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Infof("MCP server listening on stdio")
	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// Connect serves a single session over transport.
func (s *Server) Connect(ctx context.Context, transport sdk.Transport) (*sdk.ServerSession, error) {
	return s.server.Connect(ctx, transport, nil)
}

type datasetArgs struct {
	Path       string `json:"path"`
	MaxTokens  int    `json:"maxTokens"`
	Limit      *int   `json:"limit"`
	Heuristics string `json:"heuristics"`
}

// ChunkInfo summarises one chunk.
type ChunkInfo struct {
	Index      int `json:"index"`
	Lines      int `json:"lines"`
	Characters int `json:"characters"`
	Tokens     int `json:"tokens"`
}

// ChunkReport is the chunk_dataset result.
type ChunkReport struct {
	Chunks []ChunkInfo `json:"chunks"`
	Total  int         `json:"total"`
}

func (s *Server) chunk(raw json.RawMessage) ([]string, datasetArgs, error) {
	var args datasetArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, args, fmt.Errorf("decode arguments: %w", err)
		}
	}
	if strings.TrimSpace(args.Path) == "" {
		return nil, args, fmt.Errorf("path is required")
	}
	maxTokens := s.defaults.MaxTokens
	if args.MaxTokens != 0 {
		maxTokens = args.MaxTokens
	}
	var opts []chunker.Option
	if args.Limit != nil {
		opts = append(opts, chunker.WithLimit(*args.Limit))
	} else if s.defaults.Limit != nil {
		opts = append(opts, chunker.WithLimit(*s.defaults.Limit))
	}

	chunks, err := chunker.ChunkFile(args.Path, maxTokens, opts...)
	if err != nil {
		return nil, args, err
	}
	s.logger.Debugf("MCP chunked %s into %d chunks", args.Path, len(chunks))
	return chunks, args, nil
}

// Summarize describes every chunk. Token counts are zero when counter is nil.
func Summarize(chunks []string, counter *tokenizer.Counter) ChunkReport {
	report := ChunkReport{Chunks: make([]ChunkInfo, 0, len(chunks)), Total: len(chunks)}
	for i, chunk := range chunks {
		lines := strings.Count(chunk, "\n")
		if !strings.HasSuffix(chunk, "\n") {
			lines++
		}
		report.Chunks = append(report.Chunks, ChunkInfo{
			Index:      i,
			Lines:      lines,
			Characters: len([]rune(chunk)),
			Tokens:     counter.Count(chunk),
		})
	}
	return report
}

func (s *Server) handleChunkDataset(_ context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
	chunks, _, err := s.chunk(req.Params.Arguments)
	if err != nil {
		return toolError(err), nil
	}

	report := Summarize(chunks, s.counter)
	return jsonResult(report)
}

func (s *Server) handleAnalysisPrompt(_ context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
	chunks, args, err := s.chunk(req.Params.Arguments)
	if err != nil {
		return toolError(err), nil
	}
	heuristics, err := anomaly.LoadHeuristics(args.Heuristics)
	if err != nil {
		return toolError(err), nil
	}
	log := anomaly.BuildAnalysis(chunks, heuristics)
	return jsonResult(struct {
		Messages []llm.Message `json:"messages"`
	}{Messages: log.Messages()})
}

func (s *Server) handleCountTokens(_ context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
	var args struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return toolError(fmt.Errorf("decode arguments: %w", err)), nil
	}
	if s.counter == nil {
		return toolError(fmt.Errorf("tokenizer unavailable")), nil
	}
	return textResult(strconv.Itoa(s.counter.Count(args.Text))), nil
}

func textResult(text string) *sdk.CallToolResult {
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: text}},
	}
}

func jsonResult(v any) (*sdk.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return textResult(string(data)), nil
}

func toolError(err error) *sdk.CallToolResult {
	res := textResult(err.Error())
	res.IsError = true
	return res
}
