// Package chunker packs dataset lines into chunks that fit a model context window.
package chunker

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/priscilla100/goose-llm/internal/apperr"
)

const (
	// SafetyMargin is reserved out of every chunk budget for the prompt text
	// wrapped around the chunk.
	SafetyMargin = 250
	// DefaultMaxTokens is the budget used when none is configured.
	DefaultMaxTokens = 4096
	// DefaultLimit is the number of leading dataset lines analysed by default.
	DefaultLimit = 600
)

type options struct {
	limit    int
	hasLimit bool
}

// Option adjusts chunking.
type Option func(*options)

// WithLimit considers only the first n lines.
func WithLimit(n int) Option {
	return func(o *options) {
		o.limit = n
		o.hasLimit = true
	}
}

// Chunk greedily packs whole lines into chunks of at most maxTokens-SafetyMargin
// characters. Lines keep their terminators and are never split, so a line longer
// than the budget becomes a chunk of its own.
func Chunk(lines []string, maxTokens int, opts ...Option) ([]string, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if maxTokens <= SafetyMargin {
		return nil, apperr.Invalid("maxTokens must exceed %d, got %d", SafetyMargin, maxTokens)
	}
	if o.hasLimit {
		if o.limit < 0 {
			return nil, apperr.Invalid("limit must not be negative, got %d", o.limit)
		}
		if o.limit < len(lines) {
			lines = lines[:o.limit]
		}
	}
	if len(lines) == 0 {
		return nil, nil
	}

	budget := maxTokens - SafetyMargin
	var (
		chunks []string
		acc    strings.Builder
		size   int
	)
	for _, line := range lines {
		n := utf8.RuneCountInString(line)
		if n == 0 {
			continue
		}
		if size+n > budget && size > 0 {
			chunks = append(chunks, acc.String())
			acc.Reset()
			size = 0
		}
		acc.WriteString(line)
		size += n
	}
	if size > 0 {
		chunks = append(chunks, acc.String())
	}
	return chunks, nil
}

// ReadLines reads r fully, returning each line with its terminator. The last
// line is returned even when it lacks one.
func ReadLines(r io.Reader) ([]string, error) {
	reader := bufio.NewReader(r)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			lines = append(lines, line)
		}
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return nil, apperr.New(apperr.IOFailure, "read lines", err)
		}
	}
}

// ChunkFile reads the file at path once and chunks its lines.
func ChunkFile(path string, maxTokens int, opts ...Option) ([]string, error) {
	lines, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Chunk(lines, maxTokens, opts...)
}

// ReadFile returns the lines of the file at path.
func ReadFile(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, apperr.Invalid("dataset path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.New(apperr.IOFailure, "open dataset", err)
	}
	defer f.Close()
	return ReadLines(f)
}
