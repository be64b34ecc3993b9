package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used by GPT-4 class models.
const DefaultEncoding = "cl100k_base"

// Counter measures text in BPE tokens.
type Counter struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewCounter loads the named encoding, falling back to DefaultEncoding when
// name is empty.
func NewCounter(name string) (*Counter, error) {
	if name == "" {
		name = DefaultEncoding
	}
	encoding, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %q: %w", name, err)
	}
	return &Counter{encoding: encoding, name: name}, nil
}

// Count returns the number of tokens in text. A nil Counter counts nothing.
func (c *Counter) Count(text string) int {
	if c == nil || c.encoding == nil || text == "" {
		return 0
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// CountAll returns the token count of every element of texts.
func (c *Counter) CountAll(texts []string) []int {
	counts := make([]int, len(texts))
	for i, text := range texts {
		counts[i] = c.Count(text)
	}
	return counts
}

// Encoding returns the encoding name.
func (c *Counter) Encoding() string {
	if c == nil {
		return ""
	}
	return c.name
}
