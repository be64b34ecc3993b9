package llm

import (
	"context"
	"strings"

	"github.com/priscilla100/goose-llm/internal/apperr"
)

// Complete drains a provider stream and returns the whole reply. Stream errors
// are reported as RemoteServiceFailure; cancellation of ctx is returned as is.
// onToken, when non-nil, observes every piece of text as it arrives.
func Complete(ctx context.Context, provider ChatProvider, req ChatRequest, onToken func(string)) (string, error) {
	req.Stream = true
	stream, err := provider.Stream(ctx, req)
	if err != nil {
		return "", err
	}

	var (
		reply     strings.Builder
		streamErr error
	)
	for chunk := range stream {
		switch {
		case chunk.Err != nil:
			if streamErr == nil {
				streamErr = chunk.Err
			}
		case chunk.Type == ChunkToken:
			reply.WriteString(chunk.Content)
			if onToken != nil {
				onToken(chunk.Content)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if streamErr != nil {
		if apperr.KindOf(streamErr) == apperr.Unknown {
			streamErr = apperr.New(apperr.RemoteServiceFailure, "chat stream", streamErr)
		}
		return "", streamErr
	}
	return reply.String(), nil
}
