package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Generation is the state of one bounded generation run
type Generation struct {
	Text       string // everything accumulated across calls
	Calls      int    // completion calls made
	Terminated bool   // the terminator appeared before the ceiling
}

// GenerateSpec describes one bounded generation run
type GenerateSpec struct {
	Name       string
	Prompt     string
	Terminator func(chunk string) bool
	Ceiling    int
}

// ContainsTerminator returns a terminator predicate matching chunks that contain s
func ContainsTerminator(s string) func(string) bool {
	return func(chunk string) bool {
		return strings.Contains(chunk, s)
	}
}

// GenerateUntil queries the provider repeatedly, appending each chunk to the
// accumulated text and sending prompt+accumulated on the next call, until the
// terminator matches the latest chunk or Ceiling calls have been made.
// Reaching the ceiling is not an error.
func GenerateUntil(ctx context.Context, provider CompletionProvider, spec GenerateSpec, logger *zap.Logger) (*Generation, error) {
	if spec.Ceiling < 1 {
		return nil, fmt.Errorf("%s: %w", spec.Name, ErrInvalidCeiling)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	gen := &Generation{}
	var acc strings.Builder
	for gen.Calls < spec.Ceiling {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", spec.Name, err)
		}

		result, err := provider.Complete(ctx, CompletionRequest{
			Prompt:         spec.Prompt + acc.String(),
			ReturnFullText: false,
		})
		gen.Calls++
		if err != nil {
			return nil, fmt.Errorf("%s: call %d: %w", spec.Name, gen.Calls, err)
		}

		acc.WriteString(result.Text)
		done := spec.Terminator != nil && spec.Terminator(result.Text)
		logger.Debug("completion chunk",
			zap.String("extractor", spec.Name),
			zap.Int("call", gen.Calls),
			zap.Int("chunk_len", len(result.Text)),
			zap.Bool("terminated", done),
		)
		if done {
			gen.Terminated = true
			break
		}
	}

	gen.Text = acc.String()
	return gen, nil
}
