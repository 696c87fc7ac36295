package main

import (
	"context"
	"os"
	"testing"
	"time"
)

// TestHuggingFaceProvider calls the real inference endpoint
// Requires DATAPILOT_API_TOKEN environment variable
func TestHuggingFaceProvider(t *testing.T) {
	token := os.Getenv("DATAPILOT_API_TOKEN")
	if token == "" {
		t.Skip("DATAPILOT_API_TOKEN not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	provider, err := NewProvider(ctx, &ProviderConfig{
		Provider: ProviderHuggingFace,
		Endpoint: DefaultHuggingFaceEndpoint,
		APIKey:   token,
		Timeout:  30 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	result, err := provider.Complete(ctx, CompletionRequest{Prompt: TransformPrompt("Sum SALES grouped by COUNTRY")})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	t.Logf("Completion: %q", result.Text)
}

// TestTransformLoopLive runs a full bounded transform generation
func TestTransformLoopLive(t *testing.T) {
	token := os.Getenv("DATAPILOT_API_TOKEN")
	if token == "" {
		t.Skip("DATAPILOT_API_TOKEN not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	provider, err := NewProvider(ctx, &ProviderConfig{
		Provider: ProviderHuggingFace,
		Endpoint: DefaultHuggingFaceEndpoint,
		APIKey:   token,
		Timeout:  30 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	ext, err := TransformExtractor(10).Run(ctx, provider, TransformPrompt("Sum SALES grouped by COUNTRY"), nil)
	if err != nil {
		t.Fatalf("Transform extraction failed: %v", err)
	}
	t.Logf("Code after %d calls: %s", ext.Generation.Calls, ext.Code)

	if _, err := ApplyTransform(ext.Code, loadSample(t), loadSample(t)); err != nil {
		t.Logf("Generated code did not evaluate: %v", err)
	}
}
