package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ProviderType represents the completion backend
type ProviderType string

const (
	ProviderHuggingFace ProviderType = "huggingface"
	ProviderOpenAI      ProviderType = "openai"
	ProviderBedrock     ProviderType = "bedrock"
	ProviderGemini      ProviderType = "gemini"
)

// DefaultHuggingFaceEndpoint is the StarCoder inference endpoint
const DefaultHuggingFaceEndpoint = "https://api-inference.huggingface.co/models/bigcode/starcoder"

// CompletionRequest is one text-completion call
type CompletionRequest struct {
	Prompt         string
	ReturnFullText bool // false: only newly generated text is returned
	MaxNewTokens   int  // 0 = backend default
}

// CompletionResult contains the generated text and token usage when the backend reports it
type CompletionResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// CompletionProvider is the abstract interface for completion backends.
// Complete issues exactly one blocking request; retries are the caller's job.
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)

	// Name returns the provider name for display
	Name() string
}

// ProviderConfig holds configuration for initializing providers
type ProviderConfig struct {
	Provider     ProviderType
	Endpoint     string
	Model        string
	APIKey       string
	Region       string
	Timeout      time.Duration
	MaxNewTokens int
	RateLimit    float64 // requests per second, 0 = unlimited
}

// NewProvider creates a completion provider based on configuration
func NewProvider(ctx context.Context, cfg *ProviderConfig) (CompletionProvider, error) {
	var (
		p   CompletionProvider
		err error
	)

	switch cfg.Provider {
	case ProviderHuggingFace:
		p, err = NewHuggingFaceProvider(cfg)
	case ProviderOpenAI:
		p, err = NewOpenAIProvider(cfg)
	case ProviderBedrock:
		p, err = NewBedrockProvider(ctx, cfg)
	case ProviderGemini:
		p, err = NewGeminiProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RateLimit > 0 {
		p = WithRateLimit(p, cfg.RateLimit)
	}
	return p, nil
}

// ParseProviderType converts a string to ProviderType
func ParseProviderType(s string) ProviderType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "vllm", "llamacpp":
		return ProviderOpenAI
	case "bedrock", "aws":
		return ProviderBedrock
	case "gemini", "google":
		return ProviderGemini
	default:
		return ProviderHuggingFace
	}
}

// NeedsToken reports whether the provider authenticates with the secret file token
func (p ProviderType) NeedsToken() bool {
	return p != ProviderBedrock
}

// DefaultModel returns the model used when none is configured
func (p ProviderType) DefaultModel() string {
	switch p {
	case ProviderOpenAI:
		return "gpt-3.5-turbo-instruct"
	case ProviderBedrock:
		return "anthropic.claude-3-haiku-20240307-v1:0"
	case ProviderGemini:
		return "gemini-2.0-flash"
	default:
		return ""
	}
}

// DisplayName returns a human-readable name for the provider
func (p ProviderType) DisplayName() string {
	switch p {
	case ProviderHuggingFace:
		return "Hugging Face Inference API"
	case ProviderOpenAI:
		return "OpenAI-compatible completions"
	case ProviderBedrock:
		return "AWS Bedrock"
	case ProviderGemini:
		return "Google Gemini API"
	default:
		return string(p)
	}
}

// rateLimitedProvider paces calls to the wrapped provider
type rateLimitedProvider struct {
	inner   CompletionProvider
	limiter *rate.Limiter
}

// WithRateLimit wraps p so that at most rps calls per second are issued
func WithRateLimit(p CompletionProvider, rps float64) CompletionProvider {
	return &rateLimitedProvider{
		inner:   p,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (r *rateLimitedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.inner.Complete(ctx, req)
}

func (r *rateLimitedProvider) Name() string {
	return r.inner.Name()
}

// meteredProvider reports every successful call to a usage tracker
type meteredProvider struct {
	inner CompletionProvider
	usage *UsageTracker
}

func (m *meteredProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	result, err := m.inner.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	m.usage.Add(result)
	return result, nil
}

func (m *meteredProvider) Name() string {
	return m.inner.Name()
}
