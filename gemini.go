package main

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// Ensure GeminiClient implements CompletionProvider
var _ CompletionProvider = (*GeminiClient)(nil)

// GeminiClient implements CompletionProvider with the Google GenAI SDK
type GeminiClient struct {
	client       *genai.Client
	model        string
	timeout      time.Duration
	maxNewTokens int
}

// NewGeminiProvider creates a GeminiClient as a CompletionProvider
func NewGeminiProvider(ctx context.Context, cfg *ProviderConfig) (CompletionProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key required (set DATAPILOT_API_TOKEN)")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = ProviderGemini.DefaultModel()
	}

	return &GeminiClient{
		client:       client,
		model:        model,
		timeout:      cfg.Timeout,
		maxNewTokens: cfg.MaxNewTokens,
	}, nil
}

// Name returns the provider name
func (c *GeminiClient) Name() string {
	return "Gemini"
}

// generateConfig carries the output token limit, request first, then the configured default
func (c *GeminiClient) generateConfig(req CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(completionSystemPrompt, genai.RoleUser),
	}
	maxTokens := req.MaxNewTokens
	if maxTokens <= 0 {
		maxTokens = c.maxNewTokens
	}
	if maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	}
	return config
}

// Complete sends the prompt as a single user turn
func (c *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contents := []*genai.Content{
		genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, c.generateConfig(req))
	if err != nil {
		return nil, fmt.Errorf("gemini generate failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: model returned no candidates", ErrMalformedResponse)
	}

	text := resp.Text()
	if req.ReturnFullText {
		text = req.Prompt + text
	}

	result := &CompletionResult{Text: text}
	if resp.UsageMetadata != nil {
		result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return result, nil
}
