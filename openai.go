package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const openaiCompletionsURL = "https://api.openai.com/v1/completions"

// Ensure OpenAIClient implements CompletionProvider
var _ CompletionProvider = (*OpenAIClient)(nil)

// OpenAIClient implements CompletionProvider against the legacy /v1/completions
// API, which vLLM and llama.cpp servers also expose
type OpenAIClient struct {
	endpoint     string
	apiKey       string
	model        string
	maxNewTokens int
	httpClient   *http.Client
}

// OpenAIRequest represents a request to the completions API
type OpenAIRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	Echo      bool   `json:"echo,omitempty"`
}

// OpenAIResponse represents a response from the completions API
type OpenAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int    `json:"index"`
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// NewOpenAIProvider creates an OpenAIClient as a CompletionProvider
func NewOpenAIProvider(cfg *ProviderConfig) (CompletionProvider, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = openaiCompletionsURL
	}
	// Local servers run without a key; the public API does not
	if cfg.APIKey == "" && strings.HasPrefix(endpoint, "https://api.openai.com") {
		return nil, fmt.Errorf("OpenAI API key required (set DATAPILOT_API_TOKEN)")
	}

	model := cfg.Model
	if model == "" {
		model = ProviderOpenAI.DefaultModel()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &OpenAIClient{
		endpoint:     endpoint,
		apiKey:       cfg.APIKey,
		model:        model,
		maxNewTokens: cfg.MaxNewTokens,
		httpClient:   &http.Client{Timeout: timeout},
	}, nil
}

// Name returns the provider name
func (c *OpenAIClient) Name() string {
	return "OpenAI"
}

// Complete sends the prompt to the completions API
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	maxTokens := req.MaxNewTokens
	if maxTokens == 0 {
		maxTokens = c.maxNewTokens
	}

	body, err := json.Marshal(OpenAIRequest{
		Model:     c.model,
		Prompt:    req.Prompt,
		MaxTokens: maxTokens,
		Echo:      req.ReturnFullText,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var apiResp OpenAIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: model returned no choices", ErrMalformedResponse)
	}

	return &CompletionResult{
		Text:         apiResp.Choices[0].Text,
		InputTokens:  apiResp.Usage.PromptTokens,
		OutputTokens: apiResp.Usage.CompletionTokens,
	}, nil
}
