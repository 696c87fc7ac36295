package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Ensure HuggingFaceClient implements CompletionProvider
var _ CompletionProvider = (*HuggingFaceClient)(nil)

// HuggingFaceClient calls a text-generation model on the Hugging Face Inference API
type HuggingFaceClient struct {
	endpoint     string
	token        string
	maxNewTokens int
	httpClient   *http.Client
}

// hfRequest represents the text-generation request body
type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

// hfParameters are the generation parameters sent with every call
type hfParameters struct {
	ReturnFullText bool `json:"return_full_text"`
	MaxNewTokens   int  `json:"max_new_tokens,omitempty"`
}

// hfGeneration is one element of the response array
type hfGeneration struct {
	GeneratedText *string `json:"generated_text"`
}

// hfError is returned by the endpoint on failure
type hfError struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time,omitempty"`
}

// NewHuggingFaceProvider creates a HuggingFaceClient as a CompletionProvider
func NewHuggingFaceProvider(cfg *ProviderConfig) (CompletionProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("hugging face API token required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultHuggingFaceEndpoint
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &HuggingFaceClient{
		endpoint:     endpoint,
		token:        cfg.APIKey,
		maxNewTokens: cfg.MaxNewTokens,
		httpClient:   &http.Client{Timeout: timeout},
	}, nil
}

// Name returns the provider name
func (c *HuggingFaceClient) Name() string {
	return "Hugging Face"
}

// Complete posts the prompt and returns the first generated text
func (c *HuggingFaceClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	maxNew := req.MaxNewTokens
	if maxNew == 0 {
		maxNew = c.maxNewTokens
	}

	body, err := json.Marshal(hfRequest{
		Inputs: req.Prompt,
		Parameters: hfParameters{
			ReturnFullText: req.ReturnFullText,
			MaxNewTokens:   maxNew,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

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
		var apiErr hfError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var generations []hfGeneration
	if err := json.Unmarshal(respBody, &generations); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(generations) == 0 || generations[0].GeneratedText == nil {
		return nil, fmt.Errorf("%w: no generated_text in %s", ErrMalformedResponse, truncate(string(respBody), 200))
	}

	return &CompletionResult{Text: *generations[0].GeneratedText}, nil
}
