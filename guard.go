package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// ErrRejected is returned when the guard server flags an instruction or generated code
var ErrRejected = errors.New("rejected by guard")

// Guard screens instructions before generation and generated code before
// it is applied, using an llm-guard server.
// See: https://github.com/protectai/llm-guard
//
// A nil Guard accepts everything.
type Guard struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// guardScanRequest is the request format for /scan/prompt and /scan/output
type guardScanRequest struct {
	Prompt string `json:"prompt"`
	Output string `json:"output,omitempty"`
}

// guardScanResponse is the response from scanning endpoints
type guardScanResponse struct {
	IsValid  bool                   `json:"is_valid"`
	Scanners map[string]float64     `json:"scanners,omitempty"`
	Results  map[string]guardResult `json:"results,omitempty"`
}

type guardResult struct {
	Score   float64 `json:"score"`
	IsValid bool    `json:"is_valid"`
	Risk    string  `json:"risk,omitempty"`
}

// NewGuard returns a guard for the server at baseURL, or nil when baseURL is empty
func NewGuard(baseURL, token string, timeout time.Duration) *Guard {
	if baseURL == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Guard{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a guard server is configured
func (g *Guard) Enabled() bool {
	return g != nil
}

// ScanInstruction screens a user instruction for prompt injection
func (g *Guard) ScanInstruction(ctx context.Context, instruction string) error {
	if g == nil {
		return nil
	}
	resp, err := g.scan(ctx, "/scan/prompt", guardScanRequest{Prompt: instruction})
	if err != nil {
		return err
	}
	return rejection("instruction", resp)
}

// ScanCode screens generated code against the instruction that produced it
func (g *Guard) ScanCode(ctx context.Context, instruction, code string) error {
	if g == nil {
		return nil
	}
	resp, err := g.scan(ctx, "/scan/output", guardScanRequest{Prompt: instruction, Output: code})
	if err != nil {
		return err
	}
	return rejection("generated code", resp)
}

func (g *Guard) scan(ctx context.Context, endpoint string, req guardScanRequest) (*guardScanResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("guard request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("guard returned status %d", resp.StatusCode)
	}

	var result guardScanResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode guard response: %w", err)
	}
	return &result, nil
}

// rejection turns an invalid scan into an ErrRejected naming the failing scanners
func rejection(what string, resp *guardScanResponse) error {
	if resp.IsValid {
		return nil
	}

	var issues []string
	for name, r := range resp.Results {
		if r.IsValid {
			continue
		}
		issue := fmt.Sprintf("%s score=%.2f", name, r.Score)
		if r.Risk != "" {
			issue += " (" + r.Risk + ")"
		}
		issues = append(issues, issue)
	}
	if len(issues) == 0 {
		for name, score := range resp.Scanners {
			issues = append(issues, fmt.Sprintf("%s score=%.2f", name, score))
		}
	}
	sort.Strings(issues)

	if len(issues) == 0 {
		return fmt.Errorf("%s %w", what, ErrRejected)
	}
	return fmt.Errorf("%s %w: %s", what, ErrRejected, strings.Join(issues, ", "))
}
