package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req OpenAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "starcoder", req.Model)
		assert.Equal(t, "def transform", req.Prompt)
		assert.False(t, req.Echo)
		assert.Empty(t, r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"model": "starcoder",
			"choices": [{"index": 0, "text": "data.head()\n", "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4}
		}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(&ProviderConfig{Endpoint: srv.URL, Model: "starcoder"})
	require.NoError(t, err)

	result, err := p.Complete(context.Background(), CompletionRequest{Prompt: "def transform"})
	require.NoError(t, err)
	assert.Equal(t, &CompletionResult{Text: "data.head()\n", InputTokens: 12, OutputTokens: 4}, result)
}

func TestOpenAIErrors(t *testing.T) {
	for name, tc := range map[string]struct {
		status int
		body   string
	}{
		"no choices":   {http.StatusOK, `{"choices": []}`},
		"server error": {http.StatusTooManyRequests, `{"error": {"message": "rate limit"}}`},
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			p, err := NewOpenAIProvider(&ProviderConfig{Endpoint: srv.URL, APIKey: "sk-test"})
			require.NoError(t, err)
			_, err = p.Complete(context.Background(), CompletionRequest{Prompt: "x"})
			require.Error(t, err)
			if tc.status == http.StatusOK {
				assert.ErrorIs(t, err, ErrMalformedResponse)
			} else {
				assert.Contains(t, err.Error(), "status 429")
			}
		})
	}
}

func TestNewOpenAIProviderNeedsKeyForPublicAPI(t *testing.T) {
	_, err := NewOpenAIProvider(&ProviderConfig{})
	assert.Error(t, err)

	p, err := NewOpenAIProvider(&ProviderConfig{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI.DefaultModel(), p.(*OpenAIClient).model)
}
