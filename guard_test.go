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

func TestNilGuardAcceptsEverything(t *testing.T) {
	var g *Guard
	assert.False(t, g.Enabled())
	assert.NoError(t, g.ScanInstruction(context.Background(), "anything"))
	assert.NoError(t, g.ScanCode(context.Background(), "anything", "data.head()"))
	assert.Nil(t, NewGuard("", "token", 0))
}

func TestGuardScans(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.Equal(t, "Bearer guard-token", r.Header.Get("Authorization"))

		var req guardScanRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Output == "" {
			_, _ = w.Write([]byte(`{"is_valid": true, "scanners": {"PromptInjection": 0.01}}`))
			return
		}
		_, _ = w.Write([]byte(`{"is_valid": false, "results": {
			"Secrets": {"score": 1.0, "is_valid": false, "risk": "high"},
			"Code": {"score": 0.2, "is_valid": true}
		}}`))
	}))
	defer srv.Close()

	g := NewGuard(srv.URL+"/", "guard-token", 0)
	require.True(t, g.Enabled())

	require.NoError(t, g.ScanInstruction(context.Background(), "Sum SALES"))

	err := g.ScanCode(context.Background(), "Sum SALES", "data.head()")
	assert.ErrorIs(t, err, ErrRejected)
	assert.EqualError(t, err, "generated code rejected by guard: Secrets score=1.00 (high)")

	assert.Equal(t, []string{"/scan/prompt", "/scan/output"}, paths)
}

func TestGuardServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewGuard(srv.URL, "", 0).ScanInstruction(context.Background(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
	assert.Equal(t, KindEndpoint, guardErrorKind(err))
}

func TestRejectionFallsBackToScannerScores(t *testing.T) {
	err := rejection("instruction", &guardScanResponse{Scanners: map[string]float64{"Toxicity": 0.9}})
	assert.EqualError(t, err, "instruction rejected by guard: Toxicity score=0.90")

	err = rejection("instruction", &guardScanResponse{})
	assert.EqualError(t, err, "instruction rejected by guard")
}
