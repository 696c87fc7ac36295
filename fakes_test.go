package main

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// scriptedProvider returns canned chunks in call order and records every prompt
type scriptedProvider struct {
	mu       sync.Mutex
	chunks   []string
	fallback string        // returned once chunks run out
	errs     map[int]error // zero-based call index -> error
	prompts  []string
}

func newScripted(chunks ...string) *scriptedProvider {
	return &scriptedProvider{chunks: chunks}
}

func (p *scriptedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := len(p.prompts)
	p.prompts = append(p.prompts, req.Prompt)
	if err := p.errs[i]; err != nil {
		return nil, err
	}
	if i < len(p.chunks) {
		return &CompletionResult{Text: p.chunks[i], InputTokens: 10, OutputTokens: 2}, nil
	}
	return &CompletionResult{Text: p.fallback}, nil
}

func (p *scriptedProvider) Name() string {
	return "Scripted"
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

// notesRecorder collects notifications
type notesRecorder struct {
	mu    sync.Mutex
	notes []string
}

func (r *notesRecorder) Notify(level NotifyLevel, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, string(level)+": "+message)
}

func (r *notesRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notes...)
}

// chartRecorder is a ChartSink remembering every update
type chartRecorder struct {
	updates []string
}

func (c *chartRecorder) UpdateContent(markup string) {
	c.updates = append(c.updates, markup)
}

func loadSample(t *testing.T) *Frame {
	t.Helper()
	f, err := LoadFrame("testdata/sales_sample.csv", FrameOptions{DateColumn: "ORDERDATE"})
	require.NoError(t, err)
	return f
}

func testWorkspace(t *testing.T) *Workspace {
	t.Helper()
	examples, err := LoadExamples("testdata/context_data.csv")
	require.NoError(t, err)
	layout, err := LoadExamples("testdata/layout_data.csv")
	require.NoError(t, err)

	ws, err := NewWorkspace(examples, layout, loadSample(t), rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	return ws
}

// blockingProvider parks every call until release is closed or the context ends
type blockingProvider struct {
	started chan struct{}
	release chan struct{}
	reply   string
	once    sync.Once
}

func newBlocking(reply string) *blockingProvider {
	return &blockingProvider{
		started: make(chan struct{}),
		release: make(chan struct{}),
		reply:   reply,
	}
}

func (p *blockingProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	p.once.Do(func() { close(p.started) })
	select {
	case <-p.release:
		return &CompletionResult{Text: p.reply}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *blockingProvider) Name() string {
	return "Blocking"
}
