package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Workspace holds what every session shares read-only: the prompt
// contexts built from the example corpora and the loaded dataset
type Workspace struct {
	Config        *Config
	Token         string
	ChartContext  string
	LayoutContext string
	Data          *Frame
}

// LoadWorkspace reads the secret, both corpora and the dataset concurrently,
// then builds the prompt contexts once
func LoadWorkspace(ctx context.Context, cfg *Config, rng *rand.Rand) (*Workspace, error) {
	var (
		token            string
		examples, layout []ExamplePair
		data             *Frame
	)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		token, err = cfg.ReadSecret()
		return err
	})
	g.Go(func() error {
		var err error
		if examples, err = LoadExamples(cfg.ContextPath); err != nil {
			return ErrWorkspaceLoad("context examples", cfg.ContextPath, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if layout, err = LoadExamples(cfg.LayoutPath); err != nil {
			return ErrWorkspaceLoad("layout examples", cfg.LayoutPath, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		data, err = LoadFrame(cfg.DataPath, FrameOptions{
			Separator:  ',',
			Encoding:   cfg.Encoding,
			DateColumn: cfg.DateColumn,
		})
		if err != nil {
			return ErrWorkspaceLoad("dataset", cfg.DataPath, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ws, err := NewWorkspace(examples, layout, data, rng)
	if err != nil {
		return nil, err
	}
	ws.Config = cfg
	ws.Token = token
	return ws, nil
}

// NewWorkspace builds the prompt contexts for a loaded dataset
func NewWorkspace(examples, layout []ExamplePair, data *Frame, rng *rand.Rand) (*Workspace, error) {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}

	chartCtx, err := BuildPromptContext(examples, data.Columns, rng)
	if err != nil {
		return nil, err
	}
	layoutCtx, err := BuildPromptContext(layout, data.Columns, rng)
	if err != nil {
		return nil, err
	}

	return &Workspace{
		Config:        DefaultConfig(),
		ChartContext:  chartCtx,
		LayoutContext: layoutCtx,
		Data:          data,
	}, nil
}

// NotifyLevel is the severity of a user notification
type NotifyLevel string

const (
	NotifySuccess NotifyLevel = "success"
	NotifyError   NotifyLevel = "error"
	NotifyWarning NotifyLevel = "warning"
	NotifyInfo    NotifyLevel = "info"
)

// Notifier receives user-facing notifications
type Notifier interface {
	Notify(level NotifyLevel, message string)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(level NotifyLevel, message string)

// Notify calls f
func (f NotifierFunc) Notify(level NotifyLevel, message string) {
	f(level, message)
}

// ChartSink receives replacement chart markup
type ChartSink interface {
	UpdateContent(markup string)
}

// SessionOptions are the optional collaborators of a session
type SessionOptions struct {
	Journal  *Journal
	Logger   *zap.Logger
	Notifier Notifier
	Chart    ChartSink
	Guard    *Guard
}

// Session is the state of one user: the original and working frames, the
// current chart markup, and its own usage. Operations are serialised; the
// accessors never wait for a running operation.
type Session struct {
	ID string

	// opMu is held for a whole operation, mu only while state is read or swapped
	opMu sync.Mutex
	mu   sync.Mutex

	workspace *Workspace
	provider  CompletionProvider
	usage     *UsageTracker
	journal   *Journal
	logger    *zap.Logger
	notifier  Notifier
	chartSink ChartSink
	guard     *Guard

	original *Frame
	working  *Frame
	chart    string
}

// NewSession starts a session over the workspace dataset
func NewSession(ws *Workspace, provider CompletionProvider, opts SessionOptions) *Session {
	cfg := ws.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	usage := NewUsageTracker(cfg.MaxCalls, cfg.WarnCalls)

	s := &Session{
		ID:        uuid.NewString(),
		workspace: ws,
		provider:  &meteredProvider{inner: provider, usage: usage},
		usage:     usage,
		journal:   opts.Journal,
		logger:    opts.Logger,
		notifier:  opts.Notifier,
		chartSink: opts.Chart,
		guard:     opts.Guard,
		original:  ws.Data.Clone(),
		chart:     DefaultChartMarkup,
	}
	s.working = s.original.Clone()
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("session", s.ID))
	if s.chartSink != nil {
		s.chartSink.UpdateContent(s.chart)
	}
	return s
}

// ApplyDataInstruction generates a transform expression for text, evaluates
// it and replaces the working frame. On failure the working frame is unchanged.
func (s *Session) ApplyDataInstruction(ctx context.Context, text string) (*Frame, error) {
	s.opMu.Lock()
	result, code, err := s.applyData(ctx, text)
	s.opMu.Unlock()

	if err != nil {
		s.notify(NotifyError, err.Error())
		return nil, err
	}
	s.notify(NotifySuccess, "Data Updated with code:"+code)
	return result, nil
}

func (s *Session) applyData(ctx context.Context, text string) (*Frame, string, error) {
	started := time.Now()
	entry := &JournalEntry{SessionID: s.ID, Operation: "data", Instruction: text, StartedAt: started}
	defer s.record(entry, started)

	if err := s.usage.Check(); err != nil {
		return nil, "", s.fail(entry, &OperationError{Op: "data", Kind: KindEndpoint, Err: err})
	}
	if err := s.guard.ScanInstruction(ctx, text); err != nil {
		return nil, "", s.fail(entry, &OperationError{Op: "data", Kind: guardErrorKind(err), Err: err})
	}

	ceiling := s.workspace.Config.TransformCeiling
	ext, err := TransformExtractor(ceiling).Run(ctx, s.provider, TransformPrompt(text), s.logger)
	if ext != nil {
		entry.Code = ext.Code
		entry.Calls = ext.Generation.Calls
		entry.Terminated = ext.Generation.Terminated
	}
	if err != nil {
		return nil, "", s.fail(entry, &OperationError{Op: "data", Kind: KindEndpoint, Err: err})
	}

	if err := s.guard.ScanCode(ctx, text, ext.Code); err != nil {
		return nil, "", s.fail(entry, &OperationError{Op: "data", Kind: guardErrorKind(err), Code: ext.Code, Err: err})
	}

	working, original := s.frames()
	result, err := ApplyTransform(ext.Code, working, original)
	if err != nil {
		return nil, "", s.fail(entry, &OperationError{Op: "data", Kind: KindTransform, Code: ext.Code, Err: err})
	}

	s.mu.Lock()
	s.working = result
	s.mu.Unlock()

	entry.Outcome = "ok"
	s.logger.Info("data updated", zap.String("code", ext.Code), zap.Int("rows", result.Len()))
	return result, ext.Code, nil
}

// ApplyPlotInstruction generates chart markup and layout for text and
// hands the validated markup to the chart sink
func (s *Session) ApplyPlotInstruction(ctx context.Context, text string) (string, error) {
	s.opMu.Lock()
	markup, err := s.applyPlot(ctx, text)
	s.opMu.Unlock()

	if err != nil {
		s.notify(NotifyError, err.Error())
		return "", err
	}
	s.notify(NotifySuccess, "Plot Updated!")
	return markup, nil
}

func (s *Session) applyPlot(ctx context.Context, text string) (string, error) {
	started := time.Now()
	entry := &JournalEntry{SessionID: s.ID, Operation: "plot", Instruction: text, StartedAt: started}
	defer s.record(entry, started)

	if err := s.usage.Check(); err != nil {
		return "", s.fail(entry, &OperationError{Op: "plot", Kind: KindEndpoint, Err: err})
	}
	if err := s.guard.ScanInstruction(ctx, text); err != nil {
		return "", s.fail(entry, &OperationError{Op: "plot", Kind: guardErrorKind(err), Err: err})
	}

	cfg := s.workspace.Config
	chart, err := ChartExtractor(cfg.ChartCeiling).Run(ctx, s.provider, ChartPrompt(s.workspace.ChartContext, text), s.logger)
	if chart != nil {
		entry.Calls = chart.Generation.Calls
		entry.Terminated = chart.Generation.Terminated
		entry.Code = chart.Generation.Text
	}
	if err != nil {
		return "", s.fail(entry, &OperationError{Op: "plot", Kind: plotErrorKind(err), Err: err})
	}

	layout, err := LayoutExtractor(cfg.LayoutCeiling).Run(ctx, s.provider, LayoutPrompt(s.workspace.LayoutContext, text), s.logger)
	if layout != nil {
		entry.Calls += layout.Generation.Calls
		entry.Terminated = entry.Terminated && layout.Generation.Terminated
	}
	if err != nil {
		return "", s.fail(entry, &OperationError{Op: "plot", Kind: KindEndpoint, Err: err})
	}

	markup, err := AssembleChart(chart.Code, layout.Code)
	if err != nil {
		entry.Code = "<" + chart.Code + "layout=" + layout.Code + "|>"
		return "", s.fail(entry, &OperationError{Op: "plot", Kind: KindGenerationInvalid, Err: err})
	}

	entry.Code = markup
	if err := s.guard.ScanCode(ctx, text, markup); err != nil {
		return "", s.fail(entry, &OperationError{Op: "plot", Kind: guardErrorKind(err), Code: markup, Err: err})
	}

	s.mu.Lock()
	s.chart = markup
	s.mu.Unlock()
	if s.chartSink != nil {
		s.chartSink.UpdateContent(markup)
	}

	entry.Outcome = "ok"
	s.logger.Info("plot updated", zap.String("markup", markup))
	return markup, nil
}

func plotErrorKind(err error) ErrorKind {
	if errors.Is(err, ErrGenerationInvalid) {
		return KindGenerationInvalid
	}
	return KindEndpoint
}

func guardErrorKind(err error) ErrorKind {
	if errors.Is(err, ErrRejected) {
		return KindRejected
	}
	return KindEndpoint
}

// Reset restores the working frame to the original and clears the chart
func (s *Session) Reset() *Frame {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	working := s.original.Clone()
	s.working = working
	s.chart = ""
	s.mu.Unlock()

	if s.chartSink != nil {
		s.chartSink.UpdateContent("")
	}
	s.logger.Info("session reset")
	return working
}

// frames returns the working and original frames of the moment
func (s *Session) frames() (working, original *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.working, s.original
}

// Original returns the dataset as loaded
func (s *Session) Original() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.original
}

// Working returns the current transformed dataset
func (s *Session) Working() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.working
}

// Chart returns the current chart markup
func (s *Session) Chart() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chart
}

// Usage returns the session usage tracker
func (s *Session) Usage() *UsageTracker {
	return s.usage
}

// ProviderName returns the display name of the completion backend
func (s *Session) ProviderName() string {
	return s.provider.Name()
}

// History returns the most recent journal entries of the session
func (s *Session) History(ctx context.Context, n int) ([]JournalEntry, error) {
	if s.journal == nil {
		return nil, nil
	}
	return s.journal.Recent(ctx, s.ID, n)
}

func (s *Session) fail(entry *JournalEntry, opErr *OperationError) error {
	entry.Outcome = opErr.Kind.String()
	entry.Error = opErr.Err.Error()
	s.logger.Warn("operation failed",
		zap.String("op", opErr.Op),
		zap.Stringer("kind", opErr.Kind),
		zap.String("code", opErr.Code),
		zap.Error(opErr.Err),
	)
	return opErr
}

func (s *Session) notify(level NotifyLevel, message string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(level, message)
	if w := s.usage.Warning(); w != "" {
		s.notifier.Notify(NotifyWarning, w)
	}
}

func (s *Session) record(entry *JournalEntry, started time.Time) {
	if s.journal == nil {
		return
	}
	entry.Duration = time.Since(started)
	// the operation context may already be cancelled
	if err := s.journal.Record(context.Background(), entry); err != nil {
		s.logger.Warn("journal write failed", zap.Error(err))
	}
}

// String describes the session for display
func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s)", s.ID[:8], s.provider.Name())
}
