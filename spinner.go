package main

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Spinner displays an animated spinner with a message and elapsed time
type Spinner struct {
	out      io.Writer
	message  string
	frames   []string
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
	mu       sync.Mutex
	theme    *Theme
	started  time.Time
}

// NewSpinner creates a new spinner writing to out
func NewSpinner(out io.Writer, message string, theme *Theme) *Spinner {
	return &Spinner{
		out:      out,
		message:  message,
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		interval: 80 * time.Millisecond,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		theme:    theme,
	}
}

// Start begins the spinner animation
func (s *Spinner) Start() {
	s.started = time.Now()
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for i := 0; ; i = (i + 1) % len(s.frames) {
			s.mu.Lock()
			_, _ = fmt.Fprintf(s.out, "\r\033[K%s %s %s", s.theme.Info(s.frames[i]), s.message,
				s.theme.Dim(fmt.Sprintf("(%ds)", int(time.Since(s.started).Seconds()))))
			s.mu.Unlock()

			select {
			case <-s.stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Update changes the spinner message
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Success stops the spinner and shows a success message
func (s *Spinner) Success(message string) {
	s.halt()
	_, _ = fmt.Fprintf(s.out, "\r\033[K%s %s\n", s.theme.Success("✓"), message)
}

// Fail stops the spinner and shows a failure message
func (s *Spinner) Fail(message string) {
	s.halt()
	_, _ = fmt.Fprintf(s.out, "\r\033[K%s %s\n", s.theme.Error("✗"), message)
}

// Stop stops the spinner without a final message
func (s *Spinner) Stop() {
	s.halt()
	_, _ = fmt.Fprint(s.out, "\r\033[K")
}

func (s *Spinner) halt() {
	s.once.Do(func() {
		close(s.stop)
		if !s.started.IsZero() {
			<-s.done
		}
	})
}
