package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration
type Config struct {
	// Completion backend
	Provider     ProviderType
	Endpoint     string
	Model        string
	Region       string
	Timeout      time.Duration // per completion call (default: 20s)
	MaxNewTokens int           // 0 = server default
	RateLimit    float64       // requests per second, 0 = unlimited

	// Files
	SecretPath  string
	APIToken    string // fallback when the secret file is missing
	ContextPath string
	LayoutPath  string
	DataPath    string
	DateColumn  string
	Encoding    string

	// Generation ceilings
	ChartCeiling     int
	LayoutCeiling    int
	TransformCeiling int

	// Call budget per session (0 = unlimited)
	MaxCalls  int
	WarnCalls int // warn when approaching limit (80% of max)

	// Journal DSN (empty = in-memory)
	Journal string

	// llm-guard server (empty = disabled)
	GuardURL   string
	GuardToken string

	// Logging
	LogFile  string
	LogLevel string

	Theme string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return configFromSettings(DefaultSettings())
}

func configFromSettings(s *Settings) *Config {
	timeout, err := time.ParseDuration(s.Generation.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 20 * time.Second
	}

	cfg := &Config{
		Provider:         ParseProviderType(s.Provider.Name),
		Endpoint:         s.Provider.Endpoint,
		Model:            s.Provider.Model,
		Region:           s.Provider.Region,
		Timeout:          timeout,
		MaxNewTokens:     s.Generation.MaxNewTokens,
		RateLimit:        s.Generation.RateLimit,
		SecretPath:       s.Files.Secret,
		ContextPath:      s.Files.Context,
		LayoutPath:       s.Files.Layout,
		DataPath:         s.Files.Data,
		DateColumn:       s.Files.DateColumn,
		Encoding:         s.Files.Encoding,
		ChartCeiling:     s.Generation.ChartCeiling,
		LayoutCeiling:    s.Generation.LayoutCeiling,
		TransformCeiling: s.Generation.TransformCeiling,
		MaxCalls:         s.Budget.MaxCalls,
		Journal:          s.Journal,
		GuardURL:         s.Guard.URL,
		LogLevel:         "info",
		Theme:            s.Theme.Name,
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.LogFile = filepath.Join(home, ".datapilot", "datapilot.log")
	}
	cfg.updateWarnThreshold()
	return cfg
}

// LoadConfig layers .env and the process environment over the settings file
func LoadConfig(settings *Settings) *Config {
	// Missing .env is fine
	_ = godotenv.Load()

	if settings == nil {
		settings = DefaultSettings()
	}
	cfg := configFromSettings(settings)

	// Completion backend
	if val := os.Getenv("DATAPILOT_PROVIDER"); val != "" {
		cfg.Provider = ParseProviderType(val)
		if cfg.Provider != ProviderHuggingFace && cfg.Endpoint == DefaultHuggingFaceEndpoint {
			cfg.Endpoint = ""
		}
	}
	if val := os.Getenv("DATAPILOT_ENDPOINT"); val != "" {
		cfg.Endpoint = val
	}
	if val := os.Getenv("DATAPILOT_MODEL"); val != "" {
		cfg.Model = val
	}
	if val := os.Getenv("AWS_REGION"); val != "" && cfg.Region == "" {
		cfg.Region = val
	}
	if val := os.Getenv("DATAPILOT_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	if val := os.Getenv("DATAPILOT_MAX_NEW_TOKENS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			cfg.MaxNewTokens = n
		}
	}
	if val := os.Getenv("DATAPILOT_RATE_LIMIT"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil && f >= 0 {
			cfg.RateLimit = f
		}
	}

	// Files
	envString(&cfg.SecretPath, "DATAPILOT_SECRET_PATH")
	envString(&cfg.APIToken, "DATAPILOT_API_TOKEN")
	envString(&cfg.ContextPath, "DATAPILOT_CONTEXT_PATH")
	envString(&cfg.LayoutPath, "DATAPILOT_LAYOUT_PATH")
	envString(&cfg.DataPath, "DATAPILOT_DATA_PATH")
	envString(&cfg.DateColumn, "DATAPILOT_DATE_COLUMN")
	envString(&cfg.Encoding, "DATAPILOT_DATA_ENCODING")

	// Generation ceilings
	envPositive(&cfg.ChartCeiling, "DATAPILOT_CHART_CEILING")
	envPositive(&cfg.LayoutCeiling, "DATAPILOT_LAYOUT_CEILING")
	envPositive(&cfg.TransformCeiling, "DATAPILOT_TRANSFORM_CEILING")

	if val := os.Getenv("DATAPILOT_MAX_CALLS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			cfg.MaxCalls = n // 0 = unlimited
		}
	}

	envString(&cfg.Journal, "DATAPILOT_JOURNAL")
	envString(&cfg.GuardURL, "DATAPILOT_GUARD_URL")
	envString(&cfg.GuardToken, "DATAPILOT_GUARD_TOKEN")
	envString(&cfg.LogFile, "DATAPILOT_LOG_FILE")
	envString(&cfg.LogLevel, "DATAPILOT_LOG_LEVEL")
	envString(&cfg.Theme, "DATAPILOT_THEME")

	cfg.updateWarnThreshold()
	return cfg
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func envPositive(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			*dst = n
		}
	}
}

func (c *Config) updateWarnThreshold() {
	c.WarnCalls = 0
	if c.MaxCalls > 0 {
		c.WarnCalls = c.MaxCalls * 80 / 100
	}
}

// ProviderConfig returns the provider settings of the configuration
func (c *Config) ProviderConfig(token string) *ProviderConfig {
	return &ProviderConfig{
		Provider:     c.Provider,
		Endpoint:     c.Endpoint,
		Model:        c.Model,
		APIKey:       token,
		Region:       c.Region,
		Timeout:      c.Timeout,
		MaxNewTokens: c.MaxNewTokens,
		RateLimit:    c.RateLimit,
	}
}

// ReadSecret reads the API token from the secret file, falling back to
// the configured token when the file does not exist
func (c *Config) ReadSecret() (string, error) {
	data, err := os.ReadFile(c.SecretPath)
	switch {
	case err == nil:
		if token := strings.TrimSpace(string(data)); token != "" {
			return token, nil
		}
	case !os.IsNotExist(err):
		return "", fmt.Errorf("read secret: %w", err)
	}

	if c.APIToken != "" {
		return c.APIToken, nil
	}
	if c.Provider.NeedsToken() {
		return "", ErrMissingSecret(c.SecretPath, err)
	}
	return "", nil
}

// UsageTracker counts completion calls and reported tokens across a session
type UsageTracker struct {
	mu           sync.Mutex
	Calls        int
	InputTokens  int
	OutputTokens int
	MaxCalls     int
	WarnAt       int
	warned       bool
	pending      string
}

// NewUsageTracker creates a new usage tracker with the given limits
func NewUsageTracker(maxCalls, warnAt int) *UsageTracker {
	return &UsageTracker{
		MaxCalls: maxCalls,
		WarnAt:   warnAt,
	}
}

// Add records one completed call
func (t *UsageTracker) Add(result *CompletionResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Calls++
	if result != nil {
		t.InputTokens += result.InputTokens
		t.OutputTokens += result.OutputTokens
	}

	// Check if approaching limit (warn once)
	if !t.warned && t.MaxCalls > 0 && t.WarnAt > 0 && t.Calls >= t.WarnAt {
		t.warned = true
		t.pending = formatCallWarning(t.MaxCalls-t.Calls, t.MaxCalls)
	}
}

// Check returns ErrBudgetExceeded once the call budget is spent
func (t *UsageTracker) Check() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.MaxCalls > 0 && t.Calls >= t.MaxCalls {
		return fmt.Errorf("%w: %d of %d calls used", ErrBudgetExceeded, t.Calls, t.MaxCalls)
	}
	return nil
}

// Warning returns the budget warning once, after the threshold is crossed
func (t *UsageTracker) Warning() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.pending
	t.pending = ""
	return w
}

// GetUsage returns current usage
func (t *UsageTracker) GetUsage() (calls, input, output int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Calls, t.InputTokens, t.OutputTokens
}

func formatCallWarning(remaining, max int) string {
	if remaining < 0 {
		remaining = 0
	}
	pct := (max - remaining) * 100 / max
	return "Warning: " + strconv.Itoa(pct) + "% of completion call budget used (" + strconv.Itoa(remaining) + " calls remaining)."
}
