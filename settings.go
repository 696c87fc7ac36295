package main

import (
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// Settings represents user-configurable settings stored in ~/.datapilot/settings.yaml
type Settings struct {
	Provider   ProviderSettings   `yaml:"provider"`
	Files      FileSettings       `yaml:"files"`
	Generation GenerationSettings `yaml:"generation"`
	Budget     BudgetSettings     `yaml:"budget"`
	Journal    string             `yaml:"journal,omitempty"`
	Guard      GuardSettings      `yaml:"guard,omitempty"`
	Theme      ThemeSettings      `yaml:"theme"`
}

// ProviderSettings selects the completion backend
type ProviderSettings struct {
	Name     string `yaml:"name"`
	Endpoint string `yaml:"endpoint,omitempty"`
	Model    string `yaml:"model,omitempty"`
	Region   string `yaml:"region,omitempty"`
}

// FileSettings locates the secret, the example corpora and the dataset
type FileSettings struct {
	Secret     string `yaml:"secret"`
	Context    string `yaml:"context"`
	Layout     string `yaml:"layout"`
	Data       string `yaml:"data"`
	DateColumn string `yaml:"dateColumn"`
	Encoding   string `yaml:"encoding"`
}

// GenerationSettings tunes the bounded generation loops
type GenerationSettings struct {
	ChartCeiling     int     `yaml:"chartCeiling"`
	LayoutCeiling    int     `yaml:"layoutCeiling"`
	TransformCeiling int     `yaml:"transformCeiling"`
	Timeout          string  `yaml:"timeout"`
	MaxNewTokens     int     `yaml:"maxNewTokens,omitempty"`
	RateLimit        float64 `yaml:"rateLimit,omitempty"`
}

// BudgetSettings limits completion calls per session
type BudgetSettings struct {
	// MaxCalls is the completion-call budget per session (0 = unlimited)
	MaxCalls int `yaml:"maxCalls"`
}

// GuardSettings points at an optional llm-guard server
type GuardSettings struct {
	URL string `yaml:"url,omitempty"`
}

// ThemeSettings configures the UI appearance
type ThemeSettings struct {
	Name string `yaml:"name"`
}

// DefaultSettings returns the default settings
func DefaultSettings() *Settings {
	return &Settings{
		Provider: ProviderSettings{
			Name:     string(ProviderHuggingFace),
			Endpoint: DefaultHuggingFaceEndpoint,
		},
		Files: FileSettings{
			Secret:     "secret.txt",
			Context:    "context_data.csv",
			Layout:     "layout_data.csv",
			Data:       "sales_data_sample.csv",
			DateColumn: "ORDERDATE",
			Encoding:   "iso-8859-1",
		},
		Generation: GenerationSettings{
			ChartCeiling:     10,
			LayoutCeiling:    5,
			TransformCeiling: 10,
			Timeout:          "20s",
		},
		Theme: ThemeSettings{Name: "default"},
	}
}

// SettingsPath returns the path to the settings file
func SettingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".datapilot", "settings.yaml"), nil
}

// LoadSettings loads settings from ~/.datapilot/settings.yaml
// Returns default settings if the file doesn't exist
func LoadSettings() (*Settings, error) {
	path, err := SettingsPath()
	if err != nil {
		return DefaultSettings(), nil //nolint:nilerr // no home directory: defaults
	}
	return LoadSettingsFile(path)
}

// LoadSettingsFile loads settings from path, keeping defaults for missing fields
func LoadSettingsFile(path string) (*Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, err
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return settings, err
	}
	return settings, nil
}

// SaveSettings saves settings to ~/.datapilot/settings.yaml
func SaveSettings(settings *Settings) error {
	path, err := SettingsPath()
	if err != nil {
		return err
	}
	return SaveSettingsFile(path, settings)
}

// SaveSettingsFile writes settings to path, creating its directory
func SaveSettingsFile(path string, settings *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ThemePreset defines the colors of a theme as ANSI 256 color numbers
type ThemePreset struct {
	Prompt  string
	Success string
	Error   string
	Warning string
	Info    string
	Accent  string
}

// ThemePresets contains all available theme presets
var ThemePresets = map[string]ThemePreset{
	"default":   {Prompt: "12", Success: "10", Error: "9", Warning: "11", Info: "14", Accent: "13"},
	"solarized": {Prompt: "33", Success: "64", Error: "160", Warning: "136", Info: "37", Accent: "33"},
	"gruvbox":   {Prompt: "208", Success: "142", Error: "167", Warning: "214", Info: "108", Accent: "208"},
	"dracula":   {Prompt: "141", Success: "84", Error: "210", Warning: "212", Info: "117", Accent: "141"},
	"nord":      {Prompt: "67", Success: "108", Error: "174", Warning: "222", Info: "110", Accent: "67"},
}

// Theme provides color formatting based on settings
type Theme struct {
	Name   string
	preset ThemePreset
}

// NewTheme creates a theme from settings
func NewTheme(settings *ThemeSettings) *Theme {
	name := settings.Name
	preset, ok := ThemePresets[name]
	if !ok {
		name = "default"
		preset = ThemePresets[name]
	}
	return &Theme{Name: name, preset: preset}
}

func (t *Theme) style(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

// Prompt formats text with the prompt color
func (t *Theme) Prompt(text string) string { return t.style(t.preset.Prompt).Render(text) }

// Success formats text with the success color
func (t *Theme) Success(text string) string { return t.style(t.preset.Success).Render(text) }

// Error formats text with the error color
func (t *Theme) Error(text string) string { return t.style(t.preset.Error).Render(text) }

// Warning formats text with the warning color
func (t *Theme) Warning(text string) string { return t.style(t.preset.Warning).Render(text) }

// Info formats text with the info color
func (t *Theme) Info(text string) string { return t.style(t.preset.Info).Render(text) }

// Accent formats text with the accent color
func (t *Theme) Accent(text string) string { return t.style(t.preset.Accent).Bold(true).Render(text) }

// Dim formats text with faint styling
func (t *Theme) Dim(text string) string { return lipgloss.NewStyle().Faint(true).Render(text) }

// Color returns the lipgloss color for a role name
func (t *Theme) Color(role string) lipgloss.Color {
	switch role {
	case "success":
		return lipgloss.Color(t.preset.Success)
	case "error":
		return lipgloss.Color(t.preset.Error)
	case "warning":
		return lipgloss.Color(t.preset.Warning)
	case "info":
		return lipgloss.Color(t.preset.Info)
	case "accent":
		return lipgloss.Color(t.preset.Accent)
	default:
		return lipgloss.Color(t.preset.Prompt)
	}
}

// AvailableThemes returns the list of available theme names
func AvailableThemes() []string {
	return []string{"default", "solarized", "gruvbox", "dracula", "nord"}
}
