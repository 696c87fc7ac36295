package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
)

// REPL is a line-oriented front end over one session
type REPL struct {
	session  *Session
	config   *Config
	settings *Settings
	theme    *Theme
	in       io.Reader
	out      io.Writer
}

// NewREPL creates a REPL reading commands from in and writing to out
func NewREPL(session *Session, cfg *Config, settings *Settings, in io.Reader, out io.Writer) *REPL {
	if settings == nil {
		settings = DefaultSettings()
	}
	return &REPL{
		session:  session,
		config:   cfg,
		settings: settings,
		theme:    NewTheme(&ThemeSettings{Name: cfg.Theme}),
		in:       in,
		out:      out,
	}
}

// Run starts the interactive loop until /quit or end of input
func (r *REPL) Run(ctx context.Context) error {
	_, _ = fmt.Fprintf(r.out, "datapilot %s\n", Version)
	_, _ = fmt.Fprintf(r.out, "%d rows loaded, completions via %s\n", r.session.Original().Len(), r.session.ProviderName())
	_, _ = fmt.Fprintln(r.out, "Type /help for commands, /quit to exit")
	_, _ = fmt.Fprintln(r.out)

	scanner := bufio.NewScanner(r.in)
	for {
		_, _ = fmt.Fprint(r.out, r.theme.Prompt(">")+" ")

		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if !r.handleCommand(ctx, input) {
				break
			}
			continue
		}

		// Bare text is a data instruction
		r.runData(ctx, input)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("input error: %w", err)
	}

	_, _ = fmt.Fprintln(r.out, "\nGoodbye!")
	return nil
}

// handleCommand processes slash commands, returns false if should quit
func (r *REPL) handleCommand(ctx context.Context, input string) bool {
	cmd, arg, _ := strings.Cut(input, " ")
	cmd = strings.ToLower(cmd)
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit", "/q":
		return false

	case "/help", "/h":
		r.printHelp()

	case "/data", "/d":
		if arg == "" {
			_, _ = fmt.Fprintln(r.out, r.theme.Error("Usage:")+" /data <instruction>")
			return true
		}
		r.runData(ctx, arg)

	case "/plot", "/p":
		if arg == "" {
			_, _ = fmt.Fprintln(r.out, r.theme.Error("Usage:")+" /plot <instruction>")
			return true
		}
		r.runPlot(ctx, arg)

	case "/reset", "/r":
		f := r.session.Reset()
		_, _ = fmt.Fprintf(r.out, "%s Data reset (%d rows)\n", r.theme.Success("✓"), f.Len())

	case "/show", "/s":
		which := r.session.Working()
		if arg == "original" {
			which = r.session.Original()
		}
		limit := 10
		if n, err := strconv.Atoi(arg); err == nil && n > 0 {
			limit = n
		}
		_, _ = fmt.Fprint(r.out, renderFrame(which, limit, r.theme))

	case "/chart", "/c":
		chart := r.session.Chart()
		if chart == "" {
			_, _ = fmt.Fprintln(r.out, "No chart.")
		} else {
			_, _ = fmt.Fprintln(r.out, chart)
		}

	case "/history":
		r.printHistory(ctx)

	case "/usage", "/u":
		calls, input, output := r.session.Usage().GetUsage()
		_, _ = fmt.Fprintf(r.out, "\n%s\n", r.theme.Warning("Usage:"))
		_, _ = fmt.Fprintf(r.out, "  Completion calls: %d\n", calls)
		_, _ = fmt.Fprintf(r.out, "  Input tokens:     %d\n", input)
		_, _ = fmt.Fprintf(r.out, "  Output tokens:    %d\n", output)
		if r.config.MaxCalls > 0 {
			_, _ = fmt.Fprintf(r.out, "  Budget used:      %d%% (%d remaining)\n", calls*100/r.config.MaxCalls, max(r.config.MaxCalls-calls, 0))
		} else {
			_, _ = fmt.Fprintf(r.out, "  Budget:           unlimited\n")
		}
		_, _ = fmt.Fprintln(r.out)

	case "/config":
		printConfig(r.out, r.config, r.theme)

	case "/theme":
		if arg == "" {
			_, _ = fmt.Fprintf(r.out, "Current theme: %s\n", r.theme.Name)
			_, _ = fmt.Fprintf(r.out, "Available themes: %s\n", strings.Join(AvailableThemes(), ", "))
			return true
		}
		name := strings.ToLower(arg)
		if _, ok := ThemePresets[name]; !ok {
			_, _ = fmt.Fprintf(r.out, "%s Unknown theme: %s\n", r.theme.Error("Error:"), name)
			_, _ = fmt.Fprintf(r.out, "Available themes: %s\n", strings.Join(AvailableThemes(), ", "))
			return true
		}
		r.settings.Theme.Name = name
		r.config.Theme = name
		r.theme = NewTheme(&r.settings.Theme)
		if err := SaveSettings(r.settings); err != nil {
			_, _ = fmt.Fprintf(r.out, "%s Could not save settings: %v\n", r.theme.Warning("Warning:"), err)
		} else {
			_, _ = fmt.Fprintf(r.out, "%s Theme changed to %s (saved)\n", r.theme.Success("✓"), name)
		}

	default:
		_, _ = fmt.Fprintf(r.out, "%s %s\n", r.theme.Error("Unknown command:"), cmd)
		_, _ = fmt.Fprintln(r.out, "Type /help for available commands.")
	}

	return true
}

func (r *REPL) runData(ctx context.Context, instruction string) {
	f, err := r.session.ApplyDataInstruction(ctx, instruction)
	if err != nil {
		r.printError(err)
		return
	}
	_, _ = fmt.Fprint(r.out, renderFrame(f, 10, r.theme))
}

func (r *REPL) runPlot(ctx context.Context, instruction string) {
	markup, err := r.session.ApplyPlotInstruction(ctx, instruction)
	if err != nil {
		r.printError(err)
		return
	}
	_, _ = fmt.Fprintln(r.out, r.theme.Accent(markup))
}

func (r *REPL) printError(err error) {
	var opErr *OperationError
	if errors.As(err, &opErr) && opErr.Kind == KindTransform {
		// the transform message already names the code
		_, _ = fmt.Fprintln(r.out, r.theme.Error("✗")+" "+opErr.Error())
		return
	}
	_, _ = fmt.Fprint(r.out, FormatUserError(err))
}

func (r *REPL) printHistory(ctx context.Context) {
	entries, err := r.session.History(ctx, 20)
	if err != nil {
		r.printError(err)
		return
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(r.out, "No history yet.")
		return
	}
	for _, e := range entries {
		status := r.theme.Success(e.Outcome)
		if e.Outcome != "ok" {
			status = r.theme.Error(e.Outcome)
		}
		_, _ = fmt.Fprintf(r.out, "%s %-4s %s  %s\n", e.StartedAt.Format("15:04:05"), e.Operation, status, truncate(e.Instruction, 50))
		if e.Code != "" {
			_, _ = fmt.Fprintf(r.out, "         %s\n", r.theme.Dim(truncate(e.Code, 100)))
		}
	}
}

const helpMarkdown = `
# Commands

| Command | Description |
|---|---|
| ` + "`/data <text>`, `/d`" + ` | Transform the data (bare text does the same) |
| ` + "`/plot <text>`, `/p`" + ` | Generate a chart |
| ` + "`/reset`, `/r`" + ` | Restore the original data and clear the chart |
| ` + "`/show [n|original]`" + ` | Show the working (or original) data |
| ` + "`/chart`, `/c`" + ` | Show the current chart markup |
| ` + "`/history`" + ` | Show recent generations |
| ` + "`/usage`, `/u`" + ` | Show completion calls and tokens |
| ` + "`/config`" + ` | Show current configuration |
| ` + "`/theme [name]`" + ` | Show or change theme |
| ` + "`/quit`, `/q`" + ` | Exit |

Examples: *Sum SALES grouped by COUNTRY*, *Plot a bar chart of SALES by PRODUCTLINE*.
`

func (r *REPL) printHelp() {
	rendered, err := glamour.Render(helpMarkdown, "auto")
	if err != nil {
		rendered = helpMarkdown
	}
	_, _ = fmt.Fprint(r.out, rendered)
}

// printConfig displays the effective configuration
func printConfig(w io.Writer, cfg *Config, theme *Theme) {
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, theme.Warning("Current Configuration:"))
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, "  Provider:")
	_, _ = fmt.Fprintf(w, "    Backend:  %s\n", cfg.Provider.DisplayName())
	if cfg.Endpoint != "" {
		_, _ = fmt.Fprintf(w, "    Endpoint: %s\n", cfg.Endpoint)
	}
	model := cfg.Model
	if model == "" {
		model = cfg.Provider.DefaultModel()
	}
	if model != "" {
		_, _ = fmt.Fprintf(w, "    Model:    %s\n", model)
	}
	_, _ = fmt.Fprintf(w, "    Timeout:  %s\n", cfg.Timeout)
	if cfg.RateLimit > 0 {
		_, _ = fmt.Fprintf(w, "    Rate:     %.2f req/s\n", cfg.RateLimit)
	}
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, "  Files:")
	_, _ = fmt.Fprintf(w, "    Secret:   %s\n", cfg.SecretPath)
	_, _ = fmt.Fprintf(w, "    Context:  %s\n", cfg.ContextPath)
	_, _ = fmt.Fprintf(w, "    Layout:   %s\n", cfg.LayoutPath)
	_, _ = fmt.Fprintf(w, "    Data:     %s (%s, date column %s)\n", cfg.DataPath, cfg.Encoding, cfg.DateColumn)
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, "  Generation ceilings:")
	_, _ = fmt.Fprintf(w, "    Chart: %d  Layout: %d  Transform: %d\n", cfg.ChartCeiling, cfg.LayoutCeiling, cfg.TransformCeiling)
	if cfg.MaxCalls > 0 {
		_, _ = fmt.Fprintf(w, "    Call budget: %d per session\n", cfg.MaxCalls)
	} else {
		_, _ = fmt.Fprintln(w, "    Call budget: unlimited")
	}
	_, _ = fmt.Fprintln(w)

	journal := cfg.Journal
	if journal == "" {
		journal = "in memory"
	}
	_, _ = fmt.Fprintf(w, "  Journal:  %s\n", journal)
	if cfg.GuardURL != "" {
		_, _ = fmt.Fprintf(w, "  Guard:    %s\n", cfg.GuardURL)
	}
	_, _ = fmt.Fprintf(w, "  Log file: %s (%s)\n", cfg.LogFile, cfg.LogLevel)
	_, _ = fmt.Fprintf(w, "  Theme:    %s\n", cfg.Theme)

	if path, err := SettingsPath(); err == nil {
		_, _ = fmt.Fprintf(w, "  Settings file: %s\n", path)
	}
	_, _ = fmt.Fprintln(w)
}
