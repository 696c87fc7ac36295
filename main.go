package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildDate = "unknown"
)

var (
	verbose      bool
	providerFlag string
	dataFlag     string
	journalFlag  string
)

// rootCmd launches the interactive interface
var rootCmd = &cobra.Command{
	Use:   "datapilot",
	Short: "Natural-language data and chart copilot",
	Long: `datapilot turns plain-language instructions into data transforms and chart
markup by querying a code-completion model until a complete snippet comes back.

Run without arguments to start the interactive interface.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive(cmd.Context(), func(app *app) error {
			return RunTUI(cmd.Context(), app.session, app.config, app.notes)
		})
	},
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start a line-oriented session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive(cmd.Context(), func(app *app) error {
			// results and errors are printed by the REPL itself
			app.notes.Fallback = NotifierFunc(func(level NotifyLevel, message string) {
				if level == NotifyWarning {
					fmt.Println(app.theme.Warning(message))
				}
			})
			return NewREPL(app.session, app.config, app.settings, os.Stdin, os.Stdout).Run(cmd.Context())
		})
	},
}

var dataCmd = &cobra.Command{
	Use:   "data <instruction>",
	Short: "Transform the dataset once and print the result",
	Example: `  datapilot data "Sum SALES grouped by COUNTRY"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(), "Transforming data", func(ctx context.Context, a *app) (string, error) {
			f, err := a.session.ApplyDataInstruction(ctx, strings.Join(args, " "))
			if err != nil {
				return "", err
			}
			return renderFrame(f, 20, a.theme), nil
		})
	},
}

var plotCmd = &cobra.Command{
	Use:   "plot <instruction>",
	Short: "Generate chart markup once and print it",
	Example: `  datapilot plot "Plot a pie chart of SALES by COUNTRY"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(), "Generating chart", func(ctx context.Context, a *app) (string, error) {
			return a.session.ApplyPlotInstruction(ctx, strings.Join(args, " "))
		})
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := LoadSettings()
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Warning: could not read settings: %v\n", err)
		}
		cfg := applyFlags(LoadConfig(settings))
		printConfig(cmd.OutOrStdout(), cfg, NewTheme(&ThemeSettings{Name: cfg.Theme}))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and check for a newer release",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "datapilot %s (built %s)\n", Version, BuildDate)
		printUpdateNotice(cmd.Context(), out, NewTheme(&ThemeSettings{}), verbose)
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("datapilot {{.Version}} (built %s)\n", BuildDate))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&providerFlag, "provider", "", "Completion backend: huggingface, openai, bedrock, gemini")
	rootCmd.PersistentFlags().StringVar(&dataFlag, "data", "", "Dataset file (default: sales_data_sample.csv)")
	rootCmd.PersistentFlags().StringVar(&journalFlag, "journal", "", "SQLite journal file (default: in memory)")

	rootCmd.AddCommand(replCmd, dataCmd, plotCmd, configCmd, versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprint(os.Stderr, FormatUserError(err))
		os.Exit(1)
	}
}

// app bundles what a front end needs
type app struct {
	settings *Settings
	config   *Config
	theme    *Theme
	logger   *zap.Logger
	journal  *Journal
	session  *Session
	notes    *ProgramNotifier
}

func applyFlags(cfg *Config) *Config {
	if providerFlag != "" {
		cfg.Provider = ParseProviderType(providerFlag)
		if cfg.Provider != ProviderHuggingFace && cfg.Endpoint == DefaultHuggingFaceEndpoint {
			cfg.Endpoint = ""
		}
	}
	if dataFlag != "" {
		cfg.DataPath = dataFlag
	}
	if journalFlag != "" {
		cfg.Journal = journalFlag
	}
	return cfg
}

// newApp loads configuration and the workspace and opens a session
func newApp(ctx context.Context, interactive bool, notifier Notifier) (*app, error) {
	settings, err := LoadSettings()
	if err != nil {
		return nil, &UserError{Message: "Failed to read settings", Cause: err, Suggestion: "Fix or remove ~/.datapilot/settings.yaml"}
	}
	cfg := applyFlags(LoadConfig(settings))

	logger, err := NewLogger(cfg, verbose, interactive || !verbose)
	if err != nil {
		return nil, err
	}

	ws, err := LoadWorkspace(ctx, cfg, nil)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	provider, err := NewProvider(ctx, cfg.ProviderConfig(ws.Token))
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	journal, err := OpenJournal(cfg.Journal)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	guard := NewGuard(cfg.GuardURL, cfg.GuardToken, cfg.Timeout)
	session := NewSession(ws, provider, SessionOptions{
		Journal:  journal,
		Logger:   logger,
		Notifier: notifier,
		Guard:    guard,
	})
	logger.Info("session started",
		zap.String("session", session.ID),
		zap.String("provider", provider.Name()),
		zap.Int("rows", ws.Data.Len()),
		zap.Bool("guard", guard.Enabled()),
	)

	return &app{
		settings: settings,
		config:   cfg,
		theme:    NewTheme(&ThemeSettings{Name: cfg.Theme}),
		logger:   logger,
		journal:  journal,
		session:  session,
	}, nil
}

func (a *app) close() {
	_ = a.journal.Close()
	_ = a.logger.Sync()
}

func runInteractive(ctx context.Context, run func(*app) error) error {
	notes := &ProgramNotifier{}
	a, err := newApp(ctx, true, notes)
	if err != nil {
		return err
	}
	defer a.close()
	a.notes = notes
	return run(a)
}

func runOnce(ctx context.Context, label string, op func(context.Context, *app) (string, error)) error {
	a, err := newApp(ctx, false, nil)
	if err != nil {
		return err
	}
	defer a.close()

	spin := NewSpinner(os.Stderr, label+"...", a.theme)
	spin.Start()
	out, err := op(ctx, a)
	if err != nil {
		spin.Fail(label + " failed")
		return err
	}
	calls, _, _ := a.session.Usage().GetUsage()
	spin.Success(fmt.Sprintf("%s done (%d completion calls)", label, calls))
	fmt.Println(out)
	return nil
}
