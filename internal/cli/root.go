// Package cli provides the command-line interface for the stock advisor.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"stock-advisor/internal/agents"
	"stock-advisor/internal/analysis/indicators"
	"stock-advisor/internal/analysis/screening"
	"stock-advisor/internal/config"
	"stock-advisor/internal/logging"
	"stock-advisor/internal/marketdata"
	"stock-advisor/internal/pipeline"
	"stock-advisor/internal/resilience"
	"stock-advisor/internal/signal"
	"stock-advisor/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-06-01"
)

// App holds the application dependencies. Fields left nil are built from
// Config on first use.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	Store   store.RecommendationStore
	Market  marketdata.Provider
	Targets marketdata.AnalystTargetProvider
	LLM     agents.LLMClient

	closeStore func() error
}

// NewApp creates an App whose configuration is loaded when a command runs.
func NewApp(logger zerolog.Logger) *App {
	return &App{Logger: logger}
}

// Close releases the store opened by the app.
func (a *App) Close() error {
	if a.closeStore == nil {
		return nil
	}
	err := a.closeStore()
	a.closeStore = nil
	return err
}

// RecommendationStore returns the configured store, opening it on first use.
func (a *App) RecommendationStore() (store.RecommendationStore, error) {
	if a.Store != nil {
		return a.Store, nil
	}
	s, err := store.Open(a.Config.Store.Driver, a.Config.Store.DSN, a.Logger)
	if err != nil {
		return nil, err
	}
	a.Store = s
	a.closeStore = s.Close
	a.Logger.Debug().Str("driver", a.Config.Store.Driver).Msg("Recommendation store opened")
	return s, nil
}

// MarketData returns the configured market data provider.
func (a *App) MarketData() marketdata.Provider {
	if a.Market != nil {
		return a.Market
	}
	switch a.Config.Data.Provider {
	case config.ProviderREST:
		rest := marketdata.NewRESTProvider(a.Config.REST(), a.Logger)
		a.Market = rest
		if a.Targets == nil {
			a.Targets = rest
		}
	default:
		a.Market = marketdata.NewYahooProvider(a.Config.Yahoo(), a.Logger)
	}
	a.Logger.Debug().Str("provider", a.Config.Data.Provider).Msg("Market data provider initialized")
	return a.Market
}

// LLMClient returns the generative backend client.
func (a *App) LLMClient() (agents.LLMClient, error) {
	if a.LLM != nil {
		return a.LLM, nil
	}
	if err := a.Config.ValidateForAnalysis(); err != nil {
		return nil, err
	}
	var client agents.LLMClient = agents.NewOpenAIClient(a.Config.OpenAI(), a.Logger)
	if a.Config.LLM.BreakerThreshold > 0 {
		client = agents.NewGuardedClient(client, resilience.NewCircuitBreaker("openai", a.Config.Breaker()), a.Logger)
	}
	a.LLM = client
	a.Logger.Debug().Str("model", a.Config.LLM.Model).Msg("OpenAI client initialized")
	return a.LLM, nil
}

// orchestratorOptions adjusts the pipeline for one command.
type orchestratorOptions struct {
	NoFilter    bool
	DryRun      bool // analyze without saving recommendations
	NoBackend   bool // screening only
	Concurrency int
}

// Orchestrator wires the analysis pipeline from the configuration.
func (a *App) orchestrator(opts orchestratorOptions) (*pipeline.Orchestrator, error) {
	cfg := a.Config.PipelineConfig()
	if opts.Concurrency > 0 {
		cfg.Concurrency = opts.Concurrency
	}

	deps := pipeline.Dependencies{
		Prices: a.MarketData(),
		Engine: indicators.NewEngine(a.Config.Indicators),
	}
	deps.Targets = a.Targets
	if !opts.NoFilter {
		deps.Screener = screening.NewScreener(a.Config.Screening)
	}

	if !opts.NoBackend {
		llm, err := a.LLMClient()
		if err != nil {
			return nil, err
		}
		keywords, err := a.Config.KeywordTable()
		if err != nil {
			return nil, err
		}
		validator := signal.NewValidator(keywords, a.Logger)
		deps.Analyzer = agents.NewSynthesizer(llm, validator, a.Config.Synthesizer(), a.Logger)
	}

	if !opts.DryRun && !opts.NoBackend {
		s, err := a.RecommendationStore()
		if err != nil {
			return nil, err
		}
		deps.Store = s
	}

	return pipeline.NewOrchestrator(deps, cfg, a.Logger), nil
}

// tracker wires the recommendation tracker.
func (a *App) tracker() (*store.Tracker, error) {
	s, err := a.RecommendationStore()
	if err != nil {
		return nil, err
	}
	return store.NewTracker(s, a.MarketData(), a.Config.Tracker, a.Logger), nil
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "advisor",
		Short: "Stock Advisor - AI-assisted stock analysis and recommendation tracking",
		Long: `Stock Advisor analyzes a universe of stock symbols with technical indicators,
screens them against fundamental filters, asks a generative model for a
BUY/SELL/HOLD signal and tracks the BUY recommendations it saves until they
reach their target or stop-loss.

Use 'advisor <command> --help' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if app.Config == nil {
				dir, _ := cmd.Flags().GetString("config")
				cfg, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = cfg
				app.Logger = logging.NewLoggerWithConfig(cfg.Logging)
			}

			// Handle debug flag
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/stock-advisor)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newAnalyzeCmd(app))
	rootCmd.AddCommand(newScreenCmd(app))
	rootCmd.AddCommand(newRecsCmd(app))
	rootCmd.AddCommand(newScheduleCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Stock Advisor v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(maskedConfig(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"dir":         app.Config.Dir,
					"config":      config.ConfigPath(app.Config.Dir),
					"credentials": config.CredentialsPath(app.Config.Dir),
				})
			}
			output.Println(app.Config.Dir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			analysisErr := app.Config.ValidateForAnalysis()
			if output.IsJSON() {
				result := map[string]interface{}{"valid": true, "analysis_ready": analysisErr == nil}
				if analysisErr != nil {
					result["analysis_error"] = analysisErr.Error()
				}
				return output.JSON(result)
			}
			output.Success("✓ Configuration is valid")
			if analysisErr != nil {
				output.Warning("⚠ Analysis unavailable: %v", analysisErr)
			}
			return nil
		},
	})

	return cmd
}

// maskedConfig returns cfg for display with credentials replaced by flags.
func maskedConfig(cfg *config.Config) map[string]interface{} {
	shown := *cfg
	shown.Credentials = config.Credentials{}
	return map[string]interface{}{
		"config": shown,
		"credentials": map[string]bool{
			"openai":     cfg.Credentials.OpenAI.APIKey != "",
			"marketdata": cfg.Credentials.MarketData.APIKey != "",
		},
	}
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("LLM")
	output.Printf("  Model:           %s\n", cfg.LLM.Model)
	if cfg.LLM.BaseURL != "" {
		output.Printf("  Base URL:        %s\n", cfg.LLM.BaseURL)
	}
	output.Printf("  Temperature:     %.2f\n", cfg.LLM.Temperature)
	output.Printf("  Max Tokens:      %d\n", cfg.LLM.MaxTokens)
	output.Printf("  API Key:         %s\n", keyState(cfg.Credentials.OpenAI.APIKey))
	output.Println()

	output.Bold("Market Data")
	output.Printf("  Provider:        %s\n", cfg.Data.Provider)
	output.Printf("  History:         %d days\n", cfg.Data.HistoryDays)
	output.Printf("  Fetch Timeout:   %s\n", cfg.Data.FetchTimeout)
	output.Println()

	output.Bold("Screening")
	output.Printf("  Golden Cross:    %v (lookback %d)\n", cfg.Screening.GoldenCross, cfg.Screening.CrossLookback)
	output.Printf("  Max P/E:         %.1f\n", cfg.Screening.MaxPE)
	output.Printf("  Min ROE:         %.1f%%\n", cfg.Screening.MinROE)
	if cfg.Screening.MomentumPeriod > 0 {
		output.Printf("  Min Momentum:    %.1f%% over %d bars\n", cfg.Screening.MinMomentum, cfg.Screening.MomentumPeriod)
	}
	output.Printf("  Keywords:        %s\n", orDefault(cfg.Signal.KeywordsFile))
	output.Println()

	output.Bold("Pipeline")
	output.Printf("  Concurrency:     %d\n", cfg.Pipeline.Concurrency)
	output.Printf("  Min Confidence:  %s\n", FormatConfidence(cfg.Pipeline.MinConfidence))
	output.Printf("  Stop Loss:       %.1f%%\n", cfg.Pipeline.DefaultStopLossPercent)
	output.Printf("  Max AI Calls:    %s\n", aiCallLimit(cfg.Pipeline.MaxAICalls))
	output.Printf("  Watchlist:       %v\n", cfg.Pipeline.Watchlist)
	output.Println()

	output.Bold("Store")
	output.Printf("  Driver:          %s\n", cfg.Store.Driver)
	if cfg.Store.Driver == store.DriverSQLite {
		output.Printf("  Path:            %s\n", cfg.Store.DSN)
	}
	output.Println()

	output.Bold("Schedule")
	output.Printf("  Refresh:         %s\n", orNone(cfg.Schedule.RefreshCron))
	output.Printf("  Analyze:         %s\n", orNone(cfg.Schedule.AnalyzeCron))
	output.Printf("  Timezone:        %s\n", cfg.Location())
}

func keyState(key string) string {
	if key == "" {
		return "not set"
	}
	return "set"
}

func aiCallLimit(n int) string {
	if n <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", n)
}

func orDefault(s string) string {
	if s == "" {
		return "built-in"
	}
	return s
}

func orNone(s string) string {
	if s == "" {
		return "disabled"
	}
	return s
}
