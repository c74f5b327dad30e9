// Package config provides configuration management for the advisor.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"stock-advisor/internal/agents"
	"stock-advisor/internal/analysis/indicators"
	"stock-advisor/internal/analysis/screening"
	apperrors "stock-advisor/internal/errors"
	"stock-advisor/internal/logging"
	"stock-advisor/internal/marketdata"
	"stock-advisor/internal/pipeline"
	"stock-advisor/internal/resilience"
	"stock-advisor/internal/signal"
	"stock-advisor/internal/store"
)

// Config holds all application configuration.
type Config struct {
	LLM         LLMConfig                 `mapstructure:"llm"`
	Data        DataConfig                `mapstructure:"data"`
	Indicators  indicators.SnapshotConfig `mapstructure:"indicators"`
	Screening   screening.Config          `mapstructure:"screening"`
	Signal      SignalConfig              `mapstructure:"signal"`
	Pipeline    pipeline.Config           `mapstructure:"pipeline"`
	Tracker     store.TrackerConfig       `mapstructure:"tracker"`
	Store       StoreConfig               `mapstructure:"store"`
	Schedule    ScheduleConfig            `mapstructure:"schedule"`
	Logging     logging.LogConfig         `mapstructure:"logging"`
	Credentials Credentials               `mapstructure:"-"` // Loaded separately

	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`
}

// LLMConfig holds generative backend configuration.
type LLMConfig struct {
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	JSONMode    bool          `mapstructure:"json_mode"`

	// Consecutive backend failures that stop further calls for
	// BreakerCooldown. Zero disables the breaker.
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

// DataConfig holds market data configuration.
type DataConfig struct {
	Provider          string        `mapstructure:"provider"` // yahoo, rest
	BaseURL           string        `mapstructure:"base_url"`
	Suffix            string        `mapstructure:"suffix"` // yahoo exchange suffix, e.g. ".VN"
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	HistoryDays       int           `mapstructure:"history_days"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
}

// SignalConfig holds reply validation settings.
type SignalConfig struct {
	// KeywordsFile replaces the embedded fallback keyword table. Relative
	// paths resolve against the config directory.
	KeywordsFile string `mapstructure:"keywords_file"`
}

// StoreConfig holds recommendation store configuration.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // sqlite3, postgres
	DSN    string `mapstructure:"dsn"`
}

// ScheduleConfig holds cron expressions for background jobs. Empty
// expressions disable the job.
type ScheduleConfig struct {
	RefreshCron string `mapstructure:"refresh_cron"`
	AnalyzeCron string `mapstructure:"analyze_cron"`
	Timezone    string `mapstructure:"timezone"`
}

// Credentials holds API credentials.
type Credentials struct {
	OpenAI     APICredentials `mapstructure:"openai"`
	MarketData APICredentials `mapstructure:"marketdata"`
}

// APICredentials holds one API key.
type APICredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// Provider names.
const (
	ProviderYahoo = "yahoo"
	ProviderREST  = "rest"
)

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/stock-advisor"
	}
	return filepath.Join(home, ".config", "stock-advisor")
}

// ConfigPath returns the config.toml path within configDir.
func ConfigPath(configDir string) string {
	return filepath.Join(configDir, "config.toml")
}

// CredentialsPath returns the credentials.toml path within configDir.
func CredentialsPath(configDir string) string {
	return filepath.Join(configDir, "credentials.toml")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
			MaxTokens:   1200,
			Timeout:     60 * time.Second,
			JSONMode:    true,

			BreakerThreshold: 5,
			BreakerCooldown:  2 * time.Minute,
		},
		Data: DataConfig{
			Provider:          ProviderYahoo,
			Suffix:            ".VN",
			RequestsPerSecond: 5,
			HistoryDays:       400,
			FetchTimeout:      30 * time.Second,
		},
		Indicators: indicators.DefaultSnapshotConfig(),
		Screening: screening.Config{
			GoldenCross:   true,
			CrossLookback: 10,
			MaxPE:         25,
			MinROE:        15,
		},
		Pipeline: pipeline.DefaultConfig(),
		Tracker:  store.DefaultTrackerConfig(),
		Store: StoreConfig{
			Driver: store.DriverSQLite,
			DSN:    filepath.Join(DefaultConfigDir(), "advisor.db"),
		},
		Schedule: ScheduleConfig{
			RefreshCron: "*/30 9-15 * * 1-5",
			AnalyzeCron: "30 8 * * 1-5",
			Timezone:    "Asia/Ho_Chi_Minh",
		},
		Logging: logging.DefaultLogConfig(),
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. Missing files
// are created from templates and the defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// .env values never override variables already set.
	_ = godotenv.Load(filepath.Join(configDir, ".env"))
	_ = godotenv.Load()

	cfg := Default()
	cfg.Dir = configDir
	cfg.Store.DSN = filepath.Join(configDir, "advisor.db")
	cfg.Logging.FilePath = filepath.Join(configDir, "logs", "advisor.log")

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if _, err := cfg.KeywordTable(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.base_url", cfg.LLM.BaseURL)
	v.SetDefault("llm.temperature", cfg.LLM.Temperature)
	v.SetDefault("llm.max_tokens", cfg.LLM.MaxTokens)
	v.SetDefault("llm.timeout", cfg.LLM.Timeout)
	v.SetDefault("llm.json_mode", cfg.LLM.JSONMode)
	v.SetDefault("llm.breaker_threshold", cfg.LLM.BreakerThreshold)
	v.SetDefault("llm.breaker_cooldown", cfg.LLM.BreakerCooldown)

	v.SetDefault("data.provider", cfg.Data.Provider)
	v.SetDefault("data.suffix", cfg.Data.Suffix)
	v.SetDefault("data.requests_per_second", cfg.Data.RequestsPerSecond)
	v.SetDefault("data.history_days", cfg.Data.HistoryDays)
	v.SetDefault("data.fetch_timeout", cfg.Data.FetchTimeout)

	v.SetDefault("indicators.ma_short", cfg.Indicators.MAShort)
	v.SetDefault("indicators.ma_long", cfg.Indicators.MALong)
	v.SetDefault("indicators.bollinger_period", cfg.Indicators.BollingerPeriod)
	v.SetDefault("indicators.bollinger_multiplier", cfg.Indicators.BollingerMultiplier)
	v.SetDefault("indicators.momentum_periods", cfg.Indicators.MomentumPeriods)
	v.SetDefault("indicators.volume_period", cfg.Indicators.VolumePeriod)

	v.SetDefault("screening.golden_cross", cfg.Screening.GoldenCross)
	v.SetDefault("screening.cross_lookback", cfg.Screening.CrossLookback)
	v.SetDefault("screening.max_pe", cfg.Screening.MaxPE)
	v.SetDefault("screening.min_roe", cfg.Screening.MinROE)
	v.SetDefault("screening.momentum_period", cfg.Screening.MomentumPeriod)
	v.SetDefault("screening.min_momentum", cfg.Screening.MinMomentum)

	v.SetDefault("signal.keywords_file", cfg.Signal.KeywordsFile)

	v.SetDefault("pipeline.concurrency", cfg.Pipeline.Concurrency)
	v.SetDefault("pipeline.min_confidence", cfg.Pipeline.MinConfidence)
	v.SetDefault("pipeline.default_stop_loss_percent", cfg.Pipeline.DefaultStopLossPercent)
	v.SetDefault("pipeline.synthesis_timeout", cfg.Pipeline.SynthesisTimeout)

	v.SetDefault("tracker.concurrency", cfg.Tracker.Concurrency)
	v.SetDefault("tracker.quote_timeout", cfg.Tracker.QuoteTimeout)

	v.SetDefault("store.driver", cfg.Store.Driver)
	v.SetDefault("store.dsn", cfg.Store.DSN)

	v.SetDefault("schedule.refresh_cron", cfg.Schedule.RefreshCron)
	v.SetDefault("schedule.analyze_cron", cfg.Schedule.AnalyzeCron)
	v.SetDefault("schedule.timezone", cfg.Schedule.Timezone)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.console", cfg.Logging.Console)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.file_path", cfg.Logging.FilePath)
	v.SetDefault("logging.max_size", cfg.Logging.MaxSize)
	v.SetDefault("logging.max_backups", cfg.Logging.MaxBackups)
	v.SetDefault("logging.max_age", cfg.Logging.MaxAge)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	// Generative backend
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Credentials.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.LLM.Model = v
	}

	// Market data
	if v := os.Getenv("MARKETDATA_API_KEY"); v != "" {
		cfg.Credentials.MarketData.APIKey = v
	}
	if v := os.Getenv("MARKETDATA_BASE_URL"); v != "" {
		cfg.Data.BaseURL = v
	}
	if v := os.Getenv("MARKETDATA_PROVIDER"); v != "" {
		cfg.Data.Provider = v
	}

	// Store
	if v := os.Getenv("ADVISOR_DB_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("ADVISOR_DB_DSN"); v != "" {
		cfg.Store.DSN = v
	}

	if v := os.Getenv("ADVISOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", apperrors.ErrConfigInvalid, fmt.Sprintf(format, args...))
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// LLM
	if strings.TrimSpace(c.LLM.Model) == "" {
		return invalid("llm.model is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return invalid("llm.temperature must be between 0 and 2")
	}
	if c.LLM.MaxTokens <= 0 {
		return invalid("llm.max_tokens must be positive")
	}
	if c.LLM.BreakerThreshold < 0 {
		return invalid("llm.breaker_threshold must be non-negative")
	}

	// Market data
	switch c.Data.Provider {
	case ProviderYahoo:
	case ProviderREST:
		if c.Data.BaseURL == "" {
			return invalid("data.base_url is required for the rest provider")
		}
	default:
		return invalid("unknown data.provider %q (must be 'yahoo' or 'rest')", c.Data.Provider)
	}
	if c.Data.HistoryDays <= 0 {
		return invalid("data.history_days must be positive")
	}
	if c.Data.RequestsPerSecond < 0 {
		return invalid("data.requests_per_second must be non-negative")
	}

	// Indicators
	ind := c.Indicators
	if ind.MAShort <= 0 || ind.MALong <= 0 || ind.BollingerPeriod <= 0 || ind.VolumePeriod <= 0 {
		return invalid("indicator periods must be positive")
	}
	if ind.MAShort >= ind.MALong {
		return invalid("indicators.ma_short must be less than indicators.ma_long")
	}
	for _, p := range ind.MomentumPeriods {
		if p <= 0 {
			return invalid("indicators.momentum_periods must be positive")
		}
	}

	// Screening
	scr := c.Screening
	if scr.MinPrice < 0 || scr.MaxPrice < 0 {
		return invalid("screening price bounds must be non-negative")
	}
	if scr.MinPrice > 0 && scr.MaxPrice > 0 && scr.MinPrice > scr.MaxPrice {
		return invalid("screening.min_price must not exceed screening.max_price")
	}
	if scr.MomentumPeriod < 0 {
		return invalid("screening.momentum_period must be non-negative")
	}
	if scr.MomentumPeriod > 0 && !containsInt(ind.MomentumPeriods, scr.MomentumPeriod) {
		return invalid("screening.momentum_period %d is not in indicators.momentum_periods %v",
			scr.MomentumPeriod, ind.MomentumPeriods)
	}

	// Pipeline
	if c.Pipeline.Concurrency <= 0 {
		return invalid("pipeline.concurrency must be at least 1")
	}
	if c.Pipeline.MinConfidence < 0 || c.Pipeline.MinConfidence > 100 {
		return invalid("pipeline.min_confidence must be between 0 and 100")
	}
	if c.Pipeline.DefaultStopLossPercent < 0 || c.Pipeline.DefaultStopLossPercent >= 100 {
		return invalid("pipeline.default_stop_loss_percent must be in [0, 100)")
	}
	if c.Pipeline.MaxAICalls < 0 {
		return invalid("pipeline.max_ai_calls must be non-negative")
	}

	// Store
	switch c.Store.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		return invalid("unknown store.driver %q (must be 'sqlite3' or 'postgres')", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return invalid("store.dsn is required")
	}

	// Schedule
	for name, spec := range map[string]string{
		"schedule.refresh_cron": c.Schedule.RefreshCron,
		"schedule.analyze_cron": c.Schedule.AnalyzeCron,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return invalid("%s: %v", name, err)
		}
	}
	if c.Schedule.Timezone != "" {
		if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
			return invalid("schedule.timezone: %v", err)
		}
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
		return invalid("logging.level: %v", err)
	}

	return nil
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// ValidateForAnalysis checks the settings needed to call the backend.
// A custom base URL may point at a local server that takes no key.
func (c *Config) ValidateForAnalysis() error {
	if c.Credentials.OpenAI.APIKey == "" && c.LLM.BaseURL == "" {
		return invalid("openai api_key is required (credentials.toml or OPENAI_API_KEY)")
	}
	return nil
}

// OpenAI returns the backend client configuration.
func (c *Config) OpenAI() agents.OpenAIConfig {
	return agents.OpenAIConfig{
		APIKey:   c.Credentials.OpenAI.APIKey,
		BaseURL:  c.LLM.BaseURL,
		Model:    c.LLM.Model,
		Timeout:  c.LLM.Timeout,
		JSONMode: c.LLM.JSONMode,
	}
}

// Breaker returns the backend circuit breaker settings.
func (c *Config) Breaker() resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		FailureThreshold: c.LLM.BreakerThreshold,
		Cooldown:         c.LLM.BreakerCooldown,
	}
}

// KeywordTable loads the configured fallback keyword table. It returns nil
// when no file is configured, selecting the embedded table.
func (c *Config) KeywordTable() (*signal.KeywordTable, error) {
	path := strings.TrimSpace(c.Signal.KeywordsFile)
	if path == "" {
		return nil, nil
	}
	if !filepath.IsAbs(path) && c.Dir != "" {
		path = filepath.Join(c.Dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, invalid("signal.keywords_file: %v", err)
	}
	table, err := signal.LoadKeywordTable(data)
	if err != nil {
		return nil, invalid("signal.keywords_file %s: %v", path, err)
	}
	return table, nil
}

// Synthesizer returns the generation parameters.
func (c *Config) Synthesizer() agents.SynthesizerConfig {
	return agents.SynthesizerConfig{
		Temperature: c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
	}
}

// PipelineConfig returns the orchestrator settings with the data section
// applied.
func (c *Config) PipelineConfig() pipeline.Config {
	p := c.Pipeline
	p.HistoryDays = c.Data.HistoryDays
	p.FetchTimeout = c.Data.FetchTimeout
	return p
}

// Yahoo returns the Yahoo adapter configuration.
func (c *Config) Yahoo() marketdata.YahooConfig {
	return marketdata.YahooConfig{Suffix: c.Data.Suffix, Timeout: c.Data.FetchTimeout}
}

// REST returns the REST adapter configuration.
func (c *Config) REST() marketdata.RESTConfig {
	return marketdata.RESTConfig{
		BaseURL:           c.Data.BaseURL,
		APIKey:            c.Credentials.MarketData.APIKey,
		Timeout:           c.Data.FetchTimeout,
		RequestsPerSecond: c.Data.RequestsPerSecond,
	}
}

// Location returns the schedule time zone, defaulting to local time.
func (c *Config) Location() *time.Location {
	if c.Schedule.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
