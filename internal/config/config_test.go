package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "stock-advisor/internal/errors"
)

func TestLoad_CreatesTemplatesAndUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.FileExists(t, ConfigPath(dir))
	assert.FileExists(t, CredentialsPath(dir))
	info, err := os.Stat(CredentialsPath(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 5, cfg.Breaker().FailureThreshold)
	assert.Equal(t, 2*time.Minute, cfg.Breaker().Cooldown)
	assert.Equal(t, ProviderYahoo, cfg.Data.Provider)
	assert.Equal(t, 20, cfg.Indicators.MAShort)
	assert.Equal(t, []int{5, 20, 60}, cfg.Indicators.MomentumPeriods)
	assert.Equal(t, 70.0, cfg.Pipeline.MinConfidence)
	assert.Equal(t, filepath.Join(dir, "advisor.db"), cfg.Store.DSN)
	assert.Equal(t, []string{"FPT", "HPG", "VNM", "MWG", "VCB"}, cfg.Pipeline.Watchlist)
	assert.Equal(t, dir, cfg.Dir)
}

func TestLoad_ReadsFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	content := `
[llm]
model = "local-model"
temperature = 0.1
timeout = "5s"

[data]
provider = "rest"
base_url = "http://vendor.local"
history_days = 200
fetch_timeout = "3s"

[indicators]
ma_short = 10
ma_long = 30
momentum_periods = [10]

[pipeline]
concurrency = 8
max_ai_calls = 20
watchlist = ["ACB"]
`
	require.NoError(t, os.WriteFile(ConfigPath(dir), []byte(content), 0644))
	require.NoError(t, os.WriteFile(CredentialsPath(dir), []byte("[openai]\napi_key = \"file-key\"\n"), 0600))

	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("ADVISOR_DB_DSN", "/tmp/other.db")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "local-model", cfg.LLM.Model)
	assert.InDelta(t, 0.1, float64(cfg.LLM.Temperature), 1e-6)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 1200, cfg.LLM.MaxTokens, "unset keys keep defaults")
	assert.Equal(t, []int{10}, cfg.Indicators.MomentumPeriods)
	assert.Equal(t, 20, cfg.Pipeline.MaxAICalls)
	assert.Equal(t, "env-key", cfg.Credentials.OpenAI.APIKey)
	assert.Equal(t, "/tmp/other.db", cfg.Store.DSN)

	p := cfg.PipelineConfig()
	assert.Equal(t, 200, p.HistoryDays)
	assert.Equal(t, 3*time.Second, p.FetchTimeout)
	assert.Equal(t, []string{"ACB"}, p.Watchlist)

	rest := cfg.REST()
	assert.Equal(t, "http://vendor.local", rest.BaseURL)
	assert.Equal(t, 3*time.Second, rest.Timeout)

	assert.Equal(t, "env-key", cfg.OpenAI().APIKey)
	assert.NoError(t, cfg.ValidateForAnalysis())
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(ConfigPath(dir), []byte("[store]\ndriver = \"mysql\"\n"), 0644))

	_, err := Load(dir)
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty model", func(c *Config) { c.LLM.Model = "" }},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }},
		{"max tokens", func(c *Config) { c.LLM.MaxTokens = 0 }},
		{"breaker", func(c *Config) { c.LLM.BreakerThreshold = -1 }},
		{"provider", func(c *Config) { c.Data.Provider = "bloomberg" }},
		{"rest without url", func(c *Config) { c.Data.Provider = ProviderREST }},
		{"history", func(c *Config) { c.Data.HistoryDays = 0 }},
		{"ma order", func(c *Config) { c.Indicators.MAShort = 60 }},
		{"momentum", func(c *Config) { c.Indicators.MomentumPeriods = []int{5, 0} }},
		{"concurrency", func(c *Config) { c.Pipeline.Concurrency = 0 }},
		{"min confidence", func(c *Config) { c.Pipeline.MinConfidence = 101 }},
		{"stop loss", func(c *Config) { c.Pipeline.DefaultStopLossPercent = 100 }},
		{"driver", func(c *Config) { c.Store.Driver = "mysql" }},
		{"dsn", func(c *Config) { c.Store.DSN = "" }},
		{"price bounds", func(c *Config) { c.Screening.MinPrice, c.Screening.MaxPrice = 50, 10 }},
		{"screening momentum period", func(c *Config) { c.Screening.MomentumPeriod = 7 }},
		{"cron", func(c *Config) { c.Schedule.RefreshCron = "every minute" }},
		{"timezone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	require.NoError(t, Default().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), apperrors.ErrConfigInvalid)
		})
	}
}

func TestLoad_ScreeningAndKeywordTable(t *testing.T) {
	dir := t.TempDir()
	content := `
[screening]
min_price = 10.0
momentum_period = 20
min_momentum = 2.5

[signal]
keywords_file = "keywords.yaml"
`
	require.NoError(t, os.WriteFile(ConfigPath(dir), []byte(content), 0644))
	table := "version: 7\nbuy: [long]\nsell: [short]\nhold: [wait]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keywords.yaml"), []byte(table), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Screening.MomentumPeriod)
	filters := cfg.Screening.Filters()
	last := filters[len(filters)-1]
	assert.Equal(t, "momentum(20) >= 2.5", last.String())

	keywords, err := cfg.KeywordTable()
	require.NoError(t, err)
	require.NotNil(t, keywords)
	assert.Equal(t, 7, keywords.Version)
	assert.Equal(t, []string{"short"}, keywords.Sell)

	cfg.Signal.KeywordsFile = ""
	keywords, err = cfg.KeywordTable()
	require.NoError(t, err)
	assert.Nil(t, keywords, "empty path selects the embedded table")
}

func TestLoad_BadKeywordTable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(ConfigPath(dir), []byte("[signal]\nkeywords_file = \"missing.yaml\"\n"), 0644))
	_, err := Load(dir)
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "missing.yaml"), []byte("version: 1\nbuy: [x]\nsell: [x]\nhold: [z]\n"), 0644))
	_, err = Load(dir)
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
}

func TestValidateForAnalysis(t *testing.T) {
	cfg := Default()
	assert.ErrorIs(t, cfg.ValidateForAnalysis(), apperrors.ErrConfigInvalid)

	cfg.LLM.BaseURL = "http://localhost:11434/v1"
	assert.NoError(t, cfg.ValidateForAnalysis())
}

func TestWriteTemplates_KeepsExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(ConfigPath(dir), []byte("# mine\n"), 0644))

	require.NoError(t, WriteTemplates(dir))

	data, err := os.ReadFile(ConfigPath(dir))
	require.NoError(t, err)
	assert.Equal(t, "# mine\n", string(data))
	assert.FileExists(t, CredentialsPath(dir))
}
