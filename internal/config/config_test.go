package config

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "token")
	t.Setenv("DATA_DIR", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "token", cfg.GitHubToken)
	assert.Equal(t, "java", cfg.SearchLanguage)
	assert.Equal(t, 50, cfg.MinStars)
	assert.Equal(t, 3.0, cfg.MaxIssueCloseDays)
	assert.Equal(t, 200, cfg.BatchSize)
	assert.Equal(t, 1000, cfg.TotalTargetRepos)
	assert.Equal(t, 30*time.Second, cfg.SleepOnRateLimit)
	assert.Equal(t, "file", cfg.StorageType)
	assert.Equal(t, filepath.Join(".data", "miner.db"), cfg.SQLitePath)
	assert.Equal(t, filepath.Join("results", "batches"), cfg.BatchesDir())
	assert.True(t, cfg.WritesCSV())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "token")
	t.Setenv("SEARCH_LANGUAGE", "go")
	t.Setenv("MIN_STARS", "500")
	t.Setenv("MAX_ISSUE_CLOSE_DAYS", "7.5")
	t.Setenv("BATCH_SIZE", "10")
	t.Setenv("TOTAL_TARGET_REPOS", "40")
	t.Setenv("EXPORT_FORMAT", "JSON")
	t.Setenv("API_CACHE", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "go", cfg.SearchLanguage)
	assert.Equal(t, 500, cfg.MinStars)
	assert.Equal(t, 7.5, cfg.MaxIssueCloseDays)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 40, cfg.TotalTargetRepos)
	assert.Equal(t, ExportJSON, cfg.ExportFormat)
	assert.False(t, cfg.WritesCSV())
	assert.False(t, cfg.APICache)
}

func TestLoad_InvalidNumbers(t *testing.T) {
	t.Setenv("MIN_STARS", "lots")
	t.Setenv("MAX_ISSUE_CLOSE_DAYS", "soon")

	cfg, err := Load()
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIN_STARS")
	assert.Contains(t, err.Error(), "MAX_ISSUE_CLOSE_DAYS")

	var cfgErr *ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func validConfig() *Config {
	return &Config{
		GitHubToken:       "token",
		SearchLanguage:    "java",
		MinStars:          50,
		MaxIssueCloseDays: 3,
		MaxPRsPerRepo:     5,
		IssuesPerPage:     100,
		MaxIssuePages:     3,
		ReposPerPage:      100,
		SleepOnRateLimit:  time.Second,
		MaxRetries:        3,
		BatchSize:         10,
		TotalTargetRepos:  100,
		CheckpointEvery:   5,
		ExportFormat:      ExportBoth,
		DataDir:           ".data",
		ResultsDir:        "results",
		StorageType:       "file",
		LogLevel:          "info",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"missing token", func(c *Config) { c.GitHubToken = "" }, "GITHUB_TOKEN"},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, "BATCH_SIZE"},
		{"zero target", func(c *Config) { c.TotalTargetRepos = 0 }, "TOTAL_TARGET_REPOS"},
		{"negative stars", func(c *Config) { c.MinStars = -1 }, "MIN_STARS"},
		{"non-positive close days", func(c *Config) { c.MaxIssueCloseDays = 0 }, "MAX_ISSUE_CLOSE_DAYS"},
		{"page size above api maximum", func(c *Config) { c.ReposPerPage = 101 }, "REPOS_PER_PAGE"},
		{"unknown export format", func(c *Config) { c.ExportFormat = "xml" }, "EXPORT_FORMAT"},
		{"unknown storage", func(c *Config) { c.StorageType = "redis" }, "STORAGE_TYPE"},
		{"postgres without url", func(c *Config) { c.StorageType = "postgres" }, "POSTGRES_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	assert.NoError(t, validConfig().Validate())
}

func TestHash(t *testing.T) {
	a := validConfig()
	b := validConfig()
	assert.Equal(t, a.Hash(), b.Hash())

	t.Run("ignores target and batch size", func(t *testing.T) {
		b.TotalTargetRepos = 5000
		b.BatchSize = 1
		assert.Equal(t, a.Hash(), b.Hash())
	})

	t.Run("changes with search settings", func(t *testing.T) {
		c := validConfig()
		c.MinStars = 51
		assert.NotEqual(t, a.Hash(), c.Hash())

		d := validConfig()
		d.SearchLanguage = "go"
		assert.NotEqual(t, a.Hash(), d.Hash())
	})

	t.Run("language is case insensitive", func(t *testing.T) {
		e := validConfig()
		e.SearchLanguage = "Java"
		assert.Equal(t, a.Hash(), e.Hash())
	})
}

func TestFanoutLogger(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := fanoutLogger(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("batch saved", "batch", 3)

	assert.Contains(t, stderr.String(), "batch saved")
	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, file.String(), `"batch":3`)
}

func TestSetupLogger_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "miner.log")

	logger, cleanup := SetupLogger(path, slog.LevelInfo)
	logger.Info("hello")
	require.NoError(t, cleanup())

	assert.FileExists(t, path)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("anything"))
}
