package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Export formats for batch files
const (
	ExportJSON = "json"
	ExportCSV  = "csv"
	ExportBoth = "both"
)

// Config holds the application configuration
type Config struct {
	// GitHub
	GitHubToken string `validate:"required"`

	// Search and filtering
	SearchLanguage    string  `validate:"required"`
	MinStars          int     `validate:"gte=0"`
	MaxIssueCloseDays float64 `validate:"gt=0"`
	MaxPRsPerRepo     int     `validate:"gte=1,lte=100"`
	IssuesPerPage     int     `validate:"gte=1,lte=100"`
	MaxIssuePages     int     `validate:"gte=1"`
	ReposPerPage      int     `validate:"gte=1,lte=100"`

	// Rate limiting
	SleepOnRateLimit time.Duration `validate:"gte=0"`
	MaxRetries       int           `validate:"gte=0"`

	// Batch execution
	BatchSize        int `validate:"gte=1"`
	TotalTargetRepos int `validate:"gte=1"`
	CheckpointEvery  int `validate:"gte=1"`

	// Output
	ExportFormat string `validate:"oneof=json csv both"`
	DataDir      string `validate:"required"`
	ResultsDir   string `validate:"required"`
	APICache     bool

	// Storage
	StorageType string // "file", "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string

	// API Server
	APIPort string
	APIHost string

	// CLI
	APIEndpoint string

	// Logging
	LogLevel string `validate:"oneof=debug info warn error"`
	LogFile  string
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	p := &parser{}
	dataDir := getEnv("DATA_DIR", ".data")
	cfg := &Config{
		GitHubToken:       getEnv("GITHUB_TOKEN", ""),
		SearchLanguage:    getEnv("SEARCH_LANGUAGE", "java"),
		MinStars:          p.int("MIN_STARS", 50),
		MaxIssueCloseDays: p.float("MAX_ISSUE_CLOSE_DAYS", 3.0),
		MaxPRsPerRepo:     p.int("MAX_PRS_PER_REPO", 5),
		IssuesPerPage:     p.int("ISSUES_PER_PAGE", 100),
		MaxIssuePages:     p.int("MAX_ISSUE_PAGES", 3),
		ReposPerPage:      p.int("REPOS_PER_PAGE", 100),
		SleepOnRateLimit:  time.Duration(p.int("SLEEP_ON_RATE_LIMIT", 30)) * time.Second,
		MaxRetries:        p.int("MAX_RETRIES", 5),
		BatchSize:         p.int("BATCH_SIZE", 200),
		TotalTargetRepos:  p.int("TOTAL_TARGET_REPOS", 1000),
		CheckpointEvery:   p.int("CHECKPOINT_EVERY", 25),
		ExportFormat:      strings.ToLower(getEnv("EXPORT_FORMAT", ExportBoth)),
		DataDir:           dataDir,
		ResultsDir:        getEnv("RESULTS_DIR", "results"),
		APICache:          p.bool("API_CACHE", true),
		StorageType:       getEnv("STORAGE_TYPE", "file"),
		SQLitePath:        getEnv("SQLITE_PATH", filepath.Join(dataDir, "miner.db")),
		PostgresURL:       getEnv("POSTGRES_URL", ""),
		APIPort:           getEnv("API_PORT", "8080"),
		APIHost:           getEnv("API_HOST", "localhost"),
		APIEndpoint:       getEnv("API_ENDPOINT", "http://localhost:8080"),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFile:           getEnv("LOG_FILE", filepath.Join(dataDir, "miner.log")),
	}

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	return cfg, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser collects conversion errors so that every bad variable is reported at once
type parser struct {
	errs []error
}

func (p *parser) int(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.errs = append(p.errs, &ConfigError{Field: key, Message: fmt.Sprintf("must be an integer, got %q", raw)})
		return defaultValue
	}
	return v
}

func (p *parser) float(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		p.errs = append(p.errs, &ConfigError{Field: key, Message: fmt.Sprintf("must be a number, got %q", raw)})
		return defaultValue
	}
	return v
}

func (p *parser) bool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		p.errs = append(p.errs, &ConfigError{Field: key, Message: fmt.Sprintf("must be a boolean, got %q", raw)})
		return defaultValue
	}
	return v
}

// envNames maps struct fields to the environment variables they come from
var envNames = map[string]string{
	"GitHubToken":       "GITHUB_TOKEN",
	"SearchLanguage":    "SEARCH_LANGUAGE",
	"MinStars":          "MIN_STARS",
	"MaxIssueCloseDays": "MAX_ISSUE_CLOSE_DAYS",
	"MaxPRsPerRepo":     "MAX_PRS_PER_REPO",
	"IssuesPerPage":     "ISSUES_PER_PAGE",
	"MaxIssuePages":     "MAX_ISSUE_PAGES",
	"ReposPerPage":      "REPOS_PER_PAGE",
	"SleepOnRateLimit":  "SLEEP_ON_RATE_LIMIT",
	"MaxRetries":        "MAX_RETRIES",
	"BatchSize":         "BATCH_SIZE",
	"TotalTargetRepos":  "TOTAL_TARGET_REPOS",
	"CheckpointEvery":   "CHECKPOINT_EVERY",
	"ExportFormat":      "EXPORT_FORMAT",
	"DataDir":           "DATA_DIR",
	"ResultsDir":        "RESULTS_DIR",
	"LogLevel":          "LOG_LEVEL",
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			field := envNames[fe.Field()]
			if field == "" {
				field = fe.Field()
			}
			return &ConfigError{Field: field, Message: fmt.Sprintf("failed %q check (value %v)", fe.Tag(), fe.Value())}
		}
		return err
	}
	if c.StorageType != "file" && c.StorageType != "sqlite" && c.StorageType != "postgres" {
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'file', 'sqlite' or 'postgres'"}
	}
	if c.StorageType == "postgres" && c.PostgresURL == "" {
		return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
	}
	return nil
}

// Hash returns a stable fingerprint of the settings that define which
// repositories a run accepts. Target count and batch size are left out so
// that a finished run can be extended.
func (c *Config) Hash() string {
	params := struct {
		Language          string  `json:"language"`
		MinStars          int     `json:"min_stars"`
		MaxIssueCloseDays float64 `json:"max_issue_close_days"`
		MaxPRsPerRepo     int     `json:"max_prs_per_repo"`
	}{
		Language:          strings.ToLower(c.SearchLanguage),
		MinStars:          c.MinStars,
		MaxIssueCloseDays: c.MaxIssueCloseDays,
		MaxPRsPerRepo:     c.MaxPRsPerRepo,
	}
	data, _ := json.Marshal(params)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// WritesCSV reports whether batch files get a CSV companion.
// The JSON batch file is always written since consolidation reads it.
func (c *Config) WritesCSV() bool {
	return c.ExportFormat == ExportCSV || c.ExportFormat == ExportBoth
}

// BatchesDir is where batch files are written
func (c *Config) BatchesDir() string {
	return filepath.Join(c.ResultsDir, "batches")
}

// PartialDir holds the consolidated outputs
func (c *Config) PartialDir() string {
	return filepath.Join(c.ResultsDir, "partial")
}

// FinalDir holds the categorized dataset
func (c *Config) FinalDir() string {
	return filepath.Join(c.ResultsDir, "final")
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
