// Package config provides application configuration management.
// It loads settings from environment variables (optionally seeded from a .env file)
// and provides defaults for the server, the catalogue presentation and the
// optional R2, Sentry and Better Stack integrations.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ValidationMode selects which settings are required.
type ValidationMode int

const (
	// ServerMode requires at least one configured transport.
	ServerMode ValidationMode = iota
	// CLIMode is used by cmd/catalogue and needs no transport credentials.
	CLIMode
)

// String returns the mode name for logs and errors.
func (m ValidationMode) String() string {
	switch m {
	case ServerMode:
		return "server"
	case CLIMode:
		return "cli"
	default:
		return "unknown"
	}
}

// Config holds all application configuration
type Config struct {
	// Telegram Bot Configuration
	TelegramToken       string
	TelegramAPIEndpoint string // Bot API endpoint format, empty = library default
	TelegramWorkers     int    // Concurrent update handlers

	// LINE Bot Configuration
	LineChannelToken  string
	LineChannelSecret string

	// Metrics Authentication
	MetricsUsername string // Username for /metrics endpoint Basic Auth (default: "prometheus")
	MetricsPassword string // Password for /metrics endpoint Basic Auth (empty = no auth)

	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Data Configuration
	DataDir string // Data directory for the SQLite catalogue

	Catalogue CatalogueConfig
	Bot       BotConfig
	R2        R2Config
	Sentry    SentryConfig

	// Better Stack log shipping (empty token = disabled)
	BetterStackToken    string
	BetterStackEndpoint string
}

// CatalogueConfig holds presentation settings for the catalogue menu.
type CatalogueConfig struct {
	LocalCity       string   // City listed first in results (default: Москва)
	Glyphs          []string // Menu glyph table, nil = built-in table
	ResultLimit     int      // Universities shown per specialty (default: 8)
	MaxMessageRunes int      // Split threshold for result messages (default: 4000)
}

// BotConfig holds transport-level limits shared by both bots.
type BotConfig struct {
	WebhookTimeout time.Duration // Timeout for handling one inbound action

	// Rate Limits (Token Bucket Algorithm)
	UserRateBurst  float64 // Maximum burst tokens per user (default: 15)
	UserRateRefill float64 // Tokens refilled per second (default: 0.5)
	GlobalRateRPS  float64 // Outbound API requests per second (default: 25)

	// LINE API Constraints
	MaxMessagesPerReply int // LINE API limit: 5
	MaxEventsPerWebhook int // Default: 100
	MinReplyTokenLength int // Default: 10
}

// R2Config configures catalogue snapshot distribution through Cloudflare R2.
type R2Config struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	SnapshotKey     string
	LockKey         string
	LockTTL         time.Duration
	PollInterval    time.Duration
}

// SentryConfig configures error reporting. An empty token disables Sentry.
type SentryConfig struct {
	Token       string
	Host        string
	Environment string
	SampleRate  float64
}

// Load reads the server configuration from environment variables.
func Load() (*Config, error) {
	return LoadForMode(ServerMode)
}

// LoadForMode reads configuration and validates it for the given mode.
// It attempts to load .env file first, then reads from env vars.
func LoadForMode(mode ValidationMode) (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		TelegramToken:       getEnv(EnvTelegramBotToken, ""),
		TelegramAPIEndpoint: getEnv(EnvTelegramAPIEndpoint, ""),
		TelegramWorkers:     getIntEnv(EnvTelegramWorkers, 8),

		LineChannelToken:  getEnv(EnvLineChannelAccessToken, ""),
		LineChannelSecret: getEnv(EnvLineChannelSecret, ""),

		MetricsUsername: getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword: getEnv(EnvMetricsPassword, ""),

		Port:            getEnv(EnvPort, "10000"),
		LogLevel:        getEnv(EnvLogLevel, "info"),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, GracefulShutdown),

		DataDir: getEnv(EnvDataDir, getDefaultDataDir()),

		Catalogue: CatalogueConfig{
			LocalCity:       getEnv(EnvLocalCity, "Москва"),
			Glyphs:          getListEnv(EnvMenuGlyphs),
			ResultLimit:     getIntEnv(EnvResultLimit, 8),
			MaxMessageRunes: getIntEnv(EnvMaxMessageRunes, 4000),
		},

		Bot: BotConfig{
			WebhookTimeout:      getDurationEnv(EnvWebhookTimeout, WebhookProcessing),
			UserRateBurst:       getFloatEnv(EnvUserRateBurst, 15.0),
			UserRateRefill:      getFloatEnv(EnvUserRateRefill, 0.5),
			GlobalRateRPS:       getFloatEnv(EnvGlobalRateRPS, 25.0),
			MaxMessagesPerReply: 5,
			MaxEventsPerWebhook: 100,
			MinReplyTokenLength: 10,
		},

		R2: R2Config{
			Enabled:         getBoolEnv(EnvR2Enabled, false),
			Endpoint:        getEnv(EnvR2Endpoint, ""),
			AccessKeyID:     getEnv(EnvR2AccessKeyID, ""),
			SecretAccessKey: getEnv(EnvR2SecretAccessKey, ""),
			BucketName:      getEnv(EnvR2BucketName, ""),
			SnapshotKey:     getEnv(EnvR2SnapshotKey, "snapshots/catalogue.db.zst"),
			LockKey:         getEnv(EnvR2LockKey, "locks/catalogue.lock"),
			LockTTL:         getDurationEnv(EnvR2LockTTL, 10*time.Minute),
			PollInterval:    getDurationEnv(EnvR2PollInterval, SnapshotPollInterval),
		},

		Sentry: SentryConfig{
			Token:       getEnv(EnvSentryToken, ""),
			Host:        getEnv(EnvSentryHost, ""),
			Environment: getEnv(EnvSentryEnvironment, "production"),
			SampleRate:  getFloatEnv(EnvSentrySampleRate, 1.0),
		},

		BetterStackToken:    getEnv(EnvBetterStackToken, ""),
		BetterStackEndpoint: getEnv(EnvBetterStackEndpoint, ""),
	}

	if err := cfg.ValidateForMode(mode); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for server mode.
func (c *Config) Validate() error {
	return c.ValidateForMode(ServerMode)
}

// ValidateForMode checks if required configuration values are set
func (c *Config) ValidateForMode(mode ValidationMode) error {
	var errs []error

	if mode == ServerMode {
		if !c.HasTelegram() && !c.HasLine() {
			errs = append(errs, fmt.Errorf("%s or %s/%s is required",
				EnvTelegramBotToken, EnvLineChannelAccessToken, EnvLineChannelSecret))
		}
		if (c.LineChannelToken == "") != (c.LineChannelSecret == "") {
			errs = append(errs, fmt.Errorf("%s and %s must be set together",
				EnvLineChannelAccessToken, EnvLineChannelSecret))
		}
		if c.Port == "" {
			errs = append(errs, fmt.Errorf("%s is required", EnvPort))
		}
		if c.TelegramWorkers <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", EnvTelegramWorkers, c.TelegramWorkers))
		}
		if err := c.Bot.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("bot config: %w", err))
		}
	}

	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvDataDir))
	}
	if err := c.Catalogue.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("catalogue config: %w", err))
	}
	if c.R2.Enabled {
		if err := c.R2.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("r2 config: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks catalogue presentation settings.
func (c CatalogueConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.LocalCity) == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvLocalCity))
	}
	if c.ResultLimit <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", EnvResultLimit, c.ResultLimit))
	}
	if c.MaxMessageRunes < 100 {
		errs = append(errs, fmt.Errorf("%s must be at least 100, got %d", EnvMaxMessageRunes, c.MaxMessageRunes))
	}
	return errors.Join(errs...)
}

// Validate checks transport limits.
func (c BotConfig) Validate() error {
	var errs []error
	if c.WebhookTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvWebhookTimeout, c.WebhookTimeout))
	}
	if c.UserRateBurst <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvUserRateBurst, c.UserRateBurst))
	}
	if c.UserRateRefill <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvUserRateRefill, c.UserRateRefill))
	}
	if c.GlobalRateRPS <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvGlobalRateRPS, c.GlobalRateRPS))
	}
	return errors.Join(errs...)
}

// Validate checks that every R2 credential is present.
func (c R2Config) Validate() error {
	var errs []error
	required := map[string]string{
		EnvR2Endpoint:        c.Endpoint,
		EnvR2AccessKeyID:     c.AccessKeyID,
		EnvR2SecretAccessKey: c.SecretAccessKey,
		EnvR2BucketName:      c.BucketName,
		EnvR2SnapshotKey:     c.SnapshotKey,
	}
	for _, key := range []string{EnvR2Endpoint, EnvR2AccessKeyID, EnvR2SecretAccessKey, EnvR2BucketName, EnvR2SnapshotKey} {
		if required[key] == "" {
			errs = append(errs, fmt.Errorf("%s is required when %s=true", key, EnvR2Enabled))
		}
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvR2PollInterval, c.PollInterval))
	}
	return errors.Join(errs...)
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getBoolEnv retrieves boolean environment variable with fallback to default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated variable, dropping empty items.
// Returns nil when the variable is unset.
func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var items []string
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getDefaultDataDir returns platform-specific default data directory
func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}

// SQLitePath returns the full path to the SQLite catalogue file
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "catalogue.db")
}

// HasTelegram reports whether the Telegram transport is configured.
func (c *Config) HasTelegram() bool {
	return c.TelegramToken != ""
}

// HasLine reports whether the LINE transport is configured.
func (c *Config) HasLine() bool {
	return c.LineChannelToken != "" && c.LineChannelSecret != ""
}
