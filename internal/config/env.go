// Package config defines environment variable keys for configuration.
package config

//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// Transports (at least one required in server mode)
	EnvTelegramBotToken       = "TELEGRAM_BOT_TOKEN"
	EnvTelegramAPIEndpoint    = "TELEGRAM_API_ENDPOINT"
	EnvTelegramWorkers        = "TELEGRAM_WORKERS"
	EnvLineChannelAccessToken = "LINE_CHANNEL_ACCESS_TOKEN"
	EnvLineChannelSecret      = "LINE_CHANNEL_SECRET"

	// Server
	EnvPort            = "PORT"
	EnvLogLevel        = "LOG_LEVEL"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
	EnvWebhookTimeout  = "WEBHOOK_TIMEOUT"

	// Data
	EnvDataDir = "DATA_DIR"

	// Catalogue presentation
	EnvLocalCity       = "LOCAL_CITY"
	EnvMenuGlyphs      = "MENU_GLYPHS"
	EnvResultLimit     = "RESULT_LIMIT"
	EnvMaxMessageRunes = "MAX_MESSAGE_RUNES"

	// Rate Limits
	EnvGlobalRateRPS  = "GLOBAL_RATE_RPS"
	EnvUserRateBurst  = "USER_RATE_BURST"
	EnvUserRateRefill = "USER_RATE_REFILL"

	// R2 Snapshot Feature
	EnvR2Enabled         = "R2_ENABLED"
	EnvR2Endpoint        = "R2_ENDPOINT"
	EnvR2AccessKeyID     = "R2_ACCESS_KEY_ID"
	EnvR2SecretAccessKey = "R2_SECRET_ACCESS_KEY"
	EnvR2BucketName      = "R2_BUCKET_NAME"
	EnvR2SnapshotKey     = "R2_SNAPSHOT_KEY"
	EnvR2LockKey         = "R2_LOCK_KEY"
	EnvR2LockTTL         = "R2_LOCK_TTL"
	EnvR2PollInterval    = "R2_POLL_INTERVAL"

	// Sentry Feature
	EnvSentryToken       = "SENTRY_DSN_TOKEN"
	EnvSentryHost        = "SENTRY_HOST"
	EnvSentryEnvironment = "SENTRY_ENVIRONMENT"
	EnvSentrySampleRate  = "SENTRY_SAMPLE_RATE"

	// Better Stack Feature
	EnvBetterStackToken    = "BETTERSTACK_SOURCE_TOKEN"
	EnvBetterStackEndpoint = "BETTERSTACK_ENDPOINT"

	// Metrics Auth Feature
	EnvMetricsUsername = "METRICS_USERNAME"
	EnvMetricsPassword = "METRICS_PASSWORD"
)
