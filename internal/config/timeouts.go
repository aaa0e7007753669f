// Package config provides centralized timeout constants for the application.
//
// Telegram long polling and the LINE webhook have different timing needs:
//   - Telegram: the bot pulls updates, a long-poll request stays open for TelegramPollTimeout
//   - LINE: the platform expects a quick 200 OK, events are then handled asynchronously
//
// Catalogue queries are local SQLite reads, so the handler timeout mostly bounds
// outbound API calls rather than storage.
package config

import "time"

// Webhook timeouts
const (
	// WebhookProcessing is the timeout for handling a single inbound action,
	// including catalogue queries and message delivery.
	WebhookProcessing = 60 * time.Second

	// WebhookHTTPRead is the HTTP server read timeout for webhook requests.
	// Should be short since LINE sends small JSON payloads.
	WebhookHTTPRead = 10 * time.Second

	// WebhookHTTPWrite is the HTTP server write timeout.
	// Should accommodate WebhookProcessing + response serialization.
	WebhookHTTPWrite = 65 * time.Second

	// WebhookHTTPIdle is the HTTP server idle timeout for keep-alive connections.
	WebhookHTTPIdle = 120 * time.Second
)

// Telegram timeouts
const (
	// TelegramPollTimeout is the long-poll timeout in seconds sent to getUpdates.
	TelegramPollTimeout = 60
)

// Database timeouts
const (
	// DatabaseBusyTimeout is SQLite busy_timeout pragma value.
	// Covers the short window where a catalogue import holds the write lock.
	DatabaseBusyTimeout = 5 * time.Second

	// DatabaseConnMaxLifetime is the maximum lifetime of database connections.
	DatabaseConnMaxLifetime = time.Hour

	// ReadinessCheckTimeout bounds the /readyz database probe.
	ReadinessCheckTimeout = 3 * time.Second
)

// Background job intervals
const (
	// MetricsUpdateInterval is how often catalogue size gauges are refreshed.
	MetricsUpdateInterval = 5 * time.Minute

	// RateLimiterCleanupInterval is how often inactive user rate limiters are cleaned.
	RateLimiterCleanupInterval = 5 * time.Minute

	// SnapshotPollInterval is the default interval between R2 ETag checks.
	SnapshotPollInterval = 5 * time.Minute

	// SnapshotDownload bounds a single snapshot download and decompress.
	SnapshotDownload = 2 * time.Minute
)

// Graceful shutdown
const (
	// GracefulShutdown is the timeout for graceful server shutdown.
	// Allows in-flight requests to complete before forceful termination.
	GracefulShutdown = 30 * time.Second

	// SentryFlush bounds the wait for buffered error reports on exit.
	SentryFlush = 2 * time.Second
)
