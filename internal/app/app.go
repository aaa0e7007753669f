// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyellow/unibot-go/internal/bot"
	"github.com/garyellow/unibot-go/internal/buildinfo"
	"github.com/garyellow/unibot-go/internal/config"
	"github.com/garyellow/unibot-go/internal/ctxutil"
	"github.com/garyellow/unibot-go/internal/logger"
	"github.com/garyellow/unibot-go/internal/metrics"
	"github.com/garyellow/unibot-go/internal/modules/catalogue"
	"github.com/garyellow/unibot-go/internal/r2client"
	"github.com/garyellow/unibot-go/internal/ratelimit"
	"github.com/garyellow/unibot-go/internal/sentry"
	"github.com/garyellow/unibot-go/internal/snapshot"
	"github.com/garyellow/unibot-go/internal/storage"
	"github.com/garyellow/unibot-go/internal/telegram"
	"github.com/garyellow/unibot-go/internal/webhook"
)

const repositoryURL = "https://github.com/garyellow/unibot-go"

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg            *config.Config
	logger         *logger.Logger
	db             *storage.HotSwapDB
	metrics        *metrics.Metrics
	registry       *prometheus.Registry
	processor      *bot.Processor
	userLimiter    *ratelimit.KeyedLimiter
	webhookHandler *webhook.Handler  // nil when LINE is not configured
	poller         *telegram.Poller  // nil when Telegram is not configured
	snapshots      *snapshot.Manager // nil when R2 is disabled
	router         *gin.Engine
	server         *http.Server
	wg             sync.WaitGroup // Track background goroutines for graceful shutdown
}

// Initialize creates and wires all application components.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, logger.Options{
		BetterStackToken:    cfg.BetterStackToken,
		BetterStackEndpoint: cfg.BetterStackEndpoint,
	})

	log = log.WithField("service", "unibot-go")
	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.WithField("instance_id", host)
	}

	// Package-level slog.*Context() calls pick up user/chat/request IDs.
	slog.SetDefault(log.Logger)

	log.WithField("version", buildinfo.Version).
		WithField("commit", buildinfo.Commit).
		WithField("build_date", buildinfo.BuildDate).
		Info("Initializing application...")
	if cfg.BetterStackToken != "" {
		log.WithField("endpoint", cfg.BetterStackEndpoint).Info("Better Stack logging enabled")
	}

	if err := sentry.Initialize(sentry.Config{
		Token:       cfg.Sentry.Token,
		Host:        cfg.Sentry.Host,
		Environment: cfg.Sentry.Environment,
		Release:     buildinfo.Version,
		SampleRate:  cfg.Sentry.SampleRate,
	}); err != nil {
		log.WithError(err).Warn("Sentry initialization failed, error reporting disabled")
	} else if sentry.IsEnabled() {
		log.WithField("host", cfg.Sentry.Host).Info("Sentry error reporting enabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry)

	var snapshots *snapshot.Manager
	if cfg.R2.Enabled {
		var err error
		if snapshots, err = newSnapshotManager(ctx, cfg, log, m); err != nil {
			return nil, err
		}
		if err := snapshots.Bootstrap(ctx, cfg.SQLitePath()); err != nil {
			if !errors.Is(err, snapshot.ErrNotFound) {
				return nil, fmt.Errorf("snapshot bootstrap: %w", err)
			}
			log.Warn("No catalogue snapshot published yet, using local database")
		}
	}

	db, err := storage.NewHotSwapDB(ctx, cfg.SQLitePath(), cfg.Catalogue.LocalCity)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	db.SetMetrics(m)
	log.WithField("path", cfg.SQLitePath()).Info("Database connected")

	handler := catalogue.NewHandler(db, catalogue.Config{
		LocalCity:       cfg.Catalogue.LocalCity,
		Glyphs:          cfg.Catalogue.Glyphs,
		ResultLimit:     cfg.Catalogue.ResultLimit,
		MaxMessageRunes: cfg.Catalogue.MaxMessageRunes,
	}, log, m)

	userLimiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "user",
		Burst:         cfg.Bot.UserRateBurst,
		RefillRate:    cfg.Bot.UserRateRefill,
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Metrics:       m,
	})

	processor := bot.NewProcessor(bot.ProcessorConfig{
		Handler:     handler,
		UserLimiter: userLimiter,
		Logger:      log,
		Metrics:     m,
		BotConfig:   &cfg.Bot,
	})

	app := &Application{
		cfg:         cfg,
		logger:      log,
		db:          db,
		metrics:     m,
		registry:    registry,
		processor:   processor,
		userLimiter: userLimiter,
		snapshots:   snapshots,
	}

	if cfg.HasLine() {
		app.webhookHandler, err = webhook.NewHandler(webhook.HandlerConfig{
			ChannelSecret: cfg.LineChannelSecret,
			ChannelToken:  cfg.LineChannelToken,
			BotConfig:     &cfg.Bot,
			Metrics:       m,
			Logger:        log,
			Processor:     processor,
		})
		if err != nil {
			app.closeResources()
			return nil, fmt.Errorf("webhook handler: %w", err)
		}
		log.Info("LINE webhook handler created")
	}

	if cfg.HasTelegram() {
		app.poller, err = telegram.New(telegram.Config{
			Token:       cfg.TelegramToken,
			APIEndpoint: cfg.TelegramAPIEndpoint,
			Workers:     cfg.TelegramWorkers,
			BotConfig:   &cfg.Bot,
			Processor:   processor,
			Metrics:     m,
			Logger:      log,
		})
		if err != nil {
			app.closeResources()
			return nil, fmt.Errorf("telegram poller: %w", err)
		}
		log.Info("Telegram poller created")
	}

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	app.router = app.newRouter()

	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.router,
		ReadHeaderTimeout: config.WebhookHTTPRead,
		ReadTimeout:       config.WebhookHTTPRead,
		WriteTimeout:      config.WebhookHTTPWrite,
		IdleTimeout:       config.WebhookHTTPIdle,
	}

	log.Info("Initialization complete")
	return app, nil
}

func newSnapshotManager(ctx context.Context, cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (*snapshot.Manager, error) {
	client, err := r2client.New(ctx, r2client.Config{
		Endpoint:    cfg.R2.Endpoint,
		AccessKeyID: cfg.R2.AccessKeyID,
		SecretKey:   cfg.R2.SecretAccessKey,
		BucketName:  cfg.R2.BucketName,
	})
	if err != nil {
		return nil, fmt.Errorf("r2 client: %w", err)
	}
	return snapshot.New(client, snapshot.Config{
		SnapshotKey:  cfg.R2.SnapshotKey,
		LockKey:      cfg.R2.LockKey,
		LockTTL:      cfg.R2.LockTTL,
		PollInterval: cfg.R2.PollInterval,
		DataDir:      cfg.DataDir,

		BootstrapRetries: 3,
	}, log, m), nil
}

// newRouter builds the HTTP routes. /webhook exists only when LINE is configured.
func (a *Application) newRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	router.Use(securityHeadersMiddleware())
	router.Use(loggingMiddleware(a.logger))

	router.GET("/", a.redirectToRepository)
	router.GET("/livez", a.livenessCheck)
	router.HEAD("/livez", a.livenessCheck)
	router.GET("/readyz", a.readinessCheck)
	router.HEAD("/readyz", a.readinessCheck)
	if a.webhookHandler != nil {
		router.POST("/webhook", a.webhookHandler.Handle)
	}
	router.GET("/metrics",
		metricsAuthMiddleware(a.cfg.MetricsPassword != "", a.cfg.MetricsUsername, a.cfg.MetricsPassword),
		gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	return router
}

func (a *Application) redirectToRepository(c *gin.Context) {
	c.Redirect(http.StatusTemporaryRedirect, repositoryURL)
}

func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

func (a *Application) getTransports() map[string]bool {
	return map[string]bool{
		"telegram": a.poller != nil,
		"line":     a.webhookHandler != nil,
	}
}

func (a *Application) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.ReadinessCheckTimeout)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: database unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "database unavailable",
		})
		return
	}

	stats, err := a.db.Stats(ctx)
	if err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: catalogue unreadable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "catalogue unreadable",
		})
		return
	}

	body := gin.H{
		"status":   "ready",
		"database": "connected",
		"catalogue": gin.H{
			"specialties":  stats.Specialties,
			"universities": stats.Universities,
		},
		"transports": a.getTransports(),
	}
	if a.snapshots != nil {
		body["snapshot_etag"] = a.snapshots.CurrentETag()
	}
	c.JSON(http.StatusOK, body)
}

// Run starts background work and the HTTP server, then blocks until
// SIGINT or SIGTERM and shuts down gracefully.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.startBackgroundJobs(ctx)
	a.startPollers(ctx)
	a.startHTTPServer()

	sig := a.waitForShutdownSignal()
	a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	// Step 1: Cancel context to signal all background jobs to stop
	cancel()

	// Step 2: Wait for all background goroutines to finish
	a.logger.Info("Waiting for background jobs to finish...")
	start := time.Now()
	a.wg.Wait()
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("All background jobs completed")

	// Step 3: Stop inbound traffic and release resources
	return a.shutdown()
}

func (a *Application) startBackgroundJobs(ctx context.Context) {
	a.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				a.logger.WithField("panic", r).Error("Panic in metrics job")
			}
		}()
		a.updateCatalogueMetrics(ctx)
	})
}

// startPollers starts snapshot polling and Telegram long polling.
// Both are stopped explicitly by shutdown.
func (a *Application) startPollers(ctx context.Context) {
	if a.snapshots != nil {
		a.snapshots.StartPolling(context.WithoutCancel(ctx), a.db)
	}
	if a.poller != nil {
		a.poller.Start(context.WithoutCancel(ctx))
	}
}

func (a *Application) startHTTPServer() {
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("HTTP server error")
		}
	}()
}

func (a *Application) waitForShutdownSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return <-quit
}

func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if a.snapshots != nil {
		a.logger.Info("Stopping snapshot polling...")
		a.snapshots.StopPolling()
	}

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	if a.webhookHandler != nil {
		a.logger.Info("Waiting for webhook events to complete...")
		if err := a.webhookHandler.Shutdown(shutdownCtx); err != nil {
			a.logger.WithError(err).Warn("Webhook handler shutdown timeout")
		}
	}

	if a.poller != nil {
		a.logger.Info("Waiting for Telegram updates to complete...")
		if err := a.poller.Shutdown(shutdownCtx); err != nil {
			a.logger.WithError(err).Warn("Telegram poller shutdown timeout")
		}
	}

	a.logger.Info("Closing resources...")
	a.closeResources()

	if !sentry.Flush(config.SentryFlush) {
		a.logger.Warn("Sentry flush timed out")
	}

	if err := a.logger.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Logger shutdown timed out")
	}

	a.logger.Info("Shutdown complete")
	return nil
}

func (a *Application) closeResources() {
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).WithField("component", "database").Error("Component close error")
	}
	if a.userLimiter != nil {
		a.userLimiter.Stop()
	}
}

func (a *Application) updateCatalogueMetrics(ctx context.Context) {
	a.logger.Debug("Catalogue metrics job started")
	defer a.logger.Debug("Catalogue metrics job stopped")

	a.recordCatalogueMetrics(ctx)

	ticker := time.NewTicker(config.MetricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.recordCatalogueMetrics(ctx)
		}
	}
}

func (a *Application) recordCatalogueMetrics(ctx context.Context) {
	stats, err := a.db.Stats(ctx)
	if err != nil {
		a.logger.WithError(err).Debug("Skipping catalogue size metrics")
		return
	}
	a.metrics.SetCatalogueSize(stats.Specialties, stats.Universities)
	if a.userLimiter != nil {
		a.metrics.SetRateLimiterUsers(a.userLimiter.ActiveCount())
	}
}

// securityHeadersMiddleware adds security headers to responses.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'")
		c.Next()
	}
}

// loggingMiddleware logs each request and propagates X-Request-Id into the
// request context.
func loggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		requestID := c.GetHeader("X-Request-Id")
		if requestID == "" {
			requestID = c.GetHeader("X-Correlation-Id")
		}
		if requestID != "" {
			ctx := ctxutil.WithRequestID(c.Request.Context(), requestID)
			c.Request = c.Request.WithContext(ctx)
		}

		c.Next()

		status := c.Writer.Status()
		entry := log.WithField("http_method", method).
			WithField("http_path", path).
			WithField("http_status", status).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			WithField("client_ip", c.ClientIP())
		if requestID != "" {
			entry = entry.WithRequestID(requestID)
		}

		switch {
		case status >= 500:
			entry.Error("HTTP request failed")
		case status == http.StatusNotFound:
			entry.Debug("HTTP request not found")
		case status >= 400:
			entry.Warn("HTTP request rejected")
		default:
			entry.Debug("HTTP request completed")
		}
	}
}
