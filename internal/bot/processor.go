package bot

import (
	"context"
	"strings"
	"time"

	"github.com/garyellow/unibot-go/internal/config"
	"github.com/garyellow/unibot-go/internal/ctxutil"
	"github.com/garyellow/unibot-go/internal/logger"
	"github.com/garyellow/unibot-go/internal/metrics"
	"github.com/garyellow/unibot-go/internal/modules/catalogue"
	"github.com/garyellow/unibot-go/internal/ratelimit"
	"github.com/garyellow/unibot-go/internal/stringutil"
)

// MaxTextRunes bounds inbound free text; longer messages are ignored.
const MaxTextRunes = 4096

// Processor handles the transport-neutral part of processing an action.
// It orchestrates rate limiting, sanitization, timeouts and dispatch.
type Processor struct {
	handler     Handler
	chain       HandlerFunc
	userLimiter *ratelimit.KeyedLimiter
	logger      *logger.Logger
	metrics     *metrics.Metrics

	webhookTimeout time.Duration
}

// ProcessorConfig holds configuration for creating a new Processor.
type ProcessorConfig struct {
	Handler     Handler
	UserLimiter *ratelimit.KeyedLimiter // nil disables per-user limits
	Logger      *logger.Logger
	Metrics     *metrics.Metrics
	BotConfig   *config.BotConfig
}

// NewProcessor creates a new action processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	timeout := config.WebhookProcessing
	if cfg.BotConfig != nil && cfg.BotConfig.WebhookTimeout > 0 {
		timeout = cfg.BotConfig.WebhookTimeout
	}

	log := cfg.Logger.WithModule(cfg.Handler.Name())
	return &Processor{
		handler: cfg.Handler,
		chain: Chain(cfg.Handler.Handle,
			MetricsMiddleware(cfg.Metrics),
			LoggingMiddleware(log),
			ErrorReportingMiddleware(),
			RecoveryMiddleware(log),
		),
		userLimiter:    cfg.UserLimiter,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		webhookTimeout: timeout,
	}
}

// Process handles one action. The context should carry the transport and
// user ID (see ctxutil). An empty reply means nothing should be sent.
func (p *Processor) Process(ctx context.Context, a catalogue.Action) catalogue.Reply {
	if !p.allow(ctx) {
		return catalogue.ErrorReply(catalogue.RateLimitedText)
	}

	if a.Kind == catalogue.KindText {
		text, ok := sanitizeText(a.Payload)
		if !ok {
			p.logger.WithField("runes", stringutil.RuneLen(a.Payload)).
				DebugContext(ctx, "Ignoring empty or oversized text")
			return catalogue.Reply{}
		}
		a.Payload = text
	}

	processCtx, cancel := context.WithTimeout(ctx, p.webhookTimeout)
	defer cancel()

	reply, _ := p.chain(processCtx, a)
	return reply
}

// allow applies the per-user rate limit.
func (p *Processor) allow(ctx context.Context) bool {
	if p.userLimiter == nil {
		return true
	}
	userID := ctxutil.GetUserID(ctx)
	if p.userLimiter.Allow(userID) {
		return true
	}

	logID := userID
	if len(logID) > 8 {
		logID = logID[:8] + "..."
	}
	p.logger.WithField("user_id", logID).WarnContext(ctx, "User rate limit exceeded")
	if p.metrics != nil {
		p.metrics.RecordAction(ctxutil.GetTransport(ctx), "rate_limited", "rate_limited", 0)
	}
	return false
}

// sanitizeText collapses whitespace and rejects empty or oversized input.
func sanitizeText(text string) (string, bool) {
	if stringutil.RuneLen(text) > MaxTextRunes {
		return "", false
	}
	text = normalizeWhitespace(text)
	return text, text != ""
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
