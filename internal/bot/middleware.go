package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/garyellow/unibot-go/internal/ctxutil"
	"github.com/garyellow/unibot-go/internal/logger"
	"github.com/garyellow/unibot-go/internal/metrics"
	"github.com/garyellow/unibot-go/internal/modules/catalogue"
	"github.com/garyellow/unibot-go/internal/sentry"
)

// LoggingMiddleware logs handler execution with timing and result info.
func LoggingMiddleware(log *logger.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, a catalogue.Action) (catalogue.Reply, error) {
			start := time.Now()

			reply, err := next(ctx, a)

			log.WithField("state", reply.State.String()).
				WithField("duration_ms", time.Since(start).Milliseconds()).
				WithField("msg_count", len(reply.Messages)).
				DebugContext(ctx, "Action handled")

			return reply, err
		}
	}
}

// MetricsMiddleware records one action sample per handled action.
func MetricsMiddleware(m *metrics.Metrics) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, a catalogue.Action) (catalogue.Reply, error) {
			start := time.Now()

			reply, err := next(ctx, a)

			if m != nil {
				status := "success"
				if err != nil {
					status = "error"
				}
				m.RecordAction(ctxutil.GetTransport(ctx), reply.State.String(), status, time.Since(start).Seconds())
			}
			return reply, err
		}
	}
}

// ErrorReportingMiddleware sends handler errors to Sentry, tagged with the
// transport and the state that failed.
func ErrorReportingMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, a catalogue.Action) (catalogue.Reply, error) {
			reply, err := next(ctx, a)
			if err != nil {
				sentry.CaptureWithTags(ctx, err, map[string]string{
					"transport": ctxutil.GetTransport(ctx),
					"state":     reply.State.String(),
				})
			}
			return reply, err
		}
	}
}

// RecoveryMiddleware recovers from panics in handlers and returns the
// generic error reply.
func RecoveryMiddleware(log *logger.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, a catalogue.Action) (reply catalogue.Reply, err error) {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("panic", r).
						WithField("stack", string(debug.Stack())).
						ErrorContext(ctx, "Handler panicked")

					reply = catalogue.ErrorReply(catalogue.GenericErrorText)
					err = fmt.Errorf("handler panic: %v", r)
				}
			}()

			return next(ctx, a)
		}
	}
}
