// Package bot provides the transport-neutral processing pipeline shared by
// the Telegram and LINE transports: per-user rate limiting, input
// sanitization, timeouts and the handler middleware chain.
package bot

import (
	"context"

	"github.com/garyellow/unibot-go/internal/modules/catalogue"
)

// Handler defines the conversation controller the pipeline dispatches to.
type Handler interface {
	// Name identifies the handler in logs and metrics.
	Name() string

	// Handle renders the reply for one action. A non-nil error means the
	// reply already carries a user-safe failure message.
	Handle(ctx context.Context, a catalogue.Action) (catalogue.Reply, error)
}

// HandlerFunc is a single step of the middleware chain.
type HandlerFunc func(ctx context.Context, a catalogue.Action) (catalogue.Reply, error)

// Middleware wraps a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h with middlewares. The first middleware is the outermost.
func Chain(h HandlerFunc, middlewares ...Middleware) HandlerFunc {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
