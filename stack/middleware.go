package stack

import (
	"time"
)

// Handler processes one received message
type Handler func(ctx *MessageContext)

// Middleware wraps a Handler
type Middleware func(Handler) Handler

// Chain applies middlewares so the first one is the outermost
func Chain(middlewares ...Middleware) Middleware {
	return func(final Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// LoggingMiddleware creates a middleware that logs message details
func LoggingMiddleware(s *Stack) Middleware {
	return func(next Handler) Handler {
		return func(ctx *MessageContext) {
			start := time.Now()
			h := ctx.Message.Header
			s.log().Infow("Message received",
				"remote_addr", ctx.Connection.RemoteAddr().String(),
				"command", ctx.Message.CommandName(),
				"code", h.CommandCode,
				"app_id", h.ApplicationID,
				"request", h.IsRequest(),
				"hop_by_hop", h.HopByHopID,
				"length", h.Length)

			next(ctx)

			s.log().Infow("Message processed",
				"remote_addr", ctx.Connection.RemoteAddr().String(),
				"hop_by_hop", h.HopByHopID,
				"duration_ms", time.Since(start).Milliseconds())
		}
	}
}

// MetricsMiddleware creates a middleware that tracks handler processing time
func MetricsMiddleware(s *Stack) Middleware {
	return func(next Handler) Handler {
		return func(ctx *MessageContext) {
			start := time.Now()

			next(ctx)

			duration := time.Since(start)
			s.handled.Increment(ctx.Message.Header.CommandCode)
			s.handlerLatency.Observe(duration)
			s.log().Debugw("Metrics",
				"code", ctx.Message.Header.CommandCode,
				"duration_ms", duration.Milliseconds(),
				"size_bytes", len(ctx.Raw))
		}
	}
}

// RecoveryMiddleware creates a middleware that recovers from handler panics
// so one bad message does not take down the reader.
func RecoveryMiddleware(s *Stack) Middleware {
	return func(next Handler) Handler {
		return func(ctx *MessageContext) {
			defer func() {
				if r := recover(); r != nil {
					s.log().Errorw("Panic recovered in handler",
						"error", r,
						"code", ctx.Message.Header.CommandCode,
						"remote_addr", ctx.Connection.RemoteAddr().String())
					s.stats.Errors.Add(1)
				}
			}()

			next(ctx)
		}
	}
}
