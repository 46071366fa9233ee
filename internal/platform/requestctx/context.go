package requestctx

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerContextKey contextKey = "github.com/partner-scorecard/api/internal/platform/requestctx/logger"
	traceContextKey  contextKey = "github.com/partner-scorecard/api/internal/platform/requestctx/trace"
	actorContextKey  contextKey = "github.com/partner-scorecard/api/internal/platform/requestctx/actor"
)

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared noop logger instance used across the package.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores the trace metadata on the context for downstream usage.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceContextKey, info)
}

// Trace retrieves the trace metadata from context when available.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceContextKey).(TraceInfo)
	return info, ok
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// ActorSlot is a per-request holder that outer middleware installs and authentication fills once
// the caller is known.
type ActorSlot struct {
	mu    sync.Mutex
	email string
	role  string
}

// WithActorSlot installs an empty slot on the context.
func WithActorSlot(ctx context.Context) (context.Context, *ActorSlot) {
	if ctx == nil {
		ctx = context.Background()
	}
	slot := &ActorSlot{}
	return context.WithValue(ctx, actorContextKey, slot), slot
}

// SetActor records the authenticated caller on the slot installed upstream, if any.
func SetActor(ctx context.Context, email, role string) {
	if ctx == nil {
		return
	}
	slot, ok := ctx.Value(actorContextKey).(*ActorSlot)
	if !ok || slot == nil {
		return
	}
	slot.mu.Lock()
	slot.email = email
	slot.role = role
	slot.mu.Unlock()
}

// Actor returns the recorded caller email and role.
func (s *ActorSlot) Actor() (string, string) {
	if s == nil {
		return "", ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.email, s.role
}
