package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds cycle-scoped logging context for crawler slices.
type LogContext struct {
	Cycle     int       // Crawler cycle number
	Prefix    string    // Prefix currently being processed
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a cycle.
func NewLogContext(cycle int) *LogContext {
	return &LogContext{
		Cycle:     cycle,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		Cycle:     lc.Cycle,
		Prefix:    lc.Prefix,
		StartTime: lc.StartTime,
	}
}

// WithPrefix returns a copy with the prefix set
func (lc *LogContext) WithPrefix(prefix string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Prefix = prefix
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
