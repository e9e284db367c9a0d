// Package help collects small cross-cutting helpers shared by coring,
// eventing, db, and vdr: logging setup and ISO-8601 timestamp formatting.
package help

import (
	"time"

	"go.uber.org/zap"
)

// NopLogger returns a logger that discards all output, used as the default
// when a caller doesn't supply one.
func NopLogger() *zap.Logger { return zap.NewNop() }

// NewLogger builds the standard production logger: JSON-encoded, info
// level, with caller info — the same shape the rest of the pack's services
// construct for zap.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	return cfg.Build()
}

// NowIso8601 returns the current UTC time formatted as an ISO-8601 string
// with microsecond precision, matching the original keripy helping.nowIso8601.
func NowIso8601() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000-07:00")
}

// FormatIso8601 formats an arbitrary time the same way.
func FormatIso8601(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000-07:00")
}
