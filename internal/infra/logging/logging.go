package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"docs-ingestion-service/internal/config"

	"github.com/rs/zerolog"
)

// New creates a zerolog logger configured from config.
// Supports "trace" | "debug" | "info" | "warn" | "error" levels
// and "json" | "console" formats. Sampling can be enabled to reduce noise in prod.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	level, _ := zerolog.ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var base zerolog.Logger
	if strings.ToLower(cfg.Format) == "console" || dev {
		out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		base = zerolog.New(out).With().Timestamp().Logger()
	} else {
		base = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	if cfg.Sampling && !dev {
		// Simple sampling: keep first 100, then 1 every 100 thereafter.
		sampled := base.Sample(&zerolog.BasicSampler{N: 100})
		return &sampled
	}
	return &base
}

// With attaches common context fields such as trace_id, job_id, url.
type ctxKey string

const (
	ctxTraceID ctxKey = "trace_id"
	ctxJobID   ctxKey = "job_id"
	ctxURL     ctxKey = "url"
)

func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	l := base.With()
	if v := ctx.Value(ctxTraceID); v != nil {
		l = l.Str("trace_id", v.(string))
	}
	if v := ctx.Value(ctxJobID); v != nil {
		l = l.Str("job_id", v.(string))
	}
	if v := ctx.Value(ctxURL); v != nil {
		l = l.Str("url", v.(string))
	}
	logger := l.Logger()
	return &logger
}

// TraceDuration logs start and end with elapsed duration at TRACE level.
// Usage: defer logging.TraceDuration(logger, "Processor.ProcessJob")()
func TraceDuration(logger *zerolog.Logger, name string) func() {
	start := time.Now()
	logger.Trace().Str("method", name).Msg("start")
	return func() {
		elapsed := time.Since(start)
		logger.Trace().Str("method", name).Dur("duration", elapsed).Msg("finish")
	}
}

// Helpers to put IDs into context.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxTraceID, id)
}
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxJobID, id)
}
func WithURL(ctx context.Context, url string) context.Context {
	return context.WithValue(ctx, ctxURL, url)
}
