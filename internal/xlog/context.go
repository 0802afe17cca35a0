package xlog

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	runIDKey         ctxKey = "run_id"
	downloadIDKey    ctxKey = "download_id"
	correlationIDKey ctxKey = "correlation_id"
)

// ContextWithRunID stores a pipeline run ID in the context.
func ContextWithRunID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// ContextWithDownloadID stores a download ID in the context.
func ContextWithDownloadID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, downloadIDKey, id)
}

// ContextWithCorrelationID stores a sibling-call correlation ID in the context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// RunIDFromContext extracts the pipeline run ID, or "" if absent.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(runIDKey).(int64); ok {
		return strconv.FormatInt(v, 10)
	}
	return ""
}

// DownloadIDFromContext extracts the download ID, or "" if absent.
func DownloadIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(downloadIDKey).(string); ok {
		return v
	}
	return ""
}

// CorrelationIDFromContext extracts the correlation ID, or "" if absent.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

// WithContext enriches the supplied logger with correlation fields from ctx.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	builder := logger.With()
	added := false
	if rid := RunIDFromContext(ctx); rid != "" {
		builder = builder.Str("run_id", rid)
		added = true
	}
	if did := DownloadIDFromContext(ctx); did != "" {
		builder = builder.Str("download_id", did)
		added = true
	}
	if cid := CorrelationIDFromContext(ctx); cid != "" {
		builder = builder.Str("correlation_id", cid)
		added = true
	}
	if !added {
		return logger
	}
	return builder.Logger()
}

// FromContext returns a logger enriched with any correlation fields in ctx.
func FromContext(ctx context.Context) *zerolog.Logger {
	l := WithContext(ctx, logger())
	return &l
}

