package services

import "context"

type contextKey string

const (
	releaseIDKey contextKey = "release_id"
	stageKey     contextKey = "stage"
	requestIDKey contextKey = "request_id"
)

// WithReleaseID annotates context with the release being processed.
func WithReleaseID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, releaseIDKey, id)
}

// ReleaseIDFromContext extracts the release identifier if present.
func ReleaseIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(releaseIDKey).(int64)
	return id, ok
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
