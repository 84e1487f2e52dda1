package services

import "context"

type contextKey string

const (
	postURLKey   contextKey = "post_url"
	requestIDKey contextKey = "request_id"
)

// WithPostURL annotates context with the post currently being processed.
func WithPostURL(ctx context.Context, postURL string) context.Context {
	if postURL == "" {
		return ctx
	}
	return context.WithValue(ctx, postURLKey, postURL)
}

// PostURLFromContext extracts the post URL if present.
func PostURLFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(postURLKey).(string); ok && v != "" {
		return v, true
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
