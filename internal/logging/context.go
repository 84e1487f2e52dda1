package logging

import (
	"context"
	"log/slog"

	"nonalt/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldPostURL is the standardized structured logging key for feed post URLs.
	FieldPostURL = "post_url"
	// FieldImageURL is the standardized structured logging key for image URLs.
	FieldImageURL = "image_url"
	// FieldSourceURL is the standardized structured logging key for external source URLs.
	FieldSourceURL = "source_url"
	// FieldArtistURL is the standardized structured logging key for artist account URLs.
	FieldArtistURL = "artist_url"
	// FieldScore is the standardized structured logging key for match confidence scores.
	FieldScore = "score"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if postURL, ok := services.PostURLFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPostURL, postURL))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
