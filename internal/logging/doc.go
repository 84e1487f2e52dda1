// Package logging wires slog handlers for console and JSON output and defines
// the standardized attribute keys used across the scan and reblog pipeline.
//
// Use NewFromConfig to build the process logger and NewComponentLogger to tag
// subsystem loggers. WithContext pulls post-URL and correlation-ID fields out
// of a request context so every log line about a feed item carries enough
// context to diagnose it later.
package logging
