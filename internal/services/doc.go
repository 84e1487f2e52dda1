// Package services provides the shared error taxonomy, context annotations,
// and retry helper used by the preflight pipeline and its helper-service
// clients. Sentinel errors classify failures into protocol, consistency,
// validation, configuration, and transient categories so callers can decide
// between skipping a post, retrying, or aborting the session.
package services
