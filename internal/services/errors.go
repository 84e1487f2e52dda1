package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProtocol marks a helper service response that violates its contract,
	// such as a matcher result with the wrong shape or duplicate entries.
	ErrProtocol = errors.New("protocol error")
	// ErrConsistency marks persistent-state corruption, such as the same image
	// recorded under two different post URLs.
	ErrConsistency = errors.New("consistency error")
	// ErrValidation marks input that can never succeed, such as a malformed
	// post URL or an unrecognized image host.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks missing or unusable operator configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks a lookup whose subject does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTimeout marks a deadline expiring before the operation settled.
	ErrTimeout = errors.New("timeout")
	// ErrTransient marks failures that a bounded retry may clear.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether a bounded retry is worth attempting for err.
// Protocol, consistency, and validation failures never clear on retry.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrProtocol),
		errors.Is(err, ErrConsistency),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration):
		return false
	default:
		return true
	}
}

// IsFatal reports whether err should abort the surrounding session rather
// than skip a single post.
func IsFatal(err error) bool {
	return errors.Is(err, ErrProtocol) || errors.Is(err, ErrConsistency) || errors.Is(err, ErrConfiguration)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
