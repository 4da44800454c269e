package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies provider failures for retry decisions.
type ErrorKind string

const (
	// KindRateLimited covers throttling responses; worth retrying with backoff.
	KindRateLimited ErrorKind = "rate_limited"
	// KindAuth covers credential failures; retrying cannot help.
	KindAuth ErrorKind = "auth"
	// KindUnavailable covers provider outages and refused connections.
	KindUnavailable ErrorKind = "unavailable"
	// KindUnknown covers everything else.
	KindUnknown ErrorKind = "unknown"
)

// ProviderError wraps a provider failure with its classification.
type ProviderError struct {
	Kind ErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (%s): %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether retrying the operation may succeed.
func (e *ProviderError) Transient() bool {
	return e.Kind == KindRateLimited
}

// classify wraps a raw provider error with its kind. Langchaingo surfaces
// provider responses as opaque errors, so classification matches on the
// response text.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	msg := strings.ToLower(err.Error())
	kind := KindUnknown
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") || strings.Contains(msg, "overloaded"):
		kind = KindRateLimited
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "authentication"):
		kind = KindAuth
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "timeout") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "service unavailable"):
		kind = KindUnavailable
	}

	return &ProviderError{Kind: kind, Err: err}
}

// IsTransient reports whether an error is a retryable provider failure.
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Transient()
}
