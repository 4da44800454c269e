package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"rate limit status", errors.New("API returned 429 Too Many Requests"), KindRateLimited},
		{"rate limit text", errors.New("rate limit exceeded, retry later"), KindRateLimited},
		{"overloaded", errors.New("model is overloaded"), KindRateLimited},
		{"unauthorized", errors.New("401 Unauthorized"), KindAuth},
		{"bad key", errors.New("invalid api key provided"), KindAuth},
		{"refused", errors.New("dial tcp: connection refused"), KindUnavailable},
		{"bad gateway", errors.New("unexpected status: 502"), KindUnavailable},
		{"mystery", errors.New("something odd happened"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := classify(tt.err)
			var pe *ProviderError
			if !errors.As(wrapped, &pe) {
				t.Fatalf("classify should return *ProviderError, got %T", wrapped)
			}
			if pe.Kind != tt.kind {
				t.Errorf("Expected kind %q, got %q", tt.kind, pe.Kind)
			}
			if !errors.Is(wrapped, tt.err) {
				t.Error("Wrapped error should unwrap to the original")
			}
		})
	}
}

func TestClassifyPassesContextErrors(t *testing.T) {
	if err := classify(context.Canceled); !errors.Is(err, context.Canceled) {
		t.Errorf("Context cancellation should pass through, got %v", err)
	}
	var pe *ProviderError
	if errors.As(classify(context.DeadlineExceeded), &pe) {
		t.Error("Deadline errors should not be wrapped as provider errors")
	}
}

func TestIsTransient(t *testing.T) {
	throttled := classify(errors.New("429 too many requests"))
	if !IsTransient(throttled) {
		t.Error("Rate limit errors are transient")
	}
	if IsTransient(classify(errors.New("401 unauthorized"))) {
		t.Error("Auth errors are not transient")
	}
	if IsTransient(errors.New("plain error")) {
		t.Error("Unwrapped errors are not transient")
	}
	if IsTransient(fmt.Errorf("wrapped: %w", throttled)) != true {
		t.Error("Transience should survive wrapping")
	}
}
