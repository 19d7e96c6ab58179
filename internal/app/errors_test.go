package app

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"innovation/engine/internal/store"
)

func TestMapStoreError(t *testing.T) {
	plain := errors.New("connection reset")
	tests := []struct {
		name       string
		err        error
		wantIs     error
		wantStatus int
		retryable  bool
	}{
		{"not found", fmt.Errorf("get support: %w", store.ErrNotFound), ErrNotFound, http.StatusNotFound, false},
		{"conflict", fmt.Errorf("transition support: %w", store.ErrConflict), ErrConflict, http.StatusConflict, true},
		{"domain error passes through", invalidTransition("nope", nil), ErrInvalidTransition, http.StatusUnprocessableEntity, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := mapStoreError(tt.err, "support")
			if !errors.Is(mapped, tt.wantIs) {
				t.Fatalf("expected %v, got %v", tt.wantIs, mapped)
			}
			var domainErr *DomainError
			if !errors.As(mapped, &domainErr) || domainErr.Status != tt.wantStatus {
				t.Fatalf("expected DomainError with status %d, got %#v", tt.wantStatus, mapped)
			}
			if IsRetryable(mapped) != tt.retryable {
				t.Fatalf("expected retryable=%v for %v", tt.retryable, mapped)
			}
		})
	}

	if got := mapStoreError(plain, "support"); got != plain {
		t.Fatalf("unknown errors must pass through unchanged, got %v", got)
	}
	if mapStoreError(nil, "support") != nil {
		t.Fatal("nil must stay nil")
	}
}

func TestDomainErrorIsMatchesOnlyItsCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", validation("bad input %d", 7))
	if !errors.Is(err, ErrValidation) {
		t.Fatal("expected ErrValidation")
	}
	for _, other := range []error{ErrNotFound, ErrConflict, ErrInvalidTransition} {
		if errors.Is(err, other) {
			t.Fatalf("validation error must not match %v", other)
		}
	}
	if got := err.Error(); got != "wrapped: VALIDATION_ERROR: bad input 7" {
		t.Fatalf("unexpected message %q", got)
	}
}
