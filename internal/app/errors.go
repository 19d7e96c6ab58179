package app

import (
	"errors"
	"fmt"
	"net/http"

	"innovation/engine/internal/store"
)

const (
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeConflict          = "CONFLICT"
	CodeValidation        = "VALIDATION_ERROR"
)

// Sentinels for errors.Is; every DomainError matches the one for its code.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrConflict          = errors.New("conflict")
	ErrValidation        = errors.New("validation failed")
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch e.Code {
	case CodeNotFound:
		return target == ErrNotFound
	case CodeInvalidTransition:
		return target == ErrInvalidTransition
	case CodeConflict:
		return target == ErrConflict
	case CodeValidation:
		return target == ErrValidation
	}
	return false
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func notFound(format string, args ...any) *DomainError {
	return domainError(http.StatusNotFound, CodeNotFound, fmt.Sprintf(format, args...), nil)
}

func invalidTransition(message string, details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, CodeInvalidTransition, message, details)
}

func conflict(format string, args ...any) *DomainError {
	return domainError(http.StatusConflict, CodeConflict, fmt.Sprintf(format, args...), nil)
}

func validation(format string, args ...any) *DomainError {
	return domainError(http.StatusBadRequest, CodeValidation, fmt.Sprintf(format, args...), nil)
}

// IsRetryable reports whether the caller may reload state and re-issue the
// operation. Only conflicts qualify.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// mapStoreError turns storage sentinels into domain errors and passes
// everything else through.
func mapStoreError(err error, what string) error {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return notFound("%s not found", what)
	case errors.Is(err, store.ErrConflict):
		return conflict("%s was modified concurrently; reload and retry", what)
	}
	return err
}
