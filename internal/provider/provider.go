// Package provider defines the external embedding and answer-generation
// collaborators and the error taxonomy surfaced from them.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Embedder generates one fixed-dimension vector per input text. All vectors
// of one call share a dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces an answer for a question given retrieved context.
type Generator interface {
	Generate(ctx context.Context, question, context string) (string, error)
}

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"
	KindRateLimit ErrorKind = "rate_limit"
	KindTimeout   ErrorKind = "timeout"
	KindMalformed ErrorKind = "malformed"
)

// Error is a provider failure with its kind preserved for the caller.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient (rate limiting or
// timeouts) and worth a bounded local retry.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimit || e.Kind == KindTimeout
}

// IsRetryable reports whether err is a transient provider error.
func IsRetryable(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Retryable()
}
