package ai

import (
	"context"
	"errors"
	"fmt"
)

// GenerationRequest is a single role-framed prompt sent to a text generation backend.
type GenerationRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Generator describes a text generation backend. Implementations must honour ctx deadlines.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// ErrorKind classifies failures reported by a generation backend.
type ErrorKind string

const (
	ErrorKindRateLimited       ErrorKind = "rate_limited"
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindMalformedResponse ErrorKind = "malformed_response"
	ErrorKindUnauthorized      ErrorKind = "unauthorized"
	ErrorKindUnavailable       ErrorKind = "unavailable"
)

// ErrService is matched by every ServiceError via errors.Is.
var ErrService = errors.New("generation service error")

// ServiceError is the typed failure returned by Generator implementations.
type ServiceError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("generation service %s", e.Kind)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is lets callers match any service failure with errors.Is(err, ErrService).
func (e *ServiceError) Is(target error) bool {
	return target == ErrService
}

// KindOf reports the ErrorKind of err, or an empty kind if err is not a ServiceError.
func KindOf(err error) ErrorKind {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Kind
	}
	return ""
}
