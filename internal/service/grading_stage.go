package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/models"
)

// GradingState is the position of a grading attempt in the pipeline.
type GradingState string

const (
	GradingStatePending      GradingState = "pending"
	GradingStateExtracting   GradingState = "extracting"
	GradingStateSynthesizing GradingState = "synthesizing"
	GradingStateGrading      GradingState = "grading"
	GradingStateScoring      GradingState = "scoring"
	GradingStateCommitted    GradingState = "committed"
)

// ErrGradingService is matched by every GradingServiceError via errors.Is.
var ErrGradingService = errors.New("grading service error")

// GradingServiceError reports that the generation service failed while grading.
// Its message is the underlying service message.
type GradingServiceError struct {
	Err error
}

func (e *GradingServiceError) Error() string {
	return e.Err.Error()
}

func (e *GradingServiceError) Unwrap() error {
	return e.Err
}

func (e *GradingServiceError) Is(target error) bool {
	return target == ErrGradingService
}

// StageError is the single failure value pipeline stages return. Status is the
// terminal status the attempt is recorded with and Feedback is the explanation
// persisted in place of model feedback.
type StageError struct {
	Status   models.GradingStatus
	Feedback string
	Err      error
}

func (e *StageError) Error() string {
	if e.Feedback != "" {
		return e.Feedback
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Status)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// asStageError returns err as a StageError, tagging foreign errors with status.
func asStageError(err error, status models.GradingStatus) *StageError {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr
	}
	return &StageError{Status: status, Feedback: err.Error(), Err: err}
}

// GradingRequest carries the texts one attempt works on. It is never persisted.
type GradingRequest struct {
	SubmissionID   uint
	AssignmentText string
	RubricText     string
	SubmissionText string
}

// GenerationConfig bounds a single call to the text generation service.
type GenerationConfig struct {
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// DefaultSynthesisConfig returns the model answer generation budget.
func DefaultSynthesisConfig() GenerationConfig {
	return GenerationConfig{MaxTokens: 1500, Temperature: 0.7, Timeout: 60 * time.Second}
}

// DefaultGradingConfig returns the grading budget. It is larger than the
// synthesis budget so narrative feedback and the score line both fit.
func DefaultGradingConfig() GenerationConfig {
	return GenerationConfig{MaxTokens: 2000, Temperature: 0.7, Timeout: 60 * time.Second}
}

func (c GenerationConfig) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.Timeout)
}

// contextLogger prefers the run-scoped logger stored in ctx over base, which
// already carries the component field.
func contextLogger(ctx context.Context, base zerolog.Logger, component string) zerolog.Logger {
	if logger := zerolog.Ctx(ctx); logger.GetLevel() != zerolog.Disabled {
		return logger.With().Str("component", component).Logger()
	}
	return base
}
