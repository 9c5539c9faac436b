package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/pkg/ai"
)

const (
	gradingSystemRole = "You are a helpful assistant that grades assignments based on model answers and grading rubrics."
	gradingPrompt     = "Using the following model answers and grading rubric, grade the student's assignment and provide detailed scoring and feedback.\n\nStudent's Assignment:\n%s\n\nModel Answers:\n%s\n\nGrading Rubric:\n%s\n\nPlease provide a score and detailed feedback."
)

// SubmissionGrader critiques a submission against a model answer and rubric.
type SubmissionGrader interface {
	Grade(ctx context.Context, submissionText, modelAnswer, rubricText string) (string, error)
}

type submissionGrader struct {
	generator ai.Generator
	config    GenerationConfig
	logger    zerolog.Logger
}

// NewSubmissionGrader constructs a grader. Service failures come back as a
// StageError with status grading_failed wrapping a GradingServiceError.
func NewSubmissionGrader(generator ai.Generator, cfg GenerationConfig, logger zerolog.Logger) SubmissionGrader {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultGradingConfig().MaxTokens
	}

	return &submissionGrader{
		generator: generator,
		config:    cfg,
		logger:    logger.With().Str("component", "submission_grader").Logger(),
	}
}

func (g *submissionGrader) Grade(ctx context.Context, submissionText, modelAnswer, rubricText string) (string, error) {
	callCtx, cancel := g.config.withTimeout(ctx)
	defer cancel()

	feedback, err := g.generator.Generate(callCtx, ai.GenerationRequest{
		System:      gradingSystemRole,
		Prompt:      fmt.Sprintf(gradingPrompt, submissionText, modelAnswer, rubricText),
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.Temperature,
	})
	if err != nil {
		logger := contextLogger(ctx, g.logger, "submission_grader")
		logger.Error().
			Err(err).
			Str("error_kind", string(ai.KindOf(err))).
			Msg("grading request failed")
		serviceErr := &GradingServiceError{Err: err}
		return "", &StageError{
			Status:   models.GradingStatusGradingFailed,
			Feedback: serviceErr.Error(),
			Err:      serviceErr,
		}
	}

	return strings.TrimSpace(feedback), nil
}
