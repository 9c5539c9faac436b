package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/pkg/ai"
)

const (
	synthesisSystemRole = "You are a helpful assistant that generates model answers for assignments."
	synthesisPrompt     = "Based on the following assignment instructions and grading rubric, generate detailed model answers.\n\nAssignment Instructions:\n%s\n\nGrading Rubric:\n%s"

	// SynthesisFailedFeedback is recorded when no model answer could be produced.
	SynthesisFailedFeedback = "Failed to generate model answers."
)

var errEmptyModelAnswer = errors.New("generation service returned an empty model answer")

// AnswerSynthesizer produces a reference answer from assignment instructions and rubric.
type AnswerSynthesizer interface {
	Synthesize(ctx context.Context, assignmentText, rubricText string) (string, error)
}

type answerSynthesizer struct {
	generator ai.Generator
	config    GenerationConfig
	logger    zerolog.Logger
}

// NewAnswerSynthesizer constructs a synthesizer. Failures are returned as a
// StageError with status synthesis_failed, never as raw service errors.
func NewAnswerSynthesizer(generator ai.Generator, cfg GenerationConfig, logger zerolog.Logger) AnswerSynthesizer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultSynthesisConfig().MaxTokens
	}

	return &answerSynthesizer{
		generator: generator,
		config:    cfg,
		logger:    logger.With().Str("component", "answer_synthesizer").Logger(),
	}
}

func (s *answerSynthesizer) Synthesize(ctx context.Context, assignmentText, rubricText string) (string, error) {
	callCtx, cancel := s.config.withTimeout(ctx)
	defer cancel()

	answer, err := s.generator.Generate(callCtx, ai.GenerationRequest{
		System:      synthesisSystemRole,
		Prompt:      fmt.Sprintf(synthesisPrompt, assignmentText, rubricText),
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
	})
	if err == nil && strings.TrimSpace(answer) == "" {
		err = errEmptyModelAnswer
	}
	if err != nil {
		logger := contextLogger(ctx, s.logger, "answer_synthesizer")
		logger.Error().
			Err(err).
			Str("error_kind", string(ai.KindOf(err))).
			Msg("model answer generation failed")
		return "", &StageError{
			Status:   models.GradingStatusSynthesisFailed,
			Feedback: SynthesisFailedFeedback,
			Err:      err,
		}
	}

	return strings.TrimSpace(answer), nil
}
