package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/observability"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/pkg/document"
)

// ErrSubmissionNotFound indicates the submission does not exist.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrGradingResultNotFound indicates the submission exists but was never graded.
var ErrGradingResultNotFound = errors.New("grading result not found")

// TextExtractor turns a stored document into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, ref document.Reference) (string, error)
}

// GradingService runs the grading pipeline for stored submissions.
type GradingService interface {
	Submit(ctx context.Context, submissionID uint) (models.GradingResult, error)
	Regrade(ctx context.Context, submissionID uint) (models.GradingResult, error)
	Latest(ctx context.Context, submissionID uint) (models.GradingResult, error)
	History(ctx context.Context, submissionID uint) ([]models.GradingResult, error)
	InFlight(submissionID uint) (GradingState, bool)
}

// GradingConfig identifies the generation backend recorded on every attempt.
type GradingConfig struct {
	Provider string
	Model    string
}

type gradingService struct {
	submissions repository.SubmissionRepository
	results     repository.GradingResultRepository
	extractor   TextExtractor
	synthesizer AnswerSynthesizer
	grader      SubmissionGrader
	guard       GradingGuard
	publisher   GradingEventPublisher
	logger      zerolog.Logger
	tracer      trace.Tracer
	config      GradingConfig
	group       singleflight.Group
	now         func() time.Time
}

// gradingAttempt is the bookkeeping for one run of the pipeline.
type gradingAttempt struct {
	submissionID uint
	trigger      models.GradingTrigger
	lease        *GradingLease
	logger       zerolog.Logger
	stageMillis  map[string]int64
	details      datatypes.JSONMap
}

// NewGradingService constructs the grading orchestrator. publisher may be nil.
func NewGradingService(
	submissions repository.SubmissionRepository,
	results repository.GradingResultRepository,
	extractor TextExtractor,
	synthesizer AnswerSynthesizer,
	grader SubmissionGrader,
	guard GradingGuard,
	publisher GradingEventPublisher,
	logger zerolog.Logger,
	cfg GradingConfig,
) GradingService {
	return &gradingService{
		submissions: submissions,
		results:     results,
		extractor:   extractor,
		synthesizer: synthesizer,
		grader:      grader,
		guard:       guard,
		publisher:   publisher,
		logger:      logger.With().Str("component", "grading_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-grader/internal/service/grading"),
		config:      cfg,
		now:         time.Now,
	}
}

// Submit grades a submission once. A submission that already has a successful
// attempt gets that attempt back without any generation calls. Concurrent
// calls for the same submission share one attempt.
func (s *gradingService) Submit(ctx context.Context, submissionID uint) (models.GradingResult, error) {
	value, err, shared := s.group.Do(strconv.FormatUint(uint64(submissionID), 10), func() (interface{}, error) {
		result, err := s.run(ctx, submissionID, models.GradingTriggerSubmit)
		return result, err
	})
	if shared {
		s.logger.Debug().Uint("submission_id", submissionID).Msg("joined running grading attempt")
	}

	result, _ := value.(models.GradingResult)
	return result, err
}

// Regrade always runs a new attempt and keeps earlier ones.
func (s *gradingService) Regrade(ctx context.Context, submissionID uint) (models.GradingResult, error) {
	return s.run(ctx, submissionID, models.GradingTriggerRegrade)
}

func (s *gradingService) Latest(ctx context.Context, submissionID uint) (models.GradingResult, error) {
	result, err := s.results.Latest(ctx, submissionID)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.GradingResult{}, err
	}

	if _, err := s.loadSubmission(ctx, submissionID); err != nil {
		return models.GradingResult{}, err
	}
	return models.GradingResult{}, ErrGradingResultNotFound
}

func (s *gradingService) History(ctx context.Context, submissionID uint) ([]models.GradingResult, error) {
	if _, err := s.loadSubmission(ctx, submissionID); err != nil {
		return nil, err
	}
	return s.results.ListBySubmission(ctx, submissionID)
}

func (s *gradingService) InFlight(submissionID uint) (GradingState, bool) {
	return s.guard.State(submissionID)
}

func (s *gradingService) run(ctx context.Context, submissionID uint, trigger models.GradingTrigger) (models.GradingResult, error) {
	ctx, span := s.tracer.Start(ctx, "grading.run", trace.WithAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
		attribute.String("grading.trigger", string(trigger)),
	))
	defer span.End()

	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_lookup_failed")
		return models.GradingResult{}, err
	}

	if trigger == models.GradingTriggerSubmit {
		if existing, found, err := s.existingSuccess(ctx, submissionID); found || err != nil {
			return existing, err
		}
	}

	lease, err := s.guard.Acquire(ctx, submissionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grading_in_progress")
		return models.GradingResult{}, err
	}
	defer lease.Release(context.WithoutCancel(ctx))

	// another replica may have committed between the first check and the lock
	if trigger == models.GradingTriggerSubmit {
		if existing, found, err := s.existingSuccess(ctx, submissionID); found || err != nil {
			return existing, err
		}
	}

	logger := s.logger.With().
		Uint("submission_id", submissionID).
		Str("trigger", string(trigger)).
		Logger()
	ctx = logger.WithContext(ctx)

	attempt := &gradingAttempt{
		submissionID: submissionID,
		trigger:      trigger,
		lease:        lease,
		logger:       logger,
		stageMillis:  make(map[string]int64),
		details:      datatypes.JSONMap{},
	}

	lease.Set(GradingStateExtracting)
	request, err := s.extractAll(ctx, attempt, submission)
	if err != nil {
		return s.fail(ctx, attempt, err)
	}

	lease.Set(GradingStateSynthesizing)
	started := s.now()
	modelAnswer, err := s.synthesizer.Synthesize(ctx, request.AssignmentText, request.RubricText)
	s.observeStage(attempt, "synthesize", started)
	if err != nil {
		return s.fail(ctx, attempt, asStageError(err, models.GradingStatusSynthesisFailed))
	}

	// Once a model answer exists the attempt is always graded and recorded,
	// even if the caller stops waiting.
	ctx = context.WithoutCancel(ctx)

	lease.Set(GradingStateGrading)
	started = s.now()
	feedback, err := s.grader.Grade(ctx, request.SubmissionText, modelAnswer, request.RubricText)
	s.observeStage(attempt, "grade", started)
	if err != nil {
		return s.fail(ctx, attempt, asStageError(err, models.GradingStatusGradingFailed))
	}

	lease.Set(GradingStateScoring)
	score := ParseScore(feedback)
	if score == nil {
		logger.Warn().Msg("no score found in grading feedback")
	}

	result := s.newResult(attempt, models.GradingStatusSuccess, feedback, score)
	result.ModelAnswer = modelAnswer
	return s.commit(ctx, attempt, result)
}

func (s *gradingService) loadSubmission(ctx context.Context, submissionID uint) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}
	return submission, nil
}

func (s *gradingService) existingSuccess(ctx context.Context, submissionID uint) (models.GradingResult, bool, error) {
	span := trace.SpanFromContext(ctx)
	existing, err := s.results.LatestSuccessful(ctx, submissionID)
	if err == nil {
		span.SetAttributes(attribute.Bool("grading.idempotent", true))
		return existing, true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.GradingResult{}, false, nil
	}
	span.RecordError(err)
	return models.GradingResult{}, false, err
}

func (s *gradingService) extractAll(ctx context.Context, attempt *gradingAttempt, submission models.Submission) (GradingRequest, error) {
	request := GradingRequest{SubmissionID: submission.ID}
	documents := []struct {
		ref    document.Reference
		target *string
	}{
		{ref: submission.Reference(), target: &request.SubmissionText},
		{ref: submission.Assignment.AssignmentReference(), target: &request.AssignmentText},
		{ref: submission.Assignment.RubricReference(), target: &request.RubricText},
	}

	started := s.now()
	defer s.observeStage(attempt, "extract", started)

	var empty []string
	for _, doc := range documents {
		text, err := s.extractor.Extract(ctx, doc.ref)
		if err != nil {
			attempt.details["failed_document"] = doc.ref.String()
			attempt.logger.Error().Err(err).Str("document", doc.ref.String()).Msg("document extraction failed")
			return request, &StageError{
				Status:   models.GradingStatusExtractionFailed,
				Feedback: fmt.Sprintf("Failed to extract text from the %s document.", doc.ref.Category),
				Err:      err,
			}
		}
		if strings.TrimSpace(text) == "" {
			empty = append(empty, string(doc.ref.Category))
		}
		*doc.target = text
	}

	if len(empty) > 0 {
		attempt.details["empty_documents"] = empty
		attempt.logger.Warn().Strs("documents", empty).Msg("documents yielded no text, grading with low confidence")
	}
	return request, nil
}

// fail records a stage failure. Extraction failures are also returned to the caller.
func (s *gradingService) fail(ctx context.Context, attempt *gradingAttempt, err error) (models.GradingResult, error) {
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		trace.SpanFromContext(ctx).RecordError(err)
		return models.GradingResult{}, err
	}

	result, commitErr := s.commit(context.WithoutCancel(ctx), attempt, s.newResult(attempt, stageErr.Status, stageErr.Feedback, nil))
	if commitErr != nil {
		return models.GradingResult{}, commitErr
	}

	if stageErr.Status == models.GradingStatusExtractionFailed {
		return result, stageErr.Err
	}
	return result, nil
}

func (s *gradingService) newResult(attempt *gradingAttempt, status models.GradingStatus, feedback string, score *float64) models.GradingResult {
	if status.Failed() {
		score = nil
	}
	return models.GradingResult{
		SubmissionID: attempt.submissionID,
		Trigger:      attempt.trigger,
		Status:       status,
		Feedback:     feedback,
		Score:        score,
		Provider:     s.config.Provider,
		Model:        s.config.Model,
		CreatedAt:    s.now().UTC(),
	}
}

func (s *gradingService) commit(ctx context.Context, attempt *gradingAttempt, result models.GradingResult) (models.GradingResult, error) {
	span := trace.SpanFromContext(ctx)

	attempt.details["stage_ms"] = attempt.stageMillis
	result.Details = attempt.details

	if err := s.results.Commit(ctx, &result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit_failed")
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.GradingResult{}, ErrSubmissionNotFound
		}
		return models.GradingResult{}, fmt.Errorf("commit grading result: %w", err)
	}
	attempt.lease.Set(GradingStateCommitted)

	observability.GradingRuns().WithLabelValues(string(result.Trigger), string(result.Status)).Inc()
	span.SetAttributes(
		attribute.Int("grading.attempt", result.Attempt),
		attribute.String("grading.status", string(result.Status)),
		attribute.Bool("grading.scored", result.Score != nil),
	)

	event := attempt.logger.Info()
	if result.Status.Failed() {
		span.SetStatus(codes.Error, string(result.Status))
		event = attempt.logger.Warn()
	}
	if result.Score != nil {
		event = event.Float64("score", *result.Score)
	}
	event.Int("attempt", result.Attempt).Str("status", string(result.Status)).Msg("grading attempt recorded")

	if s.publisher != nil {
		if err := s.publisher.PublishCompleted(ctx, result); err != nil {
			attempt.logger.Warn().Err(err).Msg("failed to publish grading completion")
		}
	}

	return result, nil
}

func (s *gradingService) observeStage(attempt *gradingAttempt, stage string, started time.Time) {
	elapsed := s.now().Sub(started)
	attempt.stageMillis[stage] = elapsed.Milliseconds()
	observability.GradingStageDuration().WithLabelValues(stage).Observe(elapsed.Seconds())
}
