package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/pkg/ai"
	"github.com/noah-isme/gema-grader/pkg/document"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func floatPtr(v float64) *float64 {
	return &v
}

type stubGenerator struct {
	mu       sync.Mutex
	requests []ai.GenerationRequest
	respond  func(ctx context.Context, req ai.GenerationRequest) (string, error)
}

func (g *stubGenerator) Generate(ctx context.Context, req ai.GenerationRequest) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	return g.respond(ctx, req)
}

func (g *stubGenerator) calls(system string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := 0
	for _, req := range g.requests {
		if req.System == system {
			count++
		}
	}
	return count
}

func isSynthesis(req ai.GenerationRequest) bool {
	return req.System == synthesisSystemRole
}

type stubExtractor struct {
	texts  map[string]string
	errors map[string]error
}

func (e *stubExtractor) Extract(ctx context.Context, ref document.Reference) (string, error) {
	if err, ok := e.errors[ref.String()]; ok {
		return "", &document.ExtractionError{Reference: ref, Err: err}
	}
	return e.texts[ref.String()], nil
}

type gradingFixture struct {
	service    GradingService
	db         *gorm.DB
	submission models.Submission
	generator  *stubGenerator
	extractor  *stubExtractor
	guard      GradingGuard
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:svc_" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Assignment{}, &models.Submission{}, &models.GradingResult{}))
	return db
}

func newGradingFixture(t *testing.T, generator *stubGenerator, gradingCfg GenerationConfig) *gradingFixture {
	t.Helper()

	db := setupServiceDB(t)
	assignment := models.Assignment{Title: "Photosynthesis", AssignmentFile: "photo.pdf", RubricFile: "photo-rubric.pdf"}
	require.NoError(t, db.Create(&assignment).Error)
	submission := models.Submission{
		AssignmentID:   assignment.ID,
		StudentID:      3,
		SubmissionFile: "jane_1_photo.pdf",
		Status:         models.SubmissionStatusSubmitted,
	}
	require.NoError(t, db.Create(&submission).Error)

	extractor := &stubExtractor{
		texts: map[string]string{
			"assignment:photo.pdf":        "Explain photosynthesis.",
			"rubric:photo-rubric.pdf":     "10 points; must mention chlorophyll and sunlight.",
			"submission:jane_1_photo.pdf": "Plants use sunlight and chlorophyll to make glucose.",
		},
		errors: map[string]error{},
	}

	guard := NewGradingGuard(nil, "", 0, testLogger())
	svc := NewGradingService(
		repository.NewSubmissionRepository(db),
		repository.NewGradingResultRepository(db),
		extractor,
		NewAnswerSynthesizer(generator, DefaultSynthesisConfig(), testLogger()),
		NewSubmissionGrader(generator, gradingCfg, testLogger()),
		guard,
		nil,
		testLogger(),
		GradingConfig{Provider: "openai", Model: "test-model"},
	)

	return &gradingFixture{
		service:    svc,
		db:         db,
		submission: submission,
		generator:  generator,
		extractor:  extractor,
		guard:      guard,
	}
}

func (f *gradingFixture) storedSubmission(t *testing.T) models.Submission {
	t.Helper()
	var submission models.Submission
	require.NoError(t, f.db.First(&submission, f.submission.ID).Error)
	return submission
}

func (f *gradingFixture) resultCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.GradingResult{}).Where("submission_id = ?", f.submission.ID).Count(&count).Error)
	return count
}
