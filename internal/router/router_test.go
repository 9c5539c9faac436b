package router_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/database"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/internal/router"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/pkg/ai"
	"github.com/noah-isme/gema-grader/pkg/document"
)

type scriptedGenerator struct{}

func (scriptedGenerator) Generate(_ context.Context, req ai.GenerationRequest) (string, error) {
	if strings.Contains(req.Prompt, "generate detailed model answers") {
		return "Photosynthesis turns light, water and carbon dioxide into glucose using chlorophyll.", nil
	}
	return "Score: 9/10. Good mention of chlorophyll.", nil
}

func writeDocument(t *testing.T, root string, ref document.Reference, content string) {
	t.Helper()
	dir := filepath.Join(root, ref.Category.Folder())
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ref.Name), []byte(content), 0o600))
}

func setupApp(t *testing.T) (*fiber.App, models.Submission) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:router_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	assignment := models.Assignment{Title: "Photosynthesis", AssignmentFile: "photo.txt", RubricFile: "photo-rubric.txt"}
	require.NoError(t, db.Create(&assignment).Error)
	submission := models.Submission{AssignmentID: assignment.ID, StudentID: 1, SubmissionFile: "jane_1_photo.txt", Status: models.SubmissionStatusSubmitted}
	require.NoError(t, db.Create(&submission).Error)

	root := t.TempDir()
	writeDocument(t, root, assignment.AssignmentReference(), "Explain photosynthesis.")
	writeDocument(t, root, assignment.RubricReference(), "10 points. Mention chlorophyll.")
	writeDocument(t, root, submission.Reference(), "Plants use sunlight and chlorophyll.")

	logger := zerolog.New(io.Discard)
	generator := scriptedGenerator{}
	gradingService := service.NewGradingService(
		repository.NewSubmissionRepository(db),
		repository.NewGradingResultRepository(db),
		document.NewExtractor(document.NewAFSStore(root), logger),
		service.NewAnswerSynthesizer(generator, service.DefaultSynthesisConfig(), logger),
		service.NewSubmissionGrader(generator, service.DefaultGradingConfig(), logger),
		service.NewGradingGuard(nil, "", 0, logger),
		service.NewGradingEventPublisher(nil, nil, "", logger),
		logger,
		service.GradingConfig{Provider: "openai", Model: "scripted"},
	)

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, config.Config{AppName: "GEMA Grader", AppEnv: "test"}, router.Dependencies{
		GradingHandler: handler.NewGradingHandler(gradingService, validator.New(validator.WithRequiredStructEnabled()), logger),
	})
	return app, submission
}

func TestGradingRoutesEndToEnd(t *testing.T) {
	app, submission := setupApp(t)
	base := "/api/v2/grading/submissions/" + strconv.FormatUint(uint64(submission.ID), 10)

	resp, err := app.Test(httptest.NewRequest("POST", base+"/grade", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))

	var graded struct {
		Data struct {
			Status   string   `json:"status"`
			Feedback string   `json:"feedback"`
			Score    *float64 `json:"score"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&graded))
	require.Equal(t, "success", graded.Data.Status)
	require.Equal(t, "Score: 9/10. Good mention of chlorophyll.", graded.Data.Feedback)
	require.NotNil(t, graded.Data.Score)
	require.InDelta(t, 9.0, *graded.Data.Score, 1e-9)

	resp, err = app.Test(httptest.NewRequest("POST", base+"/regrade", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", base+"/results", nil), -1)
	require.NoError(t, err)
	var history struct {
		Data struct {
			Attempts []struct {
				Attempt int    `json:"attempt"`
				Trigger string `json:"trigger"`
			} `json:"attempts"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	require.Len(t, history.Data.Attempts, 2)
	require.Equal(t, "regrade", history.Data.Attempts[1].Trigger)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v2/grading/submissions/999/result", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	app, _ := setupApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/health", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "GEMA Grader", resp.Header.Get("X-Application"))

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
