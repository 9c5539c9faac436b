package dto

import (
	"time"

	"github.com/noah-isme/gema-grader/internal/models"
)

// SubmissionParams binds the :id parameter of the grading routes.
type SubmissionParams struct {
	SubmissionID uint `params:"id" validate:"required,gt=0"`
}

// GradingResultResponse is returned to API clients for one grading attempt.
type GradingResultResponse struct {
	ID           uint                   `json:"id"`
	SubmissionID uint                   `json:"submission_id"`
	Attempt      int                    `json:"attempt"`
	Trigger      string                 `json:"trigger"`
	Status       string                 `json:"status"`
	Feedback     string                 `json:"feedback"`
	Score        *float64               `json:"score"`
	ModelAnswer  string                 `json:"model_answer,omitempty"`
	Provider     string                 `json:"provider,omitempty"`
	Model        string                 `json:"model,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// GradingStatusResponse reports whether an attempt is running for a submission.
type GradingStatusResponse struct {
	SubmissionID uint   `json:"submission_id"`
	InFlight     bool   `json:"in_flight"`
	State        string `json:"state,omitempty"`
}

// GradingHistoryResponse lists every attempt recorded for a submission, oldest first.
type GradingHistoryResponse struct {
	SubmissionID uint                    `json:"submission_id"`
	Attempts     []GradingResultResponse `json:"attempts"`
}

// NewGradingResultResponse converts a model to its API shape.
func NewGradingResultResponse(result models.GradingResult) GradingResultResponse {
	response := GradingResultResponse{
		ID:           result.ID,
		SubmissionID: result.SubmissionID,
		Attempt:      result.Attempt,
		Trigger:      string(result.Trigger),
		Status:       string(result.Status),
		Feedback:     result.Feedback,
		ModelAnswer:  result.ModelAnswer,
		Provider:     result.Provider,
		Model:        result.Model,
		CreatedAt:    result.CreatedAt,
	}
	if result.Score != nil {
		score := *result.Score
		response.Score = &score
	}
	if len(result.Details) > 0 {
		response.Details = map[string]interface{}(result.Details)
	}
	return response
}

// NewGradingHistoryResponse converts attempts into the history payload.
func NewGradingHistoryResponse(submissionID uint, results []models.GradingResult) GradingHistoryResponse {
	attempts := make([]GradingResultResponse, 0, len(results))
	for _, result := range results {
		attempts = append(attempts, NewGradingResultResponse(result))
	}
	return GradingHistoryResponse{SubmissionID: submissionID, Attempts: attempts}
}
