package models

import (
	"time"

	"gorm.io/datatypes"
)

// GradingStatus is the terminal outcome of one grading attempt.
type GradingStatus string

const (
	GradingStatusSuccess          GradingStatus = "success"
	GradingStatusExtractionFailed GradingStatus = "extraction_failed"
	GradingStatusSynthesisFailed  GradingStatus = "synthesis_failed"
	GradingStatusGradingFailed    GradingStatus = "grading_failed"
)

// Failed reports whether the attempt ended in one of the failure states.
func (s GradingStatus) Failed() bool {
	return s != GradingStatusSuccess
}

// GradingTrigger records which operation started an attempt.
type GradingTrigger string

const (
	GradingTriggerSubmit  GradingTrigger = "submit"
	GradingTriggerRegrade GradingTrigger = "regrade"
)

// GradingResult is the immutable record of one grading attempt.
// A failed attempt never carries a score; its feedback explains the failure.
type GradingResult struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	SubmissionID uint              `gorm:"not null;uniqueIndex:idx_grading_results_attempt,priority:1" json:"submission_id"`
	Attempt      int               `gorm:"not null;uniqueIndex:idx_grading_results_attempt,priority:2" json:"attempt"`
	Trigger      GradingTrigger    `gorm:"size:16;not null" json:"trigger"`
	Status       GradingStatus     `gorm:"size:32;not null;index" json:"status"`
	Feedback     string            `gorm:"type:text;not null" json:"feedback"`
	Score        *float64          `json:"score"`
	ModelAnswer  string            `gorm:"type:text" json:"model_answer,omitempty"`
	Provider     string            `gorm:"size:32" json:"provider"`
	Model        string            `gorm:"size:64" json:"model"`
	Details      datatypes.JSONMap `json:"details,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}
