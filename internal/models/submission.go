package models

import (
	"time"

	"github.com/noah-isme/gema-grader/pkg/document"
)

// Submission represents a document submitted by a student for an assignment.
// Feedback and Score mirror the most recent grading attempt.
type Submission struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	AssignmentID   uint            `gorm:"not null;index" json:"assignment_id"`
	StudentID      uint            `gorm:"not null;index" json:"student_id"`
	SubmissionFile string          `gorm:"size:255;not null" json:"submission_file"`
	Status         string          `gorm:"size:32;not null" json:"status"`
	Score          *float64        `json:"score"`
	Feedback       string          `gorm:"type:text" json:"feedback"`
	GradedAt       *time.Time      `json:"graded_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Assignment     Assignment      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment"`
	Results        []GradingResult `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

const (
	// SubmissionStatusSubmitted indicates the submission has been uploaded but not graded.
	SubmissionStatusSubmitted = "submitted"
	// SubmissionStatusGraded indicates the latest grading attempt succeeded.
	SubmissionStatusGraded = "graded"
	// SubmissionStatusGradingFailed indicates the latest grading attempt failed.
	SubmissionStatusGradingFailed = "grading_failed"
)

// Reference points at the stored submission document.
func (s Submission) Reference() document.Reference {
	return document.NewReference(document.CategorySubmission, s.SubmissionFile)
}
