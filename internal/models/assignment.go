package models

import (
	"time"

	"github.com/noah-isme/gema-grader/pkg/document"
)

// Assignment represents an assignment definition and its rubric, both stored as documents.
type Assignment struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	Title          string       `gorm:"size:255;not null" json:"title"`
	AssignmentFile string       `gorm:"size:255;not null" json:"assignment_file"`
	RubricFile     string       `gorm:"size:255;not null" json:"rubric_file"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	Submissions    []Submission `json:"-"`
}

// AssignmentReference points at the stored assignment instructions.
func (a Assignment) AssignmentReference() document.Reference {
	return document.NewReference(document.CategoryAssignment, a.AssignmentFile)
}

// RubricReference points at the stored grading rubric.
func (a Assignment) RubricReference() document.Reference {
	return document.NewReference(document.CategoryRubric, a.RubricFile)
}
