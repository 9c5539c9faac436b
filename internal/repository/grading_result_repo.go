package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/models"
)

// GradingResultRepository persists grading attempts. Attempts are append-only.
type GradingResultRepository interface {
	Commit(ctx context.Context, result *models.GradingResult) error
	Latest(ctx context.Context, submissionID uint) (models.GradingResult, error)
	LatestSuccessful(ctx context.Context, submissionID uint) (models.GradingResult, error)
	ListBySubmission(ctx context.Context, submissionID uint) ([]models.GradingResult, error)
}

type gradingResultRepository struct {
	db *gorm.DB
}

// NewGradingResultRepository constructs a GORM-backed grading result repository.
func NewGradingResultRepository(db *gorm.DB) GradingResultRepository {
	return &gradingResultRepository{db: db}
}

// Commit stores result as the next attempt for its submission and refreshes the
// submission's grade snapshot in the same transaction. A failed attempt never
// replaces an existing successful grade on the submission row.
func (r *gradingResultRepository) Commit(ctx context.Context, result *models.GradingResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lastAttempt int
		if err := tx.Model(&models.GradingResult{}).
			Where("submission_id = ?", result.SubmissionID).
			Select("COALESCE(MAX(attempt), 0)").
			Scan(&lastAttempt).Error; err != nil {
			return err
		}

		result.Attempt = lastAttempt + 1
		if err := tx.Create(result).Error; err != nil {
			return err
		}

		if result.Status.Failed() {
			return tx.Model(&models.Submission{}).
				Where("id = ? AND status <> ?", result.SubmissionID, models.SubmissionStatusGraded).
				Update("status", models.SubmissionStatusGradingFailed).Error
		}

		update := tx.Model(&models.Submission{}).
			Where("id = ?", result.SubmissionID).
			Updates(map[string]interface{}{
				"status":    models.SubmissionStatusGraded,
				"feedback":  result.Feedback,
				"score":     result.Score,
				"graded_at": result.CreatedAt,
			})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *gradingResultRepository) Latest(ctx context.Context, submissionID uint) (models.GradingResult, error) {
	var result models.GradingResult
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("attempt DESC").
		First(&result).Error
	if err != nil {
		return models.GradingResult{}, err
	}
	return result, nil
}

func (r *gradingResultRepository) LatestSuccessful(ctx context.Context, submissionID uint) (models.GradingResult, error) {
	var result models.GradingResult
	err := r.db.WithContext(ctx).
		Where("submission_id = ? AND status = ?", submissionID, models.GradingStatusSuccess).
		Order("attempt DESC").
		First(&result).Error
	if err != nil {
		return models.GradingResult{}, err
	}
	return result, nil
}

func (r *gradingResultRepository) ListBySubmission(ctx context.Context, submissionID uint) ([]models.GradingResult, error) {
	var results []models.GradingResult
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("attempt ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
