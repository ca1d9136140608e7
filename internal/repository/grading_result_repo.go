package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/audeo-edu/intelligrade-api/internal/models"
)

// GradingResultFilter allows narrowing result queries.
type GradingResultFilter struct {
	QuestionID *string
	SessionID  *string
	Method     *string
}

// GradingResultRepository defines data operations for persisted grading results.
type GradingResultRepository interface {
	Create(ctx context.Context, result *models.GradingResult) error
	CreateBatch(ctx context.Context, results []models.GradingResult) error
	List(ctx context.Context, filter GradingResultFilter) ([]models.GradingResult, error)
}

type gradingResultRepository struct {
	db *gorm.DB
}

// NewGradingResultRepository instantiates the repository.
func NewGradingResultRepository(db *gorm.DB) GradingResultRepository {
	return &gradingResultRepository{db: db}
}

func (r *gradingResultRepository) Create(ctx context.Context, result *models.GradingResult) error {
	return r.db.WithContext(ctx).Create(result).Error
}

func (r *gradingResultRepository) CreateBatch(ctx context.Context, results []models.GradingResult) error {
	if len(results) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).CreateInBatches(results, 100).Error
}

func (r *gradingResultRepository) List(ctx context.Context, filter GradingResultFilter) ([]models.GradingResult, error) {
	query := r.db.WithContext(ctx).Model(&models.GradingResult{})

	if filter.QuestionID != nil {
		query = query.Where("question_id = ?", *filter.QuestionID)
	}

	if filter.SessionID != nil {
		query = query.Where("session_id = ?", *filter.SessionID)
	}

	if filter.Method != nil {
		query = query.Where("method = ?", *filter.Method)
	}

	var results []models.GradingResult
	if err := query.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}

	return results, nil
}
