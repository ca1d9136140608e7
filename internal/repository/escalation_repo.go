package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/audeo-edu/intelligrade-api/internal/models"
)

// EscalationRepository persists routing escalation outcomes for offline audit.
// Rows are append-only.
type EscalationRepository interface {
	Create(ctx context.Context, outcome *models.EscalationOutcome) error
	ListRecent(ctx context.Context, limit int) ([]models.EscalationOutcome, error)
}

type escalationRepository struct {
	db *gorm.DB
}

// NewEscalationRepository instantiates the repository.
func NewEscalationRepository(db *gorm.DB) EscalationRepository {
	return &escalationRepository{db: db}
}

func (r *escalationRepository) Create(ctx context.Context, outcome *models.EscalationOutcome) error {
	return r.db.WithContext(ctx).Create(outcome).Error
}

func (r *escalationRepository) ListRecent(ctx context.Context, limit int) ([]models.EscalationOutcome, error) {
	if limit <= 0 {
		limit = 50
	}

	var outcomes []models.EscalationOutcome
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&outcomes).Error; err != nil {
		return nil, err
	}

	return outcomes, nil
}
