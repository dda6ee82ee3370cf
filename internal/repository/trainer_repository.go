package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/planordo/planning-api/internal/models"
)

// TrainerRepository reads the trainer roster.
type TrainerRepository struct {
	db *sqlx.DB
}

// NewTrainerRepository constructs the repository.
func NewTrainerRepository(db *sqlx.DB) *TrainerRepository {
	return &TrainerRepository{db: db}
}

// ListActive returns all active trainers ordered by name.
func (r *TrainerRepository) ListActive(ctx context.Context) ([]models.Trainer, error) {
	const query = `SELECT id, name, role, active, created_at, updated_at FROM trainers WHERE active = TRUE ORDER BY name, id`
	var trainers []models.Trainer
	if err := r.db.SelectContext(ctx, &trainers, query); err != nil {
		return nil, fmt.Errorf("list active trainers: %w", err)
	}
	return trainers, nil
}

// FindByID returns one trainer.
func (r *TrainerRepository) FindByID(ctx context.Context, id string) (*models.Trainer, error) {
	const query = `SELECT id, name, role, active, created_at, updated_at FROM trainers WHERE id = $1`
	var trainer models.Trainer
	if err := r.db.GetContext(ctx, &trainer, query, id); err != nil {
		return nil, err
	}
	return &trainer, nil
}
