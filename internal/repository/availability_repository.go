package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/planordo/planning-api/internal/models"
)

// AvailabilityRepository persists recurring weekly availability declarations.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListByTrainer returns every declaration for a trainer, validated or not.
func (r *AvailabilityRepository) ListByTrainer(ctx context.Context, trainerID string) ([]models.RecurringAvailabilityEntry, error) {
	const query = `SELECT id, trainer_id, weekday, slot, kind, location_id, validated, created_at, updated_at
FROM recurring_availabilities WHERE trainer_id = $1 ORDER BY weekday, slot`
	var entries []models.RecurringAvailabilityEntry
	if err := r.db.SelectContext(ctx, &entries, query, trainerID); err != nil {
		return nil, fmt.Errorf("list availabilities: %w", err)
	}
	return entries, nil
}

// FindValidated returns the validated declaration for one trainer/weekday/slot
// triple, or sql.ErrNoRows when the trainer has none.
func (r *AvailabilityRepository) FindValidated(ctx context.Context, trainerID string, weekday models.Weekday, slot models.Slot) (*models.RecurringAvailabilityEntry, error) {
	const query = `SELECT id, trainer_id, weekday, slot, kind, location_id, validated, created_at, updated_at
FROM recurring_availabilities WHERE trainer_id = $1 AND weekday = $2 AND slot = $3 AND validated = TRUE`
	var entry models.RecurringAvailabilityEntry
	if err := r.db.GetContext(ctx, &entry, query, trainerID, weekday, slot); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ReplaceForTrainer supersedes a trainer's declaration set: all existing rows
// are deleted and the new batch inserted inside one transaction, so readers
// never observe a partial redeclaration.
func (r *AvailabilityRepository) ReplaceForTrainer(ctx context.Context, trainerID string, entries []models.RecurringAvailabilityEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin availability replace: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const deleteQuery = `DELETE FROM recurring_availabilities WHERE trainer_id = $1`
	if _, err := tx.ExecContext(ctx, deleteQuery, trainerID); err != nil {
		return fmt.Errorf("delete availabilities: %w", err)
	}

	now := time.Now().UTC()
	const insertQuery = `INSERT INTO recurring_availabilities (id, trainer_id, weekday, slot, kind, location_id, validated, created_at, updated_at)
VALUES (:id, :trainer_id, :weekday, :slot, :kind, :location_id, :validated, :created_at, :updated_at)`
	for i := range entries {
		entry := &entries[i]
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		entry.TrainerID = trainerID
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		entry.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, insertQuery, entry); err != nil {
			return fmt.Errorf("insert availability: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit availability replace: %w", err)
	}
	return nil
}

// ValidateForTrainer marks every declaration of a trainer as validated.
func (r *AvailabilityRepository) ValidateForTrainer(ctx context.Context, trainerID string) error {
	const query = `UPDATE recurring_availabilities SET validated = TRUE, updated_at = $2 WHERE trainer_id = $1`
	if _, err := r.db.ExecContext(ctx, query, trainerID, time.Now().UTC()); err != nil {
		return fmt.Errorf("validate availabilities: %w", err)
	}
	return nil
}
