package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/planordo/planning-api/internal/models"
)

// ExceptionRepository persists dated exception records.
type ExceptionRepository struct {
	db *sqlx.DB
}

// NewExceptionRepository constructs the repository.
func NewExceptionRepository(db *sqlx.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

// FindByID returns one exception record.
func (r *ExceptionRepository) FindByID(ctx context.Context, id string) (*models.ExceptionRecord, error) {
	const query = `SELECT id, trainer_id, start_date, end_date, kind, status, reason, approved_at, created_at, updated_at
FROM exception_records WHERE id = $1`
	var record models.ExceptionRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByTrainer returns every exception record for a trainer, newest first.
func (r *ExceptionRepository) ListByTrainer(ctx context.Context, trainerID string) ([]models.ExceptionRecord, error) {
	const query = `SELECT id, trainer_id, start_date, end_date, kind, status, reason, approved_at, created_at, updated_at
FROM exception_records WHERE trainer_id = $1 ORDER BY start_date DESC, id`
	var records []models.ExceptionRecord
	if err := r.db.SelectContext(ctx, &records, query, trainerID); err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	return records, nil
}

// ListApprovedCovering returns the approved records whose inclusive range
// contains the date, most recently approved first. Arbitration relies on
// that ordering for the overlapping-record tie-break.
func (r *ExceptionRepository) ListApprovedCovering(ctx context.Context, trainerID string, date time.Time) ([]models.ExceptionRecord, error) {
	const query = `SELECT id, trainer_id, start_date, end_date, kind, status, reason, approved_at, created_at, updated_at
FROM exception_records
WHERE trainer_id = $1 AND status = 'approved' AND start_date <= $2 AND end_date >= $2
ORDER BY approved_at DESC, id`
	var records []models.ExceptionRecord
	if err := r.db.SelectContext(ctx, &records, query, trainerID, date); err != nil {
		return nil, fmt.Errorf("list approved exceptions: %w", err)
	}
	return records, nil
}

// Insert stores a new pending record.
func (r *ExceptionRepository) Insert(ctx context.Context, record *models.ExceptionRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = models.ExceptionStatusPending
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	const query = `INSERT INTO exception_records (id, trainer_id, start_date, end_date, kind, status, reason, approved_at, created_at, updated_at)
VALUES (:id, :trainer_id, :start_date, :end_date, :kind, :status, :reason, :approved_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("insert exception: %w", err)
	}
	return nil
}

// Approve transitions a pending record to approved, stamping approved_at.
func (r *ExceptionRepository) Approve(ctx context.Context, id string, approvedAt time.Time) error {
	const query = `UPDATE exception_records SET status = 'approved', approved_at = $2, updated_at = $2 WHERE id = $1 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, id, approvedAt.UTC())
	if err != nil {
		return fmt.Errorf("approve exception: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("approve exception rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("exception %s is not pending", id)
	}
	return nil
}

// Delete removes a record regardless of status.
func (r *ExceptionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM exception_records WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete exception: %w", err)
	}
	return nil
}
