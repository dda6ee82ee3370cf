package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/planordo/planning-api/internal/models"
)

// AssignmentRepository persists the coordinator's weekly duty assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// ListByDateSlot returns the assignments for one date and slot.
func (r *AssignmentRepository) ListByDateSlot(ctx context.Context, date time.Time, slot models.Slot) ([]models.DutyAssignment, error) {
	const query = `SELECT id, date, weekday, slot, location_id, trainer_ids, learner_ids, staff_id, validated, created_at, updated_at
FROM duty_assignments WHERE date = $1 AND slot = $2 ORDER BY location_id, id`
	var assignments []models.DutyAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, date, slot); err != nil {
		return nil, fmt.Errorf("list assignments by date/slot: %w", err)
	}
	return assignments, nil
}

// ListWeek returns the assignments for the seven days starting at weekStart.
func (r *AssignmentRepository) ListWeek(ctx context.Context, weekStart time.Time) ([]models.DutyAssignment, error) {
	const query = `SELECT id, date, weekday, slot, location_id, trainer_ids, learner_ids, staff_id, validated, created_at, updated_at
FROM duty_assignments WHERE date >= $1 AND date < $2 ORDER BY date, slot, location_id`
	var assignments []models.DutyAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, weekStart, weekStart.AddDate(0, 0, 7)); err != nil {
		return nil, fmt.Errorf("list week assignments: %w", err)
	}
	return assignments, nil
}

// ListHistoryByWeekdaySlot returns a trainer's past assignments matching the
// weekday and slot, oldest first. Location inference counts these.
func (r *AssignmentRepository) ListHistoryByWeekdaySlot(ctx context.Context, trainerID string, weekday models.Weekday, slot models.Slot) ([]models.DutyAssignment, error) {
	const query = `SELECT id, date, weekday, slot, location_id, trainer_ids, learner_ids, staff_id, validated, created_at, updated_at
FROM duty_assignments WHERE $1 = ANY(trainer_ids) AND weekday = $2 AND slot = $3 ORDER BY date, id`
	var assignments []models.DutyAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, trainerID, weekday, slot); err != nil {
		return nil, fmt.Errorf("list assignment history: %w", err)
	}
	return assignments, nil
}

// ReplaceWeek supersedes the whole week's assignment set: the week's rows are
// deleted and the new batch inserted inside one transaction, mirroring the
// coordinator's full weekly publication.
func (r *AssignmentRepository) ReplaceWeek(ctx context.Context, weekStart time.Time, assignments []models.DutyAssignment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin week replace: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const deleteQuery = `DELETE FROM duty_assignments WHERE date >= $1 AND date < $2`
	if _, err := tx.ExecContext(ctx, deleteQuery, weekStart, weekStart.AddDate(0, 0, 7)); err != nil {
		return fmt.Errorf("delete week assignments: %w", err)
	}

	now := time.Now().UTC()
	const insertQuery = `INSERT INTO duty_assignments (id, date, weekday, slot, location_id, trainer_ids, learner_ids, staff_id, validated, created_at, updated_at)
VALUES (:id, :date, :weekday, :slot, :location_id, :trainer_ids, :learner_ids, :staff_id, :validated, :created_at, :updated_at)`
	for i := range assignments {
		assignment := &assignments[i]
		if assignment.ID == "" {
			assignment.ID = uuid.NewString()
		}
		if assignment.CreatedAt.IsZero() {
			assignment.CreatedAt = now
		}
		assignment.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, insertQuery, assignment); err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit week replace: %w", err)
	}
	return nil
}

// RemoveTrainerFromDate strips the trainer from every assignment row on the
// date and returns the ids of the rows that were touched.
func (r *AssignmentRepository) RemoveTrainerFromDate(ctx context.Context, trainerID string, date time.Time) ([]string, error) {
	const query = `UPDATE duty_assignments
SET trainer_ids = array_remove(trainer_ids, $1), updated_at = $3
WHERE date = $2 AND $1 = ANY(trainer_ids)
RETURNING id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, trainerID, date, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("remove trainer from assignments: %w", err)
	}
	return ids, nil
}
