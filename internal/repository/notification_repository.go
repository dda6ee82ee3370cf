package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/planordo/planning-api/internal/models"
)

// NotificationRepository stores trainer notification trigger records.
// Message content is generated by a downstream collaborator.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Insert stores one notification record.
func (r *NotificationRepository) Insert(ctx context.Context, notification *models.TrainerNotification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	if len(notification.Payload) == 0 {
		notification.Payload = []byte("{}")
	}

	const query = `INSERT INTO trainer_notifications (id, trainer_id, event, payload, created_at)
VALUES (:id, :trainer_id, :event, :payload, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notification); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
