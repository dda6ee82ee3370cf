package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// TrainerNotification records an event addressed to a trainer. Message
// content is generated elsewhere; only the triggering event and its payload
// (dates, kind, before/after state) are stored here.
type TrainerNotification struct {
	ID        string         `db:"id" json:"id"`
	TrainerID string         `db:"trainer_id" json:"trainer_id"`
	Event     string         `db:"event" json:"event"`
	Payload   types.JSONText `db:"payload" json:"payload"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}
