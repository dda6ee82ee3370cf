package models

import (
	"time"

	"github.com/lib/pq"
)

// DutyAssignment is the coordinator's concrete placement of trainers and
// learners at a location for one date/slot. Weekly planning writes replace
// the whole week's rows in one transaction, never a partial row update.
type DutyAssignment struct {
	ID         string         `db:"id" json:"id"`
	Date       time.Time      `db:"date" json:"date"`
	Weekday    Weekday        `db:"weekday" json:"weekday"`
	Slot       Slot           `db:"slot" json:"slot"`
	LocationID string         `db:"location_id" json:"location_id"`
	TrainerIDs pq.StringArray `db:"trainer_ids" json:"trainer_ids"`
	LearnerIDs pq.StringArray `db:"learner_ids" json:"learner_ids"`
	StaffID    *string        `db:"staff_id" json:"staff_id,omitempty"`
	Validated  bool           `db:"validated" json:"validated"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// HasTrainer reports whether the assignment's trainer list contains the id.
func (a *DutyAssignment) HasTrainer(trainerID string) bool {
	for _, id := range a.TrainerIDs {
		if id == trainerID {
			return true
		}
	}
	return false
}
