package models

import "time"

// ExceptionKind distinguishes the two dated overrides.
type ExceptionKind string

const (
	ExceptionKindAbsence     ExceptionKind = "absence"
	ExceptionKindExceptional ExceptionKind = "exceptional-availability"
)

// ExceptionStatus is the workflow state of an exception record.
type ExceptionStatus string

const (
	ExceptionStatusPending  ExceptionStatus = "pending"
	ExceptionStatusApproved ExceptionStatus = "approved"
)

// ExceptionRecord is a dated override of a trainer's recurring pattern.
// Dates are inclusive on both ends. The record only affects arbitration once
// approved; ApprovedAt orders overlapping records for the recency tie-break.
type ExceptionRecord struct {
	ID         string          `db:"id" json:"id"`
	TrainerID  string          `db:"trainer_id" json:"trainer_id"`
	StartDate  time.Time       `db:"start_date" json:"start_date"`
	EndDate    time.Time       `db:"end_date" json:"end_date"`
	Kind       ExceptionKind   `db:"kind" json:"kind"`
	Status     ExceptionStatus `db:"status" json:"status"`
	Reason     *string         `db:"reason" json:"reason,omitempty"`
	ApprovedAt *time.Time      `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// Covers reports whether the record's inclusive date range contains the
// provided date (compared at day precision, UTC).
func (e *ExceptionRecord) Covers(date time.Time) bool {
	d := truncateToDay(date)
	return !d.Before(truncateToDay(e.StartDate)) && !d.After(truncateToDay(e.EndDate))
}

// Dates enumerates every calendar date in the record's inclusive range.
func (e *ExceptionRecord) Dates() []time.Time {
	var dates []time.Time
	for d := truncateToDay(e.StartDate); !d.After(truncateToDay(e.EndDate)); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
