package models

import "time"

// Weekday identifies one of the five working days.
type Weekday string

const (
	WeekdayMonday    Weekday = "MONDAY"
	WeekdayTuesday   Weekday = "TUESDAY"
	WeekdayWednesday Weekday = "WEDNESDAY"
	WeekdayThursday  Weekday = "THURSDAY"
	WeekdayFriday    Weekday = "FRIDAY"
)

// WorkingWeekdays lists the five working days in calendar order.
var WorkingWeekdays = []Weekday{
	WeekdayMonday,
	WeekdayTuesday,
	WeekdayWednesday,
	WeekdayThursday,
	WeekdayFriday,
}

// WeekdayOf maps a calendar date onto the working-week enum. The second
// return value is false for Saturdays and Sundays.
func WeekdayOf(date time.Time) (Weekday, bool) {
	switch date.Weekday() {
	case time.Monday:
		return WeekdayMonday, true
	case time.Tuesday:
		return WeekdayTuesday, true
	case time.Wednesday:
		return WeekdayWednesday, true
	case time.Thursday:
		return WeekdayThursday, true
	case time.Friday:
		return WeekdayFriday, true
	default:
		return "", false
	}
}

// Slot identifies a half-day teaching period.
type Slot string

const (
	SlotMorning   Slot = "MORNING"
	SlotAfternoon Slot = "AFTERNOON"
)

// Slots lists the two half-day periods in chronological order.
var Slots = []Slot{SlotMorning, SlotAfternoon}

// AvailabilityKind distinguishes a plain weekly declaration from an
// exceptional standing pattern.
type AvailabilityKind string

const (
	AvailabilityKindAvailable          AvailabilityKind = "available"
	AvailabilityKindExceptionalPattern AvailabilityKind = "available-exceptional-pattern"
)

// RecurringAvailabilityEntry is a trainer's standing weekly declaration for
// one weekday/slot. A nil LocationID means the trainer declared no location
// preference. Redeclaration replaces the trainer's whole row set as a batch.
type RecurringAvailabilityEntry struct {
	ID         string           `db:"id" json:"id"`
	TrainerID  string           `db:"trainer_id" json:"trainer_id"`
	Weekday    Weekday          `db:"weekday" json:"weekday"`
	Slot       Slot             `db:"slot" json:"slot"`
	Kind       AvailabilityKind `db:"kind" json:"kind"`
	LocationID *string          `db:"location_id" json:"location_id,omitempty"`
	Validated  bool             `db:"validated" json:"validated"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}
