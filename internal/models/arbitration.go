package models

import "time"

// SlotStatus is the single authoritative status arbitration produces for a
// (trainer, weekday, slot) triple on a given date.
type SlotStatus string

const (
	SlotStatusExceptionalAvailable SlotStatus = "exceptional-available"
	SlotStatusAbsent               SlotStatus = "absent"
	SlotStatusAssigned             SlotStatus = "assigned"
	SlotStatusAvailableUnassigned  SlotStatus = "available-unassigned"
	SlotStatusEmpty                SlotStatus = "empty"

	// SlotStatusUnavailable marks a slot whose sources could not be read.
	// It is deliberately distinct from empty so an unreachable store never
	// reports a trainer as unscheduled.
	SlotStatusUnavailable SlotStatus = "resolution-unavailable"
)

// SlotSource names the record set that decided a slot's status.
type SlotSource string

const (
	SlotSourceException    SlotSource = "exception"
	SlotSourceAssignment   SlotSource = "assignment"
	SlotSourceAvailability SlotSource = "availability"
	SlotSourceNone         SlotSource = "none"
)

// ArbitratedSlot is the computed read model for one trainer/weekday/slot on
// one date. It is recomputed on demand and never persisted.
type ArbitratedSlot struct {
	TrainerID  string     `json:"trainer_id"`
	Weekday    Weekday    `json:"weekday"`
	Slot       Slot       `json:"slot"`
	Date       time.Time  `json:"date"`
	Status     SlotStatus `json:"status"`
	LocationID *string    `json:"location_id,omitempty"`
	Source     SlotSource `json:"source"`
}

// TrainerWeek groups a trainer's arbitrated slots for one week, keyed for
// the self-service and planning views.
type TrainerWeek struct {
	TrainerID string           `json:"trainer_id"`
	WeekStart time.Time        `json:"week_start"`
	Slots     []ArbitratedSlot `json:"slots"`
}
