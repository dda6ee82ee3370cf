package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/planordo/planning-api/internal/models"
	appErrors "github.com/planordo/planning-api/pkg/errors"
)

type exceptionArbitrationReader interface {
	ListApprovedCovering(ctx context.Context, trainerID string, date time.Time) ([]models.ExceptionRecord, error)
}

type assignmentArbitrationReader interface {
	ListByDateSlot(ctx context.Context, date time.Time, slot models.Slot) ([]models.DutyAssignment, error)
}

type availabilityArbitrationReader interface {
	FindValidated(ctx context.Context, trainerID string, weekday models.Weekday, slot models.Slot) (*models.RecurringAvailabilityEntry, error)
}

type trainerRosterReader interface {
	ListActive(ctx context.Context) ([]models.Trainer, error)
}

type locationInferrer interface {
	InferLocation(ctx context.Context, trainerID string, weekday models.Weekday, slot models.Slot) (string, error)
}

type resolutionObserver interface {
	ObserveResolution(status models.SlotStatus, duration time.Duration)
}

// slotSnapshot is the fetched source state for one trainer/weekday/slot/date.
// Rules read it; they never reach back into storage, which keeps the rule
// pipeline a pure function of the snapshot.
type slotSnapshot struct {
	trainerID  string
	weekday    models.Weekday
	slot       models.Slot
	date       time.Time
	exceptions []models.ExceptionRecord
	assigned   *models.DutyAssignment
	recurring  *models.RecurringAvailabilityEntry
}

// arbitrationRule is one priority level. It returns the arbitrated slot and
// true on a match, or false to pass the snapshot down the pipeline.
type arbitrationRule struct {
	name     string
	evaluate func(snap *slotSnapshot) (*models.ArbitratedSlot, bool)
}

// ArbitrationService merges the three source record sets into one
// authoritative status per trainer/weekday/slot. Resolution is a pure read;
// the priority order lives in the rules slice so it stays testable as data.
type ArbitrationService struct {
	exceptions     exceptionArbitrationReader
	assignments    assignmentArbitrationReader
	availabilities availabilityArbitrationReader
	trainers       trainerRosterReader
	inference      locationInferrer
	rules          []arbitrationRule
	metrics        resolutionObserver
	logger         *zap.Logger
}

// NewArbitrationService wires the engine.
func NewArbitrationService(
	exceptions exceptionArbitrationReader,
	assignments assignmentArbitrationReader,
	availabilities availabilityArbitrationReader,
	trainers trainerRosterReader,
	inference locationInferrer,
	metrics resolutionObserver,
	logger *zap.Logger,
) *ArbitrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ArbitrationService{
		exceptions:     exceptions,
		assignments:    assignments,
		availabilities: availabilities,
		trainers:       trainers,
		inference:      inference,
		metrics:        metrics,
		logger:         logger,
	}
	s.rules = defaultRules()
	return s
}

// defaultRules returns the priority pipeline, highest priority first.
// First match wins; there is no fallthrough between levels.
func defaultRules() []arbitrationRule {
	return []arbitrationRule{
		{
			name: "approved-exceptional-availability",
			evaluate: func(snap *slotSnapshot) (*models.ArbitratedSlot, bool) {
				record := snap.winningException()
				if record == nil || record.Kind != models.ExceptionKindExceptional {
					return nil, false
				}
				// Exceptional availability carries no location.
				return snap.result(models.SlotStatusExceptionalAvailable, nil, models.SlotSourceException), true
			},
		},
		{
			name: "approved-absence",
			evaluate: func(snap *slotSnapshot) (*models.ArbitratedSlot, bool) {
				record := snap.winningException()
				if record == nil || record.Kind != models.ExceptionKindAbsence {
					return nil, false
				}
				// Absence wins even when an assignment exists for the slot;
				// a coordinator placement never outranks an approved absence.
				return snap.result(models.SlotStatusAbsent, nil, models.SlotSourceException), true
			},
		},
		{
			name: "duty-assignment",
			evaluate: func(snap *slotSnapshot) (*models.ArbitratedSlot, bool) {
				if snap.assigned == nil {
					return nil, false
				}
				loc := snap.assigned.LocationID
				return snap.result(models.SlotStatusAssigned, &loc, models.SlotSourceAssignment), true
			},
		},
		{
			name: "recurring-availability",
			evaluate: func(snap *slotSnapshot) (*models.ArbitratedSlot, bool) {
				if snap.recurring == nil || snap.recurring.Kind != models.AvailabilityKindAvailable {
					return nil, false
				}
				return snap.result(models.SlotStatusAvailableUnassigned, snap.recurring.LocationID, models.SlotSourceAvailability), true
			},
		},
	}
}

// winningException returns the approved record that governs the date. The
// repository orders covering records by approval recency, so overlapping
// records collapse to the most recently approved one regardless of kind.
func (snap *slotSnapshot) winningException() *models.ExceptionRecord {
	if len(snap.exceptions) == 0 {
		return nil
	}
	return &snap.exceptions[0]
}

func (snap *slotSnapshot) result(status models.SlotStatus, locationID *string, source models.SlotSource) *models.ArbitratedSlot {
	return &models.ArbitratedSlot{
		TrainerID:  snap.trainerID,
		Weekday:    snap.weekday,
		Slot:       snap.slot,
		Date:       snap.date,
		Status:     status,
		LocationID: locationID,
		Source:     source,
	}
}

// Resolve computes the authoritative slot for one trainer/weekday/slot on a
// date. When the store is unreachable it returns a resolution-unavailable
// slot together with the wrapped error, never an empty slot.
func (s *ArbitrationService) Resolve(ctx context.Context, trainerID string, weekday models.Weekday, slot models.Slot, asOfDate time.Time) (*models.ArbitratedSlot, error) {
	start := time.Now()

	snap, err := s.snapshot(ctx, trainerID, weekday, slot, asOfDate)
	if err != nil {
		unavailable := &models.ArbitratedSlot{
			TrainerID: trainerID,
			Weekday:   weekday,
			Slot:      slot,
			Date:      asOfDate,
			Status:    models.SlotStatusUnavailable,
			Source:    models.SlotSourceNone,
		}
		s.observe(unavailable.Status, start)
		return unavailable, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "slot resolution failed")
	}

	resolved := s.runPipeline(ctx, snap)
	s.observe(resolved.Status, start)
	return resolved, nil
}

func (s *ArbitrationService) runPipeline(ctx context.Context, snap *slotSnapshot) *models.ArbitratedSlot {
	for _, rule := range s.rules {
		if resolved, ok := rule.evaluate(snap); ok {
			if resolved.Status == models.SlotStatusAvailableUnassigned && resolved.LocationID == nil {
				resolved.LocationID = s.inferredLocation(ctx, snap)
			}
			return resolved
		}
	}
	return snap.result(models.SlotStatusEmpty, nil, models.SlotSourceNone)
}

func (s *ArbitrationService) inferredLocation(ctx context.Context, snap *slotSnapshot) *string {
	locationID, err := s.inference.InferLocation(ctx, snap.trainerID, snap.weekday, snap.slot)
	if err != nil {
		s.logger.Warn("location inference failed",
			zap.String("trainer_id", snap.trainerID),
			zap.String("weekday", string(snap.weekday)),
			zap.String("slot", string(snap.slot)),
			zap.Error(err))
		return nil
	}
	if locationID == "" {
		return nil
	}
	return &locationID
}

func (s *ArbitrationService) snapshot(ctx context.Context, trainerID string, weekday models.Weekday, slot models.Slot, asOfDate time.Time) (*slotSnapshot, error) {
	exceptions, err := s.exceptions.ListApprovedCovering(ctx, trainerID, asOfDate)
	if err != nil {
		return nil, err
	}
	if len(exceptions) > 1 {
		// Overlapping approved records are malformed data. The repository
		// orders them by approval recency so the most recent one wins; the
		// overlap is reported, never silently merged.
		ids := make([]string, 0, len(exceptions))
		for i := range exceptions {
			ids = append(ids, exceptions[i].ID)
		}
		s.logger.Warn("overlapping approved exception records",
			zap.String("trainer_id", trainerID),
			zap.Time("date", asOfDate),
			zap.Strings("exception_ids", ids))
	}

	assignments, err := s.assignments.ListByDateSlot(ctx, asOfDate, slot)
	if err != nil {
		return nil, err
	}
	var assigned *models.DutyAssignment
	for i := range assignments {
		if assignments[i].HasTrainer(trainerID) {
			assigned = &assignments[i]
			break
		}
	}

	recurring, err := s.availabilities.FindValidated(ctx, trainerID, weekday, slot)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	return &slotSnapshot{
		trainerID:  trainerID,
		weekday:    weekday,
		slot:       slot,
		date:       asOfDate,
		exceptions: exceptions,
		assigned:   assigned,
		recurring:  recurring,
	}, nil
}

// ResolveWeek computes a trainer's slots for the working days of the week
// starting at weekStart. Unreachable-store failures surface as
// resolution-unavailable slots so the view never mistakes them for gaps.
func (s *ArbitrationService) ResolveWeek(ctx context.Context, trainerID string, weekStart time.Time) (*models.TrainerWeek, error) {
	week := &models.TrainerWeek{TrainerID: trainerID, WeekStart: weekStart}

	for offset := 0; offset < 7; offset++ {
		date := weekStart.AddDate(0, 0, offset)
		weekday, ok := models.WeekdayOf(date)
		if !ok {
			continue
		}
		for _, slot := range models.Slots {
			resolved, err := s.Resolve(ctx, trainerID, weekday, slot, date)
			if err != nil {
				s.logger.Error("week resolution degraded", zap.String("trainer_id", trainerID), zap.Time("date", date), zap.Error(err))
			}
			week.Slots = append(week.Slots, *resolved)
		}
	}
	return week, nil
}

// ResolveGrid computes the coordinator planning grid: every active trainer's
// week side by side.
func (s *ArbitrationService) ResolveGrid(ctx context.Context, weekStart time.Time) ([]models.TrainerWeek, error) {
	trainers, err := s.trainers.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "trainer roster unavailable")
	}

	grid := make([]models.TrainerWeek, 0, len(trainers))
	for _, trainer := range trainers {
		week, err := s.ResolveWeek(ctx, trainer.ID, weekStart)
		if err != nil {
			return nil, err
		}
		grid = append(grid, *week)
	}
	return grid, nil
}

func (s *ArbitrationService) observe(status models.SlotStatus, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveResolution(status, time.Since(start))
	}
}
