package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/planordo/planning-api/internal/models"
	appErrors "github.com/planordo/planning-api/pkg/errors"
)

type availabilityRepo interface {
	ListByTrainer(ctx context.Context, trainerID string) ([]models.RecurringAvailabilityEntry, error)
	ReplaceForTrainer(ctx context.Context, trainerID string, entries []models.RecurringAvailabilityEntry) error
	ValidateForTrainer(ctx context.Context, trainerID string) error
}

// AvailabilitySlotRequest is one declared weekday/slot in a redeclaration.
type AvailabilitySlotRequest struct {
	Weekday    string  `json:"weekday" validate:"required,oneof=MONDAY TUESDAY WEDNESDAY THURSDAY FRIDAY"`
	Slot       string  `json:"slot" validate:"required,oneof=MORNING AFTERNOON"`
	Kind       string  `json:"kind" validate:"required,oneof=available available-exceptional-pattern"`
	LocationID *string `json:"location_id,omitempty"`
}

// AvailabilityService manages recurring weekly declarations. A trainer's
// redeclaration supersedes the previous set wholesale; an admin validation
// flips the whole set live for arbitration.
type AvailabilityService struct {
	entries   availabilityRepo
	trainers  trainerReader
	relay     commandPublisher
	sessions  lockGate
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAvailabilityService wires the service.
func NewAvailabilityService(entries availabilityRepo, trainers trainerReader, relay commandPublisher, sessions lockGate, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		entries:   entries,
		trainers:  trainers,
		relay:     relay,
		sessions:  sessions,
		validator: validate,
		logger:    logger,
	}
}

// ListForTrainer returns a trainer's current declaration set.
func (s *AvailabilityService) ListForTrainer(ctx context.Context, trainerID string) ([]models.RecurringAvailabilityEntry, error) {
	entries, err := s.entries.ListByTrainer(ctx, trainerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to list availabilities")
	}
	return entries, nil
}

// Redeclare replaces a trainer's declaration set as one batch of draft rows.
// The previous rows are deleted, never patched.
func (s *AvailabilityService) Redeclare(ctx context.Context, trainerID string, slots []AvailabilitySlotRequest) ([]models.RecurringAvailabilityEntry, error) {
	if _, err := s.trainers.FindByID(ctx, trainerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "trainer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to load trainer")
	}

	entries := make([]models.RecurringAvailabilityEntry, 0, len(slots))
	declared := make(map[string]struct{}, len(slots))
	for _, slot := range slots {
		if err := s.validator.Struct(slot); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability slot")
		}
		key := slot.Weekday + "/" + slot.Slot
		if _, dup := declared[key]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate declaration for "+key)
		}
		declared[key] = struct{}{}

		entries = append(entries, models.RecurringAvailabilityEntry{
			TrainerID:  trainerID,
			Weekday:    models.Weekday(slot.Weekday),
			Slot:       models.Slot(slot.Slot),
			Kind:       models.AvailabilityKind(slot.Kind),
			LocationID: slot.LocationID,
			Validated:  false,
		})
	}

	if err := s.entries.ReplaceForTrainer(ctx, trainerID, entries); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to replace availabilities")
	}

	if err := s.relay.Publish(ctx, models.CommandAvailabilityChange, trainerID, time.Now().UTC(), nil); err != nil {
		s.logger.Warn("failed to announce availability change", zap.String("trainer_id", trainerID), zap.Error(err))
	}
	return entries, nil
}

// Validate marks a trainer's declaration set as admin-validated, which is
// the point it starts feeding arbitration. The caller must hold the edit
// lock on the trainer.
func (s *AvailabilityService) Validate(ctx context.Context, sessionID, trainerID string) error {
	if err := s.sessions.RequireLock(ctx, sessionID, trainerID); err != nil {
		return err
	}
	if err := s.entries.ValidateForTrainer(ctx, trainerID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to validate availabilities")
	}
	if err := s.relay.Publish(ctx, models.CommandAvailabilityChange, trainerID, time.Now().UTC(), nil); err != nil {
		s.logger.Warn("failed to announce availability validation", zap.String("trainer_id", trainerID), zap.Error(err))
	}
	return nil
}
