package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/planordo/planning-api/internal/models"
	appErrors "github.com/planordo/planning-api/pkg/errors"
)

type assignmentHistoryReader interface {
	ListHistoryByWeekdaySlot(ctx context.Context, trainerID string, weekday models.Weekday, slot models.Slot) ([]models.DutyAssignment, error)
}

type locationRosterReader interface {
	List(ctx context.Context) ([]models.Location, error)
}

// LocationInferenceService infers a trainer's most probable location for a
// weekday/slot from assignment history. It is a pure read and always yields
// a location: trainers with no usable history fall back to the configured
// default rather than disappearing from the views.
type LocationInferenceService struct {
	history           assignmentHistoryReader
	locations         locationRosterReader
	defaultLocationID string
	logger            *zap.Logger
}

// NewLocationInferenceService wires the resolver.
func NewLocationInferenceService(history assignmentHistoryReader, locations locationRosterReader, defaultLocationID string, logger *zap.Logger) *LocationInferenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocationInferenceService{
		history:           history,
		locations:         locations,
		defaultLocationID: defaultLocationID,
		logger:            logger,
	}
}

// InferLocation returns the location the trainer most often taught at on
// this weekday/slot. Ties break by the roster's canonical ordering, not by
// arrival order in history, so identical inputs always infer identically.
func (s *LocationInferenceService) InferLocation(ctx context.Context, trainerID string, weekday models.Weekday, slot models.Slot) (string, error) {
	records, err := s.history.ListHistoryByWeekdaySlot(ctx, trainerID, weekday, slot)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "assignment history unavailable")
	}
	if len(records) == 0 {
		return s.defaultLocationID, nil
	}

	counts := make(map[string]int, len(records))
	for i := range records {
		counts[records[i].LocationID]++
	}

	roster, err := s.locations.List(ctx)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "location roster unavailable")
	}

	best := ""
	bestCount := 0
	for _, location := range roster {
		if count := counts[location.ID]; count > bestCount {
			best = location.ID
			bestCount = count
		}
	}
	if best == "" {
		// History references locations missing from the roster. Fall back
		// to the default instead of guessing from arrival order.
		s.logger.Warn("assignment history references unknown locations",
			zap.String("trainer_id", trainerID),
			zap.String("weekday", string(weekday)),
			zap.String("slot", string(slot)))
		return s.defaultLocationID, nil
	}
	return best, nil
}
