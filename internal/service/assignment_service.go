package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/planordo/planning-api/internal/models"
	appErrors "github.com/planordo/planning-api/pkg/errors"
)

type assignmentWeekRepo interface {
	ListWeek(ctx context.Context, weekStart time.Time) ([]models.DutyAssignment, error)
	ReplaceWeek(ctx context.Context, weekStart time.Time, assignments []models.DutyAssignment) error
}

// AssignmentSlotRequest is one placement in a weekly publication.
type AssignmentSlotRequest struct {
	Date       time.Time `json:"date" validate:"required"`
	Slot       string    `json:"slot" validate:"required,oneof=MORNING AFTERNOON"`
	LocationID string    `json:"location_id" validate:"required"`
	TrainerIDs []string  `json:"trainer_ids"`
	LearnerIDs []string  `json:"learner_ids"`
	StaffID    *string   `json:"staff_id,omitempty"`
	Validated  bool      `json:"validated"`
}

// AssignmentService publishes the coordinator's weekly planning. A week is
// always written wholesale: delete then insert, one transaction.
type AssignmentService struct {
	assignments assignmentWeekRepo
	relay       commandPublisher
	sessions    lockGate
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssignmentService wires the service.
func NewAssignmentService(assignments assignmentWeekRepo, relay commandPublisher, sessions lockGate, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		assignments: assignments,
		relay:       relay,
		sessions:    sessions,
		validator:   validate,
		logger:      logger,
	}
}

// PlanningLockEntity names the soft-lock entity guarding a week's planning.
func PlanningLockEntity(weekStart time.Time) string {
	return "planning:" + weekStart.Format("2006-01-02")
}

// GetWeek returns the stored assignments for the week starting at weekStart.
func (s *AssignmentService) GetWeek(ctx context.Context, weekStart time.Time) ([]models.DutyAssignment, error) {
	assignments, err := s.assignments.ListWeek(ctx, weekStart)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to list week assignments")
	}
	return assignments, nil
}

// ReplaceWeek supersedes the whole week's planning. The caller must hold the
// week's planning lock; every trainer touched by the new planning is
// announced so open views refresh.
func (s *AssignmentService) ReplaceWeek(ctx context.Context, sessionID string, weekStart time.Time, slots []AssignmentSlotRequest) ([]models.DutyAssignment, error) {
	if err := s.sessions.RequireLock(ctx, sessionID, PlanningLockEntity(weekStart)); err != nil {
		return nil, err
	}

	assignments := make([]models.DutyAssignment, 0, len(slots))
	trainerSet := make(map[string]struct{})
	for _, slot := range slots {
		if err := s.validator.Struct(slot); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment slot")
		}
		weekday, ok := models.WeekdayOf(slot.Date)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "assignment date falls on a weekend")
		}
		if slot.Date.Before(weekStart) || !slot.Date.Before(weekStart.AddDate(0, 0, 7)) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "assignment date outside the published week")
		}

		assignments = append(assignments, models.DutyAssignment{
			Date:       slot.Date,
			Weekday:    weekday,
			Slot:       models.Slot(slot.Slot),
			LocationID: slot.LocationID,
			TrainerIDs: pq.StringArray(slot.TrainerIDs),
			LearnerIDs: pq.StringArray(slot.LearnerIDs),
			StaffID:    slot.StaffID,
			Validated:  slot.Validated,
		})
		for _, trainerID := range slot.TrainerIDs {
			trainerSet[trainerID] = struct{}{}
		}
	}

	if err := s.assignments.ReplaceWeek(ctx, weekStart, assignments); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to replace week assignments")
	}

	for trainerID := range trainerSet {
		if err := s.relay.Publish(ctx, models.CommandPlanningChange, trainerID, weekStart, nil); err != nil {
			s.logger.Warn("failed to announce planning change", zap.String("trainer_id", trainerID), zap.Error(err))
		}
	}
	return assignments, nil
}
