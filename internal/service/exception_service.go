package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/planordo/planning-api/internal/models"
	appErrors "github.com/planordo/planning-api/pkg/errors"
	"github.com/planordo/planning-api/pkg/jobs"
)

type exceptionWorkflowRepo interface {
	FindByID(ctx context.Context, id string) (*models.ExceptionRecord, error)
	ListByTrainer(ctx context.Context, trainerID string) ([]models.ExceptionRecord, error)
	Insert(ctx context.Context, record *models.ExceptionRecord) error
	Approve(ctx context.Context, id string, approvedAt time.Time) error
	Delete(ctx context.Context, id string) error
}

type assignmentRemover interface {
	RemoveTrainerFromDate(ctx context.Context, trainerID string, date time.Time) ([]string, error)
}

type notificationWriter interface {
	Insert(ctx context.Context, notification *models.TrainerNotification) error
}

type trainerReader interface {
	FindByID(ctx context.Context, id string) (*models.Trainer, error)
}

type commandPublisher interface {
	Publish(ctx context.Context, action models.CommandAction, trainerID string, effectiveDate time.Time, detail types.JSONText) error
}

type lockGate interface {
	RequireLock(ctx context.Context, sessionID, entityID string) error
}

// CreateExceptionRequest captures a new absence or exceptional availability.
type CreateExceptionRequest struct {
	TrainerID string    `json:"trainer_id" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
	Kind      string    `json:"kind" validate:"required,oneof=absence exceptional-availability"`
	Reason    *string   `json:"reason,omitempty"`
}

// sideEffectPayload is the unit of retried work for one approved-exception
// date: assignment removal and command emission succeed or retry together.
type sideEffectPayload struct {
	Record models.ExceptionRecord
	Date   time.Time
}

// ExceptionService drives the exception record state machine
// (pending → approved, pending/approved → deleted) and its side effects.
type ExceptionService struct {
	records       exceptionWorkflowRepo
	assignments   assignmentRemover
	notifications notificationWriter
	trainers      trainerReader
	relay         commandPublisher
	sessions      lockGate
	validator     *validator.Validate
	logger        *zap.Logger
	queue         *jobs.Queue[sideEffectPayload]
}

// ExceptionServiceConfig tunes side-effect retry behaviour.
type ExceptionServiceConfig struct {
	WorkerConcurrency int
	WorkerRetries     int
	RetryDelay        time.Duration
}

// NewExceptionService wires the workflow and its retry queue.
func NewExceptionService(
	records exceptionWorkflowRepo,
	assignments assignmentRemover,
	notifications notificationWriter,
	trainers trainerReader,
	relay commandPublisher,
	sessions lockGate,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ExceptionServiceConfig,
) *ExceptionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &ExceptionService{
		records:       records,
		assignments:   assignments,
		notifications: notifications,
		trainers:      trainers,
		relay:         relay,
		sessions:      sessions,
		validator:     validate,
		logger:        logger,
	}
	s.queue = jobs.NewQueue("exception-side-effects", s.handleSideEffectJob, jobs.Config{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the side-effect retry workers.
func (s *ExceptionService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the retry workers.
func (s *ExceptionService) Stop() {
	s.queue.Stop()
}

// ListByTrainer returns a trainer's exception records.
func (s *ExceptionService) ListByTrainer(ctx context.Context, trainerID string) ([]models.ExceptionRecord, error) {
	records, err := s.records.ListByTrainer(ctx, trainerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to list exceptions")
	}
	return records, nil
}

// Create stores a new pending record and notifies the trainer.
func (s *ExceptionService) Create(ctx context.Context, req CreateExceptionRequest) (*models.ExceptionRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exception payload")
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date precedes start date")
	}
	if _, err := s.trainers.FindByID(ctx, req.TrainerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "trainer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to load trainer")
	}

	record := &models.ExceptionRecord{
		TrainerID: req.TrainerID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Kind:      models.ExceptionKind(req.Kind),
		Status:    models.ExceptionStatusPending,
		Reason:    req.Reason,
	}
	if err := s.records.Insert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to store exception")
	}

	s.notify(ctx, record, "exception-requested", nil)
	return record, nil
}

// Approve transitions a pending record to approved and applies its side
// effects: an absence strips the trainer from every assignment in range and
// announces each removal; exceptional availability only announces the new
// eligibility. The record takes effect for arbitration from this moment.
func (s *ExceptionService) Approve(ctx context.Context, sessionID, recordID string) (*models.ExceptionRecord, error) {
	record, err := s.load(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.Status != models.ExceptionStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "exception is not pending")
	}
	if err := s.sessions.RequireLock(ctx, sessionID, record.TrainerID); err != nil {
		return nil, err
	}

	approvedAt := time.Now().UTC()
	if err := s.records.Approve(ctx, recordID, approvedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to approve exception")
	}
	record.Status = models.ExceptionStatusApproved
	record.ApprovedAt = &approvedAt

	for _, date := range record.Dates() {
		if err := s.applyApprovalEffect(ctx, record, date); err != nil {
			s.logger.Warn("approval side effect failed, queueing retry",
				zap.String("exception_id", record.ID),
				zap.Time("date", date),
				zap.Error(err))
			s.enqueueRetry(record, date)
		}
	}

	s.notify(ctx, record, "exception-approved", map[string]interface{}{
		"before": models.ExceptionStatusPending,
		"after":  models.ExceptionStatusApproved,
	})
	return record, nil
}

// Delete removes a record. Deleting an approved record reverses its
// visibility effect by announcing trainer-restored per date; assignment rows
// removed by an earlier absence approval stay deleted.
func (s *ExceptionService) Delete(ctx context.Context, sessionID, recordID string) error {
	record, err := s.load(ctx, recordID)
	if err != nil {
		return err
	}
	if err := s.sessions.RequireLock(ctx, sessionID, record.TrainerID); err != nil {
		return err
	}

	wasApproved := record.Status == models.ExceptionStatusApproved
	if err := s.records.Delete(ctx, recordID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to delete exception")
	}

	if wasApproved {
		detail, _ := json.Marshal(map[string]interface{}{
			"exception_id": record.ID,
			"kind":         record.Kind,
		})
		for _, date := range record.Dates() {
			if err := s.relay.Publish(ctx, models.CommandTrainerRestored, record.TrainerID, date, detail); err != nil {
				s.logger.Warn("failed to announce restored trainer",
					zap.String("exception_id", record.ID),
					zap.Time("date", date),
					zap.Error(err))
			}
		}
	}

	s.notify(ctx, record, "exception-deleted", map[string]interface{}{
		"before": record.Status,
		"after":  "deleted",
	})
	return nil
}

func (s *ExceptionService) load(ctx context.Context, recordID string) (*models.ExceptionRecord, error) {
	record, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exception not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to load exception")
	}
	return record, nil
}

// applyApprovalEffect applies the coupled per-date step: for an absence, the
// assignment removal and the command emission happen together or are retried
// together, so a view is never told about a removal that did not stick.
func (s *ExceptionService) applyApprovalEffect(ctx context.Context, record *models.ExceptionRecord, date time.Time) error {
	switch record.Kind {
	case models.ExceptionKindAbsence:
		removed, err := s.assignments.RemoveTrainerFromDate(ctx, record.TrainerID, date)
		if err != nil {
			return err
		}
		detail, _ := json.Marshal(map[string]interface{}{
			"exception_id":   record.ID,
			"assignment_ids": removed,
		})
		return s.relay.Publish(ctx, models.CommandTrainerRemoved, record.TrainerID, date, detail)

	case models.ExceptionKindExceptional:
		detail, _ := json.Marshal(map[string]interface{}{
			"exception_id": record.ID,
		})
		return s.relay.Publish(ctx, models.CommandTrainerAdded, record.TrainerID, date, detail)

	default:
		return nil
	}
}

func (s *ExceptionService) enqueueRetry(record *models.ExceptionRecord, date time.Time) {
	err := s.queue.Enqueue(jobs.Job[sideEffectPayload]{
		ID:      uuid.NewString(),
		Payload: sideEffectPayload{Record: *record, Date: date},
	})
	if err != nil {
		s.logger.Error("failed to queue side-effect retry",
			zap.String("exception_id", record.ID),
			zap.Time("date", date),
			zap.Error(err))
	}
}

func (s *ExceptionService) handleSideEffectJob(ctx context.Context, job jobs.Job[sideEffectPayload]) error {
	return s.applyApprovalEffect(ctx, &job.Payload.Record, job.Payload.Date)
}

func (s *ExceptionService) notify(ctx context.Context, record *models.ExceptionRecord, event string, extra map[string]interface{}) {
	payload := map[string]interface{}{
		"exception_id": record.ID,
		"kind":         record.Kind,
		"start_date":   record.StartDate,
		"end_date":     record.EndDate,
	}
	for k, v := range extra {
		payload[k] = v
	}
	raw, _ := json.Marshal(payload)

	err := s.notifications.Insert(ctx, &models.TrainerNotification{
		TrainerID: record.TrainerID,
		Event:     event,
		Payload:   raw,
	})
	if err != nil {
		s.logger.Warn("failed to store trainer notification",
			zap.String("trainer_id", record.TrainerID),
			zap.String("event", event),
			zap.Error(err))
	}
}
