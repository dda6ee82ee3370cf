package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/planordo/planning-api/internal/models"
	appErrors "github.com/planordo/planning-api/pkg/errors"
)

type availabilityRepoStub struct {
	stored    map[string][]models.RecurringAvailabilityEntry
	validated []string
}

func newAvailabilityRepoStub() *availabilityRepoStub {
	return &availabilityRepoStub{stored: make(map[string][]models.RecurringAvailabilityEntry)}
}

func (s *availabilityRepoStub) ListByTrainer(ctx context.Context, trainerID string) ([]models.RecurringAvailabilityEntry, error) {
	return s.stored[trainerID], nil
}

func (s *availabilityRepoStub) ReplaceForTrainer(ctx context.Context, trainerID string, entries []models.RecurringAvailabilityEntry) error {
	s.stored[trainerID] = entries
	return nil
}

func (s *availabilityRepoStub) ValidateForTrainer(ctx context.Context, trainerID string) error {
	s.validated = append(s.validated, trainerID)
	return nil
}

type availabilityFixture struct {
	service *AvailabilityService
	repo    *availabilityRepoStub
	relay   *publisherStub
	gate    *lockGateStub
}

func newAvailabilityFixture(t *testing.T) *availabilityFixture {
	t.Helper()
	repo := newAvailabilityRepoStub()
	relay := &publisherStub{}
	gate := &lockGateStub{}
	trainers := &trainerStub{trainers: map[string]*models.Trainer{"t1": {ID: "t1", Active: true}}}
	service := NewAvailabilityService(repo, trainers, relay, gate, validator.New(), zap.NewNop())
	return &availabilityFixture{service: service, repo: repo, relay: relay, gate: gate}
}

func TestAvailabilityRedeclareReplacesAsDraft(t *testing.T) {
	f := newAvailabilityFixture(t)

	entries, err := f.service.Redeclare(context.Background(), "t1", []AvailabilitySlotRequest{
		{Weekday: "MONDAY", Slot: "MORNING", Kind: "available"},
		{Weekday: "FRIDAY", Slot: "AFTERNOON", Kind: "available-exceptional-pattern"},
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.False(t, entry.Validated) // a redeclaration always lands as draft
	}
	assert.Len(t, f.repo.stored["t1"], 2)
	assert.Equal(t, 1, f.relay.countByAction(models.CommandAvailabilityChange))
}

func TestAvailabilityRedeclareRejectsDuplicateSlot(t *testing.T) {
	f := newAvailabilityFixture(t)

	_, err := f.service.Redeclare(context.Background(), "t1", []AvailabilitySlotRequest{
		{Weekday: "MONDAY", Slot: "MORNING", Kind: "available"},
		{Weekday: "MONDAY", Slot: "MORNING", Kind: "available"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAvailabilityRedeclareRejectsUnknownWeekday(t *testing.T) {
	f := newAvailabilityFixture(t)

	_, err := f.service.Redeclare(context.Background(), "t1", []AvailabilitySlotRequest{
		{Weekday: "SUNDAY", Slot: "MORNING", Kind: "available"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAvailabilityRedeclareRejectsUnknownTrainer(t *testing.T) {
	f := newAvailabilityFixture(t)

	_, err := f.service.Redeclare(context.Background(), "ghost", []AvailabilitySlotRequest{
		{Weekday: "MONDAY", Slot: "MORNING", Kind: "available"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAvailabilityValidateGatedByLock(t *testing.T) {
	f := newAvailabilityFixture(t)
	f.gate.denied = appErrors.Clone(appErrors.ErrLockDenied, "write access is held by admin-a (rank 1)")

	err := f.service.Validate(context.Background(), "session-2", "t1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrLockDenied.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.repo.validated)

	f.gate.denied = nil
	require.NoError(t, f.service.Validate(context.Background(), "session-1", "t1"))
	assert.Equal(t, []string{"t1"}, f.repo.validated)
	assert.Equal(t, 1, f.relay.countByAction(models.CommandAvailabilityChange))
}
