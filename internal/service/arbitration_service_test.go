package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/planordo/planning-api/internal/models"
)

type exceptionReaderStub struct {
	records []models.ExceptionRecord
	err     error
}

func (s *exceptionReaderStub) ListApprovedCovering(ctx context.Context, trainerID string, date time.Time) ([]models.ExceptionRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	var covering []models.ExceptionRecord
	for _, record := range s.records {
		if record.TrainerID == trainerID && record.Covers(date) {
			covering = append(covering, record)
		}
	}
	return covering, nil
}

type assignmentReaderStub struct {
	assignments []models.DutyAssignment
	err         error
}

func (s *assignmentReaderStub) ListByDateSlot(ctx context.Context, date time.Time, slot models.Slot) ([]models.DutyAssignment, error) {
	if s.err != nil {
		return nil, s.err
	}
	var matching []models.DutyAssignment
	for _, assignment := range s.assignments {
		if assignment.Date.Equal(date) && assignment.Slot == slot {
			matching = append(matching, assignment)
		}
	}
	return matching, nil
}

type availabilityReaderStub struct {
	entries []models.RecurringAvailabilityEntry
	err     error
}

func (s *availabilityReaderStub) FindValidated(ctx context.Context, trainerID string, weekday models.Weekday, slot models.Slot) (*models.RecurringAvailabilityEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	for i := range s.entries {
		entry := &s.entries[i]
		if entry.TrainerID == trainerID && entry.Weekday == weekday && entry.Slot == slot && entry.Validated {
			return entry, nil
		}
	}
	return nil, sql.ErrNoRows
}

type rosterStub struct {
	trainers []models.Trainer
	err      error
}

func (s *rosterStub) ListActive(ctx context.Context) ([]models.Trainer, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.trainers, nil
}

type inferenceStub struct {
	locationID string
	calls      int
	err        error
}

func (s *inferenceStub) InferLocation(ctx context.Context, trainerID string, weekday models.Weekday, slot models.Slot) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.locationID, nil
}

func strPtr(s string) *string { return &s }

func newArbitrationFixture(exceptions *exceptionReaderStub, assignments *assignmentReaderStub, availabilities *availabilityReaderStub, inference *inferenceStub) *ArbitrationService {
	if exceptions == nil {
		exceptions = &exceptionReaderStub{}
	}
	if assignments == nil {
		assignments = &assignmentReaderStub{}
	}
	if availabilities == nil {
		availabilities = &availabilityReaderStub{}
	}
	if inference == nil {
		inference = &inferenceStub{locationID: "loc-default"}
	}
	return NewArbitrationService(exceptions, assignments, availabilities, &rosterStub{}, inference, nil, zap.NewNop())
}

func TestResolvePriorityOrder(t *testing.T) {
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC) // a Tuesday
	approvedAt := date.Add(-24 * time.Hour)

	absence := models.ExceptionRecord{
		ID: "abs", TrainerID: "t1", StartDate: date, EndDate: date,
		Kind: models.ExceptionKindAbsence, Status: models.ExceptionStatusApproved, ApprovedAt: &approvedAt,
	}
	exceptional := models.ExceptionRecord{
		ID: "exc", TrainerID: "t1", StartDate: date, EndDate: date,
		Kind: models.ExceptionKindExceptional, Status: models.ExceptionStatusApproved, ApprovedAt: &approvedAt,
	}
	assignment := models.DutyAssignment{
		ID: "a1", Date: date, Weekday: models.WeekdayTuesday, Slot: models.SlotMorning,
		LocationID: "loc-1", TrainerIDs: pq.StringArray{"t1"},
	}
	recurring := models.RecurringAvailabilityEntry{
		TrainerID: "t1", Weekday: models.WeekdayTuesday, Slot: models.SlotMorning,
		Kind: models.AvailabilityKindAvailable, LocationID: strPtr("loc-2"), Validated: true,
	}

	cases := []struct {
		name       string
		exceptions []models.ExceptionRecord
		wantStatus models.SlotStatus
		wantSource models.SlotSource
	}{
		{"exceptional availability outranks everything", []models.ExceptionRecord{exceptional, absence}, models.SlotStatusExceptionalAvailable, models.SlotSourceException},
		{"absence outranks the assignment", []models.ExceptionRecord{absence}, models.SlotStatusAbsent, models.SlotSourceException},
		{"assignment outranks recurring availability", nil, models.SlotStatusAssigned, models.SlotSourceAssignment},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := newArbitrationFixture(
				&exceptionReaderStub{records: tc.exceptions},
				&assignmentReaderStub{assignments: []models.DutyAssignment{assignment}},
				&availabilityReaderStub{entries: []models.RecurringAvailabilityEntry{recurring}},
				nil,
			)
			resolved, err := engine.Resolve(context.Background(), "t1", models.WeekdayTuesday, models.SlotMorning, date)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, resolved.Status)
			assert.Equal(t, tc.wantSource, resolved.Source)
		})
	}
}

func TestResolveRecurringAvailabilityAndEmpty(t *testing.T) {
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	recurring := models.RecurringAvailabilityEntry{
		TrainerID: "t1", Weekday: models.WeekdayTuesday, Slot: models.SlotMorning,
		Kind: models.AvailabilityKindAvailable, LocationID: strPtr("loc-2"), Validated: true,
	}

	engine := newArbitrationFixture(nil, nil, &availabilityReaderStub{entries: []models.RecurringAvailabilityEntry{recurring}}, nil)

	resolved, err := engine.Resolve(context.Background(), "t1", models.WeekdayTuesday, models.SlotMorning, date)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusAvailableUnassigned, resolved.Status)
	require.NotNil(t, resolved.LocationID)
	assert.Equal(t, "loc-2", *resolved.LocationID)

	resolved, err = engine.Resolve(context.Background(), "t1", models.WeekdayTuesday, models.SlotAfternoon, date)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusEmpty, resolved.Status)
	assert.Equal(t, models.SlotSourceNone, resolved.Source)
}

func TestResolveOverlappingApprovedRecordsMostRecentWins(t *testing.T) {
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	olderAt := date.Add(-48 * time.Hour)
	newerAt := date.Add(-time.Hour)

	exceptional := models.ExceptionRecord{
		ID: "exc", TrainerID: "t1", StartDate: date, EndDate: date,
		Kind: models.ExceptionKindExceptional, Status: models.ExceptionStatusApproved, ApprovedAt: &olderAt,
	}
	absence := models.ExceptionRecord{
		ID: "abs", TrainerID: "t1", StartDate: date, EndDate: date,
		Kind: models.ExceptionKindAbsence, Status: models.ExceptionStatusApproved, ApprovedAt: &newerAt,
	}

	core, logs := observer.New(zapcore.WarnLevel)
	// Covering records arrive most recently approved first, mirroring the
	// repository ordering. The newer absence governs even though exceptional
	// availability sits higher in the pipeline.
	engine := NewArbitrationService(
		&exceptionReaderStub{records: []models.ExceptionRecord{absence, exceptional}},
		&assignmentReaderStub{},
		&availabilityReaderStub{},
		&rosterStub{},
		&inferenceStub{},
		nil,
		zap.New(core),
	)

	resolved, err := engine.Resolve(context.Background(), "t1", models.WeekdayTuesday, models.SlotMorning, date)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusAbsent, resolved.Status)
	assert.Equal(t, models.SlotSourceException, resolved.Source)

	// The overlap is reported, never silently merged.
	assert.Equal(t, 1, logs.FilterMessage("overlapping approved exception records").Len())

	// With the approval order reversed the exceptional record wins instead.
	engine = newArbitrationFixture(
		&exceptionReaderStub{records: []models.ExceptionRecord{exceptional, absence}},
		nil, nil, nil,
	)
	resolved, err = engine.Resolve(context.Background(), "t1", models.WeekdayTuesday, models.SlotMorning, date)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusExceptionalAvailable, resolved.Status)
}

func TestResolveUnvalidatedDeclarationIsIgnored(t *testing.T) {
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	recurring := models.RecurringAvailabilityEntry{
		TrainerID: "t1", Weekday: models.WeekdayTuesday, Slot: models.SlotMorning,
		Kind: models.AvailabilityKindAvailable, Validated: false,
	}
	engine := newArbitrationFixture(nil, nil, &availabilityReaderStub{entries: []models.RecurringAvailabilityEntry{recurring}}, nil)

	resolved, err := engine.Resolve(context.Background(), "t1", models.WeekdayTuesday, models.SlotMorning, date)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusEmpty, resolved.Status)
}

func TestResolveInfersLocationWhenDeclarationHasNone(t *testing.T) {
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	recurring := models.RecurringAvailabilityEntry{
		TrainerID: "t1", Weekday: models.WeekdayTuesday, Slot: models.SlotMorning,
		Kind: models.AvailabilityKindAvailable, Validated: true,
	}
	inference := &inferenceStub{locationID: "loc-usual"}
	engine := newArbitrationFixture(nil, nil, &availabilityReaderStub{entries: []models.RecurringAvailabilityEntry{recurring}}, inference)

	resolved, err := engine.Resolve(context.Background(), "t1", models.WeekdayTuesday, models.SlotMorning, date)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusAvailableUnassigned, resolved.Status)
	require.NotNil(t, resolved.LocationID)
	assert.Equal(t, "loc-usual", *resolved.LocationID)
	assert.Equal(t, 1, inference.calls)
}

func TestResolveStorageFailureNeverReadsAsEmpty(t *testing.T) {
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	engine := newArbitrationFixture(&exceptionReaderStub{err: errors.New("connection refused")}, nil, nil, nil)

	resolved, err := engine.Resolve(context.Background(), "t1", models.WeekdayTuesday, models.SlotMorning, date)
	require.Error(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, models.SlotStatusUnavailable, resolved.Status)
	assert.NotEqual(t, models.SlotStatusEmpty, resolved.Status)
}

func TestResolveIsDeterministic(t *testing.T) {
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	approvedAt := date.Add(-time.Hour)
	engine := newArbitrationFixture(
		&exceptionReaderStub{records: []models.ExceptionRecord{{
			ID: "abs", TrainerID: "t1", StartDate: date, EndDate: date,
			Kind: models.ExceptionKindAbsence, Status: models.ExceptionStatusApproved, ApprovedAt: &approvedAt,
		}}},
		nil, nil, nil,
	)

	first, err := engine.Resolve(context.Background(), "t1", models.WeekdayTuesday, models.SlotMorning, date)
	require.NoError(t, err)
	second, err := engine.Resolve(context.Background(), "t1", models.WeekdayTuesday, models.SlotMorning, date)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveWeekAbsenceRange(t *testing.T) {
	// Absence approved for Monday 2024-03-04 through Wednesday 2024-03-06;
	// the trainer declares every morning of the week.
	weekStart := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	approvedAt := weekStart.Add(-time.Hour)
	absence := models.ExceptionRecord{
		ID: "abs", TrainerID: "t1",
		StartDate: weekStart, EndDate: weekStart.AddDate(0, 0, 2),
		Kind: models.ExceptionKindAbsence, Status: models.ExceptionStatusApproved, ApprovedAt: &approvedAt,
	}
	var declarations []models.RecurringAvailabilityEntry
	for _, weekday := range models.WorkingWeekdays {
		declarations = append(declarations, models.RecurringAvailabilityEntry{
			TrainerID: "t1", Weekday: weekday, Slot: models.SlotMorning,
			Kind: models.AvailabilityKindAvailable, LocationID: strPtr("loc-1"), Validated: true,
		})
	}

	engine := newArbitrationFixture(
		&exceptionReaderStub{records: []models.ExceptionRecord{absence}},
		nil,
		&availabilityReaderStub{entries: declarations},
		nil,
	)

	week, err := engine.ResolveWeek(context.Background(), "t1", weekStart)
	require.NoError(t, err)
	require.Len(t, week.Slots, 10) // five working days, two slots each

	byDay := make(map[models.Weekday]models.SlotStatus)
	for _, slot := range week.Slots {
		if slot.Slot == models.SlotMorning {
			byDay[slot.Weekday] = slot.Status
		}
	}
	assert.Equal(t, models.SlotStatusAbsent, byDay[models.WeekdayMonday])
	assert.Equal(t, models.SlotStatusAbsent, byDay[models.WeekdayTuesday])
	assert.Equal(t, models.SlotStatusAbsent, byDay[models.WeekdayWednesday])
	assert.Equal(t, models.SlotStatusAvailableUnassigned, byDay[models.WeekdayThursday])
	assert.Equal(t, models.SlotStatusAvailableUnassigned, byDay[models.WeekdayFriday])
}

func TestResolveGridCoversActiveRoster(t *testing.T) {
	weekStart := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	engine := NewArbitrationService(
		&exceptionReaderStub{},
		&assignmentReaderStub{},
		&availabilityReaderStub{},
		&rosterStub{trainers: []models.Trainer{{ID: "t1"}, {ID: "t2"}}},
		&inferenceStub{},
		nil,
		zap.NewNop(),
	)

	grid, err := engine.ResolveGrid(context.Background(), weekStart)
	require.NoError(t, err)
	require.Len(t, grid, 2)
	assert.Equal(t, "t1", grid[0].TrainerID)
	assert.Equal(t, "t2", grid[1].TrainerID)
}

func TestRulePipelineOrderIsData(t *testing.T) {
	rules := defaultRules()
	require.Len(t, rules, 4)
	names := make([]string, 0, len(rules))
	for _, rule := range rules {
		names = append(names, rule.name)
	}
	assert.Equal(t, []string{
		"approved-exceptional-availability",
		"approved-absence",
		"duty-assignment",
		"recurring-availability",
	}, names)
}
