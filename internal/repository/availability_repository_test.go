package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planordo/planning-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAvailabilityRepositoryListByTrainer(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	rows := sqlmock.NewRows([]string{"id", "trainer_id", "weekday", "slot", "kind", "location_id", "validated", "created_at", "updated_at"}).
		AddRow("a1", "t1", "MONDAY", "MORNING", "available", nil, true, time.Now(), time.Now())
	mock.ExpectQuery("SELECT id, trainer_id, weekday, slot, kind, location_id, validated, created_at, updated_at").
		WithArgs("t1").
		WillReturnRows(rows)

	entries, err := repo.ListByTrainer(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, models.WeekdayMonday, entries[0].Weekday)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryFindValidatedNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectQuery("FROM recurring_availabilities WHERE trainer_id").
		WithArgs("t1", "TUESDAY", "AFTERNOON").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindValidated(context.Background(), "t1", models.WeekdayTuesday, models.SlotAfternoon)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryReplaceForTrainer(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM recurring_availabilities WHERE trainer_id = $1")).
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO recurring_availabilities").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO recurring_availabilities").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entries := []models.RecurringAvailabilityEntry{
		{Weekday: models.WeekdayMonday, Slot: models.SlotMorning, Kind: models.AvailabilityKindAvailable},
		{Weekday: models.WeekdayFriday, Slot: models.SlotAfternoon, Kind: models.AvailabilityKindAvailable},
	}
	require.NoError(t, repo.ReplaceForTrainer(context.Background(), "t1", entries))
	assert.NotEmpty(t, entries[0].ID)
	assert.Equal(t, "t1", entries[0].TrainerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryReplaceForTrainerRollsBackOnInsertError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM recurring_availabilities").
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO recurring_availabilities").
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := repo.ReplaceForTrainer(context.Background(), "t1", []models.RecurringAvailabilityEntry{
		{Weekday: models.WeekdayMonday, Slot: models.SlotMorning, Kind: models.AvailabilityKindAvailable},
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryValidateForTrainer(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectExec("UPDATE recurring_availabilities SET validated = TRUE").
		WithArgs("t1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.ValidateForTrainer(context.Background(), "t1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
