package repository

import (
	"context"
	"testing"
	"time"

	"github.com/KlinikCare/attendance-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newMockTravelRepo(t *testing.T) (TravelRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresTravelRepository(db), mock
}

func travelSample(userID uuid.UUID) *models.TravelSample {
	return &models.TravelSample{
		UserID:     userID,
		Latitude:   -6.2088,
		Longitude:  106.8456,
		RecordedAt: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
	}
}

func TestTravelGetMissing(t *testing.T) {
	repo, mock := newMockTravelRepo(t)
	userID := uuid.New()

	mock.ExpectQuery(`SELECT user_id, latitude, longitude, recorded_at, version\s+FROM travel_samples`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	_, err := repo.Get(context.Background(), userID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTravelUpsertFirstSample(t *testing.T) {
	repo, mock := newMockTravelRepo(t)
	sample := travelSample(uuid.New())

	mock.ExpectExec(`INSERT INTO travel_samples`).
		WithArgs(sample.UserID, sample.Latitude, sample.Longitude, sample.RecordedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Upsert(context.Background(), sample, 0))
	require.Equal(t, int64(1), sample.Version)
}

func TestTravelUpsertFirstSampleLosesRace(t *testing.T) {
	repo, mock := newMockTravelRepo(t)
	sample := travelSample(uuid.New())

	// ON CONFLICT DO NOTHING touched no row: another instance inserted first.
	mock.ExpectExec(`INSERT INTO travel_samples`).
		WithArgs(sample.UserID, sample.Latitude, sample.Longitude, sample.RecordedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, repo.Upsert(context.Background(), sample, 0), ErrStaleSample)
}

func TestTravelUpsertConditionalUpdate(t *testing.T) {
	repo, mock := newMockTravelRepo(t)
	sample := travelSample(uuid.New())

	mock.ExpectExec(`(?s)UPDATE travel_samples.+version = version \+ 1.+WHERE user_id = \$1 AND version = \$5`).
		WithArgs(sample.UserID, sample.Latitude, sample.Longitude, sample.RecordedAt, int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Upsert(context.Background(), sample, 4))
	require.Equal(t, int64(5), sample.Version)
}

func TestTravelUpsertStaleVersion(t *testing.T) {
	repo, mock := newMockTravelRepo(t)
	sample := travelSample(uuid.New())

	mock.ExpectExec(`UPDATE travel_samples`).
		WithArgs(sample.UserID, sample.Latitude, sample.Longitude, sample.RecordedAt, int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, repo.Upsert(context.Background(), sample, 4), ErrStaleSample)
}
