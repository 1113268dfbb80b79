package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fleet-presence-api/internal/models"
)

func newAttendanceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func attendanceRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "driver_id", "first_name", "last_name", "matricule", "type",
		"occurred_at", "latitude", "longitude", "signature_data", "created_at", "updated_at",
	})
}

func TestAttendanceRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	first := "Jean"
	last := "Dupont"
	event := &models.AttendanceEvent{
		FirstName:  &first,
		LastName:   &last,
		Matricule:  "MAT-001",
		Type:       models.EventTypeArrival,
		OccurredAt: time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC),
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendances")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	require.NoError(t, repo.Insert(context.Background(), event))
	require.Equal(t, int64(42), event.ID)
	require.False(t, event.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	occurred := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	rows := attendanceRows().
		AddRow(int64(7), nil, "Jean", "Dupont", "MAT-001", "arrival", occurred, nil, nil, nil, occurred, occurred)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, driver_id, first_name")).
		WithArgs(int64(7)).
		WillReturnRows(rows)

	event, err := repo.FindByID(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, int64(7), event.ID)
	require.Equal(t, models.EventTypeArrival, event.Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryUpdateCorrection(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	occurred := time.Date(2025, 3, 12, 10, 15, 0, 0, time.UTC)
	rows := attendanceRows().
		AddRow(int64(7), nil, "Jean", "Dupont", "MAT-001", "departure", occurred, nil, nil, nil, occurred, occurred)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE attendances SET type = $2, occurred_at = $3")).
		WillReturnRows(rows)

	event, err := repo.UpdateCorrection(context.Background(), 7, models.EventTypeDeparture, occurred)
	require.NoError(t, err)
	require.Equal(t, models.EventTypeDeparture, event.Type)
	require.Equal(t, occurred, event.OccurredAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryExistsForMatricule(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	from := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("MAT-001", "arrival", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsForMatricule(context.Background(), "MAT-001", models.EventTypeArrival, from, to)
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryLatestForDriverEmptyDay(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	from := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY occurred_at DESC, id DESC LIMIT 1")).
		WithArgs(int64(1), from, to).
		WillReturnRows(attendanceRows())

	event, err := repo.LatestForDriver(context.Background(), 1, from, to)
	require.NoError(t, err)
	require.Nil(t, event)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryLatestPerDriver(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	from := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	driverID := int64(1)
	occurred := from.Add(9 * time.Hour)
	rows := attendanceRows().
		AddRow(int64(3), driverID, "Jean", "Dupont", "MAT-001", "arrival", occurred, nil, nil, nil, occurred, occurred)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT ON (driver_id)")).
		WithArgs(pq.Array([]int64{1, 2}), from, to).
		WillReturnRows(rows)

	latest, err := repo.LatestPerDriver(context.Background(), []int64{1, 2}, from, to)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	require.Equal(t, models.EventTypeArrival, latest[driverID].Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryLatestPerDriverNoIDs(t *testing.T) {
	db, _, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	latest, err := repo.LatestPerDriver(context.Background(), nil, time.Now(), time.Now())
	require.NoError(t, err)
	require.Empty(t, latest)
}

func TestAttendanceRepositoryListBetweenOpenEnded(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	occurred := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	rows := attendanceRows().
		AddRow(int64(2), nil, "Jean", "Dupont", "MAT-001", "departure", occurred, nil, nil, nil, occurred, occurred).
		AddRow(int64(1), nil, "Jean", "Dupont", "MAT-001", "arrival", occurred.Add(-8*time.Hour), nil, nil, nil, occurred, occurred)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 ORDER BY occurred_at DESC, id DESC")).
		WillReturnRows(rows)

	events, err := repo.ListBetween(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, int64(2), events[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
