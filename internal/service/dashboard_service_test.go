package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fleet-presence-api/internal/models"
)

type fakeBoardDrivers struct {
	owned map[string][]models.DriverDetail
	all   []models.DriverDetail
}

func (f *fakeBoardDrivers) ListForOwner(_ context.Context, userID string) ([]models.DriverDetail, error) {
	return f.owned[userID], nil
}

func (f *fakeBoardDrivers) ListAll(context.Context) ([]models.DriverDetail, error) {
	return f.all, nil
}

type fakeBoardLedger struct {
	latest   map[int64]models.AttendanceEvent
	lastFrom time.Time
	lastTo   time.Time
}

func (f *fakeBoardLedger) LatestPerDriver(_ context.Context, _ []int64, from, to time.Time) (map[int64]models.AttendanceEvent, error) {
	f.lastFrom, f.lastTo = from, to
	return f.latest, nil
}

func boardFixtures() (*fakeBoardDrivers, *fakeBoardLedger) {
	managerName := "Alice Martin"
	drivers := &fakeBoardDrivers{
		owned: map[string][]models.DriverDetail{
			"manager-1": {
				{Driver: models.Driver{ID: 1, UserID: "manager-1", Name: "Jean Dupont", Matricule: "MAT-001"}},
				{Driver: models.Driver{ID: 2, UserID: "manager-1", Name: "Luc Petit", Matricule: "MAT-002"}},
			},
		},
		all: []models.DriverDetail{
			{Driver: models.Driver{ID: 1, UserID: "manager-1", Name: "Jean Dupont", Matricule: "MAT-001"}, ManagerName: &managerName},
			{Driver: models.Driver{ID: 2, UserID: "manager-1", Name: "Luc Petit", Matricule: "MAT-002"}, ManagerName: &managerName},
			{Driver: models.Driver{ID: 3, UserID: "manager-2", Name: "Marie Blanc", Matricule: "MAT-003"}},
		},
	}
	ledger := &fakeBoardLedger{
		latest: map[int64]models.AttendanceEvent{
			1: {ID: 10, Type: models.EventTypeArrival, OccurredAt: testBase},
			2: {ID: 11, Type: models.EventTypeDeparture, OccurredAt: testBase.Add(time.Hour)},
		},
	}
	return drivers, ledger
}

func TestBoardManagerView(t *testing.T) {
	drivers, ledger := boardFixtures()
	svc := NewDashboardService(DashboardServiceParams{
		Drivers: drivers,
		Ledger:  ledger,
		Now:     func() time.Time { return testBase },
	})

	board, err := svc.Board(context.Background(), models.Actor{UserID: "manager-1"})
	require.NoError(t, err)
	require.Len(t, board.Drivers, 2)
	assert.Equal(t, 2, board.Stats.TotalDrivers)

	present := board.Drivers[0]
	assert.True(t, present.IsPresent)
	require.NotNil(t, present.LastActionTime)
	assert.Equal(t, "09:00", *present.LastActionTime)
	assert.Empty(t, present.ManagerName)

	departed := board.Drivers[1]
	assert.False(t, departed.IsPresent)
	assert.Equal(t, "10:00", *departed.LastActionTime)

	// The ledger is queried for today's window only.
	assert.Equal(t, time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC), ledger.lastFrom)
	assert.Equal(t, time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC), ledger.lastTo)
}

func TestBoardAdminViewIncludesManagerNames(t *testing.T) {
	drivers, ledger := boardFixtures()
	svc := NewDashboardService(DashboardServiceParams{
		Drivers: drivers,
		Ledger:  ledger,
		Now:     func() time.Time { return testBase },
	})

	board, err := svc.Board(context.Background(), models.Actor{UserID: "admin-1", Admin: true})
	require.NoError(t, err)
	require.Len(t, board.Drivers, 3)
	assert.Equal(t, "Alice Martin", board.Drivers[0].ManagerName)
	assert.Equal(t, "N/A", board.Drivers[2].ManagerName)

	silent := board.Drivers[2]
	assert.False(t, silent.IsPresent)
	assert.Nil(t, silent.LastActionTime)
}
