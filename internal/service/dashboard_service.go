package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/fleet-presence-api/internal/models"
	appErrors "github.com/noah-isme/fleet-presence-api/pkg/errors"
)

type dashboardDriverRepository interface {
	ListForOwner(ctx context.Context, userID string) ([]models.DriverDetail, error)
	ListAll(ctx context.Context) ([]models.DriverDetail, error)
}

type dashboardLedgerRepository interface {
	LatestPerDriver(ctx context.Context, driverIDs []int64, from, to time.Time) (map[int64]models.AttendanceEvent, error)
}

// DashboardService assembles the per-manager presence board.
type DashboardService struct {
	drivers dashboardDriverRepository
	ledger  dashboardLedgerRepository
	cache   *CacheService
	logger  *zap.Logger
	loc     *time.Location
	ttl     time.Duration
	now     func() time.Time
}

// DashboardServiceParams groups dependencies for NewDashboardService.
type DashboardServiceParams struct {
	Drivers  dashboardDriverRepository
	Ledger   dashboardLedgerRepository
	Cache    *CacheService
	Logger   *zap.Logger
	Location *time.Location
	CacheTTL time.Duration
	Now      func() time.Time
}

// NewDashboardService constructs the dashboard service.
func NewDashboardService(p DashboardServiceParams) *DashboardService {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Location == nil {
		p.Location = time.UTC
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &DashboardService{
		drivers: p.Drivers,
		ledger:  p.Ledger,
		cache:   p.Cache,
		logger:  p.Logger,
		loc:     p.Location,
		ttl:     p.CacheTTL,
		now:     p.Now,
	}
}

// Board returns today's presence board for the actor. Managers see their own
// fleet, admins see every driver with the owning manager's name attached.
func (s *DashboardService) Board(ctx context.Context, actor models.Actor) (*models.Dashboard, error) {
	cacheKey := "dashboard:" + actor.UserID
	if s.cache != nil && s.cache.Enabled() {
		var cached models.Dashboard
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	var (
		drivers []models.DriverDetail
		err     error
	)
	if actor.Admin {
		drivers, err = s.drivers.ListAll(ctx)
	} else {
		drivers, err = s.drivers.ListForOwner(ctx, actor.UserID)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list drivers")
	}

	from, to := s.dayBounds(s.now().In(s.loc))
	ids := make([]int64, 0, len(drivers))
	for _, d := range drivers {
		ids = append(ids, d.ID)
	}
	latest, err := s.ledger.LatestPerDriver(ctx, ids, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load presence events")
	}

	rows := make([]models.DriverStatus, 0, len(drivers))
	for _, d := range drivers {
		row := models.DriverStatus{
			ID:        d.ID,
			Name:      d.Name,
			Matricule: d.Matricule,
			Phone:     d.Phone,
		}
		if actor.Admin {
			row.ManagerName = "N/A"
			if d.ManagerName != nil {
				row.ManagerName = *d.ManagerName
			}
		}
		if ev, ok := latest[d.ID]; ok {
			row.IsPresent = ev.Type == models.EventTypeArrival
			last := ev.OccurredAt.In(s.loc).Format("15:04")
			row.LastActionTime = &last
		}
		rows = append(rows, row)
	}

	board := &models.Dashboard{
		Drivers: rows,
		Stats:   models.DashboardStats{TotalDrivers: len(rows)},
	}

	if s.cache != nil && s.cache.Enabled() {
		if err := s.cache.Set(ctx, cacheKey, board, s.ttl); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return board, nil
}

func (s *DashboardService) dayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
	return start, start.AddDate(0, 0, 1)
}
