package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/fleet-presence-api/internal/models"
	appErrors "github.com/noah-isme/fleet-presence-api/pkg/errors"
)

type attendanceLedgerRepository interface {
	Insert(ctx context.Context, event *models.AttendanceEvent) error
	FindByID(ctx context.Context, id int64) (*models.AttendanceEvent, error)
	UpdateCorrection(ctx context.Context, id int64, eventType models.EventType, occurredAt time.Time) (*models.AttendanceEvent, error)
	ExistsForMatricule(ctx context.Context, matricule string, eventType models.EventType, from, to time.Time) (bool, error)
	LatestForDriver(ctx context.Context, driverID int64, from, to time.Time) (*models.AttendanceEvent, error)
	HistoryForDriver(ctx context.Context, driverID int64, descending bool) ([]models.AttendanceEvent, error)
	ListBetween(ctx context.Context, from, to *time.Time) ([]models.AttendanceEvent, error)
}

type attendanceDriverRepository interface {
	FindByID(ctx context.Context, id int64) (*models.DriverDetail, error)
}

// KioskEventRequest is the self-service submission payload. All identity
// fields are required after trimming.
type KioskEventRequest struct {
	FirstName     string   `json:"first_name" validate:"required"`
	LastName      string   `json:"last_name" validate:"required"`
	Matricule     string   `json:"matricule" validate:"required"`
	Type          string   `json:"type" validate:"required,event_type"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	SignatureData *string  `json:"signature_data"`
}

// ManualEventRequest back-fills an event with an explicit date and time.
type ManualEventRequest struct {
	Type string `json:"type" validate:"required,event_type"`
	Date string `json:"date" validate:"required"`
	Time string `json:"time" validate:"required"`
}

// CorrectEventRequest overwrites type and occurred_at of an existing event.
type CorrectEventRequest struct {
	Type string `json:"type" validate:"required,event_type"`
	Date string `json:"date" validate:"required"`
	Time string `json:"time" validate:"required"`
}

// AttendanceService is the attendance ledger: it admits new events under the
// policy matching the submission path, derives presence status and serves
// filtered event slices.
type AttendanceService struct {
	ledger    attendanceLedgerRepository
	drivers   attendanceDriverRepository
	kiosk     AdmissionPolicy
	owner     AdmissionPolicy
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	loc       *time.Location
	now       func() time.Time
}

// AttendanceServiceParams groups constructor dependencies.
type AttendanceServiceParams struct {
	Ledger    attendanceLedgerRepository
	Drivers   attendanceDriverRepository
	Cache     *CacheService
	Validator *validator.Validate
	Logger    *zap.Logger
	Location  *time.Location
	Now       func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(p AttendanceServiceParams) *AttendanceService {
	if p.Validator == nil {
		p.Validator = validator.New()
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Location == nil {
		p.Location = time.UTC
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	svc := &AttendanceService{
		ledger:    p.Ledger,
		drivers:   p.Drivers,
		kiosk:     NewKioskPolicy(),
		owner:     NewLastEventPolicy(),
		cache:     p.Cache,
		validator: p.Validator,
		logger:    p.Logger,
		loc:       p.Location,
		now:       p.Now,
	}
	RegisterAttendanceValidations(svc.validator)
	return svc
}

// RegisterAttendanceValidations installs the custom validator tags the
// attendance payloads use.
func RegisterAttendanceValidations(v *validator.Validate) {
	_ = v.RegisterValidation("event_type", func(fl validator.FieldLevel) bool {
		return models.EventType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("report_period", func(fl validator.FieldLevel) bool {
		return models.ReportPeriod(fl.Field().String()).Valid()
	})
}

// RecordKiosk admits and persists a self-service submission. The submitter
// is identified by free-text name and matricule only.
func (s *AttendanceService) RecordKiosk(ctx context.Context, req KioskEventRequest) (*models.AttendanceEvent, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Matricule = strings.TrimSpace(req.Matricule)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	eventType := models.EventType(req.Type)
	now := s.now()
	from, to := s.dayBounds(now)

	view := &matriculeDayView{ledger: s.ledger, matricule: req.Matricule, from: from, to: to}
	if err := s.kiosk.Admit(ctx, view, eventType); err != nil {
		return nil, err
	}

	event := &models.AttendanceEvent{
		FirstName:     &req.FirstName,
		LastName:      &req.LastName,
		Matricule:     req.Matricule,
		Type:          eventType,
		OccurredAt:    now,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		SignatureData: req.SignatureData,
	}
	if err := s.ledger.Insert(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	s.invalidateDashboards(ctx)
	s.logger.Info("kiosk event recorded",
		zap.Int64("event_id", event.ID),
		zap.String("matricule", event.Matricule),
		zap.String("type", string(event.Type)))
	return event, nil
}

// RecordOwner performs the manager one-tap action for a registered driver.
// Only the owning manager may use this path; admins are deliberately not
// granted it even though the manual path admits them.
func (s *AttendanceService) RecordOwner(ctx context.Context, actor models.Actor, driverID int64, eventType models.EventType) (*models.AttendanceEvent, error) {
	if !eventType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid event type")
	}
	driver, err := s.loadDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if driver.UserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning manager may record this driver")
	}

	now := s.now()
	from, to := s.dayBounds(now)
	view := &driverDayView{ledger: s.ledger, driverID: driverID, from: from, to: to}
	if err := s.owner.Admit(ctx, view, eventType); err != nil {
		return nil, err
	}

	event := s.eventForDriver(&driver.Driver, eventType, now)
	if err := s.ledger.Insert(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	s.invalidateDashboards(ctx)
	return event, nil
}

// RecordManual back-fills an event at an explicit date and time. The caller
/// is trusted: no duplicate or sequence checks apply.
func (s *AttendanceService) RecordManual(ctx context.Context, actor models.Actor, driverID int64, req ManualEventRequest) (*models.AttendanceEvent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid manual entry payload")
	}
	occurredAt, err := s.parseDateTime(req.Date, req.Time)
	if err != nil {
		return nil, err
	}
	driver, err := s.loadDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if driver.UserID != actor.UserID && !actor.Admin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to record for this driver")
	}

	event := s.eventForDriver(&driver.Driver, models.EventType(req.Type), occurredAt)
	if err := s.ledger.Insert(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	s.invalidateDashboards(ctx)
	s.logger.Info("manual event recorded",
		zap.Int64("event_id", event.ID),
		zap.Int64("driver_id", driverID),
		zap.String("actor", actor.UserID))
	return event, nil
}

// Correct overwrites type and occurred_at of an existing event. The subject
// reference never changes and no admission re-validation happens.
func (s *AttendanceService) Correct(ctx context.Context, actor models.Actor, eventID int64, req CorrectEventRequest) (*models.AttendanceEvent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid correction payload")
	}
	occurredAt, err := s.parseDateTime(req.Date, req.Time)
	if err != nil {
		return nil, err
	}

	event, err := s.ledger.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance event")
	}

	if event.DriverID == nil {
		// Kiosk events have no owner; only admins may correct them.
		if !actor.Admin {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to correct this event")
		}
	} else {
		driver, err := s.loadDriver(ctx, *event.DriverID)
		if err != nil {
			return nil, err
		}
		if driver.UserID != actor.UserID && !actor.Admin {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to correct this event")
		}
	}

	updated, err := s.ledger.UpdateCorrection(ctx, eventID, models.EventType(req.Type), occurredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to correct attendance event")
	}
	s.invalidateDashboards(ctx)
	s.logger.Info("event corrected",
		zap.Int64("event_id", eventID),
		zap.String("actor", actor.UserID),
		zap.String("type", req.Type))
	return updated, nil
}

// StatusNow derives the presence status for the current day.
func (s *AttendanceService) StatusNow(ctx context.Context, driverID int64) (*models.PresenceStatus, error) {
	return s.DeriveStatus(ctx, driverID, s.now())
}

// DeriveStatus reports presence for the day containing asOf: present iff the
// day's chronologically last event is an arrival.
func (s *AttendanceService) DeriveStatus(ctx context.Context, driverID int64, asOf time.Time) (*models.PresenceStatus, error) {
	from, to := s.dayBounds(asOf)
	latest, err := s.ledger.LatestForDriver(ctx, driverID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to derive status")
	}
	status := &models.PresenceStatus{}
	if latest != nil {
		status.Present = latest.Type == models.EventTypeArrival
		t := latest.OccurredAt.In(s.loc).Format("15:04")
		status.LastActionTime = &t
	}
	return status, nil
}

// History returns a driver's full event history, newest first, each entry
// annotated with whether it is from today and how many days ago it happened.
func (s *AttendanceService) History(ctx context.Context, actor models.Actor, driverID int64) ([]models.HistoryEntry, error) {
	driver, err := s.loadDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if driver.UserID != actor.UserID && !actor.Admin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this driver")
	}

	events, err := s.ledger.HistoryForDriver(ctx, driverID, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}

	today, _ := s.dayBounds(s.now())
	entries := make([]models.HistoryEntry, 0, len(events))
	for _, ev := range events {
		local := ev.OccurredAt.In(s.loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
		daysAgo := int(math.Round(today.Sub(day).Hours() / 24))
		if daysAgo < 0 {
			daysAgo = 0
		}
		entries = append(entries, models.HistoryEntry{
			ID:      ev.ID,
			Type:    ev.Type,
			Date:    local.Format("2006-01-02"),
			Time:    local.Format("15:04"),
			IsToday: day.Equal(today),
			DaysAgo: daysAgo,
		})
	}
	return entries, nil
}

// Report returns every event whose occurred_at falls in the period's day
// range, newest first. Scoping to an actor is the caller's concern; the
// route is admin-only.
func (s *AttendanceService) Report(ctx context.Context, period models.ReportPeriod) ([]models.AttendanceEvent, error) {
	if !period.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid report period")
	}
	from, to := s.periodBounds(period)
	events, err := s.ledger.ListBetween(ctx, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build report")
	}
	return events, nil
}

// Location exposes the deployment time zone to collaborators rendering
// dates and times.
func (s *AttendanceService) Location() *time.Location {
	return s.loc
}

func (s *AttendanceService) loadDriver(ctx context.Context, driverID int64) (*models.DriverDetail, error) {
	driver, err := s.drivers.FindByID(ctx, driverID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "driver not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load driver")
	}
	return driver, nil
}

// eventForDriver stamps a ledger row from the registry record, denormalizing
// the name pair. The name splits on the first space; single-token names get
// an empty last name.
func (s *AttendanceService) eventForDriver(driver *models.Driver, eventType models.EventType, occurredAt time.Time) *models.AttendanceEvent {
	firstName, lastName := splitName(driver.Name)
	return &models.AttendanceEvent{
		DriverID:   &driver.ID,
		FirstName:  &firstName,
		LastName:   &lastName,
		Matricule:  driver.Matricule,
		Type:       eventType,
		OccurredAt: occurredAt,
	}
}

func splitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if idx := strings.Index(full, " "); idx >= 0 {
		return full[:idx], full[idx+1:]
	}
	return full, ""
}

// dayBounds returns the [start, end) window of the calendar day containing t
// in the deployment time zone.
func (s *AttendanceService) dayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(s.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	return start, start.AddDate(0, 0, 1)
}

// periodBounds resolves a report period to a half-open day range against the
// current date. Weeks run Monday through Sunday.
func (s *AttendanceService) periodBounds(period models.ReportPeriod) (*time.Time, *time.Time) {
	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)

	switch period {
	case models.PeriodToday:
		end := today.AddDate(0, 0, 1)
		return &today, &end
	case models.PeriodWeek:
		offset := (int(today.Weekday()) + 6) % 7
		start := today.AddDate(0, 0, -offset)
		end := start.AddDate(0, 0, 7)
		return &start, &end
	case models.PeriodMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
		end := start.AddDate(0, 1, 0)
		return &start, &end
	default:
		return nil, nil
	}
}

func (s *AttendanceService) parseDateTime(date, clock string) (time.Time, error) {
	layout := "2006-01-02 15:04"
	raw := date + " " + clock
	if len(clock) == len("15:04:05") {
		layout = "2006-01-02 15:04:05"
	}
	parsed, err := time.ParseInLocation(layout, raw, s.loc)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid date or time, expected YYYY-MM-DD and HH:MM")
	}
	return parsed, nil
}

func (s *AttendanceService) invalidateDashboards(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, "dashboard:*"); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}

// matriculeDayView scopes admission lookups to a matricule's day; used by
// the kiosk path where the subject may be unregistered.
type matriculeDayView struct {
	ledger    attendanceLedgerRepository
	matricule string
	from, to  time.Time
}

func (v *matriculeDayView) HasSameType(ctx context.Context, eventType models.EventType) (bool, error) {
	return v.ledger.ExistsForMatricule(ctx, v.matricule, eventType, v.from, v.to)
}

func (v *matriculeDayView) HasArrival(ctx context.Context) (bool, error) {
	return v.ledger.ExistsForMatricule(ctx, v.matricule, models.EventTypeArrival, v.from, v.to)
}

func (v *matriculeDayView) Latest(ctx context.Context) (*models.AttendanceEvent, error) {
	return nil, errors.New("latest lookup not supported for matricule view")
}

// driverDayView scopes admission lookups to a registered driver's day.
type driverDayView struct {
	ledger   attendanceLedgerRepository
	driverID int64
	from, to time.Time
}

func (v *driverDayView) HasSameType(ctx context.Context, eventType models.EventType) (bool, error) {
	latest, err := v.Latest(ctx)
	if err != nil {
		return false, err
	}
	return latest != nil && latest.Type == eventType, nil
}

func (v *driverDayView) HasArrival(ctx context.Context) (bool, error) {
	latest, err := v.Latest(ctx)
	if err != nil {
		return false, err
	}
	return latest != nil && latest.Type == models.EventTypeArrival, nil
}

func (v *driverDayView) Latest(ctx context.Context) (*models.AttendanceEvent, error) {
	return v.ledger.LatestForDriver(ctx, v.driverID, v.from, v.to)
}
