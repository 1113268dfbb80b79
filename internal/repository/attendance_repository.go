package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/fleet-presence-api/internal/models"
)

const attendanceColumns = `id, driver_id, first_name, last_name, matricule, type, occurred_at, latitude, longitude, signature_data, created_at, updated_at`

// AttendanceRepository handles persistence for the attendance ledger.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Insert appends an event to the ledger and fills the assigned id.
func (r *AttendanceRepository) Insert(ctx context.Context, event *models.AttendanceEvent) error {
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	const query = `INSERT INTO attendances (driver_id, first_name, last_name, matricule, type, occurred_at, latitude, longitude, signature_data, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id`
	if err := r.db.GetContext(ctx, &event.ID, query,
		event.DriverID, event.FirstName, event.LastName, event.Matricule, event.Type,
		event.OccurredAt, event.Latitude, event.Longitude, event.SignatureData,
		event.CreatedAt, event.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

// FindByID returns a single ledger row.
func (r *AttendanceRepository) FindByID(ctx context.Context, id int64) (*models.AttendanceEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendances WHERE id = $1 LIMIT 1`, attendanceColumns)
	var event models.AttendanceEvent
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance by id: %w", err)
	}
	return &event, nil
}

// UpdateCorrection overwrites type and occurred_at of an existing event. The
// subject reference is never touched.
func (r *AttendanceRepository) UpdateCorrection(ctx context.Context, id int64, eventType models.EventType, occurredAt time.Time) (*models.AttendanceEvent, error) {
	query := fmt.Sprintf(`UPDATE attendances SET type = $2, occurred_at = $3, updated_at = $4 WHERE id = $1 RETURNING %s`, attendanceColumns)
	var event models.AttendanceEvent
	if err := r.db.GetContext(ctx, &event, query, id, eventType, occurredAt, time.Now().UTC()); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("update attendance correction: %w", err)
	}
	return &event, nil
}

// ExistsForMatricule reports whether an event of the given type exists for
// the matricule within [from, to).
func (r *AttendanceRepository) ExistsForMatricule(ctx context.Context, matricule string, eventType models.EventType, from, to time.Time) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM attendances WHERE matricule = $1 AND type = $2 AND occurred_at >= $3 AND occurred_at < $4)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, matricule, eventType, from, to); err != nil {
		return false, fmt.Errorf("attendance exists for matricule: %w", err)
	}
	return exists, nil
}

// LatestForDriver returns the driver's most recent event within [from, to),
// ties broken by highest id. Returns nil when the driver has no event in the
// window.
func (r *AttendanceRepository) LatestForDriver(ctx context.Context, driverID int64, from, to time.Time) (*models.AttendanceEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendances WHERE driver_id = $1 AND occurred_at >= $2 AND occurred_at < $3 ORDER BY occurred_at DESC, id DESC LIMIT 1`, attendanceColumns)
	var event models.AttendanceEvent
	if err := r.db.GetContext(ctx, &event, query, driverID, from, to); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("latest attendance for driver: %w", err)
	}
	return &event, nil
}

// LatestPerDriver returns each listed driver's most recent event within
// [from, to), keyed by driver id. Drivers without events are absent from the
// result.
func (r *AttendanceRepository) LatestPerDriver(ctx context.Context, driverIDs []int64, from, to time.Time) (map[int64]models.AttendanceEvent, error) {
	if len(driverIDs) == 0 {
		return map[int64]models.AttendanceEvent{}, nil
	}
	query := fmt.Sprintf(`SELECT DISTINCT ON (driver_id) %s FROM attendances
WHERE driver_id = ANY($1) AND occurred_at >= $2 AND occurred_at < $3
ORDER BY driver_id, occurred_at DESC, id DESC`, attendanceColumns)
	var rows []models.AttendanceEvent
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(driverIDs), from, to); err != nil {
		return nil, fmt.Errorf("latest attendance per driver: %w", err)
	}
	result := make(map[int64]models.AttendanceEvent, len(rows))
	for _, row := range rows {
		if row.DriverID != nil {
			result[*row.DriverID] = row
		}
	}
	return result, nil
}

// HistoryForDriver returns all events for a driver ordered by occurred_at.
func (r *AttendanceRepository) HistoryForDriver(ctx context.Context, driverID int64, descending bool) ([]models.AttendanceEvent, error) {
	order := "ASC"
	if descending {
		order = "DESC"
	}
	query := fmt.Sprintf(`SELECT %s FROM attendances WHERE driver_id = $1 ORDER BY occurred_at %s, id %s`, attendanceColumns, order, order)
	var rows []models.AttendanceEvent
	if err := r.db.SelectContext(ctx, &rows, query, driverID); err != nil {
		return nil, fmt.Errorf("attendance history for driver: %w", err)
	}
	return rows, nil
}

// ListBetween returns all events whose occurred_at falls in [from, to),
// newest first. Nil bounds are open-ended.
func (r *AttendanceRepository) ListBetween(ctx context.Context, from, to *time.Time) ([]models.AttendanceEvent, error) {
	where := "1=1"
	args := []interface{}{}
	if from != nil {
		args = append(args, *from)
		where += fmt.Sprintf(" AND occurred_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		where += fmt.Sprintf(" AND occurred_at < $%d", len(args))
	}
	query := fmt.Sprintf(`SELECT %s FROM attendances WHERE %s ORDER BY occurred_at DESC, id DESC`, attendanceColumns, where)
	var rows []models.AttendanceEvent
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance between: %w", err)
	}
	return rows, nil
}
