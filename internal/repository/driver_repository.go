package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fleet-presence-api/internal/models"
)

// DriverRepository provides database access for the driver registry.
type DriverRepository struct {
	db *sqlx.DB
}

// NewDriverRepository creates a new instance of DriverRepository.
func NewDriverRepository(db *sqlx.DB) *DriverRepository {
	return &DriverRepository{db: db}
}

// FindByID returns a driver with its owning manager's name.
func (r *DriverRepository) FindByID(ctx context.Context, id int64) (*models.DriverDetail, error) {
	const query = `SELECT d.id, d.user_id, d.name, d.matricule, d.phone, d.created_at, d.updated_at, u.full_name AS manager_name
FROM drivers d
LEFT JOIN users u ON u.id = d.user_id
WHERE d.id = $1 LIMIT 1`
	var driver models.DriverDetail
	if err := r.db.GetContext(ctx, &driver, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find driver by id: %w", err)
	}
	return &driver, nil
}

// ListForOwner returns the drivers owned by the given manager.
func (r *DriverRepository) ListForOwner(ctx context.Context, userID string) ([]models.DriverDetail, error) {
	const query = `SELECT d.id, d.user_id, d.name, d.matricule, d.phone, d.created_at, d.updated_at, u.full_name AS manager_name
FROM drivers d
LEFT JOIN users u ON u.id = d.user_id
WHERE d.user_id = $1
ORDER BY d.name ASC`
	var drivers []models.DriverDetail
	if err := r.db.SelectContext(ctx, &drivers, query, userID); err != nil {
		return nil, fmt.Errorf("list drivers for owner: %w", err)
	}
	return drivers, nil
}

// ListAll returns every driver with manager names, for admin views.
func (r *DriverRepository) ListAll(ctx context.Context) ([]models.DriverDetail, error) {
	const query = `SELECT d.id, d.user_id, d.name, d.matricule, d.phone, d.created_at, d.updated_at, u.full_name AS manager_name
FROM drivers d
LEFT JOIN users u ON u.id = d.user_id
ORDER BY d.name ASC`
	var drivers []models.DriverDetail
	if err := r.db.SelectContext(ctx, &drivers, query); err != nil {
		return nil, fmt.Errorf("list all drivers: %w", err)
	}
	return drivers, nil
}

// ExistsByMatricule reports whether another driver already uses the matricule.
func (r *DriverRepository) ExistsByMatricule(ctx context.Context, matricule string, excludeID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM drivers WHERE matricule = $1 AND id <> $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, matricule, excludeID); err != nil {
		return false, fmt.Errorf("driver exists by matricule: %w", err)
	}
	return exists, nil
}

// Create inserts a new driver and fills the assigned id.
func (r *DriverRepository) Create(ctx context.Context, driver *models.Driver) error {
	now := time.Now().UTC()
	if driver.CreatedAt.IsZero() {
		driver.CreatedAt = now
	}
	driver.UpdatedAt = now
	const query = `INSERT INTO drivers (user_id, name, matricule, phone, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	if err := r.db.GetContext(ctx, &driver.ID, query, driver.UserID, driver.Name, driver.Matricule, driver.Phone, driver.CreatedAt, driver.UpdatedAt); err != nil {
		return fmt.Errorf("create driver: %w", err)
	}
	return nil
}

// Update modifies mutable driver fields. Ownership never changes.
func (r *DriverRepository) Update(ctx context.Context, driver *models.Driver) error {
	driver.UpdatedAt = time.Now().UTC()
	const query = `UPDATE drivers SET name = :name, matricule = :matricule, phone = :phone, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, driver); err != nil {
		return fmt.Errorf("update driver: %w", err)
	}
	return nil
}

// Delete removes a driver. Ledger rows keep their denormalized matricule and
// have driver_id set to NULL by the schema.
func (r *DriverRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM drivers WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete driver: %w", err)
	}
	return nil
}
