package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/fleet-presence-api/internal/models"
	appErrors "github.com/noah-isme/fleet-presence-api/pkg/errors"
)

type driverRepository interface {
	FindByID(ctx context.Context, id int64) (*models.DriverDetail, error)
	ListForOwner(ctx context.Context, userID string) ([]models.DriverDetail, error)
	ListAll(ctx context.Context) ([]models.DriverDetail, error)
	ExistsByMatricule(ctx context.Context, matricule string, excludeID int64) (bool, error)
	Create(ctx context.Context, driver *models.Driver) error
	Update(ctx context.Context, driver *models.Driver) error
	Delete(ctx context.Context, id int64) error
}

// CreateDriverRequest holds payload for registering drivers.
type CreateDriverRequest struct {
	Name      string  `json:"name" validate:"required,max=255"`
	Matricule string  `json:"matricule" validate:"required,max=50"`
	Phone     *string `json:"phone" validate:"omitempty,max=20"`
}

// UpdateDriverRequest holds payload for updating drivers.
type UpdateDriverRequest struct {
	Name      string  `json:"name" validate:"required,max=255"`
	Matricule string  `json:"matricule" validate:"required,max=50"`
	Phone     *string `json:"phone" validate:"omitempty,max=20"`
}

// DriverService handles registry use-cases. Drivers are owned by the manager
// who created them; ownership grants update and delete rights, admins only
// gain read access.
type DriverService struct {
	repo      driverRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDriverService constructs the driver service.
func NewDriverService(repo driverRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *DriverService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DriverService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// Create registers a new driver owned by the acting manager.
func (s *DriverService) Create(ctx context.Context, actor models.Actor, req CreateDriverRequest) (*models.Driver, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid driver payload")
	}
	exists, err := s.repo.ExistsByMatricule(ctx, req.Matricule, 0)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate matricule")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "matricule already used")
	}
	driver := &models.Driver{
		UserID:    actor.UserID,
		Name:      req.Name,
		Matricule: req.Matricule,
		Phone:     req.Phone,
	}
	if err := s.repo.Create(ctx, driver); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create driver")
	}
	s.invalidateDashboards(ctx)
	return driver, nil
}

// Update modifies an existing driver. Owner only.
func (s *DriverService) Update(ctx context.Context, actor models.Actor, id int64, req UpdateDriverRequest) (*models.Driver, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid driver payload")
	}
	detail, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail.UserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to modify this driver")
	}
	exists, err := s.repo.ExistsByMatricule(ctx, req.Matricule, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate matricule")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "matricule already used")
	}
	driver := detail.Driver
	driver.Name = req.Name
	driver.Matricule = req.Matricule
	driver.Phone = req.Phone
	if err := s.repo.Update(ctx, &driver); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update driver")
	}
	s.invalidateDashboards(ctx)
	return &driver, nil
}

// Delete removes a driver. Owner only. Ledger rows survive with the driver
// reference nulled.
func (s *DriverService) Delete(ctx context.Context, actor models.Actor, id int64) error {
	detail, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if detail.UserID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to delete this driver")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete driver")
	}
	s.invalidateDashboards(ctx)
	return nil
}

// Get returns a driver visible to the actor: its owner or an admin.
func (s *DriverService) Get(ctx context.Context, actor models.Actor, id int64) (*models.DriverDetail, error) {
	detail, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail.UserID != actor.UserID && !actor.Admin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this driver")
	}
	return detail, nil
}

// ListVisible returns the actor's drivers, or every driver for admins.
func (s *DriverService) ListVisible(ctx context.Context, actor models.Actor) ([]models.DriverDetail, error) {
	var (
		drivers []models.DriverDetail
		err     error
	)
	if actor.Admin {
		drivers, err = s.repo.ListAll(ctx)
	} else {
		drivers, err = s.repo.ListForOwner(ctx, actor.UserID)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list drivers")
	}
	return drivers, nil
}

func (s *DriverService) load(ctx context.Context, id int64) (*models.DriverDetail, error) {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "driver not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load driver")
	}
	return detail, nil
}

func (s *DriverService) invalidateDashboards(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, "dashboard:*"); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}
