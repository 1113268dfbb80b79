package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fleet-presence-api/internal/models"
	appErrors "github.com/noah-isme/fleet-presence-api/pkg/errors"
)

type fakeRegistry struct {
	nextID  int64
	drivers map[int64]*models.DriverDetail
	deleted []int64
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{drivers: make(map[int64]*models.DriverDetail)}
}

func (f *fakeRegistry) FindByID(_ context.Context, id int64) (*models.DriverDetail, error) {
	if d, ok := f.drivers[id]; ok {
		return d, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeRegistry) ListForOwner(_ context.Context, userID string) ([]models.DriverDetail, error) {
	var out []models.DriverDetail
	for _, d := range f.drivers {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeRegistry) ListAll(context.Context) ([]models.DriverDetail, error) {
	var out []models.DriverDetail
	for _, d := range f.drivers {
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeRegistry) ExistsByMatricule(_ context.Context, matricule string, excludeID int64) (bool, error) {
	for _, d := range f.drivers {
		if d.Matricule == matricule && d.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRegistry) Create(_ context.Context, driver *models.Driver) error {
	f.nextID++
	driver.ID = f.nextID
	f.drivers[driver.ID] = &models.DriverDetail{Driver: *driver}
	return nil
}

func (f *fakeRegistry) Update(_ context.Context, driver *models.Driver) error {
	if _, ok := f.drivers[driver.ID]; !ok {
		return sql.ErrNoRows
	}
	f.drivers[driver.ID] = &models.DriverDetail{Driver: *driver}
	return nil
}

func (f *fakeRegistry) Delete(_ context.Context, id int64) error {
	delete(f.drivers, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func seedRegistry(t *testing.T, svc *DriverService) *models.Driver {
	t.Helper()
	driver, err := svc.Create(context.Background(), models.Actor{UserID: "manager-1"}, CreateDriverRequest{
		Name:      "Jean Dupont",
		Matricule: "MAT-001",
	})
	require.NoError(t, err)
	return driver
}

func TestDriverCreateAssignsOwner(t *testing.T) {
	repo := newFakeRegistry()
	svc := NewDriverService(repo, nil, nil, nil)

	driver := seedRegistry(t, svc)
	assert.Equal(t, "manager-1", driver.UserID)
	assert.Equal(t, int64(1), driver.ID)
}

func TestDriverCreateRejectsDuplicateMatricule(t *testing.T) {
	repo := newFakeRegistry()
	svc := NewDriverService(repo, nil, nil, nil)
	seedRegistry(t, svc)

	_, err := svc.Create(context.Background(), models.Actor{UserID: "manager-2"}, CreateDriverRequest{
		Name:      "Luc Petit",
		Matricule: "MAT-001",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestDriverUpdateOwnerOnly(t *testing.T) {
	repo := newFakeRegistry()
	svc := NewDriverService(repo, nil, nil, nil)
	driver := seedRegistry(t, svc)

	req := UpdateDriverRequest{Name: "Jean D.", Matricule: "MAT-001"}

	_, err := svc.Update(context.Background(), models.Actor{UserID: "manager-2"}, driver.ID, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// Admins are not owners either on this path.
	_, err = svc.Update(context.Background(), models.Actor{UserID: "admin-1", Admin: true}, driver.ID, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	updated, err := svc.Update(context.Background(), models.Actor{UserID: "manager-1"}, driver.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "Jean D.", updated.Name)
	assert.Equal(t, "manager-1", updated.UserID)
}

func TestDriverUpdateKeepsOwnMatricule(t *testing.T) {
	repo := newFakeRegistry()
	svc := NewDriverService(repo, nil, nil, nil)
	driver := seedRegistry(t, svc)

	// Re-submitting the driver's own matricule is not a conflict.
	_, err := svc.Update(context.Background(), models.Actor{UserID: "manager-1"}, driver.ID, UpdateDriverRequest{
		Name:      "Jean Dupont",
		Matricule: "MAT-001",
	})
	require.NoError(t, err)
}

func TestDriverDeleteOwnerOnly(t *testing.T) {
	repo := newFakeRegistry()
	svc := NewDriverService(repo, nil, nil, nil)
	driver := seedRegistry(t, svc)

	err := svc.Delete(context.Background(), models.Actor{UserID: "manager-2"}, driver.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	err = svc.Delete(context.Background(), models.Actor{UserID: "manager-1"}, driver.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{driver.ID}, repo.deleted)
}

func TestDriverGetOwnerOrAdmin(t *testing.T) {
	repo := newFakeRegistry()
	svc := NewDriverService(repo, nil, nil, nil)
	driver := seedRegistry(t, svc)

	_, err := svc.Get(context.Background(), models.Actor{UserID: "manager-2"}, driver.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Get(context.Background(), models.Actor{UserID: "manager-1"}, driver.ID)
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), models.Actor{UserID: "admin-1", Admin: true}, driver.ID)
	require.NoError(t, err)
}

func TestDriverGetUnknown(t *testing.T) {
	svc := NewDriverService(newFakeRegistry(), nil, nil, nil)

	_, err := svc.Get(context.Background(), models.Actor{UserID: "manager-1"}, 404)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDriverListVisible(t *testing.T) {
	repo := newFakeRegistry()
	svc := NewDriverService(repo, nil, nil, nil)
	seedRegistry(t, svc)
	_, err := svc.Create(context.Background(), models.Actor{UserID: "manager-2"}, CreateDriverRequest{
		Name:      "Marie Blanc",
		Matricule: "MAT-003",
	})
	require.NoError(t, err)

	mine, err := svc.ListVisible(context.Background(), models.Actor{UserID: "manager-1"})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := svc.ListVisible(context.Background(), models.Actor{UserID: "admin-1", Admin: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
