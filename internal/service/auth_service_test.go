package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/fleet-presence-api/internal/models"
	appErrors "github.com/noah-isme/fleet-presence-api/pkg/errors"
)

type fakeAuthRepo struct {
	users         map[string]*models.User
	usersByEmail  map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
	auditLogs     []*models.AuditLog
	lastLogin     map[string]time.Time
	revokedAll    []string
}

func newFakeAuthRepo() *fakeAuthRepo {
	return &fakeAuthRepo{
		users:         map[string]*models.User{},
		usersByEmail:  map[string]*models.User{},
		refreshTokens: map[string]*models.RefreshToken{},
		lastLogin:     map[string]time.Time{},
	}
}

func (f *fakeAuthRepo) addUser(user *models.User) {
	f.users[user.ID] = user
	f.usersByEmail[user.Email] = user
}

func (f *fakeAuthRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := f.usersByEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeAuthRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeAuthRepo) Create(_ context.Context, user *models.User) error {
	f.addUser(user)
	return nil
}

func (f *fakeAuthRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	_, ok := f.usersByEmail[email]
	return ok, nil
}

func (f *fakeAuthRepo) UpdateLastLogin(_ context.Context, id string, ts time.Time) error {
	f.lastLogin[id] = ts
	return nil
}

func (f *fakeAuthRepo) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	f.revokedAll = append(f.revokedAll, userID)
	for _, tok := range f.refreshTokens {
		if tok.UserID == userID {
			tok.Revoked = true
		}
	}
	return nil
}

func (f *fakeAuthRepo) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	f.refreshTokens[token.Token] = token
	return nil
}

func (f *fakeAuthRepo) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	t, ok := f.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return t, nil
}

func (f *fakeAuthRepo) RevokeRefreshToken(_ context.Context, id string, revokedAt time.Time) error {
	for _, tok := range f.refreshTokens {
		if tok.ID == id {
			tok.Revoked = true
			tok.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (f *fakeAuthRepo) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	f.auditLogs = append(f.auditLogs, log)
	return nil
}

func seedUser(t *testing.T, repo *fakeAuthRepo, email, password string, role models.UserRole, active bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		FullName:     "Alice Martin",
		Role:         role,
		Active:       active,
	}
	repo.addUser(user)
	return user
}

func newTestAuthService(repo *fakeAuthRepo) *AuthService {
	return NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "fleet-presence-api",
	})
}

func TestLoginSuccess(t *testing.T) {
	repo := newFakeAuthRepo()
	user := seedUser(t, repo, "alice@example.com", "s3cret-pass", models.RoleManager, true)
	svc := newTestAuthService(repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "alice@example.com",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, user.ID, resp.User.ID)
	assert.Len(t, repo.refreshTokens, 1)
	assert.Contains(t, repo.lastLogin, user.ID)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionLogin, repo.auditLogs[0].Action)
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newFakeAuthRepo()
	seedUser(t, repo, "alice@example.com", "s3cret-pass", models.RoleManager, true)
	svc := newTestAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc := newTestAuthService(newFakeAuthRepo())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	repo := newFakeAuthRepo()
	seedUser(t, repo, "alice@example.com", "s3cret-pass", models.RoleManager, false)
	svc := newTestAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "alice@example.com",
		Password: "s3cret-pass",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestLoginSingleSessionRevokesPrevious(t *testing.T) {
	repo := newFakeAuthRepo()
	user := seedUser(t, repo, "alice@example.com", "s3cret-pass", models.RoleManager, true)
	svc := NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		SingleSession:      true,
	})

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "alice@example.com",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{user.ID}, repo.revokedAll)
}

func TestRegisterAlwaysCreatesManager(t *testing.T) {
	repo := newFakeAuthRepo()
	svc := newTestAuthService(repo)

	info, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    "bob@example.com",
		Password: "s3cret-pass",
		FullName: "Bob Morane",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleManager, info.Role)

	stored := repo.usersByEmail["bob@example.com"]
	require.NotNil(t, stored)
	assert.NotEqual(t, "s3cret-pass", stored.PasswordHash)
	assert.True(t, stored.Active)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := newFakeAuthRepo()
	seedUser(t, repo, "bob@example.com", "whatever", models.RoleManager, true)
	svc := newTestAuthService(repo)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    "bob@example.com",
		Password: "s3cret-pass",
		FullName: "Bob Morane",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRefreshTokenRotation(t *testing.T) {
	repo := newFakeAuthRepo()
	seedUser(t, repo, "alice@example.com", "s3cret-pass", models.RoleManager, true)
	svc := newTestAuthService(repo)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "alice@example.com",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	assert.True(t, repo.refreshTokens[login.RefreshToken].Revoked)

	// Single use: replaying the original token must fail.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestRefreshTokenExpired(t *testing.T) {
	repo := newFakeAuthRepo()
	user := seedUser(t, repo, "alice@example.com", "s3cret-pass", models.RoleManager, true)
	svc := newTestAuthService(repo)

	repo.refreshTokens["stale"] = &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     "stale",
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestLogoutRejectsForeignToken(t *testing.T) {
	repo := newFakeAuthRepo()
	user := seedUser(t, repo, "alice@example.com", "s3cret-pass", models.RoleManager, true)
	svc := newTestAuthService(repo)

	repo.refreshTokens["token-a"] = &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     "token-a",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}

	err := svc.Logout(context.Background(), "token-a", "someone-else", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.False(t, repo.refreshTokens["token-a"].Revoked)
}

func TestValidateTokenRoundTrip(t *testing.T) {
	repo := newFakeAuthRepo()
	user := seedUser(t, repo, "alice@example.com", "s3cret-pass", models.RoleAdmin, true)
	svc := newTestAuthService(repo)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "alice@example.com",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.True(t, claims.Actor().Admin)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	repo := newFakeAuthRepo()
	seedUser(t, repo, "alice@example.com", "s3cret-pass", models.RoleManager, true)
	issuer := newTestAuthService(repo)

	login, err := issuer.Login(context.Background(), models.LoginRequest{
		Email:    "alice@example.com",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)

	verifier := NewAuthService(repo, nil, nil, AuthConfig{AccessTokenSecret: "other-secret"})
	_, err = verifier.ValidateToken(login.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
