package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sklapp/skl-api/internal/models"
	appErrors "github.com/sklapp/skl-api/pkg/errors"
)

type stubAuthRepo struct {
	user          *models.User
	refreshTokens map[string]*models.RefreshToken
	revoked       []string
	auditActions  []string
}

func newStubAuthRepo(user *models.User) *stubAuthRepo {
	return &stubAuthRepo{user: user, refreshTokens: map[string]*models.RefreshToken{}}
}

func (s *stubAuthRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if s.user == nil || s.user.Username != username {
		return nil, sql.ErrNoRows
	}
	clone := *s.user
	return &clone, nil
}

func (s *stubAuthRepo) FindByID(ctx context.Context, id int64) (*models.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, sql.ErrNoRows
	}
	clone := *s.user
	return &clone, nil
}

func (s *stubAuthRepo) UpdateLastLogin(ctx context.Context, id int64, ts time.Time) error {
	return nil
}

func (s *stubAuthRepo) UpdatePassword(ctx context.Context, id int64, passwordHash string, updatedAt time.Time) error {
	s.user.PasswordHash = passwordHash
	return nil
}

func (s *stubAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID int64) error {
	return nil
}

func (s *stubAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	s.refreshTokens[token.Token] = token
	return nil
}

func (s *stubAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	stored, ok := s.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return stored, nil
}

func (s *stubAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	s.revoked = append(s.revoked, id)
	return nil
}

func (s *stubAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.auditActions = append(s.auditActions, log.Action)
	return nil
}

func authUserFixture(t *testing.T) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("rahasia-sekali"), bcrypt.MinCost)
	require.NoError(t, err)
	studentID := int64(7)
	return &models.User{
		ID:           3,
		Username:     "siswa01",
		PasswordHash: string(hash),
		FullName:     "Siti Aminah",
		Role:         models.RoleStudent,
		StudentID:    &studentID,
		Active:       true,
	}
}

func newAuthTestService(repo *stubAuthRepo) *AuthService {
	return NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "skl-api",
	})
}

func TestAuthLogin(t *testing.T) {
	repo := newStubAuthRepo(authUserFixture(t))
	svc := newAuthTestService(repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Username: "siswa01", Password: "rahasia-sekali"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, int64(900), resp.ExpiresIn)
	assert.Equal(t, "siswa01", resp.User.Username)
	require.NotNil(t, resp.User.StudentID)
	assert.Equal(t, int64(7), *resp.User.StudentID)
	assert.Contains(t, repo.auditActions, models.AuditActionLogin)
}

func TestAuthLoginWrongPassword(t *testing.T) {
	svc := newAuthTestService(newStubAuthRepo(authUserFixture(t)))

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "siswa01", Password: "salah"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthLoginUnknownUser(t *testing.T) {
	svc := newAuthTestService(newStubAuthRepo(authUserFixture(t)))

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "hantu", Password: "rahasia-sekali"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthLoginInactiveAccount(t *testing.T) {
	user := authUserFixture(t)
	user.Active = false
	svc := newAuthTestService(newStubAuthRepo(user))

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "siswa01", Password: "rahasia-sekali"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthValidateTokenRoundTrip(t *testing.T) {
	repo := newStubAuthRepo(authUserFixture(t))
	svc := newAuthTestService(repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Username: "siswa01", Password: "rahasia-sekali"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(3), claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
	require.NotNil(t, claims.StudentID)
	assert.Equal(t, int64(7), *claims.StudentID)
	assert.Equal(t, "skl-api", claims.Issuer)
}

func TestAuthValidateTokenRejectsGarbage(t *testing.T) {
	svc := newAuthTestService(newStubAuthRepo(nil))

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthValidateTokenRejectsWrongSecret(t *testing.T) {
	repo := newStubAuthRepo(authUserFixture(t))
	svc := newAuthTestService(repo)
	resp, err := svc.Login(context.Background(), models.LoginRequest{Username: "siswa01", Password: "rahasia-sekali"})
	require.NoError(t, err)

	other := NewAuthService(repo, nil, nil, AuthConfig{AccessTokenSecret: "other-secret", AccessTokenExpiry: time.Minute, RefreshTokenExpiry: time.Hour, Issuer: "skl-api"})
	_, err = other.ValidateToken(resp.AccessToken)
	assert.Error(t, err)
}

func TestAuthRefreshRotatesToken(t *testing.T) {
	repo := newStubAuthRepo(authUserFixture(t))
	svc := newAuthTestService(repo)
	login, err := svc.Login(context.Background(), models.LoginRequest{Username: "siswa01", Password: "rahasia-sekali"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	assert.Len(t, repo.revoked, 1)
}

func TestAuthRefreshRejectsRevokedToken(t *testing.T) {
	repo := newStubAuthRepo(authUserFixture(t))
	svc := newAuthTestService(repo)
	login, err := svc.Login(context.Background(), models.LoginRequest{Username: "siswa01", Password: "rahasia-sekali"})
	require.NoError(t, err)
	repo.refreshTokens[login.RefreshToken].Revoked = true

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthChangePassword(t *testing.T) {
	repo := newStubAuthRepo(authUserFixture(t))
	svc := newAuthTestService(repo)

	err := svc.ChangePassword(context.Background(), 3, models.ChangePasswordRequest{OldPassword: "rahasia-sekali", NewPassword: "rahasia-baru"})
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.user.PasswordHash), []byte("rahasia-baru")))
	assert.Contains(t, repo.auditActions, models.AuditActionPasswordChange)
}

func TestAuthChangePasswordWrongOldPassword(t *testing.T) {
	svc := newAuthTestService(newStubAuthRepo(authUserFixture(t)))

	err := svc.ChangePassword(context.Background(), 3, models.ChangePasswordRequest{OldPassword: "salah", NewPassword: "rahasia-baru"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
