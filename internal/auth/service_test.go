package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/apperrors"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/credential"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
)

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) FindUserByName(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockUserRepo) FindUserByID(ctx context.Context, userID int64) (*models.User, error) {
	args := m.Called(ctx, userID)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockUserRepo) CreateUser(ctx context.Context, username, passwordHash, role string) (*models.User, error) {
	args := m.Called(ctx, username, passwordHash, role)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockUserRepo) UpdateUser(ctx context.Context, userID int64, req *models.UpdateUserRequest) error {
	return m.Called(ctx, userID, req).Error(0)
}

func (m *mockUserRepo) ListUsers(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	us, _ := args.Get(0).([]*models.User)
	return us, args.Error(1)
}

type mockRefreshTokenRepo struct {
	mock.Mock
}

func (m *mockRefreshTokenRepo) CreateRefreshToken(ctx context.Context, userID int64, selector, verifierHash string, expiresAt time.Time) (*models.RefreshToken, error) {
	args := m.Called(ctx, userID, selector, verifierHash, expiresAt)
	rt, _ := args.Get(0).(*models.RefreshToken)
	return rt, args.Error(1)
}

func (m *mockRefreshTokenRepo) FindRefreshTokenBySelector(ctx context.Context, selector string) (*models.RefreshToken, error) {
	args := m.Called(ctx, selector)
	rt, _ := args.Get(0).(*models.RefreshToken)
	return rt, args.Error(1)
}

func (m *mockRefreshTokenRepo) DestroyRefreshTokenBySelector(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *mockRefreshTokenRepo) DestroyRefreshTokensByUser(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockRefreshTokenRepo) SweepExpiredRefreshTokens(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func newTestService() (*Service, *mockUserRepo, *mockRefreshTokenRepo) {
	users := &mockUserRepo{}
	refreshTokens := &mockRefreshTokenRepo{}
	hasher := credential.NewHasher(credential.DefaultParams())
	jwtManager := NewJWTManager("test-secret", 15*time.Minute)
	svc := NewService(users, refreshTokens, hasher, jwtManager, 720*time.Hour)
	return svc, users, refreshTokens
}

func TestLogin_Success(t *testing.T) {
	svc, users, refreshTokens := newTestService()
	hasher := credential.NewHasher(credential.DefaultParams())
	hash, err := hasher.HashToken("correct-password")
	require.NoError(t, err)

	users.On("FindUserByName", mock.Anything, "alice").
		Return(&models.User{UserID: 1, Username: "alice", PasswordHash: hash, Role: "user", Active: true}, nil)
	refreshTokens.On("CreateRefreshToken", mock.Anything, int64(1), mock.Anything, mock.Anything, mock.Anything).
		Return(&models.RefreshToken{TokenID: 1}, nil)

	pair, err := svc.Login(context.Background(), "alice", "correct-password")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Contains(t, pair.RefreshToken, ".")
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, users, _ := newTestService()
	hasher := credential.NewHasher(credential.DefaultParams())
	hash, _ := hasher.HashToken("correct-password")

	users.On("FindUserByName", mock.Anything, "alice").
		Return(&models.User{UserID: 1, Username: "alice", PasswordHash: hash, Active: true}, nil)

	_, err := svc.Login(context.Background(), "alice", "wrong-password")
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvalidCredential, appErr.Code)
}

func TestLogin_InactiveUser(t *testing.T) {
	svc, users, _ := newTestService()
	users.On("FindUserByName", mock.Anything, "alice").
		Return(&models.User{UserID: 1, Username: "alice", Active: false}, nil)

	_, err := svc.Login(context.Background(), "alice", "anything")
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvalidCredential, appErr.Code)
}

func TestRefresh_MalformedToken(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Refresh(context.Background(), "no-dot-here")
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeMalformedToken, appErr.Code)
}

func TestRefresh_UnknownSelector(t *testing.T) {
	svc, _, refreshTokens := newTestService()
	refreshTokens.On("FindRefreshTokenBySelector", mock.Anything, "sel").
		Return(nil, apperrors.NotFound("refresh token"))

	_, err := svc.Refresh(context.Background(), "sel.secret")
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvalidCredential, appErr.Code)
}

func TestRefresh_ReuseDetectedCascadesRevokeAll(t *testing.T) {
	svc, _, refreshTokens := newTestService()
	hasher := credential.NewHasher(credential.DefaultParams())
	hash, _ := hasher.HashToken("real-secret")

	refreshTokens.On("FindRefreshTokenBySelector", mock.Anything, "sel").
		Return(&models.RefreshToken{UserID: 7, VerifierHash: hash, ExpiresAt: time.Now().Add(time.Hour)}, nil)
	refreshTokens.On("DestroyRefreshTokensByUser", mock.Anything, int64(7)).Return(nil)

	_, err := svc.Refresh(context.Background(), "sel.wrong-secret")
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeReuseDetected, appErr.Code)
	refreshTokens.AssertCalled(t, "DestroyRefreshTokensByUser", mock.Anything, int64(7))
}

func TestRefresh_Expired(t *testing.T) {
	svc, _, refreshTokens := newTestService()
	hasher := credential.NewHasher(credential.DefaultParams())
	hash, _ := hasher.HashToken("real-secret")

	refreshTokens.On("FindRefreshTokenBySelector", mock.Anything, "sel").
		Return(&models.RefreshToken{UserID: 7, VerifierHash: hash, ExpiresAt: time.Now().Add(-time.Hour)}, nil)
	refreshTokens.On("DestroyRefreshTokenBySelector", mock.Anything, "sel").Return(nil)

	_, err := svc.Refresh(context.Background(), "sel.real-secret")
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeTokenExpired, appErr.Code)
}

func TestRefresh_Success_Rotates(t *testing.T) {
	svc, users, refreshTokens := newTestService()
	hasher := credential.NewHasher(credential.DefaultParams())
	hash, _ := hasher.HashToken("real-secret")

	refreshTokens.On("FindRefreshTokenBySelector", mock.Anything, "sel").
		Return(&models.RefreshToken{UserID: 7, VerifierHash: hash, ExpiresAt: time.Now().Add(time.Hour)}, nil)
	refreshTokens.On("DestroyRefreshTokenBySelector", mock.Anything, "sel").Return(nil)
	users.On("FindUserByID", mock.Anything, int64(7)).
		Return(&models.User{UserID: 7, Username: "bob", Role: "user", Active: true}, nil)
	refreshTokens.On("CreateRefreshToken", mock.Anything, int64(7), mock.Anything, mock.Anything, mock.Anything).
		Return(&models.RefreshToken{TokenID: 2}, nil)

	pair, err := svc.Refresh(context.Background(), "sel.real-secret")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.RefreshToken)
	refreshTokens.AssertCalled(t, "DestroyRefreshTokenBySelector", mock.Anything, "sel")
}

func TestRevoke_MismatchDoesNotCascade(t *testing.T) {
	svc, _, refreshTokens := newTestService()
	hasher := credential.NewHasher(credential.DefaultParams())
	hash, _ := hasher.HashToken("real-secret")

	refreshTokens.On("FindRefreshTokenBySelector", mock.Anything, "sel").
		Return(&models.RefreshToken{UserID: 7, VerifierHash: hash}, nil)

	ok, err := svc.Revoke(context.Background(), "sel.wrong")
	require.NoError(t, err)
	assert.False(t, ok)
	refreshTokens.AssertNotCalled(t, "DestroyRefreshTokenBySelector", mock.Anything, mock.Anything)
}

func TestRevoke_Success(t *testing.T) {
	svc, _, refreshTokens := newTestService()
	hasher := credential.NewHasher(credential.DefaultParams())
	hash, _ := hasher.HashToken("real-secret")

	refreshTokens.On("FindRefreshTokenBySelector", mock.Anything, "sel").
		Return(&models.RefreshToken{UserID: 7, VerifierHash: hash}, nil)
	refreshTokens.On("DestroyRefreshTokenBySelector", mock.Anything, "sel").Return(nil)

	ok, err := svc.Revoke(context.Background(), "sel.real-secret")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParseTTL(t *testing.T) {
	assert.Equal(t, 15*time.Minute, ParseTTL("15m"))
	assert.Equal(t, 30*24*time.Hour, ParseTTL("30d"))
	assert.Equal(t, time.Duration(0), ParseTTL("30x"))
}
