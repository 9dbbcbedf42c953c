package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/auth"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/credential"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
)

type mockRefreshTokenRepoForHandlers struct{ mock.Mock }

func (m *mockRefreshTokenRepoForHandlers) CreateRefreshToken(ctx context.Context, userID int64, selector, verifierHash string, expiresAt time.Time) (*models.RefreshToken, error) {
	args := m.Called(ctx, userID, selector, verifierHash, expiresAt)
	rt, _ := args.Get(0).(*models.RefreshToken)
	return rt, args.Error(1)
}
func (m *mockRefreshTokenRepoForHandlers) FindRefreshTokenBySelector(ctx context.Context, selector string) (*models.RefreshToken, error) {
	args := m.Called(ctx, selector)
	rt, _ := args.Get(0).(*models.RefreshToken)
	return rt, args.Error(1)
}
func (m *mockRefreshTokenRepoForHandlers) DestroyRefreshTokenBySelector(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}
func (m *mockRefreshTokenRepoForHandlers) DestroyRefreshTokensByUser(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}
func (m *mockRefreshTokenRepoForHandlers) SweepExpiredRefreshTokens(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func newTestUserHandler(t *testing.T) (*UserHandler, *mockUserRepo, *mockRefreshTokenRepoForHandlers) {
	users := &mockUserRepo{}
	refreshTokens := &mockRefreshTokenRepoForHandlers{}
	hasher := credential.NewHasher(credential.DefaultParams())
	jwtManager := auth.NewJWTManager("test-secret-at-least-32-bytes-long", time.Minute)
	authService := auth.NewService(users, refreshTokens, hasher, jwtManager, time.Hour)
	return NewUserHandler(users, authService, hasher), users, refreshTokens
}

func TestCreateUser_ValidRequest_Succeeds(t *testing.T) {
	h, users, _ := newTestUserHandler(t)
	users.On("CreateUser", mock.Anything, "alice", mock.AnythingOfType("string"), "user").
		Return(&models.User{UserID: 1, Username: "alice", Role: "user", Active: true}, nil)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/x", h.CreateUser)

	body := `{"username":"alice","password":"supersecret","role":"user"}` // explicit role, avoids the repo's own "" -> "user" default
	req := httptest.NewRequest(http.MethodPost, "/x", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "alice")
}

func TestCreateUser_ShortPassword_RejectedByValidator(t *testing.T) {
	h, users, _ := newTestUserHandler(t)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/x", h.CreateUser)

	body := `{"username":"alice","password":"short"}`
	req := httptest.NewRequest(http.MethodPost, "/x", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	users.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateUser_Deactivate_RevokesAllRefreshTokens(t *testing.T) {
	h, users, refreshTokens := newTestUserHandler(t)
	users.On("UpdateUser", mock.Anything, int64(9), mock.Anything).Return(nil)
	refreshTokens.On("DestroyRefreshTokensByUser", mock.Anything, int64(9)).Return(nil)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.PUT("/x/:id", h.UpdateUser)

	body := `{"active":false}`
	req := httptest.NewRequest(http.MethodPut, "/x/9", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	refreshTokens.AssertCalled(t, "DestroyRefreshTokensByUser", mock.Anything, int64(9))
}
