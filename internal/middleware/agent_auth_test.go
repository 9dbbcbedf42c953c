package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/credential"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/registry"
)

type stubComputerRepo struct {
	computer *models.Computer
}

func (s *stubComputerRepo) FindComputerByAgentID(ctx context.Context, agentID string) (*models.Computer, error) {
	if s.computer == nil || s.computer.AgentID != agentID {
		return nil, assert.AnError
	}
	return s.computer, nil
}
func (s *stubComputerRepo) FindComputerByID(ctx context.Context, computerID int64) (*models.Computer, error) {
	return s.computer, nil
}
func (s *stubComputerRepo) FindComputerAtPosition(ctx context.Context, roomID int64, posX, posY int) (*models.Computer, error) {
	return nil, assert.AnError
}
func (s *stubComputerRepo) SaveComputer(ctx context.Context, computer *models.Computer) error { return nil }
func (s *stubComputerRepo) UpdateHardwareInfo(ctx context.Context, agentID string, hw models.HardwareInfo) error {
	return nil
}
func (s *stubComputerRepo) AppendError(ctx context.Context, agentID string, record models.ErrorRecord) error {
	return nil
}
func (s *stubComputerRepo) ListComputers(ctx context.Context) ([]*models.Computer, error) {
	return nil, nil
}
func (s *stubComputerRepo) CountUnresolvedErrors(ctx context.Context) (int64, error) { return 0, nil }

func newTestAgentAuth(t *testing.T, agentID, token string) gin.HandlerFunc {
	hasher := credential.NewHasher(credential.DefaultParams())
	hash, err := hasher.HashToken(token)
	require.NoError(t, err)

	computer := &models.Computer{ComputerID: 42, AgentID: agentID, AgentTokenHash: &hash}
	reg := registry.New(&stubComputerRepo{computer: computer}, nil, hasher)
	return NewAgentAuth(reg).RequireAgentToken()
}

func performRequest(handler gin.HandlerFunc, agentID, authHeader string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/x", handler, func(c *gin.Context) {
		computerID, _ := ComputerID(c)
		c.JSON(http.StatusOK, gin.H{"computerID": computerID})
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if agentID != "" {
		req.Header.Set("X-Agent-ID", agentID)
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequireAgentToken_Success(t *testing.T) {
	handler := newTestAgentAuth(t, "agent-1", "correct-token")
	w := performRequest(handler, "agent-1", "Bearer correct-token")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"computerID":42`)
}

func TestRequireAgentToken_MissingAgentIDHeader(t *testing.T) {
	handler := newTestAgentAuth(t, "agent-1", "correct-token")
	w := performRequest(handler, "", "Bearer correct-token")
	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestRequireAgentToken_MissingBearerPrefix(t *testing.T) {
	handler := newTestAgentAuth(t, "agent-1", "correct-token")
	w := performRequest(handler, "agent-1", "correct-token")
	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestRequireAgentToken_WrongToken(t *testing.T) {
	handler := newTestAgentAuth(t, "agent-1", "correct-token")
	w := performRequest(handler, "agent-1", "Bearer wrong-token")
	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestRequireAgentToken_UnknownAgent(t *testing.T) {
	handler := newTestAgentAuth(t, "agent-1", "correct-token")
	w := performRequest(handler, "agent-999", "Bearer correct-token")
	assert.NotEqual(t, http.StatusOK, w.Code)
}
