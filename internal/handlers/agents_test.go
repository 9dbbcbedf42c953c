package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/credential"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/mfa"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/middleware"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/registry"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/versioncatalog"
)

type mockComputerRepo struct{ mock.Mock }

func (m *mockComputerRepo) FindComputerByAgentID(ctx context.Context, agentID string) (*models.Computer, error) {
	args := m.Called(ctx, agentID)
	c, _ := args.Get(0).(*models.Computer)
	return c, args.Error(1)
}
func (m *mockComputerRepo) FindComputerByID(ctx context.Context, computerID int64) (*models.Computer, error) {
	args := m.Called(ctx, computerID)
	c, _ := args.Get(0).(*models.Computer)
	return c, args.Error(1)
}
func (m *mockComputerRepo) FindComputerAtPosition(ctx context.Context, roomID int64, posX, posY int) (*models.Computer, error) {
	args := m.Called(ctx, roomID, posX, posY)
	c, _ := args.Get(0).(*models.Computer)
	return c, args.Error(1)
}
func (m *mockComputerRepo) SaveComputer(ctx context.Context, computer *models.Computer) error {
	args := m.Called(ctx, computer)
	computer.ComputerID = 7
	return args.Error(0)
}
func (m *mockComputerRepo) UpdateHardwareInfo(ctx context.Context, agentID string, hw models.HardwareInfo) error {
	return m.Called(ctx, agentID, hw).Error(0)
}
func (m *mockComputerRepo) AppendError(ctx context.Context, agentID string, record models.ErrorRecord) error {
	return m.Called(ctx, agentID, record).Error(0)
}
func (m *mockComputerRepo) ListComputers(ctx context.Context) ([]*models.Computer, error) {
	args := m.Called(ctx)
	cs, _ := args.Get(0).([]*models.Computer)
	return cs, args.Error(1)
}
func (m *mockComputerRepo) CountUnresolvedErrors(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type mockRoomRepo struct{ mock.Mock }

func (m *mockRoomRepo) FindRoomByID(ctx context.Context, roomID int64) (*models.Room, error) {
	args := m.Called(ctx, roomID)
	r, _ := args.Get(0).(*models.Room)
	return r, args.Error(1)
}
func (m *mockRoomRepo) FindRoomByName(ctx context.Context, name string) (*models.Room, error) {
	args := m.Called(ctx, name)
	r, _ := args.Get(0).(*models.Room)
	return r, args.Error(1)
}
func (m *mockRoomRepo) ListRooms(ctx context.Context) ([]*models.Room, error) {
	args := m.Called(ctx)
	rs, _ := args.Get(0).([]*models.Room)
	return rs, args.Error(1)
}
func (m *mockRoomRepo) CreateRoom(ctx context.Context, req *models.CreateRoomRequest) (*models.Room, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*models.Room)
	return r, args.Error(1)
}
func (m *mockRoomRepo) UserHasRoomAssignment(ctx context.Context, userID, roomID int64) (bool, error) {
	args := m.Called(ctx, userID, roomID)
	return args.Bool(0), args.Error(1)
}
func (m *mockRoomRepo) AssignUserToRoom(ctx context.Context, userID, roomID int64) error {
	return m.Called(ctx, userID, roomID).Error(0)
}

type mockBootstrapNotifier struct{ mock.Mock }

func (m *mockBootstrapNotifier) NotifyNewAgentMFA(agentID string, code string, position models.PositionInfo) {
	m.Called(agentID, code, position)
}
func (m *mockBootstrapNotifier) NotifyAgentRegistered(agentID string, computerID int64) {
	m.Called(agentID, computerID)
}

func newTestAgentHandler(t *testing.T) (*AgentHandler, *mockComputerRepo, *mockRoomRepo, *mockBootstrapNotifier) {
	computers := &mockComputerRepo{}
	rooms := &mockRoomRepo{}
	hasher := credential.NewHasher(credential.DefaultParams())
	reg := registry.New(computers, rooms, hasher)
	broker := mfa.NewBroker(hasher, nil)
	notifier := &mockBootstrapNotifier{}
	catalog, err := versioncatalog.New(nil, nil, t.TempDir(), versioncatalog.DefaultMaxUploadBytes)
	require.NoError(t, err)
	agentAuth := middleware.NewAgentAuth(reg)
	return NewAgentHandler(reg, computers, broker, notifier, catalog, agentAuth), computers, rooms, notifier
}

func postJSON(handler gin.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/x", handler)

	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/x", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIdentify_NewAgent_IssuesMFAAndNotifiesAdmins(t *testing.T) {
	h, computers, rooms, notifier := newTestAgentHandler(t)
	computers.On("FindComputerByAgentID", mock.Anything, "agent-1").Return(nil, assert.AnError)
	rooms.On("FindRoomByName", mock.Anything, "Lab-1").Return(&models.Room{RoomID: 1, Columns: 10, Rows: 10}, nil)
	computers.On("FindComputerAtPosition", mock.Anything, int64(1), 2, 3).Return(nil, assert.AnError)
	notifier.On("NotifyNewAgentMFA", "agent-1", mock.Anything, mock.Anything).Return()

	w := postJSON(h.Identify, models.IdentifyRequest{
		AgentID:  "agent-1",
		Position: &models.PositionInfo{RoomName: "Lab-1", PosX: 2, PosY: 3},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), models.IdentifyStatusMFARequired)
	notifier.AssertCalled(t, "NotifyNewAgentMFA", "agent-1", mock.Anything, mock.Anything)
}

func TestIdentify_KnownAgent_RefreshesWithoutMFAOrAdminNotification(t *testing.T) {
	h, computers, rooms, notifier := newTestAgentHandler(t)
	existingHash := "argon2id$existing"
	existing := &models.Computer{ComputerID: 7, AgentID: "agent-1", AgentTokenHash: &existingHash}
	computers.On("FindComputerByAgentID", mock.Anything, "agent-1").Return(existing, nil)
	rooms.On("FindRoomByName", mock.Anything, "Lab-1").Return(&models.Room{RoomID: 1, Columns: 10, Rows: 10}, nil)
	computers.On("FindComputerAtPosition", mock.Anything, int64(1), 2, 3).Return(nil, assert.AnError)
	computers.On("SaveComputer", mock.Anything, mock.Anything).Return(nil)

	w := postJSON(h.Identify, models.IdentifyRequest{
		AgentID:  "agent-1",
		Position: &models.PositionInfo{RoomName: "Lab-1", PosX: 2, PosY: 3},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), models.IdentifyStatusSuccess)
	notifier.AssertNotCalled(t, "NotifyAgentRegistered", mock.Anything, mock.Anything)
}

func TestIdentify_PositionOutOfRange_ReturnsPositionError(t *testing.T) {
	h, computers, rooms, _ := newTestAgentHandler(t)
	computers.On("FindComputerByAgentID", mock.Anything, "agent-1").Return(nil, assert.AnError)
	rooms.On("FindRoomByName", mock.Anything, "Lab-1").Return(&models.Room{RoomID: 1, Columns: 2, Rows: 2}, nil)

	w := postJSON(h.Identify, models.IdentifyRequest{
		AgentID:  "agent-1",
		Position: &models.PositionInfo{RoomName: "Lab-1", PosX: 99, PosY: 99},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), models.IdentifyStatusPositionError)
}

func TestVerifyMFA_Success(t *testing.T) {
	h, computers, rooms, notifier := newTestAgentHandler(t)
	rooms.On("FindRoomByName", mock.Anything, "Lab-1").Return(&models.Room{RoomID: 1, Columns: 10, Rows: 10}, nil)
	computers.On("FindComputerAtPosition", mock.Anything, int64(1), 2, 3).Return(nil, assert.AnError)
	computers.On("FindComputerByAgentID", mock.Anything, "agent-1").Return(nil, assert.AnError)
	computers.On("SaveComputer", mock.Anything, mock.Anything).Return(nil)
	notifier.On("NotifyAgentRegistered", "agent-1", mock.Anything).Return()

	code, err := h.mfa.Issue(context.Background(), "agent-1", models.PositionInfo{RoomName: "Lab-1", PosX: 2, PosY: 3})
	require.NoError(t, err)

	w := postJSON(h.VerifyMFA, models.VerifyMFARequest{AgentID: "agent-1", MFACode: code})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.VerifyMFAResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AgentToken)
}

func TestVerifyMFA_WrongCode_Rejected(t *testing.T) {
	h, _, _, _ := newTestAgentHandler(t)
	w := postJSON(h.VerifyMFA, models.VerifyMFARequest{AgentID: "agent-1", MFACode: "WRONG1"})
	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestCheckUpdate_NoCurrentVersion_ReturnsUnconditionally(t *testing.T) {
	gin.SetMode(gin.TestMode)
	versions := &mockAgentVersionRepoForHandlers{}
	versions.On("FindStableVersion", mock.Anything).Return(&models.AgentVersion{Version: "1.0.0", DownloadURL: "/x", ChecksumSHA256: "abc"}, nil)
	catalog, err := versioncatalog.New(versions, nil, t.TempDir(), versioncatalog.DefaultMaxUploadBytes)
	require.NoError(t, err)

	h := &AgentHandler{catalog: catalog}
	router := gin.New()
	router.GET("/x", h.CheckUpdate)
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

type mockAgentVersionRepoForHandlers struct{ mock.Mock }

func (m *mockAgentVersionRepoForHandlers) CreateAgentVersion(ctx context.Context, v *models.AgentVersion) (*models.AgentVersion, error) {
	args := m.Called(ctx, v)
	out, _ := args.Get(0).(*models.AgentVersion)
	return out, args.Error(1)
}
func (m *mockAgentVersionRepoForHandlers) FindAgentVersionByID(ctx context.Context, versionID int64) (*models.AgentVersion, error) {
	args := m.Called(ctx, versionID)
	out, _ := args.Get(0).(*models.AgentVersion)
	return out, args.Error(1)
}
func (m *mockAgentVersionRepoForHandlers) FindStableVersion(ctx context.Context) (*models.AgentVersion, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).(*models.AgentVersion)
	return out, args.Error(1)
}
func (m *mockAgentVersionRepoForHandlers) ListAgentVersions(ctx context.Context) ([]*models.AgentVersion, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]*models.AgentVersion)
	return out, args.Error(1)
}
func (m *mockAgentVersionRepoForHandlers) UpsertAgentVersionStability(ctx context.Context, versionID int64, stable bool) error {
	return m.Called(ctx, versionID, stable).Error(0)
}
