package realtime

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/apperrors"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/auth"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/db"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/registry"
)

// DefaultOfflineDebounce is how long the hub waits after an agent's last
// session closes before declaring it offline, to absorb reconnects.
const DefaultOfflineDebounce = 1500 * time.Millisecond

// CommandCompleter is the narrow view of the Command Coordinator the hub
// depends on, satisfied by *command.Coordinator. Kept as an interface to
// avoid a command<->realtime import cycle (the coordinator depends on
// the hub too, via command.Hub).
type CommandCompleter interface {
	Complete(commandID string, result models.CommandResultFrame)
}

// realtimeStatus is the volatile, per-computer RealtimeStatus entity,
// owned exclusively by the hub.
type realtimeStatus struct {
	Status      string
	CPUPct      float64
	RAMPct      float64
	DiskPct     float64
	LastUpdated time.Time
}

// Hub implements the Session Hub (C5).
type Hub struct {
	registry  *registry.Registry
	jwt       *auth.JWTManager
	users     db.UserRepo
	rooms     db.RoomRepo
	computers db.ComputerRepo
	debounce  time.Duration

	upgrader websocket.Upgrader

	mu             sync.RWMutex
	agentSessions  map[int64]map[string]*Session
	userSessions   map[int64]map[string]*Session
	adminSessions  map[string]*Session
	subscribers    map[int64]map[string]*Session
	realtimeStatus map[int64]*realtimeStatus
	offlineTimers  map[int64]*time.Timer

	completer  CommandCompleter
	dispatcher CommandDispatcher
}

// New builds a Hub. completer is wired in later via SetCommandCompleter
// once the Command Coordinator is constructed (the two depend on each
// other).
func New(reg *registry.Registry, jwtManager *auth.JWTManager, users db.UserRepo, rooms db.RoomRepo, computers db.ComputerRepo, debounce time.Duration) *Hub {
	if debounce <= 0 {
		debounce = DefaultOfflineDebounce
	}
	return &Hub{
		registry:       reg,
		jwt:            jwtManager,
		users:          users,
		rooms:          rooms,
		computers:      computers,
		debounce:       debounce,
		agentSessions:  make(map[int64]map[string]*Session),
		userSessions:   make(map[int64]map[string]*Session),
		adminSessions:  make(map[string]*Session),
		subscribers:    make(map[int64]map[string]*Session),
		realtimeStatus: make(map[int64]*realtimeStatus),
		offlineTimers:  make(map[int64]*time.Timer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// SetCommandCompleter wires the Command Coordinator after construction.
func (h *Hub) SetCommandCompleter(c CommandCompleter) {
	h.completer = c
}

// IsConnected implements command.Hub: at least one live agent session for
// computerID.
func (h *Hub) IsConnected(computerID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.agentSessions[computerID]) > 0
}

// ConnectedAgentCount reports how many distinct computers currently have
// at least one live agent session. Used by the admin stats surface.
func (h *Hub) ConnectedAgentCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.agentSessions)
}

// EmitToAgent implements command.Hub: emit event to every session in
// agent(computerID).
func (h *Hub) EmitToAgent(computerID int64, event string, payload interface{}) {
	h.mu.RLock()
	sessions := cloneSessions(h.agentSessions[computerID])
	h.mu.RUnlock()

	for _, s := range sessions {
		s.emit(event, payload)
	}
}

// EmitToUser implements command.Hub: emit event to every session in
// user(userID).
func (h *Hub) EmitToUser(userID int64, event string, payload interface{}) {
	h.mu.RLock()
	sessions := cloneSessions(h.userSessions[userID])
	h.mu.RUnlock()

	for _, s := range sessions {
		s.emit(event, payload)
	}
}

// emitToSubscribers emits event to every session subscribed to
// computerID.
func (h *Hub) emitToSubscribers(computerID int64, event string, payload interface{}) {
	h.mu.RLock()
	sessions := cloneSessions(h.subscribers[computerID])
	h.mu.RUnlock()

	for _, s := range sessions {
		s.emit(event, payload)
	}
}

// emitToAdmins emits event to every admin session.
func (h *Hub) emitToAdmins(event string, payload interface{}) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.adminSessions))
	for _, s := range h.adminSessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.emit(event, payload)
	}
}

// emitToAllAgents emits event to every connected agent session, used for
// fleet-wide version-promotion notifications.
func (h *Hub) emitToAllAgents(event string, payload interface{}) {
	h.mu.RLock()
	sessions := make([]*Session, 0)
	for _, set := range h.agentSessions {
		for _, s := range set {
			sessions = append(sessions, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.emit(event, payload)
	}
}

// NotifyNewAgentMFA emits admin:new_agent_mfa to the admin room. Invoked
// by the agent bootstrap handler after the MFA Broker issues a code.
func (h *Hub) NotifyNewAgentMFA(agentID string, code string, position models.PositionInfo) {
	h.emitToAdmins("admin:new_agent_mfa", models.AdminNewAgentMFAEvent{AgentID: agentID, MFACode: code, PositionInfo: position})
}

// NotifyAgentRegistered emits admin:agent_registered to the admin room.
func (h *Hub) NotifyAgentRegistered(agentID string, computerID int64) {
	h.emitToAdmins("admin:agent_registered", models.AdminAgentRegisteredEvent{AgentID: agentID, ComputerID: computerID})
}

// NotifyNewVersionAvailable emits agent:new_version_available to every
// connected agent. Invoked by the Version Catalog on set_stable.
func (h *Hub) NotifyNewVersionAvailable(payload models.NewVersionAvailableEvent) {
	h.emitToAllAgents("agent:new_version_available", payload)
}

func cloneSessions(m map[string]*Session) []*Session {
	out := make([]*Session, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out
}

// register places a session in its rooms. Starting the pumps and the
// client_kind-specific side effects (presence seeding, timer
// cancellation) are left to the caller, which applies them after
// register returns.
func (h *Hub) register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch s.ClientKind {
	case models.ClientKindAgent:
		if h.agentSessions[s.ComputerID] == nil {
			h.agentSessions[s.ComputerID] = make(map[string]*Session)
		}
		h.agentSessions[s.ComputerID][s.ID] = s
		s.joinRoom(agentRoom(s.ComputerID))

	case models.ClientKindFrontend:
		if h.userSessions[s.UserID] == nil {
			h.userSessions[s.UserID] = make(map[string]*Session)
		}
		h.userSessions[s.UserID][s.ID] = s
		s.joinRoom(userRoom(s.UserID))

		if s.Role == models.RoleAdmin {
			h.adminSessions[s.ID] = s
			s.joinRoom(models.RoomAdmin)
		}
	}
}

// unregister removes a session from every room it belongs to. For agent
// sessions, if this empties the computer's session set, it arms the
// offline-debounce timer.
func (h *Hub) unregister(s *Session) {
	h.mu.Lock()

	switch s.ClientKind {
	case models.ClientKindAgent:
		delete(h.agentSessions[s.ComputerID], s.ID)
		if len(h.agentSessions[s.ComputerID]) == 0 {
			delete(h.agentSessions, s.ComputerID)
			h.armOfflineTimer(s.ComputerID)
		}

	case models.ClientKindFrontend:
		delete(h.userSessions[s.UserID], s.ID)
		if len(h.userSessions[s.UserID]) == 0 {
			delete(h.userSessions, s.UserID)
		}
		delete(h.adminSessions, s.ID)
		for cid, set := range h.subscribers {
			delete(set, s.ID)
			if len(set) == 0 {
				delete(h.subscribers, cid)
			}
		}
	}

	h.mu.Unlock()
	s.closeSend()
}

// armOfflineTimer schedules the debounced offline transition. Must be
// called with h.mu held; the timer callback reacquires the lock itself.
func (h *Hub) armOfflineTimer(computerID int64) {
	if t, ok := h.offlineTimers[computerID]; ok {
		t.Stop()
	}
	h.offlineTimers[computerID] = time.AfterFunc(h.debounce, func() {
		h.applyOfflineIfStillEmpty(computerID)
	})
}

// applyOfflineIfStillEmpty fires at the debounce deadline. A no-op if an
// agent session for computerID reconnected in the meantime.
func (h *Hub) applyOfflineIfStillEmpty(computerID int64) {
	h.mu.Lock()
	delete(h.offlineTimers, computerID)

	if len(h.agentSessions[computerID]) > 0 {
		h.mu.Unlock()
		return
	}

	status := &realtimeStatus{Status: models.StatusOffline, LastUpdated: time.Now()}
	delete(h.realtimeStatus, computerID)
	h.mu.Unlock()

	h.emitToSubscribers(computerID, "computer:status_updated", toStatusEvent(computerID, status))
}

// OnAgentConnected seeds realtime_status if absent and cancels any
// pending offline timer (debounced reconnect).
func (h *Hub) OnAgentConnected(computerID int64) {
	h.mu.Lock()
	if t, ok := h.offlineTimers[computerID]; ok {
		t.Stop()
		delete(h.offlineTimers, computerID)
	}
	if _, ok := h.realtimeStatus[computerID]; !ok {
		h.realtimeStatus[computerID] = &realtimeStatus{Status: models.StatusOnline, LastUpdated: time.Now()}
	}
	status := h.realtimeStatus[computerID]
	h.mu.Unlock()

	h.emitToSubscribers(computerID, "computer:status_updated", toStatusEvent(computerID, status))
}

// OnAgentStatusUpdate clamps and records an agent:status_update frame,
// broadcasting it to subscribers.
func (h *Hub) OnAgentStatusUpdate(computerID int64, frame models.StatusUpdateFrame) {
	status := &realtimeStatus{
		Status:      models.StatusOnline,
		CPUPct:      clamp(frame.CPUPct),
		RAMPct:      clamp(frame.RAMPct),
		DiskPct:     clamp(frame.DiskPct),
		LastUpdated: time.Now(),
	}

	h.mu.Lock()
	h.realtimeStatus[computerID] = status
	h.mu.Unlock()

	h.emitToSubscribers(computerID, "computer:status_updated", toStatusEvent(computerID, status))
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func toStatusEvent(computerID int64, s *realtimeStatus) models.ComputerStatusUpdatedEvent {
	return models.ComputerStatusUpdatedEvent{
		ComputerID:  computerID,
		Status:      s.Status,
		CPUPct:      s.CPUPct,
		RAMPct:      s.RAMPct,
		DiskPct:     s.DiskPct,
		LastUpdated: s.LastUpdated,
	}
}

// Subscribe enforces room authorization (admins always pass; users need
// a UserRoomAssignment for the computer's room) then joins
// subscribers(cid). It returns the one-shot status snapshot to send (nil
// if no status exists yet) rather than emitting it itself: the spec
// requires subscribe_response to reach the wire before the snapshot
// (§5, §9), so the caller must emit the ack first and the returned
// snapshot second.
func (h *Hub) Subscribe(ctx context.Context, s *Session, computerID int64) (*models.ComputerStatusUpdatedEvent, error) {
	if s.Role != models.RoleAdmin {
		computer, err := h.computers.FindComputerByID(ctx, computerID)
		if err != nil {
			return nil, err
		}
		if computer.RoomID == nil {
			return nil, apperrors.AccessDenied("not authorized to subscribe to this computer")
		}
		allowed, err := h.rooms.UserHasRoomAssignment(ctx, s.UserID, *computer.RoomID)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, apperrors.AccessDenied("not authorized to subscribe to this computer")
		}
	}

	h.mu.Lock()
	if h.subscribers[computerID] == nil {
		h.subscribers[computerID] = make(map[string]*Session)
	}
	h.subscribers[computerID][s.ID] = s
	status := h.realtimeStatus[computerID]
	h.mu.Unlock()

	s.joinRoom(subscribersRoom(computerID))

	if status == nil {
		return nil, nil
	}
	snapshot := toStatusEvent(computerID, status)
	return &snapshot, nil
}

// Unsubscribe removes s from subscribers(cid). Symmetric with Subscribe
// but sends no snapshot.
func (h *Hub) Unsubscribe(s *Session, computerID int64) {
	h.mu.Lock()
	if set, ok := h.subscribers[computerID]; ok {
		delete(set, s.ID)
		if len(set) == 0 {
			delete(h.subscribers, computerID)
		}
	}
	h.mu.Unlock()
	s.leaveRoom(subscribersRoom(computerID))
}

func agentRoom(computerID int64) string {
	return "agent:" + strconv.FormatInt(computerID, 10)
}

func userRoom(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}

func subscribersRoom(computerID int64) string {
	return "subscribers:" + strconv.FormatInt(computerID, 10)
}

