package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/apperrors"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/logger"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
)

// CommandDispatcher is the narrow view of the Command Coordinator needed
// to service frontend:send_command. Held alongside CommandCompleter so
// the hub and coordinator can be wired together after both exist.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, userID, computerID int64, commandText, commandType string, isAdmin bool, roomID int64) (string, error)
}

// SetCommandDispatcher wires the Command Coordinator's dispatch path.
func (h *Hub) SetCommandDispatcher(d CommandDispatcher) {
	h.dispatcher = d
}

// HandleWebSocket upgrades the connection unconditionally, then
// authenticates using the handshake headers. A failed authentication is
// reported as a connect_error frame over the now-open socket, matching
// spec wording that the transport is closed only after the frame is
// sent, not rejected at the HTTP layer.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	clientKind := c.GetHeader("X-Client-Type")
	authHeader := c.GetHeader("Authorization")
	agentID := c.GetHeader("X-Agent-ID")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Realtime().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")

	switch clientKind {
	case models.ClientKindAgent:
		h.admitAgent(c.Request.Context(), conn, agentID, token)
	case models.ClientKindFrontend:
		h.admitFrontend(c.Request.Context(), conn, token)
	default:
		sendConnectErrorAndClose(conn, models.ConnectErrMissingHeaders)
	}
}

func (h *Hub) admitAgent(ctx context.Context, conn *websocket.Conn, agentID, token string) {
	if agentID == "" || token == "" {
		sendConnectErrorAndClose(conn, models.ConnectErrMissingHeaders)
		return
	}

	computerID, err := h.registry.VerifyAgentToken(ctx, agentID, token)
	if err != nil {
		sendConnectErrorAndClose(conn, models.ConnectErrInvalidAgentAuth)
		return
	}

	s := newSession(conn, models.ClientKindAgent)
	s.ComputerID = computerID
	h.admit(s)
}

func (h *Hub) admitFrontend(ctx context.Context, conn *websocket.Conn, token string) {
	if token == "" {
		sendConnectErrorAndClose(conn, models.ConnectErrMissingHeaders)
		return
	}

	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			sendConnectErrorAndClose(conn, models.ConnectErrTokenExpired)
		} else {
			sendConnectErrorAndClose(conn, models.ConnectErrInvalidToken)
		}
		return
	}

	user, err := h.users.FindUserByID(ctx, claims.UserID)
	if err != nil {
		sendConnectErrorAndClose(conn, models.ConnectErrInvalidToken)
		return
	}
	if !user.Active {
		sendConnectErrorAndClose(conn, models.ConnectErrUserDeactivated)
		return
	}

	s := newSession(conn, models.ClientKindFrontend)
	s.UserID = claims.UserID
	s.Role = claims.Role
	h.admit(s)
}

// admit registers the session, sends connect, and runs its pumps until
// disconnect.
func (h *Hub) admit(s *Session) {
	h.register(s)
	if s.ClientKind == models.ClientKindAgent {
		h.OnAgentConnected(s.ComputerID)
	}

	s.emit("connect", struct{}{})

	go s.writePump()
	s.readPump(
		func(event string, raw json.RawMessage) { h.dispatchInbound(s, event, raw) },
		func() { h.unregister(s) },
	)
}

// dispatchInbound routes one inbound client-to-server frame.
func (h *Hub) dispatchInbound(s *Session, event string, raw json.RawMessage) {
	ctx := context.Background()

	switch event {
	case "agent:status_update":
		var statusFrame models.StatusUpdateFrame
		if err := json.Unmarshal(raw, &statusFrame); err != nil {
			return
		}
		h.OnAgentStatusUpdate(s.ComputerID, statusFrame)

	case "agent:command_result":
		var result models.CommandResultFrame
		if err := json.Unmarshal(raw, &result); err != nil {
			return
		}
		if h.completer != nil {
			h.completer.Complete(result.CommandID, result)
		}

	case "frontend:subscribe":
		var req models.SubscribeRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return
		}
		ack := models.AckResponse{ComputerID: req.ComputerID}
		snapshot, err := h.Subscribe(ctx, s, req.ComputerID)
		if err != nil {
			ack.Status = models.AckStatusError
			ack.Message = apperrors.MessageOf(err)
		} else {
			ack.Status = models.AckStatusSuccess
		}
		s.emit("subscribe_response", ack)
		if err == nil && snapshot != nil {
			s.emit("computer:status_updated", *snapshot)
		}

	case "frontend:unsubscribe":
		var req models.SubscribeRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return
		}
		h.Unsubscribe(s, req.ComputerID)
		s.emit("unsubscribe_response", models.AckResponse{Status: models.AckStatusSuccess, ComputerID: req.ComputerID})

	case "frontend:send_command":
		h.handleSendCommand(ctx, s, raw)
	}
}

func (h *Hub) handleSendCommand(ctx context.Context, s *Session, raw json.RawMessage) {
	var req models.SendCommandRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}
	if req.CommandType == "" {
		req.CommandType = models.DefaultCommandType
	}

	ack := models.AckResponse{ComputerID: req.ComputerID, CommandType: req.CommandType}

	if h.dispatcher == nil {
		ack.Status = models.AckStatusError
		ack.Message = "command dispatch unavailable"
		s.emit("send_command_response", ack)
		return
	}

	isAdmin := s.Role == models.RoleAdmin
	var roomID int64
	if !isAdmin {
		computer, err := h.computers.FindComputerByID(ctx, req.ComputerID)
		if err != nil || computer.RoomID == nil {
			ack.Status = models.AckStatusError
			ack.Message = "computer not found"
			s.emit("send_command_response", ack)
			return
		}
		roomID = *computer.RoomID
	}

	commandID, err := h.dispatcher.Dispatch(ctx, s.UserID, req.ComputerID, req.Command, req.CommandType, isAdmin, roomID)
	ack.CommandID = commandID
	if err != nil {
		ack.Status = models.AckStatusError
		ack.Message = apperrors.MessageOf(err)
	} else {
		ack.Status = models.AckStatusSuccess
	}
	s.emit("send_command_response", ack)
}

func sendConnectErrorAndClose(conn *websocket.Conn, message string) {
	payload, _ := json.Marshal(frame{Event: "connect_error", Data: models.ConnectErrorEvent{Message: message}})
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.TextMessage, payload)
	_ = conn.Close()
}
