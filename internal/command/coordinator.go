// Package command implements the Command Coordinator (C6): the hardest
// subsystem after the Session Hub. It guarantees at-most-once delivery of
// a command result to its initiator, with bounded in-flight lifetime.
//
// COMMAND LIFECYCLE:
//  1. dispatch() validates the request and checks room authorization.
//  2. A command_id (UUID v4) is generated and the pending entry is armed
//     with a 5-minute expiry timer.
//  3. The Session Hub is asked whether the target agent is connected; if
//     not, the entry is removed immediately and AgentOffline is returned.
//  4. The hub emits command:execute to the agent's room.
//  5. On agent:command_result, the hub calls complete(), which cancels
//     the timer, removes the entry, and emits command:completed to the
//     originating user's room.
//  6. If no result arrives before the timer fires, the entry is dropped
//     silently — the caller must surface timeout through the UI on its
//     own, since at-most-once delivery forbids a second notification.
package command

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/apperrors"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/db"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/logger"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
)

// MaxCommandBytes bounds command_text length (spec §4.6 step 1).
const MaxCommandBytes = 2000

// PendingTTL is how long a dispatched command waits for a result before
// its entry is dropped unnotified.
const PendingTTL = 5 * time.Minute

// Hub is the narrow view of the Session Hub the coordinator depends on.
// It never holds a lock across an emit call (see spec §5).
type Hub interface {
	IsConnected(computerID int64) bool
	EmitToAgent(computerID int64, event string, payload interface{})
	EmitToUser(userID int64, event string, payload interface{})
}

// pendingCommand is the in-memory PendingCommand volatile entity.
type pendingCommand struct {
	userID     int64
	computerID int64
	createdAt  time.Time
	timer      *time.Timer
}

// Coordinator owns the pending map. Safe for concurrent use.
type Coordinator struct {
	hub   Hub
	rooms db.RoomRepo

	mu      sync.Mutex
	pending map[string]*pendingCommand
}

// New builds a Coordinator. hub is wired after the Session Hub is
// constructed, since the two depend on each other (hub.IsConnected /
// hub.EmitToAgent call into the coordinator's authorization checks
// indirectly through the HTTP/WS boundary, not directly).
func New(hub Hub, rooms db.RoomRepo) *Coordinator {
	return &Coordinator{
		hub:     hub,
		rooms:   rooms,
		pending: make(map[string]*pendingCommand),
	}
}

// Dispatch validates and queues a command for delivery to computerID,
// returning the generated command_id on acceptance.
func (c *Coordinator) Dispatch(ctx context.Context, userID int64, computerID int64, commandText, commandType string, isAdmin bool, roomID int64) (string, error) {
	if commandText == "" || len(commandText) > MaxCommandBytes {
		return "", apperrors.New(apperrors.ErrCodeValidationFailed, "command text must be 1-2000 bytes")
	}

	if !isAdmin {
		allowed, err := c.rooms.UserHasRoomAssignment(ctx, userID, roomID)
		if err != nil {
			return "", err
		}
		if !allowed {
			return "", apperrors.AccessDenied("no room assignment for this computer")
		}
	}

	commandID := uuid.NewString()
	if commandType == "" {
		commandType = models.DefaultCommandType
	}

	entry := &pendingCommand{userID: userID, computerID: computerID, createdAt: time.Now()}
	entry.timer = time.AfterFunc(PendingTTL, func() {
		c.expire(commandID)
	})

	c.mu.Lock()
	c.pending[commandID] = entry
	c.mu.Unlock()

	if !c.hub.IsConnected(computerID) {
		c.mu.Lock()
		if e, ok := c.pending[commandID]; ok {
			e.timer.Stop()
			delete(c.pending, commandID)
		}
		c.mu.Unlock()
		return commandID, apperrors.AgentOffline("Agent is not connected")
	}

	c.hub.EmitToAgent(computerID, "command:execute", models.CommandExecuteEvent{
		CommandID:   commandID,
		Command:     commandText,
		CommandType: commandType,
	})

	return commandID, nil
}

// Complete is invoked by the Session Hub on receipt of
// agent:command_result. Unknown or already-resolved command_ids are
// dropped silently — at-most-once delivery.
func (c *Coordinator) Complete(commandID string, result models.CommandResultFrame) {
	c.mu.Lock()
	entry, ok := c.pending[commandID]
	if ok {
		entry.timer.Stop()
		delete(c.pending, commandID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}

	resultType := result.Type
	if resultType == "" {
		resultType = models.DefaultCommandType
	}

	c.hub.EmitToUser(entry.userID, "command:completed", models.CommandCompletedEvent{
		CommandID:  commandID,
		ComputerID: entry.computerID,
		Type:       resultType,
		Success:    result.Success,
		Result:     result.Result,
		Timestamp:  time.Now(),
	})
}

// expire drops a pending entry whose timer fired before a result
// arrived. No notification is emitted.
func (c *Coordinator) expire(commandID string) {
	c.mu.Lock()
	_, ok := c.pending[commandID]
	delete(c.pending, commandID)
	c.mu.Unlock()

	if ok {
		logger.Command().Debug().Str("command_id", commandID).Msg("pending command expired unanswered")
	}
}

// PendingCount reports the current in-flight command count. Exposed for
// tests and admin diagnostics; bounded by rate_of_dispatch * PendingTTL.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
