// Package registry implements the Agent Registry (C4): the authoritative
// mapping of agent_id <-> computer_id <-> stored token hash.
//
// The registry is a thin façade over the Computer and Room repositories;
// it owns no state of its own beyond the credential hasher used to mint
// and verify agent tokens.
package registry

import (
	"context"
	"encoding/hex"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/apperrors"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/credential"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/db"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
)

// Registry implements find_by_agent_id / verify_agent_token /
// register_or_refresh.
type Registry struct {
	computers db.ComputerRepo
	rooms     db.RoomRepo
	hasher    *credential.Hasher
}

// New builds a Registry over the given repositories.
func New(computers db.ComputerRepo, rooms db.RoomRepo, hasher *credential.Hasher) *Registry {
	return &Registry{computers: computers, rooms: rooms, hasher: hasher}
}

// FindByAgentID looks up the Computer record for agentID. Returns
// apperrors.NotFound if no such computer exists.
func (r *Registry) FindByAgentID(ctx context.Context, agentID string) (*models.Computer, error) {
	return r.computers.FindComputerByAgentID(ctx, agentID)
}

// VerifyAgentToken composes FindByAgentID with a constant-time token
// check. Returns the computer_id on success. On a missing record, a nil
// token hash (never MFA-verified), or mismatch, returns apperrors'
// InvalidCredential without distinguishing the cause.
func (r *Registry) VerifyAgentToken(ctx context.Context, agentID, presented string) (int64, error) {
	computer, err := r.computers.FindComputerByAgentID(ctx, agentID)
	if err != nil {
		return 0, apperrors.InvalidCredential("unknown agent or token")
	}
	if computer.AgentTokenHash == nil {
		return 0, apperrors.InvalidCredential("agent has not completed MFA bootstrap")
	}
	if !r.hasher.VerifyToken(presented, *computer.AgentTokenHash) {
		return 0, apperrors.InvalidCredential("invalid agent token")
	}
	return computer.ComputerID, nil
}

// ValidatePosition checks positionInfo against the target room's grid
// bounds and occupancy without persisting anything. Used at agent-identify
// time so a malformed position is rejected before an MFA code is issued.
func (r *Registry) ValidatePosition(ctx context.Context, agentID string, positionInfo models.PositionInfo) (*models.Room, error) {
	room, err := r.rooms.FindRoomByName(ctx, positionInfo.RoomName)
	if err != nil {
		return nil, apperrors.NotFound("room")
	}
	if !room.Layout().Contains(positionInfo.PosX, positionInfo.PosY) {
		return nil, apperrors.PositionOutOfRange("position is outside the room's grid")
	}
	if occupant, err := r.computers.FindComputerAtPosition(ctx, room.RoomID, positionInfo.PosX, positionInfo.PosY); err == nil && occupant.AgentID != agentID {
		return nil, apperrors.PositionOccupied("position already occupied in this room")
	}
	return room, nil
}

// RegisterOrRefresh mints a fresh agent token for agentID, validates
// positionInfo against the target room's grid bounds, and persists both.
// Creates the Computer row if it does not yet exist. Returns the
// computer_id and the plaintext token (the only time the plaintext is
// ever available — only its hash is stored).
func (r *Registry) RegisterOrRefresh(ctx context.Context, agentID string, positionInfo models.PositionInfo) (int64, string, error) {
	room, err := r.ValidatePosition(ctx, agentID, positionInfo)
	if err != nil {
		return 0, "", err
	}

	plainToken, err := r.hasher.GenerateSecret(32)
	if err != nil {
		return 0, "", err
	}
	plainTokenHex := hex.EncodeToString(plainToken)

	tokenHash, err := r.hasher.HashToken(plainTokenHex)
	if err != nil {
		return 0, "", err
	}

	computer, err := r.computers.FindComputerByAgentID(ctx, agentID)
	if err != nil {
		computer = &models.Computer{AgentID: agentID}
	}

	roomID := room.RoomID
	computer.AgentTokenHash = &tokenHash
	computer.RoomID = &roomID
	computer.PosX = positionInfo.PosX
	computer.PosY = positionInfo.PosY
	if positionInfo.Name != "" {
		computer.Name = positionInfo.Name
	}

	if err := r.computers.SaveComputer(ctx, computer); err != nil {
		return 0, "", err
	}

	return computer.ComputerID, plainTokenHex, nil
}
