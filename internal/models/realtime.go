package models

import "time"

// Client kinds admitted by the Session Hub (C5).
const (
	ClientKindAgent    = "agent"
	ClientKindFrontend = "frontend"
)

// Logical room name builders. Rooms are a Session Hub concept, distinct
// from the persistent Room entity.
const (
	RoomAdmin = "admin"
)

// StatusUpdateFrame is emitted by an agent session over
// "agent:status_update". Field names match spec §4.5/§8 literally.
type StatusUpdateFrame struct {
	CPUPct  float64 `json:"cpu_pct"`
	RAMPct  float64 `json:"ram_pct"`
	DiskPct float64 `json:"disk_pct"`
}

// ComputerStatusUpdatedEvent is broadcast to subscribers(cid) on
// "computer:status_updated". Field names match the RealtimeStatus
// entity's spec §3 attributes.
type ComputerStatusUpdatedEvent struct {
	ComputerID  int64     `json:"computer_id"`
	Status      string    `json:"status"`
	CPUPct      float64   `json:"cpu_pct"`
	RAMPct      float64   `json:"ram_pct"`
	DiskPct     float64   `json:"disk_pct"`
	LastUpdated time.Time `json:"last_updated"`
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// CommandExecuteEvent is delivered to agent(cid) on "command:execute".
// Field names match spec §8 scenario 2's literal payload.
type CommandExecuteEvent struct {
	CommandID   string `json:"command_id"`
	Command     string `json:"command"`
	CommandType string `json:"command_type"`
}

// CommandResultFrame is emitted by an agent on "agent:command_result".
// Field names match spec §8 scenario 2's literal payload; Type carries
// the agent's "type" (normalized to CommandType by the coordinator).
type CommandResultFrame struct {
	CommandID string        `json:"command_id"`
	Type      string        `json:"type"`
	Success   bool          `json:"success"`
	Result    CommandResult `json:"result"`
}

// CommandResult normalizes stdout/stderr/exit_code from a raw agent
// result payload.
type CommandResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// CommandCompletedEvent is delivered to user(uid) on "command:completed".
// Field names match spec §4.6/§8 scenario 2's literal payload.
type CommandCompletedEvent struct {
	CommandID  string        `json:"command_id"`
	ComputerID int64         `json:"computer_id"`
	Type       string        `json:"type"`
	Success    bool          `json:"success"`
	Result     CommandResult `json:"result"`
	Timestamp  time.Time     `json:"timestamp"`
}

// SendCommandRequest is the payload of "frontend:send_command". Field
// names match spec §8 scenario 2's literal payload.
type SendCommandRequest struct {
	ComputerID  int64  `json:"computer_id"`
	Command     string `json:"command"`
	CommandType string `json:"command_type,omitempty"`
}

const DefaultCommandType = "console"

// SubscribeRequest is the payload of "frontend:subscribe" /
// "frontend:unsubscribe". Field name matches spec §4.5's literal payload.
type SubscribeRequest struct {
	ComputerID int64 `json:"computer_id"`
}

// AckResponse is the single-object ack shape returned to WebSocket
// operations that accept one: status, message, and operation-specific
// context fields, named per spec §9's literal envelope.
type AckResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	ComputerID  int64  `json:"computer_id,omitempty"`
	CommandID   string `json:"command_id,omitempty"`
	CommandType string `json:"command_type,omitempty"`
}

const (
	AckStatusSuccess = "success"
	AckStatusError   = "error"
)

// AdminNewAgentMFAEvent is emitted to the admin room on
// "admin:new_agent_mfa". Field names match spec §8 scenario 1's literal
// payload: {mfa_code, position_info:{...,room_name}}.
type AdminNewAgentMFAEvent struct {
	AgentID      string       `json:"agent_id"`
	MFACode      string       `json:"mfa_code"`
	PositionInfo PositionInfo `json:"position_info"`
}

// AdminAgentRegisteredEvent is emitted to the admin room on
// "admin:agent_registered".
type AdminAgentRegisteredEvent struct {
	AgentID    string `json:"agent_id"`
	ComputerID int64  `json:"computer_id"`
}

// ConnectErrorEvent is emitted on WebSocket admission failure, immediately
// followed by transport close.
type ConnectErrorEvent struct {
	Message string `json:"message"`
}

// The closed set of connect_error reasons named in spec §6.
const (
	ConnectErrInvalidToken     = "Authentication failed: Invalid token"
	ConnectErrTokenExpired     = "Authentication failed: Token expired"
	ConnectErrMissingHeaders   = "Authentication failed: Missing required headers"
	ConnectErrInvalidAgentAuth = "Authentication failed: Invalid agent credentials"
	ConnectErrUserDeactivated  = "Authentication failed: User account is deactivated"
	ConnectErrInternal         = "Internal error: Unable to establish WebSocket connection"
)
