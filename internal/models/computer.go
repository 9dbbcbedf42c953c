package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// HardwareInfo is an opaque hardware-report blob, stored as JSONB.
type HardwareInfo map[string]interface{}

// Scan implements sql.Scanner.
func (h *HardwareInfo) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, h)
}

// Value implements driver.Valuer.
func (h HardwareInfo) Value() (driver.Value, error) {
	return json.Marshal(h)
}

// ErrorRecord is embedded in Computer. Invariant: Computer.HaveActiveErrors
// iff at least one ErrorRecord has Resolved == false.
type ErrorRecord struct {
	ErrorID         string     `json:"error_id"`
	ErrorType       string     `json:"error_type"`
	ErrorMessage    string     `json:"error_message"`
	ErrorDetails    string     `json:"error_details,omitempty"`
	ReportedAt      time.Time  `json:"reported_at"`
	Resolved        bool       `json:"resolved"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
}

// ErrorRecordList is the JSONB-backed ordered list of ErrorRecord attached
// to a Computer.
type ErrorRecordList []ErrorRecord

func (l *ErrorRecordList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, l)
}

func (l ErrorRecordList) Value() (driver.Value, error) {
	return json.Marshal(l)
}

// HasActive reports whether any error in the list is unresolved.
func (l ErrorRecordList) HasActive() bool {
	for _, e := range l {
		if !e.Resolved {
			return true
		}
	}
	return false
}

// Computer is the persistent record for a managed workstation. Created on
// first identify; mutated by hardware reports, error reports, admin edits.
type Computer struct {
	ComputerID       int64           `json:"computer_id" db:"computer_id"`
	AgentID          string          `json:"agent_id" db:"agent_id"`
	AgentTokenHash   *string         `json:"-" db:"agent_token_hash"`
	RoomID           *int64          `json:"room_id,omitempty" db:"room_id"`
	PosX             int             `json:"pos_x" db:"pos_x"`
	PosY             int             `json:"pos_y" db:"pos_y"`
	Name             string          `json:"name" db:"name"`
	HardwareInfo     HardwareInfo    `json:"hardware_info,omitempty" db:"hardware_info"`
	Errors           ErrorRecordList `json:"errors,omitempty" db:"errors"`
	HaveActiveErrors bool            `json:"have_active_errors" db:"have_active_errors"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// IdentifyRequest is sent by an agent the first time it contacts the core,
// and on every subsequent bootstrap attempt before it holds a token. Field
// names match spec §6's literal body: {agent_id, position_info:{...}}.
type IdentifyRequest struct {
	AgentID  string        `json:"agent_id" binding:"required" validate:"required,min=8,max=36"`
	Position *PositionInfo `json:"position_info,omitempty"`
}

// PositionInfo places a Computer within a Room's grid. The agent knows
// the room by its human-readable name, not the internal room_id; the
// Agent Registry resolves RoomName to a room_id when validating bounds
// and occupancy. Field names match spec §6's literal position_info shape.
type PositionInfo struct {
	RoomName string `json:"room_name" binding:"required"`
	PosX     int    `json:"pos_x"`
	PosY     int    `json:"pos_y"`
	Name     string `json:"name,omitempty"`
}

// Identify outcome statuses returned by POST /agent/identify.
const (
	IdentifyStatusSuccess       = "success"
	IdentifyStatusMFARequired   = "mfa_required"
	IdentifyStatusPositionError = "position_error"
)

// IdentifyResponse is returned from POST /agent/identify. Field names
// match spec §6's literal response variants: {status, agent_token} /
// {status} / {status, message}.
type IdentifyResponse struct {
	Status     string `json:"status"`
	AgentToken string `json:"agent_token,omitempty"`
	Message    string `json:"message,omitempty"`
}

// VerifyMFARequest is sent by an agent presenting an MFA code in exchange
// for a long-lived agent token. Field names match spec §6's literal body:
// {agent_id, mfa_code}.
type VerifyMFARequest struct {
	AgentID string `json:"agent_id" binding:"required"`
	MFACode string `json:"mfa_code" binding:"required,len=6"`
}

// VerifyMFAResponse returns the minted agent token on success. Field
// names match spec §6's literal response: {status:"success", agent_token}.
type VerifyMFAResponse struct {
	Status     string `json:"status"`
	ComputerID int64  `json:"computer_id"`
	AgentToken string `json:"agent_token"`
}

// HardwareInfoRequest is the payload of a hardware-info report.
type HardwareInfoRequest struct {
	HardwareInfo HardwareInfo `json:"hardware_info" binding:"required"`
}

// ReportErrorRequest is the payload of an agent error report. Field names
// match the ErrorRecord attributes named in spec §3.
type ReportErrorRequest struct {
	ErrorType    string `json:"error_type" binding:"required"`
	ErrorMessage string `json:"error_message" binding:"required"`
	ErrorDetails string `json:"error_details,omitempty" validate:"omitempty,max=2048"`
}
