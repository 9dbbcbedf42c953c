// Package apperrors provides standardized error handling for the CMS
// coordination core.
//
// This package implements a consistent error format across HTTP and
// WebSocket boundaries:
//   - Structured error values with a machine-readable code
//   - Automatic HTTP status code mapping
//   - Optional details for debugging
//
// Error Structure:
//   - Code: machine-readable error identifier (e.g. "REUSE_DETECTED")
//   - Message: human-readable error message
//   - Details: optional additional context
//   - StatusCode: HTTP status code (401, 403, 404, 409, 500, ...)
//
// Usage patterns:
//
//	// Simple error
//	return apperrors.NotFound("computer")
//
//	// Error with custom message
//	return apperrors.PositionOccupied("position (1,2) already taken in room Lab-1")
//
//	// Wrap an underlying error
//	return apperrors.DatabaseError(err)
package apperrors

import (
	"fmt"
	"net/http"
)

// AppError represents a standardized application error with HTTP context.
type AppError struct {
	// Code is a machine-readable error identifier (UPPER_SNAKE_CASE).
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Details provides additional context for debugging (optional).
	Details string `json:"details,omitempty"`

	// StatusCode is the HTTP status code to return. Not serialized.
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorResponse is the uniform envelope returned to HTTP clients, per
// the spec's "{status:\"error\", message}" contract.
type ErrorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error kinds named in spec §7, mapped onto machine-readable codes.
const (
	ErrCodeInvalidCredential = "INVALID_CREDENTIAL"
	ErrCodeMalformedToken    = "MALFORMED_TOKEN"
	ErrCodeReuseDetected     = "REUSE_DETECTED"
	ErrCodeTokenExpired      = "TOKEN_EXPIRED"
	ErrCodeAccessDenied      = "ACCESS_DENIED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodePositionOccupied  = "POSITION_OCCUPIED"
	ErrCodePositionOutOfRng  = "POSITION_OUT_OF_RANGE"
	ErrCodeUsernameTaken     = "USERNAME_TAKEN"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeAgentOffline      = "AGENT_OFFLINE"
	ErrCodeInvalidFilename   = "INVALID_FILENAME"
	ErrCodeInternalServer    = "INTERNAL_ERROR"
	ErrCodeDatabaseError     = "DATABASE_ERROR"
)

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusForCode(code),
	}
}

// NewWithDetails creates a new AppError with details.
func NewWithDetails(code string, message string, details string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Details:    details,
		StatusCode: statusForCode(code),
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return NewWithDetails(code, message, details)
}

func statusForCode(code string) int {
	switch code {
	case ErrCodeValidationFailed, ErrCodeUsernameTaken, ErrCodeInvalidFilename:
		return http.StatusBadRequest
	case ErrCodeInvalidCredential, ErrCodeMalformedToken, ErrCodeTokenExpired:
		return http.StatusUnauthorized
	case ErrCodeAccessDenied, ErrCodeReuseDetected:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodePositionOccupied:
		return http.StatusConflict
	case ErrCodePositionOutOfRng:
		return http.StatusBadRequest
	case ErrCodeInternalServer, ErrCodeDatabaseError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ToResponse converts an AppError to the uniform error envelope.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{
		Status:  "error",
		Error:   e.Code,
		Message: e.Message,
		Code:    e.Code,
		Details: e.Details,
	}
}

// Common error constructors.

func InvalidCredential(message string) *AppError {
	return New(ErrCodeInvalidCredential, message)
}

func MalformedToken() *AppError {
	return New(ErrCodeMalformedToken, "refresh token is malformed")
}

func ReuseDetected() *AppError {
	return New(ErrCodeReuseDetected, "refresh token reuse detected; all sessions revoked")
}

func TokenExpired() *AppError {
	return New(ErrCodeTokenExpired, "refresh token has expired")
}

func Unknown() *AppError {
	return New(ErrCodeInvalidCredential, "refresh token is unknown")
}

func AccessDenied(message string) *AppError {
	return New(ErrCodeAccessDenied, message)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func PositionOccupied(message string) *AppError {
	return New(ErrCodePositionOccupied, message)
}

func PositionOutOfRange(message string) *AppError {
	return New(ErrCodePositionOutOfRng, message)
}

func UsernameTaken() *AppError {
	return New(ErrCodeUsernameTaken, "username is already taken")
}

func ValidationFailed(message string) *AppError {
	return New(ErrCodeValidationFailed, message)
}

func AgentOffline(message string) *AppError {
	return New(ErrCodeAgentOffline, message)
}

func InvalidFilename() *AppError {
	return New(ErrCodeInvalidFilename, "filename is invalid")
}

func InternalServer(message string) *AppError {
	return New(ErrCodeInternalServer, message)
}

func DatabaseError(err error) *AppError {
	return Wrap(ErrCodeDatabaseError, "database operation failed", err)
}

// MessageOf returns the plain, code-free message an *AppError carries
// (for WebSocket acks, which surface message text verbatim per the
// spec's closed-set wording) falling back to err.Error() for anything
// else.
func MessageOf(err error) string {
	if ae, ok := err.(*AppError); ok {
		return ae.Message
	}
	return err.Error()
}
