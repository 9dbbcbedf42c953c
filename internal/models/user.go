// Package models defines the core data structures for the CMS coordination
// core: identity, authorization, managed-workstation, and wire-protocol
// types shared between the HTTP/WebSocket boundary and the repository
// layer.
//
// Database tags use the snake_case convention:
//
//	type User struct {
//	    FullName string `json:"fullName" db:"full_name"`
//	}
package models

import "time"

// User is the identity principal. Mutated only by administrative
// operations; soft-deletion sets Active=false and invalidates all of the
// user's refresh tokens.
type User struct {
	// UserID is a stable integer identifier.
	UserID int64 `json:"userId" db:"user_id"`

	// Username is unique and case-sensitive.
	Username string `json:"username" db:"username"`

	// PasswordHash is the opaque argon2id KDF output. Never serialized.
	PasswordHash string `json:"-" db:"password_hash"`

	// Role is one of "admin", "user".
	Role string `json:"role" db:"role"`

	// Active gates login; false invalidates all refresh tokens.
	Active bool `json:"active" db:"active"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// RefreshToken is one row per live session. Invariant: for any Selector
// there is at most one live row. Destroyed on use, logout, password
// change, or reuse detection.
type RefreshToken struct {
	TokenID      int64     `json:"tokenId" db:"token_id"`
	UserID       int64     `json:"userId" db:"user_id"`
	Selector     string    `json:"-" db:"selector"`
	VerifierHash string    `json:"-" db:"verifier_hash"`
	IssuedAt     time.Time `json:"issuedAt" db:"issued_at"`
	ExpiresAt    time.Time `json:"expiresAt" db:"expires_at"`
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest carries the presented "selector.secret" refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// TokenPairResponse is returned by login and refresh.
type TokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// CreateUserRequest represents a request to create a new local user.
type CreateUserRequest struct {
	Username string `json:"username" binding:"required" validate:"required,min=3,max=32"`
	Password string `json:"password" binding:"required" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
}

// UpdateUserRequest represents a request to update an existing user. All
// fields are optional (pointer types) - only provided fields are updated.
type UpdateUserRequest struct {
	Password *string `json:"password,omitempty" validate:"omitempty,min=8"`
	Role     *string `json:"role,omitempty" validate:"omitempty,oneof=user admin"`
	Active   *bool   `json:"active,omitempty"`
}
