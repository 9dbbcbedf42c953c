// Package db provides PostgreSQL database access for the CMS coordination
// core.
//
// This file implements the RefreshToken repository backing the Auth
// Service's selector/verifier rotation (C2): create, find-by-selector,
// destroy-by-selector, and the bulk revoke invoked on reuse detection or
// password change.
package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/apperrors"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
)

// RefreshTokenRepo is the narrow repository interface the Auth Service
// depends on.
type RefreshTokenRepo interface {
	CreateRefreshToken(ctx context.Context, userID int64, selector, verifierHash string, expiresAt time.Time) (*models.RefreshToken, error)
	FindRefreshTokenBySelector(ctx context.Context, selector string) (*models.RefreshToken, error)
	DestroyRefreshTokenBySelector(ctx context.Context, selector string) error
	DestroyRefreshTokensByUser(ctx context.Context, userID int64) error
	SweepExpiredRefreshTokens(ctx context.Context) (int64, error)
}

// RefreshTokenDB is the PostgreSQL-backed RefreshTokenRepo.
type RefreshTokenDB struct {
	db *sql.DB
}

// NewRefreshTokenDB builds a RefreshTokenDB over an existing connection
// pool.
func NewRefreshTokenDB(sqlDB *sql.DB) *RefreshTokenDB {
	return &RefreshTokenDB{db: sqlDB}
}

// CreateRefreshToken inserts a new row. Callers must have already
// destroyed any prior row sharing the same user/session before calling
// this during rotation, per spec §5's atomicity requirement.
func (r *RefreshTokenDB) CreateRefreshToken(ctx context.Context, userID int64, selector, verifierHash string, expiresAt time.Time) (*models.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO refresh_tokens (user_id, selector, verifier_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, NOW(), $4)
		RETURNING token_id, user_id, selector, verifier_hash, issued_at, expires_at`,
		userID, selector, verifierHash, expiresAt,
	)

	var rt models.RefreshToken
	if err := row.Scan(&rt.TokenID, &rt.UserID, &rt.Selector, &rt.VerifierHash, &rt.IssuedAt, &rt.ExpiresAt); err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return &rt, nil
}

// FindRefreshTokenBySelector looks up the (at most one) live row for a
// selector.
func (r *RefreshTokenDB) FindRefreshTokenBySelector(ctx context.Context, selector string) (*models.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT token_id, user_id, selector, verifier_hash, issued_at, expires_at
		FROM refresh_tokens WHERE selector = $1`,
		selector,
	)

	var rt models.RefreshToken
	err := row.Scan(&rt.TokenID, &rt.UserID, &rt.Selector, &rt.VerifierHash, &rt.IssuedAt, &rt.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("refresh token")
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return &rt, nil
}

// DestroyRefreshTokenBySelector deletes the row for a selector. A missing
// row is not an error: the caller has already observed the token's state.
func (r *RefreshTokenDB) DestroyRefreshTokenBySelector(ctx context.Context, selector string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE selector = $1`, selector); err != nil {
		return apperrors.DatabaseError(err)
	}
	return nil
}

// DestroyRefreshTokensByUser unconditionally deletes every row for a user.
// Invoked on password change and reuse detection.
func (r *RefreshTokenDB) DestroyRefreshTokensByUser(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID); err != nil {
		return apperrors.DatabaseError(err)
	}
	return nil
}

// SweepExpiredRefreshTokens deletes every row whose expiry is in the
// past and returns the count removed. Invoked by the daily cron sweep.
func (r *RefreshTokenDB) SweepExpiredRefreshTokens(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < NOW()`)
	if err != nil {
		return 0, apperrors.DatabaseError(err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
