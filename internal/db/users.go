// Package db provides PostgreSQL database access for the CMS coordination
// core.
//
// This file implements the User repository backing the Auth Service (C2):
// lookup by username, creation, and the soft-delete/reactivate path that
// gates login.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/apperrors"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
)

// uniqueViolationCode is the PostgreSQL SQLSTATE for a unique-constraint
// violation (23505).
const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == uniqueViolationCode
}

// UserRepo is the narrow repository interface the Auth Service depends on.
type UserRepo interface {
	FindUserByName(ctx context.Context, username string) (*models.User, error)
	FindUserByID(ctx context.Context, userID int64) (*models.User, error)
	CreateUser(ctx context.Context, username, passwordHash, role string) (*models.User, error)
	UpdateUser(ctx context.Context, userID int64, req *models.UpdateUserRequest) error
	ListUsers(ctx context.Context) ([]*models.User, error)
}

// UserDB is the PostgreSQL-backed UserRepo.
type UserDB struct {
	db *sql.DB
}

// NewUserDB builds a UserDB over an existing connection pool.
func NewUserDB(sqlDB *sql.DB) *UserDB {
	return &UserDB{db: sqlDB}
}

const userColumns = `user_id, username, password_hash, role, active, created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.UserID, &u.Username, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("user")
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return &u, nil
}

// FindUserByName looks up a User by its unique, case-sensitive username.
func (u *UserDB) FindUserByName(ctx context.Context, username string) (*models.User, error) {
	row := u.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return scanUser(row)
}

// FindUserByID looks up a User by its stable integer id.
func (u *UserDB) FindUserByID(ctx context.Context, userID int64) (*models.User, error) {
	row := u.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID)
	return scanUser(row)
}

// CreateUser inserts a new local User. Fails with USERNAME_TAKEN on a
// unique-constraint collision.
func (u *UserDB) CreateUser(ctx context.Context, username, passwordHash, role string) (*models.User, error) {
	if role == "" {
		role = models.RoleUser
	}
	row := u.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash, role, active)
		VALUES ($1, $2, $3, true)
		RETURNING `+userColumns,
		username, passwordHash, role,
	)
	var user models.User
	err := row.Scan(&user.UserID, &user.Username, &user.PasswordHash, &user.Role, &user.Active, &user.CreatedAt, &user.UpdatedAt)
	if isUniqueViolation(err) {
		return nil, apperrors.UsernameTaken()
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return &user, nil
}

// UpdateUser applies a partial update. Setting Active=false must be
// followed by the caller invalidating the user's refresh tokens
// (RevokeAll) — this repository only persists the flag.
func (u *UserDB) UpdateUser(ctx context.Context, userID int64, req *models.UpdateUserRequest) error {
	if req.Password == nil && req.Role == nil && req.Active == nil {
		return nil
	}

	query := `UPDATE users SET updated_at = NOW()`
	args := []interface{}{}
	idx := 1

	if req.Password != nil {
		query += fmt.Sprintf(`, password_hash = $%d`, idx)
		args = append(args, *req.Password)
		idx++
	}
	if req.Role != nil {
		query += fmt.Sprintf(`, role = $%d`, idx)
		args = append(args, *req.Role)
		idx++
	}
	if req.Active != nil {
		query += fmt.Sprintf(`, active = $%d`, idx)
		args = append(args, *req.Active)
		idx++
	}
	query += fmt.Sprintf(` WHERE user_id = $%d`, idx)
	args = append(args, userID)

	result, err := u.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.NotFound("user")
	}
	return nil
}

// ListUsers returns every User ordered by id.
func (u *UserDB) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := u.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY user_id`)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var usr models.User
		if err := rows.Scan(&usr.UserID, &usr.Username, &usr.PasswordHash, &usr.Role, &usr.Active, &usr.CreatedAt, &usr.UpdatedAt); err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		users = append(users, &usr)
	}
	return users, rows.Err()
}
