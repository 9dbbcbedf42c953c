// Package db provides PostgreSQL database access for the CMS coordination
// core.
//
// This file implements the Room repository and its UserRoomAssignment
// authorization edge, consumed by the Agent Registry (position bounds
// checks) and the Command Coordinator (non-admin dispatch authorization).
package db

import (
	"context"
	"database/sql"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/apperrors"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
)

// RoomRepo is the narrow repository interface for Room lookups and
// user/room authorization checks.
type RoomRepo interface {
	FindRoomByID(ctx context.Context, roomID int64) (*models.Room, error)
	FindRoomByName(ctx context.Context, name string) (*models.Room, error)
	ListRooms(ctx context.Context) ([]*models.Room, error)
	CreateRoom(ctx context.Context, req *models.CreateRoomRequest) (*models.Room, error)
	UserHasRoomAssignment(ctx context.Context, userID, roomID int64) (bool, error)
	AssignUserToRoom(ctx context.Context, userID, roomID int64) error
}

// RoomDB is the PostgreSQL-backed RoomRepo.
type RoomDB struct {
	db *sql.DB
}

// NewRoomDB builds a RoomDB over an existing connection pool.
func NewRoomDB(sqlDB *sql.DB) *RoomDB {
	return &RoomDB{db: sqlDB}
}

const roomColumns = `room_id, name, columns, rows, description, created_at, updated_at`

func scanRoom(row *sql.Row) (*models.Room, error) {
	var r models.Room
	var description sql.NullString
	err := row.Scan(&r.RoomID, &r.Name, &r.Columns, &r.Rows, &description, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("room")
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	r.Description = description.String
	return &r, nil
}

// FindRoomByID looks up a Room by id.
func (r *RoomDB) FindRoomByID(ctx context.Context, roomID int64) (*models.Room, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE room_id = $1`, roomID)
	return scanRoom(row)
}

// FindRoomByName looks up a Room by name.
func (r *RoomDB) FindRoomByName(ctx context.Context, name string) (*models.Room, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE name = $1`, name)
	return scanRoom(row)
}

// ListRooms returns every Room ordered by id.
func (r *RoomDB) ListRooms(ctx context.Context) ([]*models.Room, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY room_id`)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	defer rows.Close()

	var out []*models.Room
	for rows.Next() {
		var room models.Room
		var description sql.NullString
		if err := rows.Scan(&room.RoomID, &room.Name, &room.Columns, &room.Rows, &description, &room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		room.Description = description.String
		out = append(out, &room)
	}
	return out, rows.Err()
}

// CreateRoom inserts a new Room.
func (r *RoomDB) CreateRoom(ctx context.Context, req *models.CreateRoomRequest) (*models.Room, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO rooms (name, columns, rows, description)
		VALUES ($1, $2, $3, $4)
		RETURNING `+roomColumns,
		req.Name, req.Columns, req.Rows, req.Description,
	)
	return scanRoom(row)
}

// UserHasRoomAssignment reports whether a UserRoomAssignment edge exists.
func (r *RoomDB) UserHasRoomAssignment(ctx context.Context, userID, roomID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM user_room_assignments WHERE user_id = $1 AND room_id = $2)`,
		userID, roomID,
	).Scan(&exists)
	if err != nil {
		return false, apperrors.DatabaseError(err)
	}
	return exists, nil
}

// AssignUserToRoom creates a UserRoomAssignment edge, idempotently.
func (r *RoomDB) AssignUserToRoom(ctx context.Context, userID, roomID int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_room_assignments (user_id, room_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, room_id) DO NOTHING`,
		userID, roomID,
	)
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	return nil
}
