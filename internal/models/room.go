package models

import "time"

// RoomLayout bounds the grid a Room's Computers are placed on.
type RoomLayout struct {
	Columns int `json:"columns" db:"columns"`
	Rows    int `json:"rows" db:"rows"`
}

// Room is a logical grouping of Computers arranged on a grid. Constraint:
// for every Computer assigned to a Room, 0 <= PosX < Columns and
// 0 <= PosY < Rows; (RoomID, PosX, PosY) is unique.
type Room struct {
	RoomID      int64     `json:"roomId" db:"room_id"`
	Name        string    `json:"name" db:"name"`
	Columns     int       `json:"columns" db:"columns"`
	Rows        int       `json:"rows" db:"rows"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// Layout returns the Room's grid bounds.
func (r *Room) Layout() RoomLayout {
	return RoomLayout{Columns: r.Columns, Rows: r.Rows}
}

// Contains reports whether (x, y) is within the Room's grid.
func (l RoomLayout) Contains(x, y int) bool {
	return x >= 0 && x < l.Columns && y >= 0 && y < l.Rows
}

// UserRoomAssignment is the authorization edge: a non-admin User may
// interact with a Computer iff an assignment exists for its Room.
// (UserID, RoomID) is compound-unique.
type UserRoomAssignment struct {
	UserID    int64     `json:"userId" db:"user_id"`
	RoomID    int64     `json:"roomId" db:"room_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// CreateRoomRequest creates a new Room.
type CreateRoomRequest struct {
	Name        string `json:"name" binding:"required" validate:"required,min=1,max=100"`
	Columns     int    `json:"columns" binding:"required" validate:"required,gt=0"`
	Rows        int    `json:"rows" binding:"required" validate:"required,gt=0"`
	Description string `json:"description,omitempty"`
}
