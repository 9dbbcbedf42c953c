package db

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserHasRoomAssignment(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	roomDB := NewRoomDB(sqlDB)
	ctx := context.Background()

	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM user_room_assignments WHERE user_id = \\$1 AND room_id = \\$2\\)").
		WithArgs(int64(7), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := roomDB.UserHasRoomAssignment(ctx, 7, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindRoomByID_Success(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	roomDB := NewRoomDB(sqlDB)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"room_id", "name", "columns", "rows", "description", "created_at", "updated_at"}).
		AddRow(1, "Lab-1", 10, 5, "", fixedTime, fixedTime)
	mock.ExpectQuery("SELECT .+ FROM rooms WHERE room_id = \\$1").
		WithArgs(int64(1)).
		WillReturnRows(rows)

	room, err := roomDB.FindRoomByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Lab-1", room.Name)
	assert.True(t, room.Layout().Contains(9, 4))
	assert.False(t, room.Layout().Contains(10, 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}
