package db

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
)

func computerRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"computer_id", "agent_id", "agent_token_hash", "room_id", "pos_x", "pos_y",
		"name", "hardware_info", "errors", "have_active_errors", "created_at", "updated_at",
	})
}

func TestFindComputerByAgentID_NotFound(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	computerDB := NewComputerDB(sqlDB)
	ctx := context.Background()

	mock.ExpectQuery("SELECT .+ FROM computers WHERE agent_id = \\$1").
		WithArgs("A12345678").
		WillReturnRows(computerRows())

	_, err = computerDB.FindComputerByAgentID(ctx, "A12345678")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindComputerByAgentID_Success(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	computerDB := NewComputerDB(sqlDB)
	ctx := context.Background()

	rows := computerRows().AddRow(
		42, "A12345678", nil, 1, 2, 3, "Lab-PC-3", []byte(`{}`), []byte(`[]`), false, fixedTime, fixedTime,
	)
	mock.ExpectQuery("SELECT .+ FROM computers WHERE agent_id = \\$1").
		WithArgs("A12345678").
		WillReturnRows(rows)

	computer, err := computerDB.FindComputerByAgentID(ctx, "A12345678")
	require.NoError(t, err)
	assert.Equal(t, int64(42), computer.ComputerID)
	assert.False(t, computer.HaveActiveErrors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendError_RecomputesActiveFlag(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	computerDB := NewComputerDB(sqlDB)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT errors FROM computers WHERE agent_id = \\$1 FOR UPDATE").
		WithArgs("A12345678").
		WillReturnRows(sqlmock.NewRows([]string{"errors"}).AddRow([]byte(`[]`)))
	mock.ExpectExec("UPDATE computers SET errors = \\$1, have_active_errors = \\$2, updated_at = NOW\\(\\) WHERE agent_id = \\$3").
		WithArgs(sqlmock.AnyArg(), true, "A12345678").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = computerDB.AppendError(ctx, "A12345678", models.ErrorRecord{
		ErrorID: "e1", ErrorType: "disk_full", ErrorMessage: "disk full",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountUnresolvedErrors(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	computerDB := NewComputerDB(sqlDB)
	ctx := context.Background()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM computers WHERE have_active_errors = true").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := computerDB.CountUnresolvedErrors(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
