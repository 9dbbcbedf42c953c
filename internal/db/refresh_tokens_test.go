package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRefreshToken_Success(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	rtDB := NewRefreshTokenDB(sqlDB)
	ctx := context.Background()
	expiresAt := fixedTime.Add(30 * 24 * time.Hour)

	rows := sqlmock.NewRows([]string{"token_id", "user_id", "selector", "verifier_hash", "issued_at", "expires_at"}).
		AddRow(1, 7, "sel123", "verifierhash", fixedTime, expiresAt)

	mock.ExpectQuery("INSERT INTO refresh_tokens").
		WithArgs(int64(7), "sel123", "verifierhash", expiresAt).
		WillReturnRows(rows)

	rt, err := rtDB.CreateRefreshToken(ctx, 7, "sel123", "verifierhash", expiresAt)
	require.NoError(t, err)
	assert.Equal(t, "sel123", rt.Selector)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindRefreshTokenBySelector_NotFound(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	rtDB := NewRefreshTokenDB(sqlDB)
	ctx := context.Background()

	mock.ExpectQuery("SELECT .+ FROM refresh_tokens WHERE selector = \\$1").
		WithArgs("unknown").
		WillReturnRows(sqlmock.NewRows([]string{"token_id", "user_id", "selector", "verifier_hash", "issued_at", "expires_at"}))

	_, err = rtDB.FindRefreshTokenBySelector(ctx, "unknown")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDestroyRefreshTokensByUser(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	rtDB := NewRefreshTokenDB(sqlDB)
	ctx := context.Background()

	mock.ExpectExec("DELETE FROM refresh_tokens WHERE user_id = \\$1").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	err = rtDB.DestroyRefreshTokensByUser(ctx, 7)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepExpiredRefreshTokens(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	rtDB := NewRefreshTokenDB(sqlDB)
	ctx := context.Background()

	mock.ExpectExec("DELETE FROM refresh_tokens WHERE expires_at < NOW\\(\\)").
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := rtDB.SweepExpiredRefreshTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
