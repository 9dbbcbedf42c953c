package db

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
)

func TestCreateAgentVersion_Success(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	versionDB := NewAgentVersionDB(sqlDB)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"version_id", "version", "checksum_sha256", "download_url", "file_path", "file_size", "notes", "is_stable", "created_at"}).
		AddRow(1, "1.2.0", "abc123", "/agent-packages/1.2.0.zip", "/data/agent-packages/1.2.0.zip", 1024, "", false, fixedTime)

	mock.ExpectQuery("INSERT INTO agent_versions").
		WithArgs("1.2.0", "abc123", "/agent-packages/1.2.0.zip", "/data/agent-packages/1.2.0.zip", int64(1024), "").
		WillReturnRows(rows)

	v, err := versionDB.CreateAgentVersion(ctx, &models.AgentVersion{
		Version: "1.2.0", ChecksumSHA256: "abc123", DownloadURL: "/agent-packages/1.2.0.zip",
		FilePath: "/data/agent-packages/1.2.0.zip", FileSize: 1024,
	})
	require.NoError(t, err)
	assert.False(t, v.IsStable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertAgentVersionStability_PromoteClearsOthers(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	versionDB := NewAgentVersionDB(sqlDB)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE agent_versions SET is_stable = false WHERE version_id != \\$1").
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE agent_versions SET is_stable = \\$1 WHERE version_id = \\$2").
		WithArgs(true, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = versionDB.UpsertAgentVersionStability(ctx, 2, true)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertAgentVersionStability_NotFound(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	versionDB := NewAgentVersionDB(sqlDB)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE agent_versions SET is_stable = false WHERE version_id != \\$1").
		WithArgs(int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE agent_versions SET is_stable = \\$1 WHERE version_id = \\$2").
		WithArgs(true, int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = versionDB.UpsertAgentVersionStability(ctx, 99, true)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
