// Package db provides PostgreSQL database access for the CMS coordination
// core.
//
// This file implements the AgentVersion repository backing the Version
// Catalog (C7): ingest bookkeeping and the single-stable-row invariant.
package db

import (
	"context"
	"database/sql"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/apperrors"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
)

// AgentVersionRepo is the narrow repository interface the Version
// Catalog depends on.
type AgentVersionRepo interface {
	CreateAgentVersion(ctx context.Context, v *models.AgentVersion) (*models.AgentVersion, error)
	FindAgentVersionByID(ctx context.Context, versionID int64) (*models.AgentVersion, error)
	FindStableVersion(ctx context.Context) (*models.AgentVersion, error)
	ListAgentVersions(ctx context.Context) ([]*models.AgentVersion, error)
	UpsertAgentVersionStability(ctx context.Context, versionID int64, stable bool) error
}

// AgentVersionDB is the PostgreSQL-backed AgentVersionRepo.
type AgentVersionDB struct {
	db *sql.DB
}

// NewAgentVersionDB builds an AgentVersionDB over an existing connection
// pool.
func NewAgentVersionDB(sqlDB *sql.DB) *AgentVersionDB {
	return &AgentVersionDB{db: sqlDB}
}

const agentVersionColumns = `version_id, version, checksum_sha256, download_url, file_path, file_size, notes, is_stable, created_at`

func scanAgentVersion(row *sql.Row) (*models.AgentVersion, error) {
	var v models.AgentVersion
	var notes sql.NullString
	err := row.Scan(&v.VersionID, &v.Version, &v.ChecksumSHA256, &v.DownloadURL, &v.FilePath, &v.FileSize, &notes, &v.IsStable, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("agent version")
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	v.Notes = notes.String
	return &v, nil
}

// CreateAgentVersion inserts a new row with IsStable = false, per C7's
// ingest operation.
func (a *AgentVersionDB) CreateAgentVersion(ctx context.Context, v *models.AgentVersion) (*models.AgentVersion, error) {
	row := a.db.QueryRowContext(ctx, `
		INSERT INTO agent_versions (version, checksum_sha256, download_url, file_path, file_size, notes, is_stable)
		VALUES ($1, $2, $3, $4, $5, $6, false)
		RETURNING `+agentVersionColumns,
		v.Version, v.ChecksumSHA256, v.DownloadURL, v.FilePath, v.FileSize, v.Notes,
	)
	return scanAgentVersion(row)
}

// FindAgentVersionByID looks up a single row by id.
func (a *AgentVersionDB) FindAgentVersionByID(ctx context.Context, versionID int64) (*models.AgentVersion, error) {
	row := a.db.QueryRowContext(ctx, `SELECT `+agentVersionColumns+` FROM agent_versions WHERE version_id = $1`, versionID)
	return scanAgentVersion(row)
}

// FindStableVersion returns the row with is_stable = true, if any, else
// NotFound.
func (a *AgentVersionDB) FindStableVersion(ctx context.Context) (*models.AgentVersion, error) {
	row := a.db.QueryRowContext(ctx, `SELECT `+agentVersionColumns+` FROM agent_versions WHERE is_stable = true ORDER BY created_at DESC LIMIT 1`)
	return scanAgentVersion(row)
}

// ListAgentVersions returns every row ordered is_stable DESC,
// created_at DESC per spec §6's admin listing endpoint.
func (a *AgentVersionDB) ListAgentVersions(ctx context.Context) ([]*models.AgentVersion, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT `+agentVersionColumns+` FROM agent_versions ORDER BY is_stable DESC, created_at DESC`)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	defer rows.Close()

	var out []*models.AgentVersion
	for rows.Next() {
		var v models.AgentVersion
		var notes sql.NullString
		if err := rows.Scan(&v.VersionID, &v.Version, &v.ChecksumSHA256, &v.DownloadURL, &v.FilePath, &v.FileSize, &notes, &v.IsStable, &v.CreatedAt); err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		v.Notes = notes.String
		out = append(out, &v)
	}
	return out, rows.Err()
}

// UpsertAgentVersionStability implements C7's single-row invariant
// atomically: within one transaction it clears is_stable on every other
// row, then sets it (or clears it) on the target row.
func (a *AgentVersionDB) UpsertAgentVersionStability(ctx context.Context, versionID int64, stable bool) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	defer tx.Rollback()

	if stable {
		if _, err := tx.ExecContext(ctx, `UPDATE agent_versions SET is_stable = false WHERE version_id != $1`, versionID); err != nil {
			return apperrors.DatabaseError(err)
		}
	}

	result, err := tx.ExecContext(ctx, `UPDATE agent_versions SET is_stable = $1 WHERE version_id = $2`, stable, versionID)
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.NotFound("agent version")
	}

	if err := tx.Commit(); err != nil {
		return apperrors.DatabaseError(err)
	}
	return nil
}
