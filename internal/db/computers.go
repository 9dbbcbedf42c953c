// Package db provides PostgreSQL database access for the CMS coordination
// core.
//
// This file implements the Computer repository: the persistence façade
// the Agent Registry (C4) sits on top of, plus the hardware-info and
// error-report mutations agents drive after bootstrap.
package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/apperrors"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
)

// ComputerRepo is the narrow repository interface the Agent Registry and
// admin/version surfaces depend on.
type ComputerRepo interface {
	FindComputerByAgentID(ctx context.Context, agentID string) (*models.Computer, error)
	FindComputerByID(ctx context.Context, computerID int64) (*models.Computer, error)
	FindComputerAtPosition(ctx context.Context, roomID int64, posX, posY int) (*models.Computer, error)
	SaveComputer(ctx context.Context, computer *models.Computer) error
	UpdateHardwareInfo(ctx context.Context, agentID string, hw models.HardwareInfo) error
	AppendError(ctx context.Context, agentID string, record models.ErrorRecord) error
	ListComputers(ctx context.Context) ([]*models.Computer, error)
	CountUnresolvedErrors(ctx context.Context) (int64, error)
}

// ComputerDB is the PostgreSQL-backed ComputerRepo.
type ComputerDB struct {
	db *sql.DB
}

// NewComputerDB builds a ComputerDB over an existing connection pool.
func NewComputerDB(sqlDB *sql.DB) *ComputerDB {
	return &ComputerDB{db: sqlDB}
}

const computerColumns = `computer_id, agent_id, agent_token_hash, room_id, pos_x, pos_y, name, hardware_info, errors, have_active_errors, created_at, updated_at`

func scanComputerRow(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.Computer, error) {
	var c models.Computer
	err := scanner.Scan(
		&c.ComputerID, &c.AgentID, &c.AgentTokenHash, &c.RoomID, &c.PosX, &c.PosY,
		&c.Name, &c.HardwareInfo, &c.Errors, &c.HaveActiveErrors, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("computer")
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return &c, nil
}

// FindComputerByAgentID looks up a Computer by its agent-chosen opaque id.
func (c *ComputerDB) FindComputerByAgentID(ctx context.Context, agentID string) (*models.Computer, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+computerColumns+` FROM computers WHERE agent_id = $1`, agentID)
	return scanComputerRow(row)
}

// FindComputerByID looks up a Computer by its internal id.
func (c *ComputerDB) FindComputerByID(ctx context.Context, computerID int64) (*models.Computer, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+computerColumns+` FROM computers WHERE computer_id = $1`, computerID)
	return scanComputerRow(row)
}

// FindComputerAtPosition looks up the Computer (if any) occupying
// (roomID, posX, posY). Used to detect PositionOccupied against a
// *different* agent_id.
func (c *ComputerDB) FindComputerAtPosition(ctx context.Context, roomID int64, posX, posY int) (*models.Computer, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT `+computerColumns+` FROM computers WHERE room_id = $1 AND pos_x = $2 AND pos_y = $3`,
		roomID, posX, posY,
	)
	return scanComputerRow(row)
}

// SaveComputer upserts a Computer keyed by agent_id: creates the row if
// absent, otherwise updates the mutable fields (token hash, room
// placement, name). have_active_errors is recomputed from Errors to keep
// invariant 1 intact regardless of caller discipline.
func (c *ComputerDB) SaveComputer(ctx context.Context, computer *models.Computer) error {
	computer.HaveActiveErrors = computer.Errors.HasActive()

	row := c.db.QueryRowContext(ctx, `
		INSERT INTO computers (agent_id, agent_token_hash, room_id, pos_x, pos_y, name, hardware_info, errors, have_active_errors, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (agent_id) DO UPDATE SET
			agent_token_hash = EXCLUDED.agent_token_hash,
			room_id = EXCLUDED.room_id,
			pos_x = EXCLUDED.pos_x,
			pos_y = EXCLUDED.pos_y,
			name = EXCLUDED.name,
			hardware_info = EXCLUDED.hardware_info,
			errors = EXCLUDED.errors,
			have_active_errors = EXCLUDED.have_active_errors,
			updated_at = NOW()
		RETURNING computer_id, created_at, updated_at`,
		computer.AgentID, computer.AgentTokenHash, computer.RoomID, computer.PosX, computer.PosY,
		computer.Name, computer.HardwareInfo, computer.Errors, computer.HaveActiveErrors,
	)

	if err := row.Scan(&computer.ComputerID, &computer.CreatedAt, &computer.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return apperrors.PositionOccupied("position already occupied in this room")
		}
		return apperrors.DatabaseError(err)
	}
	return nil
}

// UpdateHardwareInfo merges a hardware-info report into a Computer's
// stored blob.
func (c *ComputerDB) UpdateHardwareInfo(ctx context.Context, agentID string, hw models.HardwareInfo) error {
	result, err := c.db.ExecContext(ctx, `
		UPDATE computers SET hardware_info = $1, updated_at = NOW() WHERE agent_id = $2`,
		hw, agentID,
	)
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.NotFound("computer")
	}
	return nil
}

// AppendError appends an ErrorRecord to a Computer's error list and
// recomputes have_active_errors (invariant 1), inside a single
// transaction so the read-modify-write is race-free under concurrent
// error reports for the same agent.
func (c *ComputerDB) AppendError(ctx context.Context, agentID string, record models.ErrorRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	defer tx.Rollback()

	var errs models.ErrorRecordList
	row := tx.QueryRowContext(ctx, `SELECT errors FROM computers WHERE agent_id = $1 FOR UPDATE`, agentID)
	if err := row.Scan(&errs); err == sql.ErrNoRows {
		return apperrors.NotFound("computer")
	} else if err != nil {
		return apperrors.DatabaseError(err)
	}

	if record.ReportedAt.IsZero() {
		record.ReportedAt = time.Now().UTC()
	}
	errs = append(errs, record)

	_, err = tx.ExecContext(ctx, `
		UPDATE computers SET errors = $1, have_active_errors = $2, updated_at = NOW() WHERE agent_id = $3`,
		errs, errs.HasActive(), agentID,
	)
	if err != nil {
		return apperrors.DatabaseError(err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.DatabaseError(err)
	}
	return nil
}

// ListComputers returns every Computer ordered by id.
func (c *ComputerDB) ListComputers(ctx context.Context) ([]*models.Computer, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+computerColumns+` FROM computers ORDER BY computer_id`)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	defer rows.Close()

	var out []*models.Computer
	for rows.Next() {
		computer, err := scanComputerRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, computer)
	}
	return out, rows.Err()
}

// CountUnresolvedErrors returns the total number of Computers with
// have_active_errors = true, for the admin stats endpoint.
func (c *ComputerDB) CountUnresolvedErrors(ctx context.Context) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM computers WHERE have_active_errors = true`).Scan(&count)
	if err != nil {
		return 0, apperrors.DatabaseError(err)
	}
	return count, nil
}
