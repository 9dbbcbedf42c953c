// Package db provides PostgreSQL database access for the CMS coordination
// core.
//
// This file implements the core database connection and lifecycle
// management: connection pooling, schema migration, and admin-account
// bootstrap. All persistence is reached through the narrow repository
// methods in the rest of this package (users.go, refresh_tokens.go,
// rooms.go, computers.go, agent_versions.go); this file only owns the
// *sql.DB handle and the CREATE TABLE migrations.
package db

import (
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/credential"
)

// Config holds database connection configuration.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Database wraps a pooled PostgreSQL connection.
type Database struct {
	db *sql.DB
}

// validateConfig rejects configuration values that cannot be safely
// interpolated into a connection string.
func validateConfig(config Config) error {
	if config.Host == "" {
		return fmt.Errorf("database host cannot be empty")
	}
	if net.ParseIP(config.Host) == nil {
		hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-\.]{0,253}[a-zA-Z0-9])?$`)
		if !hostnameRegex.MatchString(config.Host) {
			return fmt.Errorf("invalid database host: %s", config.Host)
		}
	}

	if config.Port == "" {
		return fmt.Errorf("database port cannot be empty")
	}
	port, err := strconv.Atoi(config.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid database port: %s (must be 1-65535)", config.Port)
	}

	if config.User == "" {
		return fmt.Errorf("database user cannot be empty")
	}
	userRegex := regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	if !userRegex.MatchString(config.User) {
		return fmt.Errorf("invalid database user: %s", config.User)
	}

	if config.DBName == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	dbNameRegex := regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	if !dbNameRegex.MatchString(config.DBName) {
		return fmt.Errorf("invalid database name: %s", config.DBName)
	}

	validSSLModes := []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	if config.SSLMode != "" {
		valid := false
		for _, mode := range validSSLModes {
			if config.SSLMode == mode {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid SSL mode: %s (must be one of: %s)", config.SSLMode, strings.Join(validSSLModes, ", "))
		}
	}

	if config.SSLMode == "" || config.SSLMode == "disable" {
		log.Println("WARNING: Database SSL/TLS is DISABLED - this is insecure for production")
	}

	return nil
}

// NewDatabase opens a pooled PostgreSQL connection and pings it.
func NewDatabase(config Config) (*Database, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(1 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{db: sqlDB}, nil
}

// NewDatabaseForTesting wraps an existing *sql.DB (typically a sqlmock
// connection). Not for production use.
func NewDatabaseForTesting(sqlDB *sql.DB) *Database {
	return &Database{db: sqlDB}
}

// Close closes the underlying connection pool.
func (d *Database) Close() error {
	return d.db.Close()
}

// DB returns the underlying *sql.DB for repository methods.
func (d *Database) DB() *sql.DB {
	return d.db
}

// Migrate creates the coordination core's schema if it does not already
// exist. Table layout follows spec.md §3's data model.
func (d *Database) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id SERIAL PRIMARY KEY,
			username VARCHAR(255) UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			role VARCHAR(20) NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'user')),
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS refresh_tokens (
			token_id SERIAL PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			selector VARCHAR(32) UNIQUE NOT NULL,
			verifier_hash TEXT NOT NULL,
			issued_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user_id ON refresh_tokens(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires_at ON refresh_tokens(expires_at)`,

		`CREATE TABLE IF NOT EXISTS rooms (
			room_id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			columns INTEGER NOT NULL CHECK (columns > 0),
			rows INTEGER NOT NULL CHECK (rows > 0),
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS computers (
			computer_id SERIAL PRIMARY KEY,
			agent_id VARCHAR(36) UNIQUE NOT NULL,
			agent_token_hash TEXT,
			room_id INTEGER REFERENCES rooms(room_id) ON DELETE SET NULL,
			pos_x INTEGER NOT NULL DEFAULT 0,
			pos_y INTEGER NOT NULL DEFAULT 0,
			name VARCHAR(255) NOT NULL DEFAULT '',
			hardware_info JSONB NOT NULL DEFAULT '{}',
			errors JSONB NOT NULL DEFAULT '[]',
			have_active_errors BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT uq_room_position UNIQUE (room_id, pos_x, pos_y)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_computers_agent_id ON computers(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_computers_room_id ON computers(room_id)`,

		`CREATE TABLE IF NOT EXISTS user_room_assignments (
			user_id INTEGER NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			room_id INTEGER NOT NULL REFERENCES rooms(room_id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, room_id)
		)`,

		`CREATE TABLE IF NOT EXISTS agent_versions (
			version_id SERIAL PRIMARY KEY,
			version VARCHAR(32) NOT NULL,
			checksum_sha256 VARCHAR(64) NOT NULL,
			download_url TEXT NOT NULL,
			file_path TEXT NOT NULL,
			file_size BIGINT NOT NULL,
			notes TEXT,
			is_stable BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_versions_stable ON agent_versions(is_stable)`,

		// Single-row partial unique index enforcing "at most one stable
		// version" (invariant 2 of spec §8) at the storage layer, not just
		// in application code.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_agent_versions_one_stable
			ON agent_versions ((is_stable)) WHERE is_stable = true`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	if err := d.ensureAdminPassword(); err != nil {
		return fmt.Errorf("admin bootstrap failed: %w", err)
	}

	return nil
}

// ensureAdminPassword creates the "admin" user on first run, taking its
// password from ADMIN_PASSWORD if set. It never overwrites an existing
// password hash.
func (d *Database) ensureAdminPassword() error {
	var passwordHash sql.NullString
	err := d.db.QueryRow(`SELECT password_hash FROM users WHERE username = 'admin'`).Scan(&passwordHash)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check admin user: %w", err)
	}

	if err == nil && passwordHash.Valid && passwordHash.String != "" {
		return nil
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		log.Println("WARNING: no ADMIN_PASSWORD set and no admin user exists yet; set ADMIN_PASSWORD and restart, or create one via an administrative tool")
		return nil
	}
	if len(password) < 8 {
		return fmt.Errorf("ADMIN_PASSWORD must be at least 8 characters long")
	}

	hasher := credential.NewHasher(credential.DefaultParams())
	hash, hashErr := hasher.HashToken(password)
	if hashErr != nil {
		return fmt.Errorf("failed to hash admin password: %w", hashErr)
	}

	if err == sql.ErrNoRows {
		_, execErr := d.db.Exec(
			`INSERT INTO users (username, password_hash, role, active) VALUES ('admin', $1, 'admin', true)`,
			hash,
		)
		if execErr != nil {
			return fmt.Errorf("failed to create admin user: %w", execErr)
		}
		log.Println("admin user created from ADMIN_PASSWORD")
		return nil
	}

	_, execErr := d.db.Exec(`UPDATE users SET password_hash = $1, updated_at = NOW() WHERE username = 'admin'`, hash)
	if execErr != nil {
		return fmt.Errorf("failed to set admin password: %w", execErr)
	}
	log.Println("admin password configured from ADMIN_PASSWORD")
	return nil
}
