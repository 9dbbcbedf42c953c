// Package versioncatalog implements the Version Catalog (C7): the
// ordered set of agent packages, stable-version selection, and
// checksum-verified package storage/serving.
package versioncatalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/apperrors"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/db"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/logger"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
)

// DefaultMaxUploadBytes bounds an ingested package at 50 MiB.
const DefaultMaxUploadBytes = 50 * 1024 * 1024

// allowedExtensions is the closed set of acceptable package extensions.
var allowedExtensions = map[string]bool{
	".zip": true,
	".gz":  true,
	".tar": true,
}

// Notifier is the narrow view of the Session Hub the catalog depends on
// to announce a stable-version promotion fleet-wide.
type Notifier interface {
	NotifyNewVersionAvailable(payload models.NewVersionAvailableEvent)
}

// Catalog owns package storage under dataDir/agent-packages and the
// AgentVersion rows describing each ingested package.
type Catalog struct {
	versions       db.AgentVersionRepo
	notifier       Notifier
	packageDir     string
	maxUploadBytes int64
}

// New builds a Catalog. packageDir is created if absent.
func New(versions db.AgentVersionRepo, notifier Notifier, dataDir string, maxUploadBytes int64) (*Catalog, error) {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	packageDir := filepath.Join(dataDir, "agent-packages")
	if err := os.MkdirAll(packageDir, 0o755); err != nil {
		return nil, fmt.Errorf("versioncatalog: create package dir: %w", err)
	}
	return &Catalog{
		versions:       versions,
		notifier:       notifier,
		packageDir:     packageDir,
		maxUploadBytes: maxUploadBytes,
	}, nil
}

// Ingest streams content to a content-addressable path under the package
// directory, computing checksum_sha256 over the stored bytes, and
// records a new AgentVersion row with is_stable = false.
func (c *Catalog) Ingest(ctx context.Context, originalFilename, version, notes string, content io.Reader) (*models.AgentVersion, error) {
	if version == "" {
		return nil, apperrors.ValidationFailed("version is required")
	}

	ext := strings.ToLower(filepath.Ext(originalFilename))
	if !allowedExtensions[ext] {
		return nil, apperrors.ValidationFailed("package extension must be one of .zip, .gz, .tar")
	}

	tmp, err := os.CreateTemp(c.packageDir, "ingest-*.tmp")
	if err != nil {
		return nil, apperrors.InternalServer("failed to stage upload")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hasher := sha256.New()
	limited := io.LimitReader(content, c.maxUploadBytes+1)
	written, err := io.Copy(io.MultiWriter(tmp, hasher), limited)
	closeErr := tmp.Close()
	if err != nil {
		return nil, apperrors.InternalServer("failed to stage upload")
	}
	if closeErr != nil {
		return nil, apperrors.InternalServer("failed to stage upload")
	}
	if written > c.maxUploadBytes {
		return nil, apperrors.ValidationFailed("package exceeds maximum upload size")
	}

	checksum := hex.EncodeToString(hasher.Sum(nil))
	finalName := checksum + ext
	finalPath := filepath.Join(c.packageDir, finalName)

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return nil, apperrors.InternalServer("failed to persist package")
	}

	v := &models.AgentVersion{
		Version:        version,
		ChecksumSHA256: checksum,
		DownloadURL:    "/agent/agent-packages/" + finalName,
		FilePath:       finalPath,
		FileSize:       written,
		Notes:          notes,
	}

	created, err := c.versions.CreateAgentVersion(ctx, v)
	if err != nil {
		os.Remove(finalPath)
		return nil, err
	}

	logger.Version().Info().Str("version", created.Version).Str("checksum", created.ChecksumSHA256).Msg("agent package ingested")
	return created, nil
}

// SetStable toggles the single-stable-row invariant on versionID. On
// promotion (flag = true), it notifies every connected agent through the
// hub.
func (c *Catalog) SetStable(ctx context.Context, versionID int64, stable bool) error {
	if err := c.versions.UpsertAgentVersionStability(ctx, versionID, stable); err != nil {
		return err
	}
	if !stable || c.notifier == nil {
		return nil
	}

	v, err := c.versions.FindAgentVersionByID(ctx, versionID)
	if err != nil {
		return err
	}

	c.notifier.NotifyNewVersionAvailable(models.NewVersionAvailableEvent{
		Version:        v.Version,
		DownloadURL:    v.DownloadURL,
		ChecksumSHA256: v.ChecksumSHA256,
		Notes:          v.Notes,
	})
	return nil
}

// LatestStableNewerThan returns the current stable AgentVersion iff its
// semver is strictly greater than currentVersion, or unconditionally if
// currentVersion is absent. Returns (nil, nil) when no newer version
// exists.
func (c *Catalog) LatestStableNewerThan(ctx context.Context, currentVersion string) (*models.AgentVersion, error) {
	stable, err := c.versions.FindStableVersion(ctx)
	if err != nil {
		if appErr, ok := err.(*apperrors.AppError); ok && appErr.Code == apperrors.ErrCodeNotFound {
			return nil, nil
		}
		return nil, err
	}

	if currentVersion == "" {
		return stable, nil
	}

	current, err := semver.NewVersion(currentVersion)
	if err != nil {
		// An agent reporting a malformed version string can't be safely
		// compared; treat it the same as "no version reported".
		return stable, nil
	}

	latest, err := semver.NewVersion(stable.Version)
	if err != nil {
		return nil, apperrors.InternalServer("stable version record has malformed semver")
	}

	if latest.GreaterThan(current) {
		return stable, nil
	}
	return nil, nil
}

// ListVersions returns every row ordered is_stable DESC, created_at DESC.
func (c *Catalog) ListVersions(ctx context.Context) ([]*models.AgentVersion, error) {
	return c.versions.ListAgentVersions(ctx)
}

// Serve resolves filename under the package directory, rejecting any
// path separator as traversal.
func (c *Catalog) Serve(filename string) (string, error) {
	if strings.ContainsAny(filename, "/\\") {
		return "", apperrors.InvalidFilename()
	}

	path := filepath.Join(c.packageDir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", apperrors.NotFound("agent package")
	}
	return path, nil
}
