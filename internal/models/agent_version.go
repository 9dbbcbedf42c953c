package models

import "time"

// AgentVersion is one row in the Version Catalog (C7). Invariant: at most
// one AgentVersion has IsStable == true at any moment. JSON tags follow
// the attribute names spec §3 gives this entity directly.
type AgentVersion struct {
	VersionID      int64     `json:"version_id" db:"version_id"`
	Version        string    `json:"version" db:"version"`
	ChecksumSHA256 string    `json:"checksum_sha256" db:"checksum_sha256"`
	DownloadURL    string    `json:"download_url" db:"download_url"`
	FilePath       string    `json:"-" db:"file_path"`
	FileSize       int64     `json:"file_size" db:"file_size"`
	Notes          string    `json:"notes,omitempty" db:"notes"`
	IsStable       bool      `json:"is_stable" db:"is_stable"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// CheckUpdateResponse is returned from GET /agent/check-update when a newer
// stable version exists. Field names match spec §6's literal response
// shape: {version, download_url, checksum_sha256, notes}.
type CheckUpdateResponse struct {
	Version        string `json:"version"`
	DownloadURL    string `json:"download_url"`
	ChecksumSHA256 string `json:"checksum_sha256"`
	Notes          string `json:"notes,omitempty"`
}

// SetStableRequest toggles the stability flag on an AgentVersion. Field
// name matches spec §6's literal PUT body: {is_stable}.
type SetStableRequest struct {
	IsStable bool `json:"is_stable"`
}

// StatsResponse answers GET /admin/stats with system-wide counters. The
// spec names this endpoint but not its body shape, so field names follow
// the teacher's general camelCase convention rather than a spec-given
// wire contract.
type StatsResponse struct {
	TotalComputers          int64 `json:"totalComputers"`
	ConnectedComputers      int   `json:"connectedComputers"`
	ComputersWithUnresolved int64 `json:"computersWithUnresolvedErrors"`
	TotalRooms              int   `json:"totalRooms"`
	TotalUsers              int   `json:"totalUsers"`
	TotalAgentVersions      int   `json:"totalAgentVersions"`
}

// NewVersionAvailableEvent is broadcast to every agent room on promotion.
// Field names match spec §8 scenario 6's literal payload:
// {version, download_url, checksum_sha256, notes}.
type NewVersionAvailableEvent struct {
	Version        string `json:"version"`
	DownloadURL    string `json:"download_url"`
	ChecksumSHA256 string `json:"checksum_sha256"`
	Notes          string `json:"notes,omitempty"`
}
