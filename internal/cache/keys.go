// Package cache provides Redis-based caching for the CMS coordination
// core.
//
// This file defines key naming conventions for the two optional
// Redis-backed concerns named in spec §9: the horizontally-scaled MFA
// Broker cache, and the distributed lock guarding the daily
// refresh-token sweep so only one instance runs it.
package cache

import "fmt"

const (
	PrefixMFA  = "mfa"
	PrefixLock = "lock"
)

// MFAKey returns the cache key an MFAEntry is stored under for a given
// agent_id.
func MFAKey(agentID string) string {
	return fmt.Sprintf("%s:%s", PrefixMFA, agentID)
}

// RefreshSweepLockKey is the SetNX key used to elect a single instance to
// run the daily expired-refresh-token sweep.
func RefreshSweepLockKey() string {
	return fmt.Sprintf("%s:refresh-token-sweep", PrefixLock)
}
