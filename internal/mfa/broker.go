// Package mfa implements the MFA Broker (C3): short-lived bootstrap codes
// an agent exchanges for its long-lived agent token.
//
// The broker holds at most one MFAEntry per agent_id; regenerating
// replaces the prior entry outright, and a successful verify consumes it.
// The cache is process-local by default (an in-memory map behind a
// mutex), matching the teacher's in-process session registries; when
// the Redis cache is enabled (CACHE_ENABLED=true), a Redis-backed mode takes over so
// horizontally-scaled deployments share one broker, per spec §9's "MFA
// cache scope" note.
package mfa

import (
	"context"
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/cache"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/credential"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/models"
)

// TTL is the lifetime of an MFA entry from its last Issue call.
const TTL = 5 * time.Minute

// entry is the process-local MFAEntry representation.
type entry struct {
	code         string
	positionInfo models.PositionInfo
	expiresAt    time.Time
}

// Broker implements Issue/Verify. Safe for concurrent use.
type Broker struct {
	hasher *credential.Hasher
	cache  *cache.Cache // optional, may be nil

	mu      sync.Mutex
	entries map[string]entry
}

// NewBroker builds a Broker. redisCache may be nil, in which case the
// broker runs process-local only.
func NewBroker(hasher *credential.Hasher, redisCache *cache.Cache) *Broker {
	return &Broker{
		hasher:  hasher,
		cache:   redisCache,
		entries: make(map[string]entry),
	}
}

// redisPayload is the Redis-backed entry representation.
type redisPayload struct {
	Code     string              `json:"code"`
	Position models.PositionInfo `json:"position"`
}


// Issue generates a fresh code, replaces any prior entry for agentID, and
// returns the plaintext code. Callers are responsible for delivering it
// out-of-band (via the Session Hub's admin room notification).
func (b *Broker) Issue(ctx context.Context, agentID string, positionInfo models.PositionInfo) (string, error) {
	code, err := b.hasher.GenerateMFACode()
	if err != nil {
		return "", err
	}

	if b.cache != nil && b.cache.IsEnabled() {
		payload := redisPayload{Code: code, Position: positionInfo}
		if err := b.cache.Set(ctx, cache.MFAKey(agentID), payload, TTL); err != nil {
			return "", err
		}
		return code, nil
	}

	b.mu.Lock()
	b.entries[agentID] = entry{code: code, positionInfo: positionInfo, expiresAt: time.Now().Add(TTL)}
	b.mu.Unlock()

	return code, nil
}

// Verify checks presentedCode (case-insensitive) against the cached code
// bound to agentID. On success it consumes the entry and returns the
// stored position info. On failure the entry is left intact so the agent
// can retry within the TTL.
func (b *Broker) Verify(ctx context.Context, agentID, presentedCode string) (bool, models.PositionInfo, error) {
	presented := strings.ToUpper(presentedCode)

	if b.cache != nil && b.cache.IsEnabled() {
		var payload redisPayload
		if err := b.cache.Get(ctx, cache.MFAKey(agentID), &payload); err != nil {
			// Miss (expired, never issued, or unknown agent) is not an
			// error at this layer — Verify simply fails.
			return false, models.PositionInfo{}, nil
		}
		if !constantTimeEqual(strings.ToUpper(payload.Code), presented) {
			return false, models.PositionInfo{}, nil
		}
		_ = b.cache.Delete(ctx, cache.MFAKey(agentID))
		return true, payload.Position, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[agentID]
	if !ok || time.Now().After(e.expiresAt) {
		delete(b.entries, agentID)
		return false, models.PositionInfo{}, nil
	}

	if !constantTimeEqual(strings.ToUpper(e.code), presented) {
		return false, models.PositionInfo{}, nil
	}

	delete(b.entries, agentID)
	return true, e.positionInfo, nil
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// sweepExpired removes process-local entries past their TTL. Verify's own
// expiry check makes this a memory-bound cleanup, not a correctness
// requirement — without it a flood of unclaimed MFA issues would grow the
// map forever.
func (b *Broker) sweepExpired() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	for id, e := range b.entries {
		if now.After(e.expiresAt) {
			delete(b.entries, id)
		}
	}
}

// StartJanitor runs sweepExpired on interval until ctx is cancelled. A
// no-op in Redis-backed mode, where TTL expiry is handled by Redis
// itself.
func (b *Broker) StartJanitor(ctx context.Context, interval time.Duration) {
	if b.cache != nil && b.cache.IsEnabled() {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.sweepExpired()
			}
		}
	}()
}
