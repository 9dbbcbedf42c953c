package auth

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/cache"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/db"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/logger"
)

// sweepLockTTL bounds how long an instance holds the distributed sweep
// lock, in case it dies mid-sweep.
const sweepLockTTL = 10 * time.Minute

// StartSweepScheduler runs the expired-refresh-token sweep on cronSpec
// (default daily) until ctx is cancelled. When redisCache is enabled,
// instances race for a SetNX lock so only one sweeps per tick in a
// horizontally-scaled deployment; otherwise every instance sweeps
// unconditionally (harmless — DELETE ... WHERE expires_at < NOW() is
// idempotent).
func StartSweepScheduler(ctx context.Context, cronSpec string, refreshTokens db.RefreshTokenRepo, redisCache *cache.Cache) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(cronSpec, func() {
		runSweep(ctx, refreshTokens, redisCache)
	})
	if err != nil {
		return nil, err
	}
	c.Start()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()

	return c, nil
}

func runSweep(ctx context.Context, refreshTokens db.RefreshTokenRepo, redisCache *cache.Cache) {
	log := logger.Security()

	if redisCache != nil && redisCache.IsEnabled() {
		acquired, err := redisCache.SetNX(ctx, cache.RefreshSweepLockKey(), true, sweepLockTTL)
		if err != nil {
			log.Error().Err(err).Msg("refresh token sweep: lock acquisition failed")
			return
		}
		if !acquired {
			log.Debug().Msg("refresh token sweep: lock held by another instance, skipping")
			return
		}
	}

	n, err := refreshTokens.SweepExpiredRefreshTokens(ctx)
	if err != nil {
		log.Error().Err(err).Msg("refresh token sweep failed")
		return
	}
	log.Info().Int64("removed", n).Msg("refresh token sweep complete")
}
