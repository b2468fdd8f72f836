package server

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nulzo/claude-gate/internal/cache"
	"github.com/nulzo/claude-gate/internal/oauth"
	"github.com/nulzo/claude-gate/internal/quota"
	"github.com/nulzo/claude-gate/internal/upstream"
)

const subscriptionCacheKey = "subscription:state"

// NewResetProvider returns the quota engine's source of subscription window
// resets: the cached upstream state, refreshed inline when a cached reset
// time has passed. All failures degrade to the wall-clock anchors.
func NewResetProvider(c cache.Service, mgr *oauth.Manager, client *upstream.Client, logger *zap.Logger) quota.ResetProvider {
	return func(ctx context.Context) upstream.SubscriptionState {
		var cached upstream.SubscriptionState
		err := c.Get(ctx, subscriptionCacheKey, &cached)

		now := time.Now().UnixMilli()
		stale := err != nil ||
			cached.FiveHourResetAt == 0 ||
			cached.FiveHourResetAt <= now ||
			(cached.SevenDayResetAt != 0 && cached.SevenDayResetAt <= now)
		if !stale {
			return cached
		}

		token, err := mgr.Token(ctx)
		if err != nil {
			return cached
		}
		usage, err := client.FetchSubscription(ctx, token)
		if err != nil {
			logger.Debug("subscription usage fetch failed", zap.Error(err))
			return cached
		}

		fresh := upstream.ExtractState(usage)
		if fresh.FiveHourResetAt > 0 {
			_ = c.Set(ctx, subscriptionCacheKey, fresh, 24*time.Hour)
			return fresh
		}
		return cached
	}
}
