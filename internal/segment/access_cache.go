package segment

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/revenueangel/automation-engine/pkg/logging"
)

// CachedAccessChecker memoizes access-check results in Redis so a
// scheduler tick does not repeat the same platform lookup for every
// playbook evaluating the same member. Cache failures fall through to
// the underlying checker.
type CachedAccessChecker struct {
	redis  *redis.Client
	inner  AccessChecker
	ttl    time.Duration
	logger *logging.Logger
}

func NewCachedAccessChecker(client *redis.Client, inner AccessChecker, ttl time.Duration, logger *logging.Logger) *CachedAccessChecker {
	if inner == nil {
		panic("segment: inner access checker required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedAccessChecker{
		redis:  client,
		inner:  inner,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *CachedAccessChecker) cacheKey(userID, resourceID string) string {
	return fmt.Sprintf("segment:access:%s:%s", userID, resourceID)
}

// HasAccess answers from cache when possible, otherwise asks the
// underlying checker and stores the result.
func (c *CachedAccessChecker) HasAccess(ctx context.Context, userID, resourceID string) (bool, error) {
	key := c.cacheKey(userID, resourceID)

	if c.redis != nil {
		val, err := c.redis.Get(ctx, key).Result()
		switch {
		case err == nil:
			return val == "1", nil
		case err != redis.Nil:
			c.logger.Warn("access cache read failed", "error", err, "key", key)
		}
	}

	got, err := c.inner.HasAccess(ctx, userID, resourceID)
	if err != nil {
		return false, err
	}

	if c.redis != nil {
		val := "0"
		if got {
			val = "1"
		}
		if err := c.redis.Set(ctx, key, val, c.ttl).Err(); err != nil {
			c.logger.Warn("access cache write failed", "error", err, "key", key)
		}
	}
	return got, nil
}
