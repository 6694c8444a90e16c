package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chatlink/internal/presence"
)

const (
	presenceKeyPrefix = "presence:user:"
	// presenceTTL bounds how long a stale entry can outlive the durable
	// record in the database.
	presenceTTL = 7 * 24 * time.Hour
)

// presenceCache mirrors online status and last-seen timestamps into
// Redis so status queries for offline users skip the database.
type presenceCache struct {
	client *redis.Client
}

// NewPresenceCache creates a presence.Cache backed by Redis.
func NewPresenceCache(client *redis.Client) presence.Cache {
	return &presenceCache{client: client}
}

// SetPresence stores the user's status as a small hash keyed by user ID.
func (c *presenceCache) SetPresence(ctx context.Context, userID uint, isOnline bool, lastSeen time.Time) error {
	key := fmt.Sprintf("%s%d", presenceKeyPrefix, userID)
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, "online", isOnline, "last_seen", lastSeen.UnixMilli())
	pipe.Expire(ctx, key, presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache presence for user %d: %w", userID, err)
	}
	return nil
}

// GetLastSeen returns the cached last-seen timestamp, or
// presence.ErrCacheMiss when no entry exists.
func (c *presenceCache) GetLastSeen(ctx context.Context, userID uint) (time.Time, error) {
	key := fmt.Sprintf("%s%d", presenceKeyPrefix, userID)
	millis, err := c.client.HGet(ctx, key, "last_seen").Int64()
	if err == redis.Nil {
		return time.Time{}, presence.ErrCacheMiss
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read cached presence for user %d: %w", userID, err)
	}
	return time.UnixMilli(millis), nil
}
