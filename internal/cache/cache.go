package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/taskdeck/taskdeck-api/internal/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultTTL is how long cached task snapshots live. The cache is never the
// system of record, so a dropped entry only costs a database round trip.
const DefaultTTL = 60 * time.Second

// TaskListKey is the cache key for an owner's unfiltered first-page task list.
func TaskListKey(ownerID uuid.UUID) string {
	return "tasks:" + ownerID.String()
}

// TaskKey is the cache key for a single task.
func TaskKey(ownerID, taskID uuid.UUID) string {
	return "task:" + ownerID.String() + ":" + taskID.String()
}

// Cache is a best-effort read-through cache over Redis. Backend errors are
// logged and degrade to a miss or no-op; they never fail a request.
type Cache struct {
	client *redis.Client
	log    *zap.Logger
	ttl    time.Duration
}

// New creates a cache over the given Redis client.
func New(client *redis.Client, log *zap.Logger) *Cache {
	return &Cache{client: client, log: log, ttl: DefaultTTL}
}

// Get fetches and unmarshals the value at key into dest, reporting whether
// the key was present. Any backend or decode error counts as a miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.log.Warn("cache_get_failed",
			zap.String("key", key),
			zap.String("error", logger.SanitizeError(err)),
		)
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.log.Warn("cache_entry_corrupt",
			zap.String("key", key),
			zap.String("error", logger.SanitizeError(err)),
		)
		return false
	}
	return true
}

// Set stores value at key with the configured TTL. Best-effort.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("cache_marshal_failed",
			zap.String("key", key),
			zap.String("error", logger.SanitizeError(err)),
		)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn("cache_set_failed",
			zap.String("key", key),
			zap.String("error", logger.SanitizeError(err)),
		)
	}
}

// Delete removes the given keys. Best-effort.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("cache_delete_failed",
			zap.Int("keys", len(keys)),
			zap.String("error", logger.SanitizeError(err)),
		)
	}
}

// InvalidateOwner drops every cache entry for the owner: the list key plus
// all single-task keys found by a prefix scan. Called after a persistence
// write commits, never before, so a failed write cannot leave fresh data
// evicted or stale data cached.
func (c *Cache) InvalidateOwner(ctx context.Context, ownerID uuid.UUID) {
	keys := []string{TaskListKey(ownerID)}

	pattern := "task:" + ownerID.String() + ":*"
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("cache_scan_failed",
			zap.String("owner_id", logger.SanitizeOwnerID(ownerID.String())),
			zap.String("error", logger.SanitizeError(err)),
		)
		// Fall through: delete whatever was collected plus the list key.
	}

	c.Delete(ctx, keys...)

	if ce := c.log.Check(zapcore.DebugLevel, "cache_invalidated_owner"); ce != nil {
		ce.Write(
			zap.String("owner_id", logger.SanitizeOwnerID(ownerID.String())),
			zap.Int("keys", len(keys)),
		)
	}
}

// Ping checks backend reachability, for health checks only.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
