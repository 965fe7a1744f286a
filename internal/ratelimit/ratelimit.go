package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/taskdeck/taskdeck-api/internal/logger"
	"github.com/taskdeck/taskdeck-api/internal/models"
	"go.uber.org/zap"
)

// Kind selects one of the independently configured limiters.
type Kind string

const (
	// KindRead limits GET task traffic.
	KindRead Kind = "read"
	// KindWrite limits mutating task traffic.
	KindWrite Kind = "write"
	// KindAuth limits session endpoints.
	KindAuth Kind = "auth"
)

// Limit is the cap for one limiter kind over its window.
type Limit struct {
	Requests int64
	Window   time.Duration
}

// DefaultLimits are the per-kind caps over a trailing 60 second window.
func DefaultLimits() map[Kind]Limit {
	return map[Kind]Limit{
		KindRead:  {Requests: 60, Window: time.Minute},
		KindWrite: {Requests: 20, Window: time.Minute},
		KindAuth:  {Requests: 10, Window: time.Minute},
	}
}

// Key builds the limiter identifier. Authenticated traffic is bucketed by
// owner and client IP together so one user cannot be masked by shared-IP
// traffic nor vice versa; anonymous traffic falls back to the IP alone.
func Key(ownerID, clientIP string) string {
	if ownerID == "" {
		return clientIP
	}
	return ownerID + ":" + clientIP
}

// windowStore is the minimal counter surface the sliding window needs from
// the backing store. The increment must be atomic in that store.
type windowStore interface {
	// IncrWindow atomically increments the bucket and returns the new count,
	// setting the expiry on first touch.
	IncrWindow(ctx context.Context, key string, expiry time.Duration) (int64, error)
	// GetWindow returns the bucket count, 0 if absent.
	GetWindow(ctx context.Context, key string) (int64, error)
}

type redisWindowStore struct {
	client *redis.Client
}

func (s *redisWindowStore) IncrWindow(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *redisWindowStore) GetWindow(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// Service answers allow/deny decisions with a sliding time window per
// (kind, key). The window is approximated by weighting the previous fixed
// bucket by its remaining overlap with the trailing interval, so at most N
// requests succeed in any trailing window without storing per-request
// timestamps.
//
// If the backing store is unreachable the check fails open: the product
// stays available and limiting degrades, logged as a warning.
type Service struct {
	store  windowStore
	log    *zap.Logger
	limits map[Kind]Limit
	now    func() time.Time
}

// NewService creates a limiter service over Redis with the default limits.
func NewService(client *redis.Client, log *zap.Logger) *Service {
	return &Service{
		store:  &redisWindowStore{client: client},
		log:    log,
		limits: DefaultLimits(),
		now:    time.Now,
	}
}

// Check records one request for key under the given kind and returns the
// decision. Denials carry a retry-after hint; they are not errors.
func (s *Service) Check(ctx context.Context, kind Kind, key string) models.RateLimitResult {
	limit, ok := s.limits[kind]
	if !ok {
		limit = Limit{Requests: 60, Window: time.Minute}
	}

	now := s.now()
	windowStart := now.Truncate(limit.Window)
	windowEnd := windowStart.Add(limit.Window)

	bucket := fmt.Sprintf("ratelimit:%s:%s:%d", kind, key, windowStart.Unix())
	count, err := s.store.IncrWindow(ctx, bucket, 2*limit.Window)
	if err != nil {
		return s.failOpen(kind, key, limit, windowEnd, err)
	}

	prevBucket := fmt.Sprintf("ratelimit:%s:%s:%d", kind, key, windowStart.Add(-limit.Window).Unix())
	prevCount, err := s.store.GetWindow(ctx, prevBucket)
	if err != nil {
		return s.failOpen(kind, key, limit, windowEnd, err)
	}
	if prevCount > 0 {
		elapsed := now.Sub(windowStart)
		remainingRatio := float64(limit.Window-elapsed) / float64(limit.Window)
		count += int64(float64(prevCount) * remainingRatio)
	}

	result := models.RateLimitResult{
		Allowed:   count <= limit.Requests,
		Limit:     limit.Requests,
		Remaining: limit.Requests - count,
		Reset:     windowEnd,
	}
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	if !result.Allowed {
		result.RetryAfter = windowEnd.Sub(now)
	}
	return result
}

func (s *Service) failOpen(kind Kind, key string, limit Limit, reset time.Time, err error) models.RateLimitResult {
	s.log.Warn("rate_limit_store_unavailable_failing_open",
		zap.String("kind", string(kind)),
		zap.String("key", logger.SanitizeString(key, logger.MaxOwnerIDLength)),
		zap.String("error", logger.SanitizeError(err)),
	)
	return models.RateLimitResult{
		Allowed:   true,
		Limit:     limit.Requests,
		Remaining: limit.Requests,
		Reset:     reset,
	}
}
