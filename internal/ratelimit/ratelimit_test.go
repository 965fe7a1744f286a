package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeWindowStore is an in-memory windowStore so the sliding window logic is
// exercised without Redis.
type fakeWindowStore struct {
	mu      sync.Mutex
	buckets map[string]int64
	failing bool
}

func newFakeWindowStore() *fakeWindowStore {
	return &fakeWindowStore{buckets: make(map[string]int64)}
}

func (s *fakeWindowStore) IncrWindow(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return 0, errors.New("store unavailable")
	}
	s.buckets[key]++
	return s.buckets[key], nil
}

func (s *fakeWindowStore) GetWindow(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return 0, errors.New("store unavailable")
	}
	return s.buckets[key], nil
}

func newTestService(store windowStore, now time.Time) *Service {
	return &Service{
		store:  store,
		log:    zap.NewNop(),
		limits: DefaultLimits(),
		now:    func() time.Time { return now },
	}
}

func TestCheck_AllowsUpToLimit(t *testing.T) {
	t.Parallel()

	store := newFakeWindowStore()
	// Aligned to the window start so the previous bucket carries no weight.
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)

	ctx := context.Background()
	limit := DefaultLimits()[KindAuth].Requests

	for i := int64(1); i <= limit; i++ {
		result := svc.Check(ctx, KindAuth, "203.0.113.9")
		if !result.Allowed {
			t.Fatalf("request %d of %d was denied", i, limit)
		}
		if want := limit - i; result.Remaining != want {
			t.Errorf("request %d: Remaining = %d, want %d", i, result.Remaining, want)
		}
	}

	result := svc.Check(ctx, KindAuth, "203.0.113.9")
	if result.Allowed {
		t.Error("request beyond the limit was allowed")
	}
	if result.Remaining != 0 {
		t.Errorf("Remaining after denial = %d, want 0", result.Remaining)
	}
	if result.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", result.RetryAfter)
	}
}

func TestCheck_KindsAreIndependent(t *testing.T) {
	t.Parallel()

	store := newFakeWindowStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)
	ctx := context.Background()

	// Exhaust the auth limiter.
	for i := int64(0); i <= DefaultLimits()[KindAuth].Requests; i++ {
		svc.Check(ctx, KindAuth, "key")
	}
	if svc.Check(ctx, KindAuth, "key").Allowed {
		t.Fatal("auth limiter should be exhausted")
	}

	if result := svc.Check(ctx, KindRead, "key"); !result.Allowed {
		t.Error("read limiter was affected by auth traffic")
	}
	if result := svc.Check(ctx, KindWrite, "key"); !result.Allowed {
		t.Error("write limiter was affected by auth traffic")
	}
}

func TestCheck_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	store := newFakeWindowStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)
	ctx := context.Background()

	for i := int64(0); i <= DefaultLimits()[KindWrite].Requests; i++ {
		svc.Check(ctx, KindWrite, "owner-a:10.0.0.1")
	}
	if svc.Check(ctx, KindWrite, "owner-a:10.0.0.1").Allowed {
		t.Fatal("first key should be exhausted")
	}

	if result := svc.Check(ctx, KindWrite, "owner-b:10.0.0.1"); !result.Allowed {
		t.Error("second key was throttled by the first key's traffic")
	}
}

func TestCheck_PreviousWindowWeighted(t *testing.T) {
	t.Parallel()

	store := newFakeWindowStore()
	windowStart := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	// Fill the previous fixed bucket to the read limit.
	svc := newTestService(store, windowStart.Add(-time.Second))
	for i := int64(0); i < DefaultLimits()[KindRead].Requests; i++ {
		svc.Check(ctx, KindRead, "key")
	}

	// At the boundary the whole previous bucket still overlaps the
	// trailing window, so the next request is denied.
	svc = newTestService(store, windowStart)
	if result := svc.Check(ctx, KindRead, "key"); result.Allowed {
		t.Error("request allowed immediately after a saturated window")
	}

	// Near the end of the current bucket the overlap has decayed and
	// capacity is back.
	svc = newTestService(store, windowStart.Add(55*time.Second))
	if result := svc.Check(ctx, KindRead, "key"); !result.Allowed {
		t.Error("request denied after the previous window's weight decayed")
	}
}

func TestCheck_WindowElapsedResetsBudget(t *testing.T) {
	t.Parallel()

	store := newFakeWindowStore()
	windowStart := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	svc := newTestService(store, windowStart)
	for i := int64(0); i <= DefaultLimits()[KindAuth].Requests; i++ {
		svc.Check(ctx, KindAuth, "key")
	}
	if svc.Check(ctx, KindAuth, "key").Allowed {
		t.Fatal("limiter should be exhausted")
	}

	// Two full windows later both buckets are out of scope.
	svc = newTestService(store, windowStart.Add(2*time.Minute))
	if result := svc.Check(ctx, KindAuth, "key"); !result.Allowed {
		t.Error("request denied after the window fully elapsed")
	}
}

func TestCheck_FailsOpenWhenStoreUnavailable(t *testing.T) {
	t.Parallel()

	store := newFakeWindowStore()
	store.failing = true
	svc := newTestService(store, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	result := svc.Check(context.Background(), KindWrite, "key")
	if !result.Allowed {
		t.Error("check denied while the store is unavailable; should fail open")
	}
	if result.Limit != DefaultLimits()[KindWrite].Requests {
		t.Errorf("Limit = %d, want %d", result.Limit, DefaultLimits()[KindWrite].Requests)
	}
}

func TestKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		ownerID  string
		clientIP string
		want     string
	}{
		{name: "authenticated", ownerID: "owner-1", clientIP: "10.0.0.1", want: "owner-1:10.0.0.1"},
		{name: "anonymous", ownerID: "", clientIP: "10.0.0.1", want: "10.0.0.1"},
	}

	for _, tt := range tests {
		tt := tt // shadow for parallel subtest (Go 1.21)
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Key(tt.ownerID, tt.clientIP); got != tt.want {
				t.Errorf("Key(%q, %q) = %q, want %q", tt.ownerID, tt.clientIP, got, tt.want)
			}
		})
	}
}
