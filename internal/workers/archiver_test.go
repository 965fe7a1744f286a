package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/taskdeck/taskdeck-api/internal/models"
	"go.uber.org/zap"
)

type stubArchiveRepo struct {
	mu      sync.Mutex
	pending []models.TaskSummary
	err     error
	sweeps  int
}

func (s *stubArchiveRepo) FindArchivable(ctx context.Context, cutoff time.Time) ([]models.TaskSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending, s.err
}

func (s *stubArchiveRepo) Archive(ctx context.Context, cutoff time.Time) ([]models.TaskSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.sweeps++
	archived := s.pending
	s.pending = nil
	return archived, nil
}

func (s *stubArchiveRepo) sweepCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweeps
}

func TestSweep(t *testing.T) {
	t.Parallel()

	repo := &stubArchiveRepo{pending: []models.TaskSummary{
		{ID: uuid.New(), OwnerID: uuid.New(), Title: "stale"},
		{ID: uuid.New(), OwnerID: uuid.New(), Title: "staler"},
	}}
	archiver := NewArchiver(repo, time.Hour, 30*24*time.Hour, zap.NewNop())

	cutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	count, err := archiver.Sweep(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	// Second sweep over the same data archives nothing.
	count, err = archiver.Sweep(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("second Sweep returned error: %v", err)
	}
	if count != 0 {
		t.Errorf("second sweep count = %d, want 0", count)
	}
}

type stubInvalidator struct {
	mu     sync.Mutex
	owners []uuid.UUID
}

func (s *stubInvalidator) InvalidateOwner(_ context.Context, ownerID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners = append(s.owners, ownerID)
}

func TestSweep_InvalidatesEachOwnerOnce(t *testing.T) {
	t.Parallel()

	ownerA := uuid.New()
	ownerB := uuid.New()
	repo := &stubArchiveRepo{pending: []models.TaskSummary{
		{ID: uuid.New(), OwnerID: ownerA, Title: "stale"},
		{ID: uuid.New(), OwnerID: ownerA, Title: "staler"},
		{ID: uuid.New(), OwnerID: ownerB, Title: "stalest"},
	}}
	inv := &stubInvalidator{}
	archiver := NewArchiver(repo, time.Hour, 30*24*time.Hour, zap.NewNop(),
		WithCacheInvalidation(inv))

	count, err := archiver.Sweep(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	if len(inv.owners) != 2 {
		t.Fatalf("invalidated %d owners, want 2: %v", len(inv.owners), inv.owners)
	}
	seen := map[uuid.UUID]bool{}
	for _, id := range inv.owners {
		seen[id] = true
	}
	if !seen[ownerA] || !seen[ownerB] {
		t.Errorf("invalidated owners = %v, want both %s and %s", inv.owners, ownerA, ownerB)
	}
}

func TestSweep_PropagatesError(t *testing.T) {
	t.Parallel()

	repo := &stubArchiveRepo{err: errors.New("connection refused")}
	archiver := NewArchiver(repo, time.Hour, 30*24*time.Hour, zap.NewNop())

	if _, err := archiver.Sweep(context.Background(), time.Now()); err == nil {
		t.Error("Sweep error = nil, want the store error")
	}
}

func TestStart_SweepsImmediatelyAndStopsOnCancel(t *testing.T) {
	t.Parallel()

	repo := &stubArchiveRepo{}
	archiver := NewArchiver(repo, time.Hour, 30*24*time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		archiver.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for repo.sweepCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("no sweep ran after Start")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}

	if got := repo.sweepCount(); got != 1 {
		t.Errorf("sweeps = %d, want 1 (interval has not elapsed)", got)
	}
}
