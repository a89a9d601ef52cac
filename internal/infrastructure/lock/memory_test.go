package lock

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLockExcludesConcurrentRuns(t *testing.T) {
	l := NewMemoryLock()

	release, ok, err := l.TryAcquire(context.Background(), "rec-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire = %v, %v", ok, err)
	}
	if _, ok, _ := l.TryAcquire(context.Background(), "rec-1", time.Minute); ok {
		t.Fatalf("second acquire must fail while held")
	}
	if _, ok, _ := l.TryAcquire(context.Background(), "rec-2", time.Minute); !ok {
		t.Fatalf("other records must not be blocked")
	}

	release()
	if _, ok, _ := l.TryAcquire(context.Background(), "rec-1", time.Minute); !ok {
		t.Fatalf("acquire after release must succeed")
	}
}

func TestMemoryLockExpiry(t *testing.T) {
	l := NewMemoryLock()
	now := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	staleRelease, ok, _ := l.TryAcquire(context.Background(), "rec-1", time.Minute)
	if !ok {
		t.Fatalf("first acquire failed")
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := l.TryAcquire(context.Background(), "rec-1", time.Minute); !ok {
		t.Fatalf("expired lock must be acquirable")
	}

	staleRelease()
	if _, ok, _ := l.TryAcquire(context.Background(), "rec-1", time.Minute); ok {
		t.Fatalf("stale release must not drop the newer holder")
	}
}
