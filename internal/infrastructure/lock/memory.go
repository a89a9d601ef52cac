package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLock serializes runs inside one process.
type MemoryLock struct {
	mu      sync.Mutex
	holders map[string]memoryHolder
	now     func() time.Time
	seq     uint64
}

type memoryHolder struct {
	token   uint64
	expires time.Time
}

func NewMemoryLock() *MemoryLock {
	return &MemoryLock{
		holders: make(map[string]memoryHolder),
		now:     time.Now,
	}
}

func (l *MemoryLock) TryAcquire(_ context.Context, recordID string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if holder, ok := l.holders[recordID]; ok && now.Before(holder.expires) {
		return nil, false, nil
	}

	l.seq++
	token := l.seq
	l.holders[recordID] = memoryHolder{token: token, expires: now.Add(ttl)}

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		// An expired lock may already belong to a newer run.
		if holder, ok := l.holders[recordID]; ok && holder.token == token {
			delete(l.holders, recordID)
		}
	}
	return release, true, nil
}
