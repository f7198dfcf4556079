package keyedlock

import (
	"context"
	"sync"
	"time"
)

// Lock hands out named mutual-exclusion slots. Implementations may back the
// lock with a process-local table, file locks or database advisory locks;
// holders must call Release with the same key they acquired.
type Lock interface {
	TryAcquire(ctx context.Context, key string, timeout time.Duration) bool
	Release(key string)
}

// Table is an in-process Lock backed by one semaphore channel per key.
// Entries are created lazily and kept for the process lifetime, matching the
// cache-entry lifecycle they guard.
type Table struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewTable() *Table {
	return &Table{slots: make(map[string]chan struct{})}
}

func (t *Table) slot(key string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		t.slots[key] = ch
	}
	return ch
}

// TryAcquire blocks up to timeout for the keyed slot. It returns false when
// the wait times out or ctx is cancelled; the caller then degrades (stale
// cache, typed failure) instead of queueing up behind the holder.
func (t *Table) TryAcquire(ctx context.Context, key string, timeout time.Duration) bool {
	ch := t.slot(key)
	select {
	case ch <- struct{}{}:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Release is a no-op for keys that were never acquired.
func (t *Table) Release(key string) {
	t.mu.Lock()
	ch := t.slots[key]
	t.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case <-ch:
	default:
	}
}
