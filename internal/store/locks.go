package store

import (
	"context"
	"sync"
	"time"

	"github.com/punchamoorthee/hostelops/internal/domain"
)

// keyLocks is an in-process map of exclusive locks keyed by string. Each lock
// is a one-slot channel so waiters can give up on timeout or cancellation.
// A slot lives only while someone holds or waits on it, so keys for ids that
// never existed do not accumulate.
type keyLocks struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{slots: make(map[string]*lockSlot)}
}

// ref returns the slot for key, counting the caller as a user.
func (k *keyLocks) ref(key string) *lockSlot {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.slots[key]
	if !ok {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	return s
}

func (k *keyLocks) unref(key string, s *lockSlot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

func (k *keyLocks) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

// acquire blocks until key is free, ctx is done, or timeout elapses.
// A non-positive timeout waits for ctx alone.
func (k *keyLocks) acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	s := k.ref(key)
	release := func() {
		<-s.ch
		k.unref(key, s)
	}

	select {
	case s.ch <- struct{}{}:
		return release, nil
	default:
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case s.ch <- struct{}{}:
		return release, nil
	case <-ctx.Done():
		k.unref(key, s)
		return nil, ctx.Err()
	case <-expired:
		k.unref(key, s)
		return nil, &domain.ConflictError{Code: domain.ReasonLockTimeout}
	}
}
