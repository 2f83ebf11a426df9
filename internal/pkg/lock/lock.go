// Package lock provides per-user locking for balance-affecting operations
// within one process. It complements the row locks taken in the database:
// same-user requests queue here instead of piling up on a locked row.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// userSlot is a one-token semaphore with a waiter count for cleanup.
type userSlot struct {
	token chan struct{}
	refs  int
}

// UserLock hands out one slot per user id. Slots are dropped once nobody
// holds or waits for them.
type UserLock struct {
	mu    sync.Mutex
	slots map[int64]*userSlot
}

// NewUserLock creates a new UserLock instance.
func NewUserLock() *UserLock {
	return &UserLock{slots: make(map[int64]*userSlot)}
}

func (ul *UserLock) acquireRef(userID int64) *userSlot {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	s, ok := ul.slots[userID]
	if !ok {
		s = &userSlot{token: make(chan struct{}, 1)}
		ul.slots[userID] = s
	}
	s.refs++
	return s
}

func (ul *UserLock) releaseRef(userID int64, s *userSlot) {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(ul.slots, userID)
	}
}

// Lock blocks until the user's lock is held or ctx is done.
func (ul *UserLock) Lock(ctx context.Context, userID int64) error {
	s := ul.acquireRef(userID)
	select {
	case s.token <- struct{}{}:
		return nil
	case <-ctx.Done():
		ul.releaseRef(userID, s)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
		}
		return ctx.Err()
	}
}

// TryLock acquires the lock only if it is free.
func (ul *UserLock) TryLock(userID int64) bool {
	s := ul.acquireRef(userID)
	select {
	case s.token <- struct{}{}:
		return true
	default:
		ul.releaseRef(userID, s)
		return false
	}
}

// Unlock releases a lock taken with Lock or TryLock. Like sync.Mutex, it
// panics when the user's lock is not held.
func (ul *UserLock) Unlock(userID int64) {
	ul.mu.Lock()
	s, ok := ul.slots[userID]
	ul.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("lock: unlock of unlocked user %d", userID))
	}
	select {
	case <-s.token:
	default:
		panic(fmt.Sprintf("lock: unlock of unlocked user %d", userID))
	}
	ul.releaseRef(userID, s)
}

// WithLock runs fn while holding the user's lock.
func (ul *UserLock) WithLock(ctx context.Context, userID int64, fn func() error) error {
	if err := ul.Lock(ctx, userID); err != nil {
		return err
	}
	defer ul.Unlock(userID)
	return fn()
}

// Len returns the number of users currently holding or waiting on a lock.
func (ul *UserLock) Len() int {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	return len(ul.slots)
}
