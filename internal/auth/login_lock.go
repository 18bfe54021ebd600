package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/charlesng35/sessiongate/internal/cache"
)

const (
	loginLockKeyPrefix   = "auth:login-lock:"
	defaultLoginLockTTL  = 10 * time.Second
	defaultLoginLockPoll = 25 * time.Millisecond
)

// ErrLoginLockTimeout is returned when another login for the same user held
// the lock for the whole wait budget.
var ErrLoginLockTimeout = errors.New("login lock: timed out waiting for lock")

// ReleaseFunc releases a held login lock.
type ReleaseFunc func(ctx context.Context)

// LoginLocker serialises the evict-then-create sequence of concurrent logins
// for the same user.
type LoginLocker interface {
	Acquire(ctx context.Context, userID string) (ReleaseFunc, error)
}

// StoreLoginLocker implements LoginLocker on a shared cache.Store. Each holder
// writes a random token under the user's key with SetNX and releases with a
// compare-and-delete, so an expired holder cannot free a lock it lost.
type StoreLoginLocker struct {
	store cache.Store
	ttl   time.Duration
	wait  time.Duration
	poll  time.Duration
}

// LoginLockOption customises a StoreLoginLocker.
type LoginLockOption func(*StoreLoginLocker)

// WithLockWait caps how long Acquire waits for a held lock. Defaults to the TTL.
func WithLockWait(wait time.Duration) LoginLockOption {
	return func(l *StoreLoginLocker) {
		if wait > 0 {
			l.wait = wait
		}
	}
}

// WithLockPollInterval sets the retry interval while the lock is held elsewhere.
func WithLockPollInterval(poll time.Duration) LoginLockOption {
	return func(l *StoreLoginLocker) {
		if poll > 0 {
			l.poll = poll
		}
	}
}

// NewStoreLoginLocker builds a LoginLocker whose locks expire after ttl.
func NewStoreLoginLocker(store cache.Store, ttl time.Duration, opts ...LoginLockOption) (*StoreLoginLocker, error) {
	if store == nil {
		return nil, errors.New("login lock: cache store is required")
	}
	if ttl <= 0 {
		ttl = defaultLoginLockTTL
	}

	locker := &StoreLoginLocker{
		store: store,
		ttl:   ttl,
		wait:  ttl,
		poll:  defaultLoginLockPoll,
	}
	for _, opt := range opts {
		opt(locker)
	}
	return locker, nil
}

// Acquire blocks until the user's lock is held, the wait budget runs out or
// ctx is cancelled.
func (l *StoreLoginLocker) Acquire(ctx context.Context, userID string) (ReleaseFunc, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, invalidSession("user id is required")
	}

	key := loginLockKeyPrefix + userID
	token := []byte(uuid.NewString())
	deadline := time.NewTimer(l.wait)
	defer deadline.Stop()

	for {
		ok, err := l.store.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("login lock: acquire %s: %w", userID, err)
		}
		if ok {
			return func(releaseCtx context.Context) {
				_, _ = l.store.CompareAndDelete(releaseCtx, key, token)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrLoginLockTimeout
		case <-time.After(l.poll):
		}
	}
}
