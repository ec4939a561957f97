package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/roach88/fgdb/internal/ir"
)

// LockOptions controls how Lock waits for a busy store.
type LockOptions struct {
	// Timeout bounds the wait. Zero tries exactly once.
	Timeout time.Duration

	// RetryDelay is the polling interval while waiting.
	RetryDelay time.Duration
}

// DefaultLockOptions returns the lock options used by Open.
func DefaultLockOptions() LockOptions {
	return LockOptions{Timeout: 5 * time.Second, RetryDelay: 50 * time.Millisecond}
}

// Lock acquires the advisory store lock (fgdb.lock beside the database).
// The returned release function unlocks it.
//
// Fails with STORE_LOCKED when another process holds the lock past the
// configured timeout.
func (s *Store) Lock(ctx context.Context) (release func() error, err error) {
	fl := flock.New(filepath.Join(s.Dir(), LockFile))

	var ok bool
	if s.lock.Timeout <= 0 {
		ok, err = fl.TryLock()
	} else {
		waitCtx, cancel := context.WithTimeout(ctx, s.lock.Timeout)
		defer cancel()
		delay := s.lock.RetryDelay
		if delay <= 0 {
			delay = DefaultLockOptions().RetryDelay
		}
		ok, err = fl.TryLockContext(waitCtx, delay)
	}

	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return nil, storeLocked(s.Dir(), err)
	case err != nil:
		return nil, fmt.Errorf("acquire store lock: %w", err)
	case !ok:
		return nil, storeLocked(s.Dir(), nil)
	}
	return fl.Unlock, nil
}

func storeLocked(dir string, cause error) error {
	e := ir.NewError(ir.ErrCodeStoreLocked, "another fgdb process holds the store lock")
	e.Ref = dir
	e.Err = cause
	return e
}
