package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fgdb/internal/ir"
)

func TestLock_AcquireRelease(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	release, err := s.Lock(ctx)
	require.NoError(t, err)
	require.NoError(t, release())

	release, err = s.Lock(ctx)
	require.NoError(t, err, "lock is reusable after release")
	require.NoError(t, release())
}

func TestLock_Contention(t *testing.T) {
	s := createTestStore(t)
	other, err := OpenExisting(s.Dir())
	require.NoError(t, err)
	defer other.Close()
	other.SetLockOptions(LockOptions{Timeout: 100 * time.Millisecond, RetryDelay: 10 * time.Millisecond})

	release, err := s.Lock(context.Background())
	require.NoError(t, err)
	defer release()

	start := time.Now()
	_, err = other.Lock(context.Background())
	assert.True(t, ir.IsCode(err, ir.ErrCodeStoreLocked), "got %v", err)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestLock_NoWait(t *testing.T) {
	s := createTestStore(t)
	other, err := OpenExisting(s.Dir())
	require.NoError(t, err)
	defer other.Close()
	other.SetLockOptions(LockOptions{})

	release, err := s.Lock(context.Background())
	require.NoError(t, err)
	defer release()

	_, err = other.Lock(context.Background())
	assert.True(t, ir.IsCode(err, ir.ErrCodeStoreLocked), "got %v", err)
}
