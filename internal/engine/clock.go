package engine

import (
	"sync/atomic"
	"time"
)

// Clock is the logical commit clock.
//
// Every commit (registration or execution) is stamped with the next value
// of this clock, and MG/OG ordering uses those values, never wall time. An
// engine cycle resumes the clock from the loaded snapshot's last sequence
// number, so ordering survives across processes.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClockAt creates a new clock starting at a specific sequence number.
// Used to resume from the last committed sequence number of a snapshot.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// WallClock supplies the display timestamps (createdAt, executedAt).
// Implemented by SystemClock (production) and testutil.SteppingClock (tests).
type WallClock interface {
	Now() time.Time
}

// SystemClock reads the system time in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
