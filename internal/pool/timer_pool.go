package pool

import (
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a timer for the given duration d from the pool.
//
// Return back the timer to the pool with PutTimer.
func GetTimer(d time.Duration) *time.Timer {
	if v := timerPool.Get(); v != nil {
		t, _ := v.(*time.Timer)
		if t.Reset(d) {
			select {
			case <-t.C:
			default:
			}
		}
		return t
	}
	return time.NewTimer(d)
}

// PutTimer returns timer to the pool.
//
// t cannot be accessed after returning to the pool.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}

// Deadline is an optional point in time backed by a pooled timer.
//
// The zero deadline never fires: C returns a nil channel, which blocks forever in a select.
type Deadline struct {
	timer *time.Timer
}

// NewDeadline creates a deadline firing at t. A zero t yields a deadline that never fires.
// A t in the past fires immediately.
func NewDeadline(t time.Time) Deadline {
	if t.IsZero() {
		return Deadline{}
	}

	return Deadline{timer: GetTimer(time.Until(t))}
}

// C returns the channel receiving the expiry, or nil when the deadline is unbounded.
func (d Deadline) C() <-chan time.Time {
	if d.timer == nil {
		return nil
	}

	return d.timer.C
}

// Release returns the underlying timer to the pool. It is safe on a zero Deadline.
func (d Deadline) Release() {
	if d.timer != nil {
		PutTimer(d.timer)
	}
}

// Earliest returns the earlier of two deadlines, treating the zero time as "no deadline".
func Earliest(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case a.Before(b):
		return a
	default:
		return b
	}
}
