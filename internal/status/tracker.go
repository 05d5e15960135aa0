// internal/status/tracker.go
package status

import (
	"errors"
	"sync"
	"time"
)

// Tracker owns the health state of one device or task.
// Cycle outcomes go in through Observe; readers take a Snapshot.
type Tracker struct {
	mu sync.Mutex

	snap        Snapshot
	errorSince  time.Time
	lastSuccess time.Time

	// A healthy tracker with no success for this long reports stale.
	// Zero disables staleness.
	staleAfter time.Duration

	now func() time.Time
}

// NewTracker creates a tracker in the boot state (HealthUnknown).
func NewTracker(staleAfter time.Duration) *Tracker {
	return &Tracker{
		snap:       Snapshot{Health: HealthUnknown},
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Observe records one cycle outcome and reports whether health or
// last error code changed.
func (t *Tracker) Observe(err error) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.snapshotLocked()
	now := t.now()

	if err == nil {
		// Recovery / OK
		t.snap.Health = HealthOK
		t.snap.LastErrorCode = 0
		t.snap.SecondsInError = 0
		t.errorSince = time.Time{}
		t.lastSuccess = now
	} else {
		t.snap.Health = HealthError
		t.snap.LastErrorCode = ErrorCode(err)
		if t.errorSince.IsZero() {
			t.errorSince = now
		}
	}

	cur := t.snapshotLocked()
	changed := cur.Health != prev.Health || cur.LastErrorCode != prev.LastErrorCode
	return cur, changed
}

// Snapshot returns the current state with seconds_in_error and
// staleness evaluated at call time.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// LastSuccess returns the time of the last successful cycle.
func (t *Tracker) LastSuccess() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSuccess
}

func (t *Tracker) snapshotLocked() Snapshot {
	s := t.snap
	now := t.now()

	if !t.errorSince.IsZero() {
		secs := now.Sub(t.errorSince) / time.Second
		if secs > MaxSecondsInError {
			secs = MaxSecondsInError
		}
		s.SecondsInError = uint16(secs)
	}

	if s.Health == HealthOK && t.staleAfter > 0 && now.Sub(t.lastSuccess) > t.staleAfter {
		s.Health = HealthStale
	}
	return s
}

// ErrorCode extracts a best-effort uint16 code from an error without assuming concrete types.
// If the error does not expose a code, returns 1 (generic error).
func ErrorCode(err error) uint16 {
	if err == nil {
		return 0
	}

	type coderA interface{ Code() uint16 }
	type coderB interface{ ErrorCode() uint16 }

	var a coderA
	if errors.As(err, &a) {
		return a.Code()
	}
	var b coderB
	if errors.As(err, &b) {
		return b.ErrorCode()
	}

	return 1
}
