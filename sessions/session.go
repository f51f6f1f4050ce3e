package sessions

import (
	"sort"
	"time"
)

// Session is one contiguous interval of pedaling activity. It is mutated in
// place by the Manager while active and becomes immutable once closed.
type Session struct {
	// StartTime is the Unix timestamp (seconds) at which the session began.
	// It uniquely identifies the session.
	StartTime int64 `json:"start_time"`
	// EndTime is the Unix timestamp (seconds) of the most recent pulse.
	// Always >= StartTime.
	EndTime int64 `json:"end_time"`
	// Revolutions is the number of crank rotations observed.
	Revolutions int `json:"revolutions"`
}

// Duration returns the elapsed time the session covers.
func (s Session) Duration() time.Duration {
	return time.Duration(s.EndTime-s.StartTime) * time.Second
}

// Snapshot is the full persisted state of the peripheral: every session in
// ascending StartTime order, plus a marker for the one (if any) that is
// still accumulating. It is saved and loaded as a whole.
type Snapshot struct {
	Sessions []Session `json:"sessions"`
	// ActiveStartTime identifies the session in Sessions that is still
	// open-ended, or is nil when the peripheral is idle.
	ActiveStartTime *int64 `json:"active_start_time,omitempty"`
}

// Since returns every session with StartTime > cursor, open or closed, in
// ascending StartTime order. Sessions must already be sorted, which the
// Manager maintains by construction and loaders enforce via Normalize.
func (sn *Snapshot) Since(cursor int64) []Session {
	i := sort.Search(len(sn.Sessions), func(i int) bool {
		return sn.Sessions[i].StartTime > cursor
	})
	if i == len(sn.Sessions) {
		return nil
	}
	out := make([]Session, len(sn.Sessions)-i)
	copy(out, sn.Sessions[i:])
	return out
}

// Active returns the currently open session, if the marker names one.
func (sn *Snapshot) Active() (Session, bool) {
	if sn.ActiveStartTime == nil {
		return Session{}, false
	}
	for i := len(sn.Sessions) - 1; i >= 0; i-- {
		if sn.Sessions[i].StartTime == *sn.ActiveStartTime {
			return sn.Sessions[i], true
		}
	}
	return Session{}, false
}

// Normalize sorts sessions ascending by StartTime and clears a dangling
// active marker. Loaders call it so a hand-edited or older snapshot still
// satisfies the ordering invariant.
func (sn *Snapshot) Normalize() {
	sort.Slice(sn.Sessions, func(i, j int) bool {
		return sn.Sessions[i].StartTime < sn.Sessions[j].StartTime
	})
	if sn.ActiveStartTime != nil {
		if _, ok := sn.Active(); !ok {
			sn.ActiveStartTime = nil
		}
	}
}
