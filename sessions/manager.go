package sessions

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Default lifecycle tuning. Both values are configuration, not protocol
// constants; the daemon overrides them from the environment.
const (
	DefaultIdleTimeout        = 10 * time.Minute
	DefaultCheckpointInterval = 5 * time.Minute
)

// SnapshotSaver persists the full snapshot. Implementations must replace the
// previous snapshot atomically; see the storage package.
type SnapshotSaver interface {
	Save(ctx context.Context, snap *Snapshot) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithIdleTimeout sets the gap after the most recent pulse at which the
// active session is closed.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) { m.idleTimeout = d }
}

// WithCheckpointInterval sets how often an in-progress session is persisted
// without being closed, bounding data loss on power failure.
func WithCheckpointInterval(d time.Duration) Option {
	return func(m *Manager) { m.checkpointInterval = d }
}

// WithMinDuration discards sessions shorter than d at close time instead of
// persisting them. Zero (the default) keeps every session.
func WithMinDuration(d time.Duration) Option {
	return func(m *Manager) { m.minDuration = d }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager is the single owner of the mutable "current session" slot. It
// converts discrete pulse events into closed Session records and drives
// idle-timeout and checkpoint persistence. All methods are safe for
// concurrent use; the pulse path and the sync responder serialize on the
// same mutex.
type Manager struct {
	mu        sync.Mutex
	snap      *Snapshot
	store     SnapshotSaver
	lastPulse time.Time
	// dirty records that the last save failed and the snapshot on disk is
	// stale. The next checkpoint tick retries.
	dirty   bool
	dropped int64

	idleTimeout        time.Duration
	checkpointInterval time.Duration
	minDuration        time.Duration
	log                *slog.Logger
	now                func() time.Time
}

// NewManager wraps a loaded snapshot. The Manager takes ownership of snap;
// callers must not mutate it afterwards.
func NewManager(snap *Snapshot, store SnapshotSaver, opts ...Option) *Manager {
	if snap == nil {
		snap = &Snapshot{}
	}
	snap.Normalize()
	m := &Manager{
		snap:               snap,
		store:              store,
		idleTimeout:        DefaultIdleTimeout,
		checkpointInterval: DefaultCheckpointInterval,
		log:                slog.Default(),
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	// A snapshot can carry an active marker if the process died mid-session.
	// That session can never continue (its pulses are gone), so close it now
	// in memory; the first save persists the demotion.
	if s, ok := snap.Active(); ok {
		m.log.Info("recovered interrupted session",
			"start_time", s.StartTime, "revolutions", s.Revolutions)
		snap.ActiveStartTime = nil
		m.dirty = true
	}
	return m
}

// Pulse records one crank revolution at time at. A pulse whose timestamp is
// not strictly after the previous one, or whose start second would collide
// with an already-stored session, is dropped and counted.
func (m *Manager) Pulse(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lastPulse.IsZero() && !at.After(m.lastPulse) {
		m.dropped++
		m.log.Warn("dropped non-monotonic pulse", "at", at, "last", m.lastPulse)
		return
	}
	sec := at.Unix()

	if m.snap.ActiveStartTime == nil {
		if n := len(m.snap.Sessions); n > 0 && m.snap.Sessions[n-1].StartTime >= sec {
			// Clock went backwards across a restart; a new session here would
			// break start-time uniqueness.
			m.dropped++
			m.log.Warn("dropped pulse: start second collides with stored session",
				"start_time", sec)
			return
		}
		m.snap.Sessions = append(m.snap.Sessions, Session{
			StartTime:   sec,
			EndTime:     sec,
			Revolutions: 1,
		})
		start := sec
		m.snap.ActiveStartTime = &start
		m.log.Info("session started", "start_time", sec)
	} else {
		// The active session is always the final element: start times only
		// ever grow.
		s := &m.snap.Sessions[len(m.snap.Sessions)-1]
		if sec < s.EndTime {
			m.dropped++
			m.log.Warn("dropped pulse: before session end", "at", sec, "end_time", s.EndTime)
			return
		}
		s.EndTime = sec
		s.Revolutions++
	}
	m.lastPulse = at
}

// Run drives the idle-timeout sweep and the periodic checkpoint until ctx is
// done. It returns ctx.Err().
func (m *Manager) Run(ctx context.Context) error {
	sweepEvery := m.idleTimeout / 10
	if sweepEvery < time.Second {
		sweepEvery = time.Second
	}
	if sweepEvery > 30*time.Second {
		sweepEvery = 30 * time.Second
	}
	idle := time.NewTicker(sweepEvery)
	defer idle.Stop()
	checkpoint := time.NewTicker(m.checkpointInterval)
	defer checkpoint.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle.C:
			m.sweepIdle(ctx)
		case <-checkpoint.C:
			m.checkpoint(ctx)
		}
	}
}

// Shutdown persists any pending state. Call after Run has stopped.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snap.Active(); !ok && !m.dirty {
		return nil
	}
	return m.saveLocked(ctx)
}

// ClosedSince returns closed sessions with StartTime > cursor, ascending.
// The in-flight active session is deliberately excluded: it becomes visible
// to sync only once it closes.
func (m *Manager) ClosedSince(cursor int64) []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.snap.Since(cursor)
	if n := len(out); n > 0 && m.snap.ActiveStartTime != nil &&
		out[n-1].StartTime == *m.snap.ActiveStartTime {
		out = out[:n-1]
	}
	return out
}

// Active returns a copy of the in-progress session, if any.
func (m *Manager) Active() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Active()
}

// DroppedPulses reports how many pulses were rejected by the clock guards.
func (m *Manager) DroppedPulses() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

func (m *Manager) sweepIdle(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap.ActiveStartTime == nil {
		return
	}
	if m.now().Sub(m.lastPulse) < m.idleTimeout {
		return
	}
	m.closeActiveLocked(ctx)
}

func (m *Manager) closeActiveLocked(ctx context.Context) {
	s := m.snap.Sessions[len(m.snap.Sessions)-1]
	if m.minDuration > 0 && s.Duration() < m.minDuration {
		m.snap.Sessions = m.snap.Sessions[:len(m.snap.Sessions)-1]
		m.log.Info("discarded short session",
			"start_time", s.StartTime, "duration", s.Duration())
	} else {
		m.log.Info("session closed",
			"start_time", s.StartTime,
			"duration", s.Duration(),
			"revolutions", s.Revolutions)
	}
	m.snap.ActiveStartTime = nil
	m.saveLocked(ctx)
}

func (m *Manager) checkpoint(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.snap.Active(); ok {
		if m.minDuration > 0 && s.Duration() < m.minDuration {
			// Not worth a flash write yet; it may still be discarded.
			if m.dirty {
				m.saveLocked(ctx)
			}
			return
		}
		m.log.Debug("checkpointing active session",
			"start_time", s.StartTime, "revolutions", s.Revolutions)
		m.saveLocked(ctx)
		return
	}
	if m.dirty {
		m.saveLocked(ctx)
	}
}

func (m *Manager) saveLocked(ctx context.Context) error {
	if err := m.store.Save(ctx, m.snap); err != nil {
		m.dirty = true
		m.log.Error("snapshot save failed; will retry on next checkpoint", "err", err)
		return err
	}
	m.dirty = false
	return nil
}
