// Package session keeps the in-memory conversation state of every bot user.
//
// Each user has exactly one state slot, so a user can never be in two flows
// at once. Access to a user's slot is serialized; different users proceed
// concurrently.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/iconidentify/vidvault/internal/domain"
)

// Flow names the conversational purpose a user is engaged in.
type Flow string

const (
	FlowNone     Flow = ""
	FlowAuth     Flow = "auth"
	FlowCategory Flow = "category"
	FlowVideo    Flow = "video"
)

// Phase is the current step within a flow.
type Phase string

const (
	PhaseIdle Phase = ""

	// Auth flow.
	PhaseAwaitingPassword Phase = "awaiting_password"

	// Category flow.
	PhaseAwaitingName           Phase = "awaiting_name"
	PhaseAwaitingCategoryDelete Phase = "awaiting_category_delete"

	// Video flow.
	PhaseAwaitingTitle       Phase = "awaiting_title"
	PhaseAwaitingMedia       Phase = "awaiting_media"
	PhaseAwaitingCategory    Phase = "awaiting_category"
	PhaseAwaitingVideoDelete Phase = "awaiting_video_delete"
)

// Draft accumulates the parts of a video being added.
type Draft struct {
	Title         string
	Kind          domain.VideoKind
	Location      string
	ThumbnailPath string
}

// State is a user's single state slot. TargetID holds the category or video
// awaiting delete confirmation.
type State struct {
	Flow     Flow
	Phase    Phase
	Draft    Draft
	TargetID int64
}

// Idle reports whether no flow is active.
func (s State) Idle() bool {
	return s.Flow == FlowNone || s.Phase == PhaseIdle
}

// Session is the handle passed to Manager.Do. It must not be retained after
// the callback returns.
type Session struct {
	UserID int64
	state  State
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Set replaces the state.
func (s *Session) Set(st State) {
	s.state = st
}

// Reset returns the session to idle, discarding any draft.
func (s *Session) Reset() {
	s.state = State{}
}

// ErrClosed is returned by Do once the manager has been closed.
var ErrClosed = errors.New("session manager closed")

// entry is a user's slot plus the queue of turns waiting for it. busy is set
// while a turn owns the slot.
type entry struct {
	refs     int
	busy     bool
	waiters  []chan struct{}
	session  Session
	snapshot State
	lastSeen time.Time
}

// Manager owns all sessions.
type Manager struct {
	mu          sync.Mutex
	entries     map[int64]*entry
	closed      bool
	idleTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// NewManager creates a session manager. Sessions untouched for idleTimeout
// are dropped by Sweep; zero disables expiry.
func NewManager(idleTimeout time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		entries:     make(map[int64]*entry),
		idleTimeout: idleTimeout,
		now:         time.Now,
		logger:      logger,
	}
}

// SetClock overrides the time source (for tests).
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Turn is a reserved place in a user's queue. It must be passed to Do
// exactly once.
type Turn struct {
	m      *Manager
	userID int64
	e      *entry
	ready  chan struct{}
	err    error
}

// Reserve takes the next place in the user's queue. Turns for the same user
// run in the order they were reserved, regardless of when Do is called.
func (m *Manager) Reserve(userID int64) *Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &Turn{m: m, userID: userID, ready: make(chan struct{})}
	if m.closed {
		t.err = ErrClosed
		return t
	}

	e, ok := m.entries[userID]
	if !ok {
		e = &entry{lastSeen: m.now()}
		m.entries[userID] = e
	}
	e.refs++
	t.e = e

	if e.busy {
		e.waiters = append(e.waiters, t.ready)
	} else {
		e.busy = true
		close(t.ready)
	}
	return t
}

// Do waits for the turn and runs fn with exclusive access to the user's
// session. If ctx ends first, Do gives up its place and returns ctx.Err()
// without running fn.
func (t *Turn) Do(ctx context.Context, fn func(*Session) error) error {
	if t.err != nil {
		return t.err
	}
	m := t.m

	select {
	case <-t.ready:
	case <-ctx.Done():
		m.abandon(t)
		return ctx.Err()
	}
	defer m.finish(t)

	t.e.session.UserID = t.userID
	err := fn(&t.e.session)

	m.mu.Lock()
	t.e.lastSeen = m.now()
	t.e.snapshot = t.e.session.state
	m.mu.Unlock()

	return err
}

// Do runs fn with exclusive access to the user's session. Calls for the same
// user run one at a time in the order they entered Do; calls for different
// users do not block each other.
func (m *Manager) Do(ctx context.Context, userID int64, fn func(*Session) error) error {
	return m.Reserve(userID).Do(ctx, fn)
}

// Peek returns the user's state as of the last completed Do.
func (m *Manager) Peek(userID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[userID]; ok {
		return e.snapshot
	}
	return State{}
}

// abandon drops a turn whose context ended while it waited. A turn that was
// handed the slot in the meantime passes it on.
func (m *Manager) abandon(t *Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := t.e
	for i, w := range e.waiters {
		if w == t.ready {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			m.releaseLocked(t.userID, e)
			return
		}
	}
	m.handOffLocked(t)
}

func (m *Manager) finish(t *Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handOffLocked(t)
}

// handOffLocked gives the slot to the oldest waiter, or frees it.
func (m *Manager) handOffLocked(t *Turn) {
	e := t.e
	if len(e.waiters) > 0 {
		next := e.waiters[0]
		e.waiters = e.waiters[1:]
		close(next)
	} else {
		e.busy = false
	}
	m.releaseLocked(t.userID, e)
}

func (m *Manager) releaseLocked(userID int64, e *entry) {
	e.refs--
	// Idle entries with no waiters carry nothing worth keeping.
	if e.refs == 0 && e.snapshot.Idle() && m.entries[userID] == e {
		delete(m.entries, userID)
	}
}

// Len returns the number of tracked sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep drops sessions idle for longer than the idle timeout and returns how
// many were removed. Sessions in use are never dropped.
func (m *Manager) Sweep() int {
	if m.idleTimeout <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.idleTimeout)
	removed := 0
	for id, e := range m.entries {
		if e.refs == 0 && e.lastSeen.Before(cutoff) {
			delete(m.entries, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug("swept idle sessions", "removed", removed, "remaining", len(m.entries))
	}
	return removed
}

// Run sweeps idle sessions every interval until ctx is done, then drops all
// sessions.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Close()
			return nil
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Close drops every session. Turns already reserved still run in order;
// later calls to Do return ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.entries)
	m.closed = true
	m.entries = make(map[int64]*entry)
	m.logger.Info("sessions cleared", "count", n)
}
