package core

// session.go holds per-user state.
//
// Each Session owns one State and serializes every action on it, so a
// session behaves as a single logical actor even when its HTTP requests
// overlap. Handlers never mutate a State in place: Update hands the current
// State to a function that returns the next one, and the session commits it
// only when that function succeeds. A failed action leaves the previous state
// untouched.

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionIdleTimeout is how long an untouched session is kept.
const DefaultSessionIdleTimeout = 2 * time.Hour

// State is everything a session knows about its workbook.
type State struct {
	Workbook *Workbook
	FileName string
	Active   string
	Pending  *PendingEdit
}

// Loaded reports whether a workbook has been uploaded.
func (st State) Loaded() bool {
	return st.Workbook != nil
}

// Session is one user's workbook state.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	state    State
	lastSeen atomic.Int64
}

// NewSession creates an empty session with the given id.
func NewSession(id string) *Session {
	now := time.Now()
	s := &Session{ID: id, CreatedAt: now}
	s.lastSeen.Store(now.UnixNano())
	return s
}

// Update applies fn to the current state and commits the result if fn
// returns no error.
func (s *Session) Update(fn func(State) (State, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(s.state)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// View runs fn with the current state. Lazily decoded sheets are memoized
// during the call, so View takes the same lock as Update.
func (s *Session) View(fn func(State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

// Close drops the session's workbook and releases its source.
func (s *Session) Close() {
	s.mu.Lock()
	prev := s.state.Workbook
	s.state = State{}
	s.mu.Unlock()
	retire(prev, nil)
}

// touch records activity on the session.
func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// SessionStore keeps the live sessions of the process.
type SessionStore struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	idleTimeout time.Duration
	max         int
}

// NewSessionStore creates a store that expires sessions idle for longer than
// idleTimeout and holds at most max sessions (0 means unlimited).
func NewSessionStore(idleTimeout time.Duration, max int) *SessionStore {
	if idleTimeout <= 0 {
		idleTimeout = DefaultSessionIdleTimeout
	}
	return &SessionStore{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
		max:         max,
	}
}

// Create starts a new session with a random id.
func (s *SessionStore) Create() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.max > 0 && len(s.sessions) >= s.max {
		return nil, ErrTooManySessions
	}
	sess := NewSession(uuid.New().String())
	s.sessions[sess.ID] = sess
	return sess, nil
}

// Get returns a live session and marks it as used.
func (s *SessionStore) Get(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	now := time.Now()
	if !ok || now.Sub(sess.LastSeen()) > s.idleTimeout {
		return nil, ErrSessionNotFound
	}
	sess.touch(now)
	return sess, nil
}

// Delete drops a session and releases its workbook.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		sess.Close()
	}
}

// Len returns the number of sessions held, expired or not.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes sessions idle since before now minus the idle timeout and
// returns how many were removed.
func (s *SessionStore) Sweep(now time.Time) int {
	s.mu.Lock()
	var expired []*Session
	for id, sess := range s.sessions {
		if now.Sub(sess.LastSeen()) > s.idleTimeout {
			delete(s.sessions, id)
			expired = append(expired, sess)
		}
	}
	s.mu.Unlock()

	// Closed outside the store lock: a session may be busy in a request.
	for _, sess := range expired {
		sess.Close()
	}
	return len(expired)
}

// StartSweeper removes idle sessions every interval until ctx is cancelled.
// It blocks; run it in its own goroutine.
func (s *SessionStore) StartSweeper(ctx context.Context, interval time.Duration) {
	slog.Info("session sweeper started",
		"interval", interval,
		"idle_timeout", s.idleTimeout,
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweeper stopped")
			return
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				slog.Info("expired idle sessions", "removed", n, "remaining", s.Len())
			}
		}
	}
}
