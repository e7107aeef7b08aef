package inmemory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mordechaipotash/talmudic-study-app/models"
	"github.com/mordechaipotash/talmudic-study-app/session"
)

// Store keeps navigation sessions in process memory.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

func (store *Store) EnsureSession(id string, ttl time.Duration) (session.Session, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.pruneLocked()
	if id != "" {
		if sess, ok := store.sessions[id]; ok {
			sess.Expire(ttl)
			return sess, nil
		}
	}
	sess := &Session{id: uuid.NewString(), expiresAt: time.Now().Add(ttl)}
	store.sessions[sess.id] = sess
	return sess, nil
}

func (store *Store) GetSession(id string) (session.Session, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	sess, ok := store.sessions[id]
	if !ok {
		return nil, nil
	}
	if sess.expired() {
		delete(store.sessions, id)
		return nil, nil
	}
	return sess, nil
}

// pruneLocked evicts every expired session so abandoned ids do not accumulate.
func (store *Store) pruneLocked() {
	for id, sess := range store.sessions {
		if sess.expired() {
			delete(store.sessions, id)
		}
	}
}

// Session is an in-memory navigation session.
type Session struct {
	mu        sync.Mutex
	id        string
	expiresAt time.Time
	state     models.NavigationState
}

func (s *Session) ID() string { return s.id }

func (s *Session) Expire(ttl time.Duration) {
	s.mu.Lock()
	s.expiresAt = time.Now().Add(ttl)
	s.mu.Unlock()
}

func (s *Session) expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().After(s.expiresAt)
}

func (s *Session) State() (models.NavigationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Path = append([]string(nil), s.state.Path...)
	st.Expanded = append([]string(nil), s.state.Expanded...)
	if s.state.ExpandedCommentary != nil {
		st.ExpandedCommentary = make(map[string]string, len(s.state.ExpandedCommentary))
		for k, v := range s.state.ExpandedCommentary {
			st.ExpandedCommentary[k] = v
		}
	}
	return st, nil
}

func (s *Session) mutate(fn func(models.NavigationState) models.NavigationState) error {
	s.mu.Lock()
	s.state = fn(s.state)
	s.mu.Unlock()
	return nil
}

func (s *Session) Append(ref string) error {
	return s.mutate(func(st models.NavigationState) models.NavigationState { return session.AppendRef(st, ref) })
}

func (s *Session) TruncateToParent() error {
	return s.mutate(session.TruncateToParent)
}

func (s *Session) Clear() error { return s.mutate(session.ClearPath) }

func (s *Session) ToggleExpanded(ref string) error {
	return s.mutate(func(st models.NavigationState) models.NavigationState { return session.ToggleExpanded(st, ref) })
}

func (s *Session) SetExpandedCommentary(sectionRef, commentaryRef string) error {
	return s.mutate(func(st models.NavigationState) models.NavigationState {
		return session.SetExpandedCommentary(st, sectionRef, commentaryRef)
	})
}
