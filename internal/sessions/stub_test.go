package sessions

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/civic-tally/tally/internal/shared"
)

var errStoreDown = errors.New("store down")

// memoryStore is an in-memory stand-in for Repository.
type memoryStore struct {
	mu sync.Mutex

	now       func() time.Time
	sources   map[int64]TimeoutSources
	sessions  map[string]Session
	blacklist map[string]time.Time
	global    int

	failCreate bool
	failLookup bool
}

func newMemoryStore(now func() time.Time) *memoryStore {
	return &memoryStore{
		now:       now,
		sources:   map[int64]TimeoutSources{},
		sessions:  map[string]Session{},
		blacklist: map[string]time.Time{},
	}
}

func (m *memoryStore) TimeoutSources(_ context.Context, principalID int64) (TimeoutSources, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLookup {
		return TimeoutSources{}, errStoreDown
	}
	return m.sources[principalID], nil
}

func (m *memoryStore) CreateSession(_ context.Context, session Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate {
		return errStoreDown
	}
	m.sessions[session.ID] = session
	return nil
}

func (m *memoryStore) SessionStatus(_ context.Context, id string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return "", shared.ErrNotFound
	}
	return s.Status, nil
}

func (m *memoryStore) CloseSession(_ context.Context, req CloseRequest) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	closed := false
	if s, ok := m.sessions[req.SessionID]; ok && s.Status == StatusActive {
		s.Status = req.Reason
		m.sessions[req.SessionID] = s
		closed = true
	}
	if _, ok := m.blacklist[req.SessionID]; !ok {
		m.blacklist[req.SessionID] = req.ExpiresAt
	}
	return closed, nil
}

func (m *memoryStore) CloseActiveSessions(_ context.Context, principalID int64, reason Status) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.PrincipalID == principalID && s.Status == StatusActive {
			s.Status = reason
			m.sessions[id] = s
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) IsBlacklisted(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.blacklist[tokenID]
	return ok && exp.After(m.now()), nil
}

func (m *memoryStore) PruneBlacklist(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, exp := range m.blacklist {
		if !exp.After(m.now()) {
			delete(m.blacklist, id)
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) ExpireSessions(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.Status == StatusActive && !s.ExpiresAt.After(m.now()) {
			s.Status = StatusExpired
			m.sessions[id] = s
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) GlobalTimeout(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.global, nil
}

func (m *memoryStore) SetGlobalTimeout(_ context.Context, minutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.global = minutes
	return nil
}

func (m *memoryStore) SetPrincipalTimeout(_ context.Context, principalID int64, minutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[principalID]
	if !ok {
		return shared.ErrNotFound
	}
	src.Principal = minutes
	m.sources[principalID] = src
	return nil
}

func (m *memoryStore) SetRoleTimeout(_ context.Context, roleID int64, minutes int) error {
	if roleID != 7 {
		return shared.ErrNotFound
	}
	return nil
}

// passGuard lets every request through.
type passGuard struct{ required []string }

func (g *passGuard) Authenticate(next http.Handler) http.Handler { return next }

func (g *passGuard) Require(action string) func(http.Handler) http.Handler {
	g.required = append(g.required, action)
	return func(next http.Handler) http.Handler { return next }
}

// flakyBlacklist fails every call.
type flakyBlacklist struct{}

func (flakyBlacklist) Add(context.Context, string, time.Time) error { return errStoreDown }

func (flakyBlacklist) Contains(context.Context, string) (bool, error) { return false, errStoreDown }
