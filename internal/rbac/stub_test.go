package rbac

import (
	"context"
	"errors"
	"sync"

	"github.com/civic-tally/tally/internal/shared"
)

var errStore = errors.New("store unavailable")

type stubPermissionStore struct {
	direct map[int64][]shared.Permission
	roles  map[int64][]shared.Permission
	all    []PermissionRecord
	fail   bool
}

func (s *stubPermissionStore) DirectPermissions(_ context.Context, id int64) ([]shared.Permission, error) {
	if s.fail {
		return nil, errStore
	}
	return s.direct[id], nil
}

func (s *stubPermissionStore) RolePermissions(_ context.Context, id int64) ([]shared.Permission, error) {
	if s.fail {
		return nil, errStore
	}
	return s.roles[id], nil
}

func (s *stubPermissionStore) ListPermissions(context.Context) ([]PermissionRecord, error) {
	if s.fail {
		return nil, errStore
	}
	return s.all, nil
}

type stubRevocations struct {
	mu          sync.Mutex
	blacklisted map[string]bool
	closed      map[string]bool
	calls       []string
}

func newStubRevocations() *stubRevocations {
	return &stubRevocations{blacklisted: map[string]bool{}, closed: map[string]bool{}}
}

func (s *stubRevocations) IsBlacklisted(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "blacklist")
	return s.blacklisted[id], nil
}

func (s *stubRevocations) SessionOpen(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "session")
	return !s.closed[id], nil
}

func perm(name, action string) shared.Permission {
	return shared.Permission{Name: name, Description: name + " description", Action: action}
}
