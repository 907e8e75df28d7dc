package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/civic-tally/tally/internal/shared"
)

type memoryRepo struct {
	users  map[int64]User
	hashes map[int64]string
	keys   map[string]int64
	active map[int64]bool
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users:  map[int64]User{},
		hashes: map[int64]string{},
		keys:   map[string]int64{},
		active: map[int64]bool{},
	}
}

func (m *memoryRepo) ListUsers(context.Context) ([]User, error) {
	var out []User
	for id := int64(1); id <= m.nextID; id++ {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memoryRepo) CreateUser(_ context.Context, in NewUser) (User, error) {
	if _, taken := m.keys[in.IdentifierKey]; taken {
		return User{}, shared.ErrConflict
	}
	m.nextID++
	u := User{ID: m.nextID, Identifier: in.Identifier, Status: shared.PrincipalActive}
	m.users[u.ID] = u
	m.hashes[u.ID] = in.SecretHash
	m.keys[in.IdentifierKey] = u.ID
	return u, nil
}

func (m *memoryRepo) UpdateStatus(_ context.Context, id int64, status shared.PrincipalStatus) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	u.Status = status
	m.users[id] = u
	return u, nil
}

func (m *memoryRepo) Purge(_ context.Context, id int64) error {
	u, ok := m.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	if err := purgeAllowed(u.Status, m.active[id]); err != nil {
		return err
	}
	delete(m.users, id)
	return nil
}

type fakeRevoker struct {
	repo   *memoryRepo
	forced []int64
	fail   bool
}

func (f *fakeRevoker) ForceLogout(_ context.Context, id int64) (int64, error) {
	if f.fail {
		return 0, errors.New("db down")
	}
	f.forced = append(f.forced, id)
	if f.repo.active[id] {
		f.repo.active[id] = false
		return 1, nil
	}
	return 0, nil
}

type auditSpy struct {
	entries []shared.AuditLog
}

func (a *auditSpy) Record(_ context.Context, log shared.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

func newTestService() (*Service, *memoryRepo, *fakeRevoker, *auditSpy) {
	repo := newMemoryRepo()
	revoker := &fakeRevoker{repo: repo}
	audit := &auditSpy{}
	svc := NewService(repo, revoker, audit, slog.Default())
	svc.cost = bcrypt.MinCost
	return svc, repo, revoker, audit
}

func TestCreateUserHashesSecret(t *testing.T) {
	svc, repo, _, audit := newTestService()
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, 1, "  Admin.Ops ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "Admin.Ops", user.Identifier)
	assert.Equal(t, shared.PrincipalActive, user.Status)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[user.ID]), []byte("correct horse")))
	assert.Contains(t, repo.keys, "admin.ops")

	_, err = svc.CreateUser(ctx, 1, "ADMIN.OPS", "another secret")
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.CreateUser(ctx, 1, "   ", "another secret")
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, "create_user", audit.entries[0].Action)
}

func TestUpdateStatusForcesLogout(t *testing.T) {
	svc, repo, revoker, audit := newTestService()
	ctx := context.Background()
	user, err := svc.CreateUser(ctx, 1, "clerk", "password123")
	require.NoError(t, err)
	repo.active[user.ID] = true

	change, err := svc.UpdateStatus(ctx, 1, user.ID, shared.PrincipalSuspended)
	require.NoError(t, err)
	assert.Equal(t, shared.PrincipalSuspended, change.User.Status)
	assert.Equal(t, int64(1), change.SessionsClosed)
	assert.Equal(t, []int64{user.ID}, revoker.forced)

	change, err = svc.UpdateStatus(ctx, 1, user.ID, shared.PrincipalActive)
	require.NoError(t, err)
	assert.Zero(t, change.SessionsClosed)
	assert.Len(t, revoker.forced, 1, "reactivation leaves sessions alone")

	last := audit.entries[len(audit.entries)-1]
	assert.Equal(t, "update_user_status", last.Action)
	assert.Equal(t, "active", last.Meta["status"])
}

func TestUpdateStatusRejectsUnknown(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.UpdateStatus(context.Background(), 1, 1, "archived")
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.UpdateStatus(context.Background(), 1, 99, shared.PrincipalDeleted)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateStatusSurfacesRevocationFailure(t *testing.T) {
	svc, _, revoker, _ := newTestService()
	ctx := context.Background()
	user, err := svc.CreateUser(ctx, 1, "clerk", "password123")
	require.NoError(t, err)
	revoker.fail = true

	_, err = svc.UpdateStatus(ctx, 1, user.ID, shared.PrincipalDeleted)
	require.Error(t, err)
}

func TestPurgeRules(t *testing.T) {
	svc, repo, _, _ := newTestService()
	ctx := context.Background()
	user, err := svc.CreateUser(ctx, 1, "clerk", "password123")
	require.NoError(t, err)

	require.ErrorIs(t, svc.Purge(ctx, 1, user.ID), shared.ErrConflict, "active principals cannot be purged")

	_, err = svc.UpdateStatus(ctx, 1, user.ID, shared.PrincipalDeleted)
	require.NoError(t, err)
	repo.active[user.ID] = true
	require.ErrorIs(t, svc.Purge(ctx, 1, user.ID), shared.ErrConflict, "live session blocks purge")

	repo.active[user.ID] = false
	require.NoError(t, svc.Purge(ctx, 1, user.ID))
	require.ErrorIs(t, svc.Purge(ctx, 1, user.ID), shared.ErrNotFound)
}

type passGuard struct {
	required []string
}

func (g *passGuard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shared.ContextWithGrant(r.Context(), &shared.Grant{PrincipalID: 1})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *passGuard) Require(action string) func(http.Handler) http.Handler {
	g.required = append(g.required, action)
	return func(next http.Handler) http.Handler { return next }
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerLifecycle(t *testing.T) {
	svc, repo, _, audit := newTestService()
	guard := &passGuard{}
	r := chi.NewRouter()
	NewHandler(slog.Default(), svc, guard).MountRoutes(r)
	assert.ElementsMatch(t, []string{"list_users", "create_user", "update_user", "delete_user_permanently"}, guard.required)

	rec := serve(r, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = serve(r, http.MethodPost, "/", `{"username":"clerk","password":"password123"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "$2a$")
	assert.Equal(t, int64(1), audit.entries[0].ActorID)

	rec = serve(r, http.MethodPost, "/", `{"username":"x","password":"password123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(r, http.MethodPatch, "/1/status", `{"status":"archived"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	repo.active[1] = true
	rec = serve(r, http.MethodPatch, "/1/status", `{"status":"deleted"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sessionsClosed":1`)

	rec = serve(r, http.MethodDelete, "/abc/permanent", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(r, http.MethodDelete, "/1/permanent", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = serve(r, http.MethodDelete, "/1/permanent", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerPurgeConflict(t *testing.T) {
	svc, _, _, _ := newTestService()
	r := chi.NewRouter()
	NewHandler(slog.Default(), svc, &passGuard{}).MountRoutes(r)

	require.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/", `{"username":"clerk","password":"password123"}`).Code)
	rec := serve(r, http.MethodDelete, "/1/permanent", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}
