package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-tally/tally/internal/shared"
	"github.com/civic-tally/tally/internal/token"
)

var t0 = time.Date(2024, 11, 5, 8, 0, 0, 0, time.UTC)

type gateFixture struct {
	clock *testclock.Clock
	codec *token.Codec
	revs  *stubRevocations
	store *stubPermissionStore
	gate  *Gate
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	clk := testclock.NewClock(t0)
	codec, err := token.NewCodec("gate-secret", clk)
	require.NoError(t, err)
	revs := newStubRevocations()
	store := &stubPermissionStore{
		roles: map[int64][]shared.Permission{42: {perm("users", "list_users")}},
	}
	return &gateFixture{
		clock: clk,
		codec: codec,
		revs:  revs,
		store: store,
		gate:  NewGate(codec, revs, NewService(store)),
	}
}

func (f *gateFixture) token(t *testing.T, id string) string {
	t.Helper()
	raw, err := f.codec.Encode(token.Claims{ID: id, PrincipalID: 42, IssuedAt: t0, ExpiresAt: t0.Add(30 * time.Minute)})
	require.NoError(t, err)
	return raw
}

func TestGateAdmitsValidToken(t *testing.T) {
	f := newGateFixture(t)
	grant, err := f.gate.Authorize(context.Background(), f.token(t, "s1"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), grant.PrincipalID)
	assert.Equal(t, "s1", grant.SessionID)
	assert.Equal(t, []shared.Permission{perm("users", "list_users")}, grant.Permissions)
	assert.Equal(t, []string{"blacklist", "session"}, f.revs.calls)
}

func TestGateFailureOrder(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()

	_, err := f.gate.Authorize(ctx, "")
	require.ErrorIs(t, err, shared.ErrTokenMissing)

	_, err = f.gate.Authorize(ctx, "nonsense")
	require.ErrorIs(t, err, shared.ErrTokenMalformed)

	raw := f.token(t, "s2")
	f.revs.blacklisted["s2"] = true
	f.revs.closed["s2"] = true
	_, err = f.gate.Authorize(ctx, raw)
	require.ErrorIs(t, err, shared.ErrTokenRevoked, "blacklist is checked before session state")

	f.revs.blacklisted["s2"] = false
	_, err = f.gate.Authorize(ctx, raw)
	require.ErrorIs(t, err, shared.ErrSessionClosed)

	f.revs.calls = nil
	f.clock.Advance(31 * time.Minute)
	_, err = f.gate.Authorize(ctx, raw)
	require.ErrorIs(t, err, shared.ErrTokenExpired)
	assert.Empty(t, f.revs.calls, "expired tokens never reach storage")
}

func TestGateCheckAction(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()
	raw := f.token(t, "s3")

	_, err := f.gate.Check(ctx, raw, "list_users")
	require.NoError(t, err)

	_, err = f.gate.Check(ctx, raw, "delete_user_permanently")
	require.ErrorIs(t, err, shared.ErrForbidden)
}
