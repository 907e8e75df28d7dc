package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-tally/tally/internal/shared"
	"github.com/civic-tally/tally/internal/token"
)

func issueFor(t *testing.T, f *fixture, principalID int64) Issued {
	t.Helper()
	if _, ok := f.store.sources[principalID]; !ok {
		f.store.sources[principalID] = TimeoutSources{}
	}
	issued, err := f.issuer.Issue(context.Background(), principalID)
	require.NoError(t, err)
	return issued
}

func TestLogoutClosesAndBlacklists(t *testing.T) {
	f := newFixture(t)
	issued := issueFor(t, f, 42)
	ctx := context.Background()

	require.NoError(t, f.registry.Logout(ctx, issued.Token))
	assert.Equal(t, StatusClosedLogout, f.store.sessions[issued.SessionID].Status)

	revoked, err := f.registry.IsBlacklisted(ctx, issued.SessionID)
	require.NoError(t, err)
	assert.True(t, revoked)

	open, err := f.registry.SessionOpen(ctx, issued.SessionID)
	require.NoError(t, err)
	assert.False(t, open)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	issued := issueFor(t, f, 42)
	ctx := context.Background()

	require.NoError(t, f.registry.Logout(ctx, issued.Token))
	require.NoError(t, f.registry.Logout(ctx, issued.Token))
	assert.Equal(t, StatusClosedLogout, f.store.sessions[issued.SessionID].Status)
	assert.Len(t, f.store.blacklist, 1)
}

func TestLogoutAcceptsExpiredToken(t *testing.T) {
	f := newFixture(t)
	issued := issueFor(t, f, 42)
	f.clock.Advance(2 * time.Hour)

	_, err := f.codec.Verify(issued.Token)
	require.ErrorIs(t, err, shared.ErrTokenExpired)
	require.NoError(t, f.registry.Logout(context.Background(), issued.Token))
	assert.Equal(t, StatusClosedLogout, f.store.sessions[issued.SessionID].Status)
}

func TestLogoutRejectsBadTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.ErrorIs(t, f.registry.Logout(ctx, ""), shared.ErrTokenMissing)
	require.ErrorIs(t, f.registry.Logout(ctx, "garbage"), shared.ErrTokenMalformed)

	foreign, err := token.NewCodec("someone-else", f.clock)
	require.NoError(t, err)
	raw, err := foreign.Encode(token.Claims{ID: "x", PrincipalID: 1, IssuedAt: t0, ExpiresAt: t0.Add(time.Hour)})
	require.NoError(t, err)
	require.ErrorIs(t, f.registry.Logout(ctx, raw), shared.ErrTokenSignatureInvalid)
	assert.Empty(t, f.store.blacklist)
}

func TestForceLogoutClosesOnlyThatPrincipal(t *testing.T) {
	f := newFixture(t)
	a1 := issueFor(t, f, 42)
	a2 := issueFor(t, f, 42)
	other := issueFor(t, f, 7)
	ctx := context.Background()

	count, err := f.registry.ForceLogout(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, StatusClosedForced, f.store.sessions[a1.SessionID].Status)
	assert.Equal(t, StatusClosedForced, f.store.sessions[a2.SessionID].Status)
	assert.Equal(t, StatusActive, f.store.sessions[other.SessionID].Status)

	count, err = f.registry.ForceLogout(ctx, 42)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = f.registry.ForceLogout(ctx, 0)
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestSessionOpenUnknownSession(t *testing.T) {
	f := newFixture(t)
	open, err := f.registry.SessionOpen(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, open)
}

func TestBlacklistEntryLapsesWithToken(t *testing.T) {
	f := newFixture(t)
	issued := issueFor(t, f, 42)
	ctx := context.Background()
	require.NoError(t, f.registry.Logout(ctx, issued.Token))

	f.clock.Advance(61 * time.Minute)
	revoked, err := f.registry.IsBlacklisted(ctx, issued.SessionID)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRegistryWithRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t)
	cache := NewRedisBlacklist(client, f.clock)
	f.registry = NewRegistry(f.codec, f.store, cache, nil)
	issued := issueFor(t, f, 42)
	ctx := context.Background()

	require.NoError(t, f.registry.Logout(ctx, issued.Token))
	assert.True(t, mr.Exists(blacklistKeyPrefix+issued.SessionID))

	// Cache hit answers without the store.
	delete(f.store.blacklist, issued.SessionID)
	revoked, err := f.registry.IsBlacklisted(ctx, issued.SessionID)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRegistryFallsBackWhenCacheFails(t *testing.T) {
	f := newFixture(t)
	f.registry = NewRegistry(f.codec, f.store, flakyBlacklist{}, nil)
	issued := issueFor(t, f, 42)
	ctx := context.Background()

	require.NoError(t, f.registry.Logout(ctx, issued.Token))
	revoked, err := f.registry.IsBlacklisted(ctx, issued.SessionID)
	require.NoError(t, err)
	assert.True(t, revoked)
}
