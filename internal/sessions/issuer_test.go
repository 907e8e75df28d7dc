package sessions

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

type fixture struct {
	clock    *testclock.Clock
	codec    *token.Codec
	store    *memoryStore
	settings *Settings
	issuer   *Issuer
	registry *Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := testclock.NewClock(t0.Add(500 * time.Millisecond))
	codec, err := token.NewCodec("sessions-test-secret", clk)
	require.NoError(t, err)
	store := newMemoryStore(clk.Now)
	settings, err := NewSettings(store, 60)
	require.NoError(t, err)
	policy := NewTimeoutPolicy(store, settings)
	return &fixture{
		clock:    clk,
		codec:    codec,
		store:    store,
		settings: settings,
		issuer:   NewIssuer(policy, codec, store, clk),
		registry: NewRegistry(codec, store, nil, nil),
	}
}

func TestIssueRecordsActiveSession(t *testing.T) {
	f := newFixture(t)
	f.store.sources[42] = TimeoutSources{Roles: []int{30}}

	issued, err := f.issuer.Issue(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, Timeout{Minutes: 30, Level: LevelRole}, issued.Timeout)
	assert.Equal(t, t0, issued.IssuedAt, "issuance truncated to the second")
	assert.Equal(t, t0.Add(30*time.Minute), issued.ExpiresAt)

	stored, ok := f.store.sessions[issued.SessionID]
	require.True(t, ok)
	assert.Equal(t, StatusActive, stored.Status)
	assert.Equal(t, int64(42), stored.PrincipalID)
	assert.Equal(t, issued.ExpiresAt, stored.ExpiresAt)

	claims, err := f.codec.Verify(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, issued.SessionID, claims.ID)
	assert.Equal(t, int64(42), claims.PrincipalID)
	assert.True(t, claims.ExpiresAt.Equal(stored.ExpiresAt))
}

func TestIssueUniqueSessionsPerLogin(t *testing.T) {
	f := newFixture(t)
	f.store.sources[42] = TimeoutSources{}

	a, err := f.issuer.Issue(context.Background(), 42)
	require.NoError(t, err)
	b, err := f.issuer.Issue(context.Background(), 42)
	require.NoError(t, err)
	assert.NotEqual(t, a.SessionID, b.SessionID)
	assert.Len(t, f.store.sessions, 2)
}

func TestIssueStorageFailureReturnsNoToken(t *testing.T) {
	f := newFixture(t)
	f.store.sources[42] = TimeoutSources{}
	f.store.failCreate = true

	issued, err := f.issuer.Issue(context.Background(), 42)
	require.ErrorIs(t, err, shared.ErrIssuanceStorage)
	assert.Empty(t, issued.Token)
	assert.Empty(t, f.store.sessions)
}
