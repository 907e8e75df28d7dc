package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepPrunesLapsedState(t *testing.T) {
	f := newFixture(t)
	closed := issueFor(t, f, 1)
	open := issueFor(t, f, 2)
	ctx := context.Background()
	require.NoError(t, f.registry.Logout(ctx, closed.Token))

	result, err := NewSweeper(f.store, nil).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)

	f.clock.Advance(2 * time.Hour)
	result, err = NewSweeper(f.store, nil).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{BlacklistPruned: 1, SessionsExpired: 1}, result)
	assert.Equal(t, StatusExpired, f.store.sessions[open.SessionID].Status)
	assert.Equal(t, StatusClosedLogout, f.store.sessions[closed.SessionID].Status)
}
