package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/civic-tally/tally/internal/shared"
	"github.com/civic-tally/tally/internal/token"
)

// SessionWriter persists newly issued sessions.
type SessionWriter interface {
	CreateSession(ctx context.Context, session Session) error
}

// Issuer creates a session and its signed token for a verified principal.
type Issuer struct {
	policy *TimeoutPolicy
	codec  *token.Codec
	store  SessionWriter
	clock  clock.Clock
	newID  func() string
}

// NewIssuer constructs an Issuer.
func NewIssuer(policy *TimeoutPolicy, codec *token.Codec, store SessionWriter, clk clock.Clock) *Issuer {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Issuer{
		policy: policy,
		codec:  codec,
		store:  store,
		clock:  clk,
		newID:  uuid.NewString,
	}
}

// Issue resolves the effective timeout, records an active session and returns
// the token bound to it. Nothing is returned when the session cannot be stored.
func (i *Issuer) Issue(ctx context.Context, principalID int64) (Issued, error) {
	timeout, err := i.policy.EffectiveTimeout(ctx, principalID)
	if err != nil {
		return Issued{}, err
	}

	// Token timestamps have second precision; keep the row identical.
	issuedAt := i.clock.Now().UTC().Truncate(time.Second)
	session := Session{
		ID:          i.newID(),
		PrincipalID: principalID,
		IssuedAt:    issuedAt,
		ExpiresAt:   issuedAt.Add(time.Duration(timeout.Minutes) * time.Minute),
		Status:      StatusActive,
	}

	raw, err := i.codec.Encode(token.Claims{
		ID:          session.ID,
		PrincipalID: principalID,
		IssuedAt:    session.IssuedAt,
		ExpiresAt:   session.ExpiresAt,
	})
	if err != nil {
		return Issued{}, err
	}

	if err := i.store.CreateSession(ctx, session); err != nil {
		return Issued{}, fmt.Errorf("%w: %v", shared.ErrIssuanceStorage, err)
	}

	return Issued{
		Token:     raw,
		SessionID: session.ID,
		IssuedAt:  session.IssuedAt,
		ExpiresAt: session.ExpiresAt,
		Timeout:   timeout,
	}, nil
}
