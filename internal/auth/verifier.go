package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/juju/clock"
	"golang.org/x/crypto/bcrypt"

	"github.com/civic-tally/tally/internal/shared"
)

// SecretMatcher compares a presented secret with a stored hash.
type SecretMatcher interface {
	Match(hash, secret string) bool
}

// BcryptMatcher matches bcrypt hashes.
type BcryptMatcher struct{}

// Match implements SecretMatcher.
func (BcryptMatcher) Match(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// LoginObserver counts verification outcomes.
type LoginObserver interface {
	LoginAttempt(outcome string)
}

// statusRejections maps non-active statuses to their failure.
var statusRejections = map[shared.PrincipalStatus]struct {
	outcome Outcome
	err     error
}{
	shared.PrincipalSuspended: {OutcomeSuspended, shared.ErrAccountSuspended},
	shared.PrincipalDeleted:   {OutcomeDeleted, shared.ErrAccountDeleted},
}

// Verifier checks login credentials. Each call writes exactly one login
// record and never changes the principal.
type Verifier struct {
	repo     Repository
	matcher  SecretMatcher
	clock    clock.Clock
	observer LoginObserver
	logger   *slog.Logger
}

// VerifierOption customises a Verifier.
type VerifierOption func(*Verifier)

// WithClock sets the time source for audit timestamps.
func WithClock(clk clock.Clock) VerifierOption {
	return func(v *Verifier) { v.clock = clk }
}

// WithMatcher replaces the bcrypt matcher.
func WithMatcher(m SecretMatcher) VerifierOption {
	return func(v *Verifier) { v.matcher = m }
}

// WithObserver attaches an outcome counter.
func WithObserver(o LoginObserver) VerifierOption {
	return func(v *Verifier) { v.observer = o }
}

// NewVerifier constructs a Verifier.
func NewVerifier(repo Repository, logger *slog.Logger, opts ...VerifierOption) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Verifier{repo: repo, matcher: BcryptMatcher{}, clock: clock.WallClock, logger: logger}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify returns the principal id for a matching identifier and secret.
func (v *Verifier) Verify(ctx context.Context, identifier, secret, sourceAddr string) (int64, error) {
	principal, err := v.repo.FindByIdentifier(ctx, NormalizeIdentifier(identifier))
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return 0, fmt.Errorf("auth: find principal: %w", err)
		}
		return 0, v.finish(ctx, LoginRecord{Identifier: identifier, SourceAddr: sourceAddr, Outcome: OutcomeUnknownIdentifier}, shared.ErrUnknownIdentifier)
	}

	record := LoginRecord{PrincipalID: principal.ID, Identifier: identifier, SourceAddr: sourceAddr}
	if principal.Status != shared.PrincipalActive {
		rejection, ok := statusRejections[principal.Status]
		if !ok {
			// Unrecognised statuses are treated as suspended.
			rejection = statusRejections[shared.PrincipalSuspended]
		}
		record.Outcome = rejection.outcome
		return 0, v.finish(ctx, record, rejection.err)
	}

	if !v.matcher.Match(principal.SecretHash, secret) {
		record.Outcome = OutcomeSecretMismatch
		return 0, v.finish(ctx, record, shared.ErrSecretMismatch)
	}

	record.Outcome = OutcomeSuccess
	if err := v.finish(ctx, record, nil); err != nil {
		return 0, err
	}
	return principal.ID, nil
}

// finish writes the audit record and returns failure, or the audit error if
// the record could not be stored.
func (v *Verifier) finish(ctx context.Context, record LoginRecord, failure error) error {
	record.At = v.clock.Now().UTC()
	if v.observer != nil {
		v.observer.LoginAttempt(string(record.Outcome))
	}
	if err := v.repo.RecordLogin(ctx, record); err != nil {
		v.logger.Error("record login attempt", slog.String("outcome", string(record.Outcome)), slog.Any("error", err))
		return fmt.Errorf("auth: record login: %w", err)
	}
	return failure
}
