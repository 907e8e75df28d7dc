package auth

import (
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/civic-tally/tally/internal/shared"
)

// Principal is the credential view of an account.
type Principal struct {
	ID         int64
	Identifier string
	SecretHash string
	Status     shared.PrincipalStatus
}

// Outcome tags a login attempt in the audit trail.
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeUnknownIdentifier Outcome = "unknown_identifier"
	OutcomeSecretMismatch    Outcome = "secret_mismatch"
	OutcomeSuspended         Outcome = "account_suspended"
	OutcomeDeleted           Outcome = "account_deleted"
)

// LoginRecord is one row of the login audit trail. PrincipalID is zero when
// the identifier matched nobody.
type LoginRecord struct {
	PrincipalID int64
	Identifier  string
	SourceAddr  string
	Outcome     Outcome
	At          time.Time
}

// NormalizeIdentifier case-folds an identifier for lookup.
func NormalizeIdentifier(identifier string) string {
	return cases.Fold().String(strings.TrimSpace(identifier))
}
