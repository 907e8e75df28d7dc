package users

import (
	"time"

	"github.com/civic-tally/tally/internal/shared"
)

// User is a principal as seen by administrators. The credential hash never leaves the repository.
type User struct {
	ID             int64                  `json:"id"`
	Identifier     string                 `json:"identifier"`
	Status         shared.PrincipalStatus `json:"status"`
	SessionTimeout *int                   `json:"sessionTimeout,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

// NewUser carries the fields needed to provision a principal.
type NewUser struct {
	Identifier    string
	IdentifierKey string
	SecretHash    string
}

// StatusChange reports a status transition and the sessions it closed.
type StatusChange struct {
	User           User  `json:"user"`
	SessionsClosed int64 `json:"sessionsClosed"`
}

// endsSessions reports whether moving into s must close live sessions.
func endsSessions(s shared.PrincipalStatus) bool {
	return s == shared.PrincipalSuspended || s == shared.PrincipalDeleted
}
