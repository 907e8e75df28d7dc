// Package sessions issues bearer sessions, resolves their lifetime and tracks
// revocation (logout, blacklist, forced logout).
package sessions

import "time"

// Status is the lifecycle state of a session row.
type Status string

const (
	StatusActive       Status = "active"
	StatusClosedLogout Status = "closed-logout"
	StatusClosedForced Status = "closed-forced"
	StatusExpired      Status = "expired"
)

// Session is created at login and only ever mutated to close it.
type Session struct {
	ID          string
	PrincipalID int64
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Status      Status
}

// Issued is the result of a successful issuance.
type Issued struct {
	Token     string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Timeout   Timeout
}

// TimeoutSources are the per-principal overrides in minutes. Values outside
// 1..MaxTimeoutMinutes mean "not defined".
type TimeoutSources struct {
	Principal int
	Roles     []int
}

// SweepResult reports what a sweep pruned.
type SweepResult struct {
	BlacklistPruned int64
	SessionsExpired int64
}
