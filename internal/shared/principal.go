package shared

// PrincipalStatus is the lifecycle state of an account.
type PrincipalStatus string

const (
	PrincipalActive    PrincipalStatus = "active"
	PrincipalSuspended PrincipalStatus = "suspended"
	PrincipalDeleted   PrincipalStatus = "deleted"
)

// Valid reports whether s is a known status.
func (s PrincipalStatus) Valid() bool {
	switch s {
	case PrincipalActive, PrincipalSuspended, PrincipalDeleted:
		return true
	}
	return false
}
