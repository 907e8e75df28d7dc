package roles

import "time"

// Role groups permissions and may carry a session timeout override.
type Role struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	SessionTimeout *int      `json:"sessionTimeout,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
