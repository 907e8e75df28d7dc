package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionsSweep prunes lapsed blacklist rows and expires lapsed sessions.
	TaskSessionsSweep = "sessions:sweep"
)

// SessionsSweepPayload carries scheduling metadata.
type SessionsSweepPayload struct {
	RequestedAt time.Time `json:"requested_at"`
}

// NewSessionsSweepTask constructs an Asynq task for the session sweep.
func NewSessionsSweepTask(at time.Time, timeout time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(SessionsSweepPayload{RequestedAt: at.UTC()})
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(3)}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	return asynq.NewTask(TaskSessionsSweep, body, opts...), nil
}
