package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/civic-tally/tally/internal/jobs"
	"github.com/civic-tally/tally/internal/sessions"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Sweeper runs one session sweep pass.
type Sweeper interface {
	Sweep(ctx context.Context) (sessions.SweepResult, error)
}

// SessionsSweepJob handles TaskSessionsSweep.
type SessionsSweepJob struct {
	Sweeper Sweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSessionsSweepJob wires dependencies for the sweep handler.
func NewSessionsSweepJob(sweeper Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionsSweepJob {
	return &SessionsSweepJob{Sweeper: sweeper, Logger: logger, Metrics: metrics}
}

// Handle processes sweep tasks.
func (j *SessionsSweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sweeper == nil {
		return errors.New("sessions sweep: handler not configured")
	}
	tracker := j.metrics().Track(TaskSessionsSweep)
	defer func() {
		err = tracker.End(err)
	}()

	var payload SessionsSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("sessions sweep: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	logger := j.logger()
	if !payload.RequestedAt.IsZero() {
		logger = logger.With(slog.Time("requested_at", payload.RequestedAt))
	}

	start := time.Now()
	result, err := j.Sweeper.Sweep(ctx)
	if err != nil {
		logger.Error("sweep failed", slog.Any("error", err))
		return err
	}
	j.metrics().AddSwept("blacklist", result.BlacklistPruned)
	j.metrics().AddSwept("sessions", result.SessionsExpired)
	logger.Info("completed session sweep", slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *SessionsSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSessionsSweep))
	}
	return slog.Default().With(slog.String("job", TaskSessionsSweep))
}

func (j *SessionsSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
