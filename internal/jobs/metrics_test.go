package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("sessions:sweep").End(nil))
	boom := errors.New("boom")
	assert.Same(t, boom, m.Track("sessions:sweep").End(boom))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("sessions:sweep", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("sessions:sweep", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("sessions:sweep")))
}

func TestAddSwept(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddSwept("blacklist", 3)
	m.AddSwept("blacklist", 0)
	m.AddSwept("sessions", 2)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.swept.WithLabelValues("blacklist")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.swept.WithLabelValues("sessions")))

	var nilMetrics *Metrics
	nilMetrics.AddSwept("sessions", 1)
	assert.NoError(t, nilMetrics.Track("x").End(nil))
}
