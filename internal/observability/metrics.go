package observability

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus series exported by tally.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	loginAttempts   *prometheus.CounterVec
	feedSubscribers prometheus.Gauge
	feedEvents      prometheus.Counter
	feedDropped     prometheus.Counter
	feedReconnects  prometheus.Counter
	feedConnected   prometheus.Gauge
}

// NewMetrics builds the registry and its collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tally_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_login_attempts_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})
	subscribers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tally_feed_subscribers",
		Help: "Subscribers currently registered with the change feed relay.",
	})
	events := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tally_feed_events_total",
		Help: "Change events received from upstream.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tally_feed_dropped_total",
		Help: "Subscribers removed because delivery would have blocked or failed.",
	})
	reconnects := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tally_feed_reconnects_total",
		Help: "Upstream subscriptions established after the first.",
	})
	connected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tally_feed_connected",
		Help: "1 while the relay holds an upstream subscription.",
	})
	registry.MustRegister(requests, duration, logins, subscribers, events, dropped, reconnects, connected)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		loginAttempts:   logins,
		feedSubscribers: subscribers,
		feedEvents:      events,
		feedDropped:     dropped,
		feedReconnects:  reconnects,
		feedConnected:   connected,
	}
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and duration by route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// LoginAttempt counts one credential verification outcome.
func (m *Metrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(outcome).Inc()
}

// FeedSubscribers sets the current registry size.
func (m *Metrics) FeedSubscribers(n int) {
	if m == nil {
		return
	}
	m.feedSubscribers.Set(float64(n))
}

// FeedEvent counts an upstream event.
func (m *Metrics) FeedEvent() {
	if m == nil {
		return
	}
	m.feedEvents.Inc()
}

// FeedDropped counts subscribers evicted during fan-out.
func (m *Metrics) FeedDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.feedDropped.Add(float64(n))
}

// FeedConnected records an upstream state change. reconnect is true for
// every subscription after the first.
func (m *Metrics) FeedConnected(connected, reconnect bool) {
	if m == nil {
		return
	}
	if connected {
		m.feedConnected.Set(1)
		if reconnect {
			m.feedReconnects.Inc()
		}
		return
	}
	m.feedConnected.Set(0)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes through so websocket upgrades work behind the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("observability: response writer cannot hijack")
	}
	return h.Hijack()
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
