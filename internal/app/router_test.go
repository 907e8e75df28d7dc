package app

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-tally/tally/internal/feed"
	"github.com/civic-tally/tally/internal/observability"
	"github.com/civic-tally/tally/jobs"
)

type staticFeed struct {
	state feed.State
	subs  int
}

func (f staticFeed) State() feed.State    { return f.state }
func (f staticFeed) SubscriberCount() int { return f.subs }

func testConfig() *Config {
	return &Config{AppEnv: "test", TokenSecret: "x", SessionDefaultTimeout: 30}
}

func TestHealthzReportsFeed(t *testing.T) {
	r := NewRouter(RouterParams{
		Logger: slog.Default(),
		Config: testConfig(),
		Feed:   staticFeed{state: feed.Connected, subs: 3},
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","feed":"connected","subscribers":3}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestUnknownRouteIsJSON(t *testing.T) {
	r := NewRouter(RouterParams{Logger: slog.Default(), Config: testConfig()})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"route not found"}`, rec.Body.String())
}

func TestSocketRouteUsesGuard(t *testing.T) {
	var guarded, served bool
	socket := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served = true
		w.WriteHeader(http.StatusNoContent)
	})
	guard := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			guarded = true
			if SocketToken(r) != "letmein" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	r := NewRouter(RouterParams{Logger: slog.Default(), Config: testConfig(), Socket: socket, SocketGuard: guard})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.True(t, guarded)
	assert.False(t, served)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?access_token=letmein", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, served)
}

func TestSocketToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?access_token=from-query", nil)
	assert.Equal(t, "from-query", SocketToken(req))
	req.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", SocketToken(req))
	assert.Empty(t, SocketToken(httptest.NewRequest(http.MethodGet, "/ws", nil)))
}

func TestMetricsAndJobsMounted(t *testing.T) {
	metrics := observability.NewMetrics()
	r := NewRouter(RouterParams{
		Logger:     slog.Default(),
		Config:     testConfig(),
		Metrics:    metrics,
		JobHandler: jobs.NewHandler(nil, nil),
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tally_http_requests_total")
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Config{LogFormat: "json", AppEnv: "production"}, &buf).Info("hello", slog.String("k", "v"))
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	newLogger(&Config{LogFormat: "pretty"}, &buf).Debug("quiet")
	assert.Contains(t, buf.String(), "msg=quiet")

	buf.Reset()
	newLogger(&Config{LogFormat: "pretty", AppEnv: "production"}, &buf).Debug("quiet")
	assert.Empty(t, buf.String())
}
