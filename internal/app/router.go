package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civic-tally/tally/internal/auth"
	"github.com/civic-tally/tally/internal/feed"
	"github.com/civic-tally/tally/internal/observability"
	"github.com/civic-tally/tally/internal/platform/httpx"
	"github.com/civic-tally/tally/internal/rbac"
	"github.com/civic-tally/tally/internal/roles"
	"github.com/civic-tally/tally/internal/sessions"
	"github.com/civic-tally/tally/internal/stats"
	"github.com/civic-tally/tally/internal/users"
	"github.com/civic-tally/tally/jobs"
)

// FeedStatus reports relay health.
type FeedStatus interface {
	State() feed.State
	SubscriberCount() int
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	AuthHandler        *auth.Handler
	SessionsHandler    *sessions.Handler
	PermissionsHandler *rbac.PermissionsHandler
	UsersHandler       *users.Handler
	RolesHandler       *roles.Handler
	StatsHandler       *stats.Handler
	JobHandler         *jobs.Handler

	// Socket serves the realtime channel. SocketGuard, when set, runs before the upgrade.
	Socket      http.Handler
	SocketGuard func(http.Handler) http.Handler
	Feed        FeedStatus
}

type healthResponse struct {
	Status      string `json:"status"`
	Feed        string `json:"feed,omitempty"`
	Subscribers int    `json:"subscribers"`
}

// NewRouter constructs the chi.Router with tally defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	mw := MiddlewareConfig{Logger: params.Logger, Config: params.Config, Metrics: params.Metrics}
	r.Use(BaseStack(mw)...)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		if params.Feed != nil {
			resp.Feed = params.Feed.State().String()
			resp.Subscribers = params.Feed.SubscriberCount()
		}
		httpx.JSON(w, http.StatusOK, resp)
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	// The upgrade hijacks the connection, so it stays clear of the timeout and compression layers.
	if params.Socket != nil {
		socket := params.Socket
		if params.SocketGuard != nil {
			socket = params.SocketGuard(socket)
		}
		r.Method(http.MethodGet, "/ws", socket)
	}

	r.Group(func(r chi.Router) {
		r.Use(APIStack(mw)...)
		r.Route("/auth", func(r chi.Router) {
			if params.AuthHandler != nil {
				params.AuthHandler.MountRoutes(r)
			}
			if params.SessionsHandler != nil {
				params.SessionsHandler.MountRoutes(r)
			}
		})
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.RolesHandler != nil {
			r.Route("/roles", params.RolesHandler.MountRoutes)
		}
		if params.StatsHandler != nil {
			r.Route("/stats", params.StatsHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Error(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Error(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})
	return r
}
