package auth

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/civic-tally/tally/internal/platform/httpx"
	"github.com/civic-tally/tally/internal/shared"
)

// Guard authenticates requests and enforces actions.
type Guard interface {
	Authenticate(next http.Handler) http.Handler
	Require(action string) func(http.Handler) http.Handler
}

// HandlerConfig tunes the auth routes.
type HandlerConfig struct {
	// LoginRatePerMinute caps login attempts per client address; 0 disables it.
	LoginRatePerMinute int
	// ProtectForceLogout puts force-logout behind the gate and the force_logout action.
	ProtectForceLogout bool
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   Guard
	cfg     HandlerConfig
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Guard, cfg HandlerConfig) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, cfg: cfg}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.cfg.LoginRatePerMinute > 0 {
			r.Use(httprate.Limit(h.cfg.LoginRatePerMinute, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					httpx.Error(w, http.StatusTooManyRequests, "too many login attempts")
				}),
			))
		}
		r.Post("/login", h.handleLogin)
	})
	r.Post("/logout", h.handleLogout)
	if h.cfg.ProtectForceLogout {
		r.With(h.guard.Authenticate, h.guard.Require("force_logout")).Post("/force-logout", h.handleForceLogout)
	} else {
		r.Post("/force-logout", h.handleForceLogout)
	}
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Secret     string `json:"secret" validate:"required"`
}

type loginResponse struct {
	Message     string              `json:"message"`
	Token       string              `json:"token"`
	Permissions []shared.Permission `json:"permissions"`
}

type forceLogoutRequest struct {
	PrincipalID int64 `json:"principalId" validate:"required,gt=0"`
}

type forceLogoutResponse struct {
	Message string `json:"message"`
	Closed  int64  `json:"closed"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Login(r.Context(), req.Identifier, req.Secret, sourceAddr(r))
	if err != nil {
		h.fail(w, "login", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loginResponse{
		Message:     "login successful",
		Token:       result.Token,
		Permissions: result.Permissions,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	raw := shared.BearerToken(r)
	if raw == "" {
		httpx.Error(w, http.StatusBadRequest, "token not provided")
		return
	}
	if err := h.service.Logout(r.Context(), raw); err != nil {
		h.fail(w, "logout", err)
		return
	}
	httpx.Message(w, "logout successful")
}

func (h *Handler) handleForceLogout(w http.ResponseWriter, r *http.Request) {
	var req forceLogoutRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var actorID int64
	if grant := shared.GrantFromContext(r.Context()); grant != nil {
		actorID = grant.PrincipalID
	}
	count, err := h.service.ForceLogout(r.Context(), req.PrincipalID, actorID)
	if err != nil {
		h.fail(w, "force logout", err)
		return
	}
	httpx.JSON(w, http.StatusOK, forceLogoutResponse{
		Message: fmt.Sprintf("closed %d active sessions", count),
		Closed:  count,
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func sourceAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
