package sessions

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/civic-tally/tally/internal/platform/httpx"
	"github.com/civic-tally/tally/internal/shared"
)

// Guard authenticates requests and enforces actions.
type Guard interface {
	Authenticate(next http.Handler) http.Handler
	Require(action string) func(http.Handler) http.Handler
}

// Handler exposes timeout settings over HTTP.
type Handler struct {
	logger   *slog.Logger
	settings *Settings
	guard    Guard
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, settings *Settings, guard Guard) *Handler {
	return &Handler{logger: logger, settings: settings, guard: guard}
}

// MountRoutes registers the timeout endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Authenticate)
		r.With(h.guard.Require("get_global_session_settings")).Get("/session-settings/global", h.getGlobal)
		r.With(h.guard.Require("update_global_session_settings")).Patch("/session-settings/global", h.updateGlobal)
		r.With(h.guard.Require("update_user_session_timeout")).Patch("/users/{id}/session-timeout", h.updatePrincipal)
		r.With(h.guard.Require("update_role_session_timeout")).Patch("/roles/{id}/session-timeout", h.updateRole)
	})
}

type timeoutRequest struct {
	Timeout int `json:"timeout" validate:"required,gt=0,lte=525600"`
}

type globalTimeoutResponse struct {
	Timeout int `json:"timeout"`
}

func (h *Handler) getGlobal(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, globalTimeoutResponse{Timeout: h.settings.GlobalTimeout()})
}

func (h *Handler) updateGlobal(w http.ResponseWriter, r *http.Request) {
	var req timeoutRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.settings.SetGlobalTimeout(r.Context(), req.Timeout); err != nil {
		h.fail(w, "update global timeout", err)
		return
	}
	httpx.Message(w, "global session timeout updated")
}

func (h *Handler) updatePrincipal(w http.ResponseWriter, r *http.Request) {
	h.updateOverride(w, r, "update principal timeout", h.settings.SetPrincipalTimeout)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	h.updateOverride(w, r, "update role timeout", h.settings.SetRoleTimeout)
}

func (h *Handler) updateOverride(w http.ResponseWriter, r *http.Request, op string, set func(ctx context.Context, id int64, minutes int) error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.ErrInvalidInput)
		return
	}
	var req timeoutRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := set(r.Context(), id, req.Timeout); err != nil {
		h.fail(w, op, err)
		return
	}
	httpx.Message(w, "session timeout updated")
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
