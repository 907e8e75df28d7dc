package users

import (
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

// Handler manages user management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   Guard
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Authenticate)
		r.With(h.guard.Require("list_users")).Get("/", h.listUsers)
		r.With(h.guard.Require("create_user")).Post("/", h.createUser)
		r.With(h.guard.Require("update_user")).Patch("/{id}/status", h.updateStatus)
		r.With(h.guard.Require("delete_user_permanently")).Delete("/{id}/permanent", h.purge)
	})
}

type createUserRequest struct {
	Identifier string `json:"username" validate:"required,min=3,max=64"`
	Secret     string `json:"password" validate:"required,min=8,max=72"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=active suspended deleted"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if users == nil {
		users = []User{}
	}
	httpx.JSON(w, http.StatusOK, users)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.CreateUser(r.Context(), actorID(r), req.Identifier, req.Secret)
	if err != nil {
		h.logger.Error("create user failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	change, err := h.service.UpdateStatus(r.Context(), actorID(r), id, shared.PrincipalStatus(req.Status))
	if err != nil {
		h.logger.Error("update user status failed", slog.Int64("user_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, change)
}

func (h *Handler) purge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Purge(r.Context(), actorID(r), id); err != nil {
		h.logger.Warn("purge user refused", slog.Int64("user_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Message(w, "user permanently deleted")
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return id, true
}

func actorID(r *http.Request) int64 {
	if grant := shared.GrantFromContext(r.Context()); grant != nil {
		return grant.PrincipalID
	}
	return 0
}
