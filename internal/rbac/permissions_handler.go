package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civic-tally/tally/internal/platform/httpx"
	"github.com/civic-tally/tally/internal/shared"
)

// PermissionsHandler exposes permission listings.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
	rbac    Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Authenticate)
		r.Get("/me", h.myPermissions)
		r.With(h.rbac.Require("list_permissions")).Get("/", h.listPermissions)
	})
}

type myPermissionsResponse struct {
	PrincipalID int64               `json:"principalId"`
	Permissions []shared.Permission `json:"permissions"`
}

func (h *PermissionsHandler) myPermissions(w http.ResponseWriter, r *http.Request) {
	grant := shared.GrantFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, myPermissionsResponse{PrincipalID: grant.PrincipalID, Permissions: grant.Permissions})
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if perms == nil {
		perms = []PermissionRecord{}
	}
	httpx.JSON(w, http.StatusOK, perms)
}
