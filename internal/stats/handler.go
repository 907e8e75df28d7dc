package stats

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civic-tally/tally/internal/platform/httpx"
)

// Guard authenticates requests and enforces actions.
type Guard interface {
	Authenticate(next http.Handler) http.Handler
	Require(action string) func(http.Handler) http.Handler
}

// Handler exposes statistics endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   Guard
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, guard Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers statistics routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Authenticate, h.guard.Require("view_statistics"))
		r.Get("/", h.list)
		r.Get("/{name}", h.fetch)
	})
}

type catalogResponse struct {
	Names []string `json:"names"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, catalogResponse{Names: Names()})
}

func (h *Handler) fetch(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	data, err := h.service.Fetch(r.Context(), name)
	if err != nil {
		h.logger.Error("fetch statistics", slog.String("name", name), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, data)
}
