package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/bundlehub/internal/auth"
	"github.com/noah-isme/bundlehub/internal/common"
)

// Handler exposes the public catalog endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Bundles handles GET /api/v1/bundles?network=.
func (h *Handler) Bundles(w http.ResponseWriter, r *http.Request) {
	member := auth.FromContext(r.Context()) != nil
	rows, err := h.service.List(r.Context(), r.URL.Query().Get("network"), member)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// Bundle handles GET /api/v1/bundles/{id}.
func (h *Handler) Bundle(w http.ResponseWriter, r *http.Request) {
	member := auth.FromContext(r.Context()) != nil
	row, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), member)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": row})
}
