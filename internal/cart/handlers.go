package cart

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/bundlehub/internal/auth"
	"github.com/noah-isme/bundlehub/internal/common"
	"github.com/noah-isme/bundlehub/internal/state"
)

// Handler exposes the cart endpoints.
type Handler struct {
	Service *Service
}

type addRequest struct {
	BundleID string `json:"bundleId" validate:"required"`
}

func scopeOf(w http.ResponseWriter, r *http.Request) (state.Scope, bool) {
	scope, ok := state.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "client id missing", nil)
	}
	return scope, ok
}

// Get handles GET /api/v1/cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	view, err := h.Service.Get(r.Context(), scope)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, common.Data(view, nil))
}

// Add handles POST /api/v1/cart.
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	var req addRequest
	if !common.Decode(w, r, &req) {
		return
	}
	member := auth.FromContext(r.Context()) != nil
	view, err := h.Service.Add(r.Context(), scope, req.BundleID, member)
	if err != nil {
		common.WriteError(w, err, view.Notices...)
		return
	}
	common.JSON(w, http.StatusOK, common.Data(view, view.Notices))
}

// Remove handles DELETE /api/v1/cart/items/{id}.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	view, err := h.Service.Remove(r.Context(), scope, chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, common.Data(view, nil))
}
