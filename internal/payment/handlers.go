package payment

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/bundlehub/internal/auth"
	"github.com/noah-isme/bundlehub/internal/common"
	"github.com/noah-isme/bundlehub/internal/state"
)

// Handler exposes purchase, callback and top-up endpoints.
type Handler struct {
	Orchestrator *Orchestrator
	Callbacks    *Callbacks
}

type purchaseRequest struct {
	BundleID      string  `json:"bundleId" validate:"required"`
	Phone         string  `json:"phone" validate:"required"`
	Network       string  `json:"network" validate:"omitempty,oneof=mtn telecel at MTN TELECEL AT"`
	TermsAccepted *bool   `json:"termsAccepted"`
	Choice        *string `json:"choice" validate:"omitempty,oneof=wallet external abort"`
	GuestEmail    *string `json:"guestEmail"`
	Method        string  `json:"method" validate:"omitempty,oneof=hosted momo"`
	Provider      string  `json:"provider"`
}

type topUpRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

func scopeOf(w http.ResponseWriter, r *http.Request) (state.Scope, bool) {
	scope, ok := state.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "client id missing", nil)
	}
	return scope, ok
}

// Purchase handles POST /api/v1/purchases.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	var req purchaseRequest
	if !common.Decode(w, r, &req) {
		return
	}
	decider := PreferenceDecider{
		Choice:     req.Choice,
		GuestEmail: req.GuestEmail,
		Method:     req.Method,
		Provider:   req.Provider,
	}
	out, err := h.Orchestrator.Purchase(r.Context(), scope, auth.FromContext(r.Context()), Request{
		BundleID:      req.BundleID,
		Phone:         req.Phone,
		Network:       req.Network,
		TermsAccepted: req.TermsAccepted,
	}, decider)
	if err != nil {
		if appErr, ok := common.AsAppError(err); ok && appErr.Code == common.CodeAborted {
			common.JSON(w, http.StatusOK, common.Data(out, out.Notices))
			return
		}
		common.WriteError(w, err, out.Notices...)
		return
	}
	status := http.StatusOK
	if out.Attempt.State == StateDirectCharge {
		status = http.StatusAccepted
	}
	common.JSON(w, status, common.Data(out, out.Notices))
}

// Status handles GET /api/v1/purchases/{id}.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	at, err := h.Orchestrator.Status(r.Context(), scope, chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, common.Data(at, nil))
}

// Cancel handles DELETE /api/v1/purchases/{id}.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	at, err := h.Orchestrator.Cancel(r.Context(), scope, chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, common.Data(at, nil))
}

// Callback handles GET /api/v1/payments/callback?reference= (or trxref=).
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	ref := q.Get("reference")
	if ref == "" {
		ref = q.Get("trxref")
	}
	res, err := h.Callbacks.Handle(r.Context(), scope, auth.FromContext(r.Context()), ref)
	if err != nil {
		common.WriteError(w, err, res.Notices...)
		return
	}
	common.JSON(w, http.StatusOK, common.Data(res, res.Notices))
}

// TopUp handles POST /api/v1/wallet/topup.
func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	var req topUpRequest
	if !common.Decode(w, r, &req) {
		return
	}
	out, err := h.Orchestrator.TopUp(r.Context(), scope, auth.FromContext(r.Context()), req.Amount)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, common.Data(out, out.Notices))
}
