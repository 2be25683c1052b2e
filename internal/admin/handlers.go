package admin

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bundlehub/internal/auth"
	"github.com/noah-isme/bundlehub/internal/common"
	"github.com/noah-isme/bundlehub/internal/pricing"
)

// Handler exposes /api/v1/admin. Every route sits behind auth.RequireAdmin.
type Handler struct {
	Service *Service
}

type priceRequest struct {
	Price decimal.Decimal `json:"price"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type balanceRequest struct {
	Email   string          `json:"email" validate:"required,email"`
	Balance decimal.Decimal `json:"balance"`
}

// Markup handles GET /admin/markup.
func (h *Handler) Markup(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Service.Prices.Settings(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, common.Data(settings, nil))
}

// SaveMarkup handles PUT /admin/markup.
func (h *Handler) SaveMarkup(w http.ResponseWriter, r *http.Request) {
	var settings pricing.MarkupSettings
	if !common.Decode(w, r, &settings) {
		return
	}
	if err := h.Service.Prices.SaveSettings(r.Context(), settings); err != nil {
		common.WriteError(w, err)
		return
	}
	var notices common.Notices
	notices.Success("Global profit formula updated successfully!")
	common.JSON(w, http.StatusOK, common.Data(settings, notices.List()))
}

// Prices handles GET /admin/prices.
func (h *Handler) Prices(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.PriceControl(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, common.Data(rows, nil))
}

// SetPrice handles PUT /admin/prices/{bundleId}.
func (h *Handler) SetPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if !common.Decode(w, r, &req) {
		return
	}
	h.writePrice(w, r, req.Price)
}

// ClearPrice handles DELETE /admin/prices/{bundleId}.
func (h *Handler) ClearPrice(w http.ResponseWriter, r *http.Request) {
	h.writePrice(w, r, decimal.Zero)
}

func (h *Handler) writePrice(w http.ResponseWriter, r *http.Request, price decimal.Decimal) {
	bundleID := chi.URLParam(r, "bundleId")
	kept, err := h.Service.SetPrice(r.Context(), bundleID, price)
	if err != nil {
		common.WriteError(w, common.Validation(err.Error(), err))
		return
	}
	var notices common.Notices
	if kept {
		notices.Success("Price for bundle updated successfully!")
	} else {
		notices.Info("Price reset to formula standard.")
	}
	common.JSON(w, http.StatusOK, common.Data(map[string]any{"bundleId": bundleID, "override": kept}, notices.List()))
}

// RefreshCatalog handles POST /admin/catalog/refresh.
func (h *Handler) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Catalog.Refresh(r.Context()); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Balance handles GET /admin/balance.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.Service.Backend.SupplierBalance(r.Context())
	if err != nil {
		common.WriteError(w, common.Upstream("Could not load supplier balance", err))
		return
	}
	common.JSON(w, http.StatusOK, common.Data(map[string]any{"balance": balance, "currency": "GHS"}, nil))
}

// Stats handles GET /admin/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Backend.AdminStats(r.Context())
	if err != nil {
		common.WriteError(w, common.Upstream("Could not load stats", err))
		return
	}
	common.JSON(w, http.StatusOK, common.Data(stats, nil))
}

// Orders handles GET /admin/orders.
func (h *Handler) Orders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Service.Backend.AdminOrders(r.Context())
	if err != nil {
		common.WriteError(w, common.Upstream("Could not load orders", err))
		return
	}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" && !strings.EqualFold(status, "all") {
		filtered := orders[:0:0]
		for _, o := range orders {
			if strings.EqualFold(orderStatus(o.Status), status) {
				filtered = append(filtered, o)
			}
		}
		orders = filtered
	}
	page, perPage := common.ParsePagination(r, 50)
	items, meta := common.Paginate(orders, page, perPage)
	out := common.Data(items, nil)
	out["pagination"] = meta
	common.JSON(w, http.StatusOK, out)
}

// orderStatus treats a blank status as Processing, as the dashboard does.
func orderStatus(status string) string {
	if strings.TrimSpace(status) == "" {
		return StatusProcessing
	}
	return status
}

// Users handles GET /admin/users.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.Backend.AdminUsers(r.Context())
	if err != nil {
		common.WriteError(w, common.Upstream("Could not load users", err))
		return
	}
	page, perPage := common.ParsePagination(r, 50)
	items, meta := common.Paginate(users, page, perPage)
	out := common.Data(items, nil)
	out["pagination"] = meta
	common.JSON(w, http.StatusOK, out)
}

// OrderStatus handles POST /admin/orders/{id}/status.
func (h *Handler) OrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !common.Decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	status, err := h.Service.UpdateOrderStatus(r.Context(), id, req.Status)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var notices common.Notices
	notices.Success("Order status updated!")
	common.JSON(w, http.StatusOK, common.Data(map[string]string{"id": id, "status": status}, notices.List()))
}

// UserBalance handles POST /admin/users/balance.
func (h *Handler) UserBalance(w http.ResponseWriter, r *http.Request) {
	var req balanceRequest
	if !common.Decode(w, r, &req) {
		return
	}
	if err := h.Service.UpdateUserBalance(r.Context(), req.Email, req.Balance); err != nil {
		common.WriteError(w, err)
		return
	}
	var notices common.Notices
	notices.Success("User balance updated!")
	common.JSON(w, http.StatusOK, common.Data(map[string]any{"email": req.Email, "balance": req.Balance}, notices.List()))
}

// Verify handles GET /admin/verify: the backend confirms the session still holds the admin role.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	ok, err := h.Service.Backend.VerifyAdmin(r.Context(), sess.User.Email)
	if err != nil {
		common.WriteError(w, common.Upstream("Could not verify administrator", err))
		return
	}
	if !ok {
		common.JSONError(w, http.StatusForbidden, common.CodeForbidden, "administrator access required", map[string]any{"redirect": auth.HomePath})
		return
	}
	common.JSON(w, http.StatusOK, common.Data(map[string]bool{"admin": true}, nil))
}

// RequestReport handles POST /admin/reports.
func (h *Handler) RequestReport(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	id, queued, err := h.Service.RequestReport(r.Context(), sess.User.Email)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var notices common.Notices
	if queued {
		notices.Info("Sales report is being generated.")
	} else {
		notices.Info("A sales report is already being generated.")
	}
	common.JSON(w, http.StatusAccepted, common.Data(map[string]any{"taskId": id, "queued": queued}, notices.List()))
}

// LatestReport handles GET /admin/reports/latest.
func (h *Handler) LatestReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Service.Reports.Latest(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if rep == nil {
		common.WriteError(w, common.NewAppError(common.CodeNotFound, "no sales report generated yet", http.StatusNotFound, errors.New("report: none")))
		return
	}
	common.JSON(w, http.StatusOK, common.Data(rep, nil))
}
