package history

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/bundlehub/internal/auth"
	"github.com/noah-isme/bundlehub/internal/backend"
	"github.com/noah-isme/bundlehub/internal/common"
)

// Source fetches a user's purchases from the backend.
type Source interface {
	UserPurchases(ctx context.Context, email string) ([]backend.Purchase, error)
}

// Purchase converts a local record into the backend row shape.
func (r Record) Purchase() backend.Purchase {
	return backend.Purchase{
		ID:        backend.FlexString(r.ID),
		Date:      r.Date.UTC().Format(time.RFC3339),
		Title:     r.Title,
		Network:   r.Network,
		Phone:     r.Phone,
		Status:    r.Status,
		Price:     r.Price,
		Cost:      r.Cost,
		BundleID:  backend.FlexString(r.BundleID),
		UserEmail: r.UserEmail,
	}
}

// Service reads purchase history, preferring the backend and falling back to local records.
type Service struct {
	Source Source
	Store  Store
	Limit  int
	Logger zerolog.Logger
}

// Result is a history listing and where it came from.
type Result struct {
	Purchases []backend.Purchase `json:"purchases"`
	Source    string             `json:"source"`
	Notices   []common.Notice    `json:"-"`
}

// ForUser lists purchases for email.
func (s *Service) ForUser(ctx context.Context, email string) (Result, error) {
	rows, err := s.Source.UserPurchases(ctx, email)
	if err == nil {
		if rows == nil {
			rows = []backend.Purchase{}
		}
		return Result{Purchases: rows, Source: "backend"}, nil
	}
	s.Logger.Warn().Err(err).Msg("backend purchase history unavailable, using local records")

	var notices common.Notices
	notices.Warn("Could not reach the server. Showing purchases saved on this device.")
	if s.Store == nil {
		return Result{Purchases: []backend.Purchase{}, Source: "local", Notices: notices.List()}, nil
	}
	local, lerr := s.Store.ListByEmail(ctx, email, s.Limit)
	if lerr != nil {
		return Result{}, common.Upstream("Failed to load purchase history.", lerr)
	}
	out := make([]backend.Purchase, len(local))
	for i, rec := range local {
		out[i] = rec.Purchase()
	}
	return Result{Purchases: out, Source: "local", Notices: notices.List()}, nil
}

// Handler exposes the user history endpoint.
type Handler struct {
	Service *Service
}

// Purchases handles GET /api/v1/user/purchases.
func (h *Handler) Purchases(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	if sess == nil {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "login required", nil)
		return
	}
	res, err := h.Service.ForUser(r.Context(), sess.User.Email)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, common.Data(res, res.Notices))
}
