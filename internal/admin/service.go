// Package admin serves the administrator panel: markup formula, price overrides, backend
// dashboards and the sales report.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bundlehub/internal/backend"
	"github.com/noah-isme/bundlehub/internal/common"
	"github.com/noah-isme/bundlehub/internal/pricing"
	"github.com/noah-isme/bundlehub/internal/report"
)

// Order statuses an administrator may set.
const (
	StatusCompleted  = "Completed"
	StatusFailed     = "Failed"
	StatusProcessing = "Processing"
)

// ErrInvalidStatus is returned for statuses outside Completed, Failed and Processing.
var ErrInvalidStatus = errors.New("admin: invalid order status")

// NormalizeStatus capitalises status and checks it against the allowed set.
func NormalizeStatus(status string) (string, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return "", ErrInvalidStatus
	}
	status = strings.ToUpper(status[:1]) + status[1:]
	switch status {
	case StatusCompleted, StatusFailed, StatusProcessing:
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Backend is the administrator surface of the storefront backend.
type Backend interface {
	SupplierBalance(ctx context.Context) (decimal.Decimal, error)
	AdminStats(ctx context.Context) (backend.Stats, error)
	AdminOrders(ctx context.Context) ([]backend.Purchase, error)
	AdminUsers(ctx context.Context) ([]backend.User, error)
	UpdateOrderStatus(ctx context.Context, orderID, status string) (backend.Result, error)
	UpdateUserBalance(ctx context.Context, email string, balance decimal.Decimal) (backend.Result, error)
	VerifyAdmin(ctx context.Context, email string) (bool, error)
}

// Prices persists the global markup formula and overrides.
type Prices interface {
	Settings(ctx context.Context) (pricing.MarkupSettings, error)
	SaveSettings(ctx context.Context, settings pricing.MarkupSettings) error
	SetOverride(ctx context.Context, bundleID string, price decimal.Decimal) (bool, error)
	ClearOverride(ctx context.Context, bundleID string) error
	Engine(ctx context.Context) (*pricing.Engine, error)
}

// Catalog exposes wholesale rows and cache control.
type Catalog interface {
	Wholesale(ctx context.Context) ([]backend.Bundle, error)
	Refresh(ctx context.Context) error
}

// Enqueuer publishes background tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task) (string, bool, error)
}

// Reports reads the last generated report.
type Reports interface {
	Latest(ctx context.Context) (*report.Report, error)
}

// Service implements the administrator operations.
type Service struct {
	Backend Backend
	Prices  Prices
	Catalog Catalog
	Queue   Enqueuer
	Reports Reports
	Logger  zerolog.Logger
}

// PriceRow is one line of the price control table.
type PriceRow struct {
	BundleID     string           `json:"bundleId"`
	Title        string           `json:"title"`
	Network      string           `json:"network"`
	Cost         decimal.Decimal  `json:"cost"`
	FormulaPrice pricing.Money    `json:"formulaPrice"`
	PublicPrice  pricing.Money    `json:"publicPrice"`
	CustomPrice  *decimal.Decimal `json:"customPrice"`
}

// PriceControl lists every bundle with its wholesale cost, formula member price and override.
func (s *Service) PriceControl(ctx context.Context) ([]PriceRow, error) {
	rows, err := s.Catalog.Wholesale(ctx)
	if err != nil {
		return nil, err
	}
	engine, err := s.Prices.Engine(ctx)
	if err != nil {
		return nil, err
	}
	formula := pricing.NewEngine(engine.Settings(), nil)
	out := make([]PriceRow, 0, len(rows))
	for _, row := range rows {
		id := row.ID.String()
		item := PriceRow{
			BundleID:     id,
			Title:        row.Title,
			Network:      strings.ToLower(strings.TrimSpace(row.Network)),
			Cost:         row.Price,
			FormulaPrice: formula.RetailPrice(id, row.Price, true),
			PublicPrice:  engine.RetailPrice(id, row.Price, false),
		}
		if custom, ok := engine.Override(id); ok {
			item.CustomPrice = &custom
		}
		out = append(out, item)
	}
	return out, nil
}

// SetPrice stores an override. A non-positive price resets the bundle to the formula.
func (s *Service) SetPrice(ctx context.Context, bundleID string, price decimal.Decimal) (bool, error) {
	kept, err := s.Prices.SetOverride(ctx, bundleID, price)
	if err != nil {
		return false, err
	}
	s.Logger.Info().Str("bundle_id", bundleID).Bool("override", kept).Msg("custom price updated")
	return kept, nil
}

// UpdateOrderStatus validates and forwards a status change.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID, status string) (string, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", common.Validation("order id is required", nil)
	}
	normalized, err := NormalizeStatus(status)
	if err != nil {
		return "", common.Validation("Invalid status. Please enter Completed, Failed, or Processing.", err)
	}
	res, err := s.Backend.UpdateOrderStatus(ctx, orderID, normalized)
	if err != nil {
		return "", rejected("Error updating status", err)
	}
	if !res.Success {
		return "", common.NewAppError(common.CodeValidation, "Failed to update status: "+res.Message, http.StatusUnprocessableEntity, nil)
	}
	return normalized, nil
}

// UpdateUserBalance overwrites a user's wallet balance.
func (s *Service) UpdateUserBalance(ctx context.Context, email string, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return common.Validation("balance must not be negative", nil)
	}
	res, err := s.Backend.UpdateUserBalance(ctx, strings.TrimSpace(email), balance)
	if err != nil {
		return rejected("Error updating balance", err)
	}
	if !res.Success {
		return common.NewAppError(common.CodeValidation, "Failed to update balance: "+res.Message, http.StatusUnprocessableEntity, nil)
	}
	return nil
}

// RequestReport enqueues a sales report build.
func (s *Service) RequestReport(ctx context.Context, requestedBy string) (id string, queued bool, err error) {
	task, err := report.NewSalesTask(requestedBy)
	if err != nil {
		return "", false, err
	}
	id, queued, err = s.Queue.Enqueue(ctx, task)
	if err != nil {
		return "", false, common.NewAppError(common.CodeInternal, "could not queue report", http.StatusServiceUnavailable, err)
	}
	return id, queued, nil
}

func rejected(prefix string, err error) error {
	var se *backend.StatusError
	if errors.As(err, &se) && se.StatusCode < 500 {
		return common.NewAppError(common.CodeValidation, prefix+": "+se.Message, http.StatusUnprocessableEntity, err)
	}
	return common.Upstream(prefix+": "+err.Error(), err)
}
