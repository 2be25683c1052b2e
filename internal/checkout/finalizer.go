// Package checkout places orders once payment is settled and reconciles local state afterwards.
package checkout

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/bundlehub/internal/auth"
	"github.com/noah-isme/bundlehub/internal/backend"
	"github.com/noah-isme/bundlehub/internal/cart"
	"github.com/noah-isme/bundlehub/internal/common"
	"github.com/noah-isme/bundlehub/internal/history"
	"github.com/noah-isme/bundlehub/internal/obs"
	"github.com/noah-isme/bundlehub/internal/pricing"
	"github.com/noah-isme/bundlehub/internal/state"
)

const (
	// GenericFailureMessage is shown when the order call itself fails.
	GenericFailureMessage = "Failed to process purchase. Please try again."
	// SuccessMessage is shown after an order is accepted.
	SuccessMessage = "Order placed successfully!"
)

// Orders places orders with the backend.
type Orders interface {
	PlaceOrder(ctx context.Context, req backend.PlaceOrderRequest) (backend.PlaceOrderResponse, error)
}

// Profiles refreshes the cached user after a balance change.
type Profiles interface {
	Refresh(ctx context.Context, scope state.Scope, sess *auth.Session) *auth.Session
}

// Cart drops purchased bundles.
type Cart interface {
	Remove(ctx context.Context, scope state.Scope, id string) ([]cart.Item, error)
}

// Request describes the order to place.
type Request struct {
	BundleID   string
	Title      string
	Price      pricing.Money
	Cost       decimal.Decimal
	Phone      string
	Network    string
	Prepaid    bool
	GuestEmail string
}

// Result is the outcome of a successful placement.
type Result struct {
	OrderID         string          `json:"orderId,omitempty"`
	Redirect        string          `json:"redirect"`
	RedirectDelayMs int64           `json:"redirectDelayMs"`
	User            *auth.User      `json:"user,omitempty"`
	Notices         []common.Notice `json:"-"`
}

// Finalizer turns a settled purchase into a backend order.
type Finalizer struct {
	Orders           Orders
	Profiles         Profiles
	Cart             Cart
	History          history.Store
	DashboardPath    string
	GuestSuccessPath string
	RedirectDelay    time.Duration
	Logger           zerolog.Logger
}

func (f *Finalizer) redirectFor(authenticated bool) string {
	if authenticated {
		if f.DashboardPath != "" {
			return f.DashboardPath
		}
		return auth.DashboardPath
	}
	if f.GuestSuccessPath != "" {
		return f.GuestSuccessPath
	}
	return "/index.html?purchase=success"
}

func (f *Finalizer) delay() time.Duration {
	if f.RedirectDelay <= 0 {
		return 2500 * time.Millisecond
	}
	return f.RedirectDelay
}

// Finalize places the order for req.GuestEmail, or the session user when no guest email is set.
// On failure the returned Result carries the error notice and the attempt should be abandoned.
func (f *Finalizer) Finalize(ctx context.Context, scope state.Scope, sess *auth.Session, req Request) (res Result, err error) {
	ctx, span := otel.Tracer("checkout.Finalizer").Start(ctx, "Finalizer.Finalize")
	defer span.End()
	span.SetAttributes(
		attribute.String("bundle.id", req.BundleID),
		attribute.Int64("order.price", req.Price),
		attribute.Bool("order.prepaid", req.Prepaid),
	)

	outcome := "error"
	defer func() {
		obs.IncCounter(obs.OrderPlacementsTotal, strconv.FormatBool(req.Prepaid), outcome)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
	}()

	email := strings.TrimSpace(req.GuestEmail)
	if email == "" && sess != nil {
		email = sess.User.Email
	}
	logger := f.Logger.With().Str("bundle_id", req.BundleID).Bool("prepaid", req.Prepaid).Logger()

	resp, err := f.Orders.PlaceOrder(ctx, backend.PlaceOrderRequest{
		Network:     req.Network,
		Beneficiary: req.Phone,
		BundleID:    req.BundleID,
		UserEmail:   email,
	})
	if err != nil {
		var notices common.Notices
		var se *backend.StatusError
		if errors.As(err, &se) && !errors.Is(err, backend.ErrUnavailable) {
			msg := orderFailed(se.Message)
			notices.Error(msg)
			outcome = "rejected"
			logger.Warn().Err(err).Msg("order rejected")
			return Result{Notices: notices.List()}, common.NewAppError(common.CodeOrderFailed, msg, http.StatusUnprocessableEntity, err)
		}
		notices.Error(GenericFailureMessage)
		logger.Error().Err(err).Msg("order placement failed")
		return Result{Notices: notices.List()}, common.NewAppError(common.CodeOrderFailed, GenericFailureMessage, http.StatusBadGateway, err)
	}
	if !resp.Succeeded() {
		msg := orderFailed(resp.Message)
		outcome = "rejected"
		logger.Warn().Str("message", resp.Message).Msg("order not accepted")
		var notices common.Notices
		notices.Error(msg)
		return Result{Notices: notices.List()}, common.NewAppError(common.CodeOrderFailed, msg, http.StatusUnprocessableEntity, nil)
	}
	outcome = "success"

	var notices common.Notices
	notices.Success(SuccessMessage)
	res = Result{
		OrderID:         resp.Reference(),
		Redirect:        f.redirectFor(sess != nil),
		RedirectDelayMs: f.delay().Milliseconds(),
	}

	if sess != nil && f.Profiles != nil {
		if fresh := f.Profiles.Refresh(ctx, scope, sess); fresh != nil {
			u := fresh.User
			res.User = &u
		}
	}
	if f.History != nil {
		f.record(ctx, logger, req, email, res.OrderID)
	}
	if f.Cart != nil && scope.Valid() {
		if _, err := f.Cart.Remove(ctx, scope, req.BundleID); err != nil {
			logger.Warn().Err(err).Msg("could not remove purchased bundle from cart")
		}
	}

	logger.Info().Str("order_id", res.OrderID).Msg("order placed")
	res.Notices = notices.List()
	return res, nil
}

func (f *Finalizer) record(ctx context.Context, logger zerolog.Logger, req Request, email, orderID string) {
	id := orderID
	if id == "" {
		id = uuid.NewString()
	}
	rec := history.Record{
		ID:        id,
		Date:      time.Now().UTC(),
		BundleID:  req.BundleID,
		Title:     req.Title,
		Network:   req.Network,
		Phone:     req.Phone,
		Status:    "Processing",
		Price:     decimal.NewFromInt(req.Price),
		UserEmail: email,
		Prepaid:   req.Prepaid,
	}
	if !req.Cost.IsZero() {
		rec.Cost = decimal.NewNullDecimal(req.Cost)
	}
	if _, err := f.History.Record(ctx, rec); err != nil {
		logger.Warn().Err(err).Msg("could not record purchase history")
	}
}

func orderFailed(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "Unknown error"
	}
	return "Order failed: " + msg
}
