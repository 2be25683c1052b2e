package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/bundlehub/internal/auth"
	"github.com/noah-isme/bundlehub/internal/backend"
	"github.com/noah-isme/bundlehub/internal/checkout"
	"github.com/noah-isme/bundlehub/internal/common"
	"github.com/noah-isme/bundlehub/internal/lock"
	"github.com/noah-isme/bundlehub/internal/obs"
	"github.com/noah-isme/bundlehub/internal/state"
)

const (
	msgVerifying      = "Payment verified! Processing your bundle..."
	msgWalletUpdated  = "Payment successful! Wallet updated."
	msgVerifyFailed   = "Payment verification failed: "
	msgVerifyError    = "Error verifying payment. Please contact support."
	msgMissingReceipt = "payment reference is required"
)

// Locker serialises callback processing per reference.
type Locker interface {
	WithLock(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) error
}

var _ Locker = lock.Locker{}

// Callbacks resumes a purchase when the client returns from the hosted payment page.
type Callbacks struct {
	Gateway   Gateway
	Finalizer Finalizer
	Profiles  checkout.Profiles
	Pending   Pending
	Attempts  Attempts
	Locker    Locker
	LockTTL   time.Duration
	Logger    zerolog.Logger
}

// CallbackResult reports what the callback did.
type CallbackResult struct {
	Reference   string           `json:"reference"`
	Verified    bool             `json:"verified"`
	WalletTopUp bool             `json:"walletTopUp"`
	Order       *checkout.Result `json:"order,omitempty"`
	User        *auth.User       `json:"user,omitempty"`
	Notices     []common.Notice  `json:"-"`
}

// Handle verifies reference and finalizes the pending purchase, if any. Pending state is
// cleared on a definitive outcome only; a transport failure leaves it for a retry.
func (c *Callbacks) Handle(ctx context.Context, scope state.Scope, sess *auth.Session, reference string) (CallbackResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return CallbackResult{}, common.Validation(msgMissingReceipt, nil)
	}
	var (
		res    CallbackResult
		runErr error
	)
	ttl := c.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	work := func(ctx context.Context) error {
		res, runErr = c.handle(ctx, scope, sess, reference)
		return nil
	}
	if c.Locker == nil {
		_ = work(ctx)
	} else if err := c.Locker.WithLock(ctx, "callback:"+reference, ttl, work); err != nil {
		return CallbackResult{Reference: reference}, err
	}
	return res, runErr
}

func (c *Callbacks) handle(ctx context.Context, scope state.Scope, sess *auth.Session, reference string) (CallbackResult, error) {
	logger := c.Logger.With().Str("reference", reference).Logger()
	res := CallbackResult{Reference: reference}
	var notices common.Notices

	paid, err := c.Pending.Payment(ctx, scope)
	if err != nil {
		return res, err
	}
	req := backend.VerifyPaymentRequest{Reference: reference}
	if paid.Amount != "" {
		req.Amount = json.Number(paid.Amount)
	}
	if sess != nil {
		req.Email = sess.User.Email
	}

	resp, err := c.Gateway.VerifyPayment(ctx, req)
	if err != nil {
		if errors.Is(err, backend.ErrRejected) {
			return c.reject(ctx, scope, logger, res, backend.MessageOf(err))
		}
		logger.Error().Err(err).Msg("verify payment failed, keeping pending purchase")
		obs.IncCounter(obs.PaymentCallbacksTotal, "error")
		notices.Warn(msgVerifyError)
		res.Notices = notices.List()
		return res, common.NewAppError(common.CodeUpstream, msgVerifyError, http.StatusBadGateway, err)
	}
	if !resp.Verified() {
		return c.reject(ctx, scope, logger, res, resp.Message)
	}
	res.Verified = true

	pending, err := c.Pending.Purchase(ctx, scope)
	if err != nil {
		return res, err
	}
	var finalizeErr error
	refreshed := false
	if pending != nil {
		notices.Success(msgVerifying)
		order, ferr := c.Finalizer.Finalize(ctx, scope, sess, checkout.Request{
			BundleID:   pending.BundleID,
			Title:      pending.Title,
			Price:      pending.Price,
			Phone:      pending.Phone,
			Network:    pending.Network,
			Prepaid:    true,
			GuestEmail: pending.Guest(),
		})
		notices.Extend(order.Notices)
		if ferr != nil {
			finalizeErr = ferr
		} else {
			res.Order = &order
			res.User = order.User
			refreshed = order.User != nil
		}
		c.settleAttempt(ctx, scope, logger, pending.AttemptID, order, ferr)
		if err := c.Pending.ClearPurchase(ctx, scope); err != nil {
			logger.Warn().Err(err).Msg("could not clear pending purchase")
		}
	} else {
		res.WalletTopUp = true
		notices.Success(msgWalletUpdated)
	}
	if err := c.Pending.ClearPayment(ctx, scope); err != nil {
		logger.Warn().Err(err).Msg("could not clear pending payment")
	}
	if sess != nil && !refreshed && c.Profiles != nil {
		if fresh := c.Profiles.Refresh(ctx, scope, sess); fresh != nil {
			u := fresh.User
			res.User = &u
		}
	}

	outcome := "success"
	if finalizeErr != nil {
		outcome = "order_failed"
	}
	obs.IncCounter(obs.PaymentCallbacksTotal, outcome)
	logger.Info().Bool("wallet_topup", res.WalletTopUp).Str("result", outcome).Msg("payment callback processed")
	res.Notices = notices.List()
	return res, finalizeErr
}

func (c *Callbacks) reject(ctx context.Context, scope state.Scope, logger zerolog.Logger, res CallbackResult, message string) (CallbackResult, error) {
	msg := msgVerifyFailed + strings.TrimSpace(message)
	logger.Warn().Str("message", message).Msg("payment rejected")
	obs.IncCounter(obs.PaymentCallbacksTotal, "rejected")

	if pending, err := c.Pending.Purchase(ctx, scope); err == nil && pending != nil && pending.AttemptID != "" {
		c.markAttempt(ctx, scope, logger, pending.AttemptID, StateFailed, msg, "")
	}
	if err := c.Pending.ClearPurchase(ctx, scope); err != nil {
		logger.Warn().Err(err).Msg("could not clear pending purchase")
	}
	if err := c.Pending.ClearPayment(ctx, scope); err != nil {
		logger.Warn().Err(err).Msg("could not clear pending payment")
	}
	var notices common.Notices
	notices.Error(msg)
	res.Notices = notices.List()
	return res, common.NewAppError(common.CodePaymentFailed, msg, http.StatusUnprocessableEntity, nil)
}

func (c *Callbacks) settleAttempt(ctx context.Context, scope state.Scope, logger zerolog.Logger, id string, order checkout.Result, err error) {
	if id == "" {
		return
	}
	if err != nil {
		msg := err.Error()
		if appErr, ok := common.AsAppError(err); ok {
			msg = appErr.Message
		}
		c.markAttempt(ctx, scope, logger, id, StateFailed, msg, "")
		return
	}
	c.markAttempt(ctx, scope, logger, id, StateFinalized, checkout.SuccessMessage, order.OrderID)
}

func (c *Callbacks) markAttempt(ctx context.Context, scope state.Scope, logger zerolog.Logger, id string, next State, msg, orderID string) {
	at, ok, err := c.Attempts.Load(ctx, scope, id)
	if err != nil || !ok {
		return
	}
	at.State, at.Message = next, msg
	if orderID != "" {
		at.OrderID = orderID
	}
	obs.IncCounter(obs.PurchaseAttemptsTotal, pathLabel(at.Path), string(next))
	if err := c.Attempts.Save(ctx, scope, &at); err != nil {
		logger.Warn().Err(err).Msg("could not persist attempt")
	}
}
