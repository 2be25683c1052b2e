// Package payment runs the purchase state machine: wallet, hosted redirect and direct mobile-money charge.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/bundlehub/internal/auth"
	"github.com/noah-isme/bundlehub/internal/backend"
	"github.com/noah-isme/bundlehub/internal/catalog"
	"github.com/noah-isme/bundlehub/internal/checkout"
	"github.com/noah-isme/bundlehub/internal/common"
	"github.com/noah-isme/bundlehub/internal/feasibility"
	"github.com/noah-isme/bundlehub/internal/obs"
	"github.com/noah-isme/bundlehub/internal/pricing"
	"github.com/noah-isme/bundlehub/internal/state"
)

const (
	msgTerms        = "Please agree to the Terms and Conditions to proceed"
	msgPhone        = "Please enter a valid Ghana phone number"
	msgGuestPrompt  = "You are not logged in. Enter your email address to proceed with guest checkout (for payment receipt):"
	msgGuestInvalid = "A valid email is required for guest checkout."
	msgCancelled    = "Purchase cancelled."
	msgBadChoice    = "Unsupported payment choice"
	msgRedirecting  = "Redirecting to the payment page..."
	msgInitFailed   = "Failed to initialize payment"
	msgChargeFailed = "Failed to initiate charge"
)

// Catalog resolves the authoritative price of a bundle.
type Catalog interface {
	Get(ctx context.Context, id string, member bool) (catalog.Bundle, error)
}

// Gate re-checks supplier feasibility before money moves.
type Gate interface {
	Check(ctx context.Context, required decimal.Decimal) feasibility.Result
}

// Gateway is the backend's payment surface.
type Gateway interface {
	InitializePayment(ctx context.Context, amount int64, email string) (backend.InitializePaymentResponse, error)
	ChargeMomo(ctx context.Context, req backend.ChargeMomoRequest) (backend.ChargeMomoResponse, error)
	VerifyPayment(ctx context.Context, req backend.VerifyPaymentRequest) (backend.VerifyPaymentResponse, error)
}

// Finalizer places the order once payment is settled.
type Finalizer interface {
	Finalize(ctx context.Context, scope state.Scope, sess *auth.Session, req checkout.Request) (checkout.Result, error)
}

// Request is a purchase submitted by the UI.
type Request struct {
	BundleID      string
	Phone         string
	Network       string
	TermsAccepted *bool
}

// Outcome is what the UI needs to continue after Purchase returns.
type Outcome struct {
	Attempt Attempt `json:"attempt"`
	// Navigate is a full page handoff to an external payment page.
	Navigate string           `json:"navigate,omitempty"`
	Order    *checkout.Result `json:"order,omitempty"`
	Notices  []common.Notice  `json:"-"`
}

// Orchestrator drives purchase attempts.
type Orchestrator struct {
	Catalog            Catalog
	Gate               Gate
	Gateway            Gateway
	Finalizer          Finalizer
	Registry           *Registry
	Pending            Pending
	Attempts           Attempts
	HighValueThreshold decimal.Decimal
	Poll               PollConfig
	Logger             zerolog.Logger
}

func (o *Orchestrator) threshold() decimal.Decimal {
	if o.HighValueThreshold.IsPositive() {
		return o.HighValueThreshold
	}
	return decimal.NewFromInt(50)
}

type run struct {
	o       *Orchestrator
	scope   state.Scope
	sess    *auth.Session
	at      *Attempt
	notices common.Notices
	span    trace.Span
	logger  zerolog.Logger
}

func (r *run) transition(ctx context.Context, next State) {
	r.at.State = next
	r.span.AddEvent("state", trace.WithAttributes(attribute.String("state", string(next))))
	if next.Terminal() {
		obs.IncCounter(obs.PurchaseAttemptsTotal, pathLabel(r.at.Path), string(next))
	}
	r.save(ctx)
}

// enter moves to a state that waits on a decision. It is not persisted until the
// decision arrives, so a 409 round trip leaves nothing behind.
func (r *run) enter(next State) {
	r.at.State = next
	r.span.AddEvent("state", trace.WithAttributes(attribute.String("state", string(next))))
}

func (r *run) save(ctx context.Context) {
	if err := r.o.Attempts.Save(ctx, r.scope, r.at); err != nil {
		r.logger.Warn().Err(err).Msg("could not persist attempt")
	}
}

func (r *run) fail(ctx context.Context, next State, err error) (Outcome, error) {
	if appErr, ok := common.AsAppError(err); ok {
		r.at.Message = appErr.Message
	} else if err != nil {
		r.at.Message = err.Error()
	}
	r.transition(ctx, next)
	if next == StateAborted {
		r.notices.Info(r.at.Message)
	} else {
		r.notices.Error(r.at.Message)
	}
	return Outcome{Attempt: *r.at, Notices: r.notices.List()}, err
}

func pathLabel(p Path) string {
	if p == PathNone {
		return "none"
	}
	return string(p)
}

// Purchase runs one attempt. sess is nil for guests. A missing decision returns an
// ErrDecisionRequired AppError carrying the prompt; the caller resubmits with the answer.
func (o *Orchestrator) Purchase(ctx context.Context, scope state.Scope, sess *auth.Session, req Request, decider Decider) (Outcome, error) {
	ctx, span := otel.Tracer("payment.Orchestrator").Start(ctx, "Orchestrator.Purchase")
	defer span.End()

	at := &Attempt{ID: uuid.NewString(), State: StateValidating, BundleID: strings.TrimSpace(req.BundleID)}
	r := &run{
		o:      o,
		scope:  scope,
		sess:   sess,
		at:     at,
		span:   span,
		logger: o.Logger.With().Str("attempt_id", at.ID).Str("bundle_id", at.BundleID).Logger(),
	}
	span.SetAttributes(attribute.String("attempt.id", at.ID), attribute.String("bundle.id", at.BundleID))

	if req.TermsAccepted != nil && !*req.TermsAccepted {
		return r.fail(ctx, StateFailed, common.Validation(msgTerms, nil))
	}
	phone := NormalizePhone(req.Phone)
	if !ValidGhanaPhone(phone) {
		return r.fail(ctx, StateFailed, common.Validation(msgPhone, ErrInvalidPhone))
	}

	bundle, err := o.Catalog.Get(ctx, at.BundleID, sess != nil)
	if err != nil {
		return r.fail(ctx, StateFailed, err)
	}
	at.Price = bundle.Price
	network := strings.ToLower(strings.TrimSpace(req.Network))
	if network == "" {
		network = bundle.Network
	}
	span.SetAttributes(attribute.Int64("attempt.price", at.Price))

	if o.Gate != nil {
		res := o.Gate.Check(ctx, decimal.NewFromInt(at.Price))
		r.notices.Extend(res.Notices)
		if err := res.Err(); err != nil {
			at.Message = feasibility.MaintenanceMessage
			r.transition(ctx, StateFailed)
			return Outcome{Attempt: *at, Notices: r.notices.List()}, err
		}
	}

	order := checkout.Request{
		BundleID: at.BundleID,
		Title:    bundle.Title,
		Price:    at.Price,
		Cost:     bundle.Cost,
		Phone:    phone,
		Network:  network,
	}

	if sess == nil {
		return o.guest(ctx, r, order, decider)
	}
	return o.member(ctx, r, order, decider)
}

func (o *Orchestrator) guest(ctx context.Context, r *run, order checkout.Request, decider Decider) (Outcome, error) {
	r.enter(StateGuestEmail)
	prompt := Prompt{Kind: PromptGuestEmail, Message: msgGuestPrompt}
	ans, err := decider.Decide(ctx, prompt)
	if errors.Is(err, ErrDecisionRequired) {
		return Outcome{Attempt: *r.at, Notices: r.notices.List()}, decisionError(prompt)
	}
	if err != nil {
		return r.fail(ctx, StateFailed, err)
	}
	if ans.Email == "" {
		return r.fail(ctx, StateAborted, common.NewAppError(common.CodeAborted, msgCancelled, http.StatusOK, nil))
	}
	if !strings.Contains(ans.Email, "@") {
		return r.fail(ctx, StateAborted, common.Validation(msgGuestInvalid, nil))
	}
	order.GuestEmail = ans.Email
	return o.hosted(ctx, r, order, ans.Email)
}

func (o *Orchestrator) member(ctx context.Context, r *run, order checkout.Request, decider Decider) (Outcome, error) {
	r.enter(StatePathSelection)
	price := decimal.NewFromInt(order.Price)
	balance := r.sess.User.Balance

	var (
		prompt        Prompt
		ask           bool
		declineAborts bool
	)
	switch {
	case balance.LessThan(price):
		ask, declineAborts = true, true
		prompt = Prompt{
			Kind:    PromptInsufficientBalance,
			Message: fmt.Sprintf("Insufficient balance. Your balance: %s. Required: %s.\n\nWould you like to pay %s via the payment page?",
				formatCurrency(balance), formatCurrency(price), formatCurrency(price)),
			Options: []Choice{ChoiceExternal, ChoiceAbort},
		}
	case price.GreaterThanOrEqual(o.threshold()):
		ask = true
		prompt = Prompt{
			Kind:    PromptHighValue,
			Message: fmt.Sprintf("This is a high-value bundle (%s). Would you like to pay via the payment page instead of using your wallet balance?", formatCurrency(price)),
			Options: []Choice{ChoiceExternal, ChoiceWallet},
		}
	}

	if !ask {
		return o.wallet(ctx, r, order)
	}
	ans, err := decider.Decide(ctx, prompt)
	if errors.Is(err, ErrDecisionRequired) {
		return Outcome{Attempt: *r.at, Notices: r.notices.List()}, decisionError(prompt)
	}
	if err != nil {
		return r.fail(ctx, StateFailed, err)
	}
	if ans.Choice != ChoiceNone && !slices.Contains(prompt.Options, ans.Choice) {
		return r.fail(ctx, StateFailed, common.Validation(msgBadChoice, nil).
			WithDetails(map[string]any{"choice": ans.Choice, "options": prompt.Options}))
	}
	switch {
	case ans.Choice == ChoiceExternal:
	case declineAborts:
		return r.fail(ctx, StateAborted, common.NewAppError(common.CodeAborted, msgCancelled, http.StatusOK, nil))
	default:
		return o.wallet(ctx, r, order)
	}
	if ans.Method == MethodMomo && ans.Provider != "" {
		return o.direct(ctx, r, order, ans.Provider)
	}
	return o.hosted(ctx, r, order, r.sess.User.Email)
}

func (o *Orchestrator) wallet(ctx context.Context, r *run, order checkout.Request) (Outcome, error) {
	r.at.Path = PathWallet
	r.transition(ctx, StateWalletDirect)
	order.Prepaid = false
	return o.finalize(ctx, r, order)
}

func (o *Orchestrator) finalize(ctx context.Context, r *run, order checkout.Request) (Outcome, error) {
	res, err := o.Finalizer.Finalize(ctx, r.scope, r.sess, order)
	r.notices.Extend(res.Notices)
	if err != nil {
		if appErr, ok := common.AsAppError(err); ok {
			r.at.Message = appErr.Message
		}
		r.transition(ctx, StateFailed)
		return Outcome{Attempt: *r.at, Notices: r.notices.List()}, err
	}
	r.at.OrderID = res.OrderID
	r.transition(ctx, StateFinalized)
	return Outcome{Attempt: *r.at, Order: &res, Notices: r.notices.List()}, nil
}

func (o *Orchestrator) hosted(ctx context.Context, r *run, order checkout.Request, email string) (Outcome, error) {
	r.at.Path = PathHosted
	r.transition(ctx, StateHostedRedirect)

	resp, err := o.Gateway.InitializePayment(ctx, order.Price, email)
	if err != nil {
		msg := backend.MessageOf(err)
		if msg == "" {
			msg = msgInitFailed
		}
		r.logger.Error().Err(err).Msg("initialize payment failed")
		return r.fail(ctx, StateFailed, common.NewAppError(common.CodePaymentFailed, msg, http.StatusBadGateway, err))
	}
	if !resp.Success || resp.Data.AuthorizationURL == "" {
		msg := strings.TrimSpace(resp.Message)
		if msg == "" {
			msg = msgInitFailed
		}
		return r.fail(ctx, StateFailed, common.NewAppError(common.CodePaymentFailed, msg, http.StatusUnprocessableEntity, nil))
	}

	pending := PendingPurchase{
		AttemptID: r.at.ID,
		BundleID:  order.BundleID,
		Title:     order.Title,
		Price:     order.Price,
		Phone:     order.Phone,
		Network:   order.Network,
	}
	if order.GuestEmail != "" {
		guest := order.GuestEmail
		pending.GuestEmail = &guest
	}
	if err := o.Pending.SavePurchase(ctx, r.scope, pending); err != nil {
		return r.fail(ctx, StateFailed, err)
	}
	if err := o.Pending.SavePayment(ctx, r.scope, resp.Data.Reference, order.Price); err != nil {
		return r.fail(ctx, StateFailed, err)
	}

	r.at.Reference = resp.Data.Reference
	r.save(ctx)
	r.notices.Info(msgRedirecting)
	r.logger.Info().Str("reference", resp.Data.Reference).Msg("hosted payment initialized")
	return Outcome{Attempt: *r.at, Navigate: resp.Data.AuthorizationURL, Notices: r.notices.List()}, nil
}

func (o *Orchestrator) direct(ctx context.Context, r *run, order checkout.Request, provider string) (Outcome, error) {
	r.at.Path = PathDirect
	r.transition(ctx, StateDirectCharge)
	email := r.sess.User.Email

	resp, err := o.Gateway.ChargeMomo(ctx, backend.ChargeMomoRequest{
		Amount:   order.Price,
		Email:    email,
		Phone:    order.Phone,
		Provider: provider,
	})
	if err != nil {
		msg := backend.MessageOf(err)
		if msg == "" {
			msg = msgChargeFailed
		}
		r.logger.Error().Err(err).Msg("charge momo failed")
		return r.fail(ctx, StateFailed, common.NewAppError(common.CodePaymentFailed, msg, http.StatusBadGateway, err))
	}
	if !resp.Success || resp.Reference == "" {
		msg := strings.TrimSpace(resp.Message)
		if msg == "" {
			msg = msgChargeFailed
		}
		return r.fail(ctx, StateFailed, common.NewAppError(common.CodePaymentFailed, msg, http.StatusUnprocessableEntity, nil))
	}

	r.at.Reference = resp.Reference
	r.at.Message = resp.Message
	r.save(ctx)
	r.notices.Info(resp.Message)

	if err := o.startPoll(ctx, r, order, email); err != nil {
		return r.fail(ctx, StateFailed, err)
	}
	return Outcome{Attempt: *r.at, Notices: r.notices.List()}, nil
}

func (o *Orchestrator) startPoll(ctx context.Context, r *run, order checkout.Request, email string) error {
	if o.Registry == nil {
		return errors.New("payment: poll registry not configured")
	}
	order.Prepaid = true
	at := *r.at
	scope, sess := r.scope, r.sess
	logger := r.logger
	cfg := o.Poll
	cfg.Logger = logger

	// The poll outlives the request; keep its values (token, trace) but not its deadline.
	parent := context.WithoutCancel(ctx)
	verify := backend.VerifyPaymentRequest{Reference: at.Reference, Email: email, Amount: jsonAmount(order.Price)}

	check := func(ctx context.Context, _ int) (bool, error) {
		resp, err := o.Gateway.VerifyPayment(ctx, verify)
		if err != nil {
			return false, err
		}
		return resp.Verified(), nil
	}
	finish := func(ctx context.Context, res PollResult) {
		switch res {
		case PollVerified:
			out, err := o.Finalizer.Finalize(ctx, scope, sess, order)
			if err != nil {
				at.State = StateFailed
				if appErr, ok := common.AsAppError(err); ok {
					at.Message = appErr.Message
				}
			} else {
				at.State = StateFinalized
				at.OrderID = out.OrderID
				at.Message = checkout.SuccessMessage
			}
		case PollExhausted:
			at.State = StateUnresolved
			at.Message = "Payment was not confirmed in time. Please try another payment method."
		case PollCancelled:
			at.State = StateAborted
			at.Message = msgCancelled
		}
		obs.IncCounter(obs.PurchaseAttemptsTotal, pathLabel(at.Path), string(at.State))
		if err := o.Attempts.Save(ctx, scope, &at); err != nil {
			logger.Warn().Err(err).Msg("could not persist attempt")
		}
		logger.Info().Str("reference", at.Reference).Str("result", string(res)).Msg("payment poll finished")
	}

	_, err := o.Registry.Start(parent, at.ID, cfg, check, finish)
	return err
}

// Status returns the stored attempt.
func (o *Orchestrator) Status(ctx context.Context, scope state.Scope, id string) (Attempt, error) {
	at, ok, err := o.Attempts.Load(ctx, scope, id)
	if err != nil {
		return Attempt{}, err
	}
	if !ok {
		return Attempt{}, common.NewAppError(common.CodeNotFound, "purchase attempt not found", http.StatusNotFound, nil)
	}
	return at, nil
}

// Cancel stops the poll of a direct charge attempt.
func (o *Orchestrator) Cancel(ctx context.Context, scope state.Scope, id string) (Attempt, error) {
	at, err := o.Status(ctx, scope, id)
	if err != nil {
		return Attempt{}, err
	}
	if o.Registry == nil || at.State.Terminal() {
		return at, nil
	}
	if task, ok := o.Registry.Get(id); ok {
		task.Cancel()
		task.Wait()
		return o.Status(ctx, scope, id)
	}
	return at, nil
}

func formatCurrency(v decimal.Decimal) string {
	return "GHS " + v.StringFixed(2)
}

func jsonAmount(v pricing.Money) json.Number {
	return json.Number(strconv.FormatInt(v, 10))
}
