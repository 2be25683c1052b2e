package payment

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/bundlehub/internal/auth"
	"github.com/noah-isme/bundlehub/internal/backend"
	"github.com/noah-isme/bundlehub/internal/common"
	"github.com/noah-isme/bundlehub/internal/pricing"
	"github.com/noah-isme/bundlehub/internal/state"
)

// TopUp starts a hosted payment that credits the wallet. A stale pending purchase is dropped so the
// callback reports a top-up instead of ordering a bundle.
func (o *Orchestrator) TopUp(ctx context.Context, scope state.Scope, sess *auth.Session, amount pricing.Money) (Outcome, error) {
	if sess == nil {
		return Outcome{}, common.NewAppError(common.CodeUnauthorized, "login required", http.StatusUnauthorized, nil)
	}
	if amount <= 0 {
		return Outcome{}, common.Validation("amount must be greater than zero", nil)
	}
	at := Attempt{ID: uuid.NewString(), State: StateHostedRedirect, Path: PathHosted, Price: amount}
	logger := o.Logger.With().Str("attempt_id", at.ID).Logger()

	resp, err := o.Gateway.InitializePayment(ctx, amount, sess.User.Email)
	if err != nil {
		msg := backend.MessageOf(err)
		if msg == "" {
			msg = msgInitFailed
		}
		logger.Error().Err(err).Msg("initialize top-up failed")
		return Outcome{}, common.NewAppError(common.CodePaymentFailed, msg, http.StatusBadGateway, err)
	}
	if !resp.Success || resp.Data.AuthorizationURL == "" {
		msg := strings.TrimSpace(resp.Message)
		if msg == "" {
			msg = msgInitFailed
		}
		return Outcome{}, common.NewAppError(common.CodePaymentFailed, msg, http.StatusUnprocessableEntity, nil)
	}
	if err := o.Pending.ClearPurchase(ctx, scope); err != nil {
		return Outcome{}, err
	}
	if err := o.Pending.SavePayment(ctx, scope, resp.Data.Reference, amount); err != nil {
		return Outcome{}, err
	}
	at.Reference = resp.Data.Reference
	if err := o.Attempts.Save(ctx, scope, &at); err != nil {
		logger.Warn().Err(err).Msg("could not persist attempt")
	}

	var notices common.Notices
	notices.Info(msgRedirecting)
	return Outcome{Attempt: at, Navigate: resp.Data.AuthorizationURL, Notices: notices.List()}, nil
}
