// Package feasibility decides whether the upstream supplier can fulfil a purchase.
package feasibility

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bundlehub/internal/common"
	"github.com/noah-isme/bundlehub/internal/obs"
)

// MaintenanceMessage is shown when the supplier float cannot cover a purchase.
const MaintenanceMessage = "System is currently undergoing maintenance. Please try again in 30 minutes."

// BalanceSource reports the supplier float.
type BalanceSource interface {
	SupplierBalance(ctx context.Context) (decimal.Decimal, error)
}

// Gate blocks purchases the supplier balance cannot cover.
type Gate struct {
	Source              BalanceSource
	LowBalanceThreshold decimal.Decimal
	Logger              zerolog.Logger
}

// Result is the outcome of one check.
type Result struct {
	Allowed    bool
	Balance    decimal.Decimal
	LowBalance bool
	Notices    []common.Notice
}

// Err returns the INFEASIBLE error for a blocked result, nil otherwise.
func (r Result) Err() error {
	if r.Allowed {
		return nil
	}
	return common.NewAppError(common.CodeInfeasible, MaintenanceMessage, http.StatusConflict, nil)
}

// Check looks up the supplier balance and compares it with required. A failed lookup counts as
// a zero balance so purchases are blocked rather than oversold.
func (g *Gate) Check(ctx context.Context, required decimal.Decimal) Result {
	threshold := g.LowBalanceThreshold
	if threshold.IsZero() {
		threshold = decimal.NewFromInt(50)
	}

	balance, err := g.Source.SupplierBalance(ctx)
	if err != nil {
		g.Logger.Warn().Err(err).Msg("could not check supplier balance, using 0")
		balance = decimal.Zero
	}

	var notices common.Notices
	res := Result{Allowed: true, Balance: balance}
	if balance.LessThan(threshold) {
		res.LowBalance = true
		notices.Warn(fmt.Sprintf("System Notice: supplier balance is low (GHS %s). Purchases may be delayed.", balance.StringFixed(2)))
	}
	if balance.LessThan(required) {
		res.Allowed = false
		notices.Warn(MaintenanceMessage)
		g.Logger.Error().
			Str("balance", balance.StringFixed(2)).
			Str("required", required.StringFixed(2)).
			Msg("insufficient supplier balance")
	}
	res.Notices = notices.List()

	outcome := "allowed"
	switch {
	case err != nil:
		outcome = "lookup_failed"
	case !res.Allowed:
		outcome = "blocked"
	}
	obs.IncCounter(obs.FeasibilityChecksTotal, outcome)
	return res
}
