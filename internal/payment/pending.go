package payment

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/noah-isme/bundlehub/internal/pricing"
	"github.com/noah-isme/bundlehub/internal/state"
)

// PendingPurchase is what must be ordered once an external payment settles.
type PendingPurchase struct {
	AttemptID  string        `json:"attemptId,omitempty"`
	BundleID   string        `json:"bundleId"`
	Title      string        `json:"title,omitempty"`
	Price      pricing.Money `json:"price"`
	Phone      string        `json:"phone"`
	Network    string        `json:"network"`
	GuestEmail *string       `json:"guestEmail"`
}

// Guest reports the guest email, empty for members.
func (p PendingPurchase) Guest() string {
	if p.GuestEmail == nil {
		return ""
	}
	return *p.GuestEmail
}

// PendingPayment is the hosted payment the client was handed off to.
type PendingPayment struct {
	Reference string
	Amount    string
}

// Pending reads and writes the hosted-payment checkpoint of one client.
type Pending struct{}

// SavePurchase stores p as the purchase to finalize after the callback.
func (Pending) SavePurchase(ctx context.Context, scope state.Scope, p PendingPurchase) error {
	return scope.SetJSON(ctx, state.KeyPendingPurchase, p)
}

// Purchase loads the pending purchase. A corrupt record reads as absent.
func (Pending) Purchase(ctx context.Context, scope state.Scope) (*PendingPurchase, error) {
	var p PendingPurchase
	ok, err := scope.GetJSON(ctx, state.KeyPendingPurchase, &p)
	if err != nil {
		if errors.Is(err, state.ErrCorrupt) {
			return nil, nil
		}
		return nil, err
	}
	if !ok || strings.TrimSpace(p.BundleID) == "" {
		return nil, nil
	}
	return &p, nil
}

// ClearPurchase drops the pending purchase.
func (Pending) ClearPurchase(ctx context.Context, scope state.Scope) error {
	return scope.Delete(ctx, state.KeyPendingPurchase)
}

// SavePayment records the reference and amount of a hosted payment.
func (Pending) SavePayment(ctx context.Context, scope state.Scope, reference string, amount pricing.Money) error {
	return scope.SetMany(ctx, map[string]string{
		state.KeyPendingRef:    reference,
		state.KeyPendingAmount: strconv.FormatInt(amount, 10),
	})
}

// Payment loads the recorded hosted payment.
func (Pending) Payment(ctx context.Context, scope state.Scope) (PendingPayment, error) {
	ref, _, err := scope.GetString(ctx, state.KeyPendingRef)
	if err != nil {
		return PendingPayment{}, err
	}
	amount, _, err := scope.GetString(ctx, state.KeyPendingAmount)
	if err != nil {
		return PendingPayment{}, err
	}
	return PendingPayment{Reference: ref, Amount: amount}, nil
}

// ClearPayment drops the recorded hosted payment.
func (Pending) ClearPayment(ctx context.Context, scope state.Scope) error {
	return scope.Delete(ctx, state.KeyPendingRef, state.KeyPendingAmount)
}
