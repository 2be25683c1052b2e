package payment

import (
	"context"
	"time"

	"github.com/noah-isme/bundlehub/internal/pricing"
	"github.com/noah-isme/bundlehub/internal/state"
)

// State is a step of the purchase state machine.
type State string

const (
	StateValidating     State = "validating"
	StateGuestEmail     State = "guest_email"
	StatePathSelection  State = "path_selection"
	StateWalletDirect   State = "wallet_direct"
	StateHostedRedirect State = "hosted_redirect"
	StateDirectCharge   State = "direct_charge"
	StateFinalized      State = "finalized"
	StateFailed         State = "failed"
	StateAborted        State = "aborted"
	StateUnresolved     State = "unresolved"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	switch s {
	case StateFinalized, StateFailed, StateAborted, StateUnresolved:
		return true
	}
	return false
}

// Path is the payment route chosen for an attempt.
type Path string

const (
	PathNone   Path = ""
	PathWallet Path = "wallet"
	PathHosted Path = "hosted"
	PathDirect Path = "direct"
)

// Attempt records one run of the state machine.
type Attempt struct {
	ID        string        `json:"id"`
	State     State         `json:"state"`
	Path      Path          `json:"path,omitempty"`
	BundleID  string        `json:"bundleId"`
	Price     pricing.Money `json:"price"`
	Reference string        `json:"reference,omitempty"`
	OrderID   string        `json:"orderId,omitempty"`
	Message   string        `json:"message,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func attemptKey(id string) string { return "attempt:" + id }

// Attempts persists attempts under attempt:<id> in the client scope.
type Attempts struct {
	Now func() time.Time
}

func (a Attempts) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}

// Save stamps and stores at.
func (a Attempts) Save(ctx context.Context, scope state.Scope, at *Attempt) error {
	at.UpdatedAt = a.now()
	return scope.SetJSON(ctx, attemptKey(at.ID), at)
}

// Load returns the attempt with id, reporting whether it exists.
func (a Attempts) Load(ctx context.Context, scope state.Scope, id string) (Attempt, bool, error) {
	var at Attempt
	ok, err := scope.GetJSON(ctx, attemptKey(id), &at)
	return at, ok, err
}
