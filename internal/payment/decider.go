package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/bundlehub/internal/common"
)

// ErrDecisionRequired means the caller has to answer a prompt before the attempt can continue.
var ErrDecisionRequired = errors.New("payment: decision required")

// PromptKind names the question being asked.
type PromptKind string

const (
	PromptGuestEmail          PromptKind = "guest_email"
	PromptInsufficientBalance PromptKind = "insufficient_balance"
	PromptHighValue           PromptKind = "high_value"
)

// Choice is an answer to a path prompt.
type Choice string

const (
	ChoiceNone     Choice = ""
	ChoiceWallet   Choice = "wallet"
	ChoiceExternal Choice = "external"
	ChoiceAbort    Choice = "abort"
)

// Method selects the external payment route.
type Method string

const (
	MethodHosted Method = "hosted"
	MethodMomo   Method = "momo"
)

// Prompt is a question put to the user.
type Prompt struct {
	Kind    PromptKind `json:"kind"`
	Message string     `json:"message"`
	Options []Choice   `json:"options,omitempty"`
}

// Answer is the user's reply. Email is only meaningful for PromptGuestEmail.
type Answer struct {
	Choice   Choice
	Email    string
	Method   Method
	Provider string
}

// Decider answers prompts raised during path selection.
type Decider interface {
	Decide(ctx context.Context, p Prompt) (Answer, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, p Prompt) (Answer, error)

func (f DeciderFunc) Decide(ctx context.Context, p Prompt) (Answer, error) { return f(ctx, p) }

// PreferenceDecider answers from values submitted with the request. A nil field means the
// question was never put to the user, which yields ErrDecisionRequired. An empty value is a decline.
type PreferenceDecider struct {
	Choice     *string
	GuestEmail *string
	Method     string
	Provider   string
}

func (d PreferenceDecider) Decide(_ context.Context, p Prompt) (Answer, error) {
	ans := Answer{Method: Method(strings.ToLower(strings.TrimSpace(d.Method))), Provider: strings.TrimSpace(d.Provider)}
	switch p.Kind {
	case PromptGuestEmail:
		if d.GuestEmail == nil {
			return ans, ErrDecisionRequired
		}
		ans.Email = strings.TrimSpace(*d.GuestEmail)
		return ans, nil
	default:
		if d.Choice == nil {
			return ans, ErrDecisionRequired
		}
		ans.Choice = Choice(strings.ToLower(strings.TrimSpace(*d.Choice)))
		return ans, nil
	}
}

func decisionError(p Prompt) error {
	return common.NewAppError(common.CodeDecisionRequired, p.Message, http.StatusConflict, ErrDecisionRequired).
		WithDetails(map[string]any{"prompt": p})
}
