package cart

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bundlehub/internal/catalog"
	"github.com/noah-isme/bundlehub/internal/common"
	"github.com/noah-isme/bundlehub/internal/feasibility"
	"github.com/noah-isme/bundlehub/internal/state"
)

// Catalog resolves a bundle with the caller's price.
type Catalog interface {
	Get(ctx context.Context, id string, member bool) (catalog.Bundle, error)
}

// Gate checks whether the supplier can fulfil an amount.
type Gate interface {
	Check(ctx context.Context, required decimal.Decimal) feasibility.Result
}

// View is the cart as returned to the UI.
type View struct {
	Items   []Item          `json:"items"`
	Count   int             `json:"count"`
	Total   int64           `json:"total"`
	Notices []common.Notice `json:"-"`
}

func newView(items []Item, notices []common.Notice) View {
	sum := Summarize(items)
	return View{Items: items, Count: sum.Items, Total: sum.Total, Notices: notices}
}

// Service coordinates the cart store with the catalog and the feasibility gate.
type Service struct {
	Store   *Store
	Catalog Catalog
	Gate    Gate
	Logger  zerolog.Logger
}

// Get returns the current cart.
func (s *Service) Get(ctx context.Context, scope state.Scope) (View, error) {
	items, err := s.Store.List(ctx, scope)
	if err != nil {
		return View{}, err
	}
	return newView(items, nil), nil
}

// Add puts a bundle in the cart after confirming the supplier can cover it.
func (s *Service) Add(ctx context.Context, scope state.Scope, bundleID string, member bool) (View, error) {
	bundle, err := s.Catalog.Get(ctx, bundleID, member)
	if err != nil {
		return View{}, err
	}

	var notices common.Notices
	if s.Gate != nil {
		res := s.Gate.Check(ctx, decimal.NewFromInt(bundle.Price))
		notices.Extend(res.Notices)
		if err := res.Err(); err != nil {
			return View{Notices: notices.List()}, err
		}
	}

	added, items, err := s.Store.Add(ctx, scope, bundle)
	if err != nil {
		return View{}, err
	}
	if added {
		notices.Success(bundle.Title + " added to cart")
	} else {
		notices.Info(AlreadyInCartMessage)
	}
	s.Logger.Debug().Str("bundle_id", bundle.ID).Bool("added", added).Msg("cart add")
	return newView(items, notices.List()), nil
}

// Remove takes a bundle out of the cart.
func (s *Service) Remove(ctx context.Context, scope state.Scope, bundleID string) (View, error) {
	items, err := s.Store.Remove(ctx, scope, bundleID)
	if err != nil {
		return View{}, err
	}
	return newView(items, nil), nil
}
