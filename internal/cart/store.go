// Package cart keeps each client's basket of bundles.
package cart

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/bundlehub/internal/catalog"
	"github.com/noah-isme/bundlehub/internal/pricing"
	"github.com/noah-isme/bundlehub/internal/state"
)

// AlreadyInCartMessage is the notice shown for a duplicate add.
const AlreadyInCartMessage = "Item already in cart"

// Item is the bundle snapshot taken when it was added.
type Item = catalog.Bundle

// Store persists the cart as a single JSON array per client.
type Store struct {
	logger zerolog.Logger
}

// NewStore constructs a cart store.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{logger: logger.With().Str("component", "cart").Logger()}
}

// List returns the items in insertion order. A corrupt cart reads as empty.
func (s *Store) List(ctx context.Context, scope state.Scope) ([]Item, error) {
	var items []Item
	_, err := scope.GetJSON(ctx, state.KeyCart, &items)
	if err != nil {
		if errors.Is(err, state.ErrCorrupt) {
			s.logger.Warn().Err(err).Msg("discarding unreadable cart")
			return []Item{}, nil
		}
		return nil, err
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// Add appends item unless an item with the same id is present. It reports whether the cart changed.
func (s *Store) Add(ctx context.Context, scope state.Scope, item Item) (bool, []Item, error) {
	items, err := s.List(ctx, scope)
	if err != nil {
		return false, nil, err
	}
	for _, existing := range items {
		if existing.ID == item.ID {
			return false, items, nil
		}
	}
	items = append(items, item)
	if err := scope.SetJSON(ctx, state.KeyCart, items); err != nil {
		return false, nil, err
	}
	return true, items, nil
}

// Remove drops every item with the given id and persists the remainder.
func (s *Store) Remove(ctx context.Context, scope state.Scope, id string) ([]Item, error) {
	items, err := s.List(ctx, scope)
	if err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	kept := items[:0]
	for _, item := range items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	if err := scope.SetJSON(ctx, state.KeyCart, kept); err != nil {
		return nil, err
	}
	return kept, nil
}

// Summarize totals the cart.
func Summarize(items []Item) pricing.Summary {
	prices := make([]pricing.Money, len(items))
	for i, item := range items {
		prices[i] = item.Price
	}
	return pricing.Compute(prices)
}
