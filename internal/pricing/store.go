package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bundlehub/internal/state"
)

// Store persists markup settings and price overrides in the global state scope.
type Store struct {
	scope state.Scope
	log   zerolog.Logger
}

// NewStore constructs a Store over the provided scope.
func NewStore(scope state.Scope, logger zerolog.Logger) *Store {
	return &Store{scope: scope, log: logger.With().Str("component", "pricing").Logger()}
}

// Settings loads the markup settings. Missing or corrupt data yields the defaults.
func (s *Store) Settings(ctx context.Context) (MarkupSettings, error) {
	var settings MarkupSettings
	ok, err := s.scope.GetJSON(ctx, state.KeyMarkupSettings, &settings)
	if err != nil {
		if !errors.Is(err, state.ErrCorrupt) {
			return MarkupSettings{}, err
		}
		s.log.Warn().Err(err).Msg("corrupt markup settings, using defaults")
		return DefaultSettings(), nil
	}
	if !ok {
		return DefaultSettings(), nil
	}
	return settings.OrDefault(), nil
}

// SaveSettings validates and persists new markup settings.
func (s *Store) SaveSettings(ctx context.Context, settings MarkupSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	return s.scope.SetJSON(ctx, state.KeyMarkupSettings, settings)
}

// Overrides loads the price overrides. Corrupt data yields an empty set.
func (s *Store) Overrides(ctx context.Context) (Overrides, error) {
	var raw map[string]string
	ok, err := s.scope.GetJSON(ctx, state.KeyCustomPrices, &raw)
	if err != nil {
		if !errors.Is(err, state.ErrCorrupt) {
			return nil, err
		}
		s.log.Warn().Err(err).Msg("corrupt price overrides, ignoring")
		return Overrides{}, nil
	}
	if !ok {
		return Overrides{}, nil
	}
	return ParseOverrides(raw), nil
}

// SetOverride stores or clears the override for bundleID. It reports whether an override
// remains after the call.
func (s *Store) SetOverride(ctx context.Context, bundleID string, price decimal.Decimal) (bool, error) {
	bundleID = strings.TrimSpace(bundleID)
	if bundleID == "" {
		return false, fmt.Errorf("pricing: bundle id is required")
	}
	overrides, err := s.Overrides(ctx)
	if err != nil {
		return false, err
	}
	kept := overrides.Set(bundleID, price)
	if err := s.scope.SetJSON(ctx, state.KeyCustomPrices, overrides.Encode()); err != nil {
		return false, err
	}
	return kept, nil
}

// ClearOverride removes the override for bundleID.
func (s *Store) ClearOverride(ctx context.Context, bundleID string) error {
	_, err := s.SetOverride(ctx, bundleID, decimal.Zero)
	return err
}

// Engine snapshots the current settings and overrides.
func (s *Store) Engine(ctx context.Context) (*Engine, error) {
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	overrides, err := s.Overrides(ctx)
	if err != nil {
		return nil, err
	}
	return NewEngine(settings, overrides), nil
}
