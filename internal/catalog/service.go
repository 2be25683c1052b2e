// Package catalog serves the bundle catalog with retail prices attached per request.
package catalog

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bundlehub/internal/backend"
	"github.com/noah-isme/bundlehub/internal/common"
	"github.com/noah-isme/bundlehub/internal/pricing"
)

const bundlesKey = "bundles"

// Networks sold by the storefront.
var Networks = []string{"mtn", "telecel", "at"}

// ValidNetwork reports whether n is a supported network.
func ValidNetwork(n string) bool {
	n = strings.ToLower(strings.TrimSpace(n))
	for _, known := range Networks {
		if n == known {
			return true
		}
	}
	return false
}

// Source fetches wholesale bundles.
type Source interface {
	Bundles(ctx context.Context) ([]backend.Bundle, error)
	Bundle(ctx context.Context, id string) (backend.Bundle, error)
}

// PriceBook yields the pricing engine for the current settings.
type PriceBook interface {
	Engine(ctx context.Context) (*pricing.Engine, error)
}

// Bundle is a catalog entry with retail prices. Price is the tier that applies to the caller.
type Bundle struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Network     string          `json:"network"`
	Image       string          `json:"image"`
	Price       pricing.Money   `json:"price"`
	MemberPrice pricing.Money   `json:"memberPrice"`
	PublicPrice pricing.Money   `json:"publicPrice"`
	Cost        decimal.Decimal `json:"-"`
}

// Service combines the backend catalog, the cache and the pricing engine.
type Service struct {
	source Source
	cache  *Cache
	prices PriceBook
	logger zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Source Source
	Cache  *Cache
	Prices PriceBook
	Logger zerolog.Logger
}

// NewService constructs a catalog service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil {
		return nil, errors.New("catalog: source is required")
	}
	if cfg.Prices == nil {
		return nil, errors.New("catalog: price book is required")
	}
	return &Service{
		source: cfg.Source,
		cache:  cfg.Cache,
		prices: cfg.Prices,
		logger: cfg.Logger.With().Str("component", "catalog").Logger(),
	}, nil
}

// Wholesale returns the backend catalog, served from cache when fresh.
func (s *Service) Wholesale(ctx context.Context) ([]backend.Bundle, error) {
	var cached []backend.Bundle
	if ok, err := s.cache.GetJSON(ctx, bundlesKey, &cached); err != nil {
		s.logger.Warn().Err(err).Msg("read catalog cache")
	} else if ok {
		return cached, nil
	}
	rows, err := s.source.Bundles(ctx)
	if err != nil {
		return nil, common.Upstream("Failed to load bundles. Please try again.", err)
	}
	if err := s.cache.SetJSON(ctx, bundlesKey, rows); err != nil {
		s.logger.Warn().Err(err).Msg("write catalog cache")
	}
	return rows, nil
}

// List returns every bundle, optionally filtered by network, priced for the caller's tier.
func (s *Service) List(ctx context.Context, network string, member bool) ([]Bundle, error) {
	rows, err := s.Wholesale(ctx)
	if err != nil {
		return nil, err
	}
	engine, err := s.prices.Engine(ctx)
	if err != nil {
		return nil, err
	}
	network = strings.ToLower(strings.TrimSpace(network))
	out := make([]Bundle, 0, len(rows))
	for _, row := range rows {
		b := price(engine, row, member)
		if network != "" && b.Network != network {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Get returns one bundle priced for the caller's tier.
func (s *Service) Get(ctx context.Context, id string, member bool) (Bundle, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Bundle{}, common.Validation("bundle id is required", nil)
	}
	engine, err := s.prices.Engine(ctx)
	if err != nil {
		return Bundle{}, err
	}
	if rows, err := s.Wholesale(ctx); err == nil {
		for _, row := range rows {
			if row.ID.String() == id {
				return price(engine, row, member), nil
			}
		}
	}
	row, err := s.source.Bundle(ctx, id)
	if err != nil {
		var se *backend.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return Bundle{}, common.NewAppError(common.CodeNotFound, "bundle not found", http.StatusNotFound, err)
		}
		return Bundle{}, common.Upstream("Failed to load bundle. Please try again.", err)
	}
	return price(engine, row, member), nil
}

// Refresh drops the cached catalog.
func (s *Service) Refresh(ctx context.Context) error {
	return s.cache.Invalidate(ctx, bundlesKey)
}

func price(engine *pricing.Engine, row backend.Bundle, member bool) Bundle {
	id := row.ID.String()
	q := engine.Quote(id, row.Price)
	return Bundle{
		ID:          id,
		Title:       row.Title,
		Description: row.Description,
		Network:     strings.ToLower(strings.TrimSpace(row.Network)),
		Image:       row.Image,
		Price:       q.Price(member),
		MemberPrice: q.Member,
		PublicPrice: q.Public,
		Cost:        row.Price,
	}
}
