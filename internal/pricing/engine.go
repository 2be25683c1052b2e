package pricing

import "github.com/shopspring/decimal"

// Money represents a retail amount in whole currency units.
type Money = int64

// Engine computes retail prices from one snapshot of settings and overrides.
type Engine struct {
	settings  MarkupSettings
	overrides Overrides
}

// NewEngine builds an engine. Invalid settings fall back to the defaults.
func NewEngine(settings MarkupSettings, overrides Overrides) *Engine {
	if overrides == nil {
		overrides = Overrides{}
	}
	return &Engine{settings: settings.OrDefault(), overrides: overrides}
}

// Settings returns the effective markup settings.
func (e *Engine) Settings() MarkupSettings { return e.settings }

// Override returns the override for bundleID, if any.
func (e *Engine) Override(bundleID string) (decimal.Decimal, bool) {
	d, ok := e.overrides[bundleID]
	return d, ok
}

// RetailPrice converts a wholesale cost into a whole-unit retail price. Members skip the
// public surcharge. An override replaces the formula but the surcharge still applies to the
// public. Halves round away from zero.
func (e *Engine) RetailPrice(bundleID string, cost decimal.Decimal, member bool) Money {
	s := e.settings
	if price, ok := e.overrides[bundleID]; ok && price.IsPositive() {
		if !member {
			price = price.Add(s.PublicSurcharge)
		}
		return price.Round(0).IntPart()
	}

	profit := cost.Mul(s.Percent).Add(s.Flat)
	if !member {
		profit = profit.Add(s.PublicSurcharge)
	}
	if profit.LessThan(s.MinProfit) {
		profit = s.MinProfit
	}
	return cost.Add(profit).Round(0).IntPart()
}

// Quote holds both tiers of a bundle price.
type Quote struct {
	Member Money `json:"memberPrice"`
	Public Money `json:"publicPrice"`
}

// Quote evaluates the formula once per tier.
func (e *Engine) Quote(bundleID string, cost decimal.Decimal) Quote {
	return Quote{
		Member: e.RetailPrice(bundleID, cost, true),
		Public: e.RetailPrice(bundleID, cost, false),
	}
}

// Price returns the tier that applies to the caller.
func (q Quote) Price(member bool) Money {
	if member {
		return q.Member
	}
	return q.Public
}

// Summary aggregates cart totals.
type Summary struct {
	Items int   `json:"items"`
	Total Money `json:"total"`
}

// Compute totals the given line prices. Negative prices are ignored.
func Compute(prices []Money) Summary {
	var sum Summary
	for _, p := range prices {
		if p < 0 {
			continue
		}
		sum.Items++
		sum.Total += p
	}
	return sum
}
