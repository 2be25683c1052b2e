// Package report builds the administrator sales report.
package report

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/bundlehub/internal/backend"
)

// fallbackCostRatio estimates cost when an order does not carry one.
var fallbackCostRatio = decimal.RequireFromString("0.8")

// BundleSales counts sales for one bundle title.
type BundleSales struct {
	Title string `json:"title"`
	Sales int    `json:"sales"`
}

// Report summarises every order known to the backend.
type Report struct {
	GeneratedAt  time.Time       `json:"generatedAt"`
	RequestedBy  string          `json:"requestedBy,omitempty"`
	Transactions int             `json:"transactions"`
	Revenue      decimal.Decimal `json:"revenue"`
	Cost         decimal.Decimal `json:"cost"`
	Profit       decimal.Decimal `json:"profit"`
	TopBundles   []BundleSales   `json:"topBundles"`
}

// Compute totals revenue, cost and profit and ranks bundles by number of sales.
func Compute(purchases []backend.Purchase, now time.Time) Report {
	rep := Report{
		GeneratedAt:  now.UTC(),
		Transactions: len(purchases),
		Revenue:      decimal.Zero,
		Cost:         decimal.Zero,
		TopBundles:   []BundleSales{},
	}
	counts := map[string]int{}
	for _, p := range purchases {
		rep.Revenue = rep.Revenue.Add(p.Price)
		cost := p.Price.Mul(fallbackCostRatio)
		if p.Cost.Valid {
			cost = p.Cost.Decimal
		}
		rep.Cost = rep.Cost.Add(cost)
		title := strings.TrimSpace(p.Title)
		if title == "" {
			title = "Unknown"
		}
		counts[title]++
	}
	rep.Profit = rep.Revenue.Sub(rep.Cost)

	for title, n := range counts {
		rep.TopBundles = append(rep.TopBundles, BundleSales{Title: title, Sales: n})
	}
	sort.Slice(rep.TopBundles, func(i, j int) bool {
		a, b := rep.TopBundles[i], rep.TopBundles[j]
		if a.Sales != b.Sales {
			return a.Sales > b.Sales
		}
		return a.Title < b.Title
	})
	return rep
}
