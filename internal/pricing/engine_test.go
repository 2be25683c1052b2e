package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRetailPriceFormula(t *testing.T) {
	e := NewEngine(DefaultSettings(), nil)

	// 20 + 20*0.05 + 1.50 = 22.50, rounded away from zero.
	require.Equal(t, Money(23), e.RetailPrice("1", dec("20"), true))
	// Public adds the 2.00 surcharge: 24.50 -> 25.
	require.Equal(t, Money(25), e.RetailPrice("1", dec("20"), false))
	require.Equal(t, Money(12), e.RetailPrice("1", dec("10"), true))
}

func TestRetailPriceMinProfitClamp(t *testing.T) {
	settings := MarkupSettings{
		Flat:            decimal.Zero,
		Percent:         decimal.Zero,
		PublicSurcharge: decimal.Zero,
		MinProfit:       dec("3"),
	}
	e := NewEngine(settings, nil)
	require.Equal(t, Money(13), e.RetailPrice("1", dec("10"), true))
	require.Equal(t, Money(3), e.RetailPrice("1", decimal.Zero, false))
}

func TestRetailPriceOverride(t *testing.T) {
	overrides := Overrides{}
	overrides.Set("7", dec("5.50"))
	e := NewEngine(DefaultSettings(), overrides)

	require.Equal(t, Money(6), e.RetailPrice("7", dec("100"), true))
	require.Equal(t, Money(8), e.RetailPrice("7", dec("100"), false))
	// Other bundles still use the formula.
	require.Equal(t, Money(12), e.RetailPrice("8", dec("10"), true))
}

func TestOverrideNonPositiveClears(t *testing.T) {
	overrides := Overrides{}
	require.True(t, overrides.Set("7", dec("9")))
	require.False(t, overrides.Set("7", dec("-1")))
	_, ok := overrides["7"]
	require.False(t, ok)
}

func TestInvalidSettingsFallBackToDefaults(t *testing.T) {
	bad := DefaultSettings()
	bad.Flat = dec("-1")
	e := NewEngine(bad, nil)
	require.True(t, e.Settings().Flat.Equal(dec("1.50")))
}

func TestPublicMinusMemberEqualsSurcharge(t *testing.T) {
	e := NewEngine(DefaultSettings(), nil)
	for c := decimal.Zero; c.LessThanOrEqual(dec("500")); c = c.Add(dec("0.37")) {
		q := e.Quote("x", c)
		require.Equal(t, Money(2), q.Public-q.Member, "cost %s", c)
	}
}

func TestRetailPriceNonDecreasingAndAtLeastCost(t *testing.T) {
	e := NewEngine(DefaultSettings(), nil)
	for _, member := range []bool{true, false} {
		prev := Money(-1)
		for c := decimal.Zero; c.LessThanOrEqual(dec("300")); c = c.Add(dec("0.05")) {
			got := e.RetailPrice("x", c, member)
			require.GreaterOrEqual(t, got, prev, "cost %s member %v", c, member)
			require.True(t, decimal.NewFromInt(got).GreaterThanOrEqual(c), "cost %s member %v", c, member)
			prev = got
		}
	}
}

func TestQuotePrice(t *testing.T) {
	q := Quote{Member: 10, Public: 12}
	require.Equal(t, Money(10), q.Price(true))
	require.Equal(t, Money(12), q.Price(false))
}

func TestCompute(t *testing.T) {
	sum := Compute([]Money{10, 25, -3})
	require.Equal(t, 2, sum.Items)
	require.Equal(t, Money(35), sum.Total)
}
