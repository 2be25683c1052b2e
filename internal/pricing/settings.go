package pricing

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidSettings is returned when a markup setting is missing or negative.
var ErrInvalidSettings = errors.New("pricing: markup settings must be non-negative numbers")

// MarkupSettings drives the retail price formula.
type MarkupSettings struct {
	Flat            decimal.Decimal
	Percent         decimal.Decimal
	PublicSurcharge decimal.Decimal
	MinProfit       decimal.Decimal
}

// DefaultSettings returns the formula used when nothing valid is persisted.
func DefaultSettings() MarkupSettings {
	return MarkupSettings{
		Flat:            decimal.RequireFromString("1.50"),
		Percent:         decimal.RequireFromString("0.05"),
		PublicSurcharge: decimal.RequireFromString("2.00"),
		MinProfit:       decimal.RequireFromString("1.00"),
	}
}

// Validate reports whether every field is non-negative.
func (s MarkupSettings) Validate() error {
	for _, v := range []decimal.Decimal{s.Flat, s.Percent, s.PublicSurcharge, s.MinProfit} {
		if v.IsNegative() {
			return ErrInvalidSettings
		}
	}
	return nil
}

// OrDefault returns s when valid, otherwise the defaults.
func (s MarkupSettings) OrDefault() MarkupSettings {
	if s.Validate() != nil {
		return DefaultSettings()
	}
	return s
}

type settingsWire struct {
	Flat            decimal.NullDecimal `json:"flat"`
	Percent         decimal.NullDecimal `json:"percent"`
	PublicSurcharge decimal.NullDecimal `json:"publicSurcharge"`
	MinProfit       decimal.NullDecimal `json:"minProfit"`
}

// MarshalJSON writes the settings as plain JSON numbers.
func (s MarkupSettings) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]json.Number{
		"flat":            json.Number(s.Flat.String()),
		"percent":         json.Number(s.Percent.String()),
		"publicSurcharge": json.Number(s.PublicSurcharge.String()),
		"minProfit":       json.Number(s.MinProfit.String()),
	})
}

// UnmarshalJSON accepts numbers or numeric strings. Every field is required.
func (s *MarkupSettings) UnmarshalJSON(data []byte) error {
	var w settingsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Flat.Valid || !w.Percent.Valid || !w.PublicSurcharge.Valid || !w.MinProfit.Valid {
		return ErrInvalidSettings
	}
	out := MarkupSettings{
		Flat:            w.Flat.Decimal,
		Percent:         w.Percent.Decimal,
		PublicSurcharge: w.PublicSurcharge.Decimal,
		MinProfit:       w.MinProfit.Decimal,
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*s = out
	return nil
}

// Overrides maps a bundle id to an administrator-set retail price.
type Overrides map[string]decimal.Decimal

// ParseOverrides converts the persisted string map, ignoring unparsable or non-positive entries.
func ParseOverrides(raw map[string]string) Overrides {
	out := make(Overrides, len(raw))
	for id, val := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil || !d.IsPositive() {
			continue
		}
		out[id] = d
	}
	return out
}

// Encode returns the persisted form with two fractional digits per price.
func (o Overrides) Encode() map[string]string {
	out := make(map[string]string, len(o))
	for id, price := range o {
		out[id] = price.StringFixed(2)
	}
	return out
}

// Set stores price for id, rounded to two fractional digits. A price that is not positive
// after rounding clears the override instead; the return value reports whether one remains.
func (o Overrides) Set(id string, price decimal.Decimal) bool {
	price = price.Round(2)
	if !price.IsPositive() {
		delete(o, id)
		return false
	}
	o[id] = price
	return true
}

// IDs returns the overridden bundle ids in ascending order.
func (o Overrides) IDs() []string {
	ids := make([]string, 0, len(o))
	for id := range o {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
