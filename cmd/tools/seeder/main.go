package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bundlehub/internal/app"
	"github.com/noah-isme/bundlehub/internal/config"
	"github.com/noah-isme/bundlehub/internal/obs"
	"github.com/noah-isme/bundlehub/internal/pricing"
	"github.com/noah-isme/bundlehub/internal/state"
)

type priceFlags []string

func (p *priceFlags) String() string     { return strings.Join(*p, ",") }
func (p *priceFlags) Set(v string) error { *p = append(*p, v); return nil }

// seeder writes the global markup formula and custom prices. Without flags it restores the
// default formula and leaves overrides untouched.
func main() {
	defaults := pricing.DefaultSettings()
	flat := flag.String("flat", defaults.Flat.String(), "flat profit per bundle")
	percent := flag.String("percent", defaults.Percent.String(), "profit as a fraction of cost")
	surcharge := flag.String("surcharge", defaults.PublicSurcharge.String(), "surcharge added for guests")
	minProfit := flag.String("min-profit", defaults.MinProfit.String(), "minimum profit per bundle")
	var prices priceFlags
	flag.Var(&prices, "price", "custom price as bundleId=amount, repeatable; amount 0 clears")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "seeder: %v\n", err)
		os.Exit(2)
	}
	logger := obs.NewLogger("console", cfg.Obs.LogLevel).With().Str("component", "seeder").Logger()

	if err := run(context.Background(), cfg, logger, [4]string{*flat, *percent, *surcharge, *minProfit}, prices); err != nil {
		logger.Error().Err(err).Msg("seeding failed")
		os.Exit(1)
	}
	logger.Info().Msg("seeding completed")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, formula [4]string, prices []string) error {
	values := make([]decimal.Decimal, len(formula))
	for i, raw := range formula {
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid markup value %q: %w", raw, err)
		}
		values[i] = d
	}
	settings := pricing.MarkupSettings{Flat: values[0], Percent: values[1], PublicSurcharge: values[2], MinProfit: values[3]}

	rdb, err := app.OpenRedis(ctx, cfg.RedisURL, false, logger)
	if err != nil {
		return err
	}
	defer rdb.Close()

	store := pricing.NewStore(state.NewStore(rdb, cfg.StatePrefix, cfg.ClientStateTTL).Global(), logger)
	if err := store.SaveSettings(ctx, settings); err != nil {
		return err
	}
	logger.Info().Interface("settings", settings).Msg("markup settings saved")

	for _, entry := range prices {
		id, amount, ok := strings.Cut(entry, "=")
		if !ok {
			return fmt.Errorf("invalid -price %q, want bundleId=amount", entry)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(amount))
		if err != nil {
			return fmt.Errorf("invalid price for bundle %s: %w", id, err)
		}
		kept, err := store.SetOverride(ctx, id, price)
		if err != nil {
			return err
		}
		logger.Info().Str("bundle_id", id).Bool("override", kept).Msg("custom price saved")
	}
	return nil
}
