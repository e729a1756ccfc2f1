package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/mento-protocol/oracle-v2-playground/internal/fixed"
	"github.com/mento-protocol/oracle-v2-playground/internal/report"
	"github.com/mento-protocol/oracle-v2-playground/internal/service"
)

// Simulate drives synthetic rounds through an in-memory service, one round
// per given value, every provider reporting that value with certainty. Useful
// for checking a feed's configuration before going live.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if len(opts.Values) == 0 {
		return errors.New("at least one --value must be provided")
	}

	feeds, providers, err := a.buildRegistries()
	if err != nil {
		return err
	}
	state, ok := feeds.Get(opts.FeedID)
	if !ok {
		return fmt.Errorf("feed %s is not declared in configuration", opts.FeedID)
	}

	reporters := providers.List(opts.FeedID)
	if len(reporters) == 0 {
		return fmt.Errorf("feed %s has no configured providers", opts.FeedID)
	}

	svc := service.New(feeds, providers, service.Options{}, a.Logger)

	cfg := state.Config()
	step := time.Duration(cfg.AllowedStaleness+1) * time.Second
	timestamp := time.Now().UTC().Add(-time.Duration(len(opts.Values)) * step)

	for _, rawValue := range opts.Values {
		d, err := decimal.NewFromString(rawValue)
		if err != nil {
			return fmt.Errorf("invalid --value %q: %w", rawValue, err)
		}
		value, err := fixed.FromDecimal(d)
		if err != nil {
			return fmt.Errorf("invalid --value %q: %w", rawValue, err)
		}

		certaintyBit := new(uint256.Int).Lsh(uint256.NewInt(1), 255)
		encoded := new(uint256.Int).Or(certaintyBit, uint256.NewInt(value.Raw()))

		reports := make([]report.Report, len(reporters))
		for i, addr := range reporters {
			reports[i] = report.Report{
				Provider:        addr,
				Raw:             encoded,
				TimestampMillis: timestamp.UnixMilli(),
			}
		}

		snap, err := svc.SubmitRound(ctx, opts.FeedID, reports)
		if err != nil {
			return fmt.Errorf("round with value %s rejected: %w", rawValue, err)
		}

		fmt.Fprintf(os.Stdout, "round %s -> window average %s (flags %03b)\n",
			rawValue, snap.WindowAverage, snap.Flags.Bitmask())

		timestamp = timestamp.Add(step)
	}

	return nil
}
