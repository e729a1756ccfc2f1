package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/mento-protocol/oracle-v2-playground/internal/app"
)

var (
	simulateFeed   string
	simulateValues []string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay synthetic rounds through a feed's configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateFeed == "" {
			return errors.New("--feed is required")
		}

		opts := app.SimulateOptions{
			FeedID: simulateFeed,
			Values: simulateValues,
		}

		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateFeed, "feed", "", "Feed identifier, e.g. CELO/USD")
	simulateCmd.Flags().StringSliceVar(&simulateValues, "value", nil, "Decimal value to report, repeatable (one round each)")
}
