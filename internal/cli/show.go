package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mento-protocol/oracle-v2-playground/internal/app"
)

var (
	showFeed  string
	showLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent rounds for a feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showFeed == "" {
			return fmt.Errorf("--feed is required")
		}
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			FeedID: showFeed,
			Limit:  showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showFeed, "feed", "", "Feed identifier, e.g. CELO/USD")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rounds to display")
}
