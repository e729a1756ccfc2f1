package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints a feed's recent accepted rounds.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show rounds")
	}
	if closeStore != nil {
		defer closeStore()
	}

	rounds, err := store.ListRecentRounds(ctx, opts.FeedID, opts.Limit)
	if err != nil {
		return err
	}
	if len(rounds) == 0 {
		fmt.Fprintln(os.Stdout, "no rounds found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Reported (UTC)\tValue\tWindow Avg\tProviders\tCertain\tFlags")

	for _, round := range rounds {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%d\t%03b\n",
			round.ReportedAt.UTC().Format(time.RFC3339),
			round.Value.String(),
			round.WindowAverage.String(),
			round.ProviderCount,
			round.CertainCount,
			round.Flags,
		)
	}

	writer.Flush()
	return nil
}
