package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/mento-protocol/oracle-v2-playground/internal/storage"
)

// Export renders a feed's round history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.FeedID == "" {
		return errors.New("--feed must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-30 * 24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	rounds, err := store.ListRoundsBetween(ctx, opts.FeedID, from, to)
	if err != nil {
		return err
	}
	if len(rounds) == 0 {
		a.Logger.Info().Str("feed", opts.FeedID).Msg("no rounds found for export window")
		return nil
	}

	downsampled := downsampleRounds(rounds, opts.MaxPoints)
	a.Logger.Info().Int("total", len(rounds)).Int("exported", len(downsampled)).Msg("exporting rounds")

	if opts.CSVPath != "" {
		if err := writeRoundsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRoundsPNG(opts.PNGPath, opts.FeedID, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRounds(rounds []storage.RoundRecord, max int) []storage.RoundRecord {
	if max <= 0 || len(rounds) <= max {
		return rounds
	}

	result := make([]storage.RoundRecord, 0, max)
	step := float64(len(rounds)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rounds) {
			idx = len(rounds) - 1
		}
		result = append(result, rounds[idx])
	}
	return result
}

func writeRoundsCSV(path string, rounds []storage.RoundRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"reported_at", "value", "window_average", "provider_count", "certain_count", "flags"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, round := range rounds {
		record := []string{
			round.ReportedAt.Format(time.RFC3339),
			round.Value.String(),
			round.WindowAverage.String(),
			strconv.Itoa(round.ProviderCount),
			strconv.Itoa(round.CertainCount),
			strconv.Itoa(int(round.Flags)),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeRoundsPNG(path, feedID string, rounds []storage.RoundRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(rounds))
	values := make([]float64, len(rounds))
	averages := make([]float64, len(rounds))

	for i, round := range rounds {
		x[i] = round.ReportedAt
		values[i] = round.Value.InexactFloat64()
		averages[i] = round.WindowAverage.InexactFloat64()
	}

	rateFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Rate (" + feedID + ")",
			ValueFormatter: rateFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Round value",
				XValues: x,
				YValues: values,
			},
			chart.TimeSeries{
				Name:    "Window average",
				XValues: x,
				YValues: averages,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
