// Package service wires the rate feed engine to its collaborators: provider
// authorization, round persistence, the staleness sweep, and alert delivery.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/mento-protocol/oracle-v2-playground/internal/alerting"
	"github.com/mento-protocol/oracle-v2-playground/internal/feed"
	"github.com/mento-protocol/oracle-v2-playground/internal/fixed"
	"github.com/mento-protocol/oracle-v2-playground/internal/provider"
	"github.com/mento-protocol/oracle-v2-playground/internal/report"
	"github.com/mento-protocol/oracle-v2-playground/internal/storage"
)

// legacyDenominator is the fixed denominator expected by legacy readers.
var legacyDenominator = uint256.MustFromDecimal("1000000000000000000000000")

// Clock supplies the current time; injectable for tests.
type Clock func() time.Time

// Options configure optional service collaborators.
type Options struct {
	Rounds   storage.RoundStore
	Notifier alerting.Notifier
	Channels []string
	AlertsOn bool
	Clock    Clock
}

// Service orchestrates round submission, feed queries, and the staleness
// sweep across all registered feeds.
type Service struct {
	feeds     *feed.Registry
	providers *provider.Registry
	rounds    storage.RoundStore
	notifier  alerting.Notifier
	channels  []string
	alertsOn  bool
	now       Clock
	logger    zerolog.Logger

	submitMu sync.Mutex
	submits  map[string]*sync.Mutex
}

// New constructs the service.
func New(feeds *feed.Registry, providers *provider.Registry, opts Options, logger zerolog.Logger) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		feeds:     feeds,
		providers: providers,
		rounds:    opts.Rounds,
		notifier:  opts.Notifier,
		channels:  opts.Channels,
		alertsOn:  opts.AlertsOn,
		now:       clock,
		logger:    logger.With().Str("component", "service").Logger(),
		submits:   make(map[string]*sync.Mutex),
	}
}

// SubmitRound runs one round through the full pipeline: provider
// authorization, decoding, freshness validation, aggregation, and buffer
// application. Any failure rejects the round with zero state mutation.
// Submissions are serialized per feed; distinct feeds proceed in parallel.
func (s *Service) SubmitRound(ctx context.Context, feedID string, reports []report.Report) (feed.Snapshot, error) {
	state, ok := s.feeds.Get(feedID)
	if !ok {
		return feed.Snapshot{}, fmt.Errorf("feed %s is not registered", feedID)
	}

	lock := s.submitLock(feedID)
	lock.Lock()
	defer lock.Unlock()

	batch, err := report.DecodeBatch(reports)
	if err != nil {
		return feed.Snapshot{}, err
	}

	if err := s.providers.Authorize(feedID, batch.Providers); err != nil {
		return feed.Snapshot{}, err
	}

	cfg := state.Config()
	nowSeconds := s.now().UTC().Unix()
	if err := feed.ValidateFreshness(batch.TimestampMillis, state.LatestTimestamp(), cfg.AllowedStaleness, nowSeconds); err != nil {
		return feed.Snapshot{}, err
	}

	value, err := feed.Aggregate(cfg, batch.Observations)
	if err != nil {
		return feed.Snapshot{}, err
	}

	flags := feed.Flags{Fresh: true, Certain: true, WithinDeviation: true}
	reportedSeconds := batch.TimestampMillis / 1000
	if err := state.ApplyRound(value, reportedSeconds, flags); err != nil {
		return feed.Snapshot{}, err
	}

	snap := state.Snapshot()
	s.persistRound(ctx, feedID, batch, value, snap)

	s.logger.Info().Str("feed", feedID).
		Int("providers", len(batch.Observations)).
		Str("value", value.String()).
		Str("window_average", snap.WindowAverage.String()).
		Msg("round accepted")

	return snap, nil
}

// Snapshot reads a feed's published state; unknown feeds yield zero defaults.
func (s *Service) Snapshot(feedID string) feed.Snapshot {
	return s.feeds.Snapshot(feedID)
}

// LegacyRate exposes the window average as a fraction over 10^24 for the
// legacy read interface. The conversion happens here at the boundary; the
// engine keeps its 8-digit representation.
func (s *Service) LegacyRate(feedID string) (numerator, denominator *uint256.Int) {
	snap := s.feeds.Snapshot(feedID)
	return snap.WindowAverage.ToExternal(), legacyDenominator.Clone()
}

// FeedIDs lists the registered feeds.
func (s *Service) FeedIDs() []string {
	return s.feeds.IDs()
}

// SetWindowSize adjusts a feed's averaging window and recomputes its stats.
func (s *Service) SetWindowSize(feedID string, size int) error {
	state, ok := s.feeds.Get(feedID)
	if !ok {
		return fmt.Errorf("feed %s is not registered", feedID)
	}
	return state.SetWindowSize(size)
}

// MarkStaleAll sweeps every feed, clearing the fresh flag where the allowed
// staleness has elapsed. Returns the feeds that flipped.
func (s *Service) MarkStaleAll(ctx context.Context) []string {
	nowSeconds := s.now().UTC().Unix()

	var flipped []string
	for _, id := range s.feeds.IDs() {
		state, ok := s.feeds.Get(id)
		if !ok {
			continue
		}
		if !state.MarkStale(nowSeconds) {
			continue
		}
		flipped = append(flipped, id)
		s.logger.Warn().Str("feed", id).Msg("feed marked stale")
		s.notifyStale(ctx, id, state.Snapshot())
	}
	return flipped
}

// RestoreFromStorage replays each feed's persisted rounds, oldest first, so
// the window stats survive a restart. Feeds with no history are left empty.
func (s *Service) RestoreFromStorage(ctx context.Context) error {
	if s.rounds == nil {
		return nil
	}

	for _, id := range s.feeds.IDs() {
		state, ok := s.feeds.Get(id)
		if !ok {
			continue
		}

		records, err := s.rounds.ListRecentRounds(ctx, id, feed.BufferCapacity)
		if err != nil {
			return fmt.Errorf("restore feed %s: %w", id, err)
		}
		if len(records) == 0 {
			continue
		}

		// records arrive newest first; replay oldest first
		values := make([]fixed.Value, 0, len(records))
		for i := len(records) - 1; i >= 0; i-- {
			v, err := fixed.FromDecimal(records[i].Value)
			if err != nil {
				return fmt.Errorf("restore feed %s: %w", id, err)
			}
			values = append(values, v)
		}

		latest := records[0].ReportedAt.UTC().Unix()
		if err := state.RestoreRounds(values, latest); err != nil {
			return fmt.Errorf("restore feed %s: %w", id, err)
		}

		s.logger.Info().Str("feed", id).Int("rounds", len(values)).Msg("feed history restored")
	}
	return nil
}

func (s *Service) persistRound(ctx context.Context, feedID string, batch report.Batch, value fixed.Value, snap feed.Snapshot) {
	if s.rounds == nil {
		return
	}

	certain := 0
	for _, obs := range batch.Observations {
		if obs.Certain {
			certain++
		}
	}

	record := storage.RoundRecord{
		FeedID:        feedID,
		ReportedAt:    time.UnixMilli(batch.TimestampMillis).UTC(),
		Value:         value.Decimal(),
		WindowAverage: snap.WindowAverage.Decimal(),
		ProviderCount: len(batch.Observations),
		CertainCount:  certain,
		Flags:         snap.Flags.Bitmask(),
	}
	if _, err := s.rounds.InsertRound(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("feed", feedID).Msg("failed to persist round")
	}
}

func (s *Service) notifyStale(ctx context.Context, feedID string, snap feed.Snapshot) {
	if !s.alertsOn || s.notifier == nil {
		return
	}

	note := alerting.Notification{
		FeedID:        feedID,
		Reason:        "allowed staleness elapsed without a new round",
		WindowAverage: snap.WindowAverage.Decimal(),
		FlagsBitmask:  snap.Flags.Bitmask(),
		LastRoundAt:   time.Unix(snap.LatestTimestamp, 0).UTC(),
		DetectedAt:    s.now().UTC(),
		Channels:      s.channels,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("feed", feedID).Msg("failed to dispatch alert")
	}
}

func (s *Service) submitLock(feedID string) *sync.Mutex {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	lock, ok := s.submits[feedID]
	if !ok {
		lock = &sync.Mutex{}
		s.submits[feedID] = lock
	}
	return lock
}
