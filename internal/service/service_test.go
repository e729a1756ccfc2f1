package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/mento-protocol/oracle-v2-playground/internal/alerting"
	"github.com/mento-protocol/oracle-v2-playground/internal/feed"
	"github.com/mento-protocol/oracle-v2-playground/internal/provider"
	"github.com/mento-protocol/oracle-v2-playground/internal/report"
	"github.com/mento-protocol/oracle-v2-playground/internal/storage"
)

const testFeed = "CELO/USD"

var (
	providerA = common.HexToAddress("0x0a")
	providerB = common.HexToAddress("0x0b")
	providerC = common.HexToAddress("0x0c")
)

type recordingStore struct {
	storage.RoundStore
	inserted []storage.RoundRecord
}

func (r *recordingStore) InsertRound(_ context.Context, round storage.RoundRecord) (int64, error) {
	r.inserted = append(r.inserted, round)
	return int64(len(r.inserted)), nil
}

func (r *recordingStore) ListRecentRounds(_ context.Context, _ string, _ int) ([]storage.RoundRecord, error) {
	out := make([]storage.RoundRecord, 0, len(r.inserted))
	for i := len(r.inserted) - 1; i >= 0; i-- {
		out = append(out, r.inserted[i])
	}
	return out, nil
}

type recordingNotifier struct {
	notes []alerting.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	r.notes = append(r.notes, note)
	return nil
}

func fixedClock(seconds int64) Clock {
	return func() time.Time { return time.Unix(seconds, 0).UTC() }
}

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()

	feeds := feed.NewRegistry()
	cfg := feed.Config{
		WindowSize:         2,
		AllowedDeviation:   10,
		Quorum:             2,
		CertaintyThreshold: 2,
		AllowedStaleness:   60,
	}
	if _, err := feeds.Register(testFeed, cfg); err != nil {
		t.Fatalf("register feed: %v", err)
	}

	providers := provider.NewRegistry()
	providers.Add(testFeed, providerA)
	providers.Add(testFeed, providerB)
	providers.Add(testFeed, providerC)

	return New(feeds, providers, opts, zerolog.Nop())
}

func signedReports(raws []uint64, timestampMillis int64) []report.Report {
	addrs := []common.Address{providerA, providerB, providerC}
	reports := make([]report.Report, len(raws))
	for i, raw := range raws {
		value := uint256.NewInt(raw)
		value.Or(value, new(uint256.Int).Lsh(uint256.NewInt(1), 255))
		reports[i] = report.Report{Provider: addrs[i%len(addrs)], Raw: value, TimestampMillis: timestampMillis}
	}
	return reports
}

func TestSubmitRoundAccepted(t *testing.T) {
	store := &recordingStore{}
	svc := newTestService(t, Options{Rounds: store, Clock: fixedClock(2000)})

	snap, err := svc.SubmitRound(context.Background(), testFeed, signedReports([]uint64{10, 12, 11}, 1500_000))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if snap.WindowAverage.Raw() != 11 {
		t.Fatalf("median 11 with window of one round should average 11, got %d", snap.WindowAverage.Raw())
	}
	if snap.Flags.Bitmask() != 7 {
		t.Fatalf("accepted round should set all flags, got %03b", snap.Flags.Bitmask())
	}
	if snap.LatestTimestamp != 1500 {
		t.Fatalf("latest timestamp should be 1500, got %d", snap.LatestTimestamp)
	}

	if len(store.inserted) != 1 {
		t.Fatalf("accepted round should be persisted once, got %d", len(store.inserted))
	}
	rec := store.inserted[0]
	if rec.FeedID != testFeed || rec.ProviderCount != 3 || rec.CertainCount != 3 {
		t.Fatalf("unexpected persisted record: %+v", rec)
	}
}

func TestSubmitRoundUnauthorizedProvider(t *testing.T) {
	svc := newTestService(t, Options{Clock: fixedClock(2000)})

	reports := signedReports([]uint64{10, 12}, 1500_000)
	reports[1].Provider = common.HexToAddress("0xff")

	_, err := svc.SubmitRound(context.Background(), testFeed, reports)
	var ue *provider.UnauthorizedError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}

	if snap := svc.Snapshot(testFeed); snap.Rounds != 0 {
		t.Fatal("rejected round must not mutate feed state")
	}
}

func TestSubmitRoundNotFresh(t *testing.T) {
	svc := newTestService(t, Options{Clock: fixedClock(5000)})

	if _, err := svc.SubmitRound(context.Background(), testFeed, signedReports([]uint64{10, 12}, 1500_000)); err != nil {
		t.Fatalf("first round should be accepted: %v", err)
	}

	// 1530s is within the 60s staleness bound of the accepted 1500s round
	_, err := svc.SubmitRound(context.Background(), testFeed, signedReports([]uint64{10, 12}, 1530_000))
	var nf *feed.NotFreshError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFreshError, got %v", err)
	}

	if snap := svc.Snapshot(testFeed); snap.Rounds != 1 {
		t.Fatal("rejected round must not be inserted")
	}
}

func TestSubmitRoundFromFuture(t *testing.T) {
	svc := newTestService(t, Options{Clock: fixedClock(1000)})

	_, err := svc.SubmitRound(context.Background(), testFeed, signedReports([]uint64{10, 12}, 1500_000))
	var fe *feed.TimestampFromFutureError
	if !errors.As(err, &fe) {
		t.Fatalf("expected TimestampFromFutureError, got %v", err)
	}
}

func TestSubmitRoundQuorum(t *testing.T) {
	svc := newTestService(t, Options{Clock: fixedClock(2000)})

	_, err := svc.SubmitRound(context.Background(), testFeed, signedReports([]uint64{10}, 1500_000))
	var qe *feed.QuorumNotReachedError
	if !errors.As(err, &qe) {
		t.Fatalf("expected QuorumNotReachedError, got %v", err)
	}
}

func TestSubmitRoundUnknownFeed(t *testing.T) {
	svc := newTestService(t, Options{Clock: fixedClock(2000)})
	if _, err := svc.SubmitRound(context.Background(), "BTC/USD", signedReports([]uint64{10, 12}, 1500_000)); err == nil {
		t.Fatal("unknown feed should reject submissions")
	}

	// the read path stays tolerant: zero defaults, no error
	if snap := svc.Snapshot("BTC/USD"); snap != (feed.Snapshot{}) {
		t.Fatalf("unknown feed should read as zero defaults, got %+v", snap)
	}
}

func TestLegacyRate(t *testing.T) {
	svc := newTestService(t, Options{Clock: fixedClock(2000)})

	if _, err := svc.SubmitRound(context.Background(), testFeed, signedReports([]uint64{200_000_000, 200_000_000}, 1500_000)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	num, den := svc.LegacyRate(testFeed)
	// 2.0 over 10^24: numerator 2 * 10^24
	wantNum := uint256.MustFromDecimal("2000000000000000000000000")
	wantDen := uint256.MustFromDecimal("1000000000000000000000000")
	if !num.Eq(wantNum) {
		t.Fatalf("legacy numerator expected %s, got %s", wantNum.Dec(), num.Dec())
	}
	if !den.Eq(wantDen) {
		t.Fatalf("legacy denominator expected %s, got %s", wantDen.Dec(), den.Dec())
	}
}

func TestMarkStaleAllNotifies(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := newTestService(t, Options{
		Notifier: notifier,
		AlertsOn: true,
		Channels: []string{"telegram"},
		Clock:    fixedClock(2000),
	})

	if _, err := svc.SubmitRound(context.Background(), testFeed, signedReports([]uint64{10, 12}, 1500_000)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// not enough time elapsed
	svc.now = fixedClock(1550)
	if flipped := svc.MarkStaleAll(context.Background()); len(flipped) != 0 {
		t.Fatalf("no feed should flip yet, got %v", flipped)
	}

	svc.now = fixedClock(1561)
	flipped := svc.MarkStaleAll(context.Background())
	if len(flipped) != 1 || flipped[0] != testFeed {
		t.Fatalf("expected %s to flip, got %v", testFeed, flipped)
	}
	if len(notifier.notes) != 1 || notifier.notes[0].FeedID != testFeed {
		t.Fatalf("expected one staleness alert, got %+v", notifier.notes)
	}

	if svc.Snapshot(testFeed).Flags.Fresh {
		t.Fatal("fresh flag should be cleared")
	}
}

func TestRestoreFromStorage(t *testing.T) {
	store := &recordingStore{}
	svc := newTestService(t, Options{Rounds: store, Clock: fixedClock(2000)})

	if _, err := svc.SubmitRound(context.Background(), testFeed, signedReports([]uint64{10, 12}, 1500_000)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := svc.SubmitRound(context.Background(), testFeed, signedReports([]uint64{14, 16}, 1600_000)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	restored := newTestService(t, Options{Rounds: store, Clock: fixedClock(2000)})
	if err := restored.RestoreFromStorage(context.Background()); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	snap := restored.Snapshot(testFeed)
	if snap.Rounds != 2 {
		t.Fatalf("expected 2 restored rounds, got %d", snap.Rounds)
	}
	if snap.LatestTimestamp != 1600 {
		t.Fatalf("restored timestamp should be 1600, got %d", snap.LatestTimestamp)
	}
	if snap.WindowAverage != svc.Snapshot(testFeed).WindowAverage {
		t.Fatal("restored window average should match the live one")
	}
	if snap.Flags != (feed.Flags{}) {
		t.Fatal("restored feed must stay invalid until a live round arrives")
	}
}
