package feed

import (
	"errors"
	"testing"

	"github.com/mento-protocol/oracle-v2-playground/internal/fixed"
	"github.com/mento-protocol/oracle-v2-playground/internal/report"
)

func observations(raws []uint64, certain bool) []report.Observation {
	obs := make([]report.Observation, len(raws))
	for i, raw := range raws {
		obs[i] = report.Observation{Certain: certain, Value: fixed.Wrap(raw)}
	}
	return obs
}

func TestAggregateMedian(t *testing.T) {
	cfg := Config{WindowSize: 1, AllowedDeviation: 5, Quorum: 1, CertaintyThreshold: 3, AllowedStaleness: 60}

	got, err := Aggregate(cfg, observations([]uint64{10, 12, 11, 13, 12}, true))
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}
	if got.Raw() != 12 {
		t.Fatalf("median of 10,11,12,12,13 should be 12, got %d", got.Raw())
	}
}

func TestAggregateMedianEvenCount(t *testing.T) {
	cfg := Config{WindowSize: 1, AllowedDeviation: 100, Quorum: 1, AllowedStaleness: 60}

	// even counts take the lower middle
	got, err := Aggregate(cfg, observations([]uint64{40, 10, 30, 20}, false))
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}
	if got.Raw() != 20 {
		t.Fatalf("lower middle of 10,20,30,40 should be 20, got %d", got.Raw())
	}
}

func TestAggregateSingleValue(t *testing.T) {
	cfg := Config{WindowSize: 1, AllowedDeviation: 0, Quorum: 1, AllowedStaleness: 60}
	got, err := Aggregate(cfg, observations([]uint64{7}, false))
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}
	if got.Raw() != 7 {
		t.Fatalf("expected 7, got %d", got.Raw())
	}
}

func TestAggregateQuorumNotReached(t *testing.T) {
	cfg := Config{WindowSize: 1, AllowedDeviation: 100, Quorum: 3, AllowedStaleness: 60}

	_, err := Aggregate(cfg, observations([]uint64{10, 11}, true))
	var qe *QuorumNotReachedError
	if !errors.As(err, &qe) {
		t.Fatalf("expected QuorumNotReachedError, got %v", err)
	}
	if qe.Observed != 2 || qe.Required != 3 {
		t.Fatalf("quorum error should carry counts: %+v", qe)
	}
}

func TestAggregateEmptyBatch(t *testing.T) {
	cfg := Config{WindowSize: 1, AllowedDeviation: 100, AllowedStaleness: 60}
	var qe *QuorumNotReachedError
	if _, err := Aggregate(cfg, nil); !errors.As(err, &qe) {
		t.Fatalf("empty batch should fail quorum, got %v", err)
	}
}

func TestAggregateCertaintyThreshold(t *testing.T) {
	cfg := Config{WindowSize: 1, AllowedDeviation: 100, Quorum: 1, CertaintyThreshold: 3, AllowedStaleness: 60}

	obs := observations([]uint64{10, 11, 12}, false)
	obs[0].Certain = true
	obs[1].Certain = true

	_, err := Aggregate(cfg, obs)
	var ce *CertaintyThresholdError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CertaintyThresholdError, got %v", err)
	}
	if ce.Certain != 2 || ce.Required != 3 {
		t.Fatalf("certainty error should carry counts: %+v", ce)
	}
}

func TestAggregateDeviationTooLarge(t *testing.T) {
	cfg := Config{WindowSize: 1, AllowedDeviation: 5, Quorum: 1, AllowedStaleness: 60}

	// spread of 90 exceeds 5 even with every value certain
	_, err := Aggregate(cfg, observations([]uint64{10, 100}, true))
	var de *DeviationError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeviationError, got %v", err)
	}
	if de.Min.Raw() != 10 || de.Max.Raw() != 100 {
		t.Fatalf("deviation error should carry min/max: %+v", de)
	}
}

func TestSelectOrderStatistic(t *testing.T) {
	cases := []struct {
		in   []uint64
		k    int
		want uint64
	}{
		{[]uint64{5}, 0, 5},
		{[]uint64{9, 1}, 0, 1},
		{[]uint64{9, 1}, 1, 9},
		{[]uint64{3, 3, 3}, 1, 3},
		{[]uint64{7, 2, 9, 4, 1, 8, 3, 6, 5}, 4, 5},
		{[]uint64{1, 2, 3, 4, 5, 6, 7, 8}, 3, 4},
		{[]uint64{8, 7, 6, 5, 4, 3, 2, 1}, 3, 4},
	}
	for _, tc := range cases {
		in := append([]uint64(nil), tc.in...)
		if got := selectOrderStatistic(in, tc.k); got != tc.want {
			t.Fatalf("select k=%d of %v: expected %d, got %d", tc.k, tc.in, tc.want, got)
		}
	}
}
