package feed

import (
	"github.com/mento-protocol/oracle-v2-playground/internal/fixed"
	"github.com/mento-protocol/oracle-v2-playground/internal/report"
)

// Aggregate reduces one round's decoded observations to its representative
// value. The round is rejected when it misses the feed's quorum, when too few
// values are flagged certain, or when the raw spread between the smallest and
// largest value exceeds the allowed deviation. The representative value is
// the median of all magnitudes, certain or not; for even counts the lower
// middle is taken.
func Aggregate(cfg Config, observations []report.Observation) (fixed.Value, error) {
	if len(observations) < cfg.Quorum || len(observations) == 0 {
		return fixed.Value{}, &QuorumNotReachedError{Observed: len(observations), Required: cfg.Quorum}
	}

	certain := 0
	min := observations[0].Value
	max := observations[0].Value
	for _, obs := range observations {
		if obs.Certain {
			certain++
		}
		if obs.Value.Cmp(min) < 0 {
			min = obs.Value
		}
		if obs.Value.Cmp(max) > 0 {
			max = obs.Value
		}
	}

	if certain < cfg.CertaintyThreshold {
		return fixed.Value{}, &CertaintyThresholdError{Certain: certain, Required: cfg.CertaintyThreshold}
	}

	if max.Raw()-min.Raw() > cfg.AllowedDeviation {
		return fixed.Value{}, &DeviationError{Min: min, Max: max, Allowed: cfg.AllowedDeviation}
	}

	raws := make([]uint64, len(observations))
	for i, obs := range observations {
		raws[i] = obs.Value.Raw()
	}
	return fixed.Wrap(selectOrderStatistic(raws, (len(raws)-1)/2)), nil
}

// selectOrderStatistic returns the k-th smallest element of a, reordering a
// in place. Quickselect with a median-of-three pivot; no full sort.
func selectOrderStatistic(a []uint64, k int) uint64 {
	lo, hi := 0, len(a)-1
	for lo < hi {
		p := partition(a, lo, hi)
		switch {
		case p == k:
			return a[p]
		case p < k:
			lo = p + 1
		default:
			hi = p - 1
		}
	}
	return a[k]
}

func partition(a []uint64, lo, hi int) int {
	mid := lo + (hi-lo)/2
	if a[mid] < a[lo] {
		a[mid], a[lo] = a[lo], a[mid]
	}
	if a[hi] < a[lo] {
		a[hi], a[lo] = a[lo], a[hi]
	}
	if a[mid] < a[hi] {
		a[mid], a[hi] = a[hi], a[mid]
	}

	pivot := a[hi]
	i := lo
	for j := lo; j < hi; j++ {
		if a[j] < pivot {
			a[i], a[j] = a[j], a[i]
			i++
		}
	}
	a[i], a[hi] = a[hi], a[i]
	return i
}
