package feed

import (
	"fmt"

	"github.com/mento-protocol/oracle-v2-playground/internal/fixed"
)

// QuorumNotReachedError rejects a round with fewer provider values than the
// feed's quorum.
type QuorumNotReachedError struct {
	Observed int
	Required int
}

func (e *QuorumNotReachedError) Error() string {
	return fmt.Sprintf("feed: quorum not reached: %d of %d required values", e.Observed, e.Required)
}

// CertaintyThresholdError rejects a round with too few values flagged certain.
type CertaintyThresholdError struct {
	Certain  int
	Required int
}

func (e *CertaintyThresholdError) Error() string {
	return fmt.Sprintf("feed: certainty threshold not reached: %d of %d required certain values", e.Certain, e.Required)
}

// DeviationError rejects a round whose min/max spread exceeds the allowed
// deviation.
type DeviationError struct {
	Min     fixed.Value
	Max     fixed.Value
	Allowed uint64
}

func (e *DeviationError) Error() string {
	return fmt.Sprintf("feed: deviation too large: spread %d between %s and %s exceeds %d",
		e.Max.Raw()-e.Min.Raw(), e.Min, e.Max, e.Allowed)
}

// NotFreshError rejects a round that is not strictly newer than the
// staleness-extended previous round.
type NotFreshError struct {
	ReportedMillis   int64
	PreviousSeconds  int64
	AllowedStaleness int64
}

func (e *NotFreshError) Error() string {
	return fmt.Sprintf("feed: round at %dms is not newer than previous round at %ds plus %ds staleness",
		e.ReportedMillis, e.PreviousSeconds, e.AllowedStaleness)
}

// TimestampFromFutureError rejects a round reported ahead of the current
// clock.
type TimestampFromFutureError struct {
	ReportedMillis int64
	NowSeconds     int64
}

func (e *TimestampFromFutureError) Error() string {
	return fmt.Sprintf("feed: round timestamp %dms is ahead of current time %ds", e.ReportedMillis, e.NowSeconds)
}
