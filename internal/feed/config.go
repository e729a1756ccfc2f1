// Package feed implements the rate feed engine: report aggregation with
// quorum, certainty and deviation validation, freshness checks, and the
// cyclic history buffer with its rolling window average.
package feed

import "fmt"

// BufferCapacity is the fixed number of historical round values kept per feed.
const BufferCapacity = 100

// Config holds the per-feed validation and averaging tunables.
type Config struct {
	// WindowSize is the number of most recent rounds averaged into the
	// published value, 1..BufferCapacity.
	WindowSize int
	// AllowedDeviation bounds the raw magnitude spread between the smallest
	// and largest reported value of a round.
	AllowedDeviation uint64
	// Quorum is the minimum number of provider values per round.
	Quorum int
	// CertaintyThreshold is the minimum number of values flagged certain per
	// round.
	CertaintyThreshold int
	// AllowedStaleness is the bound, in seconds, after which the feed is
	// considered stale.
	AllowedStaleness int64
}

// Validate rejects configurations the engine cannot operate on. A zero window
// size is refused here so division by zero is unreachable during round
// application.
func (c Config) Validate() error {
	if c.WindowSize < 1 || c.WindowSize > BufferCapacity {
		return fmt.Errorf("window size %d out of range 1..%d", c.WindowSize, BufferCapacity)
	}
	if c.Quorum < 1 {
		return fmt.Errorf("quorum %d must be at least 1", c.Quorum)
	}
	if c.CertaintyThreshold < 0 {
		return fmt.Errorf("certainty threshold %d cannot be negative", c.CertaintyThreshold)
	}
	if c.AllowedStaleness <= 0 {
		return fmt.Errorf("allowed staleness %d must be positive", c.AllowedStaleness)
	}
	return nil
}
