package feed

import (
	"sync"

	"github.com/mento-protocol/oracle-v2-playground/internal/fixed"
)

// Flags are the three independent validity bits updated on every accepted
// round. Fresh may additionally be cleared by MarkStale.
type Flags struct {
	Fresh           bool
	Certain         bool
	WithinDeviation bool
}

// Bitmask packs the flags for external reporting: bit0 fresh, bit1 certain,
// bit2 within allowed deviation.
func (f Flags) Bitmask() uint8 {
	var mask uint8
	if f.Fresh {
		mask |= 1 << 0
	}
	if f.Certain {
		mask |= 1 << 1
	}
	if f.WithinDeviation {
		mask |= 1 << 2
	}
	return mask
}

// Snapshot is a consistent read of a feed's published state.
type Snapshot struct {
	WindowSum       fixed.Value
	WindowAverage   fixed.Value
	Flags           Flags
	LatestTimestamp int64
	Rounds          int
	Config          Config
}

// State owns one feed's cyclic history buffer, rolling window stats, latest
// round timestamp, and validity flags. Round application is serialized by the
// embedded mutex; reads take consistent snapshots.
type State struct {
	mu  sync.RWMutex
	cfg Config

	buffer     [BufferCapacity]uint64
	lastIndex  int
	bufferFull bool

	windowSum       fixed.Value
	windowAverage   fixed.Value
	latestTimestamp int64
	flags           Flags
}

// NewState builds the state for a freshly registered feed.
func NewState(cfg Config) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &State{cfg: cfg, lastIndex: -1}, nil
}

// Config returns the feed's current configuration.
func (s *State) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// LatestTimestamp returns the timestamp of the most recent accepted round in
// seconds, zero when no round has been applied.
func (s *State) LatestTimestamp() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestTimestamp
}

// Snapshot returns a consistent view of the published stats and flags.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		WindowSum:       s.windowSum,
		WindowAverage:   s.windowAverage,
		Flags:           s.flags,
		LatestTimestamp: s.latestTimestamp,
		Rounds:          s.liveLocked(),
		Config:          s.cfg,
	}
}

// ApplyRound inserts an accepted round value into the cyclic buffer, advances
// the window sum and average, and records the round timestamp and validity
// flags. The new window sum is computed before any field is touched, so a sum
// overflow rejects the round with zero partial mutation.
func (s *State) ApplyRound(value fixed.Value, timestampSeconds int64, flags Flags) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.liveLocked()
	window := s.cfg.WindowSize
	if window > live+1 {
		window = live + 1
	}

	sum := value
	if window > 1 {
		tail, err := s.windowTotalLocked(s.lastIndex, window-1)
		if err != nil {
			return err
		}
		sum, err = sum.Add(tail)
		if err != nil {
			return err
		}
	}
	average, err := sum.DivInt(uint64(window))
	if err != nil {
		return err
	}

	next := (s.lastIndex + 1) % BufferCapacity
	if s.lastIndex == BufferCapacity-1 {
		s.bufferFull = true
	}
	s.buffer[next] = value.Raw()
	s.lastIndex = next

	s.windowSum = sum
	s.windowAverage = average
	s.latestTimestamp = timestampSeconds
	s.flags = flags
	return nil
}

// MarkStale clears the fresh flag once the allowed staleness has elapsed with
// no new round. No other flag is touched. Reports whether the flag flipped.
func (s *State) MarkStale(nowSeconds int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.flags.Fresh {
		return false
	}
	if nowSeconds-s.latestTimestamp <= s.cfg.AllowedStaleness {
		return false
	}
	s.flags.Fresh = false
	return true
}

// SetWindowSize changes the averaging window and recomputes the rolling stats
// from the buffer's current contents. This is the one operation whose cost
// scales with the buffer size.
func (s *State) SetWindowSize(size int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	next.WindowSize = size
	if err := next.Validate(); err != nil {
		return err
	}
	s.cfg = next
	return s.recomputeWindowLocked()
}

// UpdateConfig swaps the feed's tunables, recomputing the rolling stats when
// the window size changed.
func (s *State) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := cfg.WindowSize != s.cfg.WindowSize
	s.cfg = cfg
	if changed {
		return s.recomputeWindowLocked()
	}
	return nil
}

// RestoreRounds replays persisted round values, oldest first, rebuilding the
// buffer and rolling stats. Flags stay at their zero (invalid) defaults until
// a live round is accepted.
func (s *State) RestoreRounds(values []fixed.Value, latestTimestamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range values {
		next := (s.lastIndex + 1) % BufferCapacity
		if s.lastIndex == BufferCapacity-1 {
			s.bufferFull = true
		}
		s.buffer[next] = v.Raw()
		s.lastIndex = next
	}
	s.latestTimestamp = latestTimestamp
	return s.recomputeWindowLocked()
}

// liveLocked counts the buffer's live entries.
func (s *State) liveLocked() int {
	if s.bufferFull {
		return BufferCapacity
	}
	return s.lastIndex + 1
}

// windowTotalLocked sums count entries walking backwards from newest,
// wrapping at the buffer boundary.
func (s *State) windowTotalLocked(newest, count int) (fixed.Value, error) {
	total := fixed.Wrap(0)
	idx := newest
	for i := 0; i < count; i++ {
		next, err := total.Add(fixed.Wrap(s.buffer[idx]))
		if err != nil {
			return fixed.Value{}, err
		}
		total = next
		idx--
		if idx < 0 {
			idx = BufferCapacity - 1
		}
	}
	return total, nil
}

func (s *State) recomputeWindowLocked() error {
	live := s.liveLocked()
	if live == 0 {
		s.windowSum = fixed.Wrap(0)
		s.windowAverage = fixed.Wrap(0)
		return nil
	}

	window := s.cfg.WindowSize
	if window > live {
		window = live
	}
	sum, err := s.windowTotalLocked(s.lastIndex, window)
	if err != nil {
		return err
	}
	average, err := sum.DivInt(uint64(window))
	if err != nil {
		return err
	}
	s.windowSum = sum
	s.windowAverage = average
	return nil
}
