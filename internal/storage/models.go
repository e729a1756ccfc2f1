package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoundRecord is one accepted aggregation round persisted for restore,
// inspection, and export.
type RoundRecord struct {
	ID            int64
	FeedID        string
	ReportedAt    time.Time
	Value         decimal.Decimal
	WindowAverage decimal.Decimal
	ProviderCount int
	CertainCount  int
	Flags         uint8
	CreatedAt     time.Time
}
