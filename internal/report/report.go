// Package report decodes authenticated provider reports into certainty/value
// observations. A raw report is a 256-bit word: the most significant bit is
// the provider's certainty flag, the remaining 255 bits are the fixed-point
// magnitude.
package report

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mento-protocol/oracle-v2-playground/internal/fixed"
)

// Report is one provider's signed submission for a round, already verified by
// the authentication collaborator.
type Report struct {
	Provider        common.Address
	Raw             *uint256.Int
	TimestampMillis int64
}

// Observation is a decoded report value.
type Observation struct {
	Certain bool
	Value   fixed.Value
}

// Batch is the decoded form of one round's reports.
type Batch struct {
	Observations    []Observation
	Providers       []common.Address
	TimestampMillis int64
}
