package report

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mento-protocol/oracle-v2-playground/internal/fixed"
)

// ErrEmptyBatch is returned when a round carries no reports at all.
var ErrEmptyBatch = errors.New("report: empty batch")

// ValueOverflowError reports a raw magnitude whose low 255 bits do not fit
// the 64-bit fixed-point range.
type ValueOverflowError struct {
	Provider common.Address
	Raw      *uint256.Int
}

func (e *ValueOverflowError) Error() string {
	return fmt.Sprintf("report: value %s from %s exceeds the fixed-point range", e.Raw.Dec(), e.Provider.Hex())
}

// TimestampMismatchError reports a batch whose tuples disagree on the round
// timestamp.
type TimestampMismatchError struct {
	Provider common.Address
	Got      int64
	Want     int64
}

func (e *TimestampMismatchError) Error() string {
	return fmt.Sprintf("report: timestamp %d from %s does not match round timestamp %d", e.Got, e.Provider.Hex(), e.Want)
}

// Decode splits a raw 256-bit report word into its certainty flag and
// fixed-point magnitude.
func Decode(raw *uint256.Int) (Observation, error) {
	certain := raw[3]>>63 == 1

	magnitude := new(uint256.Int).Set(raw)
	magnitude[3] &^= 1 << 63

	value, err := fixed.WrapWide(magnitude)
	if err != nil {
		return Observation{}, &ValueOverflowError{Raw: raw.Clone()}
	}
	return Observation{Certain: certain, Value: value}, nil
}

// DecodeBatch decodes one round's reports. Every individual value must fit
// the fixed-point range, and all tuples must carry the same round timestamp.
func DecodeBatch(reports []Report) (Batch, error) {
	if len(reports) == 0 {
		return Batch{}, ErrEmptyBatch
	}

	batch := Batch{
		Observations:    make([]Observation, 0, len(reports)),
		Providers:       make([]common.Address, 0, len(reports)),
		TimestampMillis: reports[0].TimestampMillis,
	}

	for _, r := range reports {
		if r.TimestampMillis != batch.TimestampMillis {
			return Batch{}, &TimestampMismatchError{
				Provider: r.Provider,
				Got:      r.TimestampMillis,
				Want:     batch.TimestampMillis,
			}
		}

		obs, err := Decode(r.Raw)
		if err != nil {
			var oe *ValueOverflowError
			if errors.As(err, &oe) {
				oe.Provider = r.Provider
			}
			return Batch{}, err
		}

		batch.Observations = append(batch.Observations, obs)
		batch.Providers = append(batch.Providers, r.Provider)
	}

	return batch, nil
}
