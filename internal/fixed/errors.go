package fixed

import (
	"fmt"

	"github.com/holiman/uint256"
)

// OverflowError reports checked arithmetic whose result exceeds the 64-bit
// raw range. A and B are the raw operands.
type OverflowError struct {
	Op string
	A  uint64
	B  uint64
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("fixed: %s overflow: %d, %d", e.Op, e.A, e.B)
}

// UnderflowError reports checked subtraction below zero. A and B are the raw
// operands.
type UnderflowError struct {
	Op string
	A  uint64
	B  uint64
}

func (e *UnderflowError) Error() string {
	return fmt.Sprintf("fixed: %s underflow: %d - %d", e.Op, e.A, e.B)
}

// DivisionByZeroError reports a zero divisor. Dividend is the raw magnitude
// that was being divided.
type DivisionByZeroError struct {
	Dividend uint64
}

func (e *DivisionByZeroError) Error() string {
	return fmt.Sprintf("fixed: division of %d by zero", e.Dividend)
}

// NarrowingError reports a wide magnitude that does not fit the 64-bit raw
// range.
type NarrowingError struct {
	Wide *uint256.Int
}

func (e *NarrowingError) Error() string {
	return fmt.Sprintf("fixed: magnitude %s does not fit in 64 bits", e.Wide.Dec())
}
