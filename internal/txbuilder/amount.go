package txbuilder

import (
	"math/big"
	"math/bits"
)

// Valued is anything that carries an amount in smallest units.
type Valued interface {
	Value() uint64
}

// Sum adds up the amounts of items exactly. It never fails; an empty slice
// sums to zero.
func Sum[T Valued](items []T) *big.Int {
	total := new(big.Int)
	v := new(big.Int)
	for _, item := range items {
		total.Add(total, v.SetUint64(item.Value()))
	}
	return total
}

// Total is Sum narrowed to uint64, failing with ErrAmountOverflow when the
// exact total does not fit.
func Total[T Valued](items []T) (uint64, error) {
	sum := Sum(items)
	if !sum.IsUint64() {
		return 0, ErrAmountOverflow
	}
	return sum.Uint64(), nil
}

// addAmount adds two amounts, failing instead of wrapping.
func addAmount(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrAmountOverflow
	}
	return sum, nil
}
