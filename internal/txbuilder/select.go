package txbuilder

import (
	"fmt"
	"sort"
)

// CoinOrdering decides the order in which candidate coins are tried.
type CoinOrdering interface {
	Arrange(coins []Coin) []Coin
}

// SmallestFirst tries coins in ascending amount order so that small coins
// are consolidated before large ones are broken. Ties keep source order.
type SmallestFirst struct{}

// Arrange implements CoinOrdering. The input slice is not modified.
func (SmallestFirst) Arrange(coins []Coin) []Coin {
	sorted := make([]Coin, len(coins))
	copy(sorted, coins)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount < sorted[j].Amount
	})
	return sorted
}

// Selection is the outcome of a successful coin selection.
type Selection struct {
	Inputs      []Coin // in selection order
	Fee         uint64 // fee for len(Inputs) inputs and the payment outputs
	InputTotal  uint64
	OutputTotal uint64
}

// Surplus is what is left once outputs and the resolved fee are paid.
func (s *Selection) Surplus() uint64 {
	return s.InputTotal - s.OutputTotal - s.Fee
}

// Selector accumulates coins until they cover the outputs plus the fee the
// selected inputs incur.
type Selector struct {
	Fees     FeeModel
	Ordering CoinOrdering
}

// NewSelector returns a smallest-first selector for the given fee model.
func NewSelector(fees FeeModel) *Selector {
	return &Selector{Fees: fees, Ordering: SmallestFirst{}}
}

// Select picks the shortest prefix of the ordered coins whose total covers
// the outputs plus the fee for that many inputs. The fee is re-priced each
// time one more input is considered, so selection is linear in coin count.
// When every coin together is not enough, the returned error is an
// *InsufficientFundsError.
func (s *Selector) Select(coins []Coin, outputs []Output) (*Selection, error) {
	if err := ValidateOutputs(outputs); err != nil {
		return nil, err
	}

	outputTotal, err := Total(outputs)
	if err != nil {
		return nil, err
	}

	ordering := s.Ordering
	if ordering == nil {
		ordering = SmallestFirst{}
	}

	var (
		selected []Coin
		total    uint64
	)
	required, err := addAmount(outputTotal, s.Fees.Fee(1, len(outputs)))
	if err != nil {
		return nil, err
	}

	for _, coin := range ordering.Arrange(coins) {
		fee := s.Fees.Fee(len(selected)+1, len(outputs))
		required, err = addAmount(outputTotal, fee)
		if err != nil {
			return nil, err
		}

		total, err = addAmount(total, coin.Amount)
		if err != nil {
			return nil, err
		}
		selected = append(selected, coin)

		if total >= required {
			return &Selection{
				Inputs:      selected,
				Fee:         fee,
				InputTotal:  total,
				OutputTotal: outputTotal,
			}, nil
		}
	}

	return nil, &InsufficientFundsError{Required: required, Available: total}
}

// ValidateOutputs checks every output and that at most one memo is present.
func ValidateOutputs(outputs []Output) error {
	if len(outputs) == 0 {
		return ErrNoOutputs
	}

	memos := 0
	for i, out := range outputs {
		if err := out.validate(); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
		if out.IsMemo() {
			memos++
		}
	}
	if memos > 1 {
		return ErrMultipleMemos
	}

	return nil
}
