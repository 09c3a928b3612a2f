package txbuilder

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrInsufficientFunds    = errors.New("txbuilder: insufficient funds")
	ErrNoOutputs            = errors.New("txbuilder: no outputs")
	ErrMultipleMemos        = errors.New("txbuilder: at most one memo output is allowed")
	ErrMemoTooLarge         = errors.New("txbuilder: memo too large")
	ErrInvalidOutput        = errors.New("txbuilder: invalid output")
	ErrInvalidCoin          = errors.New("txbuilder: invalid coin")
	ErrInvalidChangeAddress = errors.New("txbuilder: invalid change pubkey hash")
	ErrInvalidSelection     = errors.New("txbuilder: selection does not cover outputs and fee")
	ErrAmountOverflow       = errors.New("txbuilder: amount overflow")
)

// InsufficientFundsError reports how far the available coins fell short of
// the outputs plus the fee the full coin set would incur.
type InsufficientFundsError struct {
	Required  uint64
	Available uint64
}

// Shortfall returns Required - Available.
func (e *InsufficientFundsError) Shortfall() uint64 {
	if e.Available >= e.Required {
		return 0
	}
	return e.Required - e.Available
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("%v: need %d, have %d (short %d)",
		ErrInsufficientFunds, e.Required, e.Available, e.Shortfall())
}

// Is lets errors.Is match ErrInsufficientFunds.
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}
