package txbuilder

import "fmt"

// Assembler turns a selection into an unsigned transaction, adding a change
// output when the surplus clears the fee model's change floor.
type Assembler struct {
	Fees    FeeModel
	Version int32
}

// NewAssembler returns an assembler stamping the given version.
func NewAssembler(fees FeeModel, version int32) *Assembler {
	if version == 0 {
		version = DefaultVersion
	}
	return &Assembler{Fees: fees, Version: version}
}

// Assemble orders outputs as payments, then the memo, then change. A surplus
// below the change floor is absorbed into the fee; otherwise change of
// surplus minus one output's cost goes back to changePubKeyHash.
func (a *Assembler) Assemble(sel *Selection, outputs []Output, changePubKeyHash []byte) (*UnsignedTx, error) {
	if sel == nil {
		return nil, ErrInvalidSelection
	}
	if err := ValidateOutputs(outputs); err != nil {
		return nil, err
	}

	inputTotal, err := Total(sel.Inputs)
	if err != nil {
		return nil, err
	}
	outputTotal, err := Total(outputs)
	if err != nil {
		return nil, err
	}
	spend, err := addAmount(outputTotal, sel.Fee)
	if err != nil {
		return nil, err
	}
	if inputTotal < spend {
		return nil, fmt.Errorf("%w: inputs %d, outputs %d, fee %d",
			ErrInvalidSelection, inputTotal, outputTotal, sel.Fee)
	}

	ordered := make([]Output, 0, len(outputs)+1)
	var memo *Output
	for i := range outputs {
		if outputs[i].IsMemo() {
			memo = &outputs[i]
			continue
		}
		ordered = append(ordered, outputs[i])
	}
	if memo != nil {
		ordered = append(ordered, *memo)
	}

	surplus := inputTotal - spend
	decision := ChangeDecision{
		Surplus: surplus,
		Floor:   a.Fees.ChangeFloor(),
	}

	tx := &UnsignedTx{
		Version:     a.Version,
		LockTime:    LockTime,
		ChangeIndex: -1,
	}

	if surplus < decision.Floor {
		decision.Absorbed = true
		tx.Fee = sel.Fee + surplus
	} else {
		if len(changePubKeyHash) != 20 {
			return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidChangeAddress, len(changePubKeyHash))
		}
		outputCost := a.Fees.OutputCost()
		decision.Change = surplus - outputCost
		tx.Fee = sel.Fee + outputCost
		tx.ChangeIndex = len(ordered)
		ordered = append(ordered, Output{
			PubKeyHash: append([]byte(nil), changePubKeyHash...),
			Amount:     decision.Change,
		})
	}

	tx.Inputs = append([]Coin(nil), sel.Inputs...)
	tx.Outputs = ordered
	tx.Decision = decision

	return tx, nil
}
