package txbuilder

import "math/bits"

// FeeModel prices a transaction from its shape alone.
type FeeModel interface {
	// Fee returns the fee for a transaction with the given input and
	// output counts. It must not decrease as either count grows.
	Fee(inputs, outputs int) uint64

	// OutputCost is the fee share of one standard output.
	OutputCost() uint64

	// ChangeFloor is the smallest surplus worth returning as change.
	ChangeFloor() uint64
}

// LinearFee is additive in input and output counts:
// fee = (BaseSize + inputs*InputSize + outputs*OutputSize) * FeeRate.
type LinearFee struct {
	FeeRate    uint64
	BaseSize   uint64
	InputSize  uint64
	OutputSize uint64
	DustLimit  uint64
}

// Fee implements FeeModel.
func (f LinearFee) Fee(inputs, outputs int) uint64 {
	return satMul(f.Size(inputs, outputs), f.FeeRate)
}

// OutputCost implements FeeModel.
func (f LinearFee) OutputCost() uint64 {
	return satMul(f.OutputSize, f.FeeRate)
}

// ChangeFloor implements FeeModel: standardOutputSize*feeRate + dustLimit.
func (f LinearFee) ChangeFloor() uint64 {
	return satAdd(f.OutputCost(), f.DustLimit)
}

// Size returns the estimated byte size for the given shape.
func (f LinearFee) Size(inputs, outputs int) uint64 {
	if inputs < 0 {
		inputs = 0
	}
	if outputs < 0 {
		outputs = 0
	}
	return satAdd(f.BaseSize, satAdd(satMul(uint64(inputs), f.InputSize), satMul(uint64(outputs), f.OutputSize)))
}

// satAdd and satMul clamp at MaxUint64 rather than wrapping around.
func satAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return ^uint64(0)
	}
	return sum
}

func satMul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return ^uint64(0)
	}
	return lo
}

var _ FeeModel = LinearFee{}
