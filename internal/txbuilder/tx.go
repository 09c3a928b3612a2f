// Package txbuilder selects coins and assembles unsigned pay-to-pubkey-hash
// transactions. Amounts are integers in the coin's smallest unit throughout.
package txbuilder

import (
	"fmt"
	"math"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// LockTime is fixed; transactions are never time-locked.
const LockTime uint32 = 0

// DefaultVersion is used when the caller does not supply one.
const DefaultVersion int32 = 3

// MaxMemoSize is the largest OP_RETURN payload relayed as standard.
const MaxMemoSize = txscript.MaxDataCarrierSize

// Coin is a spendable output observed at the coin source. Coins are never
// modified once fetched.
type Coin struct {
	TxID    string // hex, display (reversed) byte order
	Vout    uint32
	Address string
	Script  []byte // locking script
	Amount  uint64
}

// Value implements Valued.
func (c Coin) Value() uint64 { return c.Amount }

// OutPoint returns the wire outpoint this coin refers to.
func (c Coin) OutPoint() (*wire.OutPoint, error) {
	hash, err := chainhash.NewHashFromStr(c.TxID)
	if err != nil {
		return nil, fmt.Errorf("%w: txid %q: %v", ErrInvalidCoin, c.TxID, err)
	}
	return wire.NewOutPoint(hash, c.Vout), nil
}

// String identifies the coin as txid:vout.
func (c Coin) String() string {
	return fmt.Sprintf("%s:%d", c.TxID, c.Vout)
}

// Output is either a payment to a pubkey hash or a zero-value memo.
type Output struct {
	PubKeyHash []byte // 20 bytes for payments, nil for memos
	Memo       []byte // OP_RETURN payload, nil for payments
	Amount     uint64
}

// PaymentOutput builds a value-bearing P2PKH output.
func PaymentOutput(pubKeyHash []byte, amount uint64) (Output, error) {
	out := Output{PubKeyHash: pubKeyHash, Amount: amount}
	if err := out.validate(); err != nil {
		return Output{}, err
	}
	return out, nil
}

// MemoOutput builds a zero-value OP_RETURN output carrying the UTF-8 bytes of memo.
func MemoOutput(memo string) (Output, error) {
	out := Output{Memo: []byte(memo)}
	if err := out.validate(); err != nil {
		return Output{}, err
	}
	return out, nil
}

// IsMemo reports whether the output is a data output.
func (o Output) IsMemo() bool { return o.Memo != nil }

// Value implements Valued.
func (o Output) Value() uint64 { return o.Amount }

// Script returns the locking script for the output.
func (o Output) Script() ([]byte, error) {
	if o.IsMemo() {
		script, err := txscript.NullDataScript(o.Memo)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMemoTooLarge, err)
		}
		return script, nil
	}
	return PayToPubKeyHashScript(o.PubKeyHash)
}

func (o Output) validate() error {
	if o.IsMemo() {
		if o.PubKeyHash != nil {
			return fmt.Errorf("%w: memo output with a recipient", ErrInvalidOutput)
		}
		if o.Amount != 0 {
			return fmt.Errorf("%w: memo output must carry zero value", ErrInvalidOutput)
		}
		if len(o.Memo) > MaxMemoSize {
			return fmt.Errorf("%w: %d bytes, limit %d", ErrMemoTooLarge, len(o.Memo), MaxMemoSize)
		}
		return nil
	}
	if len(o.PubKeyHash) != 20 {
		return fmt.Errorf("%w: pubkey hash must be 20 bytes, got %d", ErrInvalidOutput, len(o.PubKeyHash))
	}
	if o.Amount == 0 {
		return fmt.Errorf("%w: payment amount must be positive", ErrInvalidOutput)
	}
	return nil
}

// PayToPubKeyHashScript returns OP_DUP OP_HASH160 <pkh> OP_EQUALVERIFY OP_CHECKSIG.
func PayToPubKeyHashScript(pubKeyHash []byte) ([]byte, error) {
	if len(pubKeyHash) != 20 {
		return nil, fmt.Errorf("%w: pubkey hash must be 20 bytes, got %d", ErrInvalidOutput, len(pubKeyHash))
	}
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(pubKeyHash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// ChangeDecision records what the assembler did with the surplus.
type ChangeDecision struct {
	Surplus  uint64 // inputs - outputs - resolved fee
	Floor    uint64 // smallest surplus that earns a change output
	Change   uint64 // change output amount, 0 when absorbed
	Absorbed bool   // surplus went to the fee
}

// UnsignedTx is the assembled transaction handed to a signer. It is never
// mutated after assembly; signing produces a separate artifact.
type UnsignedTx struct {
	Version     int32
	Inputs      []Coin
	Outputs     []Output
	LockTime    uint32
	Fee         uint64 // effective fee actually paid
	ChangeIndex int    // index into Outputs, -1 without change
	Decision    ChangeDecision
}

// Change returns the change output, if any.
func (tx *UnsignedTx) Change() (Output, bool) {
	if tx.ChangeIndex < 0 || tx.ChangeIndex >= len(tx.Outputs) {
		return Output{}, false
	}
	return tx.Outputs[tx.ChangeIndex], true
}

// InputTotal is the exact sum of input amounts.
func (tx *UnsignedTx) InputTotal() *big.Int { return Sum(tx.Inputs) }

// OutputTotal is the exact sum of output amounts.
func (tx *UnsignedTx) OutputTotal() *big.Int { return Sum(tx.Outputs) }

// MsgTx converts the transaction into its wire form with empty signature
// scripts. Each call returns a fresh message.
func (tx *UnsignedTx) MsgTx() (*wire.MsgTx, error) {
	msg := wire.NewMsgTx(tx.Version)
	msg.LockTime = tx.LockTime

	for _, in := range tx.Inputs {
		op, err := in.OutPoint()
		if err != nil {
			return nil, err
		}
		msg.AddTxIn(wire.NewTxIn(op, nil, nil))
	}

	for i, out := range tx.Outputs {
		if out.Amount > math.MaxInt64 {
			return nil, fmt.Errorf("%w: output %d", ErrAmountOverflow, i)
		}
		script, err := out.Script()
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		msg.AddTxOut(wire.NewTxOut(int64(out.Amount), script))
	}

	return msg, nil
}
