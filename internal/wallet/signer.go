package wallet

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/klingon-exchange/dashsend/internal/txbuilder"
)

// ErrSigningFailure wraps every error raised while signing.
var ErrSigningFailure = errors.New("signing failed")

// Keyring maps an input position to the key that unlocks it.
type Keyring map[int]*btcec.PrivateKey

// SingleKeyring assigns one key to each of n inputs.
func SingleKeyring(n int, key *btcec.PrivateKey) Keyring {
	keys := make(Keyring, n)
	for i := 0; i < n; i++ {
		keys[i] = key
	}
	return keys
}

// Signer turns an unsigned transaction into a signed one. The unsigned
// transaction is not modified.
type Signer interface {
	Sign(tx *txbuilder.UnsignedTx, keys Keyring) (*SignedTx, error)
}

// P2PKHSigner signs pay-to-pubkey-hash inputs with SIGHASH_ALL over
// compressed keys and runs every input through the script engine before
// returning.
type P2PKHSigner struct{}

var _ Signer = P2PKHSigner{}

// Sign implements Signer.
func (P2PKHSigner) Sign(tx *txbuilder.UnsignedTx, keys Keyring) (*SignedTx, error) {
	msg, err := tx.MsgTx()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailure, err)
	}

	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(tx.Inputs))
	for i, in := range tx.Inputs {
		if in.Amount > math.MaxInt64 {
			return nil, fmt.Errorf("%w: input %d amount overflows", ErrSigningFailure, i)
		}
		prevOuts[msg.TxIn[i].PreviousOutPoint] = wire.NewTxOut(int64(in.Amount), in.Script)
	}

	for i, in := range tx.Inputs {
		key, ok := keys[i]
		if !ok || key == nil {
			return nil, fmt.Errorf("%w: no key for input %d (%s)", ErrSigningFailure, i, in)
		}
		if err := signP2PKH(msg, i, key, in.Script); err != nil {
			return nil, fmt.Errorf("%w: input %d: %v", ErrSigningFailure, i, err)
		}
	}

	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(msg, fetcher)
	for i, in := range tx.Inputs {
		vm, err := txscript.NewEngine(in.Script, msg, i, txscript.StandardVerifyFlags,
			nil, sigHashes, int64(in.Amount), fetcher)
		if err != nil {
			return nil, fmt.Errorf("%w: input %d: %v", ErrSigningFailure, i, err)
		}
		if err := vm.Execute(); err != nil {
			return nil, fmt.Errorf("%w: input %d does not verify: %v", ErrSigningFailure, i, err)
		}
	}

	return &SignedTx{msg: msg, Unsigned: tx}, nil
}

// signP2PKH signs a P2PKH (legacy) input.
func signP2PKH(tx *wire.MsgTx, inputIndex int, privKey *btcec.PrivateKey, pkScript []byte) error {
	sig, err := txscript.SignatureScript(
		tx,
		inputIndex,
		pkScript,
		txscript.SigHashAll,
		privKey,
		true, // compressed
	)
	if err != nil {
		return err
	}

	tx.TxIn[inputIndex].SignatureScript = sig
	return nil
}

// SignedTx is the fully signed, serializable transaction.
type SignedTx struct {
	msg *wire.MsgTx

	// Unsigned is the transaction that was signed.
	Unsigned *txbuilder.UnsignedTx
}

// MsgTx returns a copy of the wire transaction.
func (s *SignedTx) MsgTx() *wire.MsgTx {
	return s.msg.Copy()
}

// Bytes returns the serialized transaction.
func (s *SignedTx) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(s.msg.SerializeSize())
	// Writing to a bytes.Buffer cannot fail.
	_ = s.msg.Serialize(&buf)
	return buf.Bytes()
}

// Hex returns the serialized transaction as hex, ready for broadcast.
func (s *SignedTx) Hex() string {
	return hex.EncodeToString(s.Bytes())
}

// TxID returns the transaction id in display byte order.
func (s *SignedTx) TxID() string {
	return s.msg.TxHash().String()
}

// Size returns the serialized size in bytes.
func (s *SignedTx) Size() int {
	return s.msg.SerializeSize()
}
