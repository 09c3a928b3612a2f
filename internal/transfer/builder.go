// Package transfer builds, signs, journals, and optionally broadcasts
// single-recipient payments from one P2PKH address.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klingon-exchange/dashsend/internal/backend"
	"github.com/klingon-exchange/dashsend/internal/chain"
	"github.com/klingon-exchange/dashsend/internal/txbuilder"
	"github.com/klingon-exchange/dashsend/internal/wallet"
	"github.com/klingon-exchange/dashsend/pkg/helpers"
	"github.com/klingon-exchange/dashsend/pkg/logging"
)

// Boundary validation errors. Both are reported before any network access.
var (
	ErrInvalidAmount  = helpers.ErrInvalidAmount
	ErrInvalidAddress = wallet.ErrInvalidAddress
)

// CoinSource returns the unspent outputs controlled by an address.
type CoinSource interface {
	GetAddressUTXOs(ctx context.Context, address string) ([]backend.UTXO, error)
}

// Broadcaster submits a signed transaction and returns the identifier the
// network reports for it.
type Broadcaster interface {
	BroadcastTransaction(ctx context.Context, rawTxHex string) (string, error)
}

// Request describes one payment.
type Request struct {
	Sender    string // pays, and receives change
	Recipient string
	Amount    string // decimal, in whole coins
	Memo      string // optional, UTF-8
}

// BuilderConfig holds everything a Builder needs.
type BuilderConfig struct {
	Params *chain.Params
	Fees   txbuilder.FeeModel
	Source CoinSource

	// LookupTimeout bounds the coin fetch. Zero leaves the caller's
	// context alone.
	LookupTimeout time.Duration
}

// Builder turns a Request into an unsigned transaction.
type Builder struct {
	params        *chain.Params
	source        CoinSource
	selector      *txbuilder.Selector
	assembler     *txbuilder.Assembler
	lookupTimeout time.Duration
	log           *logging.Logger
}

// NewBuilder creates a builder.
func NewBuilder(cfg *BuilderConfig) (*Builder, error) {
	if cfg == nil || cfg.Params == nil {
		return nil, errors.New("chain params required")
	}
	if cfg.Fees == nil {
		return nil, errors.New("fee model required")
	}
	if cfg.Source == nil {
		return nil, errors.New("coin source required")
	}

	return &Builder{
		params:        cfg.Params,
		source:        cfg.Source,
		selector:      txbuilder.NewSelector(cfg.Fees),
		assembler:     txbuilder.NewAssembler(cfg.Fees, cfg.Params.TxVersion),
		lookupTimeout: cfg.LookupTimeout,
		log:           logging.GetDefault().Component("builder"),
	}, nil
}

// Params returns the chain the builder targets.
func (b *Builder) Params() *chain.Params {
	return b.params
}

// BuildTransaction validates the request, fetches the sender's coins once,
// selects inputs, and assembles the unsigned transaction. Change goes back
// to the sender.
func (b *Builder) BuildTransaction(ctx context.Context, req Request) (*txbuilder.UnsignedTx, error) {
	senderPKH, outputs, err := b.prepare(req)
	if err != nil {
		return nil, err
	}

	coins, err := b.fetchCoins(ctx, req.Sender)
	if err != nil {
		return nil, err
	}

	sel, err := b.selector.Select(coins, outputs)
	if err != nil {
		var insufficient *txbuilder.InsufficientFundsError
		if errors.As(err, &insufficient) {
			b.log.Warn("insufficient funds",
				"address", req.Sender,
				"required", insufficient.Required,
				"available", insufficient.Available,
				"shortfall", insufficient.Shortfall())
		}
		return nil, err
	}
	b.log.Debug("selection complete",
		"inputs", len(sel.Inputs),
		"fee", sel.Fee,
		"input_total", sel.InputTotal)

	tx, err := b.assembler.Assemble(sel, outputs, senderPKH)
	if err != nil {
		return nil, err
	}
	b.log.Debug("change decision",
		"surplus", tx.Decision.Surplus,
		"change_floor", tx.Decision.Floor,
		"change", tx.Decision.Change,
		"absorbed", tx.Decision.Absorbed)

	return tx, nil
}

// prepare checks everything that can be checked offline and returns the
// sender's pubkey hash and the payment outputs.
func (b *Builder) prepare(req Request) ([]byte, []txbuilder.Output, error) {
	senderPKH, err := wallet.DecodePubKeyHash(req.Sender, b.params)
	if err != nil {
		return nil, nil, fmt.Errorf("sender: %w", err)
	}
	recipientPKH, err := wallet.DecodePubKeyHash(req.Recipient, b.params)
	if err != nil {
		return nil, nil, fmt.Errorf("recipient: %w", err)
	}

	amount, err := helpers.ParseAmount(req.Amount, b.params.Decimals)
	if err != nil {
		return nil, nil, err
	}
	if amount == 0 {
		return nil, nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}

	payment, err := txbuilder.PaymentOutput(recipientPKH, amount)
	if err != nil {
		return nil, nil, err
	}
	outputs := []txbuilder.Output{payment}

	if req.Memo != "" {
		memo, err := txbuilder.MemoOutput(req.Memo)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, memo)
	}

	return senderPKH, outputs, nil
}

// fetchCoins makes the single coin-source round trip for a build.
func (b *Builder) fetchCoins(ctx context.Context, address string) ([]txbuilder.Coin, error) {
	if b.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.lookupTimeout)
		defer cancel()
	}

	utxos, err := b.source.GetAddressUTXOs(ctx, address)
	if err != nil {
		if !errors.Is(err, backend.ErrLookupFailed) {
			err = &backend.LookupError{Op: "fetch coins", URL: address, Err: err}
		}
		return nil, err
	}

	coins, err := CoinsFromUTXOs(utxos)
	if err != nil {
		return nil, err
	}

	total := txbuilder.Sum(coins)
	b.log.Debug("coins fetched", "address", address, "count", len(coins), "total", total.String())

	return coins, nil
}

// CoinsFromUTXOs converts explorer records into selector input. A record
// whose script is not hex is a malformed response.
func CoinsFromUTXOs(utxos []backend.UTXO) ([]txbuilder.Coin, error) {
	coins := make([]txbuilder.Coin, 0, len(utxos))
	for i, u := range utxos {
		script, err := helpers.HexToBytes(u.ScriptPubKey)
		if err != nil || len(script) == 0 {
			return nil, &backend.LookupError{
				Op:      "decode coins",
				URL:     fmt.Sprintf("utxo[%d]", i),
				Payload: []byte(u.ScriptPubKey),
				Err:     backend.ErrMalformedResponse,
			}
		}
		if !helpers.IsTxID(u.TxID) {
			return nil, &backend.LookupError{
				Op:      "decode coins",
				URL:     fmt.Sprintf("utxo[%d]", i),
				Payload: []byte(u.TxID),
				Err:     backend.ErrMalformedResponse,
			}
		}

		coins = append(coins, txbuilder.Coin{
			TxID:    u.TxID,
			Vout:    u.Vout,
			Address: u.Address,
			Script:  script,
			Amount:  u.Amount,
		})
	}
	return coins, nil
}
