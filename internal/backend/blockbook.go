package backend

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"

	"github.com/klingon-exchange/dashsend/internal/chain"
	"github.com/klingon-exchange/dashsend/pkg/helpers"
)

// BlockbookBackend implements Backend using Trezor's Blockbook API.
// API docs: https://github.com/trezor/blockbook/blob/master/docs/api.md
type BlockbookBackend struct {
	*client
	params *chain.Params
}

// NewBlockbookBackend creates a new Blockbook backend.
// baseURL should be like "https://doge1.trezor.io/api/v2"
func NewBlockbookBackend(baseURL string, params *chain.Params, timeout time.Duration) *BlockbookBackend {
	return &BlockbookBackend{
		client: newClient(baseURL, timeout),
		params: params,
	}
}

// Type returns TypeBlockbook.
func (b *BlockbookBackend) Type() Type {
	return TypeBlockbook
}

// Connect tests the connection to the API.
func (b *BlockbookBackend) Connect(ctx context.Context) error {
	return b.ping(ctx, "")
}

// Close closes the connection.
func (b *BlockbookBackend) Close() error {
	b.close()
	return nil
}

// IsConnected returns true if connected.
func (b *BlockbookBackend) IsConnected() bool {
	return b.isConnected()
}

// GetAddressUTXOs returns unspent outputs for an address. Blockbook does not
// report locking scripts, so the script is rebuilt from the queried address.
func (b *BlockbookBackend) GetAddressUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	path := "/utxo/" + url.PathEscape(address)

	var result []struct {
		TxID          string `json:"txid"`
		Vout          uint32 `json:"vout"`
		Value         string `json:"value"`
		Confirmations int64  `json:"confirmations"`
	}

	payload, err := b.get(ctx, "utxo lookup", path, &result)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, &LookupError{
			Op:      "utxo lookup",
			URL:     b.baseURL + path,
			Status:  200,
			Payload: payload,
			Err:     fmt.Errorf("%w: expected a list", ErrMalformedResponse),
		}
	}

	malformed := func(format string, args ...interface{}) error {
		return &LookupError{
			Op:      "utxo lookup",
			URL:     b.baseURL + path,
			Status:  200,
			Payload: payload,
			Err:     fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...)),
		}
	}

	script, err := b.lockingScript(address)
	if err != nil {
		return nil, malformed("address %q: %v", address, err)
	}

	utxos := make([]UTXO, len(result))
	for i, u := range result {
		if !helpers.IsTxID(u.TxID) {
			return nil, malformed("entry %d: bad txid %q", i, u.TxID)
		}
		amount, err := strconv.ParseUint(u.Value, 10, 64)
		if err != nil {
			return nil, malformed("entry %d: bad value %q", i, u.Value)
		}
		utxos[i] = UTXO{
			TxID:          u.TxID,
			Vout:          u.Vout,
			Address:       address,
			ScriptPubKey:  script,
			Amount:        amount,
			Confirmations: u.Confirmations,
		}
	}

	return utxos, nil
}

func (b *BlockbookBackend) lockingScript(address string) (string, error) {
	addr, err := btcutil.DecodeAddress(address, b.params.ChainCfg())
	if err != nil {
		return "", err
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(script), nil
}

// BroadcastTransaction broadcasts a raw transaction.
func (b *BlockbookBackend) BroadcastTransaction(ctx context.Context, rawTxHex string) (string, error) {
	// Blockbook uses GET with hex in URL for broadcast
	var result struct {
		Result string `json:"result"`
	}

	payload, err := b.get(ctx, "broadcast", "/sendtx/"+rawTxHex, &result)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBroadcastFailed, err)
	}
	if result.Result == "" {
		return "", fmt.Errorf("%w: no txid in response %q", ErrBroadcastFailed, payload)
	}

	return result.Result, nil
}

// Ensure BlockbookBackend implements Backend
var _ Backend = (*BlockbookBackend)(nil)
