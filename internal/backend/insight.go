package backend

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/klingon-exchange/dashsend/pkg/helpers"
)

// InsightBackend implements Backend using the Insight API served by Dash
// explorers, e.g. "https://insight.dash.org/insight-api".
type InsightBackend struct {
	*client

	// InstantSend submits through /tx/sendix instead of /tx/send.
	InstantSend bool
}

// NewInsightBackend creates a new Insight backend.
func NewInsightBackend(baseURL string, timeout time.Duration) *InsightBackend {
	return &InsightBackend{
		client:      newClient(baseURL, timeout),
		InstantSend: true,
	}
}

// Type returns TypeInsight.
func (b *InsightBackend) Type() Type {
	return TypeInsight
}

// Connect tests the connection to the API.
func (b *InsightBackend) Connect(ctx context.Context) error {
	return b.ping(ctx, "/status")
}

// Close closes the connection.
func (b *InsightBackend) Close() error {
	b.close()
	return nil
}

// IsConnected returns true if connected.
func (b *InsightBackend) IsConnected() bool {
	return b.isConnected()
}

// insightUTXO mirrors one element of GET /addr/{address}/utxo. Pointers
// tell a missing field apart from a zero value.
type insightUTXO struct {
	TxID          string  `json:"txid"`
	Vout          *int64  `json:"vout"`
	Address       string  `json:"address"`
	ScriptPubKey  *string `json:"scriptPubKey"`
	Satoshis      *int64  `json:"satoshis"`
	Confirmations int64   `json:"confirmations"`
}

// GetAddressUTXOs returns unspent outputs for an address.
func (b *InsightBackend) GetAddressUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	path := "/addr/" + url.PathEscape(address) + "/utxo"

	var result []insightUTXO
	payload, err := b.get(ctx, "utxo lookup", path, &result)
	if err != nil {
		return nil, err
	}
	if result == nil {
		// "null" decodes cleanly but is not a list; an empty address is "[]".
		return nil, &LookupError{
			Op:      "utxo lookup",
			URL:     b.baseURL + path,
			Status:  200,
			Payload: payload,
			Err:     fmt.Errorf("%w: expected a list", ErrMalformedResponse),
		}
	}

	utxos := make([]UTXO, 0, len(result))
	for i, u := range result {
		utxo, err := u.toUTXO(address)
		if err != nil {
			return nil, &LookupError{
				Op:      "utxo lookup",
				URL:     b.baseURL + path,
				Status:  200,
				Payload: payload,
				Err:     fmt.Errorf("%w: entry %d: %v", ErrMalformedResponse, i, err),
			}
		}
		utxos = append(utxos, utxo)
	}

	return utxos, nil
}

func (u insightUTXO) toUTXO(queried string) (UTXO, error) {
	if !helpers.IsTxID(u.TxID) {
		return UTXO{}, fmt.Errorf("bad txid %q", u.TxID)
	}
	if u.Vout == nil || *u.Vout < 0 || *u.Vout > int64(^uint32(0)) {
		return UTXO{}, fmt.Errorf("bad vout for %s", u.TxID)
	}
	if u.Satoshis == nil {
		return UTXO{}, fmt.Errorf("missing satoshis for %s:%d", u.TxID, *u.Vout)
	}
	if *u.Satoshis < 0 {
		return UTXO{}, fmt.Errorf("negative satoshis for %s:%d", u.TxID, *u.Vout)
	}
	if u.ScriptPubKey == nil {
		return UTXO{}, fmt.Errorf("missing scriptPubKey for %s:%d", u.TxID, *u.Vout)
	}
	if _, err := hex.DecodeString(*u.ScriptPubKey); err != nil {
		return UTXO{}, fmt.Errorf("scriptPubKey for %s:%d is not hex", u.TxID, *u.Vout)
	}

	address := u.Address
	if address == "" {
		address = queried
	}

	return UTXO{
		TxID:          u.TxID,
		Vout:          uint32(*u.Vout),
		Address:       address,
		ScriptPubKey:  *u.ScriptPubKey,
		Amount:        uint64(*u.Satoshis),
		Confirmations: u.Confirmations,
	}, nil
}

// BroadcastTransaction broadcasts a raw transaction.
func (b *InsightBackend) BroadcastTransaction(ctx context.Context, rawTxHex string) (string, error) {
	path := "/tx/send"
	if b.InstantSend {
		path = "/tx/sendix"
	}

	var result struct {
		TxID string `json:"txid"`
	}

	payload, err := b.post(ctx, "broadcast", path, map[string]string{"rawtx": rawTxHex}, &result)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBroadcastFailed, err)
	}
	if result.TxID == "" {
		return "", fmt.Errorf("%w: no txid in response %q", ErrBroadcastFailed, payload)
	}

	return result.TxID, nil
}

// Ensure InsightBackend implements Backend
var _ Backend = (*InsightBackend)(nil)
