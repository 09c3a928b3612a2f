package rpc

import (
	"context"
	"encoding/json"

	"github.com/klingon-exchange/dashsend/internal/chain"
)

// ========================================
// Wallet handlers
// ========================================

// WalletAddressParams is the parameters for wallet_address. With no fields
// set the configured sender key is used.
type WalletAddressParams struct {
	Path    string  `json:"path,omitempty"`
	Account *uint32 `json:"account,omitempty"`
	Change  *uint32 `json:"change,omitempty"`
	Index   *uint32 `json:"index,omitempty"`
}

// WalletAddressResult is the response for wallet_address.
type WalletAddressResult struct {
	Address string `json:"address"`
	Path    string `json:"path"`
	Symbol  string `json:"symbol"`
	Network string `json:"network"`
}

func (s *Server) walletAddress(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p WalletAddressParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("invalid params: %v", err)
		}
	}

	path, err := s.addressPath(&p)
	if err != nil {
		return nil, err
	}

	chainParams := s.node.Params()

	if path == nil {
		sender, err := s.transfers.Sender()
		if err != nil {
			return nil, err
		}
		return &WalletAddressResult{
			Address: sender.Address,
			Path:    sender.PathString(),
			Symbol:  chainParams.Symbol,
			Network: string(chainParams.Network),
		}, nil
	}

	key, err := s.node.Wallet().KeyPair(chainParams.Symbol, path)
	if err != nil {
		return nil, err
	}
	return &WalletAddressResult{
		Address: key.Address,
		Path:    key.PathString(),
		Symbol:  chainParams.Symbol,
		Network: string(chainParams.Network),
	}, nil
}

// addressPath resolves the requested derivation path, or nil for the sender.
func (s *Server) addressPath(p *WalletAddressParams) ([]uint32, error) {
	if p.Path != "" {
		path, err := chain.ParseDerivationPath(p.Path)
		if err != nil {
			return nil, invalidParams("%v", err)
		}
		return path, nil
	}

	if p.Account == nil && p.Change == nil && p.Index == nil {
		return nil, nil
	}

	var account, change, index uint32
	if p.Account != nil {
		account = *p.Account
	}
	if p.Change != nil {
		change = *p.Change
	}
	if p.Index != nil {
		index = *p.Index
	}
	if account >= chain.HardenedKeyStart || change >= chain.HardenedKeyStart || index >= chain.HardenedKeyStart {
		return nil, invalidParams("derivation indexes must be below %d", chain.HardenedKeyStart)
	}

	return s.node.Params().DerivationPath(account, change, index), nil
}
