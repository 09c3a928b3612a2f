package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/klingon-exchange/dashsend/internal/config"
	"github.com/klingon-exchange/dashsend/pkg/helpers"
)

// Version of the node
const Version = "0.1.0-dev"

// ========================================
// Node handlers
// ========================================

// NodeInfoResult is the response for node_info.
type NodeInfoResult struct {
	Version          string `json:"version"`
	Chain            string `json:"chain"`
	Network          string `json:"network"`
	Uptime           string `json:"uptime"`
	DataDir          string `json:"data_dir"`
	Backend          string `json:"backend"`
	BackendURL       string `json:"backend_url"`
	BroadcastEnabled bool   `json:"broadcast_enabled"`
	WalletUnlocked   bool   `json:"wallet_unlocked"`
	FeeRate          uint64 `json:"fee_rate"`
	ChangeFloor      uint64 `json:"change_floor"`
	WSClients        int    `json:"ws_clients"`
}

func (s *Server) nodeInfo(ctx context.Context, params json.RawMessage) (interface{}, error) {
	cfg := s.node.Config()
	symbol := s.node.Params().Symbol

	result := &NodeInfoResult{
		Version:          Version,
		Chain:            symbol,
		Network:          string(cfg.Network),
		Uptime:           s.node.Uptime().Round(time.Second).String(),
		DataDir:          cfg.Storage.DataDir,
		BackendURL:       cfg.GetBackendURL(symbol),
		BroadcastEnabled: s.transfers.BroadcastAllowed(),
		WalletUnlocked:   s.node.Wallet().IsUnlocked(),
		WSClients:        s.events.Subscribers(),
	}

	if b, ok := s.node.Backends().Get(symbol); ok {
		result.Backend = string(b.Type())
	}
	if fees, err := cfg.FeeModel(); err == nil {
		result.FeeRate = fees.FeeRate
		result.ChangeFloor = fees.ChangeFloor()
	}

	return result, nil
}

// decodeURL returns the page where a raw transaction can be inspected.
func (s *Server) decodeURL() string {
	network := config.Mainnet
	if s.node.Config().IsTestnet() {
		network = config.Testnet
	}
	endpoints, _ := config.GetEndpoints(s.node.Params().Symbol, network)
	return endpoints.DecodeTxURL
}

// formatAmount renders smallest units in whole coins.
func (s *Server) formatAmount(amount uint64) string {
	return helpers.FormatAmount(amount, s.node.Params().Decimals)
}
