// Package config provides centralized per-coin parameters for dashsend.
// Fee policy defaults, explorer endpoints and decoder links are defined here;
// the settings file only overrides them.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/btcsuite/btcwallet/wallet/txsizes"
)

// =============================================================================
// Network Types
// =============================================================================

// NetworkType represents mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// =============================================================================
// Coin Definitions
// =============================================================================

// Coin represents a supported cryptocurrency.
type Coin struct {
	Symbol    string // e.g., "DASH"
	Name      string // e.g., "Dash"
	Decimals  uint8  // Decimal places (8 for DASH)
	UnitName  string // Smallest unit name (duffs, koinu)
	MinAmount uint64 // Minimum payment in smallest unit
}

// SupportedCoins defines all supported cryptocurrencies.
var SupportedCoins = map[string]Coin{
	"DASH": {
		Symbol:    "DASH",
		Name:      "Dash",
		Decimals:  8,
		UnitName:  "duffs",
		MinAmount: 1,
	},
	"DOGE": {
		Symbol:    "DOGE",
		Name:      "Dogecoin",
		Decimals:  8,
		UnitName:  "koinu",
		MinAmount: 1,
	},
}

// =============================================================================
// Fee Policy
// =============================================================================

// FeePolicy holds the size and rate constants for the linear fee model
// fee = (BaseSize + inputs*InputSize + outputs*OutputSize) * FeeRate.
type FeePolicy struct {
	FeeRate    uint64 `yaml:"fee_rate"`    // smallest unit per byte
	BaseSize   uint64 `yaml:"base_size"`   // version, counts, locktime
	InputSize  uint64 `yaml:"input_size"`  // one signed P2PKH input
	OutputSize uint64 `yaml:"output_size"` // one P2PKH output
	DustLimit  uint64 `yaml:"dust_limit"`  // change below this plus its own cost is absorbed
}

// txOverheadSize is version(4) + input count(1) + output count(1) + locktime(4).
const txOverheadSize = 10

// DefaultFeePolicies contains the fee policy for each coin.
var DefaultFeePolicies = map[string]FeePolicy{
	"DASH": {
		FeeRate:    1, // 1 duff/byte, the relay minimum
		BaseSize:   txOverheadSize,
		InputSize:  txsizes.RedeemP2PKHInputSize,
		OutputSize: txsizes.P2PKHOutputSize,
		DustLimit:  2000,
	},
	"DOGE": {
		FeeRate:    1000, // 0.01 DOGE/kB
		BaseSize:   txOverheadSize,
		InputSize:  txsizes.RedeemP2PKHInputSize,
		OutputSize: txsizes.P2PKHOutputSize,
		DustLimit:  1000000, // 0.01 DOGE
	},
}

// GetFeePolicy returns the default fee policy for a coin.
func GetFeePolicy(symbol string) (FeePolicy, bool) {
	p, ok := DefaultFeePolicies[strings.ToUpper(symbol)]
	return p, ok
}

// Merge returns p with every non-zero field of override applied.
func (p FeePolicy) Merge(override FeePolicy) FeePolicy {
	if override.FeeRate != 0 {
		p.FeeRate = override.FeeRate
	}
	if override.BaseSize != 0 {
		p.BaseSize = override.BaseSize
	}
	if override.InputSize != 0 {
		p.InputSize = override.InputSize
	}
	if override.OutputSize != 0 {
		p.OutputSize = override.OutputSize
	}
	if override.DustLimit != 0 {
		p.DustLimit = override.DustLimit
	}
	return p
}

// Validate rejects policies that would make every transaction free or
// overflow fee arithmetic.
func (p FeePolicy) Validate() error {
	if p.FeeRate == 0 {
		return fmt.Errorf("fee rate must be positive")
	}
	if p.InputSize == 0 || p.OutputSize == 0 {
		return fmt.Errorf("input and output sizes must be positive")
	}
	const maxRate = 1 << 20
	const maxSize = 1 << 16
	if p.FeeRate > maxRate {
		return fmt.Errorf("fee rate %d exceeds maximum %d", p.FeeRate, maxRate)
	}
	if p.BaseSize > maxSize || p.InputSize > maxSize || p.OutputSize > maxSize {
		return fmt.Errorf("size constants must not exceed %d bytes", maxSize)
	}
	return nil
}

// =============================================================================
// Explorer Endpoints
// =============================================================================

// ChainEndpoints holds network-specific URLs for a coin.
type ChainEndpoints struct {
	ExplorerURL  string // Block explorer
	DecodeTxURL  string // Page where a raw hex transaction can be pasted and inspected
	InsightURL   string // Insight API base (DASH)
	BlockbookURL string // Blockbook API base (DOGE)
}

// MainnetEndpoints contains mainnet endpoints for each coin.
var MainnetEndpoints = map[string]ChainEndpoints{
	"DASH": {
		ExplorerURL: "https://insight.dash.org/insight",
		DecodeTxURL: "https://live.blockcypher.com/dash/decodetx/",
		InsightURL:  "https://insight.dash.org/insight-api",
	},
	"DOGE": {
		ExplorerURL:  "https://blockchair.com/dogecoin",
		DecodeTxURL:  "https://live.blockcypher.com/doge/decodetx/",
		BlockbookURL: "https://doge1.trezor.io/api/v2",
	},
}

// TestnetEndpoints contains testnet endpoints for each coin.
var TestnetEndpoints = map[string]ChainEndpoints{
	"DASH": {
		ExplorerURL: "https://insight.testnet.networks.dash.org/insight",
		DecodeTxURL: "https://live.blockcypher.com/dash/decodetx/",
		InsightURL:  "https://insight.testnet.networks.dash.org/insight-api",
	},
	"DOGE": {
		ExplorerURL:  "https://blockexplorer.one/dogecoin/testnet",
		DecodeTxURL:  "https://live.blockcypher.com/doge/decodetx/",
		BlockbookURL: "https://doge1.trezor.io/api/v2", // No public testnet
	},
}

// GetEndpoints returns the endpoints for a coin on a network.
func GetEndpoints(symbol string, network NetworkType) (ChainEndpoints, bool) {
	table := MainnetEndpoints
	if network == Testnet {
		table = TestnetEndpoints
	}
	e, ok := table[strings.ToUpper(symbol)]
	return e, ok
}

// =============================================================================
// Lookups
// =============================================================================

// GetCoin returns the coin configuration for a given symbol.
func GetCoin(symbol string) (Coin, bool) {
	coin, ok := SupportedCoins[strings.ToUpper(symbol)]
	return coin, ok
}

// IsCoinSupported returns true if the coin is supported.
func IsCoinSupported(symbol string) bool {
	_, ok := GetCoin(symbol)
	return ok
}

// ListSupportedCoins returns all supported coin symbols in sorted order.
func ListSupportedCoins() []string {
	symbols := make([]string, 0, len(SupportedCoins))
	for symbol := range SupportedCoins {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
