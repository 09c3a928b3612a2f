// Package backend talks to block explorers: it fetches the unspent outputs of
// an address and submits signed transactions. No private keys are handled
// here; signing happens in the wallet package.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klingon-exchange/dashsend/internal/chain"
	"github.com/klingon-exchange/dashsend/internal/config"
)

// Common errors
var (
	ErrNotConnected       = errors.New("backend not connected")
	ErrLookupFailed       = errors.New("coin lookup failed")
	ErrBroadcastFailed    = errors.New("broadcast failed")
	ErrRateLimited        = errors.New("rate limited")
	ErrMalformedResponse  = errors.New("malformed response")
	ErrUnsupportedBackend = errors.New("unsupported backend type")
)

// Type represents the backend type.
type Type string

const (
	TypeInsight   Type = "insight"   // Insight API (Dash)
	TypeBlockbook Type = "blockbook" // Trezor Blockbook
)

// DefaultTimeout bounds a single explorer request.
const DefaultTimeout = 30 * time.Second

// UTXO represents an unspent transaction output as reported by an explorer.
type UTXO struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	Address       string `json:"address"`
	ScriptPubKey  string `json:"scriptPubKey"` // hex encoded
	Amount        uint64 `json:"amount"`       // smallest unit
	Confirmations int64  `json:"confirmations"`
}

// Backend defines the interface for blockchain data providers.
type Backend interface {
	// Type returns the backend type.
	Type() Type

	// Connect checks that the explorer is reachable.
	Connect(ctx context.Context) error

	// Close releases the backend.
	Close() error

	// IsConnected returns true if Connect succeeded and Close was not called.
	IsConnected() bool

	// GetAddressUTXOs returns the unspent outputs controlled by address.
	// Unreachable explorers and malformed payloads yield a *LookupError.
	GetAddressUTXOs(ctx context.Context, address string) ([]UTXO, error)

	// BroadcastTransaction submits a raw transaction and returns the
	// identifier the explorer reports for it.
	BroadcastTransaction(ctx context.Context, rawTxHex string) (string, error)
}

// Config contains backend configuration.
type Config struct {
	Type       Type   `yaml:"type"`
	MainnetURL string `yaml:"mainnet"`
	TestnetURL string `yaml:"testnet"`

	// Insight only: submit through /tx/sendix (InstantSend).
	InstantSend bool `yaml:"instant_send,omitempty"`

	// Optional settings
	Timeout int `yaml:"timeout,omitempty"` // seconds, default 30
}

// URL returns the base URL for the given network.
func (c *Config) URL(network chain.Network) string {
	if network == chain.Testnet {
		return c.TestnetURL
	}
	return c.MainnetURL
}

func (c *Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.Timeout) * time.Second
}

// DefaultConfigs returns default backend configurations for all supported chains.
func DefaultConfigs() map[string]*Config {
	configs := make(map[string]*Config)
	for _, symbol := range config.ListSupportedCoins() {
		mainnet, _ := config.GetEndpoints(symbol, config.Mainnet)
		testnet, _ := config.GetEndpoints(symbol, config.Testnet)

		switch {
		case mainnet.InsightURL != "":
			configs[symbol] = &Config{
				Type:        TypeInsight,
				MainnetURL:  mainnet.InsightURL,
				TestnetURL:  testnet.InsightURL,
				InstantSend: true,
			}
		case mainnet.BlockbookURL != "":
			configs[symbol] = &Config{
				Type:       TypeBlockbook,
				MainnetURL: mainnet.BlockbookURL,
				TestnetURL: testnet.BlockbookURL,
			}
		}
	}
	return configs
}

// New builds the backend described by cfg for a chain.
func New(symbol string, network chain.Network, cfg *Config) (Backend, error) {
	url := cfg.URL(network)
	if url == "" {
		return nil, fmt.Errorf("no %s URL configured for %s", network, symbol)
	}

	switch cfg.Type {
	case TypeInsight:
		b := NewInsightBackend(url, cfg.timeout())
		b.InstantSend = cfg.InstantSend
		return b, nil
	case TypeBlockbook:
		params, ok := chain.Get(symbol, network)
		if !ok {
			return nil, fmt.Errorf("unknown chain %s/%s", symbol, network)
		}
		return NewBlockbookBackend(url, params, cfg.timeout()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Type)
	}
}

// Registry holds backend instances by chain symbol.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates a new backend registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
	}
}

// NewRegistryFromConfigs creates a registry for the given network. Entries in
// overrides replace the defaults for their symbol.
func NewRegistryFromConfigs(network chain.Network, overrides map[string]*Config) (*Registry, error) {
	configs := DefaultConfigs()
	for symbol, cfg := range overrides {
		configs[strings.ToUpper(symbol)] = cfg
	}

	r := NewRegistry()
	for symbol, cfg := range configs {
		if cfg.URL(network) == "" {
			continue
		}
		b, err := New(symbol, network, cfg)
		if err != nil {
			return nil, fmt.Errorf("backend for %s: %w", symbol, err)
		}
		r.Register(symbol, b)
	}

	return r, nil
}

// Register adds a backend to the registry.
func (r *Registry) Register(symbol string, backend Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[strings.ToUpper(symbol)] = backend
}

// Get returns a backend by symbol.
func (r *Registry) Get(symbol string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[strings.ToUpper(symbol)]
	return b, ok
}

// List returns all registered symbols, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	symbols := make([]string, 0, len(r.backends))
	for s := range r.backends {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// ConnectAll connects all registered backends.
func (r *Registry) ConnectAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for symbol, b := range r.backends {
		if err := b.Connect(ctx); err != nil {
			return fmt.Errorf("%s: %w", symbol, err)
		}
	}
	return nil
}

// CloseAll closes all registered backends.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.backends {
		b.Close()
	}
}
