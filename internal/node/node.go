package node

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/klingon-exchange/dashsend/internal/backend"
	"github.com/klingon-exchange/dashsend/internal/chain"
	"github.com/klingon-exchange/dashsend/internal/storage"
	"github.com/klingon-exchange/dashsend/internal/transfer"
	"github.com/klingon-exchange/dashsend/internal/wallet"
	"github.com/klingon-exchange/dashsend/pkg/logging"
)

// ErrNetworkMismatch is returned when a data directory created for one
// network is opened for another.
var ErrNetworkMismatch = errors.New("data directory belongs to a different network")

const networkSettingKey = "network"

// LookupTimeout bounds the coin fetch of a single build.
const LookupTimeout = 30 * time.Second

// Node is an assembled dashsend runtime.
type Node struct {
	config   *Config
	params   *chain.Params
	store    *storage.Storage
	backends *backend.Registry
	wallet   *wallet.Service
	builder  *transfer.Builder
	transfer *transfer.Service
	log      *logging.Logger

	startTime time.Time

	mu     sync.Mutex
	closed bool
}

// New creates a node from cfg. The wallet starts locked.
func New(cfg *Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}
	fees, err := cfg.FeeModel()
	if err != nil {
		return nil, err
	}
	senderPath, err := cfg.SenderPath()
	if err != nil {
		return nil, err
	}

	n := &Node{
		config:    cfg,
		params:    params,
		log:       logging.GetDefault().Component("node"),
		startTime: time.Now(),
	}

	n.store, err = storage.New(&storage.Config{DataDir: cfg.DataDir()})
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	if err := n.pinNetwork(); err != nil {
		n.store.Close()
		return nil, err
	}

	symbol := params.Symbol
	bcfg := cfg.GetBackendConfig(symbol)
	if bcfg == nil {
		n.store.Close()
		return nil, fmt.Errorf("no backend configured for %s", symbol)
	}
	if bcfg.Type == backend.TypeInsight {
		bcfg.InstantSend = cfg.Broadcast.InstantSend
	}
	n.backends, err = backend.NewRegistryFromConfigs(cfg.Network, map[string]*backend.Config{symbol: bcfg})
	if err != nil {
		n.store.Close()
		return nil, fmt.Errorf("failed to create backends: %w", err)
	}
	b, ok := n.backends.Get(symbol)
	if !ok {
		n.store.Close()
		return nil, fmt.Errorf("no %s backend for %s", cfg.Network, symbol)
	}

	n.wallet = wallet.NewService(&wallet.ServiceConfig{Network: cfg.Network})

	n.builder, err = transfer.NewBuilder(&transfer.BuilderConfig{
		Params:        params,
		Fees:          fees,
		Source:        b,
		LookupTimeout: LookupTimeout,
	})
	if err != nil {
		n.store.Close()
		return nil, err
	}

	n.transfer, err = transfer.NewService(&transfer.ServiceConfig{
		Builder:        n.builder,
		Keys:           n.wallet,
		Store:          n.store,
		Broadcaster:    b,
		SenderPath:     senderPath,
		AllowBroadcast: cfg.Broadcast.Enabled,
	})
	if err != nil {
		n.store.Close()
		return nil, err
	}

	n.log.Debug("node ready",
		"chain", symbol,
		"network", cfg.Network,
		"backend", bcfg.Type,
		"broadcast", cfg.Broadcast.Enabled,
		"path", chain.FormatDerivationPath(senderPath))

	return n, nil
}

// pinNetwork records the network on first use and refuses to reopen the
// journal for another one.
func (n *Node) pinNetwork() error {
	stored, err := n.store.GetSetting(networkSettingKey)
	if errors.Is(err, storage.ErrSettingNotFound) {
		return n.store.SetSetting(networkSettingKey, string(n.config.Network))
	}
	if err != nil {
		return err
	}
	if stored != string(n.config.Network) {
		return fmt.Errorf("%w: %s, configured %s", ErrNetworkMismatch, stored, n.config.Network)
	}
	return nil
}

// UnlockWallet loads the seed. password is only used for sealed seed files.
func (n *Node) UnlockWallet(password string) error {
	w := n.config.Wallet
	switch {
	case w.SeedFile != "":
		path := expandPath(w.SeedFile)
		if !filepath.IsAbs(path) {
			path = filepath.Join(n.config.DataDir(), path)
		}
		return n.wallet.UnlockSealed(path, password, w.Passphrase)
	case w.Mnemonic != "":
		return n.wallet.UnlockMnemonic(w.Mnemonic, w.Passphrase)
	default:
		return ErrNoSeed
	}
}

// Connect checks that the explorer for the configured chain answers.
func (n *Node) Connect(ctx context.Context) error {
	b, ok := n.backends.Get(n.params.Symbol)
	if !ok {
		return fmt.Errorf("no backend for %s", n.params.Symbol)
	}
	return b.Connect(ctx)
}

// Close releases everything the node holds.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true

	n.wallet.Lock()
	n.backends.CloseAll()
	return n.store.Close()
}

// Config returns the node configuration.
func (n *Node) Config() *Config { return n.config }

// Params returns the chain parameters.
func (n *Node) Params() *chain.Params { return n.params }

// Storage returns the transfer journal.
func (n *Node) Storage() *storage.Storage { return n.store }

// Backends returns the explorer registry.
func (n *Node) Backends() *backend.Registry { return n.backends }

// Wallet returns the wallet service.
func (n *Node) Wallet() *wallet.Service { return n.wallet }

// Builder returns the transaction builder.
func (n *Node) Builder() *transfer.Builder { return n.builder }

// Transfers returns the transfer service.
func (n *Node) Transfers() *transfer.Service { return n.transfer }

// Uptime returns how long the node has been running.
func (n *Node) Uptime() time.Duration { return time.Since(n.startTime) }
