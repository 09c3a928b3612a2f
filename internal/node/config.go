// Package node assembles a dashsend runtime from its settings file: the
// transfer journal, explorer backends, wallet, and transfer service.
package node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/klingon-exchange/dashsend/internal/backend"
	"github.com/klingon-exchange/dashsend/internal/chain"
	"github.com/klingon-exchange/dashsend/internal/config"
	"github.com/klingon-exchange/dashsend/internal/txbuilder"
)

// ErrNoSeed is returned when keys are needed but no seed source is configured.
var ErrNoSeed = errors.New("no mnemonic or seed file configured")

// Config holds all configuration for a dashsend node.
type Config struct {
	// Network is mainnet or testnet.
	Network chain.Network `yaml:"network"`

	// Chain is the coin symbol to send (DASH by default).
	Chain string `yaml:"chain"`

	// Wallet selects the seed and the paying key.
	Wallet WalletConfig `yaml:"wallet"`

	// Fees overrides the per-coin fee policy field by field.
	Fees config.FeePolicy `yaml:"fees,omitempty"`

	// Broadcast controls whether signed transactions may leave the machine.
	Broadcast BroadcastConfig `yaml:"broadcast"`

	// Backends holds explorer configurations per chain symbol.
	// If not specified, defaults to the public explorers in internal/config.
	Backends map[string]*backend.Config `yaml:"backends,omitempty"`

	// Storage
	Storage StorageConfig `yaml:"storage"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// RPC server
	RPC RPCConfig `yaml:"rpc"`
}

// WalletConfig holds seed and key selection settings.
type WalletConfig struct {
	// Mnemonic is a BIP39 phrase. Prefer SeedFile outside of testing.
	Mnemonic string `yaml:"mnemonic,omitempty"`

	// Passphrase is the optional BIP39 passphrase.
	Passphrase string `yaml:"passphrase,omitempty"`

	// SeedFile is a sealed mnemonic written by `dashsend seal-seed`.
	SeedFile string `yaml:"seed_file,omitempty"`

	// DerivationPath overrides Account/Change/Index, e.g. "m/44'/5'/0'/0/0".
	DerivationPath string `yaml:"derivation_path,omitempty"`

	Account uint32 `yaml:"account"`
	Change  uint32 `yaml:"change"`
	Index   uint32 `yaml:"index"`
}

// HasSeed returns true if a seed source is configured.
func (w WalletConfig) HasSeed() bool {
	return w.Mnemonic != "" || w.SeedFile != ""
}

// BroadcastConfig holds broadcast settings.
type BroadcastConfig struct {
	// Enabled must be true for any transaction to be submitted.
	Enabled bool `yaml:"enabled"`

	// InstantSend submits DASH transactions through /tx/sendix.
	InstantSend bool `yaml:"instant_send"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// DataDir is the directory for all data files.
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`

	// File is the log file path (empty for stderr only).
	File string `yaml:"file"`

	// MaxSizeKB is the size at which the log file is rolled.
	MaxSizeKB int64 `yaml:"max_size_kb"`

	// MaxRolls is how many rolled files are kept.
	MaxRolls int `yaml:"max_rolls"`
}

// RPCConfig holds JSON-RPC server settings.
type RPCConfig struct {
	// Listen is the address the server binds to.
	Listen string `yaml:"listen"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Network: chain.Mainnet,
		Chain:   "DASH",
		Broadcast: BroadcastConfig{
			Enabled:     false,
			InstantSend: true,
		},
		Storage: StorageConfig{
			DataDir: "~/.dashsend",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeKB: 10 * 1024,
			MaxRolls:  3,
		},
		RPC: RPCConfig{
			Listen: "127.0.0.1:8645",
		},
	}
}

// Validate checks that the settings describe something we can run. An
// empty network is normalized to mainnet.
func (c *Config) Validate() error {
	network, err := chain.ParseNetwork(string(c.Network))
	if err != nil {
		return err
	}
	c.Network = network

	if _, err := c.Params(); err != nil {
		return err
	}
	if _, err := c.FeePolicy(); err != nil {
		return err
	}
	if _, err := c.SenderPath(); err != nil {
		return err
	}
	if c.Wallet.Mnemonic != "" && c.Wallet.SeedFile != "" {
		return errors.New("wallet: set either mnemonic or seed_file, not both")
	}
	return nil
}

// ChainSymbol returns the configured chain, uppercased.
func (c *Config) ChainSymbol() string {
	if c.Chain == "" {
		return "DASH"
	}
	return strings.ToUpper(c.Chain)
}

// IsTestnet returns true if running on testnet.
func (c *Config) IsTestnet() bool {
	return c.Network == chain.Testnet
}

// Params returns the chain parameters for the configured chain and network.
func (c *Config) Params() (*chain.Params, error) {
	params, ok := chain.Get(c.ChainSymbol(), c.Network)
	if !ok {
		return nil, fmt.Errorf("unsupported chain %s on %s", c.ChainSymbol(), c.Network)
	}
	return params, nil
}

// FeePolicy returns the coin's default fee policy with the configured
// overrides applied.
func (c *Config) FeePolicy() (config.FeePolicy, error) {
	policy, ok := config.GetFeePolicy(c.ChainSymbol())
	if !ok {
		return config.FeePolicy{}, fmt.Errorf("no fee policy for %s", c.ChainSymbol())
	}
	policy = policy.Merge(c.Fees)
	if err := policy.Validate(); err != nil {
		return config.FeePolicy{}, fmt.Errorf("fees: %w", err)
	}
	return policy, nil
}

// FeeModel returns the linear fee model for the configured policy.
func (c *Config) FeeModel() (txbuilder.LinearFee, error) {
	p, err := c.FeePolicy()
	if err != nil {
		return txbuilder.LinearFee{}, err
	}
	return txbuilder.LinearFee{
		FeeRate:    p.FeeRate,
		BaseSize:   p.BaseSize,
		InputSize:  p.InputSize,
		OutputSize: p.OutputSize,
		DustLimit:  p.DustLimit,
	}, nil
}

// SenderPath returns the derivation path of the paying key.
func (c *Config) SenderPath() ([]uint32, error) {
	if c.Wallet.DerivationPath != "" {
		return chain.ParseDerivationPath(c.Wallet.DerivationPath)
	}
	params, err := c.Params()
	if err != nil {
		return nil, err
	}
	return params.DerivationPath(c.Wallet.Account, c.Wallet.Change, c.Wallet.Index), nil
}

// GetBackendConfig returns the backend config for a chain symbol.
// Returns a copy of the default config if not explicitly configured.
func (c *Config) GetBackendConfig(symbol string) *backend.Config {
	symbol = strings.ToUpper(symbol)
	for s, cfg := range c.Backends {
		if strings.ToUpper(s) == symbol && cfg != nil {
			cp := *cfg
			return &cp
		}
	}
	if cfg, ok := backend.DefaultConfigs()[symbol]; ok {
		return cfg
	}
	return nil
}

// GetBackendURL returns the appropriate backend URL for the chain and network.
func (c *Config) GetBackendURL(symbol string) string {
	cfg := c.GetBackendConfig(symbol)
	if cfg == nil {
		return ""
	}
	return cfg.URL(c.Network)
}

// DataDir returns the expanded data directory.
func (c *Config) DataDir() string {
	return expandPath(c.Storage.DataDir)
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(dataDir string) (*Config, error) {
	configPath := ConfigPath(dataDir)

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}

		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Storage.DataDir = ""
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = dataDir
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# dashsend configuration\n# Generated automatically on first run\n# broadcast.enabled must be true before anything is submitted\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for the given data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
