// Package chain defines chain parameters and derivation paths for the
// supported pay-to-pubkey-hash coins.
// All chain-specific values are hardcoded here - no external configuration needed.
package chain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network represents mainnet or testnet.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// ParseNetwork converts a config string into a Network.
func ParseNetwork(s string) (Network, error) {
	switch Network(strings.ToLower(s)) {
	case Mainnet, "":
		return Mainnet, nil
	case Testnet:
		return Testnet, nil
	}
	return "", fmt.Errorf("unknown network %q", s)
}

// AddressType represents the address encoding format.
type AddressType string

const (
	AddressP2PKH AddressType = "p2pkh" // Legacy pay-to-pubkey-hash
	AddressP2SH  AddressType = "p2sh"  // Script hash
)

// HardenedKeyStart is the index of the first hardened BIP32 child.
const HardenedKeyStart uint32 = 0x80000000

// Params contains all parameters for a blockchain.
type Params struct {
	// Identity
	Symbol   string  // DASH, DOGE
	Name     string  // Dash, Dogecoin
	Network  Network // mainnet or testnet
	Decimals uint8   // 8 for both

	// BIP44 derivation
	CoinType       uint32 // BIP44 coin type (5=DASH, 3=DOGE, 1=any testnet)
	DefaultPurpose uint32 // 44

	// Base58Check version bytes
	PubKeyHashAddrID byte // Address prefix for P2PKH
	ScriptHashAddrID byte // Address prefix for P2SH
	WIF              byte // Private key prefix

	// BIP32 HD key magic bytes (for xpub/xprv serialization)
	HDPrivateKeyID [4]byte
	HDPublicKeyID  [4]byte

	// TxVersion is the version stamped on newly built transactions.
	TxVersion int32

	DefaultAddressType AddressType
}

// DerivationPath returns the BIP44 derivation path for this chain.
// Format: m/purpose'/coin'/account'/change/index
func (p *Params) DerivationPath(account, change, index uint32) []uint32 {
	return []uint32{
		p.DefaultPurpose + HardenedKeyStart,
		p.CoinType + HardenedKeyStart,
		account + HardenedKeyStart,
		change,
		index,
	}
}

// DerivationPathString returns the derivation path as a string.
func (p *Params) DerivationPathString(account, change, index uint32) string {
	return FormatDerivationPath(p.DerivationPath(account, change, index))
}

// ChainCfg maps the params onto btcd's chaincfg.Params so btcutil can encode
// and decode addresses and WIF keys for this chain.
func (p *Params) ChainCfg() *chaincfg.Params {
	hdPrivateKeyID := p.HDPrivateKeyID
	hdPublicKeyID := p.HDPublicKeyID
	if hdPrivateKeyID == [4]byte{} {
		hdPrivateKeyID = [4]byte{0x04, 0x88, 0xad, 0xe4} // xprv
	}
	if hdPublicKeyID == [4]byte{} {
		hdPublicKeyID = [4]byte{0x04, 0x88, 0xb2, 0x1e} // xpub
	}

	return &chaincfg.Params{
		Name:             p.Name,
		PubKeyHashAddrID: p.PubKeyHashAddrID,
		ScriptHashAddrID: p.ScriptHashAddrID,
		PrivateKeyID:     p.WIF,
		HDPrivateKeyID:   hdPrivateKeyID,
		HDPublicKeyID:    hdPublicKeyID,
		HDCoinType:       p.CoinType,
	}
}

// ParseDerivationPath parses a BIP32 path such as "m/44'/5'/0'/0/0".
// Both ' and h mark hardened levels.
func ParseDerivationPath(path string) ([]uint32, error) {
	path = strings.TrimSpace(path)
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] != "m" {
		return nil, fmt.Errorf("invalid derivation path %q: must start with m/", path)
	}

	out := make([]uint32, 0, len(parts)-1)
	for _, part := range parts[1:] {
		digits := part
		hardened := strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h")
		if hardened {
			digits = part[:len(part)-1]
		}

		n, err := strconv.ParseUint(digits, 10, 32)
		if err != nil || n >= uint64(HardenedKeyStart) {
			return nil, fmt.Errorf("invalid derivation path %q: bad level %q", path, part)
		}

		idx := uint32(n)
		if hardened {
			idx += HardenedKeyStart
		}
		out = append(out, idx)
	}

	return out, nil
}

// FormatDerivationPath renders a path in the m/44'/5'/0'/0/0 form.
func FormatDerivationPath(path []uint32) string {
	var sb strings.Builder
	sb.WriteString("m")
	for _, idx := range path {
		sb.WriteByte('/')
		if idx >= HardenedKeyStart {
			sb.WriteString(strconv.FormatUint(uint64(idx-HardenedKeyStart), 10))
			sb.WriteByte('\'')
		} else {
			sb.WriteString(strconv.FormatUint(uint64(idx), 10))
		}
	}
	return sb.String()
}

// Registry holds all chain parameters indexed by symbol.
var registry = make(map[string]map[Network]*Params)

// Register adds chain params to the registry.
func Register(symbol string, network Network, params *Params) {
	if registry[symbol] == nil {
		registry[symbol] = make(map[Network]*Params)
	}
	registry[symbol][network] = params
}

// Get returns chain params for a symbol and network.
func Get(symbol string, network Network) (*Params, bool) {
	nets, ok := registry[strings.ToUpper(symbol)]
	if !ok {
		return nil, false
	}
	params, ok := nets[network]
	return params, ok
}

// List returns all registered chain symbols in sorted order.
func List() []string {
	symbols := make([]string, 0, len(registry))
	for symbol := range registry {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// IsSupported returns true if the chain is registered.
func IsSupported(symbol string) bool {
	_, ok := registry[strings.ToUpper(symbol)]
	return ok
}
