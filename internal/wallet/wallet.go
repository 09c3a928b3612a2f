// Package wallet derives signing keys from a BIP39 seed, encodes P2PKH
// addresses and signs assembled transactions.
package wallet

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"

	"github.com/klingon-exchange/dashsend/internal/chain"
)

// Wallet manages HD keys derived from a BIP39 seed.
type Wallet struct {
	masterKey *hdkeychain.ExtendedKey
	network   chain.Network
	mu        sync.Mutex

	// Derived keys by formatted path
	cache map[string]*hdkeychain.ExtendedKey
}

// KeyPair is a derived signing key and the P2PKH identity it controls.
type KeyPair struct {
	Path       []uint32
	PrivKey    *btcec.PrivateKey
	PubKey     *btcec.PublicKey
	PubKeyHash []byte // Hash160 of the compressed public key
	Address    string
}

// PathString returns the key's derivation path, e.g. "m/44'/5'/0'/0/0".
func (k *KeyPair) PathString() string {
	return chain.FormatDerivationPath(k.Path)
}

// GenerateMnemonic generates a new 24-word BIP39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256) // 256 bits = 24 words
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate mnemonic: %w", err)
	}

	return mnemonic, nil
}

// ValidateMnemonic checks if a mnemonic is valid.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// NewFromMnemonic creates a wallet from a BIP39 mnemonic.
// The passphrase is optional (can be empty string).
func NewFromMnemonic(mnemonic, passphrase string, network chain.Network) (*Wallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}

	seed := bip39.NewSeed(mnemonic, passphrase)
	defer SecureClear(seed)

	return NewFromSeed(seed, network)
}

// NewFromSeed creates a wallet from a raw BIP39 seed.
func NewFromSeed(seed []byte, network chain.Network) (*Wallet, error) {
	// The master key's version bytes only matter for serialization; chain
	// specific params are applied when addresses are encoded.
	params := &chaincfg.MainNetParams
	if network == chain.Testnet {
		params = &chaincfg.TestNet3Params
	}

	masterKey, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	return &Wallet{
		masterKey: masterKey,
		network:   network,
		cache:     make(map[string]*hdkeychain.ExtendedKey),
	}, nil
}

// Network returns the wallet's network (mainnet/testnet).
func (w *Wallet) Network() chain.Network {
	return w.network
}

// DerivePath derives the extended key at an arbitrary BIP32 path. Elements
// at or above chain.HardenedKeyStart are hardened.
func (w *Wallet) DerivePath(path []uint32) (*hdkeychain.ExtendedKey, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.masterKey == nil {
		return nil, fmt.Errorf("wallet is locked")
	}

	id := chain.FormatDerivationPath(path)
	if key, ok := w.cache[id]; ok {
		return key, nil
	}

	key := w.masterKey
	for depth, child := range path {
		next, err := key.Derive(child)
		if err != nil {
			return nil, fmt.Errorf("failed to derive %s at depth %d: %w", id, depth+1, err)
		}
		key = next
	}

	w.cache[id] = key
	return key, nil
}

// DeriveKey derives a key at the full BIP44 path: m/purpose'/coin'/account'/change/index
func (w *Wallet) DeriveKey(purpose, coinType, account, change, index uint32) (*hdkeychain.ExtendedKey, error) {
	return w.DerivePath([]uint32{
		hdkeychain.HardenedKeyStart + purpose,
		hdkeychain.HardenedKeyStart + coinType,
		hdkeychain.HardenedKeyStart + account,
		change,
		index,
	})
}

// KeyPair derives the signing key at path and encodes its P2PKH address
// with the chain's parameters.
func (w *Wallet) KeyPair(params *chain.Params, path []uint32) (*KeyPair, error) {
	key, err := w.DerivePath(path)
	if err != nil {
		return nil, err
	}

	privKey, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get private key: %w", err)
	}
	pubKey := privKey.PubKey()
	pubKeyHash := btcutil.Hash160(pubKey.SerializeCompressed())

	address, err := EncodePubKeyHash(pubKeyHash, params)
	if err != nil {
		return nil, err
	}

	return &KeyPair{
		Path:       append([]uint32(nil), path...),
		PrivKey:    privKey,
		PubKey:     pubKey,
		PubKeyHash: pubKeyHash,
		Address:    address,
	}, nil
}

// ClearCache drops derived keys.
func (w *Wallet) ClearCache() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cache = make(map[string]*hdkeychain.ExtendedKey)
}

// Close forgets the master key and every derived key.
func (w *Wallet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.masterKey != nil {
		w.masterKey.Zero()
		w.masterKey = nil
	}
	for _, key := range w.cache {
		key.Zero()
	}
	w.cache = make(map[string]*hdkeychain.ExtendedKey)
}
