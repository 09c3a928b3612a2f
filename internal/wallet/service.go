package wallet

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klingon-exchange/dashsend/internal/chain"
)

// ErrLocked is returned when keys are requested before the wallet is unlocked.
var ErrLocked = errors.New("wallet not loaded")

// Service manages the wallet lifecycle and hands out derived keys.
type Service struct {
	wallet  *Wallet
	network chain.Network

	mu sync.RWMutex
}

// ServiceConfig holds configuration for the wallet service.
type ServiceConfig struct {
	Network chain.Network
}

// NewService creates a new, locked wallet service.
func NewService(cfg *ServiceConfig) *Service {
	network := chain.Mainnet
	if cfg != nil && cfg.Network != "" {
		network = cfg.Network
	}

	return &Service{network: network}
}

// UnlockMnemonic loads the wallet from a mnemonic and optional BIP39 passphrase.
func (s *Service) UnlockMnemonic(mnemonic, passphrase string) error {
	w, err := NewFromMnemonic(mnemonic, passphrase, s.network)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wallet != nil {
		s.wallet.Close()
	}
	s.wallet = w
	return nil
}

// UnlockSealed opens a sealed seed file with password and loads the wallet.
func (s *Service) UnlockSealed(path, password, passphrase string) error {
	sealed, err := ReadSealedSeed(path)
	if err != nil {
		return err
	}

	mnemonic, err := sealed.Open(password)
	if err != nil {
		return fmt.Errorf("failed to open seed: %w", err)
	}

	return s.UnlockMnemonic(mnemonic, passphrase)
}

// IsUnlocked returns true if the wallet is loaded.
func (s *Service) IsUnlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wallet != nil
}

// Lock forgets all key material.
func (s *Service) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wallet != nil {
		s.wallet.Close()
		s.wallet = nil
	}
}

// Network returns the wallet network.
func (s *Service) Network() chain.Network {
	return s.network
}

// KeyPair derives the key at path for a chain.
func (s *Service) KeyPair(symbol string, path []uint32) (*KeyPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.wallet == nil {
		return nil, ErrLocked
	}

	params, ok := chain.Get(symbol, s.network)
	if !ok {
		return nil, fmt.Errorf("unsupported chain: %s", symbol)
	}

	return s.wallet.KeyPair(params, path)
}

// Address returns the P2PKH address at path for a chain.
func (s *Service) Address(symbol string, path []uint32) (string, error) {
	kp, err := s.KeyPair(symbol, path)
	if err != nil {
		return "", err
	}
	return kp.Address, nil
}
