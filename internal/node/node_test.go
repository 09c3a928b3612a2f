package node

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/klingon-exchange/dashsend/internal/chain"
	"github.com/klingon-exchange/dashsend/internal/wallet"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()
	return cfg
}

func TestNewNode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Wallet.Mnemonic = testMnemonic

	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer n.Close()

	if n.Params().Symbol != "DASH" {
		t.Errorf("expected DASH, got %s", n.Params().Symbol)
	}
	if got := n.Backends().List(); len(got) != 2 {
		t.Errorf("expected DASH and DOGE backends, got %v", got)
	}
	if n.Transfers().BroadcastAllowed() {
		t.Error("broadcast must follow config")
	}

	if _, err := n.Transfers().Sender(); !errors.Is(err, wallet.ErrLocked) {
		t.Fatalf("expected ErrLocked before unlock, got %v", err)
	}

	if err := n.UnlockWallet(""); err != nil {
		t.Fatalf("UnlockWallet failed: %v", err)
	}

	kp, err := n.Transfers().Sender()
	if err != nil {
		t.Fatalf("Sender failed: %v", err)
	}
	if kp.Address[0] != 'X' {
		t.Errorf("expected a mainnet Dash address, got %s", kp.Address)
	}
	if kp.PathString() != "m/44'/5'/0'/0/0" {
		t.Errorf("unexpected path %s", kp.PathString())
	}

	if err := n.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := n.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestNodeNoSeed(t *testing.T) {
	n, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer n.Close()

	if err := n.UnlockWallet(""); !errors.Is(err, ErrNoSeed) {
		t.Errorf("expected ErrNoSeed, got %v", err)
	}
}

func TestNodeSealedSeed(t *testing.T) {
	cfg := testConfig(t)
	cfg.Wallet.SeedFile = "seed.json"

	sealed, err := wallet.SealMnemonic(testMnemonic, "Correct-Horse-9")
	if err != nil {
		t.Fatal(err)
	}
	if err := wallet.WriteSealedSeed(sealed, filepath.Join(cfg.Storage.DataDir, "seed.json")); err != nil {
		t.Fatal(err)
	}

	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer n.Close()

	if err := n.UnlockWallet("wrong-password"); err == nil {
		t.Fatal("expected wrong password to fail")
	}
	if err := n.UnlockWallet("Correct-Horse-9"); err != nil {
		t.Fatalf("UnlockWallet failed: %v", err)
	}
	if !n.Wallet().IsUnlocked() {
		t.Error("wallet should be unlocked")
	}
}

func TestNodeNetworkPinned(t *testing.T) {
	cfg := testConfig(t)

	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	n.Close()

	other := DefaultConfig()
	other.Storage.DataDir = cfg.Storage.DataDir
	other.Network = chain.Testnet

	if _, err := New(other); !errors.Is(err, ErrNetworkMismatch) {
		t.Fatalf("expected ErrNetworkMismatch, got %v", err)
	}

	// Same network reopens fine.
	n, err = New(cfg)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	n.Close()
}
