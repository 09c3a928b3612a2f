package storage

import (
	"errors"
	"os"
	"testing"
	"time"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "dashsend-storage-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func testTransfer(id string) *Transfer {
	return &Transfer{
		ID:         id,
		Chain:      "DASH",
		Network:    "mainnet",
		Sender:     "XsenderAddress",
		Recipient:  "XrecipientAddress",
		Amount:     100000,
		Fee:        2374,
		Change:     17626,
		Memo:       "🧧",
		InputCount: 2,
		TxID:       "aa" + id,
		RawTx:      "0300000001",
	}
}

func TestSettings(t *testing.T) {
	store := newTestStorage(t)

	if _, err := store.GetSetting("network"); !errors.Is(err, ErrSettingNotFound) {
		t.Fatalf("Expected ErrSettingNotFound, got %v", err)
	}

	if err := store.SetSetting("network", "testnet"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	if err := store.SetSetting("network", "mainnet"); err != nil {
		t.Fatalf("SetSetting overwrite failed: %v", err)
	}

	got, err := store.GetSetting("network")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if got != "mainnet" {
		t.Errorf("Expected mainnet, got %s", got)
	}
}

func TestCreateAndGetTransfer(t *testing.T) {
	store := newTestStorage(t)

	tr := testTransfer("t1")
	if err := store.CreateTransfer(tr); err != nil {
		t.Fatalf("CreateTransfer failed: %v", err)
	}

	got, err := store.GetTransfer("t1")
	if err != nil {
		t.Fatalf("GetTransfer failed: %v", err)
	}

	if got.Status != TransferStatusSigned {
		t.Errorf("Expected status signed, got %s", got.Status)
	}
	if got.Amount != 100000 || got.Fee != 2374 || got.Change != 17626 {
		t.Errorf("Amounts mismatch: %+v", got)
	}
	if got.Memo != "🧧" {
		t.Errorf("Memo mismatch: %q", got.Memo)
	}
	if got.InputCount != 2 {
		t.Errorf("Expected 2 inputs, got %d", got.InputCount)
	}
	if got.UpdatedAt != nil {
		t.Errorf("Expected nil UpdatedAt for new transfer")
	}

	if _, err := store.GetTransfer("missing"); !errors.Is(err, ErrTransferNotFound) {
		t.Errorf("Expected ErrTransferNotFound, got %v", err)
	}
}

func TestTransferTransitions(t *testing.T) {
	store := newTestStorage(t)

	if err := store.CreateTransfer(testTransfer("ok")); err != nil {
		t.Fatalf("CreateTransfer failed: %v", err)
	}
	if err := store.CreateTransfer(testTransfer("bad")); err != nil {
		t.Fatalf("CreateTransfer failed: %v", err)
	}

	if err := store.MarkBroadcast("ok", "txid-from-explorer"); err != nil {
		t.Fatalf("MarkBroadcast failed: %v", err)
	}
	if err := store.MarkFailed("bad", "txn-mempool-conflict"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	ok, _ := store.GetTransfer("ok")
	if ok.Status != TransferStatusBroadcast || ok.BroadcastRef != "txid-from-explorer" {
		t.Errorf("Unexpected broadcast state: %+v", ok)
	}
	if ok.UpdatedAt == nil {
		t.Errorf("Expected UpdatedAt to be set")
	}

	bad, _ := store.GetTransfer("bad")
	if bad.Status != TransferStatusFailed || bad.FailureReason != "txn-mempool-conflict" {
		t.Errorf("Unexpected failed state: %+v", bad)
	}

	// Final states are final.
	if err := store.MarkFailed("ok", "late"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
	if err := store.MarkBroadcast("missing", "x"); !errors.Is(err, ErrTransferNotFound) {
		t.Errorf("Expected ErrTransferNotFound, got %v", err)
	}
}

func TestListTransfers(t *testing.T) {
	store := newTestStorage(t)

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"first", "second", "third"} {
		tr := testTransfer(id)
		tr.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.CreateTransfer(tr); err != nil {
			t.Fatalf("CreateTransfer failed: %v", err)
		}
	}

	all, err := store.ListTransfers(0)
	if err != nil {
		t.Fatalf("ListTransfers failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 transfers, got %d", len(all))
	}
	if all[0].ID != "third" || all[2].ID != "first" {
		t.Errorf("Expected newest first, got %s..%s", all[0].ID, all[2].ID)
	}

	limited, err := store.ListTransfers(2)
	if err != nil {
		t.Fatalf("ListTransfers failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("Expected 2 transfers, got %d", len(limited))
	}
}

func TestReserveOutpoints(t *testing.T) {
	store := newTestStorage(t)

	a := Outpoint{TxID: "aa", Vout: 0}
	b := Outpoint{TxID: "bb", Vout: 1}
	c := Outpoint{TxID: "cc", Vout: 2}

	if err := store.ReserveOutpoints("t1", []Outpoint{a, b}); err != nil {
		t.Fatalf("ReserveOutpoints failed: %v", err)
	}

	// Re-reserving for the same transfer is fine.
	if err := store.ReserveOutpoints("t1", []Outpoint{a}); err != nil {
		t.Fatalf("Re-reserve failed: %v", err)
	}

	// Overlap with another transfer fails and reserves nothing.
	err := store.ReserveOutpoints("t2", []Outpoint{c, b})
	if !errors.Is(err, ErrOutpointReserved) {
		t.Fatalf("Expected ErrOutpointReserved, got %v", err)
	}
	owner, err := store.ReservedBy(c)
	if err != nil {
		t.Fatalf("ReservedBy failed: %v", err)
	}
	if owner != "" {
		t.Errorf("Expected %s to stay free, held by %s", c, owner)
	}

	if err := store.ReleaseOutpoints("t1"); err != nil {
		t.Fatalf("ReleaseOutpoints failed: %v", err)
	}
	if err := store.ReserveOutpoints("t2", []Outpoint{c, b}); err != nil {
		t.Fatalf("Reserve after release failed: %v", err)
	}

	owner, _ = store.ReservedBy(b)
	if owner != "t2" {
		t.Errorf("Expected t2 to hold %s, got %q", b, owner)
	}
}
