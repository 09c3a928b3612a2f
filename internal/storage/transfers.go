package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Transfer errors
var (
	ErrTransferNotFound  = errors.New("transfer not found")
	ErrOutpointReserved  = errors.New("outpoint already reserved by another transfer")
	ErrInvalidTransition = errors.New("invalid transfer status transition")
)

// TransferStatus is where a transfer is in its life.
type TransferStatus string

const (
	TransferStatusSigned    TransferStatus = "signed"    // Built and signed, not submitted
	TransferStatusBroadcast TransferStatus = "broadcast" // Accepted by the explorer
	TransferStatusFailed    TransferStatus = "failed"    // Submission rejected
)

// Transfer is a journal entry for one signed transaction.
type Transfer struct {
	ID      string
	Chain   string
	Network string

	Sender     string
	Recipient  string
	Amount     uint64
	Fee        uint64
	Change     uint64
	Memo       string
	InputCount int

	TxID  string
	RawTx string

	Status        TransferStatus
	BroadcastRef  string
	FailureReason string

	CreatedAt time.Time
	UpdatedAt *time.Time
}

// Outpoint identifies a coin.
type Outpoint struct {
	TxID string
	Vout uint32
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Vout)
}

// CreateTransfer inserts a new journal entry.
func (s *Storage) CreateTransfer(t *Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Status == "" {
		t.Status = TransferStatusSigned
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO transfers (
			id, chain, network, sender, recipient, amount, fee, change_amount, memo,
			input_count, txid, raw_tx, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.Chain, t.Network, t.Sender, t.Recipient,
		t.Amount, t.Fee, t.Change, nullString(t.Memo),
		t.InputCount, t.TxID, t.RawTx, t.Status,
		t.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create transfer: %w", err)
	}

	return nil
}

const transferColumns = `
	id, chain, network, sender, recipient, amount, fee, change_amount, memo,
	input_count, txid, raw_tx, status, broadcast_ref, failure_reason,
	created_at, updated_at`

// GetTransfer retrieves a transfer by ID.
func (s *Storage) GetTransfer(id string) (*Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+transferColumns+` FROM transfers WHERE id = ?`, id)
	t, err := scanTransfer(row)
	if err == sql.ErrNoRows {
		return nil, ErrTransferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	return t, nil
}

// ListTransfers returns the most recent transfers first. A limit of zero
// or less returns everything.
func (s *Storage) ListTransfers(limit int) ([]*Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + transferColumns + ` FROM transfers ORDER BY created_at DESC, rowid DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, t)
	}

	return transfers, rows.Err()
}

// MarkBroadcast records the identifier the explorer returned.
func (s *Storage) MarkBroadcast(id, ref string) error {
	return s.transition(id, TransferStatusBroadcast, ref, "")
}

// MarkFailed records why submission failed.
func (s *Storage) MarkFailed(id, reason string) error {
	return s.transition(id, TransferStatusFailed, "", reason)
}

// transition moves a signed transfer to a final status.
func (s *Storage) transition(id string, status TransferStatus, ref, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE transfers
		SET status = ?, broadcast_ref = ?, failure_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, status, nullString(ref), nullString(reason), time.Now().Unix(), id, TransferStatusSigned)
	if err != nil {
		return fmt.Errorf("failed to update transfer: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var current TransferStatus
		err := s.db.QueryRow(`SELECT status FROM transfers WHERE id = ?`, id).Scan(&current)
		if err == sql.ErrNoRows {
			return ErrTransferNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read transfer status: %w", err)
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	return nil
}

// ReserveOutpoints claims coins for a transfer. Either every outpoint is
// reserved or none is.
func (s *Storage) ReserveOutpoints(transferID string, outpoints []Outpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, op := range outpoints {
		var owner string
		err := tx.QueryRow(`SELECT transfer_id FROM reserved_outpoints WHERE txid = ? AND vout = ?`,
			op.TxID, op.Vout).Scan(&owner)
		switch {
		case err == nil && owner != transferID:
			return fmt.Errorf("%w: %s held by %s", ErrOutpointReserved, op, owner)
		case err == nil:
			continue
		case err != sql.ErrNoRows:
			return fmt.Errorf("failed to check outpoint %s: %w", op, err)
		}

		if _, err := tx.Exec(`
			INSERT INTO reserved_outpoints (txid, vout, transfer_id, reserved_at) VALUES (?, ?, ?, ?)
		`, op.TxID, op.Vout, transferID, now); err != nil {
			return fmt.Errorf("failed to reserve outpoint %s: %w", op, err)
		}
	}

	return tx.Commit()
}

// ReleaseOutpoints drops every reservation held by a transfer.
func (s *Storage) ReleaseOutpoints(transferID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM reserved_outpoints WHERE transfer_id = ?`, transferID); err != nil {
		return fmt.Errorf("failed to release outpoints: %w", err)
	}
	return nil
}

// ReservedBy returns the transfer holding an outpoint, or "" if it is free.
func (s *Storage) ReservedBy(op Outpoint) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var owner string
	err := s.db.QueryRow(`SELECT transfer_id FROM reserved_outpoints WHERE txid = ? AND vout = ?`,
		op.TxID, op.Vout).Scan(&owner)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to check outpoint %s: %w", op, err)
	}
	return owner, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransfer(row rowScanner) (*Transfer, error) {
	var t Transfer
	var memo, ref, reason sql.NullString
	var createdAt int64
	var updatedAt sql.NullInt64

	err := row.Scan(
		&t.ID, &t.Chain, &t.Network, &t.Sender, &t.Recipient,
		&t.Amount, &t.Fee, &t.Change, &memo,
		&t.InputCount, &t.TxID, &t.RawTx, &t.Status, &ref, &reason,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Memo = memo.String
	t.BroadcastRef = ref.String
	t.FailureReason = reason.String
	t.CreatedAt = time.Unix(createdAt, 0)
	if updatedAt.Valid {
		u := time.Unix(updatedAt.Int64, 0)
		t.UpdatedAt = &u
	}

	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
