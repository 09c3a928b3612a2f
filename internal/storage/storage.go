// Package storage provides persistent storage using SQLite.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrSettingNotFound is returned by GetSetting for unknown keys.
var ErrSettingNotFound = errors.New("setting not found")

// Storage keeps the transfer journal and outpoint reservations.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New creates a new Storage instance.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "dashsend.db")

	// Open database
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
		db:     db,
		dbPath: dbPath,
	}

	// Initialize schema
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Storage) Path() string {
	return s.dbPath
}

// initSchema creates all database tables.
func (s *Storage) initSchema() error {
	schema := `
	-- Settings table
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at INTEGER
	);

	-- Transfer journal: one row per built-and-signed transaction
	CREATE TABLE IF NOT EXISTS transfers (
		id TEXT PRIMARY KEY,
		chain TEXT NOT NULL,
		network TEXT NOT NULL,

		sender TEXT NOT NULL,
		recipient TEXT NOT NULL,
		amount INTEGER NOT NULL,          -- smallest unit
		fee INTEGER NOT NULL,             -- effective fee paid
		change_amount INTEGER NOT NULL DEFAULT 0,
		memo TEXT,
		input_count INTEGER NOT NULL,

		txid TEXT NOT NULL,
		raw_tx TEXT NOT NULL,

		-- signed, broadcast, failed
		status TEXT NOT NULL DEFAULT 'signed',
		broadcast_ref TEXT,
		failure_reason TEXT,

		created_at INTEGER NOT NULL,
		updated_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_transfers_created ON transfers(created_at);
	CREATE INDEX IF NOT EXISTS idx_transfers_sender ON transfers(sender);
	CREATE INDEX IF NOT EXISTS idx_transfers_txid ON transfers(txid);

	-- Outpoints spent by a broadcast transfer. A coin can only be claimed
	-- by one transfer at a time.
	CREATE TABLE IF NOT EXISTS reserved_outpoints (
		txid TEXT NOT NULL,
		vout INTEGER NOT NULL,
		transfer_id TEXT NOT NULL,
		reserved_at INTEGER NOT NULL,
		PRIMARY KEY (txid, vout),
		FOREIGN KEY (transfer_id) REFERENCES transfers(id)
	);

	CREATE INDEX IF NOT EXISTS idx_reserved_transfer ON reserved_outpoints(transfer_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SetSetting stores a key/value pair.
func (s *Storage) SetSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

// GetSetting returns the value stored under key.
func (s *Storage) GetSetting(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value sql.NullString
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrSettingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value.String, nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
