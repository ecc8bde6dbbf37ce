package sqlite

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection with thread-safe access.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// New creates and initializes a new SQLite database connection.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// migrate creates the necessary tables if they don't exist.
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS identities (
		identity_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		embedding BLOB NOT NULL,
		photo_path TEXT NOT NULL DEFAULT '',
		enrolled_at DATETIME NOT NULL,
		last_seen DATETIME
	);

	CREATE TABLE IF NOT EXISTS visits (
		identity_id TEXT NOT NULL,
		minute_bucket TEXT NOT NULL,
		PRIMARY KEY (identity_id, minute_bucket),
		FOREIGN KEY (identity_id) REFERENCES identities(identity_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_visits_identity_id ON visits(identity_id);
	CREATE INDEX IF NOT EXISTS idx_identities_display_name ON identities(display_name);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection for use by the store.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Lock acquires a write lock.
func (db *DB) Lock() {
	db.mu.Lock()
}

// Unlock releases the write lock.
func (db *DB) Unlock() {
	db.mu.Unlock()
}

// RLock acquires a read lock.
func (db *DB) RLock() {
	db.mu.RLock()
}

// RUnlock releases the read lock.
func (db *DB) RUnlock() {
	db.mu.RUnlock()
}
