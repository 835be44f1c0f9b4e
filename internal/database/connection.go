// Package database holds the on-device durable queue: every practice
// attempt, difficulty update, reward transaction, and audio clip recorded
// while offline lands here and stays until the sync engine confirms it
// against the remote store. SQLite gives per-record atomic writes, which is
// the only durability discipline the queue needs.
package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Queue is the local durable queue. Open it once at process start, pass it
// to the write path and the sync engine, close it at shutdown.
type Queue struct {
	db *sqlx.DB
}

// Open opens (or creates) the queue database at the given path.
func Open(path string) (*Queue, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create queue directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}

	// WAL keeps enqueue-while-draining safe without a global lock.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// SQLite doesn't support multiple writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	q := &Queue{db: db}
	if err := q.initializeSchema(); err != nil {
		return nil, err
	}
	if err := q.migrateSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

// OpenInMemory opens a throwaway queue for tests.
func OpenInMemory() (*Queue, error) {
	return Open(":memory:")
}

// Close closes the underlying database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// initializeSchema creates the queue tables if they don't exist.
func (q *Queue) initializeSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS queued_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_key TEXT NOT NULL UNIQUE,
			learner_id TEXT NOT NULL,
			word_id TEXT NOT NULL,
			list_id TEXT,
			mode TEXT NOT NULL,
			correct BOOLEAN NOT NULL,
			typed_answer TEXT,
			audio_ref TEXT,
			started_at TIMESTAMP NOT NULL,
			synced BOOLEAN NOT NULL DEFAULT 0,
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			failed BOOLEAN NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create queued_attempts table: %w", err)
	}

	_, err = q.db.Exec(`
		CREATE TABLE IF NOT EXISTS queued_difficulty_updates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			learner_id TEXT NOT NULL,
			word_id TEXT NOT NULL,
			correct_first_try BOOLEAN NOT NULL,
			synced BOOLEAN NOT NULL DEFAULT 0,
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			failed BOOLEAN NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create queued_difficulty_updates table: %w", err)
	}

	_, err = q.db.Exec(`
		CREATE TABLE IF NOT EXISTS queued_reward_transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_key TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			reason TEXT NOT NULL,
			synced BOOLEAN NOT NULL DEFAULT 0,
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			failed BOOLEAN NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create queued_reward_transactions table: %w", err)
	}

	_, err = q.db.Exec(`
		CREATE TABLE IF NOT EXISTS queued_audio_clips (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			attempt_key TEXT NOT NULL,
			learner_id TEXT NOT NULL,
			word_id TEXT NOT NULL,
			local_path TEXT NOT NULL,
			synced BOOLEAN NOT NULL DEFAULT 0,
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			failed BOOLEAN NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create queued_audio_clips table: %w", err)
	}

	return nil
}

// migrateSchema evolves queue tables created by older app versions. The
// list_id column on queued_attempts arrived after launch; databases from
// before it get the column added here, and pending rows are backfilled by
// BackfillAttemptLists once a remote lookup is available.
func (q *Queue) migrateSchema() error {
	hasListID, err := q.columnExists("queued_attempts", "list_id")
	if err != nil {
		return err
	}
	if !hasListID {
		if _, err := q.db.Exec("ALTER TABLE queued_attempts ADD COLUMN list_id TEXT"); err != nil {
			return fmt.Errorf("failed to add list_id column: %w", err)
		}
	}
	return nil
}

func (q *Queue) columnExists(table, column string) (bool, error) {
	var cols []struct {
		CID     int     `db:"cid"`
		Name    string  `db:"name"`
		Type    string  `db:"type"`
		NotNull int     `db:"notnull"`
		Default *string `db:"dflt_value"`
		PK      int     `db:"pk"`
	}
	if err := q.db.Select(&cols, fmt.Sprintf("PRAGMA table_info(%s)", table)); err != nil {
		return false, fmt.Errorf("failed to inspect %s schema: %w", table, err)
	}
	for _, c := range cols {
		if c.Name == column {
			return true, nil
		}
	}
	return false, nil
}
