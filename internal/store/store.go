// Package store implements the persistent task store for Tally.
//
// It uses SQLite (pure-Go driver) to hold todo records, their tags, per-entity
// streaks and the points ledger. All mutations that must be atomic (task plus
// streak creation, balance plus ledger entry) run in a single short transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DBFile is the database filename inside the data directory.
const DBFile = "tally.db"

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds store configuration.
type Config struct {
	DataDir string
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the task store backed by SQLite.
type Store struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps and overdue checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides task id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// New opens (creating if needed) the database under cfg.DataDir and runs
// migrations. A store without a usable backing connection is never returned.
func New(cfg Config, opts ...Option) (*Store, error) {
	if cfg.DataDir == "" {
		return nil, errors.New("store: data dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	dsn := filepath.Join(cfg.DataDir, DBFile) +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)"
	db, err := openDB("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// One connection serializes writers in-process; busy_timeout covers other processes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	s := &Store{
		db:    db,
		now:   func() time.Time { return time.Now().UTC() },
		newID: newTaskID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// newTaskID returns a UUIDv7 identifier, falling back to v4.
func newTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS tasks (
			id           TEXT    PRIMARY KEY,
			agent_id     TEXT    NOT NULL,
			world_id     TEXT    NOT NULL DEFAULT '',
			room_id      TEXT    NOT NULL DEFAULT '',
			entity_id    TEXT    NOT NULL,
			name         TEXT    NOT NULL,
			description  TEXT,
			type         TEXT    NOT NULL,
			priority     INTEGER,
			is_urgent    INTEGER NOT NULL DEFAULT 0,
			is_completed INTEGER NOT NULL DEFAULT 0,
			due_date     TEXT,
			completed_at TEXT,
			metadata     TEXT    NOT NULL DEFAULT '{}',
			created_at   TEXT    NOT NULL,
			updated_at   TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tasks_agent   ON tasks(agent_id, type, is_completed);
		CREATE INDEX IF NOT EXISTS idx_tasks_room    ON tasks(room_id);
		CREATE INDEX IF NOT EXISTS idx_tasks_due     ON tasks(type, is_completed, due_date);
		CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at DESC);

		CREATE TABLE IF NOT EXISTS task_tags (
			task_id TEXT NOT NULL,
			tag     TEXT NOT NULL,
			PRIMARY KEY (task_id, tag),
			FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_task_tags_tag ON task_tags(tag);

		CREATE TABLE IF NOT EXISTS streaks (
			task_id           TEXT    NOT NULL,
			entity_id         TEXT    NOT NULL,
			current_streak    INTEGER NOT NULL DEFAULT 0,
			longest_streak    INTEGER NOT NULL DEFAULT 0,
			last_completed_at TEXT,
			created_at        TEXT    NOT NULL,
			updated_at        TEXT    NOT NULL,
			PRIMARY KEY (task_id, entity_id),
			FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE,
			CHECK (current_streak >= 0 AND longest_streak >= current_streak)
		);

		CREATE TABLE IF NOT EXISTS points_accounts (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_id           TEXT    NOT NULL,
			world_id            TEXT    NOT NULL,
			room_id             TEXT    NOT NULL,
			agent_id            TEXT    NOT NULL,
			current_points      INTEGER NOT NULL DEFAULT 0,
			total_points_earned INTEGER NOT NULL DEFAULT 0,
			created_at          TEXT    NOT NULL,
			updated_at          TEXT    NOT NULL,
			UNIQUE (entity_id, world_id, room_id)
		);

		CREATE TABLE IF NOT EXISTS points_transactions (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL,
			task_id    TEXT,
			amount     INTEGER NOT NULL,
			reason     TEXT    NOT NULL,
			created_at TEXT    NOT NULL,
			FOREIGN KEY (account_id) REFERENCES points_accounts(id) ON DELETE CASCADE,
			FOREIGN KEY (task_id)    REFERENCES tasks(id) ON DELETE SET NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tx_account ON points_transactions(account_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_tx_task    ON points_transactions(task_id);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// withTx runs fn inside a transaction. Inside fn only tx may be used: the
// pool holds a single connection.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

func (s *Store) timestamp() string {
	return formatTime(s.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Parse(time.RFC3339Nano, v)
	}
	return t, nil
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// taskExists reports whether a task row exists, using q (db or tx).
func taskExists(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("task exists: %w", err)
	}
	return true, nil
}
