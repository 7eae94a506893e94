// Package offline keeps specimens captured without connectivity and replays
// them once the gateway is reachable again.
package offline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion is stored in PRAGMA user_version. Opening a file written
// with another version drops the old tables.
const SchemaVersion = 1

// ErrItemNotFound is returned by Remove for an unknown id.
var ErrItemNotFound = errors.New("queue item not found")

// Item is one queued specimen.
type Item struct {
	ID       int64
	Filename string
	MIME     string
	Data     []byte
	QueuedAt time.Time
}

// Queue is a durable FIFO of specimens.
type Queue interface {
	Enqueue(ctx context.Context, it Item) (int64, error)
	// Pending returns all items in insertion order.
	Pending(ctx context.Context) ([]Item, error)
	Remove(ctx context.Context, id int64) error
	Len(ctx context.Context) (int, error)
}

// SQLiteQueue stores the queue and a small key/value table in one file.
type SQLiteQueue struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteQueue, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping queue: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteQueue{db: db}, nil
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version == SchemaVersion {
		return nil
	}

	stmts := []string{
		`DROP TABLE IF EXISTS pending_specimens`,
		`DROP TABLE IF EXISTS kv`,
		`CREATE TABLE pending_specimens (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			filename  TEXT NOT NULL,
			mime      TEXT NOT NULL,
			data      BLOB NOT NULL,
			queued_at INTEGER NOT NULL
		)`,
		`CREATE TABLE kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		fmt.Sprintf(`PRAGMA user_version = %d`, SchemaVersion),
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("migrate queue: %w", err)
		}
	}
	return nil
}

func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}

func (q *SQLiteQueue) Enqueue(ctx context.Context, it Item) (int64, error) {
	if it.QueuedAt.IsZero() {
		it.QueuedAt = time.Now()
	}
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO pending_specimens (filename, mime, data, queued_at) VALUES (?, ?, ?, ?)`,
		it.Filename, it.MIME, it.Data, it.QueuedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	return res.LastInsertId()
}

func (q *SQLiteQueue) Pending(ctx context.Context) ([]Item, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, filename, mime, data, queued_at
		FROM pending_specimens
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var queuedAt int64
		if err := rows.Scan(&it.ID, &it.Filename, &it.MIME, &it.Data, &queuedAt); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		it.QueuedAt = time.UnixMilli(queuedAt)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (q *SQLiteQueue) Remove(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM pending_specimens WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (q *SQLiteQueue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_specimens`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// Get returns the value for key, or "" when absent.
func (q *SQLiteQueue) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := q.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

func (q *SQLiteQueue) Set(ctx context.Context, key, value string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

var _ Queue = (*SQLiteQueue)(nil)
