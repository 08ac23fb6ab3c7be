// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buffer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/nettemp-agent/lib/clock"
	"github.com/bureau-foundation/nettemp-agent/lib/codec"
	"github.com/bureau-foundation/nettemp-agent/lib/payload"
	"github.com/bureau-foundation/nettemp-agent/lib/sqlitepool"
)

// MaxAttempts is the redelivery ceiling. Entries at or above it are
// exhausted.
const MaxAttempts = 5

const schema = `
CREATE TABLE IF NOT EXISTS buffer (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	data BLOB NOT NULL,
	destination TEXT NOT NULL DEFAULT '',
	timestamp INTEGER NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS buffer_pending ON buffer (attempts, timestamp, id);
`

// Config holds the parameters for Open.
type Config struct {
	// Path is the database file. Its parent directory is created if
	// missing.
	Path string

	// BusyTimeout bounds lock waits. Defaults to
	// sqlitepool.DefaultBusyTimeout.
	BusyTimeout time.Duration

	// Clock stamps enqueued entries. Defaults to the real clock.
	Clock clock.Clock

	Logger *slog.Logger
}

// Entry is one buffered payload.
type Entry struct {
	ID          int64
	Destination string
	Payload     payload.Payload
	Timestamp   time.Time
	Attempts    int
}

// Exhausted reports whether the entry has reached the attempt ceiling.
func (e Entry) Exhausted() bool { return e.Attempts >= MaxAttempts }

// Stats summarizes the buffer contents.
type Stats struct {
	Pending   int
	Exhausted int
}

// Buffer is a SQLite-backed payload queue. Safe for concurrent use.
type Buffer struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open opens (creating if necessary) the buffer database.
func Open(cfg Config) (*Buffer, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if err := ensureParent(cfg.Path); err != nil {
		return nil, err
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:        cfg.Path,
		PoolSize:    2,
		BusyTimeout: cfg.BusyTimeout,
		Logger:      cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("buffer: %w", err)
	}

	b := &Buffer{pool: pool, clock: cfg.Clock, logger: cfg.Logger}

	// Prepare one connection now so schema errors surface from Open.
	conn, err := pool.Take(context.Background())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("buffer: %w", err)
	}
	pool.Put(conn)
	return b, nil
}

// Close closes the database.
func (b *Buffer) Close() error {
	return b.pool.Close()
}

// Enqueue stores p for later delivery to destination and returns the
// new entry's id.
func (b *Buffer) Enqueue(ctx context.Context, destination string, p payload.Payload) (id int64, err error) {
	data, err := codec.Marshal(p)
	if err != nil {
		return 0, fmt.Errorf("buffer: encoding payload: %w", err)
	}

	conn, err := b.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("buffer: %w", err)
	}
	defer b.pool.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fmt.Errorf("buffer: begin: %w", err)
	}
	defer endFn(&err)

	err = sqlitex.Execute(conn,
		"INSERT INTO buffer (data, destination, timestamp, attempts) VALUES (?, ?, ?, 0)",
		&sqlitex.ExecOptions{Args: []any{data, destination, b.clock.Now().Unix()}},
	)
	if err != nil {
		return 0, fmt.Errorf("buffer: insert: %w", err)
	}
	id = conn.LastInsertRowID()

	b.logger.Debug("payload buffered",
		"id", id,
		"destination", destination,
		"readings", p.Len(),
	)
	return id, nil
}

// Pending returns up to limit non-exhausted entries, oldest first. A
// limit of zero or less means no limit. When destinations is non-empty
// only entries recorded for those destinations are returned.
//
// An entry whose payload no longer decodes is marked exhausted and
// left out of the result.
func (b *Buffer) Pending(ctx context.Context, limit int, destinations []string) ([]Entry, error) {
	query := "SELECT id, data, destination, timestamp, attempts FROM buffer WHERE attempts < ?"
	args := []any{MaxAttempts}
	if len(destinations) > 0 {
		query += " AND destination IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(destinations)), ", ") + ")"
		for _, destination := range destinations {
			args = append(args, destination)
		}
	}
	if limit <= 0 {
		limit = -1
	}
	query += " ORDER BY timestamp, id LIMIT ?"
	args = append(args, limit)

	entries, corrupt, err := b.query(ctx, query, args, true)
	if err != nil {
		return nil, err
	}
	for _, id := range corrupt {
		b.logger.Warn("buffered payload is unreadable, marking exhausted", "id", id)
		if err := b.exec(ctx, "UPDATE buffer SET attempts = ? WHERE id = ?", MaxAttempts, id); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// Entries returns every entry, exhausted ones included, oldest first.
// Entries whose payload does not decode are returned with an empty
// payload.
func (b *Buffer) Entries(ctx context.Context) ([]Entry, error) {
	entries, _, err := b.query(ctx,
		"SELECT id, data, destination, timestamp, attempts FROM buffer ORDER BY timestamp, id",
		nil, false,
	)
	return entries, err
}

// Delete removes an entry. Deleting an id that does not exist is not
// an error.
func (b *Buffer) Delete(ctx context.Context, id int64) error {
	return b.exec(ctx, "DELETE FROM buffer WHERE id = ?", id)
}

// IncrementAttempts records one more failed redelivery of an entry.
func (b *Buffer) IncrementAttempts(ctx context.Context, id int64) error {
	return b.exec(ctx, "UPDATE buffer SET attempts = attempts + 1 WHERE id = ?", id)
}

// Stats counts pending and exhausted entries.
func (b *Buffer) Stats(ctx context.Context) (Stats, error) {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("buffer: %w", err)
	}
	defer b.pool.Put(conn)

	var stats Stats
	err = sqlitex.Execute(conn,
		"SELECT COALESCE(SUM(attempts < ?), 0), COALESCE(SUM(attempts >= ?), 0) FROM buffer",
		&sqlitex.ExecOptions{
			Args: []any{MaxAttempts, MaxAttempts},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.Pending = stmt.ColumnInt(0)
				stats.Exhausted = stmt.ColumnInt(1)
				return nil
			},
		},
	)
	if err != nil {
		return Stats{}, fmt.Errorf("buffer: stats: %w", err)
	}
	return stats, nil
}

func (b *Buffer) exec(ctx context.Context, query string, args ...any) (err error) {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("buffer: %w", err)
	}
	defer b.pool.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("buffer: begin: %w", err)
	}
	defer endFn(&err)

	if err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
		return fmt.Errorf("buffer: %w", err)
	}
	return nil
}

// query runs a SELECT of (id, data, destination, timestamp, attempts)
// and decodes each row. The ids of rows whose data fails to decode are
// returned in corrupt; with skipCorrupt they are left out of entries,
// otherwise they appear with an empty payload.
func (b *Buffer) query(ctx context.Context, query string, args []any, skipCorrupt bool) (entries []Entry, corrupt []int64, err error) {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("buffer: %w", err)
	}
	defer b.pool.Put(conn)

	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entry := Entry{
				ID:          stmt.ColumnInt64(0),
				Destination: stmt.ColumnText(2),
				Timestamp:   time.Unix(stmt.ColumnInt64(3), 0),
				Attempts:    stmt.ColumnInt(4),
			}
			data := make([]byte, stmt.ColumnLen(1))
			stmt.ColumnBytes(1, data)
			if decodeErr := codec.Unmarshal(data, &entry.Payload); decodeErr != nil {
				corrupt = append(corrupt, entry.ID)
				if skipCorrupt {
					return nil
				}
				entry.Payload = payload.Payload{}
			}
			entries = append(entries, entry)
			return nil
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("buffer: query: %w", err)
	}
	return entries, corrupt, nil
}

func ensureParent(path string) error {
	if path == "" {
		return fmt.Errorf("buffer: Path is required")
	}
	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("buffer: creating %s: %w", directory, err)
	}
	return nil
}
