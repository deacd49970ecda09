// Package dbengine is the thin, synchronous wrapper around the embedded
// relational engine: parameterized query/update, transactions,
// last-insert-id, affected-row counts, and registration of the JSON
// collation. Transactions are opened with a plain "BEGIN" rather than
// sql.DB.BeginTx, since the driver's BeginTx always runs DEFERRED and
// nesting is managed explicitly here.
package dbengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// BusyTimeoutMillis bounds how long a statement waits on the engine's own
// internal lock before giving up.
const BusyTimeoutMillis = 10_000

const driverName = "ldb-sqlite3"

var registerOnce sync.Once

func registerDriver() {
	registerOnce.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterCollation("JSON", compareJSON)
			},
		})
	})
}

// Engine is a single opened database file plus its transaction-nesting
// state. Not safe for concurrent use by design: single-threaded per
// instance.
type Engine struct {
	db *sql.DB

	depth  int
	failed bool
}

// Open opens (creating if absent) the SQLite file at path, with the
// default busy timeout, foreign-key enforcement, and the JSON collation
// installed.
func Open(path string) (*Engine, error) {
	return OpenWithTimeout(path, BusyTimeoutMillis)
}

// OpenWithTimeout is Open with the busy-retry timeout overridden, for
// callers that loaded a config.Options overlay specifying one. A
// non-positive value falls back to BusyTimeoutMillis.
func OpenWithTimeout(path string, busyTimeoutMillis int) (*Engine, error) {
	if busyTimeoutMillis <= 0 {
		busyTimeoutMillis = BusyTimeoutMillis
	}
	registerDriver()
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", path, busyTimeoutMillis)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("dbengine: open: %w", err)
	}
	// The engine is single-threaded per instance; one connection avoids
	// handing two goroutines two different SQLite connections that would
	// each see their own transaction state.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("dbengine: open: %w", err)
	}
	return &Engine{db: db}, nil
}

// Close releases the underlying connection.
func (e *Engine) Close() error {
	return e.db.Close()
}

// ExecuteUpdate runs a parameterized INSERT/UPDATE/DELETE/DDL statement.
func (e *Engine) ExecuteUpdate(ctx context.Context, sqlText string, args ...any) (sql.Result, error) {
	res, err := e.db.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("dbengine: execute update: %w", err)
	}
	return res, nil
}

// ExecuteQuery runs a parameterized SELECT and returns a forward-only
// cursor.
func (e *Engine) ExecuteQuery(ctx context.Context, sqlText string, args ...any) (*ResultCursor, error) {
	rows, err := e.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("dbengine: execute query: %w", err)
	}
	return &ResultCursor{rows: rows}, nil
}

// ResultCursor is a forward-only row iterator with typed column access
// via Scan, mirroring database/sql.Rows.
type ResultCursor struct {
	rows *sql.Rows
}

// Next advances the cursor. Returns false at end of results or on error;
// call Err to distinguish the two.
func (c *ResultCursor) Next() bool { return c.rows.Next() }

// Scan copies the current row's columns into dest, per database/sql.Rows.Scan.
func (c *ResultCursor) Scan(dest ...any) error { return c.rows.Scan(dest...) }

// Err returns the error, if any, encountered during iteration.
func (c *ResultCursor) Err() error { return c.rows.Err() }

// Close releases the cursor's resources. Safe to call multiple times.
func (c *ResultCursor) Close() error { return c.rows.Close() }

// Begin increments the transaction nesting depth, opening the engine's
// actual transaction only on the 0→1 transition.
func (e *Engine) Begin(ctx context.Context) error {
	if e.depth == 0 {
		if _, err := e.db.ExecContext(ctx, "BEGIN"); err != nil {
			return fmt.Errorf("dbengine: begin: %w", err)
		}
		e.failed = false
	}
	e.depth++
	return nil
}

// MarkFailed sets the sticky failure flag for the current nesting. It is
// write-only externally — once set it cannot be cleared except by the
// outermost End.
func (e *Engine) MarkFailed() {
	e.failed = true
}

// End commits on the 1→0 transition if no inner caller marked failure,
// else rolls back. depth is decremented regardless.
func (e *Engine) End(ctx context.Context) error {
	if e.depth == 0 {
		return errors.New("dbengine: End called with no matching Begin")
	}
	e.depth--
	if e.depth > 0 {
		return nil
	}
	failed := e.failed
	e.failed = false
	if failed {
		_, err := e.db.ExecContext(ctx, "ROLLBACK")
		if err != nil {
			return fmt.Errorf("dbengine: rollback: %w", err)
		}
		return nil
	}
	if _, err := e.db.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("dbengine: commit: %w", err)
	}
	return nil
}

// Depth reports the current transaction nesting depth (0 means no open
// transaction). Exposed for tests of the sticky-failure contract.
func (e *Engine) Depth() int { return e.depth }

// Failed reports whether the current nesting has been marked failed.
func (e *Engine) Failed() bool { return e.failed }

// LastInsertID returns the rowid assigned to the most recent INSERT's
// result.
func LastInsertID(res sql.Result) (int64, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("dbengine: last insert id: %w", err)
	}
	return id, nil
}

// Changes returns the number of rows affected by res.
func Changes(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("dbengine: changes: %w", err)
	}
	return n, nil
}

// Vacuum reclaims space freed by compaction. Must be run outside any
// transaction.
func (e *Engine) Vacuum(ctx context.Context) error {
	if _, err := e.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("dbengine: vacuum: %w", err)
	}
	return nil
}

// DB exposes the underlying *sql.DB for callers (schema installation)
// that need direct access during open, before any higher-level wrapper
// exists.
func (e *Engine) DB() *sql.DB { return e.db }
