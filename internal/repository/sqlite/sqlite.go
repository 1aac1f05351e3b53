// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database: it lives inside your Go binary as a single file.
// No separate database server to install, configure, or manage. It backs
// STORE_DRIVER=sqlite, meant for single-host deployments and demos where
// running MongoDB is overkill but data should survive a restart.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo (calls C code from Go), which means you need a C compiler
// installed and cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code, so it works everywhere Go works.
//
// DOCUMENTS IN ROWS:
// The domain is document shaped (users carry event lists, teams carry member
// records). Each table therefore has one `doc` column holding the BSON
// encoding of the model struct, the same bytes MongoDB would store, plus a
// few plain columns that exist only so SQL can filter, sort and enforce
// uniqueness (email, github_id, date, status, ...). The doc is the source of
// truth; the plain columns are rewritten from it on every save.
//
// ATOMICITY:
// The pool is limited to ONE connection. Every read-modify-write runs in a
// transaction on that connection, so two joins on the same event are
// serialized and the capacity check in the second one sees the first.
// This gives the same guarantees as the filtered single-document updates in
// the mongodb package, at the cost of write concurrency nobody needs at
// SQLite scale.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	// The named import still runs the package's init(), which registers the
	// driver with database/sql as "sqlite". The name is only needed for
	// *msqlite.Error when classifying constraint violations.
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/volunteer-hub/internal/repository"
)

// Table names.
const (
	usersTable        = "users"
	eventsTable       = "events"
	teamsTable        = "teams"
	helpRequestsTable = "help_requests"
)

// DB wraps a sql.DB connection pool and hands out one store per table.
type DB struct {
	conn *sql.DB
}

// New opens the database file and runs migrations.
//
// dbPath examples:
//   - "data/volunteer-hub.db" → file-based database (persistent)
//   - ":memory:"              → in-memory database (tests, lost on close)
//
// sql.Open() does NOT open a connection. Ping forces one so a bad path or
// permissions issue fails here rather than on the first request.
func New(ctx context.Context, dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// One connection: serializes writers (see ATOMICITY above) and keeps a
	// ":memory:" database alive, since every new connection would otherwise
	// get its own empty one.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL (Write-Ahead Logging) lets readers in other processes (the sqlite3
	// shell, a backup job) proceed while we write.
	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database answers. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Users() *UserStore               { return &UserStore{db} }
func (db *DB) Events() *EventStore             { return &EventStore{db} }
func (db *DB) Teams() *TeamStore               { return &TeamStore{db} }
func (db *DB) HelpRequests() *HelpRequestStore { return &HelpRequestStore{db} }

// Stores returns every store behind the repository interfaces.
func (db *DB) Stores() repository.Stores {
	return repository.Stores{
		Users:        db.Users(),
		Events:       db.Events(),
		Teams:        db.Teams(),
		HelpRequests: db.HelpRequests(),
	}
}

// migrate creates the tables and indexes.
//
// CREATE TABLE IF NOT EXISTS is idempotent, so this runs on every start.
// Times are stored as Unix milliseconds, the precision BSON keeps anyway.
func (db *DB) migrate(ctx context.Context) error {
	steps := []struct {
		name string
		sql  string
	}{
		// github_id is NULL for password accounts; UNIQUE ignores NULLs.
		{"users table", `
			CREATE TABLE IF NOT EXISTS users (
				id        TEXT PRIMARY KEY,
				email     TEXT NOT NULL UNIQUE,
				github_id INTEGER UNIQUE,
				doc       BLOB NOT NULL
			);`},
		{"events table", `
			CREATE TABLE IF NOT EXISTS events (
				id       TEXT PRIMARY KEY,
				date     INTEGER NOT NULL,
				category TEXT NOT NULL,
				status   TEXT NOT NULL,
				doc      BLOB NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_events_date ON events(date);
			CREATE INDEX IF NOT EXISTS idx_events_category ON events(category);`},
		{"teams table", `
			CREATE TABLE IF NOT EXISTS teams (
				id         TEXT PRIMARY KEY,
				category   TEXT NOT NULL,
				is_private INTEGER NOT NULL,
				created_at INTEGER NOT NULL,
				doc        BLOB NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_teams_created_at ON teams(created_at);`},
		{"help_requests table", `
			CREATE TABLE IF NOT EXISTS help_requests (
				id         TEXT PRIMARY KEY,
				urgency    TEXT NOT NULL,
				status     TEXT NOT NULL,
				created_at INTEGER NOT NULL,
				doc        BLOB NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_help_requests_created_at ON help_requests(created_at);`},
	}

	for _, step := range steps {
		if _, err := db.conn.ExecContext(ctx, step.sql); err != nil {
			return fmt.Errorf("creating %s: %w", step.name, err)
		}
	}
	return nil
}

// =========================================================================
// SHARED HELPERS
// =========================================================================

// querier is satisfied by both *sql.DB and *sql.Tx, so the same load code
// runs inside and outside a transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// withTx runs fn in a transaction, rolling back when it returns an error.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// loadDoc reads and decodes one document. sql.ErrNoRows is returned
// unchanged so callers can decide between NotFound and ErrGuardRejected.
func loadDoc[T any](ctx context.Context, q querier, table string, id primitive.ObjectID) (*T, error) {
	var raw []byte
	err := q.QueryRowContext(ctx, `SELECT doc FROM `+table+` WHERE id = ?`, id.Hex()).Scan(&raw)
	if err != nil {
		return nil, err
	}
	var v T
	if err := bson.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("sqlite: decoding %s %s: %w", table, id.Hex(), err)
	}
	return &v, nil
}

// queryDocs runs a query whose only column is doc and decodes every row.
func queryDocs[T any](ctx context.Context, q querier, query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	// rows MUST be closed or the single connection is never released.
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var v T
		if err := bson.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decoding row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// mutate loads a document inside a transaction, lets apply change it and
// writes it back with save. An error from apply aborts without writing and
// is returned as is.
func mutate[T any](
	ctx context.Context,
	db *DB,
	table string,
	id primitive.ObjectID,
	apply func(*T) error,
	save func(context.Context, querier, *T) error,
) (*T, error) {
	var out *T
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		doc, err := loadDoc[T](ctx, tx, table, id)
		if err != nil {
			return err
		}
		if err := apply(doc); err != nil {
			return err
		}
		if err := save(ctx, tx, doc); err != nil {
			return err
		}
		out = doc
		return nil
	})
	return out, err
}

// idList turns ids into a "?,?,?" placeholder list and its arguments.
func idList(ids []primitive.ObjectID) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.Hex()
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

// isUniqueViolation matches the extended UNIQUE code, and the primary
// CONSTRAINT code for connections without extended result codes.
func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code&0xff == sqlite3.SQLITE_CONSTRAINT
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
