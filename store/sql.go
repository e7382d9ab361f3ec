package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect captures what differs between the SQL databases the backend runs on.
type Dialect struct {
	Name string
	// Driver is the database/sql driver name.
	Driver string
	// Schema creates the records table; it must be idempotent.
	Schema string
	// OrderBy is the column giving insertion order.
	OrderBy string
	// Numbered reports whether placeholders are $1, $2, ... instead of ?.
	Numbered bool
}

var (
	// Postgres stores records through lib/pq.
	Postgres = Dialect{
		Name:   "postgres",
		Driver: "postgres",
		Schema: `
		CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			record_key TEXT NOT NULL,
			seq BIGSERIAL,
			version BIGINT NOT NULL,
			data BYTEA NOT NULL,
			PRIMARY KEY (collection, record_key)
		);
		CREATE TABLE IF NOT EXISTS record_clock (
			collection TEXT PRIMARY KEY,
			value BIGINT NOT NULL
		);`,
		OrderBy:  "seq",
		Numbered: true,
	}

	// SQLite stores records through mattn/go-sqlite3. The implicit rowid
	// grows monotonically, which is all List needs for insertion order.
	SQLite = Dialect{
		Name:   "sqlite",
		Driver: "sqlite3",
		Schema: `
		CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			record_key TEXT NOT NULL,
			version INTEGER NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (collection, record_key)
		);
		CREATE TABLE IF NOT EXISTS record_clock (
			collection TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		);`,
		OrderBy: "rowid",
	}
)

// SQLBackend keeps every collection in a single records table keyed by
// (collection, record_key). A row exists exactly while its key is indexed.
// Versions come from record_clock, one row per collection, which deletes
// never touch.
type SQLBackend struct {
	db      *sql.DB
	dialect Dialect
}

var _ Backend = (*SQLBackend)(nil)

// NewSQLBackend applies the dialect schema to db and returns a backend over it.
func NewSQLBackend(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLBackend, error) {
	if _, err := db.ExecContext(ctx, dialect.Schema); err != nil {
		return nil, fmt.Errorf("failed to apply %s schema: %w", dialect.Name, err)
	}
	return &SQLBackend{db: db, dialect: dialect}, nil
}

// OpenSQLite opens (or creates) a SQLite database at path.
//
// SQLite only supports one writer at a time, so the pool is limited to a
// single connection; this also keeps ":memory:" databases shared across
// calls.
func OpenSQLite(ctx context.Context, path string) (*SQLBackend, error) {
	db, err := sql.Open(SQLite.Driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	b, err := NewSQLBackend(ctx, db, SQLite)
	if err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// OpenPostgres connects to the Postgres database at dsn.
func OpenPostgres(ctx context.Context, dsn string) (*SQLBackend, error) {
	db, err := sql.Open(Postgres.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)

	b, err := NewSQLBackend(ctx, db, Postgres)
	if err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// Close closes the underlying database.
func (b *SQLBackend) Close() error {
	return b.db.Close()
}

// rebind rewrites ? placeholders into the dialect's form.
func (b *SQLBackend) rebind(query string) string {
	if !b.dialect.Numbered {
		return query
	}

	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// nextVersion bumps the collection's clock and returns the new value.
func (b *SQLBackend) nextVersion(ctx context.Context, c Collection) (int64, error) {
	var v int64
	err := b.db.QueryRowContext(ctx, b.rebind(`
		INSERT INTO record_clock (collection, value) VALUES (?, 1)
		ON CONFLICT (collection) DO UPDATE SET value = record_clock.value + 1
		RETURNING value
	`), c.Entity).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("next version for %s: %w", c.Entity, err)
	}
	return v, nil
}

func (b *SQLBackend) Exists(ctx context.Context, c Collection, key string) (bool, error) {
	var one int
	err := b.db.QueryRowContext(ctx,
		b.rebind(`SELECT 1 FROM records WHERE collection = ? AND record_key = ?`),
		c.Entity, key,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *SQLBackend) Get(ctx context.Context, c Collection, key string) (Versioned, error) {
	var v Versioned
	err := b.db.QueryRowContext(ctx,
		b.rebind(`SELECT version, data FROM records WHERE collection = ? AND record_key = ?`),
		c.Entity, key,
	).Scan(&v.Version, &v.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return Versioned{}, ErrNotFound
	}
	if err != nil {
		return Versioned{}, err
	}
	return v, nil
}

func (b *SQLBackend) Insert(ctx context.Context, c Collection, key string, data []byte) error {
	version, err := b.nextVersion(ctx, c)
	if err != nil {
		return err
	}

	res, err := b.db.ExecContext(ctx, b.rebind(`
		INSERT INTO records (collection, record_key, version, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, record_key) DO NOTHING
	`), c.Entity, key, version, data)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (b *SQLBackend) CompareAndSwap(ctx context.Context, c Collection, key string, version int64, data []byte) (bool, error) {
	next, err := b.nextVersion(ctx, c)
	if err != nil {
		return false, err
	}

	res, err := b.db.ExecContext(ctx, b.rebind(`
		UPDATE records SET version = ?, data = ?
		WHERE collection = ? AND record_key = ? AND version = ?
	`), next, data, c.Entity, key, version)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	ok, err := b.Exists(ctx, c, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrNotFound
	}
	return false, nil
}

func (b *SQLBackend) Delete(ctx context.Context, c Collection, key string) (bool, error) {
	res, err := b.db.ExecContext(ctx,
		b.rebind(`DELETE FROM records WHERE collection = ? AND record_key = ?`),
		c.Entity, key,
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *SQLBackend) List(ctx context.Context, c Collection) ([][]byte, error) {
	rows, err := b.db.QueryContext(ctx,
		b.rebind(`SELECT data FROM records WHERE collection = ? ORDER BY `+b.dialect.OrderBy),
		c.Entity,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, rows.Err()
}

func (b *SQLBackend) Count(ctx context.Context, c Collection) (int64, error) {
	var n int64
	err := b.db.QueryRowContext(ctx,
		b.rebind(`SELECT COUNT(*) FROM records WHERE collection = ?`),
		c.Entity,
	).Scan(&n)
	return n, err
}
