package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foospulse/foospulse/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z"

// formatTimestamp converts time.Time to a fixed-width UTC string.
// Fixed width keeps ORDER BY on the text column chronological, and the Z
// suffix makes the sqlite driver parse it back as UTC.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func formatNullTimestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTimestamp(*t)
}

// Now returns the current time at the precision the store keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// NewID returns a new entity id.
func NewID() string {
	return uuid.NewString()
}

//go:embed schema.sql
var schema string

// Store provides database access
type Store struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// dsn appends connection parameters to a database path. Pragmas go in the
// DSN so every connection the pool opens carries them. Transactions begin
// IMMEDIATE: the write lock is taken at BEGIN, so a transaction that reads
// and then writes cannot interleave with a writer in another process.
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + strings.Join([]string{
		"_pragma=foreign_keys(1)",
		"_pragma=journal_mode(WAL)",
		"_pragma=busy_timeout(5000)",
		"_txlock=immediate",
	}, "&")
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn in a transaction, committing when it returns nil
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// notFound maps sql.ErrNoRows to domain.ErrNotFound
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return err
}
