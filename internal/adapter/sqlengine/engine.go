// Package sqlengine introspects and queries the business database that
// structured questions are answered from.
package sqlengine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect selects catalog queries for a database driver.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"

	defaultSampleRows = 3
)

// Engine lists tables, describes them, and runs read-only queries.
type Engine interface {
	ListTables(ctx context.Context) ([]string, error)
	GetSchema(ctx context.Context, tables []string) (string, error)
	Run(ctx context.Context, query string) (string, error)
}

var _ Engine = (*SQLEngine)(nil)

// SQLEngine implements Engine over database/sql.
type SQLEngine struct {
	db         *sql.DB
	dialect    Dialect
	timeout    time.Duration
	sampleRows int
	logger     *slog.Logger
}

// Option configures an SQLEngine.
type Option func(*SQLEngine)

// WithTimeout bounds each engine call.
func WithTimeout(d time.Duration) Option {
	return func(e *SQLEngine) { e.timeout = d }
}

// WithSampleRows sets how many rows GetSchema shows per table.
func WithSampleRows(n int) Option {
	return func(e *SQLEngine) { e.sampleRows = n }
}

// Open connects to dsn with the driver matching dialect.
func Open(dialect Dialect, dsn string, opts ...Option) (*SQLEngine, error) {
	switch dialect {
	case DialectPostgres, DialectSQLite:
	default:
		return nil, fmt.Errorf("unsupported sql engine driver: %q", dialect)
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	return New(db, dialect, opts...), nil
}

// New wraps an existing handle.
func New(db *sql.DB, dialect Dialect, opts ...Option) *SQLEngine {
	e := &SQLEngine{
		db:         db,
		dialect:    dialect,
		sampleRows: defaultSampleRows,
		logger:     slog.Default().With("component", "sqlengine", "dialect", string(dialect)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Close closes the underlying handle.
func (e *SQLEngine) Close() error {
	return e.db.Close()
}

func (e *SQLEngine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return ctx, func() {}
}

// ListTables returns the user tables sorted by name.
func (e *SQLEngine) ListTables(ctx context.Context) ([]string, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	var query string
	switch e.dialect {
	case DialectPostgres:
		query = `SELECT table_name FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
			ORDER BY table_name`
	default:
		query = `SELECT name FROM sqlite_master
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
			ORDER BY name`
	}

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Run executes query inside a read-only transaction and renders the rows.
// A query returning no rows renders as the empty string.
func (e *SQLEngine) Run(ctx context.Context, query string) (string, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return "", fmt.Errorf("begin read-only tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	_, records, err := readRows(rows)
	if err != nil {
		return "", err
	}
	e.logger.Debug("query executed", "rows", len(records))
	return formatRecords(records), nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
