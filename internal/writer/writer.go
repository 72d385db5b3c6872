// Package writer persists batches of typed rows into a target store.
// Two backends exist: relational (DuckDB or Postgres over database/sql)
// and graph (a SQLite-backed property graph). Writers create missing
// tables on setup and upsert by the declared key columns, so re-loading
// the same data is idempotent.
package writer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"  // postgres driver
	_ "github.com/marcboeker/go-duckdb" // duckdb driver
	_ "modernc.org/sqlite"              // sqlite driver for the graph backend

	"github.com/leapstack-labs/kbforge/internal/coerce"
	"github.com/leapstack-labs/kbforge/internal/manifest"
	"github.com/leapstack-labs/kbforge/internal/schema"
)

// Row is one typed row, keyed by column name. Many-to-many reference
// columns hold a []any of typed target keys; every other column holds a
// single typed value or nil.
type Row map[string]any

// Writer persists typed rows for the tables of one schema graph.
type Writer interface {
	// Setup prepares the backend: creates tables, collections, or edge
	// storage for every table in the graph if they do not exist.
	Setup(ctx context.Context, g *schema.Graph) error

	// WriteBatch persists one batch of rows for a table, upserting by
	// the table's key columns when declared.
	WriteBatch(ctx context.Context, tbl *manifest.Table, rows []Row) error

	Close() error
}

// Config selects and configures a writer backend.
type Config struct {
	// Backend is one of "duckdb", "postgres", "graph".
	Backend string `koanf:"backend"`
	// Path is the database file for duckdb and graph backends.
	// Empty means in-memory.
	Path string `koanf:"path"`
	// DSN is the connection string for the postgres backend.
	DSN string `koanf:"dsn"`
}

// WriteError reports a backend-level failure for one batch. The
// orchestrator counts the batch's rows as rejected and proceeds.
type WriteError struct {
	Table string
	Rows  int
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("table %q: failed to write batch of %d row(s): %v", e.Table, e.Rows, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// New opens the writer for the configured backend. The backend set is
// closed, so construction is an explicit switch.
func New(cfg Config, logger *slog.Logger) (Writer, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	switch cfg.Backend {
	case "duckdb":
		path := cfg.Path
		if path == "" {
			path = ":memory:"
		}
		db, err := sql.Open("duckdb", path)
		if err != nil {
			return nil, fmt.Errorf("failed to open duckdb database: %w", err)
		}
		return NewRelational(db, "duckdb", logger), nil

	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres backend requires a dsn")
		}
		db, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres connection: %w", err)
		}
		return NewRelational(db, "postgres", logger), nil

	case "graph":
		path := cfg.Path
		if path == "" {
			path = ":memory:"
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("failed to open graph database: %w", err)
		}
		return NewGraph(db, logger), nil

	default:
		return nil, fmt.Errorf("unknown writer backend %q (available: duckdb, graph, postgres)", cfg.Backend)
	}
}

// rowKey renders a row's natural key in canonical form: the key column
// values joined in declaration order. Without declared keys, every
// column participates, which keeps writes deterministic but not
// idempotent across loads of changing data.
func rowKey(tbl *manifest.Table, row Row) string {
	cols := tbl.KeyColumns()
	if len(cols) == 0 {
		for _, c := range tbl.Columns {
			cols = append(cols, c.Name)
		}
	}
	parts := make([]string, len(cols))
	for i, name := range cols {
		parts[i] = coerce.KeyString(row[name])
	}
	return strings.Join(parts, "|")
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
