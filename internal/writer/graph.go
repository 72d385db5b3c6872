package writer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/kbforge/internal/coerce"
	"github.com/leapstack-labs/kbforge/internal/manifest"
	"github.com/leapstack-labs/kbforge/internal/schema"
)

// graphSchema is the physical layout of the graph backend: one node row
// per record keyed by (tbl, key), one edge row per relationship value.
// Every cardinality maps to first-class edges; many-to-many simply
// yields several edges per source node.
const graphSchema = `
CREATE TABLE IF NOT EXISTS nodes (
	tbl   TEXT NOT NULL,
	key   TEXT NOT NULL,
	props TEXT NOT NULL,
	PRIMARY KEY (tbl, key)
);
CREATE TABLE IF NOT EXISTS edges (
	rel     TEXT NOT NULL,
	src_tbl TEXT NOT NULL,
	src_key TEXT NOT NULL,
	dst_tbl TEXT NOT NULL,
	dst_key TEXT NOT NULL,
	PRIMARY KEY (rel, src_tbl, src_key, dst_tbl, dst_key)
);
CREATE INDEX IF NOT EXISTS idx_edges_dst ON edges (dst_tbl, dst_key);
`

// GraphWriter persists typed rows as a property graph in SQLite: nodes
// carry the row's scalar values as JSON properties, relationship values
// become typed edges.
type GraphWriter struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewGraph wraps an open SQLite handle.
func NewGraph(db *sql.DB, logger *slog.Logger) *GraphWriter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &GraphWriter{db: db, logger: logger}
}

// Setup creates the node and edge storage.
func (w *GraphWriter) Setup(ctx context.Context, _ *schema.Graph) error {
	if _, err := w.db.ExecContext(ctx, graphSchema); err != nil {
		return fmt.Errorf("failed to initialize graph storage: %w", err)
	}
	return nil
}

// WriteBatch upserts one node per row and one edge per relationship
// value, inside a single transaction per batch.
func (w *GraphWriter) WriteBatch(ctx context.Context, tbl *manifest.Table, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return &WriteError{Table: tbl.Name, Rows: len(rows), Err: err}
	}

	for _, row := range rows {
		key := rowKey(tbl, row)

		props, err := marshalProps(tbl, row)
		if err != nil {
			_ = tx.Rollback()
			return &WriteError{Table: tbl.Name, Rows: len(rows), Err: err}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO nodes (tbl, key, props) VALUES (?, ?, ?)
			 ON CONFLICT (tbl, key) DO UPDATE SET props = excluded.props`,
			tbl.Name, key, props)
		if err != nil {
			_ = tx.Rollback()
			return &WriteError{Table: tbl.Name, Rows: len(rows), Err: err}
		}

		if err := w.writeEdges(ctx, tx, tbl, key, row); err != nil {
			_ = tx.Rollback()
			return &WriteError{Table: tbl.Name, Rows: len(rows), Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &WriteError{Table: tbl.Name, Rows: len(rows), Err: err}
	}
	return nil
}

func (w *GraphWriter) writeEdges(ctx context.Context, tx *sql.Tx, tbl *manifest.Table, srcKey string, row Row) error {
	for _, rel := range tbl.Relationships {
		val, ok := row[rel.SourceColumn]
		if !ok || val == nil {
			continue
		}

		targets := []any{val}
		if rel.Cardinality == manifest.ManyToMany {
			targets, _ = val.([]any)
		}

		relName := rel.Name
		if relName == "" {
			relName = rel.SourceColumn
		}

		for _, dst := range targets {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO edges (rel, src_tbl, src_key, dst_tbl, dst_key) VALUES (?, ?, ?, ?, ?)
				 ON CONFLICT (rel, src_tbl, src_key, dst_tbl, dst_key) DO NOTHING`,
				relName, tbl.Name, srcKey, rel.TargetTable, coerce.KeyString(dst))
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// marshalProps serializes a row's scalar values as the node's property
// document. Timestamps render as RFC 3339 so properties stay queryable
// as JSON.
func marshalProps(tbl *manifest.Table, row Row) (string, error) {
	props := make(map[string]any, len(row))
	for _, col := range tbl.Columns {
		v, ok := row[col.Name]
		if !ok {
			continue
		}
		if ts, isTime := v.(time.Time); isTime {
			v = ts.UTC().Format(time.RFC3339)
		}
		props[col.Name] = v
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("failed to serialize node properties: %w", err)
	}
	return string(data), nil
}

func (w *GraphWriter) Close() error {
	return w.db.Close()
}

var _ Writer = (*GraphWriter)(nil)
