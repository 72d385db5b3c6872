package writer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/kbforge/internal/manifest"
	"github.com/leapstack-labs/kbforge/internal/schema"
)

// Relational writes rows into a SQL database. Reference columns become
// foreign key columns typed after their relationship target; one
// many-to-many relationship becomes one join table keyed by both sides.
type Relational struct {
	db      *sql.DB
	backend string
	logger  *slog.Logger
	plans   map[string]*tablePlan
}

// tablePlan is the physical layout derived for one table during Setup.
type tablePlan struct {
	columns []manifest.Column // scalar columns, many-to-many excluded
	keys    []string
	joins   []joinPlan
}

// joinPlan is the join table backing one many-to-many relationship.
type joinPlan struct {
	column string // source column holding the key list
	table  string // join table name
	rel    manifest.Relationship
}

// NewRelational wraps an open database handle. backend selects SQL
// placeholder style: "postgres" uses $n, everything else uses ?.
func NewRelational(db *sql.DB, backend string, logger *slog.Logger) *Relational {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Relational{db: db, backend: backend, logger: logger, plans: map[string]*tablePlan{}}
}

func (w *Relational) placeholder(n int) string {
	if w.backend == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Setup creates every table in load order so foreign key targets exist
// before their referents.
func (w *Relational) Setup(ctx context.Context, g *schema.Graph) error {
	for _, name := range g.LoadOrder {
		tbl := g.Table(name)
		plan := buildPlan(g, tbl)
		w.plans[name] = plan

		ddl := w.createTableSQL(g, tbl, plan)
		w.logger.Debug("ensuring table", "table", name)
		if _, err := w.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create table %q: %w", name, err)
		}

		for _, join := range plan.joins {
			ddl := w.createJoinTableSQL(g, join)
			w.logger.Debug("ensuring join table", "table", join.table)
			if _, err := w.db.ExecContext(ctx, ddl); err != nil {
				return fmt.Errorf("failed to create join table %q: %w", join.table, err)
			}
		}
	}
	return nil
}

func buildPlan(g *schema.Graph, tbl *manifest.Table) *tablePlan {
	plan := &tablePlan{keys: tbl.KeyColumns()}
	for _, col := range tbl.Columns {
		if rel := tbl.Relationship(col.Name); rel != nil && rel.Cardinality == manifest.ManyToMany {
			plan.joins = append(plan.joins, joinPlan{
				column: col.Name,
				table:  joinTableName(tbl.Name, *rel),
				rel:    *rel,
			})
			continue
		}
		plan.columns = append(plan.columns, col)
	}
	return plan
}

func joinTableName(table string, rel manifest.Relationship) string {
	if rel.Name != "" {
		return table + "_" + rel.Name
	}
	return table + "_" + rel.TargetTable
}

// physicalType maps a declared column type to the backend column type.
// Reference columns take the physical type of their relationship target,
// which validation guarantees is a concrete type.
func physicalType(g *schema.Graph, tbl *manifest.Table, col manifest.Column) string {
	t := col.Type
	if t == manifest.TypeReference {
		if rel := tbl.Relationship(col.Name); rel != nil {
			if target := g.Table(rel.TargetTable); target != nil {
				if next := target.Column(rel.TargetColumn); next != nil {
					t = next.Type
				}
			}
		}
	}

	switch t {
	case manifest.TypeInteger:
		return "BIGINT"
	case manifest.TypeFloat:
		return "DOUBLE PRECISION"
	case manifest.TypeBoolean:
		return "BOOLEAN"
	case manifest.TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func (w *Relational) createTableSQL(g *schema.Graph, tbl *manifest.Table, plan *tablePlan) string {
	var defs []string
	for _, col := range plan.columns {
		def := quoteIdent(col.Name) + " " + physicalType(g, tbl, col)
		if !col.Nullable {
			def += " NOT NULL"
		}
		if rel := tbl.Relationship(col.Name); rel != nil && rel.Cardinality != manifest.ManyToMany {
			// Emit a real FK constraint only when the target column is
			// the target table's sole key, otherwise the backend would
			// reject the constraint.
			target := g.Table(rel.TargetTable)
			if target != nil {
				keys := target.KeyColumns()
				if len(keys) == 1 && keys[0] == rel.TargetColumn {
					def += fmt.Sprintf(" REFERENCES %s (%s)", quoteIdent(rel.TargetTable), quoteIdent(rel.TargetColumn))
				}
			}
		}
		defs = append(defs, def)
	}
	if len(plan.keys) > 0 {
		defs = append(defs, "PRIMARY KEY ("+quoteJoin(plan.keys)+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(tbl.Name), strings.Join(defs, ", "))
}

func (w *Relational) createJoinTableSQL(g *schema.Graph, join joinPlan) string {
	target := g.Table(join.rel.TargetTable)
	dstType := "TEXT"
	if target != nil {
		if col := target.Column(join.rel.TargetColumn); col != nil {
			dstType = physicalType(g, target, *col)
		}
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (src_key TEXT NOT NULL, dst %s NOT NULL, PRIMARY KEY (src_key, dst))",
		quoteIdent(join.table), dstType,
	)
}

// WriteBatch writes one batch inside a transaction. A failure rolls the
// batch back and is reported as a WriteError; rows from other batches
// are unaffected.
func (w *Relational) WriteBatch(ctx context.Context, tbl *manifest.Table, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	plan, ok := w.plans[tbl.Name]
	if !ok {
		return &WriteError{Table: tbl.Name, Rows: len(rows), Err: fmt.Errorf("writer not set up for table")}
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return &WriteError{Table: tbl.Name, Rows: len(rows), Err: err}
	}

	upsert := w.upsertSQL(tbl.Name, plan)
	for _, row := range rows {
		args := make([]any, len(plan.columns))
		for i, col := range plan.columns {
			args[i] = row[col.Name]
		}
		if _, err := tx.ExecContext(ctx, upsert, args...); err != nil {
			_ = tx.Rollback()
			return &WriteError{Table: tbl.Name, Rows: len(rows), Err: err}
		}

		for _, join := range plan.joins {
			if err := w.writeJoinRows(ctx, tx, tbl, join, row); err != nil {
				_ = tx.Rollback()
				return &WriteError{Table: tbl.Name, Rows: len(rows), Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &WriteError{Table: tbl.Name, Rows: len(rows), Err: err}
	}
	return nil
}

func (w *Relational) upsertSQL(table string, plan *tablePlan) string {
	names := make([]string, len(plan.columns))
	holders := make([]string, len(plan.columns))
	for i, col := range plan.columns {
		names[i] = quoteIdent(col.Name)
		holders[i] = w.placeholder(i + 1)
	}

	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(names, ", "), strings.Join(holders, ", "))

	if len(plan.keys) == 0 {
		return sqlStr
	}

	keySet := map[string]bool{}
	for _, k := range plan.keys {
		keySet[k] = true
	}
	var updates []string
	for _, col := range plan.columns {
		if !keySet[col.Name] {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", quoteIdent(col.Name), quoteIdent(col.Name)))
		}
	}

	if len(updates) == 0 {
		return sqlStr + fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", quoteJoin(plan.keys))
	}
	return sqlStr + fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", quoteJoin(plan.keys), strings.Join(updates, ", "))
}

func (w *Relational) writeJoinRows(ctx context.Context, tx *sql.Tx, tbl *manifest.Table, join joinPlan, row Row) error {
	keys, _ := row[join.column].([]any)
	if len(keys) == 0 {
		return nil
	}
	srcKey := rowKey(tbl, row)

	insert := fmt.Sprintf("INSERT INTO %s (src_key, dst) VALUES (%s, %s) ON CONFLICT (src_key, dst) DO NOTHING",
		quoteIdent(join.table), w.placeholder(1), w.placeholder(2))
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, insert, srcKey, k); err != nil {
			return err
		}
	}
	return nil
}

func (w *Relational) Close() error {
	return w.db.Close()
}

func quoteJoin(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

var _ Writer = (*Relational)(nil)
