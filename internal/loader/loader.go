// Package loader drives the load pipeline: it validates the project
// model, pulls raw records from each table's sources in dependency
// order, coerces values into the declared column types, and hands typed
// rows to the database writer in batches. Failures are caught at the
// smallest scope — record, batch, or source — and folded into the load
// report so one bad row never aborts sibling work.
package loader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/kbforge/internal/coerce"
	"github.com/leapstack-labs/kbforge/internal/manifest"
	"github.com/leapstack-labs/kbforge/internal/schema"
	"github.com/leapstack-labs/kbforge/internal/source"
	"github.com/leapstack-labs/kbforge/internal/writer"
)

// ConnectorFactory constructs the connector for a declared source. The
// hosting CLI supplies it, keeping connector wiring a composition
// concern.
type ConnectorFactory func(src manifest.Source) (source.Connector, error)

// EmitFunc emits the skill artifact after loading. It runs during the
// Emitting state; a failure is recorded but does not change the load's
// per-table outcomes.
type EmitFunc func(ctx context.Context, g *schema.Graph, rep *Report) error

// Config wires an orchestrator.
type Config struct {
	Logger       *slog.Logger
	NewConnector ConnectorFactory
	Writer       writer.Writer

	// BatchSize bounds the rows buffered before a flush to the writer.
	// Zero or negative means one batch per source.
	BatchSize int

	// Emit is optional; nil skips the Emitting state's work.
	Emit EmitFunc
}

// Orchestrator runs the load pipeline for one project.
type Orchestrator struct {
	logger       *slog.Logger
	newConnector ConnectorFactory
	writer       writer.Writer
	batchSize    int
	emit         EmitFunc
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	newConnector := cfg.NewConnector
	if newConnector == nil {
		newConnector = func(src manifest.Source) (source.Connector, error) {
			return source.New(src, ".", logger)
		}
	}
	return &Orchestrator{
		logger:       logger,
		newConnector: newConnector,
		writer:       cfg.Writer,
		batchSize:    cfg.BatchSize,
		emit:         cfg.Emit,
	}
}

// Run executes the full pipeline and returns the load report. The
// returned error is non-nil only for fatal conditions: validation
// failure, writer setup failure, or cancellation. Per-row and per-source
// failures live in the report.
func (o *Orchestrator) Run(ctx context.Context, p *manifest.Project) (*Report, error) {
	rep := &Report{
		RunID:     uuid.New().String(),
		Project:   p.Name,
		State:     StateValidating,
		StartedAt: time.Now().UTC(),
	}

	o.logger.Info("starting load", "run_id", rep.RunID, "project", p.Name)

	g, err := schema.Validate(p)
	if err != nil {
		rep.State = StateFailed
		rep.Error = err.Error()
		rep.CompletedAt = time.Now().UTC()
		o.logger.Error("validation failed", "run_id", rep.RunID, "error", err)
		return rep, err
	}

	if err := o.writer.Setup(ctx, g); err != nil {
		rep.State = StateFailed
		rep.Error = err.Error()
		rep.CompletedAt = time.Now().UTC()
		return rep, err
	}

	rep.State = StateLoading
	rep.Tables = make([]TableReport, len(g.LoadOrder))
	slot := make(map[string]int, len(g.LoadOrder))
	for i, name := range g.LoadOrder {
		slot[name] = i
	}

	keys := newKeyRegistry(g)

	// Tables at the same dependency level have no must-load-before edge
	// between them and load in parallel. Each table writes only its own
	// report slot, so slots never see concurrent writers.
	var runErr error
	for _, level := range g.Levels {
		eg, egCtx := errgroup.WithContext(ctx)
		for _, name := range level {
			tbl := g.Table(name)
			idx := slot[name]
			eg.Go(func() error {
				rep.Tables[idx] = o.loadTable(egCtx, g, tbl, keys)
				return egCtx.Err()
			})
		}
		if err := eg.Wait(); err != nil {
			// Cancelled mid-run. Written batches stay valid; the report
			// covers what completed.
			runErr = err
			rep.Error = err.Error()
			break
		}
	}

	rep.State = StateEmitting
	if o.emit != nil && runErr == nil {
		if err := o.emit(ctx, g, rep); err != nil {
			o.logger.Error("skill emission failed", "run_id", rep.RunID, "error", err)
			rep.Error = err.Error()
		}
	}

	rep.State = StateDone
	rep.CompletedAt = time.Now().UTC()
	o.logger.Info("load finished", "run_id", rep.RunID, "outcome", string(rep.Outcome()),
		"written", rep.TotalWritten(), "rejected", rep.TotalRejected())

	return rep, runErr
}

// loadTable loads every source of one table, in declaration order, and
// returns the table's report slot.
func (o *Orchestrator) loadTable(ctx context.Context, g *schema.Graph, tbl *manifest.Table, keys *keyRegistry) TableReport {
	tr := TableReport{
		Table:   tbl.Name,
		Sources: len(tbl.Sources),
		Reasons: make(map[string]int),
	}

	if len(tbl.Sources) == 0 {
		tr.Skipped = true
		o.logger.Debug("skipping table with no sources", "table", tbl.Name)
		return tr
	}

	tracked := keys.tracked(tbl.Name)

	for _, src := range tbl.Sources {
		o.loadSource(ctx, g, tbl, src, keys, tracked, &tr)
		if ctx.Err() != nil {
			break
		}
	}

	o.logger.Info("table loaded", "table", tbl.Name,
		"attempted", tr.Attempted, "written", tr.Written, "rejected", tr.Rejected,
		"source_failures", len(tr.SourceFailures))
	return tr
}

func (o *Orchestrator) loadSource(ctx context.Context, g *schema.Graph, tbl *manifest.Table, src manifest.Source, keys *keyRegistry, tracked []string, tr *TableReport) {
	conn, err := o.newConnector(src)
	if err != nil {
		tr.SourceFailures = append(tr.SourceFailures, SourceFailure{Source: src.Name, Reason: err.Error()})
		return
	}

	it, err := conn.Open(ctx, tbl)
	if err != nil {
		o.logger.Warn("source unreachable", "table", tbl.Name, "source", src.Name, "error", err)
		tr.SourceFailures = append(tr.SourceFailures, SourceFailure{Source: src.Name, Reason: err.Error()})
		return
	}
	defer func() { _ = it.Close() }()

	var batch []writer.Row
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := o.writer.WriteBatch(ctx, tbl, batch); err != nil {
			o.logger.Warn("batch rejected", "table", tbl.Name, "source", src.Name, "rows", len(batch), "error", err)
			tr.Rejected += len(batch)
			tr.Reasons[ReasonWrite] += len(batch)
		} else {
			tr.Written += len(batch)
			for _, row := range batch {
				for _, col := range tracked {
					keys.add(tbl.Name, col, coerce.KeyString(row[col]))
				}
			}
		}
		batch = batch[:0]
	}

	for {
		if ctx.Err() != nil {
			// Stop pulling promptly on cancellation. The pending batch is
			// dropped, not written; completed batches stay valid.
			return
		}

		rec, err := it.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var formatErr *source.FormatError
			if errors.As(err, &formatErr) {
				tr.Attempted++
				tr.Rejected++
				tr.Reasons[ReasonFormat]++
				o.logger.Debug("malformed record rejected", "table", tbl.Name, "source", src.Name, "error", err)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			// The stream itself broke; skip the rest of this source.
			tr.SourceFailures = append(tr.SourceFailures, SourceFailure{Source: src.Name, Reason: err.Error()})
			break
		}

		tr.Attempted++
		row, cerr := o.coerceRecord(g, tbl, rec, keys)
		if cerr != nil {
			tr.Rejected++
			var ce *coerce.Error
			if errors.As(cerr, &ce) {
				tr.Reasons[string(ce.Kind)]++
			} else {
				tr.Reasons[string(coerce.KindType)]++
			}
			o.logger.Debug("record rejected", "table", tbl.Name, "source", src.Name, "error", cerr)
			continue
		}

		batch = append(batch, row)
		if o.batchSize > 0 && len(batch) >= o.batchSize {
			flush()
		}
	}

	flush()
}

// coerceRecord coerces every column of one raw record. A record with any
// coercion failure is rejected whole; the first failure is returned.
func (o *Orchestrator) coerceRecord(g *schema.Graph, tbl *manifest.Table, rec source.Record, keys *keyRegistry) (writer.Row, error) {
	row := make(writer.Row, len(tbl.Columns))
	for _, col := range tbl.Columns {
		raw := rec[col.Name]

		if col.Type != manifest.TypeReference {
			v, err := coerce.Value(col, raw)
			if err != nil {
				return nil, err
			}
			row[col.Name] = v
			continue
		}

		rel := tbl.Relationship(col.Name)
		target := g.Table(rel.TargetTable)
		targetCol := target.Column(rel.TargetColumn)

		if rel.Cardinality == manifest.ManyToMany {
			v, err := o.coerceKeyList(col, *rel, *targetCol, raw, keys)
			if err != nil {
				return nil, err
			}
			row[col.Name] = v
			continue
		}

		v, err := coerce.As(col, targetCol.Type, raw)
		if err != nil {
			return nil, err
		}
		if v != nil && !keys.has(rel.TargetTable, rel.TargetColumn, coerce.KeyString(v)) {
			return nil, coerce.Dangling(col, raw, rel.TargetTable)
		}
		row[col.Name] = v
	}
	return row, nil
}

// coerceKeyList coerces a many-to-many reference value: every element is
// coerced to the target column's type and checked against the target's
// written keys.
func (o *Orchestrator) coerceKeyList(col manifest.Column, rel manifest.Relationship, targetCol manifest.Column, raw any, keys *keyRegistry) ([]any, error) {
	elems := coerce.SplitList(raw)
	if len(elems) == 0 {
		if col.Nullable {
			return nil, nil
		}
		// Reuse the scalar null path so the failure carries the usual shape.
		if _, err := coerce.As(col, targetCol.Type, nil); err != nil {
			return nil, err
		}
		return nil, nil
	}

	typed := make([]any, 0, len(elems))
	for _, elem := range elems {
		v, err := coerce.As(col, targetCol.Type, elem)
		if err != nil {
			return nil, err
		}
		if !keys.has(rel.TargetTable, rel.TargetColumn, coerce.KeyString(v)) {
			return nil, coerce.Dangling(col, elem, rel.TargetTable)
		}
		typed = append(typed, v)
	}
	return typed, nil
}
