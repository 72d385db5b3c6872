package schema

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/kbforge/internal/dag"
	"github.com/leapstack-labs/kbforge/internal/manifest"
	"github.com/leapstack-labs/kbforge/internal/source"
)

// Validation categories, in the order they run. Validation stops at the
// first category with any failures, after collecting every failure
// within that category.
const (
	CheckUniqueness  = "uniqueness"
	CheckColumnTypes = "column_types"
	CheckReferences  = "referential_integrity"
	CheckSources     = "source_config"
	CheckAcyclicity  = "acyclicity"
)

// Validate checks the project model and returns the schema graph, or the
// full set of validation errors for the first failing category.
func Validate(p *manifest.Project) (*Graph, error) {
	checks := []func(*manifest.Project) ValidationErrors{
		checkUniqueness,
		checkColumnTypes,
		checkReferences,
		checkSources,
	}
	for _, check := range checks {
		if errs := check(p); len(errs) > 0 {
			return nil, errs
		}
	}
	return buildGraph(p)
}

func checkUniqueness(p *manifest.Project) ValidationErrors {
	var errs ValidationErrors

	seenTables := map[string]bool{}
	for _, tbl := range p.Tables {
		if tbl.Name == "" {
			errs = append(errs, &ValidationError{Check: CheckUniqueness, Detail: "table with empty name"})
			continue
		}
		if seenTables[tbl.Name] {
			errs = append(errs, &ValidationError{Check: CheckUniqueness, Table: tbl.Name, Detail: "duplicate table name"})
		}
		seenTables[tbl.Name] = true

		seenCols := map[string]bool{}
		for _, col := range tbl.Columns {
			if col.Name == "" {
				errs = append(errs, &ValidationError{Check: CheckUniqueness, Table: tbl.Name, Detail: "column with empty name"})
				continue
			}
			if seenCols[col.Name] {
				errs = append(errs, &ValidationError{
					Check: CheckUniqueness, Table: tbl.Name,
					Detail: fmt.Sprintf("duplicate column name %q", col.Name),
				})
			}
			seenCols[col.Name] = true
		}
	}

	return errs
}

func checkColumnTypes(p *manifest.Project) ValidationErrors {
	var errs ValidationErrors

	for _, tbl := range p.Tables {
		for _, col := range tbl.Columns {
			if !col.Type.IsValid() {
				errs = append(errs, &ValidationError{
					Check: CheckColumnTypes, Table: tbl.Name,
					Detail: fmt.Sprintf("column %q has unknown type %q", col.Name, col.Type),
				})
				continue
			}

			owners := 0
			for _, rel := range tbl.Relationships {
				if rel.SourceColumn == col.Name {
					owners++
				}
			}
			if col.Type == manifest.TypeReference && owners != 1 {
				errs = append(errs, &ValidationError{
					Check: CheckColumnTypes, Table: tbl.Name,
					Detail: fmt.Sprintf("reference column %q must be the source of exactly one relationship, found %d", col.Name, owners),
				})
			}
		}

		for _, rel := range tbl.Relationships {
			src := tbl.Column(rel.SourceColumn)
			if src == nil {
				errs = append(errs, &ValidationError{
					Check: CheckColumnTypes, Table: tbl.Name,
					Detail: fmt.Sprintf("relationship %q names source column %q which does not exist", rel.Name, rel.SourceColumn),
				})
			} else if src.Type != manifest.TypeReference {
				errs = append(errs, &ValidationError{
					Check: CheckColumnTypes, Table: tbl.Name,
					Detail: fmt.Sprintf("relationship %q source column %q must have type reference, has %q", rel.Name, rel.SourceColumn, src.Type),
				})
			}
			if !rel.Cardinality.IsValid() {
				errs = append(errs, &ValidationError{
					Check: CheckColumnTypes, Table: tbl.Name,
					Detail: fmt.Sprintf("relationship %q has unknown cardinality %q", rel.Name, rel.Cardinality),
				})
			}
		}
	}

	return errs
}

func checkReferences(p *manifest.Project) ValidationErrors {
	var errs ValidationErrors

	tables := map[string]*manifest.Table{}
	for i := range p.Tables {
		tables[p.Tables[i].Name] = &p.Tables[i]
	}

	for _, tbl := range p.Tables {
		for _, rel := range tbl.Relationships {
			target, ok := tables[rel.TargetTable]
			if !ok {
				errs = append(errs, &ValidationError{
					Check: CheckReferences, Table: tbl.Name,
					Detail: fmt.Sprintf("relationship %q targets unknown table %q", rel.Name, rel.TargetTable),
				})
				continue
			}
			targetCol := target.Column(rel.TargetColumn)
			if targetCol == nil {
				errs = append(errs, &ValidationError{
					Check: CheckReferences, Table: tbl.Name,
					Detail: fmt.Sprintf("relationship %q targets unknown column %q.%q", rel.Name, rel.TargetTable, rel.TargetColumn),
				})
				continue
			}
			// Reference values coerce to the target column's type, so the
			// target must hold concrete values, not another reference.
			if targetCol.Type == manifest.TypeReference {
				errs = append(errs, &ValidationError{
					Check: CheckReferences, Table: tbl.Name,
					Detail: fmt.Sprintf("relationship %q targets reference column %q.%q; targets must have a concrete type", rel.Name, rel.TargetTable, rel.TargetColumn),
				})
			}
		}
	}

	return errs
}

func checkSources(p *manifest.Project) ValidationErrors {
	var errs ValidationErrors

	for _, tbl := range p.Tables {
		for _, src := range tbl.Sources {
			if err := source.ValidateOptions(src); err != nil {
				errs = append(errs, &ValidationError{
					Check: CheckSources, Table: tbl.Name,
					Detail: err.Error(),
				})
			}
		}
	}

	return errs
}

// buildGraph computes the must-load-before order. Every relationship
// needs the target's keys written before the source's rows are checked
// against them, so each relationship contributes one edge: target table
// before source table.
func buildGraph(p *manifest.Project) (*Graph, error) {
	g := dag.New()
	for _, tbl := range p.Tables {
		g.AddNode(tbl.Name)
	}

	inbound := map[string][]Reference{}
	for _, tbl := range p.Tables {
		for _, rel := range tbl.Relationships {
			inbound[rel.TargetTable] = append(inbound[rel.TargetTable], Reference{Table: tbl.Name, Relationship: rel})
			if rel.TargetTable == tbl.Name {
				return nil, ValidationErrors{{
					Check: CheckAcyclicity, Table: tbl.Name,
					Detail: fmt.Sprintf("dependency cycle: %s -> %s", tbl.Name, tbl.Name),
				}}
			}
			if err := g.AddEdge(rel.TargetTable, tbl.Name); err != nil {
				return nil, ValidationErrors{{
					Check: CheckAcyclicity, Table: tbl.Name,
					Detail: err.Error(),
				}}
			}
		}
	}

	if cycle := g.FindCycle(); cycle != nil {
		return nil, ValidationErrors{{
			Check:  CheckAcyclicity,
			Detail: fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")),
		}}
	}

	order, err := g.TopoSort()
	if err != nil {
		return nil, ValidationErrors{{Check: CheckAcyclicity, Detail: err.Error()}}
	}
	levels, err := g.Levels()
	if err != nil {
		return nil, ValidationErrors{{Check: CheckAcyclicity, Detail: err.Error()}}
	}

	tables := map[string]*manifest.Table{}
	for i := range p.Tables {
		tables[p.Tables[i].Name] = &p.Tables[i]
	}

	return &Graph{
		Project:   p,
		LoadOrder: order,
		Levels:    levels,
		tables:    tables,
		inbound:   inbound,
	}, nil
}
