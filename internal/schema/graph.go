// Package schema validates the project model and derives the schema
// graph: the validated model plus a deterministic topological load order
// and a reverse index of inbound relationships. The graph is computed
// once per run and never mutated afterwards, so it is safe to share
// across concurrent table loads.
package schema

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/kbforge/internal/manifest"
)

// Graph is the validated project model with its computed load order.
type Graph struct {
	Project *manifest.Project

	// LoadOrder is a topological order over tables by the
	// must-load-before relation, deterministic for a given manifest.
	LoadOrder []string

	// Levels groups tables by dependency depth; tables within one level
	// have no must-load-before edge between them and may load in
	// parallel.
	Levels [][]string

	tables  map[string]*manifest.Table
	inbound map[string][]Reference
}

// Reference is one inbound relationship: a relationship declared on
// Table that targets the indexed table.
type Reference struct {
	Table        string
	Relationship manifest.Relationship
}

// Table returns the table with the given name, or nil.
func (g *Graph) Table(name string) *manifest.Table {
	return g.tables[name]
}

// Inbound returns the relationships that reference the given table.
func (g *Graph) Inbound(table string) []Reference {
	return g.inbound[table]
}

// ReferencedColumns returns the names of the table's columns that some
// relationship targets. The load orchestrator tracks written key sets
// for exactly these columns.
func (g *Graph) ReferencedColumns(table string) []string {
	seen := map[string]bool{}
	var cols []string
	for _, ref := range g.inbound[table] {
		if !seen[ref.Relationship.TargetColumn] {
			seen[ref.Relationship.TargetColumn] = true
			cols = append(cols, ref.Relationship.TargetColumn)
		}
	}
	return cols
}

// ValidationError is one structural problem found in the project model.
type ValidationError struct {
	Check  string // which validation category failed
	Table  string // affected table, when known
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s: table %q: %s", e.Check, e.Table, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Check, e.Detail)
}

// ValidationErrors is the non-empty error set returned by a failed
// validation. Validation is all-or-nothing: no partial graph exists
// alongside it.
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d validation error(s):\n  %s", len(v), strings.Join(msgs, "\n  "))
}
