// Package skill derives the query-guide artifact from a validated schema
// graph: a markdown document enumerating tables, columns, relationships,
// and the query patterns the materialized database answers efficiently.
// Rendering is a pure function; the caller writes the artifact out.
package skill

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/kbforge/internal/loader"
	"github.com/leapstack-labs/kbforge/internal/manifest"
	"github.com/leapstack-labs/kbforge/internal/schema"
)

// Render produces the skill artifact for a schema graph. rep is
// optional; when present, per-table load statistics are appended.
func Render(g *schema.Graph, rep *loader.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s — query guide\n\n", g.Project.Name)
	b.WriteString("This database was materialized by kbforge from a declarative manifest.\n")
	b.WriteString("Tables below are listed in dependency order: a table's relationship\n")
	b.WriteString("targets always appear before it.\n\n")

	b.WriteString("## Tables\n\n")
	for _, name := range g.LoadOrder {
		renderTable(&b, g, g.Table(name))
	}

	b.WriteString("## Relationships\n\n")
	renderRelationships(&b, g)

	b.WriteString("## Query patterns\n\n")
	renderPatterns(&b, g)

	if rep != nil {
		b.WriteString("## Load statistics\n\n")
		renderStats(&b, rep)
	}

	return b.String()
}

func renderTable(b *strings.Builder, g *schema.Graph, tbl *manifest.Table) {
	fmt.Fprintf(b, "### %s\n\n", tbl.Name)
	if tbl.Description != "" {
		fmt.Fprintf(b, "%s\n\n", tbl.Description)
	}

	b.WriteString("| Column | Type | Nullable | Notes |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, col := range tbl.Columns {
		var notes []string
		if col.Key {
			notes = append(notes, "key")
		}
		if rel := tbl.Relationship(col.Name); rel != nil {
			notes = append(notes, fmt.Sprintf("references %s.%s (%s)", rel.TargetTable, rel.TargetColumn, rel.Cardinality))
		}
		if col.Description != "" {
			notes = append(notes, col.Description)
		}
		fmt.Fprintf(b, "| %s | %s | %v | %s |\n", col.Name, col.Type, col.Nullable, strings.Join(notes, "; "))
	}
	b.WriteString("\n")
}

func renderRelationships(b *strings.Builder, g *schema.Graph) {
	found := false
	for _, name := range g.LoadOrder {
		tbl := g.Table(name)
		for _, rel := range tbl.Relationships {
			found = true
			label := rel.Name
			if label == "" {
				label = rel.SourceColumn
			}
			fmt.Fprintf(b, "- **%s**: %s.%s → %s.%s (%s)\n",
				label, tbl.Name, rel.SourceColumn, rel.TargetTable, rel.TargetColumn, rel.Cardinality)
		}
	}
	if !found {
		b.WriteString("No relationships declared.\n")
	}
	b.WriteString("\n")
}

func renderPatterns(b *strings.Builder, g *schema.Graph) {
	for _, name := range g.LoadOrder {
		tbl := g.Table(name)

		if keys := tbl.KeyColumns(); len(keys) > 0 {
			fmt.Fprintf(b, "- Point lookups on `%s` by (%s) are indexed: rows are upserted by this key.\n",
				tbl.Name, strings.Join(keys, ", "))
		}

		for _, rel := range tbl.Relationships {
			switch rel.Cardinality {
			case manifest.ManyToMany:
				fmt.Fprintf(b, "- Traverse `%s` ↔ `%s` through the %q link; in the relational backend this is the `%s` join table, in the graph backend these are `%s` edges.\n",
					tbl.Name, rel.TargetTable, relLabel(rel), tbl.Name+"_"+relLabel(rel), relLabel(rel))
			default:
				fmt.Fprintf(b, "- Join `%s.%s` to `%s.%s` for %s traversal; the foreign key was verified during load, so the join never dangles.\n",
					tbl.Name, rel.SourceColumn, rel.TargetTable, rel.TargetColumn, rel.Cardinality)
			}
		}
	}

	// Tables nothing references and that reference nothing are plain
	// lookup tables.
	for _, name := range g.LoadOrder {
		tbl := g.Table(name)
		if len(tbl.Relationships) == 0 && len(g.Inbound(name)) == 0 {
			fmt.Fprintf(b, "- `%s` is standalone: filter and scan it directly.\n", name)
		}
	}
	b.WriteString("\n")
}

func relLabel(rel manifest.Relationship) string {
	if rel.Name != "" {
		return rel.Name
	}
	return rel.TargetTable
}

func renderStats(b *strings.Builder, rep *loader.Report) {
	fmt.Fprintf(b, "Run `%s` finished with outcome **%s**.\n\n", rep.RunID, rep.Outcome())
	b.WriteString("| Table | Attempted | Written | Rejected |\n")
	b.WriteString("|---|---|---|---|\n")
	for i := range rep.Tables {
		t := &rep.Tables[i]
		fmt.Fprintf(b, "| %s | %d | %d | %d |\n", t.Table, t.Attempted, t.Written, t.Rejected)
	}
	b.WriteString("\n")
}
