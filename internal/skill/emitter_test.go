package skill

import (
	"strings"
	"testing"

	"github.com/leapstack-labs/kbforge/internal/loader"
	"github.com/leapstack-labs/kbforge/internal/manifest"
	"github.com/leapstack-labs/kbforge/internal/schema"
)

func worldGraph(t *testing.T) *schema.Graph {
	t.Helper()
	g, err := schema.Validate(&manifest.Project{
		Name: "world",
		Tables: []manifest.Table{
			{
				Name:        "city",
				Description: "Cities with their host country.",
				Columns: []manifest.Column{
					{Name: "id", Type: manifest.TypeInteger, Key: true},
					{Name: "name", Type: manifest.TypeText},
					{Name: "country_code", Type: manifest.TypeReference},
				},
				Relationships: []manifest.Relationship{{
					Name: "located_in", SourceColumn: "country_code",
					TargetTable: "country", TargetColumn: "code",
					Cardinality: manifest.OneToMany,
				}},
			},
			{
				Name: "country",
				Columns: []manifest.Column{
					{Name: "code", Type: manifest.TypeText, Key: true},
					{Name: "name", Type: manifest.TypeText},
				},
			},
			{
				Name: "river",
				Columns: []manifest.Column{
					{Name: "name", Type: manifest.TypeText, Key: true},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	return g
}

func TestRender(t *testing.T) {
	out := Render(worldGraph(t), nil)

	if !strings.HasPrefix(out, "# world — query guide") {
		t.Errorf("missing title, got %q", out[:40])
	}

	// Dependency order: country's section must precede city's.
	if strings.Index(out, "### country") > strings.Index(out, "### city") {
		t.Error("tables should render in dependency order")
	}

	for _, want := range []string{
		"Cities with their host country.",
		"references country.code (one_to_many)",
		"**located_in**: city.country_code → country.code",
		"Point lookups on `city` by (id)",
		"Join `city.country_code` to `country.code`",
		"`river` is standalone",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}

	if strings.Contains(out, "## Load statistics") {
		t.Error("load statistics must only render with a report")
	}
}

func TestRender_ManyToMany(t *testing.T) {
	g, err := schema.Validate(&manifest.Project{
		Name: "world",
		Tables: []manifest.Table{
			{
				Name: "trade_bloc",
				Columns: []manifest.Column{
					{Name: "name", Type: manifest.TypeText, Key: true},
					{Name: "members", Type: manifest.TypeReference},
				},
				Relationships: []manifest.Relationship{{
					Name: "member_of", SourceColumn: "members",
					TargetTable: "country", TargetColumn: "code",
					Cardinality: manifest.ManyToMany,
				}},
			},
			{
				Name:    "country",
				Columns: []manifest.Column{{Name: "code", Type: manifest.TypeText, Key: true}},
			},
		},
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	out := Render(g, nil)
	if !strings.Contains(out, "`trade_bloc_member_of` join table") {
		t.Errorf("many-to-many pattern should name the join table, got:\n%s", out)
	}
	if !strings.Contains(out, "`member_of` edges") {
		t.Error("many-to-many pattern should name the edge type")
	}
}

func TestRender_WithReport(t *testing.T) {
	rep := &loader.Report{
		RunID:   "run-1",
		Project: "world",
		State:   loader.StateDone,
		Tables: []loader.TableReport{
			{Table: "country", Sources: 1, Attempted: 2, Written: 2},
			{Table: "city", Sources: 1, Attempted: 3, Written: 2, Rejected: 1},
		},
	}

	out := Render(worldGraph(t), rep)
	if !strings.Contains(out, "## Load statistics") {
		t.Fatal("expected load statistics section")
	}
	if !strings.Contains(out, "outcome **partial**") {
		t.Errorf("expected partial outcome in stats, got:\n%s", out)
	}
	if !strings.Contains(out, "| city | 3 | 2 | 1 |") {
		t.Error("expected the city stats row")
	}
}
