package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/leapstack-labs/kbforge/internal/manifest"
)

func keyCol(name string, typ manifest.ColumnType) manifest.Column {
	return manifest.Column{Name: name, Type: typ, Key: true}
}

func fileSource(path string) manifest.Source {
	return manifest.Source{Kind: manifest.SourceFile, Options: map[string]any{"path": path}}
}

// worldProject builds the canonical country/city project used across the
// validator tests.
func worldProject() *manifest.Project {
	return &manifest.Project{
		Name: "world",
		Tables: []manifest.Table{
			{
				Name: "city",
				Columns: []manifest.Column{
					keyCol("id", manifest.TypeInteger),
					{Name: "name", Type: manifest.TypeText},
					{Name: "country_code", Type: manifest.TypeReference},
				},
				Relationships: []manifest.Relationship{{
					Name: "located_in", SourceColumn: "country_code",
					TargetTable: "country", TargetColumn: "code",
					Cardinality: manifest.OneToMany,
				}},
				Sources: []manifest.Source{fileSource("cities.csv")},
			},
			{
				Name: "country",
				Columns: []manifest.Column{
					keyCol("code", manifest.TypeText),
					{Name: "name", Type: manifest.TypeText},
				},
				Sources: []manifest.Source{fileSource("countries.csv")},
			},
		},
	}
}

func validationErrors(t *testing.T, err error) ValidationErrors {
	t.Helper()
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T: %v", err, err)
	}
	return verrs
}

func TestValidate_ValidProject(t *testing.T) {
	g, err := Validate(worldProject())
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	// country must load before city regardless of declaration order.
	want := []string{"country", "city"}
	if len(g.LoadOrder) != 2 || g.LoadOrder[0] != want[0] || g.LoadOrder[1] != want[1] {
		t.Errorf("unexpected load order: %v", g.LoadOrder)
	}
	if len(g.Levels) != 2 {
		t.Fatalf("expected 2 levels, got %v", g.Levels)
	}

	refs := g.Inbound("country")
	if len(refs) != 1 || refs[0].Table != "city" {
		t.Errorf("unexpected inbound references: %+v", refs)
	}
	cols := g.ReferencedColumns("country")
	if len(cols) != 1 || cols[0] != "code" {
		t.Errorf("unexpected referenced columns: %v", cols)
	}
}

func TestValidate_DuplicateNames(t *testing.T) {
	p := worldProject()
	p.Tables = append(p.Tables, manifest.Table{Name: "country", Columns: []manifest.Column{keyCol("code", manifest.TypeText)}})
	p.Tables[0].Columns = append(p.Tables[0].Columns, manifest.Column{Name: "name", Type: manifest.TypeText})

	verrs := validationErrors(t, mustFail(t, p))
	if len(verrs) != 2 {
		t.Fatalf("expected both uniqueness failures collected, got %v", verrs)
	}
	for _, e := range verrs {
		if e.Check != CheckUniqueness {
			t.Errorf("expected uniqueness check, got %q", e.Check)
		}
	}
}

func TestValidate_StopsAtFirstFailingCategory(t *testing.T) {
	p := worldProject()
	// Uniqueness failure plus a dangling relationship target: only the
	// uniqueness category should be reported.
	p.Tables = append(p.Tables, manifest.Table{Name: "city"})
	p.Tables[0].Relationships[0].TargetTable = "nowhere"

	verrs := validationErrors(t, mustFail(t, p))
	for _, e := range verrs {
		if e.Check != CheckUniqueness {
			t.Errorf("later categories must not run, got %q", e.Check)
		}
	}
}

func TestValidate_ColumnTypes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *manifest.Project)
		detail string
	}{
		{
			"unknown column type",
			func(p *manifest.Project) { p.Tables[1].Columns[1].Type = "varchar" },
			"unknown type",
		},
		{
			"reference without relationship",
			func(p *manifest.Project) { p.Tables[0].Relationships = nil },
			"exactly one relationship",
		},
		{
			"relationship on non-reference column",
			func(p *manifest.Project) { p.Tables[0].Columns[2].Type = manifest.TypeText },
			"must have type reference",
		},
		{
			"relationship names missing column",
			func(p *manifest.Project) { p.Tables[0].Relationships[0].SourceColumn = "ghost" },
			"does not exist",
		},
		{
			"invalid cardinality",
			func(p *manifest.Project) { p.Tables[0].Relationships[0].Cardinality = "one_to_lots" },
			"unknown cardinality",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := worldProject()
			tt.mutate(p)
			verrs := validationErrors(t, mustFail(t, p))
			if verrs[0].Check != CheckColumnTypes {
				t.Errorf("expected column_types check, got %q", verrs[0].Check)
			}
			if !strings.Contains(verrs[0].Detail, tt.detail) {
				t.Errorf("detail %q does not mention %q", verrs[0].Detail, tt.detail)
			}
		})
	}
}

func TestValidate_ReferentialIntegrity(t *testing.T) {
	p := worldProject()
	p.Tables[0].Relationships[0].TargetColumn = "iso"

	verrs := validationErrors(t, mustFail(t, p))
	if verrs[0].Check != CheckReferences {
		t.Errorf("expected referential_integrity check, got %q", verrs[0].Check)
	}
}

func TestValidate_ReferenceTypedTarget(t *testing.T) {
	p := worldProject()
	p.Tables[1].Columns = append(p.Tables[1].Columns, manifest.Column{Name: "capital", Type: manifest.TypeReference})
	p.Tables[1].Relationships = []manifest.Relationship{{
		Name: "capital_city", SourceColumn: "capital",
		TargetTable: "city", TargetColumn: "id",
		Cardinality: manifest.OneToOne,
	}}
	p.Tables[0].Relationships[0].TargetColumn = "capital"

	verrs := validationErrors(t, mustFail(t, p))
	if verrs[0].Check != CheckReferences {
		t.Errorf("expected referential_integrity check, got %q", verrs[0].Check)
	}
	if !strings.Contains(verrs[0].Detail, "concrete type") {
		t.Errorf("detail should reject the reference-typed target: %q", verrs[0].Detail)
	}
}

func TestValidate_SourceConfig(t *testing.T) {
	p := worldProject()
	p.Tables[1].Sources[0].Options["compression"] = "gzip"

	verrs := validationErrors(t, mustFail(t, p))
	if verrs[0].Check != CheckSources {
		t.Errorf("expected source_config check, got %q", verrs[0].Check)
	}
	if verrs[0].Table != "country" {
		t.Errorf("expected failure on country, got %q", verrs[0].Table)
	}
}

func TestValidate_SelfReference(t *testing.T) {
	p := worldProject()
	p.Tables[1].Columns = append(p.Tables[1].Columns, manifest.Column{Name: "neighbor", Type: manifest.TypeReference})
	p.Tables[1].Relationships = []manifest.Relationship{{
		Name: "borders", SourceColumn: "neighbor",
		TargetTable: "country", TargetColumn: "code",
		Cardinality: manifest.ManyToMany,
	}}

	verrs := validationErrors(t, mustFail(t, p))
	if verrs[0].Check != CheckAcyclicity {
		t.Errorf("expected acyclicity check, got %q", verrs[0].Check)
	}
	if !strings.Contains(verrs[0].Detail, "country -> country") {
		t.Errorf("cycle detail should name the table twice: %q", verrs[0].Detail)
	}
}

func TestValidate_Cycle(t *testing.T) {
	p := worldProject()
	// country now references city, closing country -> city -> country.
	p.Tables[1].Columns = append(p.Tables[1].Columns, manifest.Column{Name: "capital_id", Type: manifest.TypeReference})
	p.Tables[1].Relationships = []manifest.Relationship{{
		Name: "capital", SourceColumn: "capital_id",
		TargetTable: "city", TargetColumn: "id",
		Cardinality: manifest.OneToOne,
	}}

	verrs := validationErrors(t, mustFail(t, p))
	if verrs[0].Check != CheckAcyclicity {
		t.Fatalf("expected acyclicity check, got %q", verrs[0].Check)
	}
	for _, member := range []string{"city", "country"} {
		if !strings.Contains(verrs[0].Detail, member) {
			t.Errorf("cycle detail %q should name %q", verrs[0].Detail, member)
		}
	}
}

func TestValidate_DeterministicOrder(t *testing.T) {
	p := worldProject()
	// Two independent tables keep their declaration order.
	p.Tables = append(p.Tables,
		manifest.Table{Name: "airport", Columns: []manifest.Column{keyCol("iata", manifest.TypeText)}},
		manifest.Table{Name: "river", Columns: []manifest.Column{keyCol("name", manifest.TypeText)}},
	)

	var first []string
	for i := 0; i < 5; i++ {
		g, err := Validate(p)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if first == nil {
			first = g.LoadOrder
			continue
		}
		for j := range first {
			if g.LoadOrder[j] != first[j] {
				t.Fatalf("load order changed between runs: %v vs %v", first, g.LoadOrder)
			}
		}
	}

	// airport declared before river, both unconstrained.
	idx := map[string]int{}
	for i, name := range first {
		idx[name] = i
	}
	if idx["airport"] > idx["river"] {
		t.Errorf("declaration order not respected for ties: %v", first)
	}
}

func mustFail(t *testing.T, p *manifest.Project) error {
	t.Helper()
	_, err := Validate(p)
	if err == nil {
		t.Fatal("expected validation to fail")
	}
	return err
}
