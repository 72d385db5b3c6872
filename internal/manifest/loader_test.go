package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleManifest = `name: world

tables:
  - name: country
    columns:
      - name: code
        type: text
        key: true
      - name: name
        type: text
      - name: population
        type: integer
        nullable: true
    sources:
      - kind: file
        options:
          path: data/countries.csv

  - name: city
    columns:
      - name: id
        type: integer
        key: true
      - name: country_code
        type: reference
    relationships:
      - name: located_in
        source_column: country_code
        target_table: country
        target_column: code
        cardinality: one_to_many
    sources:
      - kind: http
        options:
          url: https://example.com/cities.json
`

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, ManifestFileName, sampleManifest)

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if p.Name != "world" {
		t.Errorf("expected project name %q, got %q", "world", p.Name)
	}
	if len(p.Tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(p.Tables))
	}

	country := p.Tables[0]
	if country.Name != "country" {
		t.Errorf("expected first table country, got %q", country.Name)
	}
	if !country.Columns[0].Key {
		t.Error("country.code should be a key column")
	}
	if !country.Columns[2].Nullable {
		t.Error("country.population should be nullable")
	}
	if country.Sources[0].Kind != SourceFile {
		t.Errorf("expected file source, got %q", country.Sources[0].Kind)
	}
	if got := country.Sources[0].Options["path"]; got != "data/countries.csv" {
		t.Errorf("unexpected source path: %v", got)
	}

	city := p.Tables[1]
	if len(city.Relationships) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(city.Relationships))
	}
	rel := city.Relationships[0]
	if rel.TargetTable != "country" || rel.TargetColumn != "code" {
		t.Errorf("unexpected relationship target: %+v", rel)
	}
	if rel.Cardinality != OneToMany {
		t.Errorf("expected one_to_many, got %q", rel.Cardinality)
	}
	if city.Columns[1].Type != TypeReference {
		t.Errorf("expected reference column, got %q", city.Columns[1].Type)
	}
}

func TestLoad_DefaultsNameToDirectory(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, ManifestFileName, "tables: []\n")

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.Name != filepath.Base(dir) {
		t.Errorf("expected name %q, got %q", filepath.Base(dir), p.Name)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, ManifestFileNameAlt, sampleManifest)

	p, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if p.Name != "world" {
		t.Errorf("expected project name %q, got %q", "world", p.Name)
	}
}

func TestLoadDir_NoManifest(t *testing.T) {
	if _, err := LoadDir(t.TempDir()); err == nil {
		t.Error("expected an error for a directory without a manifest")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, ManifestFileName, "tables: [unclosed\n")

	if _, err := Load(path); err == nil {
		t.Error("expected an error for malformed YAML")
	}
}

func TestTableHelpers(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, ManifestFileName, sampleManifest)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	city := &p.Tables[1]
	if col := city.Column("country_code"); col == nil || col.Type != TypeReference {
		t.Errorf("Column lookup failed: %+v", col)
	}
	if col := city.Column("nope"); col != nil {
		t.Errorf("expected nil for unknown column, got %+v", col)
	}
	if rel := city.Relationship("country_code"); rel == nil || rel.Name != "located_in" {
		t.Errorf("Relationship lookup failed: %+v", rel)
	}

	keys := p.Tables[0].KeyColumns()
	if len(keys) != 1 || keys[0] != "code" {
		t.Errorf("unexpected key columns: %+v", keys)
	}
}
