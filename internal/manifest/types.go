// Package manifest defines the project model: the deserialized description
// of tables, columns, relationships, and data sources that a kbforge
// project compiles into a materialized database.
package manifest

// ColumnType is the closed set of declared column types.
type ColumnType string

const (
	TypeText      ColumnType = "text"
	TypeInteger   ColumnType = "integer"
	TypeFloat     ColumnType = "float"
	TypeBoolean   ColumnType = "boolean"
	TypeTimestamp ColumnType = "timestamp"
	TypeReference ColumnType = "reference"
)

// ColumnTypes lists every recognized column type.
var ColumnTypes = []ColumnType{
	TypeText, TypeInteger, TypeFloat, TypeBoolean, TypeTimestamp, TypeReference,
}

// IsValid reports whether t is a recognized column type.
func (t ColumnType) IsValid() bool {
	for _, ct := range ColumnTypes {
		if t == ct {
			return true
		}
	}
	return false
}

// Cardinality describes how rows of a relationship's source table relate
// to rows of its target table.
type Cardinality string

const (
	OneToOne   Cardinality = "one_to_one"
	OneToMany  Cardinality = "one_to_many"
	ManyToMany Cardinality = "many_to_many"
)

// IsValid reports whether c is a recognized cardinality.
func (c Cardinality) IsValid() bool {
	switch c {
	case OneToOne, OneToMany, ManyToMany:
		return true
	}
	return false
}

// SourceKind identifies a source connector variant.
type SourceKind string

const (
	// SourceFile reads records from a static CSV file.
	SourceFile SourceKind = "file"
	// SourceHTTP pulls records from a dynamic API returning a JSON array.
	SourceHTTP SourceKind = "http"
	// SourceExec runs a command and parses its stdout as CSV.
	SourceExec SourceKind = "exec"
)

// Project is the root of the project model. It is created by manifest
// deserialization and is immutable after validation.
type Project struct {
	Name   string  `koanf:"name"`
	Tables []Table `koanf:"tables"`
}

// Table declares one target table, its columns, its outbound
// relationships, and the sources that populate it.
type Table struct {
	Name          string         `koanf:"name"`
	Description   string         `koanf:"description"`
	Columns       []Column       `koanf:"columns"`
	Relationships []Relationship `koanf:"relationships"`
	Sources       []Source       `koanf:"sources"`
}

// Column returns the column with the given name, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// Relationship returns the relationship owning the given source column,
// or nil if the column is not the source of any relationship.
func (t *Table) Relationship(sourceColumn string) *Relationship {
	for i := range t.Relationships {
		if t.Relationships[i].SourceColumn == sourceColumn {
			return &t.Relationships[i]
		}
	}
	return nil
}

// KeyColumns returns the names of the columns forming the table's
// natural key, in declaration order.
func (t *Table) KeyColumns() []string {
	var keys []string
	for _, c := range t.Columns {
		if c.Key {
			keys = append(keys, c.Name)
		}
	}
	return keys
}

// Column declares one column of a table.
type Column struct {
	Name        string     `koanf:"name"`
	Description string     `koanf:"description"`
	Type        ColumnType `koanf:"type"`
	Nullable    bool       `koanf:"nullable"`
	// Key marks the column as part of the table's natural key. Writers
	// upsert by the full key column set, making re-loads idempotent.
	Key bool `koanf:"key"`
	// Default is the raw value substituted for null/missing source
	// values. It is coerced like any source value.
	Default any `koanf:"default"`
}

// Relationship declares a typed link from a column of its owning table
// to a column of a target table.
type Relationship struct {
	Name         string      `koanf:"name"`
	Description  string      `koanf:"description"`
	SourceColumn string      `koanf:"source_column"`
	TargetTable  string      `koanf:"target_table"`
	TargetColumn string      `koanf:"target_column"`
	Cardinality  Cardinality `koanf:"cardinality"`
}

// Source declares one data source populating a table. Options are
// kind-specific and validated against the closed option set the kind
// recognizes; unknown keys are a validation error.
type Source struct {
	Name    string         `koanf:"name"`
	Kind    SourceKind     `koanf:"kind"`
	Options map[string]any `koanf:"options"`
}
