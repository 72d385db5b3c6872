package writer

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/kbforge/internal/manifest"
)

func newTestGraphWriter(t *testing.T) *GraphWriter {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	w := NewGraph(db, nil)
	require.NoError(t, w.Setup(context.Background(), worldGraph(t)))
	return w
}

func (w *GraphWriter) countRows(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, w.db.QueryRow(query, args...).Scan(&n))
	return n
}

func TestGraphWriter_NodesAndEdges(t *testing.T) {
	w := newTestGraphWriter(t)
	g := worldGraph(t)
	ctx := context.Background()

	require.NoError(t, w.WriteBatch(ctx, g.Table("country"), []Row{
		{"code": "NL", "name": "Netherlands", "population": int64(17900000)},
	}))
	require.NoError(t, w.WriteBatch(ctx, g.Table("city"), []Row{
		{"id": int64(1), "name": "Amsterdam", "country_code": "NL"},
	}))

	assert.Equal(t, 2, w.countRows(t, "SELECT COUNT(*) FROM nodes"))

	var props string
	require.NoError(t, w.db.QueryRow(
		"SELECT props FROM nodes WHERE tbl = ? AND key = ?", "country", "NL").Scan(&props))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(props), &decoded))
	assert.Equal(t, "Netherlands", decoded["name"])
	assert.Equal(t, float64(17900000), decoded["population"])

	assert.Equal(t, 1, w.countRows(t,
		"SELECT COUNT(*) FROM edges WHERE rel = ? AND src_tbl = ? AND src_key = ? AND dst_tbl = ? AND dst_key = ?",
		"located_in", "city", "1", "country", "NL"))
}

func TestGraphWriter_UpsertIsIdempotent(t *testing.T) {
	w := newTestGraphWriter(t)
	g := worldGraph(t)
	ctx := context.Background()

	row := Row{"code": "NL", "name": "Netherlands", "population": int64(1)}
	require.NoError(t, w.WriteBatch(ctx, g.Table("country"), []Row{row}))

	row["population"] = int64(2)
	require.NoError(t, w.WriteBatch(ctx, g.Table("country"), []Row{row}))

	assert.Equal(t, 1, w.countRows(t, "SELECT COUNT(*) FROM nodes WHERE tbl = 'country'"))

	var props string
	require.NoError(t, w.db.QueryRow(
		"SELECT props FROM nodes WHERE tbl = ? AND key = ?", "country", "NL").Scan(&props))
	assert.Contains(t, props, `"population":2`)
}

func TestGraphWriter_ManyToManyEdges(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tbl := &manifest.Table{
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
	}

	w := NewGraph(db, nil)
	require.NoError(t, w.Setup(context.Background(), nil))
	require.NoError(t, w.WriteBatch(context.Background(), tbl, []Row{
		{"name": "EU", "members": []any{"NL", "DE"}},
	}))

	assert.Equal(t, 2, w.countRows(t,
		"SELECT COUNT(*) FROM edges WHERE rel = 'member_of' AND src_key = 'EU'"))
	assert.Equal(t, 1, w.countRows(t,
		"SELECT COUNT(*) FROM edges WHERE dst_tbl = 'country' AND dst_key = 'DE'"))
}

func TestGraphWriter_NullReferenceHasNoEdge(t *testing.T) {
	w := newTestGraphWriter(t)
	g := worldGraph(t)

	city := g.Table("city")
	nullable := *city
	require.NoError(t, w.WriteBatch(context.Background(), &nullable, []Row{
		{"id": int64(9), "name": "Orbit", "country_code": nil},
	}))

	assert.Equal(t, 0, w.countRows(t, "SELECT COUNT(*) FROM edges WHERE src_key = '9'"))
}
