package loader

import (
	"sync"

	"github.com/leapstack-labs/kbforge/internal/schema"
)

// keyRegistry tracks the written values of every referenced column, per
// table. Reference columns of dependent tables are validated against
// these sets; the topological load order guarantees a target table's
// sets are complete before any dependent starts.
type keyRegistry struct {
	mu sync.RWMutex
	// table -> column -> set of canonical key strings
	sets map[string]map[string]map[string]struct{}
}

func newKeyRegistry(g *schema.Graph) *keyRegistry {
	r := &keyRegistry{sets: make(map[string]map[string]map[string]struct{})}
	for _, name := range g.LoadOrder {
		cols := g.ReferencedColumns(name)
		if len(cols) == 0 {
			continue
		}
		r.sets[name] = make(map[string]map[string]struct{}, len(cols))
		for _, col := range cols {
			r.sets[name][col] = make(map[string]struct{})
		}
	}
	return r
}

// tracked returns the referenced columns of a table, or nil if no
// relationship targets it.
func (r *keyRegistry) tracked(table string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cols := make([]string, 0, len(r.sets[table]))
	for col := range r.sets[table] {
		cols = append(cols, col)
	}
	return cols
}

func (r *keyRegistry) add(table, column, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.sets[table][column]; ok {
		set[key] = struct{}{}
	}
}

func (r *keyRegistry) has(table, column, key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sets[table][column][key]
	return ok
}
