package schema

import "sort"

// Registry holds every table a style script has defined, in declaration order.
type Registry struct {
	tables map[string]*Table
	order  []string
}

// NewRegistry creates an empty table registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Table)}
}

// Register adds a table definition, validating it against every other
// table already registered (duplicate names) before storing it.
func (r *Registry) Register(t *Table) error {
	if err := ValidateTable(t); err != nil {
		return err
	}
	if _, exists := r.tables[t.Name]; exists {
		return &DefinitionError{Kind: "table", Name: t.Name, Reason: "table is already defined"}
	}
	r.tables[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Get returns a table by name, or nil if it was never registered.
func (r *Registry) Get(name string) *Table {
	return r.tables[name]
}

// All returns every registered table in declaration order.
func (r *Registry) All() []*Table {
	tables := make([]*Table, 0, len(r.order))
	for _, name := range r.order {
		tables = append(tables, r.tables[name])
	}
	return tables
}

// Names returns every registered table name, sorted, for diagnostics.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
