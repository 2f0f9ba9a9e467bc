// Package sqlschema implements the SQL Schema View: a read-only catalog of
// tables/columns exposed to the Planner and ReAct loop, plus the safe
// SELECT-only executor those tools invoke after a statement has passed the
// SQL Safety Validator.
package sqlschema

// Column describes one column's name, type, and semantics.
type Column struct {
	Name    string
	Type    string
	Summary string
}

// Table describes one table's columns and what it represents.
type Table struct {
	Name    string
	Summary string
	Columns []Column
}

// View holds the full read-only schema summary surfaced to the Planner.
type View struct {
	tables []Table
}

// NewView builds a View from the given tables.
func NewView(tables []Table) *View {
	copied := make([]Table, len(tables))
	copy(copied, tables)
	return &View{tables: copied}
}

// All returns every table in the view.
func (v *View) All() []Table {
	out := make([]Table, len(v.tables))
	copy(out, v.tables)
	return out
}

// Get returns the named table, or false if it is not part of the view.
func (v *View) Get(name string) (Table, bool) {
	for _, t := range v.tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Names returns every table name in the view as a set, for quick membership
// checks. The Executor does not consult it before running a query.
func (v *View) Names() map[string]bool {
	out := make(map[string]bool, len(v.tables))
	for _, t := range v.tables {
		out[t.Name] = true
	}
	return out
}
