// Package table provides the in-memory tabular structure shared by every
// pipeline stage: an ordered list of column names plus rows that map column
// name to value.
//
// Stages never mutate a table they did not build. Every transforming helper
// in this package returns a new *Table; rows handed to callbacks are copies.
package table

import (
	"math"
	"strings"
)

// Row maps a column name to its value. A missing key and a nil value both
// read as null.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an ordered set of columns and rows.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
}

// New creates a table. columns and rows are used as given; callers that
// keep using them afterwards should pass copies.
func New(name string, columns []string, rows []Row) *Table {
	if rows == nil {
		rows = []Row{}
	}
	return &Table{Name: name, Columns: columns, Rows: rows}
}

// Empty returns a table with the given columns and no rows.
func Empty(name string, columns ...string) *Table {
	return New(name, append([]string(nil), columns...), nil)
}

// Len returns the number of rows. A nil table has zero rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether the table declares the column.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// ColumnIndex returns the position of the column or -1.
func (t *Table) ColumnIndex(name string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Clone returns a copy of the table with copied rows.
func (t *Table) Clone() *Table {
	rows := make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = r.Clone()
	}
	return New(t.Name, append([]string(nil), t.Columns...), rows)
}

// RenameColumn returns a copy of the table with column from renamed to to.
// If from does not exist the copy is returned unchanged.
func (t *Table) RenameColumn(from, to string) *Table {
	out := t.Clone()
	idx := out.ColumnIndex(from)
	if idx < 0 || from == to {
		return out
	}
	out.Columns[idx] = to
	for _, r := range out.Rows {
		if v, ok := r[from]; ok {
			r[to] = v
			delete(r, from)
		}
	}
	return out
}

// WithColumn returns a copy of the table that declares column name,
// appending it when missing. Row values are left untouched.
func (t *Table) WithColumn(name string) *Table {
	out := t.Clone()
	if !out.HasColumn(name) {
		out.Columns = append(out.Columns, name)
	}
	return out
}

// Filter returns a new table holding copies of the rows for which keep
// returns true, in original order.
func (t *Table) Filter(keep func(Row) bool) *Table {
	rows := make([]Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		if keep(r) {
			rows = append(rows, r.Clone())
		}
	}
	return New(t.Name, append([]string(nil), t.Columns...), rows)
}

// Map returns a new table whose rows are the results of fn applied to a copy
// of each row.
func (t *Table) Map(fn func(Row) Row) *Table {
	rows := make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = fn(r.Clone())
	}
	return New(t.Name, append([]string(nil), t.Columns...), rows)
}

// Project returns a new table with only the listed columns that exist, in
// the listed order. Unknown names are skipped silently.
func (t *Table) Project(columns []string) *Table {
	keep := make([]string, 0, len(columns))
	for _, c := range columns {
		if t.HasColumn(c) {
			keep = append(keep, c)
		}
	}
	rows := make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		nr := make(Row, len(keep))
		for _, c := range keep {
			nr[c] = r[c]
		}
		rows[i] = nr
	}
	return New(t.Name, keep, rows)
}

// Values returns the values of one column in row order.
func (t *Table) Values(column string) []any {
	out := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[column]
	}
	return out
}

// IsNull reports whether v is a null: nil or a NaN float.
func IsNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	}
	return false
}

// IsBlank reports whether v is null or a whitespace-only string.
func IsBlank(v any) bool {
	if IsNull(v) {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
