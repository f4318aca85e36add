package core

import (
	"fmt"

	"github.com/JonMunkholm/schoolfacts/internal/table"
)

// DiscardCounts holds rows dropped per table for a missing or unresolvable key.
type DiscardCounts struct {
	Alumnos        int `json:"alumnos"`
	Calificaciones int `json:"calificaciones"`
	Matriculas     int `json:"matriculas"`
}

// Total returns the sum over all tables.
func (d DiscardCounts) Total() int {
	return d.Alumnos + d.Calificaciones + d.Matriculas
}

// KeyResolution describes how one table's key column was found.
type KeyResolution struct {
	Table   string
	Column  string // column the key was read from; empty if none matched
	Renamed bool   // Column was an alias renamed to the canonical key
}

// Reconciled is the output of the key reconciliation stage.
type Reconciled struct {
	Key            string
	Alumnos        *table.Table
	Calificaciones *table.Table
	Matriculas     *table.Table
	Discarded      DiscardCounts
	Resolutions    []KeyResolution
}

// ResolveKey returns the canonical key column for the roster: preferred if
// the roster declares it, otherwise the roster's first column.
func ResolveKey(roster *table.Table, preferred string) (string, error) {
	if roster == nil || len(roster.Columns) == 0 {
		return "", ErrNoKeyColumn
	}
	if roster.HasColumn(preferred) {
		return preferred, nil
	}
	return roster.Columns[0], nil
}

// AlignKey returns a copy of t whose key column is named key. When key is
// missing, the first alias t declares is renamed. The resolution reports
// what was found; an empty Column means no usable key column exists.
func AlignKey(t *table.Table, key string, aliases []string) (*table.Table, KeyResolution) {
	res := KeyResolution{Table: t.Name}
	if t.HasColumn(key) {
		res.Column = key
		return t.Clone(), res
	}
	for _, alias := range aliases {
		if alias == key || !t.HasColumn(alias) {
			continue
		}
		res.Column = alias
		res.Renamed = true
		return t.RenameColumn(alias, key), res
	}
	return t.Clone(), res
}

// CoerceNumeric returns a copy of t with each listed column converted to a
// number. Values that do not convert become nil. Columns t does not declare
// are skipped.
func CoerceNumeric(t *table.Table, columns []string) *table.Table {
	present := make([]string, 0, len(columns))
	for _, c := range columns {
		if t.HasColumn(c) {
			present = append(present, c)
		}
	}
	if len(present) == 0 {
		return t.Clone()
	}
	return t.Map(func(r table.Row) table.Row {
		for _, c := range present {
			if n, ok := ToNumber(r[c]); ok {
				r[c] = n
			} else {
				r[c] = nil
			}
		}
		return r
	})
}

// DropUnkeyed returns a copy of t holding only rows whose key normalizes to
// a non-null value, with the normalized key written back, plus the number of
// rows dropped. A table without the key column loses every row and gains
// the key column so downstream joins see a consistent shape.
func DropUnkeyed(t *table.Table, key string) (*table.Table, int) {
	if !t.HasColumn(key) {
		cols := append([]string{key}, t.Columns...)
		return table.Empty(t.Name, cols...), t.Len()
	}
	rows := make([]table.Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		k, ok := ToKey(r[key])
		if !ok {
			continue
		}
		nr := r.Clone()
		nr[key] = k
		rows = append(rows, nr)
	}
	out := table.New(t.Name, append([]string(nil), t.Columns...), rows)
	return out, t.Len() - len(rows)
}

// Reconcile gives all three tables the canonical key, coerces numeric
// columns and drops rows whose key is missing or unresolvable.
func Reconcile(in Tables, opts Options) (*Reconciled, error) {
	opts = opts.withDefaults()

	alumnos := orEmpty(in.Alumnos, DatasetAlumnos)
	key, err := ResolveKey(alumnos, opts.KeyColumn)
	if err != nil {
		return nil, err
	}

	out := &Reconciled{Key: key}
	numeric := numericColumnsFor(opts.NumericColumns, opts.KeyColumn, key)
	if NumericKey(alumnos, key, opts.NumericColumns, opts.KeyColumn) {
		numeric = append(numeric, key)
	}

	prepare := func(t *table.Table) (*table.Table, int) {
		aligned, res := AlignKey(t, key, opts.KeyAliases)
		out.Resolutions = append(out.Resolutions, res)
		if res.Column == "" {
			return DropUnkeyed(aligned, key)
		}
		return DropUnkeyed(CoerceNumeric(aligned, numeric), key)
	}

	out.Alumnos, out.Discarded.Alumnos = prepare(alumnos)
	out.Calificaciones, out.Discarded.Calificaciones = prepare(orEmpty(in.Calificaciones, DatasetCalificaciones))
	out.Matriculas, out.Discarded.Matriculas = prepare(orEmpty(in.Matriculas, DatasetMatriculas))

	return out, nil
}

// NumericKey reports whether key values must be numbers. That holds when the
// key is listed as a numeric column and the roster holds at least one
// numeric key, or holds no keys at all. Values of a numeric key that do not
// parse become null and their rows are discarded. A roster keyed only by
// codes such as "A-17" keeps string keys.
func NumericKey(roster *table.Table, key string, numericColumns []string, configured string) bool {
	listed := false
	for _, c := range numericColumns {
		if c == key || c == configured {
			listed = true
			break
		}
	}
	if !listed {
		return false
	}
	seen := false
	for _, r := range roster.Rows {
		v := r[key]
		if table.IsBlank(v) {
			continue
		}
		seen = true
		if _, ok := ToNumber(v); ok {
			return true
		}
	}
	return !seen
}

// numericColumnsFor removes the key from the coercion list; NumericKey
// decides whether the key itself is coerced.
func numericColumnsFor(columns []string, configured, resolved string) []string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if c == configured || c == resolved {
			continue
		}
		out = append(out, c)
	}
	return out
}

func orEmpty(t *table.Table, name string) *table.Table {
	if t == nil {
		return table.Empty(name)
	}
	if t.Name == "" {
		c := t.Clone()
		c.Name = name
		return c
	}
	return t
}

func (r KeyResolution) String() string {
	switch {
	case r.Column == "":
		return fmt.Sprintf("%s: no key column", r.Table)
	case r.Renamed:
		return fmt.Sprintf("%s: key renamed from %s", r.Table, r.Column)
	default:
		return fmt.Sprintf("%s: key %s", r.Table, r.Column)
	}
}
