package core

import (
	"github.com/JonMunkholm/schoolfacts/internal/table"
)

// LeftJoin returns every left row, in order, enriched with the first right
// row that shares its key. The output always has exactly one row per left
// row. A left row with no match gets null for every right-only column.
// When both sides declare the same non-key column, the left value is kept.
func LeftJoin(left, right *table.Table, key string) *table.Table {
	columns := append([]string(nil), left.Columns...)
	var extra []string
	for _, c := range right.Columns {
		if c == key || left.HasColumn(c) {
			continue
		}
		extra = append(extra, c)
	}
	columns = append(columns, extra...)

	index := make(map[any]table.Row, len(right.Rows))
	for _, r := range right.Rows {
		k := r[key]
		if table.IsNull(k) {
			continue
		}
		if _, ok := index[k]; !ok {
			index[k] = r
		}
	}

	rows := make([]table.Row, len(left.Rows))
	for i, l := range left.Rows {
		nr := l.Clone()
		m, ok := index[l[key]]
		for _, c := range extra {
			if ok {
				nr[c] = m[c]
			} else {
				nr[c] = nil
			}
		}
		rows[i] = nr
	}

	return table.New(left.Name, columns, rows)
}

// DuplicateKeys counts key values that appear on more than one row.
func DuplicateKeys(t *table.Table, key string) int {
	counts := make(map[any]int, len(t.Rows))
	for _, r := range t.Rows {
		if k := r[key]; !table.IsNull(k) {
			counts[k]++
		}
	}
	dups := 0
	for _, n := range counts {
		if n > 1 {
			dups++
		}
	}
	return dups
}

// FactColumns returns the preferred fact column order with key first.
func FactColumns(key string, order []string) []string {
	cols := make([]string, 0, len(order)+1)
	cols = append(cols, key)
	for _, c := range order {
		if c != key {
			cols = append(cols, c)
		}
	}
	return cols
}

// BuildFacts joins grades to the roster and then to enrollment, and orders
// the columns. Columns outside the preferred order are omitted.
func BuildFacts(c *Cleaned, opts Options) *table.Table {
	opts = opts.withDefaults()

	joined := LeftJoin(c.Calificaciones, c.Alumnos, c.Key)
	joined = LeftJoin(joined, c.Matriculas, c.Key)

	facts := joined.Project(FactColumns(c.Key, opts.ColumnOrder))
	facts.Name = DatasetHechos
	return facts
}
