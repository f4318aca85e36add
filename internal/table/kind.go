package table

// Kind is the storage type inferred for a column.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return "text"
	}
}

// ColumnKind infers the storage kind of a column from its non-null values.
// Integers mixed with floats widen to float; anything else mixed widens to
// text. An all-null column is text.
func (t *Table) ColumnKind(column string) Kind {
	kind := KindText
	seen := false
	for _, r := range t.Rows {
		v := r[column]
		if IsNull(v) {
			continue
		}
		k := valueKind(v)
		if !seen {
			kind, seen = k, true
			continue
		}
		if k == kind {
			continue
		}
		if (k == KindInt && kind == KindFloat) || (k == KindFloat && kind == KindInt) {
			kind = KindFloat
			continue
		}
		return KindText
	}
	return kind
}

func valueKind(v any) Kind {
	switch v.(type) {
	case int, int32, int64:
		return KindInt
	case float32, float64:
		return KindFloat
	case bool:
		return KindBool
	default:
		return KindText
	}
}
