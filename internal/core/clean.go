package core

import (
	"github.com/JonMunkholm/schoolfacts/internal/table"
)

// CleanStats counts what the cleaning stage changed.
type CleanStats struct {
	DuplicatesRemoved    int
	AddressesSynthesized int
	ScoresOutOfRange     int
}

// Cleaned is the output of the cleaning stage. Enrollment passes through
// untouched.
type Cleaned struct {
	Key            string
	Alumnos        *table.Table
	Calificaciones *table.Table
	Matriculas     *table.Table
	Stats          CleanStats
}

// DedupByKey keeps the first row for each key value in row order.
func DedupByKey(t *table.Table, key string) (*table.Table, int) {
	seen := make(map[any]struct{}, len(t.Rows))
	out := t.Filter(func(r table.Row) bool {
		k := r[key]
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
		return true
	})
	return out, t.Len() - out.Len()
}

// FillAddresses synthesizes an address for every row whose address column
// is null or the empty string. Whitespace-only values are kept as given.
// The column is added when the table lacks it.
func FillAddresses(t *table.Table, domain string) (*table.Table, int) {
	filled := 0
	out := t.WithColumn(ColCorreo).Map(func(r table.Row) table.Row {
		if v := r[ColCorreo]; table.IsNull(v) || v == "" {
			r[ColCorreo] = SynthesizeAddress(r[ColNombre], r[ColApellido], domain)
			filled++
		}
		return r
	})
	return out, filled
}

// NormalizeScore rounds a raw score to one decimal and clamps it to
// [lo, hi]. outOfRange reports whether the raw value fell outside the range.
// Null and non-numeric scores return nil and are not counted.
func NormalizeScore(v any, lo, hi float64) (score any, outOfRange bool) {
	f, ok := ToFloat(v)
	if !ok {
		return nil, false
	}
	outOfRange = f < lo || f > hi
	f = RoundHalfAwayFromZero(f, 1)
	if f < lo {
		f = lo
	}
	if f > hi {
		f = hi
	}
	return f, outOfRange
}

// NormalizeScores applies NormalizeScore to the score column. Rows are never
// dropped. A table without the column is returned unchanged.
func NormalizeScores(t *table.Table, lo, hi float64) (*table.Table, int) {
	if !t.HasColumn(ColNota) {
		return t.Clone(), 0
	}
	outOfRange := 0
	out := t.Map(func(r table.Row) table.Row {
		score, oor := NormalizeScore(r[ColNota], lo, hi)
		if oor {
			outOfRange++
		}
		r[ColNota] = score
		return r
	})
	return out, outOfRange
}

// Clean deduplicates the roster, fills missing addresses and normalizes
// grade scores.
func Clean(r *Reconciled, opts Options) *Cleaned {
	opts = opts.withDefaults()

	out := &Cleaned{
		Key:        r.Key,
		Matriculas: r.Matriculas.Clone(),
	}

	alumnos, dups := DedupByKey(r.Alumnos, r.Key)
	alumnos, filled := FillAddresses(alumnos, opts.EmailDomain)
	out.Alumnos = alumnos
	out.Stats.DuplicatesRemoved = dups
	out.Stats.AddressesSynthesized = filled

	out.Calificaciones, out.Stats.ScoresOutOfRange = NormalizeScores(r.Calificaciones, opts.ScoreMin, opts.ScoreMax)

	return out
}
