package core

import (
	"github.com/JonMunkholm/schoolfacts/internal/table"
)

// RunMetrics describes one run. Counts refer to rows as seen by the key
// reconciliation stage before anything was dropped.
type RunMetrics struct {
	AlumnosRows        int `json:"alumnos_rows"`
	CalificacionesRows int `json:"calificaciones_rows"`
	MatriculasRows     int `json:"matriculas_rows"`

	RegistrosLeidos      int           `json:"registros_leidos"`
	RegistrosValidos     int           `json:"registros_validos"`
	RegistrosDescartados int           `json:"registros_descartados"`
	Descartados          DiscardCounts `json:"descartados"`

	TotalAlumnosUnicos      int     `json:"total_alumnos_unicos"`
	TotalMateriasDiferentes int     `json:"total_materias_diferentes"`
	PromedioNotasGeneral    float64 `json:"promedio_notas_general"`
	CorreosGenerados        int     `json:"correos_generados"`
	AlumnosConMatricula     int     `json:"alumnos_con_matricula"`

	DuplicadosEliminados int `json:"duplicados_eliminados"`
	NotasFueraRango      int `json:"notas_fuera_rango"`
}

// MeanDisplay returns the mean score rounded to two decimals.
func (m RunMetrics) MeanDisplay() float64 {
	return RoundHalfAwayFromZero(m.PromedioNotasGeneral, 2)
}

// Aggregate derives run metrics from the stage outputs. in must be the
// tables handed to Reconcile.
func Aggregate(in Tables, r *Reconciled, c *Cleaned, facts *table.Table) RunMetrics {
	m := RunMetrics{
		AlumnosRows:        in.Alumnos.Len(),
		CalificacionesRows: in.Calificaciones.Len(),
		MatriculasRows:     in.Matriculas.Len(),
		Descartados:        r.Discarded,
	}
	m.RegistrosLeidos = m.AlumnosRows + m.CalificacionesRows + m.MatriculasRows
	m.RegistrosDescartados = r.Discarded.Total()
	m.RegistrosValidos = facts.Len()

	m.TotalAlumnosUnicos = CountDistinct(facts, r.Key, nil)
	m.TotalMateriasDiferentes = CountDistinct(facts, ColAsignatura, nil)
	m.AlumnosConMatricula = CountDistinct(facts, r.Key, func(row table.Row) bool {
		return !table.IsNull(row[ColAnio])
	})
	m.PromedioNotasGeneral = MeanOf(facts, ColNota)

	m.CorreosGenerados = c.Stats.AddressesSynthesized
	m.DuplicadosEliminados = c.Stats.DuplicatesRemoved
	m.NotasFueraRango = c.Stats.ScoresOutOfRange

	return m
}

// CountDistinct counts distinct non-null values of column among rows that
// pass keep. A nil keep accepts every row. A missing column counts zero.
func CountDistinct(t *table.Table, column string, keep func(table.Row) bool) int {
	if !t.HasColumn(column) {
		return 0
	}
	seen := make(map[any]struct{})
	for _, r := range t.Rows {
		v := r[column]
		if table.IsNull(v) {
			continue
		}
		if keep != nil && !keep(r) {
			continue
		}
		seen[v] = struct{}{}
	}
	return len(seen)
}

// MeanOf returns the arithmetic mean of the numeric non-null values in
// column, or 0 when there are none.
func MeanOf(t *table.Table, column string) float64 {
	if !t.HasColumn(column) {
		return 0
	}
	var sum float64
	var n int
	for _, r := range t.Rows {
		f, ok := ToFloat(r[column])
		if !ok {
			continue
		}
		sum += f
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
