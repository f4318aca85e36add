package core

import (
	"context"

	"github.com/JonMunkholm/schoolfacts/internal/table"
)

// Dataset names, used for table names, source names and discard counts.
const (
	DatasetAlumnos        = "alumnos"
	DatasetCalificaciones = "calificaciones"
	DatasetMatriculas     = "matriculas"
	DatasetHechos         = "hechos"
)

// Column names the cleaner and joiner know about.
const (
	DefaultKeyColumn = "id_alumno"

	ColNombre          = "nombre"
	ColApellido        = "apellido"
	ColGrado           = "grado"
	ColCorreo          = "correo"
	ColFechaNacimiento = "fecha_nacimiento"
	ColAsignatura      = "asignatura"
	ColNota            = "nota"
	ColPeriodo         = "periodo"
	ColIDMatricula     = "id_matricula"
	ColAnio            = "anio"
	ColEstado          = "estado"
	ColJornada         = "jornada"
)

const (
	DefaultEmailDomain   = "colegio.edu"
	DefaultScoreMin      = 0.0
	DefaultScoreMax      = 5.0
	DefaultMessageMaxLen = 500
)

// DefaultKeyAliases lists alternative key spellings in lookup order.
var DefaultKeyAliases = []string{"idAlumno", "idalumno", "alumno_id"}

// DefaultNumericColumns lists columns coerced to numbers during reconciliation.
var DefaultNumericColumns = []string{DefaultKeyColumn, ColIDMatricula, ColAnio}

// DefaultColumnOrder is the preferred fact column order after the key column.
var DefaultColumnOrder = []string{
	ColNombre, ColApellido, ColGrado, ColCorreo, ColFechaNacimiento,
	ColAsignatura, ColNota, ColPeriodo,
	ColAnio, ColEstado, ColJornada,
}

// Tables holds the three input datasets of a run.
type Tables struct {
	Alumnos        *table.Table
	Calificaciones *table.Table
	Matriculas     *table.Table
}

// Source produces the input datasets. Any error aborts the run.
type Source interface {
	Load(ctx context.Context) (Tables, error)
}

// FactWriter replaces the persisted fact table and returns the number of
// rows the store holds afterwards.
type FactWriter interface {
	ReplaceFacts(ctx context.Context, facts *table.Table) (int64, error)
}

// Options controls reconciliation and cleaning. The zero value is not
// usable; start from DefaultOptions.
type Options struct {
	KeyColumn      string
	KeyAliases     []string
	NumericColumns []string
	ColumnOrder    []string
	EmailDomain    string
	ScoreMin       float64
	ScoreMax       float64
	MessageMaxLen  int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		KeyColumn:      DefaultKeyColumn,
		KeyAliases:     append([]string(nil), DefaultKeyAliases...),
		NumericColumns: append([]string(nil), DefaultNumericColumns...),
		ColumnOrder:    append([]string(nil), DefaultColumnOrder...),
		EmailDomain:    DefaultEmailDomain,
		ScoreMin:       DefaultScoreMin,
		ScoreMax:       DefaultScoreMax,
		MessageMaxLen:  DefaultMessageMaxLen,
	}
}

// withDefaults fills empty fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.KeyColumn == "" {
		o.KeyColumn = d.KeyColumn
	}
	if o.KeyAliases == nil {
		o.KeyAliases = d.KeyAliases
	}
	if o.NumericColumns == nil {
		o.NumericColumns = d.NumericColumns
	}
	if len(o.ColumnOrder) == 0 {
		o.ColumnOrder = d.ColumnOrder
	}
	if o.EmailDomain == "" {
		o.EmailDomain = d.EmailDomain
	}
	if o.ScoreMin == 0 && o.ScoreMax == 0 {
		o.ScoreMin, o.ScoreMax = d.ScoreMin, d.ScoreMax
	}
	if o.MessageMaxLen <= 0 {
		o.MessageMaxLen = d.MessageMaxLen
	}
	return o
}
