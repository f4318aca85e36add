// Package store persists the fact table and the run monitor.
//
// Three backends share one contract:
//
//	sqlite   database/sql + mattn/go-sqlite3 (default, single file)
//	mysql    database/sql + go-sql-driver/mysql
//	postgres pgxpool, bulk load through COPY
//
// The fact table is dropped and recreated on every ReplaceFacts call. The
// monitor table is created on Open and only ever receives inserts.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/JonMunkholm/schoolfacts/internal/core"
	"github.com/JonMunkholm/schoolfacts/internal/table"
)

// Store is everything the runner and the monitor API need from persistence.
type Store interface {
	core.FactWriter
	core.Recorder
	core.RunLister

	// LatestRun returns the newest audit row, or ErrNoRuns.
	LatestRun(ctx context.Context) (core.RunLogEntry, error)

	// Facts reads up to limit rows of the current fact table. A missing
	// fact table yields an empty table.
	Facts(ctx context.Context, limit int) (*table.Table, error)

	Ping(ctx context.Context) error
	Close() error
}

var (
	ErrNoRuns        = errors.New("no runs recorded")
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrNoColumns     = errors.New("fact table has no columns")
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 1000
)

// Config selects and tunes a backend.
type Config struct {
	Driver          string
	URL             string
	FactTable       string
	MonitorTable    string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func (c Config) withDefaults() Config {
	if c.FactTable == "" {
		c.FactTable = core.DatasetHechos
	}
	if c.MonitorTable == "" {
		c.MonitorTable = "etl_monitor"
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 4
	}
	return c
}

// Open connects to the configured backend and creates the monitor table.
func Open(ctx context.Context, cfg Config) (Store, error) {
	cfg = cfg.withDefaults()
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite", "sqlite3":
		return OpenSQLite(ctx, cfg)
	case "mysql":
		return OpenMySQL(ctx, cfg)
	case "postgres", "postgresql", "pgx":
		return OpenPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// runTimeLayout is fixed-width so text timestamps sort chronologically.
const runTimeLayout = "2006-01-02T15:04:05Z"

func formatRunTime(t time.Time) string {
	return t.UTC().Format(runTimeLayout)
}

func parseRunTime(s string) time.Time {
	t, err := time.Parse(runTimeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

// monitorColumns is the insert order for the monitor table; id is generated.
var monitorColumns = []string{
	"run_id",
	"run_ts",
	"registros_leidos",
	"registros_validos",
	"registros_descartados",
	"alumnos_con_matricula",
	"total_alumnos_unicos",
	"total_materias_diferentes",
	"correos_generados",
	"promedio_notas_general",
	"duracion_s",
	"estado",
	"mensaje",
	"metricas",
}

// monitorValues flattens an entry in monitorColumns order. The full metrics
// are kept as JSON next to the flat columns.
func monitorValues(e core.RunLogEntry) ([]any, error) {
	detail, err := json.Marshal(e.Metrics)
	if err != nil {
		return nil, fmt.Errorf("encode metrics: %w", err)
	}
	m := e.Metrics
	return []any{
		e.RunID,
		formatRunTime(e.RunAt),
		m.RegistrosLeidos,
		m.RegistrosValidos,
		m.RegistrosDescartados,
		m.AlumnosConMatricula,
		m.TotalAlumnosUnicos,
		m.TotalMateriasDiferentes,
		m.CorreosGenerados,
		m.PromedioNotasGeneral,
		e.DurationSeconds(),
		string(e.Status),
		e.Message,
		string(detail),
	}, nil
}

// monitorRow is the scan target shared by every backend.
type monitorRow struct {
	ID       int64
	RunID    string
	RunTS    string
	Duracion float64
	Estado   string
	Mensaje  string
	Metricas string

	Leidos, Validos, Descartados  int64
	ConMatricula, Unicos, Materias int64
	Correos                        int64
	Promedio                       float64
}

// targets lists scan destinations in selectColumns order.
func (r *monitorRow) targets() []any {
	return []any{
		&r.ID, &r.RunID, &r.RunTS,
		&r.Leidos, &r.Validos, &r.Descartados,
		&r.ConMatricula, &r.Unicos, &r.Materias, &r.Correos, &r.Promedio,
		&r.Duracion, &r.Estado, &r.Mensaje, &r.Metricas,
	}
}

var selectColumns = append([]string{"id"}, monitorColumns...)

func (r *monitorRow) entry() core.RunLogEntry {
	e := core.RunLogEntry{
		ID:       r.ID,
		RunID:    r.RunID,
		RunAt:    parseRunTime(r.RunTS),
		Duration: time.Duration(r.Duracion * float64(time.Second)),
		Status:   core.RunStatus(r.Estado),
		Message:  r.Mensaje,
	}
	if r.Metricas != "" && json.Unmarshal([]byte(r.Metricas), &e.Metrics) == nil {
		return e
	}
	// Rows written by other tools carry only the flat columns.
	e.Metrics = core.RunMetrics{
		RegistrosLeidos:         int(r.Leidos),
		RegistrosValidos:        int(r.Validos),
		RegistrosDescartados:    int(r.Descartados),
		AlumnosConMatricula:     int(r.ConMatricula),
		TotalAlumnosUnicos:      int(r.Unicos),
		TotalMateriasDiferentes: int(r.Materias),
		CorreosGenerados:        int(r.Correos),
		PromedioNotasGeneral:    r.Promedio,
	}
	return e
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

// cellValue converts a table value into something every driver accepts.
func cellValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case float32:
		return cellValue(float64(x))
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64, string, bool:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// scannedValue normalizes a value read back from a driver. Some drivers
// return numeric columns as text, so numeric says how to read bytes.
func scannedValue(v any, numeric bool) any {
	switch x := v.(type) {
	case []byte:
		s := string(x)
		if numeric {
			if n, ok := core.ToNumber(s); ok {
				return n
			}
		}
		return s
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return x
	}
}

// factColumnKinds infers the storage kind of every fact column once.
func factColumnKinds(t *table.Table) []table.Kind {
	kinds := make([]table.Kind, len(t.Columns))
	for i, c := range t.Columns {
		kinds[i] = t.ColumnKind(c)
	}
	return kinds
}
