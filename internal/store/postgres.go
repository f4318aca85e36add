package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/schoolfacts/internal/core"
	"github.com/JonMunkholm/schoolfacts/internal/table"
)

var pgTypes = map[table.Kind]string{
	table.KindText:  "TEXT",
	table.KindInt:   "BIGINT",
	table.KindFloat: "DOUBLE PRECISION",
	table.KindBool:  "BOOLEAN",
}

// PGStore implements Store on a pgx connection pool.
type PGStore struct {
	pool    *pgxpool.Pool
	facts   string
	monitor string
}

// OpenPostgres parses cfg.URL, applies the pool settings and creates the
// monitor table.
func OpenPostgres(ctx context.Context, cfg Config) (*PGStore, error) {
	cfg = cfg.withDefaults()

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := &PGStore{pool: pool, facts: cfg.FactTable, monitor: cfg.MonitorTable}

	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Ping verifies the connection.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool. It never fails.
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PGStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		run_id TEXT NOT NULL,
		run_ts TEXT NOT NULL,
		registros_leidos INTEGER NOT NULL,
		registros_validos INTEGER NOT NULL,
		registros_descartados INTEGER NOT NULL,
		alumnos_con_matricula INTEGER NOT NULL,
		total_alumnos_unicos INTEGER NOT NULL,
		total_materias_diferentes INTEGER NOT NULL,
		correos_generados INTEGER NOT NULL,
		promedio_notas_general DOUBLE PRECISION NOT NULL,
		duracion_s DOUBLE PRECISION NOT NULL,
		estado TEXT NOT NULL,
		mensaje TEXT NOT NULL,
		metricas TEXT NOT NULL
	)`, pgx.Identifier{s.monitor}.Sanitize()))
	return err
}

// ReplaceFacts recreates the fact table and bulk loads it with COPY, all in
// one transaction.
func (s *PGStore) ReplaceFacts(ctx context.Context, facts *table.Table) (int64, error) {
	if facts == nil || len(facts.Columns) == 0 {
		return 0, ErrNoColumns
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	name := pgx.Identifier{s.facts}.Sanitize()
	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return 0, fmt.Errorf("drop %s: %w", s.facts, err)
	}

	kinds := factColumnKinds(facts)
	defs := make([]string, len(facts.Columns))
	for i, c := range facts.Columns {
		defs[i] = pgx.Identifier{c}.Sanitize() + " " + pgTypes[kinds[i]]
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))); err != nil {
		return 0, fmt.Errorf("create %s: %w", s.facts, err)
	}

	rows := make([][]any, len(facts.Rows))
	for i, r := range facts.Rows {
		vals := make([]any, len(facts.Columns))
		for j, c := range facts.Columns {
			vals[j] = pgCell(cellValue(r[c]), kinds[j])
		}
		rows[i] = vals
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{s.facts}, facts.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, fmt.Errorf("copy into %s: %w", s.facts, err)
	}

	var n int64
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM "+name).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.facts, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// pgCell matches a value to its column type; COPY does not coerce int64
// into DOUBLE PRECISION.
func pgCell(v any, k table.Kind) any {
	if v == nil {
		return nil
	}
	switch k {
	case table.KindFloat:
		if i, ok := v.(int64); ok {
			return float64(i)
		}
	case table.KindText:
		if _, ok := v.(string); !ok {
			return fmt.Sprint(v)
		}
	}
	return v
}

// AppendRun inserts one monitor row.
func (s *PGStore) AppendRun(ctx context.Context, e core.RunLogEntry) error {
	vals, err := monitorValues(e)
	if err != nil {
		return err
	}
	ph := make([]string, len(vals))
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{s.monitor}.Sanitize(), strings.Join(monitorColumns, ", "), strings.Join(ph, ", ")), vals...)
	if err != nil {
		return fmt.Errorf("append run %s: %w", e.RunID, err)
	}
	return nil
}

// ListRuns returns monitor rows newest first.
func (s *PGStore) ListRuns(ctx context.Context, opts core.ListRunsOptions) ([]core.RunLogEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selectColumns, ", "), pgx.Identifier{s.monitor}.Sanitize())
	args := []any{clampLimit(opts.Limit)}
	if opts.Status != "" {
		query += " WHERE estado = $2"
		args = append(args, string(opts.Status))
	}
	query += " ORDER BY id DESC LIMIT $1"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []core.RunLogEntry
	for rows.Next() {
		var r monitorRow
		if err := rows.Scan(r.targets()...); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r.entry())
	}
	return out, rows.Err()
}

// LatestRun returns the newest monitor row.
func (s *PGStore) LatestRun(ctx context.Context) (core.RunLogEntry, error) {
	runs, err := s.ListRuns(ctx, core.ListRunsOptions{Limit: 1})
	if err != nil {
		return core.RunLogEntry{}, err
	}
	if len(runs) == 0 {
		return core.RunLogEntry{}, ErrNoRuns
	}
	return runs[0], nil
}

// Facts reads the current fact table in its stored column order.
func (s *PGStore) Facts(ctx context.Context, limit int) (*table.Table, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL",
		pgx.Identifier{s.facts}.Sanitize()).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check %s: %w", s.facts, err)
	}
	if !exists {
		return table.Empty(s.facts), nil
	}

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf("SELECT * FROM %s LIMIT $1", pgx.Identifier{s.facts}.Sanitize()), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.facts, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	var out []table.Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r := make(table.Row, len(cols))
		for i, c := range cols {
			r[c] = scannedValue(vals[i], false)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return table.New(s.facts, cols, out), nil
}
