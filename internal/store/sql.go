package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/JonMunkholm/schoolfacts/internal/core"
	"github.com/JonMunkholm/schoolfacts/internal/table"
)

// dialect captures the SQL differences between SQLite and MySQL.
type dialect struct {
	name      string
	quote     func(string) string
	types     map[table.Kind]string
	idColumn  string
	textShort string
	tableSQL  string // existence check, one placeholder for the table name
}

var sqliteDialect = dialect{
	name:  "sqlite",
	quote: func(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` },
	types: map[table.Kind]string{
		table.KindText:  "TEXT",
		table.KindInt:   "INTEGER",
		table.KindFloat: "REAL",
		table.KindBool:  "INTEGER",
	},
	idColumn:  "INTEGER PRIMARY KEY AUTOINCREMENT",
	textShort: "TEXT",
	tableSQL:  "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
}

var mysqlDialect = dialect{
	name:  "mysql",
	quote: func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" },
	types: map[table.Kind]string{
		table.KindText:  "TEXT",
		table.KindInt:   "BIGINT",
		table.KindFloat: "DOUBLE",
		table.KindBool:  "BOOLEAN",
	},
	idColumn:  "BIGINT AUTO_INCREMENT PRIMARY KEY",
	textShort: "VARCHAR(64)",
	tableSQL:  "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?",
}

// SQLStore implements Store on database/sql for SQLite and MySQL.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	facts   string
	monitor string

	mu sync.Mutex // one writer at a time
}

// OpenSQLite opens (or creates) a SQLite file. Use ":memory:" only with
// MaxConns 1, since every connection gets its own in-memory database.
func OpenSQLite(ctx context.Context, cfg Config) (*SQLStore, error) {
	cfg = cfg.withDefaults()
	dsn := cfg.URL
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newSQLStore(ctx, db, sqliteDialect, cfg)
}

// OpenMySQL connects using a go-sql-driver DSN such as
// user:pass@tcp(host:3306)/school.
func OpenMySQL(ctx context.Context, cfg Config) (*SQLStore, error) {
	cfg = cfg.withDefaults()
	mc, err := mysql.ParseDSN(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mysql DSN: %w", err)
	}
	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newSQLStore(ctx, sql.OpenDB(connector), mysqlDialect, cfg)
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect, cfg Config) (*SQLStore, error) {
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(max(cfg.MinConns, 1))
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	s := &SQLStore{db: db, dialect: d, facts: cfg.FactTable, monitor: cfg.MonitorTable}
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Dialect reports "sqlite" or "mysql".
func (s *SQLStore) Dialect() string { return s.dialect.name }

// Ping verifies the connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// migrate creates the monitor table.
func (s *SQLStore) migrate(ctx context.Context) error {
	q := s.dialect.quote
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id %s,
		run_id %s NOT NULL,
		run_ts %s NOT NULL,
		registros_leidos INTEGER NOT NULL,
		registros_validos INTEGER NOT NULL,
		registros_descartados INTEGER NOT NULL,
		alumnos_con_matricula INTEGER NOT NULL,
		total_alumnos_unicos INTEGER NOT NULL,
		total_materias_diferentes INTEGER NOT NULL,
		correos_generados INTEGER NOT NULL,
		promedio_notas_general %s NOT NULL,
		duracion_s %s NOT NULL,
		estado %s NOT NULL,
		mensaje TEXT NOT NULL,
		metricas TEXT NOT NULL
	)`,
		q(s.monitor), s.dialect.idColumn, s.dialect.textShort, s.dialect.textShort,
		s.dialect.types[table.KindFloat], s.dialect.types[table.KindFloat], s.dialect.textShort)

	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// ReplaceFacts drops and recreates the fact table, inserts every row and
// returns the row count read back inside the same transaction. MySQL
// commits DDL implicitly, so there only the inserts are atomic.
func (s *SQLStore) ReplaceFacts(ctx context.Context, facts *table.Table) (int64, error) {
	if facts == nil || len(facts.Columns) == 0 {
		return 0, ErrNoColumns
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := s.dialect.quote
	name := q(s.facts)

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return 0, fmt.Errorf("drop %s: %w", s.facts, err)
	}

	kinds := factColumnKinds(facts)
	defs := make([]string, len(facts.Columns))
	cols := make([]string, len(facts.Columns))
	for i, c := range facts.Columns {
		cols[i] = q(c)
		defs[i] = cols[i] + " " + s.dialect.types[kinds[i]]
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))); err != nil {
		return 0, fmt.Errorf("create %s: %w", s.facts, err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		name, strings.Join(cols, ", "), placeholders(len(cols))))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(facts.Columns))
	for i, row := range facts.Rows {
		for j, c := range facts.Columns {
			args[j] = cellValue(row[c])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("insert row %d: %w", i+1, err)
		}
	}

	var n int64
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.facts, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// AppendRun inserts one monitor row.
func (s *SQLStore) AppendRun(ctx context.Context, e core.RunLogEntry) error {
	vals, err := monitorValues(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cols := make([]string, len(monitorColumns))
	for i, c := range monitorColumns {
		cols[i] = s.dialect.quote(c)
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.dialect.quote(s.monitor), strings.Join(cols, ", "), placeholders(len(cols))), vals...)
	if err != nil {
		return fmt.Errorf("append run %s: %w", e.RunID, err)
	}
	return nil
}

// ListRuns returns monitor rows newest first.
func (s *SQLStore) ListRuns(ctx context.Context, opts core.ListRunsOptions) ([]core.RunLogEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selectColumns, ", "), s.dialect.quote(s.monitor))
	var args []any
	if opts.Status != "" {
		query += " WHERE estado = ?"
		args = append(args, string(opts.Status))
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, clampLimit(opts.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
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
func (s *SQLStore) LatestRun(ctx context.Context) (core.RunLogEntry, error) {
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
func (s *SQLStore) Facts(ctx context.Context, limit int) (*table.Table, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, s.dialect.tableSQL, s.facts).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check %s: %w", s.facts, err)
	}
	if exists == 0 {
		return table.Empty(s.facts), nil
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT * FROM %s LIMIT ?", s.dialect.quote(s.facts)), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.facts, err)
	}
	defer rows.Close()
	return scanTable(s.facts, rows)
}

// scanTable copies a result set into a table.
func scanTable(name string, rows *sql.Rows) (*table.Table, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	cols := make([]string, len(types))
	numeric := make([]bool, len(types))
	for i, ct := range types {
		cols[i] = ct.Name()
		numeric[i] = isNumericType(ct.DatabaseTypeName())
	}

	var out []table.Row
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for rows.Next() {
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r := make(table.Row, len(cols))
		for i, c := range cols {
			r[c] = scannedValue(vals[i], numeric[i])
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return table.New(name, cols, out), nil
}

func isNumericType(name string) bool {
	switch strings.ToUpper(name) {
	case "INTEGER", "INT", "BIGINT", "SMALLINT", "TINYINT", "REAL", "DOUBLE", "FLOAT", "DECIMAL", "NUMERIC":
		return true
	}
	return false
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
