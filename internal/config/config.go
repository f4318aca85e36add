// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults,
// optionally overlays a YAML pipeline profile, and validates all settings on
// startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Source   SourceConfig
	Store    StoreConfig
	Pipeline PipelineConfig
	Schedule ScheduleConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

// SourceConfig locates the three input files.
type SourceConfig struct {
	// DataDir is the directory holding the input files (default: data)
	DataDir string `env:"DATA_DIR" default:"data"`

	// AlumnosFile is the roster CSV, relative to DataDir (default: alumnos.csv)
	AlumnosFile string `env:"ALUMNOS_FILE" default:"alumnos.csv"`

	// CalificacionesFile is the grades JSON (default: calificaciones.json)
	CalificacionesFile string `env:"CALIFICACIONES_FILE" default:"calificaciones.json"`

	// MatriculasFile is the enrollment XML (default: matriculas.xml)
	MatriculasFile string `env:"MATRICULAS_FILE" default:"matriculas.xml"`

	// ArchiveDir receives snappy-compressed raw copies per run; empty disables
	ArchiveDir string `env:"RAW_ARCHIVE_DIR"`

	// MaxFileSize is the per-file size limit in bytes (default: 100MB)
	MaxFileSize int64 `env:"SOURCE_MAX_FILE_SIZE" default:"104857600"`
}

// StoreConfig holds database settings.
type StoreConfig struct {
	// Driver selects the backend: sqlite, mysql or postgres (default: sqlite)
	Driver string `env:"STORE_DRIVER" default:"sqlite"`

	// URL is the DSN or connection string (default: etl.db)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" default:"etl.db"`

	// MaxConns is the maximum number of open connections (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `env:"DB_MIN_CONNS" default:"0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// FactTable is replaced on every successful run (default: hechos)
	FactTable string `env:"FACT_TABLE" default:"hechos"`

	// MonitorTable receives one audit row per run (default: etl_monitor)
	MonitorTable string `env:"MONITOR_TABLE" default:"etl_monitor"`
}

// PipelineConfig controls reconciliation and cleaning.
type PipelineConfig struct {
	// KeyColumn is the preferred join key (default: id_alumno)
	KeyColumn string `env:"KEY_COLUMN" default:"id_alumno"`

	// KeyAliases are tried in order when a table lacks KeyColumn
	KeyAliases []string `env:"KEY_ALIASES" default:"idAlumno,idalumno,alumno_id"`

	// NumericColumns are coerced to numbers during reconciliation
	NumericColumns []string `env:"NUMERIC_COLUMNS" default:"id_alumno,id_matricula,anio"`

	// ColumnOrder overrides the fact column order after the key; empty keeps the built-in order
	ColumnOrder []string `env:"COLUMN_ORDER"`

	// EmailDomain is used for synthesized addresses (default: colegio.edu)
	EmailDomain string `env:"EMAIL_DOMAIN" default:"colegio.edu"`

	// ScoreMin and ScoreMax bound normalized scores (default: 0 and 5)
	ScoreMin float64 `env:"SCORE_MIN" default:"0"`
	ScoreMax float64 `env:"SCORE_MAX" default:"5"`

	// MessageMaxLen truncates FAIL audit messages (default: 500)
	MessageMaxLen int `env:"AUDIT_MESSAGE_MAX_LEN" default:"500"`

	// ProfilePath points at an optional YAML profile overlaying these settings
	ProfilePath string `env:"PROFILE_PATH"`

	// ExportCSV writes the final fact table to this path; empty disables
	ExportCSV string `env:"EXPORT_CSV"`

	// RunTimeout bounds a single run (default: 10m)
	RunTimeout time.Duration `env:"RUN_TIMEOUT" default:"10m"`
}

// ScheduleConfig holds scheduled mode settings.
type ScheduleConfig struct {
	// Interval between scheduled runs (default: 1h)
	Interval time.Duration `env:"SCHEDULE_INTERVAL" default:"1h"`

	// RunOnStart triggers a run as soon as the scheduler starts (default: true)
	RunOnStart bool `env:"SCHEDULE_RUN_ON_START" default:"true"`

	// RunWaitTime is how long a trigger waits for a running run to finish (default: 1s)
	RunWaitTime time.Duration `env:"RUN_WAIT_TIME" default:"1s"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 0, runs can be slow)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 15m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"15m"`

	// CORSOrigins lists allowed origins for the monitor API (default: *)
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" default:"*"`

	// RateLimit is requests per minute per client IP; 0 disables (default: 100)
	RateLimit int `env:"RATE_LIMIT_PER_MINUTE" default:"100"`

	// RequireAPIKey protects the run trigger with X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys are the accepted X-API-Key values
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies are CIDRs whose X-Real-IP / X-Forwarded-For headers are honored
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
