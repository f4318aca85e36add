package config

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values, overlays the pipeline profile when
// PROFILE_PATH is set, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if cfg.Pipeline.ProfilePath != "" {
		p, err := LoadProfile(cfg.Pipeline.ProfilePath)
		if err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
		p.Apply(&cfg.Pipeline)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
		}

		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			field.Set(reflect.ValueOf(splitList(value)))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// splitList splits comma-separated values and trims whitespace.
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// identRegex limits table and column names to plain SQL identifiers.
var identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Source validation
	if c.Source.DataDir == "" {
		errs = append(errs, "DATA_DIR is required")
	}
	if c.Source.MaxFileSize < 0 {
		errs = append(errs, "SOURCE_MAX_FILE_SIZE must be non-negative")
	}

	// Store validation
	validDrivers := map[string]bool{"sqlite": true, "mysql": true, "postgres": true}
	if !validDrivers[strings.ToLower(c.Store.Driver)] {
		errs = append(errs, fmt.Sprintf("STORE_DRIVER (%q) must be one of: sqlite, mysql, postgres", c.Store.Driver))
	}
	if c.Store.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Store.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Store.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}
	if c.Store.MaxConns < c.Store.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Store.MaxConns, c.Store.MinConns))
	}
	if !identRegex.MatchString(c.Store.FactTable) {
		errs = append(errs, fmt.Sprintf("FACT_TABLE (%q) must be a plain identifier", c.Store.FactTable))
	}
	if !identRegex.MatchString(c.Store.MonitorTable) {
		errs = append(errs, fmt.Sprintf("MONITOR_TABLE (%q) must be a plain identifier", c.Store.MonitorTable))
	}
	if c.Store.FactTable == c.Store.MonitorTable {
		errs = append(errs, "FACT_TABLE and MONITOR_TABLE must differ")
	}

	// Pipeline validation
	if !identRegex.MatchString(c.Pipeline.KeyColumn) {
		errs = append(errs, fmt.Sprintf("KEY_COLUMN (%q) must be a plain identifier", c.Pipeline.KeyColumn))
	}
	for _, col := range c.Pipeline.ColumnOrder {
		if !identRegex.MatchString(col) {
			errs = append(errs, fmt.Sprintf("COLUMN_ORDER entry %q must be a plain identifier", col))
		}
	}
	if c.Pipeline.EmailDomain == "" || strings.ContainsAny(c.Pipeline.EmailDomain, "@ ") {
		errs = append(errs, fmt.Sprintf("EMAIL_DOMAIN (%q) must be a bare domain", c.Pipeline.EmailDomain))
	}
	if c.Pipeline.ScoreMin >= c.Pipeline.ScoreMax {
		errs = append(errs, fmt.Sprintf("SCORE_MIN (%v) must be < SCORE_MAX (%v)", c.Pipeline.ScoreMin, c.Pipeline.ScoreMax))
	}
	if c.Pipeline.MessageMaxLen <= 0 {
		errs = append(errs, "AUDIT_MESSAGE_MAX_LEN must be positive")
	}
	if c.Pipeline.RunTimeout <= 0 {
		errs = append(errs, "RUN_TIMEOUT must be positive")
	}

	// Schedule validation
	if c.Schedule.Interval <= 0 {
		errs = append(errs, "SCHEDULE_INTERVAL must be positive")
	}
	if c.Schedule.RunWaitTime < 0 {
		errs = append(errs, "RUN_WAIT_TIME must be non-negative")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "RATE_LIMIT_PER_MINUTE must be non-negative")
	}
	if c.Server.RequireAPIKey && len(c.Server.APIKeys) == 0 {
		errs = append(errs, "API_KEYS must be set when REQUIRE_API_KEY is true")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// The database URL is masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Source: {DataDir: %q, ArchiveDir: %q}, ", c.Source.DataDir, c.Source.ArchiveDir))
	b.WriteString(fmt.Sprintf("Store: {Driver: %q, URL: [MASKED], FactTable: %q, MonitorTable: %q}, ",
		c.Store.Driver, c.Store.FactTable, c.Store.MonitorTable))
	b.WriteString(fmt.Sprintf("Pipeline: {KeyColumn: %q, KeyAliases: %v, EmailDomain: %q}, ",
		c.Pipeline.KeyColumn, c.Pipeline.KeyAliases, c.Pipeline.EmailDomain))
	b.WriteString(fmt.Sprintf("Schedule: {Interval: %s}, ", c.Schedule.Interval))
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d, APIKeys: [%d MASKED]}, ", c.Server.Host, c.Server.Port, len(c.Server.APIKeys)))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
