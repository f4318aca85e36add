// Package runner wires the file source, the pipeline and the store together
// and serializes runs coming from the CLI, the scheduler and the HTTP API.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/schoolfacts/internal/config"
	"github.com/JonMunkholm/schoolfacts/internal/core"
	"github.com/JonMunkholm/schoolfacts/internal/logging"
	"github.com/JonMunkholm/schoolfacts/internal/source"
	"github.com/JonMunkholm/schoolfacts/internal/store"
)

// Trigger names recorded in logs.
const (
	TriggerCLI      = "cli"
	TriggerSchedule = "schedule"
	TriggerHTTP     = "http"
)

// Runner executes pipeline runs one at a time.
type Runner struct {
	source   core.Source
	store    store.Store
	opts     core.Options
	limiter  *RunLimiter
	timeout  time.Duration
	export   string
	pipeOpts []core.PipelineOption

	mu   sync.RWMutex
	last *core.Result
}

// Option configures a Runner.
type Option func(*Runner)

// WithPipelineOptions passes extra options to every pipeline, for tests.
func WithPipelineOptions(opts ...core.PipelineOption) Option {
	return func(r *Runner) { r.pipeOpts = append(r.pipeOpts, opts...) }
}

// WithLimiter shares a limiter between runners.
func WithLimiter(l *RunLimiter) Option {
	return func(r *Runner) { r.limiter = l }
}

// New creates a runner from configuration.
func New(cfg *config.Config, src core.Source, st store.Store, options ...Option) *Runner {
	r := &Runner{
		source:  src,
		store:   st,
		opts:    OptionsFromConfig(cfg.Pipeline),
		limiter: NewRunLimiter(1, cfg.Schedule.RunWaitTime),
		timeout: cfg.Pipeline.RunTimeout,
		export:  cfg.Pipeline.ExportCSV,
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// OptionsFromConfig converts pipeline settings into core options.
func OptionsFromConfig(pc config.PipelineConfig) core.Options {
	opts := core.DefaultOptions()
	if pc.KeyColumn != "" {
		opts.KeyColumn = pc.KeyColumn
	}
	if pc.KeyAliases != nil {
		opts.KeyAliases = pc.KeyAliases
	}
	if pc.NumericColumns != nil {
		opts.NumericColumns = pc.NumericColumns
	}
	if len(pc.ColumnOrder) > 0 {
		opts.ColumnOrder = pc.ColumnOrder
	}
	if pc.EmailDomain != "" {
		opts.EmailDomain = pc.EmailDomain
	}
	if pc.ScoreMin < pc.ScoreMax {
		opts.ScoreMin, opts.ScoreMax = pc.ScoreMin, pc.ScoreMax
	}
	if pc.MessageMaxLen > 0 {
		opts.MessageMaxLen = pc.MessageMaxLen
	}
	return opts
}

// SourceConfig converts source settings into a file source configuration.
func SourceConfig(sc config.SourceConfig) source.Config {
	return source.Config{
		DataDir: sc.DataDir,
		Files: map[string]string{
			core.DatasetAlumnos:        sc.AlumnosFile,
			core.DatasetCalificaciones: sc.CalificacionesFile,
			core.DatasetMatriculas:     sc.MatriculasFile,
		},
		ArchiveDir: sc.ArchiveDir,
		MaxBytes:   sc.MaxFileSize,
	}
}

// StoreConfig converts store settings into a store configuration.
func StoreConfig(sc config.StoreConfig) store.Config {
	return store.Config{
		Driver:          sc.Driver,
		URL:             sc.URL,
		FactTable:       sc.FactTable,
		MonitorTable:    sc.MonitorTable,
		MaxConns:        sc.MaxConns,
		MinConns:        sc.MinConns,
		MaxConnLifetime: sc.MaxConnLifetime,
		MaxConnIdleTime: sc.MaxConnIdleTime,
	}
}

// Run executes one pipeline run. It returns ErrRunInProgress when another
// run holds the slot past the configured wait.
func (r *Runner) Run(ctx context.Context, trigger string) (*core.Result, error) {
	ctx = core.ContextWithTrigger(ctx, trigger)
	log := logging.FromContext(ctx)

	if err := r.limiter.Acquire(ctx); err != nil {
		log.Warn("run rejected", "error", err)
		return nil, err
	}
	defer r.limiter.Release()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	opts := append([]core.PipelineOption{core.WithEventSink(logging.EventSink(log))}, r.pipeOpts...)
	p := core.NewPipeline(r.source, r.store, r.store, r.opts, opts...)

	res, err := p.Run(ctx)
	if err != nil {
		return nil, err
	}

	if r.export != "" {
		elog := logging.WithFields(ctx, "run_id", res.RunID, "path", r.export)
		if err := ExportCSV(r.export, res.Facts); err != nil {
			elog.Warn("failed to export fact table", "error", err)
		} else {
			elog.Info("fact table exported", "rows", res.Facts.Len())
		}
	}

	r.mu.Lock()
	r.last = res
	r.mu.Unlock()
	return res, nil
}

// Last returns the most recent successful result of this process, if any.
func (r *Runner) Last() *core.Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Busy reports whether a run is in progress.
func (r *Runner) Busy() bool {
	return r.limiter.ActiveCount() > 0
}

// Status returns the limiter snapshot.
func (r *Runner) Status() LimiterStatus {
	return r.limiter.Status()
}

// Store returns the underlying store.
func (r *Runner) Store() store.Store {
	return r.store
}

// Drain waits for an active run to finish.
func (r *Runner) Drain(ctx context.Context) error {
	if err := r.limiter.WaitForDrain(ctx); err != nil {
		slog.Warn("run still active at shutdown", "error", err)
		return err
	}
	return nil
}
