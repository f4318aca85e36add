package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/schoolfacts/internal/table"
)

// Outcome is the result of the pure transform stages.
type Outcome struct {
	Reconciled *Reconciled
	Cleaned    *Cleaned
	Facts      *table.Table
	Metrics    RunMetrics
}

// Transform runs reconciliation, cleaning, joining and aggregation over in.
// It performs no I/O and never modifies in.
func Transform(in Tables, opts Options) (*Outcome, error) {
	opts = opts.withDefaults()

	rec, err := Reconcile(in, opts)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	cleaned := Clean(rec, opts)
	facts := BuildFacts(cleaned, opts)

	return &Outcome{
		Reconciled: rec,
		Cleaned:    cleaned,
		Facts:      facts,
		Metrics:    Aggregate(in, rec, cleaned, facts),
	}, nil
}

// Result describes a finished run.
type Result struct {
	RunID    string
	Facts    *table.Table
	Metrics  RunMetrics
	Entry    RunLogEntry
	Stored   int64
	AuditErr error // set when the audit row could not be written
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithEventSink routes pipeline events to sink.
func WithEventSink(sink EventSink) PipelineOption {
	return func(p *Pipeline) {
		if sink != nil {
			p.sink = sink
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// WithRunIDs replaces the run id generator, for tests.
func WithRunIDs(next func() string) PipelineOption {
	return func(p *Pipeline) { p.newID = next }
}

// Pipeline drives one full run: extract, transform, load, record.
// It is not safe for concurrent Run calls; callers serialize runs.
type Pipeline struct {
	source   Source
	facts    FactWriter
	recorder Recorder
	opts     Options
	sink     EventSink
	now      func() time.Time
	newID    func() string
}

// NewPipeline creates a pipeline. facts may be nil to skip persistence.
func NewPipeline(source Source, facts FactWriter, recorder Recorder, opts Options, options ...PipelineOption) *Pipeline {
	p := &Pipeline{
		source:   source,
		facts:    facts,
		recorder: recorder,
		opts:     opts.withDefaults(),
		sink:     discardEvents,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// Run executes one run. On failure the FAIL audit row is written on a best
// effort basis and the stage error is returned unchanged in meaning. A
// failed audit write on success is reported in Result.AuditErr and through
// the event sink, never as the returned error.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	runID := p.newID()
	ctx = ContextWithRunID(ctx, runID)
	startedAt := p.now()

	p.emit(Event{Level: EventInfo, RunID: runID, Stage: StageExtract, Message: "run started",
		Fields: map[string]any{"trigger": TriggerFromContext(ctx)}})

	res, err := p.run(ctx, runID)
	elapsed := p.now().Sub(startedAt)

	if err != nil {
		entry := NewFailureEntry(runID, startedAt, elapsed, err, p.opts.MessageMaxLen)
		p.emit(Event{Level: EventError, RunID: runID, Stage: stageOf(err), Message: "run failed", Err: err})
		if auditErr := p.record(ctx, entry); auditErr != nil {
			p.emit(Event{Level: EventError, RunID: runID, Stage: StageRecord,
				Message: "failed to record failed run", Err: auditErr})
		}
		return nil, &runError{runID: runID, err: err}
	}

	res.Entry = NewSuccessEntry(runID, startedAt, res.Metrics, elapsed)
	if auditErr := p.record(ctx, res.Entry); auditErr != nil {
		res.AuditErr = auditErr
		p.emit(Event{Level: EventError, RunID: runID, Stage: StageRecord,
			Message: "failed to record run", Err: auditErr})
	}

	m := res.Metrics
	p.emit(Event{Level: EventInfo, RunID: runID, Stage: StageRecord, Message: "run completed",
		Fields: map[string]any{
			"registros_leidos":          m.RegistrosLeidos,
			"registros_validos":         m.RegistrosValidos,
			"registros_descartados":     m.RegistrosDescartados,
			"total_alumnos_unicos":      m.TotalAlumnosUnicos,
			"total_materias_diferentes": m.TotalMateriasDiferentes,
			"promedio_notas_general":    m.MeanDisplay(),
			"correos_generados":         m.CorreosGenerados,
			"alumnos_con_matricula":     m.AlumnosConMatricula,
			"duracion_s":                res.Entry.DurationSeconds(),
		}})

	return res, nil
}

// stageError tags an error with the stage it came from.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// runError carries the id of the failed run so callers can point at its
// FAIL row.
type runError struct {
	runID string
	err   error
}

func (e *runError) Error() string { return e.err.Error() }
func (e *runError) Unwrap() error { return e.err }

// RunIDFromError returns the run id attached to an error returned by
// Pipeline.Run, or "".
func RunIDFromError(err error) string {
	var re *runError
	if errors.As(err, &re) {
		return re.runID
	}
	return ""
}

func stageOf(err error) string {
	if se, ok := err.(*stageError); ok {
		return se.stage
	}
	return ""
}

func (p *Pipeline) run(ctx context.Context, runID string) (*Result, error) {
	t0 := p.now()
	in, err := p.source.Load(ctx)
	if err != nil {
		return nil, &stageError{StageExtract, err}
	}
	p.timing(runID, StageExtract, t0, map[string]any{
		"alumnos_rows":        in.Alumnos.Len(),
		"calificaciones_rows": in.Calificaciones.Len(),
		"matriculas_rows":     in.Matriculas.Len(),
	})
	if err := ctx.Err(); err != nil {
		return nil, &stageError{StageExtract, err}
	}

	t0 = p.now()
	out, err := Transform(in, p.opts)
	if err != nil {
		return nil, &stageError{StageReconcile, err}
	}
	for _, r := range out.Reconciled.Resolutions {
		if r.Column == "" {
			p.emit(Event{Level: EventWarn, RunID: runID, Stage: StageReconcile,
				Message: "table has no key column; all rows discarded",
				Fields:  map[string]any{"table": r.Table, "key": out.Reconciled.Key}})
		} else if r.Renamed {
			p.emit(Event{Level: EventDebug, RunID: runID, Stage: StageReconcile,
				Message: "key column renamed",
				Fields:  map[string]any{"table": r.Table, "from": r.Column, "to": out.Reconciled.Key}})
		}
	}
	p.emit(Event{Level: EventDebug, RunID: runID, Stage: StageClean, Message: "roster and grades cleaned",
		Fields: map[string]any{
			"duplicados_eliminados": out.Cleaned.Stats.DuplicatesRemoved,
			"correos_generados":     out.Cleaned.Stats.AddressesSynthesized,
			"notas_fuera_rango":     out.Cleaned.Stats.ScoresOutOfRange,
		}})
	if n := DuplicateKeys(out.Cleaned.Matriculas, out.Reconciled.Key); n > 0 {
		p.emit(Event{Level: EventWarn, RunID: runID, Stage: StageJoin,
			Message: "enrollment has several rows per key; first row used",
			Fields:  map[string]any{"keys": n}})
	}
	p.emit(Event{Level: EventDebug, RunID: runID, Stage: StageMetrics, Message: "metrics aggregated",
		Fields: map[string]any{
			"registros_leidos":      out.Metrics.RegistrosLeidos,
			"registros_descartados": out.Metrics.RegistrosDescartados,
			"total_alumnos_unicos":  out.Metrics.TotalAlumnosUnicos,
		}})
	p.timing(runID, "transform", t0, map[string]any{
		"key":                   out.Reconciled.Key,
		"duplicados_eliminados": out.Metrics.DuplicadosEliminados,
		"notas_fuera_rango":     out.Metrics.NotasFueraRango,
		"registros_validos":     out.Facts.Len(),
	})
	if err := ctx.Err(); err != nil {
		return nil, &stageError{StageJoin, err}
	}

	res := &Result{RunID: runID, Facts: out.Facts, Metrics: out.Metrics}

	if p.facts != nil {
		t0 = p.now()
		stored, err := p.facts.ReplaceFacts(ctx, out.Facts)
		if err != nil {
			return nil, &stageError{StageLoad, fmt.Errorf("load facts: %w", err)}
		}
		if stored != int64(out.Facts.Len()) {
			return nil, &stageError{StageLoad, fmt.Errorf("%w: stored %d, expected %d", ErrLoadMismatch, stored, out.Facts.Len())}
		}
		res.Stored = stored
		p.timing(runID, StageLoad, t0, map[string]any{"stored": stored})
	}

	return res, nil
}

// record writes the audit row even if ctx was cancelled, so a cancelled run
// still leaves its FAIL row behind.
func (p *Pipeline) record(ctx context.Context, entry RunLogEntry) error {
	if p.recorder == nil {
		return nil
	}
	return p.recorder.AppendRun(context.WithoutCancel(ctx), entry)
}

func (p *Pipeline) timing(runID, stage string, start time.Time, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["elapsed_ms"] = p.now().Sub(start).Milliseconds()
	p.emit(Event{Level: EventInfo, RunID: runID, Stage: stage, Message: "stage finished", Fields: fields})
}

func (p *Pipeline) emit(e Event) {
	p.sink(e)
}
