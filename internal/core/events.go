package core

// EventLevel is the severity of a pipeline event.
type EventLevel int

const (
	EventDebug EventLevel = iota
	EventInfo
	EventWarn
	EventError
)

func (l EventLevel) String() string {
	switch l {
	case EventDebug:
		return "debug"
	case EventWarn:
		return "warn"
	case EventError:
		return "error"
	default:
		return "info"
	}
}

// Stage names used in events.
const (
	StageExtract   = "extract"
	StageReconcile = "reconcile"
	StageClean     = "clean"
	StageJoin      = "join"
	StageMetrics   = "metrics"
	StageLoad      = "load"
	StageRecord    = "record"
)

// Event is a structured progress or failure report from the pipeline.
type Event struct {
	Level   EventLevel
	RunID   string
	Stage   string
	Message string
	Fields  map[string]any
	Err     error
}

// EventSink receives pipeline events. It is called synchronously from the
// goroutine running the pipeline and must not block for long.
type EventSink func(Event)

// discardEvents is the sink used when none is configured.
func discardEvents(Event) {}
