package logging

import (
	"context"
	"log/slog"
	"sort"

	"github.com/JonMunkholm/schoolfacts/internal/core"
)

// EventSink adapts pipeline events to logger. A nil logger uses the
// default logger at the time each event is emitted.
func EventSink(logger *slog.Logger) core.EventSink {
	return func(e core.Event) {
		l := logger
		if l == nil {
			l = slog.Default()
		}
		l.LogAttrs(context.Background(), eventLevel(e.Level), e.Message, eventAttrs(e)...)
	}
}

func eventLevel(l core.EventLevel) slog.Level {
	switch l {
	case core.EventDebug:
		return slog.LevelDebug
	case core.EventWarn:
		return slog.LevelWarn
	case core.EventError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// eventAttrs flattens an event into attributes with fields in key order.
func eventAttrs(e core.Event) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(e.Fields)+3)
	if e.RunID != "" {
		attrs = append(attrs, slog.String("run_id", e.RunID))
	}
	if e.Stage != "" {
		attrs = append(attrs, slog.String("stage", e.Stage))
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, e.Fields[k]))
	}

	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
		if msg := core.MapError(e.Err); msg.Code != "" {
			attrs = append(attrs, slog.String("error_code", msg.Code))
		}
	}
	return attrs
}
