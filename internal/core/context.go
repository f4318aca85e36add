package core

import "context"

type contextKey string

const (
	ctxKeyRunID   contextKey = "run_id"
	ctxKeyTrigger contextKey = "run_trigger"
)

// ContextWithRunID adds the run id to context so collaborators (source
// snapshots, log lines) can tag their output.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ctxKeyRunID, runID)
}

// RunIDFromContext extracts the run id from context.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRunID).(string); ok {
		return v
	}
	return ""
}

// ContextWithTrigger records what started the run (cli, schedule, http).
func ContextWithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, ctxKeyTrigger, trigger)
}

// TriggerFromContext extracts the run trigger from context.
func TriggerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTrigger).(string); ok {
		return v
	}
	return ""
}
