package core

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

// RunStatus is the outcome recorded for a run.
type RunStatus string

const (
	StatusOK   RunStatus = "OK"
	StatusFail RunStatus = "FAIL"
)

// RunLogEntry is one append-only audit row.
type RunLogEntry struct {
	ID       int64         `json:"id,omitempty"`
	RunID    string        `json:"runId"`
	RunAt    time.Time     `json:"runAt"`
	Metrics  RunMetrics    `json:"metrics"`
	Duration time.Duration `json:"-"`
	Status   RunStatus     `json:"status"`
	Message  string        `json:"message,omitempty"`
}

// DurationSeconds returns the run duration in seconds with two decimals.
func (e RunLogEntry) DurationSeconds() float64 {
	return RoundHalfAwayFromZero(e.Duration.Seconds(), 2)
}

// Recorder appends audit rows. Implementations must never update or delete
// existing rows.
type Recorder interface {
	AppendRun(ctx context.Context, entry RunLogEntry) error
}

// RunLister reads audit rows back, newest first.
type RunLister interface {
	ListRuns(ctx context.Context, opts ListRunsOptions) ([]RunLogEntry, error)
}

// ListRunsOptions filters a run listing.
type ListRunsOptions struct {
	Limit  int       // 0 means the store default
	Status RunStatus // empty means any status
}

// NewSuccessEntry builds the audit row for a completed run.
func NewSuccessEntry(runID string, at time.Time, m RunMetrics, d time.Duration) RunLogEntry {
	return RunLogEntry{
		RunID:    runID,
		RunAt:    at,
		Metrics:  m,
		Duration: d,
		Status:   StatusOK,
	}
}

// NewFailureEntry builds the audit row for a failed run. Metrics are zeroed
// whatever the failing stage had computed, and the message is the error text
// truncated to maxLen runes.
func NewFailureEntry(runID string, at time.Time, d time.Duration, err error, maxLen int) RunLogEntry {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return RunLogEntry{
		RunID:    runID,
		RunAt:    at,
		Duration: d,
		Status:   StatusFail,
		Message:  TruncateMessage(msg, maxLen),
	}
}

// TruncateMessage cuts s to at most max runes without splitting a
// multi-byte character. Invalid UTF-8 is replaced first.
func TruncateMessage(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
