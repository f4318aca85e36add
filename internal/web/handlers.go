package web

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/schoolfacts/internal/core"
	"github.com/JonMunkholm/schoolfacts/internal/runner"
	"github.com/JonMunkholm/schoolfacts/internal/table"
)

// runView is the API shape of one audit row.
type runView struct {
	ID              int64           `json:"id,omitempty"`
	RunID           string          `json:"runId"`
	RunAt           time.Time       `json:"runAt"`
	Status          core.RunStatus  `json:"status"`
	Message         string          `json:"message,omitempty"`
	DurationSeconds float64         `json:"durationSeconds"`
	Metrics         core.RunMetrics `json:"metrics"`
	Mean            float64         `json:"promedioNotasGeneral"`
}

func newRunView(e core.RunLogEntry) runView {
	return runView{
		ID:              e.ID,
		RunID:           e.RunID,
		RunAt:           e.RunAt,
		Status:          e.Status,
		Message:         e.Message,
		DurationSeconds: e.DurationSeconds(),
		Metrics:         e.Metrics,
		Mean:            e.Metrics.MeanDisplay(),
	}
}

// triggerResponse is returned by POST /api/runs.
type triggerResponse struct {
	runView
	Stored     int64  `json:"stored"`
	AuditError string `json:"auditError,omitempty"`
}

type statusResponse struct {
	Busy    bool                 `json:"busy"`
	Limiter runner.LimiterStatus `json:"limiter"`
	Last    *runView             `json:"last,omitempty"`
}

type factsResponse struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Count   int      `json:"count"`
}

// handleHealth reports whether the store is reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.runner.Store().Ping(ctx); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "store unavailable", "HEALTH001")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus returns the run slot state and the last run of this process.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Busy:    s.runner.Busy(),
		Limiter: s.runner.Status(),
	}
	if last := s.runner.Last(); last != nil {
		v := newRunView(last.Entry)
		resp.Last = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTriggerRun runs the pipeline synchronously. The run is detached from
// the request so a client disconnect does not abort a half-written load; the
// runner's own timeout still applies.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())

	res, err := s.runner.Run(ctx, runner.TriggerHTTP)
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := triggerResponse{
		runView: newRunView(res.Entry),
		Stored:  res.Stored,
	}
	if res.AuditErr != nil {
		resp.AuditError = core.FormatUserError(res.AuditErr)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleListRuns lists audit rows newest first.
//
// Query parameters: limit (default 50, max 1000), status (OK or FAIL).
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "limit", 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error(), "HTTP400")
		return
	}

	opts := core.ListRunsOptions{Limit: limit}
	switch status := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))); status {
	case "":
	case string(core.StatusOK), string(core.StatusFail):
		opts.Status = core.RunStatus(status)
	default:
		writeError(w, r, http.StatusBadRequest, "status must be OK or FAIL", "HTTP400")
		return
	}

	entries, err := s.runner.Store().ListRuns(r.Context(), opts)
	if err != nil {
		respondError(w, r, err)
		return
	}

	views := make([]runView, len(entries))
	for i, e := range entries {
		views[i] = newRunView(e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": views, "count": len(views)})
}

// handleLatestRun returns the newest audit row.
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	e, err := s.runner.Store().LatestRun(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRunView(e))
}

// handleFacts returns the first rows of the persisted fact table.
func (s *Server) handleFacts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "limit", 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error(), "HTTP400")
		return
	}

	t, err := s.runner.Store().Facts(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newFactsResponse(t))
}

func newFactsResponse(t *table.Table) factsResponse {
	resp := factsResponse{
		Table:   t.Name,
		Columns: t.Columns,
		Rows:    make([][]any, len(t.Rows)),
		Count:   t.Len(),
	}
	if resp.Columns == nil {
		resp.Columns = []string{}
	}
	for i, row := range t.Rows {
		vals := make([]any, len(t.Columns))
		for j, c := range t.Columns {
			vals[j] = row[c]
		}
		resp.Rows[i] = vals
	}
	return resp
}

// parseIntParam reads a non-negative integer query parameter.
func parseIntParam(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}
