package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/schoolfacts/internal/config"
	"github.com/JonMunkholm/schoolfacts/internal/core"
	"github.com/JonMunkholm/schoolfacts/internal/runner"
	"github.com/JonMunkholm/schoolfacts/internal/source"
	"github.com/JonMunkholm/schoolfacts/internal/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var fixtures = map[string]string{
	"alumnos.csv": "id_alumno,nombre,apellido,grado,correo,fecha_nacimiento\n" +
		"1,José,Pérez,10,,2008-05-01\n" +
		"2,Ana,Gómez,11,ana@colegio.edu,2007-02-11\n",
	"calificaciones.json": `[
  {"id_alumno": 1, "asignatura": "Matemáticas", "nota": 7.8, "periodo": "2024-1"},
  {"id_alumno": 2, "asignatura": "Historia", "nota": 3.44, "periodo": "2024-1"}
]`,
	"matriculas.xml": `<matriculas><matricula><id_alumno>1</id_alumno><id_matricula>100</id_matricula>` +
		`<anio>2024</anio><estado>activa</estado><jornada>mañana</jornada></matricula></matriculas>`,
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		Source: config.SourceConfig{
			DataDir:            dir,
			AlumnosFile:        "alumnos.csv",
			CalificacionesFile: "calificaciones.json",
			MatriculasFile:     "matriculas.xml",
		},
		Store: config.StoreConfig{
			Driver:       "sqlite",
			URL:          filepath.Join(dir, "etl.db"),
			MaxConns:     2,
			FactTable:    "hechos",
			MonitorTable: "etl_monitor",
		},
		Pipeline: config.PipelineConfig{
			EmailDomain:   "colegio.edu",
			ScoreMin:      0,
			ScoreMax:      5,
			MessageMaxLen: 500,
			RunTimeout:    time.Minute,
		},
		Schedule: config.ScheduleConfig{Interval: time.Hour},
		Server: config.ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			RequestTimeout: time.Minute,
			CORSOrigins:    []string{"*"},
		},
	}
}

type testEnv struct {
	dir    string
	cfg    *config.Config
	runner *runner.Runner
	store  store.Store
	server *Server
}

func newTestEnv(t *testing.T, withFixtures bool, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	dir := t.TempDir()
	if withFixtures {
		for name, body := range fixtures {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
		}
	}
	cfg := testConfig(dir)
	for _, m := range mutate {
		m(cfg)
	}

	st, err := store.Open(context.Background(), runner.StoreConfig(cfg.Store))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	r := runner.New(cfg, source.NewFileSource(runner.SourceConfig(cfg.Source)), st)
	srv := NewServer(r, cfg.Server)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	return &testEnv{dir: dir, cfg: cfg, runner: r, store: st, server: srv}
}

func (e *testEnv) do(t *testing.T, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

// =============================================================================
// RUN TRIGGER TESTS
// =============================================================================

func TestTriggerRun_Success(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/api/runs", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		RunID   string          `json:"runId"`
		Status  string          `json:"status"`
		Stored  int64           `json:"stored"`
		Mean    float64         `json:"promedioNotasGeneral"`
		Metrics core.RunMetrics `json:"metrics"`
	}
	decode(t, rec, &resp)

	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, "OK", resp.Status)
	assert.Equal(t, int64(2), resp.Stored)
	assert.Equal(t, 5, resp.Metrics.RegistrosLeidos)
	assert.Equal(t, 2, resp.Metrics.RegistrosValidos)
	assert.Equal(t, 1, resp.Metrics.CorreosGenerados)
	assert.InDelta(t, 4.2, resp.Mean, 1e-9)
}

func TestTriggerRun_MissingSource(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPost, "/api/runs", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	var resp ErrorResponse
	decode(t, rec, &resp)
	assert.Equal(t, "SRC001", resp.Code)
	assert.NotEmpty(t, resp.RunID)

	latest, err := env.store.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.StatusFail, latest.Status)
	assert.Equal(t, resp.RunID, latest.RunID)
}

func TestTriggerRun_RequiresAPIKey(t *testing.T) {
	env := newTestEnv(t, true, func(c *config.Config) {
		c.Server.RequireAPIKey = true
		c.Server.APIKeys = []string{"secret"}
	})

	rec := env.do(t, http.MethodPost, "/api/runs", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/runs", http.Header{"X-Api-Key": {"wrong"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/runs", http.Header{"X-Api-Key": {"secret"}})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// reads stay open
	rec = env.do(t, http.MethodGet, "/api/runs", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// READ ENDPOINT TESTS
// =============================================================================

func TestListRuns(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	_, err := env.runner.Run(ctx, runner.TriggerCLI)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(env.dir, "matriculas.xml")))
	_, err = env.runner.Run(ctx, runner.TriggerCLI)
	require.Error(t, err)

	var resp struct {
		Runs []struct {
			RunID  string `json:"runId"`
			Status string `json:"status"`
		} `json:"runs"`
		Count int `json:"count"`
	}

	rec := env.do(t, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "FAIL", resp.Runs[0].Status)
	assert.Equal(t, "OK", resp.Runs[1].Status)

	rec = env.do(t, http.MethodGet, "/api/runs?status=ok&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "OK", resp.Runs[0].Status)
}

func TestListRuns_BadParams(t *testing.T) {
	env := newTestEnv(t, true)

	for _, target := range []string{"/api/runs?limit=-1", "/api/runs?limit=ten", "/api/runs?status=MAYBE"} {
		rec := env.do(t, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestLatestRun(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodGet, "/api/runs/latest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	res, err := env.runner.Run(context.Background(), runner.TriggerCLI)
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/api/runs/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		RunID           string  `json:"runId"`
		DurationSeconds float64 `json:"durationSeconds"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, res.RunID, resp.RunID)
	assert.GreaterOrEqual(t, resp.DurationSeconds, 0.0)
}

func TestFacts(t *testing.T) {
	env := newTestEnv(t, true)

	var resp factsResponse
	rec := env.do(t, http.MethodGet, "/api/facts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, 0, resp.Count)

	_, err := env.runner.Run(context.Background(), runner.TriggerCLI)
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/api/facts?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, "hechos", resp.Table)
	require.Equal(t, 1, resp.Count)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "id_alumno", resp.Columns[0])
	assert.Len(t, resp.Rows[0], len(resp.Columns))
}

func TestStatusAndHealth(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var status statusResponse
	rec = env.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &status)
	assert.False(t, status.Busy)
	assert.Nil(t, status.Last)
	assert.Equal(t, 1, status.Limiter.MaxConcurrent)

	_, err := env.runner.Run(context.Background(), runner.TriggerCLI)
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/api/status", nil)
	decode(t, rec, &status)
	require.NotNil(t, status.Last)
	assert.Equal(t, core.StatusOK, status.Last.Status)
}

// =============================================================================
// MIDDLEWARE TESTS
// =============================================================================

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodGet, "/api/status", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'none'")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, true, func(c *config.Config) { c.Server.RateLimit = 2 })

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodGet, "/api/status", nil)
		require.Equal(t, http.StatusOK, rec.Code, fmt.Sprintf("request %d", i))
	}
	rec := env.do(t, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodOptions, "/api/runs", http.Header{
		"Origin":                        {"http://example.com"},
		"Access-Control-Request-Method": {"POST"},
	})
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST"))
}

// =============================================================================
// ERROR MAPPING TESTS
// =============================================================================

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"run in progress", runner.ErrRunInProgress, http.StatusConflict},
		{"source", &core.SourceError{Source: "alumnos", Err: os.ErrNotExist}, http.StatusUnprocessableEntity},
		{"no key column", core.ErrNoKeyColumn, http.StatusUnprocessableEntity},
		{"no runs", store.ErrNoRuns, http.StatusNotFound},
		{"deadline", fmt.Errorf("load facts: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestRespondError_UnknownError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rec := httptest.NewRecorder()

	respondError(rec, req, errors.New("pq: something odd"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp ErrorResponse
	decode(t, rec, &resp)
	assert.Equal(t, "ERR000", resp.Code)
	assert.Equal(t, "An unexpected error occurred", resp.Error)
	assert.NotContains(t, rec.Body.String(), "something odd")
}

func TestRespondError_Conflict(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/runs", nil)
	rec := httptest.NewRecorder()

	respondError(rec, req, runner.ErrRunInProgress)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	var resp ErrorResponse
	decode(t, rec, &resp)
	assert.Equal(t, "RUN001", resp.Code)
}
