package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged server-side with the technical message and the
// request id, and returned to the client as the coded operator message from
// core.MapError. The status code is derived from the error chain.

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/schoolfacts/internal/core"
	"github.com/JonMunkholm/schoolfacts/internal/runner"
	"github.com/JonMunkholm/schoolfacts/internal/store"
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	RunID   string `json:"runId,omitempty"`
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, runner.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, core.ErrSourceUnreadable), errors.Is(err, core.ErrNoKeyColumn):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNoRuns):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the mapped JSON error. Errors with a
// known code are logged at warn level; unknown ones at error level.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	ue := core.NewUserError(err)

	level := slog.LevelError
	if core.IsUserFacing(err) {
		level = slog.LevelWarn
	}
	slog.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", ue.Technical.Error(),
		"code", ue.User.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	if status == http.StatusConflict {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, status, newErrorResponse(ue))
}

func newErrorResponse(ue *core.UserError) ErrorResponse {
	return ErrorResponse{
		Error:   ue.Error(),
		Message: ue.User.Message,
		Action:  ue.User.Action,
		Code:    ue.User.Code,
		RunID:   core.RunIDFromError(ue),
	}
}

// writeError writes a JSON error for failures raised by the web layer itself.
func writeError(w http.ResponseWriter, r *http.Request, status int, message, code string) {
	slog.Warn("request rejected",
		"path", r.URL.Path,
		"status", status,
		"reason", message,
		"request_id", middleware.GetReqID(r.Context()),
	)
	writeJSON(w, status, ErrorResponse{Error: message, Message: message, Code: code})
}

func hostOnly(addr string) (string, bool) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return "", false
	}
	return host, true
}
