// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/proctor/internal/adapters/camera"
	service "github.com/okian/proctor/internal/app"
	"github.com/okian/proctor/internal/domain/session"
	"github.com/okian/proctor/internal/domain/types"
)

// SessionDependencies drive live proctoring sessions.
type SessionDependencies interface {
	StartSession(ctx context.Context, req types.StartSessionRequest) (types.Session, error)
	StopSession(ctx context.Context, id string) (types.Record, error)
	Get(ctx context.Context, id string) (types.Session, error)
	Signal(ctx context.Context, id string, req types.SignalRequest) error
	PushFrame(ctx context.Context, id string, frame []byte) error
	Camera(ctx context.Context, id string, req types.CameraRequest) error
}

// RecordDependencies read finished session records.
type RecordDependencies interface {
	Record(ctx context.Context, id string) (types.Record, error)
	Records(ctx context.Context, limit int) ([]types.Record, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SessionDependencies
	RecordDependencies
}

// Server wires HTTP routes for the proctoring API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	sessionsHandler *SessionsHandler
	recordsHandler  *RecordsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		sessionsHandler: NewSessionsHandler(deps),
		recordsHandler:  NewRecordsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /sessions", MetricsMiddleware(s.sessionsHandler.HandleStart, "sessions_start"))
	mux.HandleFunc("GET /sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleGet, "sessions_get"))
	mux.HandleFunc("POST /sessions/{id}/stop", MetricsMiddleware(s.sessionsHandler.HandleStop, "sessions_stop"))
	mux.HandleFunc("POST /sessions/{id}/signals", MetricsMiddleware(s.sessionsHandler.HandleSignal, "sessions_signal"))
	mux.HandleFunc("POST /sessions/{id}/frames", MetricsMiddleware(s.sessionsHandler.HandleFrame, "sessions_frame"))
	mux.HandleFunc("POST /sessions/{id}/camera", MetricsMiddleware(s.sessionsHandler.HandleCamera, "sessions_camera"))

	mux.HandleFunc("GET /records", MetricsMiddleware(s.recordsHandler.HandleList, "records_list"))
	mux.HandleFunc("GET /records/{id}", MetricsMiddleware(s.recordsHandler.HandleGet, "records_get"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// classify maps an upstream error onto an API kind.
func classify(op string, err error) error {
	var kind error
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		kind = ErrNotFound
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrInvalidSignal),
		errors.Is(err, service.ErrInvalidCameraAction),
		errors.Is(err, camera.ErrEmptyFrame):
		kind = ErrBadRequest
	case errors.Is(err, camera.ErrFrameTooLarge):
		kind = ErrFrameTooLarge
	case errors.Is(err, session.ErrCameraUnavailable),
		errors.Is(err, session.ErrAlreadyActive),
		errors.Is(err, service.ErrSessionNotActive),
		errors.Is(err, camera.ErrPermissionDenied):
		kind = ErrConflict
	case errors.Is(err, service.ErrNotStarted):
		kind = ErrUnavailable
	default:
		kind = ErrInternal
	}
	return WrapKind(op, kind, err)
}

// writeKindError writes err with the status and code of its kind.
func writeKindError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, ErrConflict):
		code := "conflict"
		if errors.Is(err, session.ErrCameraUnavailable) || errors.Is(err, camera.ErrPermissionDenied) {
			code = "camera_unavailable"
		}
		writeError(w, http.StatusConflict, code, err)
	case errors.Is(err, ErrFrameTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "frame_too_large", err)
	case errors.Is(err, ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}
