// Package server exposes the training and testing flows over HTTP so a
// browser page can drive them. Audio arrives through the capture bridge
// WebSocket; progress leaves through the events WebSocket.
//
// Routes:
//
//	GET  /api/state                 training and testing state
//	POST /api/training/username     {"username": "..."}
//	POST /api/training/start|stop|reset
//	POST /api/testing/request       {"mode": "free_match", "username": ""}
//	POST /api/testing/start|stop
//	GET  /api/users                 enrolled users
//	GET  /api/health                backend health
//	GET  /api/history?limit=N       attempt history
//	GET  /api/events                recent flow events
//	GET  /ws/capture                browser capture bridge
//	GET  /ws/events                 flow events (backlog, then live)
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/speakerid/pkg/clipstore"
	"github.com/haivivi/speakerid/pkg/enrollment"
	"github.com/haivivi/speakerid/pkg/flow"
	"github.com/haivivi/speakerid/pkg/history"
	"github.com/haivivi/speakerid/pkg/recognition"
	"github.com/haivivi/speakerid/pkg/recording"
	"github.com/haivivi/speakerid/pkg/speakerapi"
)

// Backend is the part of the backend queried directly by the server.
type Backend interface {
	ListEnrolledUsers(ctx context.Context) ([]speakerapi.User, error)
	Health(ctx context.Context) (*speakerapi.HealthStatus, error)
}

// Config holds the server's collaborators. History and Bridge are optional.
type Config struct {
	Training *flow.Training
	Testing  *flow.Testing
	Backend  Backend
	Events   *Hub
	History  *history.Log
	Bridge   http.Handler
	Logger   *slog.Logger
}

// Server serves the control API.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New creates a Server. A nil Events hub gets a fresh one.
func New(cfg Config) *Server {
	if cfg.Events == nil {
		cfg.Events = NewHub(128)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/training/username", s.handleUsername)
	mux.HandleFunc("POST /api/training/start", s.handleTrainingStart)
	mux.HandleFunc("POST /api/training/stop", s.handleTrainingStop)
	mux.HandleFunc("POST /api/training/reset", s.handleTrainingReset)
	mux.HandleFunc("POST /api/testing/request", s.handleTestingRequest)
	mux.HandleFunc("POST /api/testing/start", s.handleTestingStart)
	mux.HandleFunc("POST /api/testing/stop", s.handleTestingStop)
	mux.HandleFunc("GET /api/users", s.handleUsers)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/events", s.handleRecentEvents)
	mux.HandleFunc("GET /ws/events", s.handleEvents)
	if s.cfg.Bridge != nil {
		mux.Handle("GET /ws/capture", s.cfg.Bridge)
	}
	return mux
}

// TrainingState is the training half of GET /api/state.
type TrainingState struct {
	Username  string              `json:"username"`
	Clips     int                 `json:"clips"`
	Required  int                 `json:"required"`
	Complete  bool                `json:"complete"`
	Recording string              `json:"recording"`
	Elapsed   float64             `json:"elapsed"`
	Attempt   *enrollment.Attempt `json:"attempt,omitempty"`
}

// TestingState is the testing half of GET /api/state.
type TestingState struct {
	Mode      recognition.Mode    `json:"mode"`
	Username  string              `json:"username,omitempty"`
	Recording string              `json:"recording"`
	Elapsed   float64             `json:"elapsed"`
	Result    *recognition.Result `json:"result,omitempty"`
	Rows      []recognition.Row   `json:"rows,omitempty"`
}

// State is the body of GET /api/state.
type State struct {
	Training TrainingState `json:"training"`
	Testing  TestingState  `json:"testing"`
}

// Snapshot returns the current state.
func (s *Server) Snapshot() State {
	tr, ts := s.cfg.Training, s.cfg.Testing
	orch := tr.Orchestrator()
	store := orch.Store()
	req := ts.Request()
	res := ts.Orchestrator().Current()

	st := State{
		Training: TrainingState{
			Username:  orch.Username(),
			Clips:     store.Len(),
			Required:  clipstore.RequiredClipCount,
			Complete:  store.TrainingComplete(),
			Recording: tr.Session().State().String(),
			Elapsed:   tr.Session().Elapsed().Seconds(),
			Attempt:   orch.Current(),
		},
		Testing: TestingState{
			Mode:      req.Mode,
			Username:  req.Username,
			Recording: ts.Session().State().String(),
			Elapsed:   ts.Session().Elapsed().Seconds(),
			Result:    res,
		},
	}
	if res != nil {
		st.Testing.Rows = recognition.Rows(res.Prediction)
	}
	return st
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (s *Server) handleUsername(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
	}
	if !readJSON(w, r, &body) {
		return
	}
	if err := s.cfg.Training.Orchestrator().SetUsername(body.Username); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot().Training)
}

func (s *Server) handleTrainingStart(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Training.Start(context.WithoutCancel(r.Context())); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.Snapshot().Training)
}

func (s *Server) handleTrainingStop(w http.ResponseWriter, r *http.Request) {
	art := s.cfg.Training.Stop()
	writeJSON(w, http.StatusOK, stopResponse(art))
}

func (s *Server) handleTrainingReset(w http.ResponseWriter, r *http.Request) {
	s.cfg.Training.Reset()
	writeJSON(w, http.StatusOK, s.Snapshot().Training)
}

func (s *Server) handleTestingRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode     string `json:"mode"`
		Username string `json:"username"`
	}
	if !readJSON(w, r, &body) {
		return
	}
	mode := recognition.FreeMatch
	if body.Mode != "" {
		m, err := recognition.ParseMode(body.Mode)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		mode = m
	}
	if err := s.cfg.Testing.SetRequest(recognition.Request{Mode: mode, Username: body.Username}); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot().Testing)
}

func (s *Server) handleTestingStart(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Testing.Start(context.WithoutCancel(r.Context())); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.Snapshot().Testing)
}

func (s *Server) handleTestingStop(w http.ResponseWriter, r *http.Request) {
	art := s.cfg.Testing.Stop()
	writeJSON(w, http.StatusOK, stopResponse(art))
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.cfg.Backend.ListEnrolledUsers(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h, err := s.cfg.Backend.Health(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entries": []history.Entry{}})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeErrorMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := s.cfg.History.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	events := s.cfg.Events.Recent()
	if events == nil {
		events = []flow.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("server: events upgrade", "error", err)
		return
	}
	defer conn.Close()

	backlog, events, cancel := s.cfg.Events.Subscribe()
	defer cancel()

	// Reader: detect client close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, ev := range backlog {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

type stopResult struct {
	Surfaced bool    `json:"surfaced"`
	Duration float64 `json:"duration,omitempty"`
	Bytes    int     `json:"bytes,omitempty"`
}

func stopResponse(art *recording.Artifact) stopResult {
	if art == nil {
		return stopResult{}
	}
	return stopResult{Surfaced: true, Duration: art.Duration().Seconds(), Bytes: art.Len()}
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, enrollment.ErrEmptyUsername),
		errors.Is(err, recognition.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, recording.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, recording.ErrAlreadyRecording),
		errors.Is(err, enrollment.ErrTrainingComplete),
		errors.Is(err, enrollment.ErrUsernameLocked):
		status = http.StatusConflict
	default:
		if apiErr, ok := speakerapi.AsError(err); ok {
			status = http.StatusBadGateway
			s.logger.Warn("server: backend error", "status", apiErr.HTTPStatus, "message", apiErr.Message)
		} else {
			s.logger.Error("server: request failed", "error", err)
		}
	}
	writeErrorMessage(w, status, err.Error())
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(v); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
