// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package server exposes the elevator over HTTP: status and level
// queries, goals, re-homing, emergency stop, telemetry history, metrics
// and a websocket telemetry stream.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/elevator"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/errors"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/log"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/safety"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/telemetry"
)

// Elevator is the controller surface the API drives; *elevator.Controller
// implements it.
type Elevator interface {
	Status() elevator.Status
	Levels() *elevator.Levels
	SetGoalByName(name string) error
	SetPosition(inches float64) error
	IsAtLevel(name string) (bool, error)
	Rehome()
}

// Safety is the stop state; *safety.Manager implements it.
type Safety interface {
	EmergencyStop(msg string)
	Reset() error
	GetStatus() safety.Status
}

// Dispatcher runs fn on the goroutine that owns the control tick and
// returns its error.
type Dispatcher func(fn func() error) error

// Config holds server configuration. Elevator and Safety are required;
// the rest are optional and their routes are omitted when nil.
type Config struct {
	// HTTP address to listen on (e.g., ":8000")
	Addr string

	Elevator Elevator
	Safety   Safety

	// Dispatch runs mutations; nil runs them on the request goroutine.
	Dispatch Dispatcher

	// Errors reports hardware and telemetry failure counts.
	Errors  func() elevator.Errors
	History *telemetry.History
	Hub     http.Handler
	Metrics http.Handler
}

// Server is the HTTP API server.
type Server struct {
	cfg    Config
	router chi.Router
	log    *log.Logger

	httpServer *http.Server
	startTime  time.Time
}

// New creates a server and builds its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Elevator == nil || cfg.Safety == nil {
		return nil, errors.RuntimeErrorInit("server", "elevator and safety are required")
	}
	if cfg.Dispatch == nil {
		cfg.Dispatch = func(fn func() error) error { return fn() }
	}
	s := &Server{
		cfg:       cfg,
		log:       log.GetLogger("server"),
		startTime: time.Now(),
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/server/info", s.handleServerInfo)
	r.Route("/elevator", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/levels", s.handleLevels)
		r.Get("/at/{level}", s.handleAtLevel)
		r.Post("/goal", s.handleGoal)
		r.Post("/position", s.handlePosition)
		r.Post("/home", s.handleHome)
		r.Post("/stop", s.handleStop)
		r.Post("/resume", s.handleResume)
		if s.cfg.History != nil {
			r.Get("/history", s.handleHistory)
		}
	})
	if s.cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.cfg.Metrics)
	}
	if s.cfg.Hub != nil {
		r.Method(http.MethodGet, "/ws", s.cfg.Hub)
	}
	return r
}

// ServeHTTP makes the server usable as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start serves until Stop is called. It returns nil after a clean stop.
func (s *Server) Start() error {
	s.log.WithField("addr", s.cfg.Addr).Info("API server listening")
	err := s.httpServer.ListenAndServe()
	if stderrors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the server down, waiting for in-flight requests until ctx
// expires.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// requestLogger logs each request through the package logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		entry := s.log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"bytes":    ww.BytesWritten(),
			"duration": time.Since(start).String(),
			"id":       middleware.GetReqID(r.Context()),
		})
		if ww.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request")
	})
}

type statusResponse struct {
	Elevator elevator.Status  `json:"elevator"`
	Safety   safety.Status    `json:"safety"`
	Errors   *elevator.Errors `json:"errors,omitempty"`
}

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"uptime_seconds": time.Since(s.startTime).Seconds(),
		"homed":          s.cfg.Elevator.Status().Homed,
		"state":          s.cfg.Safety.GetStatus().State,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Elevator: s.cfg.Elevator.Status(),
		Safety:   s.cfg.Safety.GetStatus(),
	}
	if s.cfg.Errors != nil {
		e := s.cfg.Errors()
		resp.Errors = &e
	}
	writeJSON(w, resp)
}

func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.cfg.Elevator.Levels().All())
}

func (s *Server) handleAtLevel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "level")
	at, err := s.cfg.Elevator.IsAtLevel(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"level": name, "at_position": at})
}

// GoalRequest is the body of POST /elevator/goal.
type GoalRequest struct {
	Level string `json:"level"`
}

// PositionRequest is the body of POST /elevator/position.
type PositionRequest struct {
	Inches *float64 `json:"inches"`
}

func (s *Server) handleGoal(w http.ResponseWriter, r *http.Request) {
	var req GoalRequest
	if err := decode(r, &req); err != nil {
		writeJSONError(w, err, http.StatusBadRequest)
		return
	}
	if req.Level == "" {
		writeJSONError(w, stderrors.New("missing level"), http.StatusBadRequest)
		return
	}
	err := s.cfg.Dispatch(func() error { return s.cfg.Elevator.SetGoalByName(req.Level) })
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeStatus(w)
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if err := decode(r, &req); err != nil {
		writeJSONError(w, err, http.StatusBadRequest)
		return
	}
	if req.Inches == nil {
		writeJSONError(w, stderrors.New("missing inches"), http.StatusBadRequest)
		return
	}
	err := s.cfg.Dispatch(func() error { return s.cfg.Elevator.SetPosition(*req.Inches) })
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeStatus(w)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	err := s.cfg.Dispatch(func() error {
		s.cfg.Elevator.Rehome()
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeStatus(w)
}

// handleStop bypasses the dispatcher so a stop lands even when the
// control loop is stuck.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	msg := "emergency stop requested over HTTP"
	if m := r.URL.Query().Get("message"); m != "" {
		msg = m
	}
	s.cfg.Safety.EmergencyStop(msg)
	writeJSON(w, s.cfg.Safety.GetStatus())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Safety.Reset(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, s.cfg.Safety.GetStatus())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	frames := s.cfg.History.Frames()
	if v := r.URL.Query().Get("n"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSONError(w, fmt.Errorf("invalid n %q", v), http.StatusBadRequest)
			return
		}
		frames = s.cfg.History.Last(n)
	}
	if frames == nil {
		frames = []telemetry.Frame{}
	}
	writeJSON(w, frames)
}

func (s *Server) writeStatus(w http.ResponseWriter) {
	writeJSON(w, s.cfg.Elevator.Status())
}

// StatusCode maps an API error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, errors.ErrUnsafeCommand):
		return http.StatusConflict
	case errors.Is(err, errors.ErrUnknownLevel):
		return http.StatusNotFound
	case stderrors.Is(err, safety.ErrResetWhileRunning):
		return http.StatusConflict
	case errors.IsConfig(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
	}
	writeJSONError(w, err, status)
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// ErrorBody is the JSON body of a failed request.
type ErrorBody struct {
	Error struct {
		Code    string `json:"code,omitempty"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSONError(w http.ResponseWriter, err error, status int) {
	var body ErrorBody
	body.Error.Code = string(errors.CodeOf(err))
	body.Error.Message = err.Error()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
