// Package server exposes task editing and prediction over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zurustar/unitask/pkg/compiler"
	"github.com/zurustar/unitask/pkg/logger"
	"github.com/zurustar/unitask/pkg/observability"
	"github.com/zurustar/unitask/pkg/task"
	"github.com/zurustar/unitask/pkg/vm"
)

// Server serves the processes of a registry.
type Server struct {
	registry    *vm.Registry
	compiler    *compiler.Compiler
	metrics     *observability.Metrics
	salvageable bool
	log         *slog.Logger
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithCompiler sets the compiler used for new processes.
func WithCompiler(c *compiler.Compiler) Option {
	return func(s *Server) {
		s.compiler = c
	}
}

// WithSalvageable makes saved tasks keep a salvage marker.
func WithSalvageable(salvageable bool) Option {
	return func(s *Server) {
		s.salvageable = salvageable
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// New creates a Server.
func New(registry *vm.Registry, metrics *observability.Metrics, opts ...Option) *Server {
	s := &Server{
		registry: registry,
		metrics:  metrics,
		log:      logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.compiler == nil {
		s.compiler = compiler.New(compiler.WithLogger(s.log))
	}
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	r.Post("/v1/processes", s.handleCreateProcess)
	r.Get("/v1/processes", s.handleListProcesses)
	r.Get("/v1/processes/{id}", s.handleGetProcess)
	r.Delete("/v1/processes/{id}", s.handleDeleteProcess)
	r.Post("/v1/processes/{id}/commands", s.handleAppendCommands)
	r.Post("/v1/processes/{id}/move", s.handleMove)
	r.Get("/v1/processes/{id}/predict", s.handlePredictTask)
	r.Post("/v1/predict", s.handlePredictStatement)

	return r
}

type createProcessRequest struct {
	Name  string   `json:"name"`
	Lines []string `json:"lines"`
	PC    int      `json:"pc"`
}

type linesRequest struct {
	Lines []string `json:"lines"`
}

type moveRequest struct {
	From  int `json:"from"`
	To    int `json:"to"`
	Count int `json:"count"`
}

type predictRequest struct {
	Statement string `json:"statement"`
}

type processView struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	State        string   `json:"state"`
	PC           int      `json:"pc"`
	Lines        []string `json:"lines"`
	InSubroutine bool     `json:"in_subroutine"`
	Salvageable  bool     `json:"salvageable"`
}

type processSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

type callView struct {
	Name string `json:"name"`
	Args []any  `json:"args"`
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"processes": s.registry.Len(),
	})
}

func (s *Server) handleCreateProcess(w http.ResponseWriter, r *http.Request) {
	var req createProcessRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	if err := validateLines(req.Lines); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_command", err.Error())
		return
	}

	proc, err := vm.NewProcessFromLines(req.Name, req.Lines, req.PC, vm.WithCompiler(s.compiler), vm.WithLogger(s.log))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_task", err.Error())
		return
	}
	id := s.registry.Add(proc)
	s.log.Info("Process created", "id", id, "name", req.Name, "lines", len(req.Lines))
	respondJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

func (s *Server) handleListProcesses(w http.ResponseWriter, _ *http.Request) {
	procs := s.registry.List()
	out := make([]processSummary, len(procs))
	for i, p := range procs {
		out[i] = processSummary{ID: p.ID().String(), Name: p.Name(), State: p.State().String()}
	}
	respondJSON(w, http.StatusOK, map[string]any{"processes": out})
}

func (s *Server) handleGetProcess(w http.ResponseWriter, r *http.Request) {
	s.withEditor(w, r, func(proc *vm.Process, e *task.Editor) any {
		return viewOf(proc, e)
	})
}

func (s *Server) handleDeleteProcess(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}
	if !s.registry.Remove(id) {
		respondError(w, http.StatusNotFound, "process_not_found", "process not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAppendCommands(w http.ResponseWriter, r *http.Request) {
	var req linesRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := validateLines(req.Lines); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_command", err.Error())
		return
	}
	s.withEditor(w, r, func(proc *vm.Process, e *task.Editor) any {
		e.AddAtEnd(req.Lines...)
		return viewOf(proc, e)
	})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.withEditor(w, r, func(proc *vm.Process, e *task.Editor) any {
		e.Move(req.From, req.To, req.Count)
		return viewOf(proc, e)
	})
}

func (s *Server) handlePredictTask(w http.ResponseWriter, r *http.Request) {
	endPC := task.NoLimit
	if raw := r.URL.Query().Get("end"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "end must be a non-negative integer")
			return
		}
		endPC = n
	}

	s.withEditor(w, r, func(_ *vm.Process, e *task.Editor) any {
		rec := &task.Recorder{}
		hook := s.metrics.CountingHook(rec)
		task.NewPredictor(hook, task.WithPredictorLogger(s.log)).PredictTask(e, endPC)

		s.metrics.Predictions.WithLabelValues("task").Inc()
		s.metrics.PredictionLength.Observe(float64(hook.Count()))
		return map[string]any{"calls": callViews(rec)}
	})
}

func (s *Server) handlePredictStatement(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	rec := &task.Recorder{}
	task.NewPredictor(s.metrics.CountingHook(rec), task.WithPredictorLogger(s.log)).PredictStatement(req.Statement)
	s.metrics.Predictions.WithLabelValues("statement").Inc()

	respondJSON(w, http.StatusOK, map[string]any{"calls": callViews(rec)})
}

// withEditor runs fn with an editor open on the process named by the URL
// and closes it afterwards, saving any change.
func (s *Server) withEditor(w http.ResponseWriter, r *http.Request, fn func(*vm.Process, *task.Editor) any) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}
	proc, ok := s.registry.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "process_not_found", "process not found")
		return
	}

	e, err := task.NewEditor(proc, s.salvageable, task.WithEditorLogger(s.log))
	switch {
	case errors.Is(err, task.ErrAlreadyFrozen):
		s.metrics.ObserveSession(observability.OutcomeFrozen)
		respondError(w, http.StatusConflict, "process_frozen", err.Error())
		return
	case errors.Is(err, task.ErrNotEditable):
		s.metrics.ObserveSession(observability.OutcomeNotEditable)
		respondError(w, http.StatusUnprocessableEntity, "process_not_editable", err.Error())
		return
	case err != nil:
		s.metrics.ObserveSession(observability.OutcomeFailed)
		respondError(w, http.StatusInternalServerError, "editor_failed", err.Error())
		return
	}
	s.metrics.ActiveEditors.Inc()
	defer s.metrics.ActiveEditors.Dec()

	result := fn(proc, e)
	modified := e.Modified()
	if err := e.Close(); err != nil {
		s.metrics.ObserveSession(observability.OutcomeFailed)
		respondError(w, http.StatusInternalServerError, "save_failed", err.Error())
		return
	}
	if modified {
		s.metrics.ObserveSession(observability.OutcomeSaved)
	} else {
		s.metrics.ObserveSession(observability.OutcomeUnchanged)
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "process_not_found", "process not found")
		return uuid.Nil, false
	}
	return id, true
}

func viewOf(proc *vm.Process, e *task.Editor) processView {
	return processView{
		ID:           proc.ID().String(),
		Name:         proc.Name(),
		State:        proc.State().String(),
		PC:           e.PC(),
		Lines:        e.Commands(),
		InSubroutine: e.InSubroutineCall(),
		Salvageable:  proc.Salvageable(),
	}
}

func callViews(rec *task.Recorder) []callView {
	out := make([]callView, len(rec.Calls))
	for i, c := range rec.Calls {
		args := c.Args
		if args == nil {
			args = []any{}
		}
		out[i] = callView{Name: c.Name, Args: args, Text: c.String()}
	}
	return out
}

func validateLines(lines []string) error {
	for i, line := range lines {
		if !task.IsValidCommand(line) {
			return fmt.Errorf("line %d is not a valid command: %q", i+1, line)
		}
	}
	return nil
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
