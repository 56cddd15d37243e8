package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridianlab/fluidcore/internal/engine"
	"github.com/meridianlab/fluidcore/internal/instrument"
	"github.com/meridianlab/fluidcore/internal/runlog"
	"github.com/meridianlab/fluidcore/internal/worklist"
)

// createRunRequest is the request body for POST /runs.
// Exactly one of Worklist or Commands must be supplied.
type createRunRequest struct {
	// Worklist is raw worklist text to parse and execute.
	Worklist string `json:"worklist,omitempty"`

	// Commands is an explicit command sequence to execute.
	Commands []instrument.Command `json:"commands,omitempty"`
}

// runResponse is the response body for run execution and retrieval.
type runResponse struct {
	Run     runlog.Run        `json:"run"`
	Entries []engine.LogEntry `json:"entries,omitempty"`
}

// handleCreateRun parses (if needed), executes, and persists a run.
//
// Execution is synchronous: the response carries the completed run record
// and its full execution log. Overlapping submissions are rejected with 409
// rather than queued.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) { //nolint:gocognit // run pipeline: parse, record, execute, persist, broadcast
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	commands, source, ok := s.resolveCommands(w, req)
	if !ok {
		return
	}
	if len(commands) == 0 {
		writeBadRequest(w, "run contains no commands")
		return
	}

	run := &runlog.Run{
		InstrumentID:  s.instrumentID,
		Source:        source,
		CommandsTotal: len(commands),
	}
	if err := s.runs.Create(r.Context(), run); err != nil {
		s.logger.Error("creating run record failed", "error", err)
		writeInternalError(w, "failed to create run")
		return
	}

	s.hub.Broadcast(ChannelRunStarted, map[string]any{
		"run_id":   run.ID,
		"source":   source,
		"commands": len(commands),
	})
	if claims := claimsFromContext(r.Context()); claims != nil {
		s.auditLog("execute", "run", run.ID, claims.Subject, map[string]any{
			"source":   source,
			"commands": len(commands),
		})
	}

	result, execErr := s.engine.Execute(r.Context(), commands)
	if result == nil {
		// Engine never started the run; close out the record.
		if err := s.runs.Complete(r.Context(), run.ID, runlog.StatusAborted, 0, 0, execErr.Error()); err != nil {
			s.logger.Error("completing refused run failed", "run_id", run.ID, "error", err)
		}
		if errors.Is(execErr, engine.ErrBusy) {
			writeConflict(w, "a run is already in progress")
			return
		}
		writeBadRequest(w, execErr.Error())
		return
	}

	s.finishRun(r.Context(), run, result, execErr)

	status := http.StatusOK
	if execErr != nil {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, runResponse{Run: *run, Entries: result.Entries})
}

// resolveCommands turns a run request into a command sequence, writing the
// error response itself when the request is invalid.
func (s *Server) resolveCommands(w http.ResponseWriter, req createRunRequest) ([]instrument.Command, string, bool) {
	switch {
	case req.Worklist != "" && req.Commands != nil:
		writeBadRequest(w, "supply either worklist text or commands, not both")
		return nil, "", false
	case req.Worklist != "":
		commands, err := s.parser.Parse(req.Worklist)
		if err != nil {
			writeParseError(w, err)
			return nil, "", false
		}
		return commands, "worklist", true
	case req.Commands != nil:
		return req.Commands, "api", true
	default:
		writeBadRequest(w, "worklist or commands is required")
		return nil, "", false
	}
}

// finishRun persists the outcome of an executed run and emits completion
// events. Persistence failures are logged, not returned: the run already
// happened and the in-memory result is still served to the caller.
func (s *Server) finishRun(ctx context.Context, run *runlog.Run, result *engine.Result, execErr error) {
	run.Status = runlog.StatusForResult(execErr)
	run.Completed = result.Completed
	run.Clock = result.Clock
	if execErr != nil {
		run.Cause = execErr.Error()
	}

	// Persist with a background-derived context so a cancelled request
	// still gets its run recorded.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := s.runs.AppendEntries(persistCtx, run.ID, result.Entries); err != nil {
		s.logger.Error("persisting run entries failed", "run_id", run.ID, "error", err)
	}
	if err := s.runs.Complete(persistCtx, run.ID, run.Status, run.Completed, run.Clock, run.Cause); err != nil {
		s.logger.Error("completing run record failed", "run_id", run.ID, "error", err)
	}

	if s.telemetry != nil {
		s.telemetry.WriteRunSummary(run.ID, run.Status, run.Completed, run.Clock)
	}

	s.hub.Broadcast(ChannelRunCompleted, map[string]any{
		"run_id":    run.ID,
		"status":    run.Status,
		"completed": run.Completed,
		"clock_ms":  run.Clock.Milliseconds(),
	})
}

// persistTimeout bounds run persistence after execution finishes.
const persistTimeout = 10 * time.Second

// writeParseError maps a worklist parse failure to a structured 400 response
// carrying the offending line number.
func writeParseError(w http.ResponseWriter, err error) {
	var parseErr *worklist.ParseError
	if errors.As(err, &parseErr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":  http.StatusBadRequest,
			"code":    ErrCodeValidation,
			"message": parseErr.Reason,
			"line":    parseErr.Line,
			"raw":     parseErr.Raw,
		})
		return
	}
	writeBadRequest(w, err.Error())
}

// handleListRuns returns persisted runs, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := runlog.Filter{
		Status: r.URL.Query().Get("status"),
	}
	if limit := queryInt(r, "limit"); limit > 0 {
		filter.Limit = limit
	}
	if offset := queryInt(r, "offset"); offset > 0 {
		filter.Offset = offset
	}

	result, err := s.runs.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing runs failed", "error", err)
		writeInternalError(w, "failed to list runs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetRun returns a single run record.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.runs.Get(r.Context(), id)
	if errors.Is(err, runlog.ErrNotFound) {
		writeNotFound(w, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("getting run failed", "run_id", id, "error", err)
		writeInternalError(w, "failed to get run")
		return
	}

	writeJSON(w, http.StatusOK, runResponse{Run: *run})
}

// handleGetRunEntries returns a run's persisted execution log.
func (s *Server) handleGetRunEntries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.runs.Get(r.Context(), id); errors.Is(err, runlog.ErrNotFound) {
		writeNotFound(w, "run not found")
		return
	}

	entries, err := s.runs.Entries(r.Context(), id)
	if err != nil {
		s.logger.Error("getting run entries failed", "run_id", id, "error", err)
		writeInternalError(w, "failed to get run entries")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  id,
		"entries": entries,
		"count":   len(entries),
	})
}
