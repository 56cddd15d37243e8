package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/meridianlab/fluidcore/internal/engine"
	"github.com/meridianlab/fluidcore/internal/instrument"
	"github.com/meridianlab/fluidcore/internal/runlog"
)

// createBatchRequest is the request body for POST /batches.
//
// Ops and Channels must be the same length: ops[i] executes on channels[i],
// and the whole set is performed as one simultaneous physical action.
type createBatchRequest struct {
	Ops      []instrument.Command `json:"ops"`
	Channels []int                `json:"channels"`
}

// batchResponse is the response body for batch execution.
type batchResponse struct {
	Run   runlog.Run         `json:"run"`
	Batch engine.BatchResult `json:"batch"`
}

// handleCreateBatch executes a multi-channel batch as one atomic action.
//
// A batch either fully succeeds or fails as a single unit: one invalid
// element rejects everything and no state is mutated.
func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Ops) == 0 {
		writeBadRequest(w, "batch contains no operations")
		return
	}
	if len(req.Ops) != len(req.Channels) {
		writeBadRequest(w, "ops and channels must be the same length")
		return
	}

	run := &runlog.Run{
		InstrumentID:  s.instrumentID,
		Source:        "batch",
		CommandsTotal: len(req.Ops),
	}
	if err := s.runs.Create(r.Context(), run); err != nil {
		s.logger.Error("creating batch run record failed", "error", err)
		writeInternalError(w, "failed to create run")
		return
	}

	s.hub.Broadcast(ChannelRunStarted, map[string]any{
		"run_id":   run.ID,
		"source":   run.Source,
		"commands": len(req.Ops),
	})
	if claims := claimsFromContext(r.Context()); claims != nil {
		s.auditLog("execute", "run", run.ID, claims.Subject, map[string]any{
			"source": run.Source,
			"ops":    len(req.Ops),
		})
	}

	batch, execErr := s.engine.ExecuteBatch(r.Context(), req.Ops, req.Channels)
	if batch == nil {
		// Engine never started the batch; close out the record.
		if err := s.runs.Complete(r.Context(), run.ID, runlog.StatusAborted, 0, 0, execErr.Error()); err != nil {
			s.logger.Error("completing refused batch failed", "run_id", run.ID, "error", err)
		}
		switch {
		case errors.Is(execErr, engine.ErrBusy):
			writeConflict(w, "a run is already in progress")
		case errors.Is(execErr, engine.ErrBatchLengthMismatch):
			writeBadRequest(w, execErr.Error())
		default:
			writeBadRequest(w, execErr.Error())
		}
		return
	}

	result := &engine.Result{
		Entries: batch.Entries,
		Clock:   batch.Clock,
	}
	if batch.Outcome == engine.OutcomeSuccess {
		result.Completed = len(batch.Entries)
	}
	s.finishRun(r.Context(), run, result, execErr)

	status := http.StatusOK
	if execErr != nil {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, batchResponse{Run: *run, Batch: *batch})
}
