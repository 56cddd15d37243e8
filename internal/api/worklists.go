package api

import (
	"encoding/json"
	"net/http"
)

// parseWorklistRequest is the request body for POST /worklists/parse.
type parseWorklistRequest struct {
	Worklist string `json:"worklist"`
}

// handleParseWorklist parses worklist text into a command sequence without
// executing anything. Useful for front-ends that want to preview or lint a
// worklist before submitting it as a run.
func (s *Server) handleParseWorklist(w http.ResponseWriter, r *http.Request) {
	var req parseWorklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Worklist == "" {
		writeBadRequest(w, "worklist is required")
		return
	}

	commands, err := s.parser.Parse(req.Worklist)
	if err != nil {
		writeParseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"commands": commands,
		"count":    len(commands),
	})
}
