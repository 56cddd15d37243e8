package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianlab/fluidcore/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication - user must be logged in to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Instrument status and execution log
			r.With(s.requirePermission(auth.PermInstrumentRead)).
				Get("/status", s.handleStatus)
			r.With(s.requirePermission(auth.PermInstrumentRead)).
				Get("/log", s.handleLog)

			// Worklist parsing (dry run, no execution)
			r.With(s.requirePermission(auth.PermWorklistParse)).
				Post("/worklists/parse", s.handleParseWorklist)

			// Run endpoints
			r.Route("/runs", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermRunRead)).Get("/", s.handleListRuns)
				r.With(s.requirePermission(auth.PermRunExecute)).Post("/", s.handleCreateRun)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermRunRead)).Get("/", s.handleGetRun)
					r.With(s.requirePermission(auth.PermRunRead)).Get("/entries", s.handleGetRunEntries)
				})
			})

			// Multi-channel batch execution
			r.With(s.requirePermission(auth.PermRunExecute)).
				Post("/batches", s.handleCreateBatch)

			// Audit trail (admin only)
			r.With(s.requirePermission(auth.PermSystemAdmin)).
				Get("/audit", s.handleListAuditLogs)

			// User management (admin only)
			r.Route("/users", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermUserManage))
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)
				r.Delete("/{id}", s.handleDeleteUser)
			})

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"instrument": s.instrumentID,
	})
}
