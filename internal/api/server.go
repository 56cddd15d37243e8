// Package api provides the HTTP REST API and WebSocket server for fluidcore.
//
// It exposes worklist parsing, run execution, instrument status, and run
// history to user interfaces (scheduler front-ends, lab dashboards, scripts).
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/meridianlab/fluidcore/internal/audit"
	"github.com/meridianlab/fluidcore/internal/auth"
	"github.com/meridianlab/fluidcore/internal/engine"
	"github.com/meridianlab/fluidcore/internal/infrastructure/config"
	"github.com/meridianlab/fluidcore/internal/infrastructure/influxdb"
	"github.com/meridianlab/fluidcore/internal/infrastructure/logging"
	"github.com/meridianlab/fluidcore/internal/infrastructure/mqtt"
	"github.com/meridianlab/fluidcore/internal/runlog"
	"github.com/meridianlab/fluidcore/internal/worklist"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	WS           config.WebSocketConfig
	Security     config.SecurityConfig
	Worklist     config.WorklistConfig
	InstrumentID string
	Logger       *logging.Logger
	Engine       *engine.Engine
	Runs         runlog.Repository
	Users        auth.UserRepository
	Audit        audit.Repository // optional: persists who-did-what history
	MQTT         *mqtt.Client     // optional: relays instrument health to WebSocket clients
	Telemetry    *influxdb.Client // optional: run summaries to InfluxDB
	ExternalHub  *Hub             // If set, the server uses this hub instead of creating its own
	Version      string
}

// Server is the HTTP API server for fluidcore.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	secCfg       config.SecurityConfig
	parser       worklist.Parser
	instrumentID string
	logger       *logging.Logger
	engine       *engine.Engine
	runs         runlog.Repository
	users        auth.UserRepository
	audit        audit.Repository
	auditCh      chan *audit.AuditLog
	mqtt         *mqtt.Client
	telemetry    *influxdb.Client
	version      string
	startedAt    time.Time
	server       *http.Server
	hub          *Hub
	externalHub  bool               // true if hub was injected externally
	cancel       context.CancelFunc // cancels background goroutines on Close()
	tickets      *ticketStore
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, engine, run repository)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("execution engine is required")
	}
	if deps.Runs == nil {
		return nil, fmt.Errorf("run repository is required")
	}
	// MQTT and Telemetry are optional — runs execute without them

	s := &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		secCfg:       deps.Security,
		parser:       worklist.Parser{DefaultChannel: deps.Worklist.DefaultChannel},
		instrumentID: deps.InstrumentID,
		logger:       deps.Logger,
		engine:       deps.Engine,
		runs:         deps.Runs,
		users:        deps.Users,
		audit:        deps.Audit,
		mqtt:         deps.MQTT,
		telemetry:    deps.Telemetry,
		version:      deps.Version,
		tickets:      newTicketStore(),
	}
	if s.audit != nil {
		s.auditCh = make(chan *audit.AuditLog, auditChanSize)
	}

	// Use externally-provided hub if available (needed when the engine also
	// requires the hub for WebSocket broadcasting).
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the server's WebSocket hub, creating it if needed. The hub
// satisfies the engine's Notifier interface, so callers can wire it before
// Start() runs.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, subscribes to MQTT health
// topics for real-time WebSocket broadcast, and launches the HTTP listener
// in a background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	s.startedAt = time.Now()

	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// Create WebSocket hub (unless one was injected externally)
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	// Start periodic ticket cleanup to prevent memory leaks
	go s.cleanTicketsLoop(srvCtx)

	// Start the serial audit log writer
	if s.auditCh != nil {
		go s.drainAuditLog(srvCtx)
	}

	// Relay instrument health messages to WebSocket clients
	if err := s.subscribeInstrumentHealth(); err != nil {
		s.logger.Warn("failed to subscribe to instrument health for WebSocket", "error", err)
	}

	// Build router
	router := s.buildRouter()

	// Create HTTP server
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Start listening in background
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
