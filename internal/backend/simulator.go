package backend

import (
	"context"
	"sync"
	"time"

	"github.com/meridianlab/fluidcore/internal/engine"
	"github.com/meridianlab/fluidcore/internal/instrument"
)

// Simulator is the in-process action port. Every command succeeds unless a
// fault has been injected for its kind. With RealTime set, Perform sleeps
// the command's nominal duration so runs pace like a physical instrument;
// otherwise confirmation is immediate.
type Simulator struct {
	realTime bool

	mu     sync.Mutex
	faults map[instrument.Kind]string
	logger Logger
}

// Logger is the logging interface used by backend ports.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NewSimulator creates a simulator port. realTime selects nominal-duration
// pacing; leave it false for instant confirmation in tests and dry runs.
func NewSimulator(realTime bool) *Simulator {
	return &Simulator{
		realTime: realTime,
		faults:   make(map[instrument.Kind]string),
		logger:   noopLogger{},
	}
}

// SetLogger sets the simulator's logger.
func (s *Simulator) SetLogger(logger Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

// InjectFault makes every subsequent command of the given kind fail with
// reason until ClearFault or ClearFaults is called.
func (s *Simulator) InjectFault(kind instrument.Kind, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[kind] = reason
}

// ClearFault removes an injected fault for one kind.
func (s *Simulator) ClearFault(kind instrument.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.faults, kind)
}

// ClearFaults removes all injected faults.
func (s *Simulator) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[instrument.Kind]string)
}

// Perform executes a single command in simulation.
func (s *Simulator) Perform(ctx context.Context, cmd instrument.Command) engine.Outcome {
	return s.perform(ctx, []instrument.Command{cmd})
}

// PerformBatch executes a batch as one simulated action lasting the longest
// element's nominal duration.
func (s *Simulator) PerformBatch(ctx context.Context, cmds []instrument.Command) engine.Outcome {
	return s.perform(ctx, cmds)
}

func (s *Simulator) perform(ctx context.Context, cmds []instrument.Command) engine.Outcome {
	var duration time.Duration
	for _, cmd := range cmds {
		if reason, ok := s.faultFor(cmd.Kind); ok {
			s.logger.Debug("simulated fault", "command", cmd.String(), "reason", reason)
			return engine.Failed(reason)
		}
		if d := engine.NominalDuration(cmd); d > duration {
			duration = d
		}
	}

	if s.realTime && duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			// The engine sees the cancelled context and records Interrupted.
			return engine.Failed("cancelled during simulated action")
		case <-timer.C:
		}
	}

	return engine.Succeeded(duration)
}

func (s *Simulator) faultFor(kind instrument.Kind) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reason, ok := s.faults[kind]
	return reason, ok
}
