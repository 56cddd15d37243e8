package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/meridianlab/fluidcore/internal/instrument"
)

// Nominal simulated durations per command kind. The clock is a
// deterministic stand-in for real instrument timing: the same sequence
// always produces the same clock values.
const (
	durTip         = 500 * time.Millisecond
	durLiquid      = 500 * time.Millisecond
	durResource    = 1 * time.Second
	durWash        = 1 * time.Second
	durBreak       = 200 * time.Millisecond
	durMixPerCycle = 300 * time.Millisecond
)

// Logger is the logging interface used by the engine.
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

// Telemetry receives measurements after each applied command. Implemented
// by the InfluxDB client; a nil telemetry sink disables recording.
type Telemetry interface {
	// RecordCommand records an executed command's simulated timing.
	RecordCommand(kind string, outcome string, duration, clock time.Duration)

	// RecordWellVolume records a well's volume after a liquid transfer.
	RecordWellVolume(plate, well string, volume float64)
}

// Notifier broadcasts execution events to interested observers (the
// WebSocket hub). A nil notifier disables broadcasting.
type Notifier interface {
	Broadcast(channel string, payload any)
}

// Config is the engine's initial configuration. All state the engine
// tracks is owned by the engine instance built from it; there are no
// package-level registries.
type Config struct {
	// NumChannels is the pipetting head's channel count. Default 8.
	NumChannels int

	// EnforceCapacity enables overflow rejection for wells that have a
	// configured capacity. Off by default: capacity is caller policy.
	EnforceCapacity bool

	// SkipAdvisoryFailures selects skip-and-continue for advisory command
	// kinds (wash, break): a device failure on them is logged but does not
	// abort the sequence. Engineering commands always fail fast.
	SkipAdvisoryFailures bool

	// PreloadedTips lists channels that already carry a tip when the
	// engine starts (an instrument resuming mid-protocol).
	PreloadedTips []int

	// SeedVolumes pre-seeds well volumes in microlitres.
	SeedVolumes map[instrument.WellRef]float64

	// Capacities configures per-well capacities for EnforceCapacity.
	Capacities map[instrument.WellRef]float64
}

// defaultNumChannels matches the common 8-channel pipetting head.
const defaultNumChannels = 8

// Engine executes command sequences against an action port.
//
// One engine owns one physical instrument's state. All execution is
// strictly sequential: the engine never has two commands in flight, and a
// mutex rejects overlapping Execute calls rather than queueing them, so
// callers control interleaving explicitly.
type Engine struct {
	port      ActionPort
	channels  *instrument.ChannelState
	ledger    *instrument.LiquidLedger
	gripper   *instrument.GripperState
	cfg       Config
	clock     time.Duration
	log       []LogEntry
	logger    Logger
	telemetry Telemetry
	notifier  Notifier

	// mu guards running plus all mutable state: the stores, the clock,
	// and the log. Port calls happen outside the lock so status reads stay
	// responsive while a command is in flight.
	mu      sync.Mutex
	running bool
}

// New creates an engine with the given configuration and action port.
func New(cfg Config, port ActionPort) (*Engine, error) {
	if port == nil {
		return nil, fmt.Errorf("engine: action port is required")
	}
	if cfg.NumChannels <= 0 {
		cfg.NumChannels = defaultNumChannels
	}

	channels := instrument.NewChannelState(cfg.NumChannels)
	for _, ch := range cfg.PreloadedTips {
		if err := channels.PreloadTip(ch); err != nil {
			return nil, fmt.Errorf("preloading tips: %w", err)
		}
	}

	ledger := instrument.NewLiquidLedger()
	for well, volume := range cfg.SeedVolumes {
		if err := ledger.Seed(well, volume); err != nil {
			return nil, fmt.Errorf("seeding volumes: %w", err)
		}
	}
	for well, capacity := range cfg.Capacities {
		ledger.SetCapacity(well, capacity)
	}

	return &Engine{
		port:     port,
		channels: channels,
		ledger:   ledger,
		gripper:  instrument.NewGripperState(),
		cfg:      cfg,
		logger:   noopLogger{},
	}, nil
}

// SetLogger sets the engine's logger.
func (e *Engine) SetLogger(logger Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// SetTelemetry sets the telemetry sink for command and volume measurements.
func (e *Engine) SetTelemetry(t Telemetry) {
	e.telemetry = t
}

// SetNotifier sets the event broadcaster for execution events.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// Execute runs a command sequence strictly in order.
//
// Each command is validated, dispatched to the port, and applied to state
// only on confirmed success. A precondition failure or device failure
// aborts the remainder (fail-fast) unless the command is advisory and
// SkipAdvisoryFailures is set. Cancellation while a command is in flight
// yields an Interrupted entry and aborts.
//
// The returned Result always carries the full log for this call, including
// the failing entry, alongside any *AbortError.
func (e *Engine) Execute(ctx context.Context, commands []instrument.Command) (*Result, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.release()

	result := &Result{}

	for i, cmd := range commands {
		// Cancellation between commands: nothing is in flight, stop cleanly.
		if cerr := ctx.Err(); cerr != nil {
			result.Clock = e.Clock()
			err := fmt.Errorf("cancelled before command %d dispatched: %w", i, cerr)
			return result, &AbortError{Index: i, Outcome: OutcomeInterrupted, Err: err}
		}

		entry, err := e.executeOne(ctx, cmd)
		result.Entries = append(result.Entries, entry)
		result.Clock = entry.Clock

		if entry.Outcome == OutcomeSuccess {
			result.Completed++
			continue
		}

		skip := e.cfg.SkipAdvisoryFailures &&
			cmd.Kind.Advisory() &&
			entry.Outcome == OutcomeDeviceFailed
		if skip {
			e.logger.Warn("advisory command failed, continuing",
				"command", cmd.String(), "cause", entry.Cause)
			continue
		}

		return result, &AbortError{Index: i, Outcome: entry.Outcome, Err: err}
	}

	e.logger.Info("sequence complete",
		"commands", len(commands),
		"completed", result.Completed,
		"clock", result.Clock,
	)
	return result, nil
}

// executeOne validates, dispatches, and applies a single command,
// appending and returning its log entry.
func (e *Engine) executeOne(ctx context.Context, cmd instrument.Command) (LogEntry, error) {
	// Validate before dispatch: rejected commands never reach the port.
	// Validation and the log append hold the lock against concurrent
	// Status/Log readers; the port call below does not.
	e.mu.Lock()
	if err := e.validate(cmd); err != nil {
		entry := e.appendEntry(cmd, OutcomeRejected, err.Error(), 0)
		e.mu.Unlock()
		e.logger.Warn("command rejected", "command", cmd.String(), "cause", err)
		return entry, err
	}
	e.mu.Unlock()

	outcome := e.port.Perform(ctx, cmd)

	e.mu.Lock()
	defer e.mu.Unlock()

	// Cancellation while in flight is ambiguous: the physical action may or
	// may not have completed. State stays untouched either way.
	if ctx.Err() != nil {
		err := fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
		entry := e.appendEntry(cmd, OutcomeInterrupted, err.Error(), 0)
		return entry, err
	}

	if !outcome.OK {
		err := fmt.Errorf("%w: %s", ErrDeviceFailed, outcome.Reason)
		entry := e.appendEntry(cmd, OutcomeDeviceFailed, outcome.Reason, 0)
		e.logger.Warn("device failure", "command", cmd.String(), "reason", outcome.Reason)
		return entry, err
	}

	e.apply(cmd)
	duration := NominalDuration(cmd)
	e.clock += duration
	entry := e.appendEntry(cmd, OutcomeSuccess, "", duration)

	e.record(cmd, entry)
	e.logger.Debug("command executed", "command", cmd.String(), "clock", e.clock)
	return entry, nil
}

// ExecuteBatch runs one physical multi-channel action described by parallel
// ops and channels arrays of equal length.
//
// Every element is validated against a single consistent snapshot of state
// before any dispatch. One invalid element rejects the whole batch: no
// element is dispatched, no state is mutated, and the batch is reported as
// a single failed unit referencing the first failing element. On success
// the port performs the batch as one action and all mutations apply.
func (e *Engine) ExecuteBatch(ctx context.Context, ops []instrument.Command, channels []int) (*BatchResult, error) {
	if len(ops) != len(channels) {
		return nil, fmt.Errorf("%w: %d ops, %d channels", ErrBatchLengthMismatch, len(ops), len(channels))
	}
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.release()

	// Bind each op to its assigned channel.
	cmds := make([]instrument.Command, len(ops))
	for i, op := range ops {
		op.Channel = channels[i]
		cmds[i] = op
	}

	// Validate all elements before dispatching any. The stores are only
	// mutated post-confirmation, so they are the consistent snapshot; batch
	// self-interference (two aspirates draining one well) is checked
	// against cumulative pending effects.
	e.mu.Lock()
	if idx, err := e.validateBatch(cmds); err != nil {
		cause := err.Error()
		entry := e.appendEntry(cmds[idx], OutcomeRejected, cause, 0)

		perOp := make([]OutcomeKind, len(cmds))
		for i := range perOp {
			perOp[i] = OutcomeRejected
		}
		result := &BatchResult{
			Outcome:     OutcomeRejected,
			PerOp:       perOp,
			FailedIndex: idx,
			Cause:       cause,
			Entries:     []LogEntry{entry},
			Clock:       e.clock,
		}
		e.mu.Unlock()
		e.logger.Warn("batch rejected", "failed_index", idx, "cause", cause)
		return result, &AbortError{Index: idx, Outcome: OutcomeRejected, Err: err}
	}
	e.mu.Unlock()

	outcome := e.port.PerformBatch(ctx, cmds)

	e.mu.Lock()
	defer e.mu.Unlock()

	if ctx.Err() != nil {
		err := fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
		entry := e.appendEntry(cmds[0], OutcomeInterrupted, err.Error(), 0)
		return &BatchResult{
			Outcome:     OutcomeInterrupted,
			PerOp:       repeatOutcome(OutcomeInterrupted, len(cmds)),
			FailedIndex: 0,
			Cause:       err.Error(),
			Entries:     []LogEntry{entry},
			Clock:       e.clock,
		}, &AbortError{Index: 0, Outcome: OutcomeInterrupted, Err: err}
	}

	if !outcome.OK {
		err := fmt.Errorf("%w: %s", ErrDeviceFailed, outcome.Reason)
		entry := e.appendEntry(cmds[0], OutcomeDeviceFailed, outcome.Reason, 0)
		return &BatchResult{
			Outcome:     OutcomeDeviceFailed,
			PerOp:       repeatOutcome(OutcomeDeviceFailed, len(cmds)),
			FailedIndex: 0,
			Cause:       outcome.Reason,
			Entries:     []LogEntry{entry},
			Clock:       e.clock,
		}, &AbortError{Index: 0, Outcome: OutcomeDeviceFailed, Err: err}
	}

	// One physical action: the clock advances once, by the longest nominal
	// duration in the batch, and all entries share the resulting clock.
	var duration time.Duration
	for _, cmd := range cmds {
		if d := NominalDuration(cmd); d > duration {
			duration = d
		}
	}
	e.clock += duration

	result := &BatchResult{
		Outcome:     OutcomeSuccess,
		PerOp:       repeatOutcome(OutcomeSuccess, len(cmds)),
		FailedIndex: -1,
	}
	for _, cmd := range cmds {
		e.apply(cmd)
		entry := e.appendBatchEntry(cmd, duration)
		result.Entries = append(result.Entries, entry)
		e.record(cmd, entry)
	}
	result.Clock = e.clock

	e.logger.Info("batch executed", "ops", len(cmds), "clock", e.clock)
	return result, nil
}

// Status returns an immutable snapshot of current instrument state.
func (e *Engine) Status() instrument.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return instrument.TakeSnapshot(e.channels, e.ledger, e.gripper, len(e.log)-1)
}

// Log returns a copy of the full execution log.
func (e *Engine) Log() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	cpy := make([]LogEntry, len(e.log))
	copy(cpy, e.log)
	return cpy
}

// Clock returns the current simulated clock.
func (e *Engine) Clock() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock
}

// acquire marks the engine busy; overlapping executions are rejected, not
// queued, so the no-concurrent-dispatch rule is visible to callers.
func (e *Engine) acquire() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrBusy
	}
	e.running = true
	return nil
}

func (e *Engine) release() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

// validate checks a command's structure and state preconditions.
// Returns nil when the command may be dispatched.
func (e *Engine) validate(cmd instrument.Command) error {
	if err := cmd.Validate(e.channels.NumChannels()); err != nil {
		return &instrument.PreconditionError{Command: cmd, Err: err}
	}

	var err error
	switch cmd.Kind {
	case instrument.KindPickupTip:
		err = e.channels.CheckPickup(cmd.Channel)
	case instrument.KindDropTip:
		err = e.channels.CheckDrop(cmd.Channel)
	case instrument.KindAspirate:
		if err = e.channels.CheckTip(cmd.Channel); err == nil {
			err = e.ledger.CheckAspirate(cmd.Well, cmd.Volume)
		}
	case instrument.KindDispense:
		if err = e.channels.CheckTip(cmd.Channel); err == nil {
			err = e.ledger.CheckDispense(cmd.Well, cmd.Volume, e.cfg.EnforceCapacity)
		}
	case instrument.KindMix:
		err = e.channels.CheckTip(cmd.Channel)
	case instrument.KindPickupResource:
		err = e.gripper.CheckPickup(cmd.Resource)
	case instrument.KindMoveResource, instrument.KindDropResource:
		err = e.gripper.CheckHolding(cmd.Resource)
	case instrument.KindWash, instrument.KindBreak:
		// Advisory: no state preconditions.
	}

	if err != nil {
		return &instrument.PreconditionError{Command: cmd, Err: err}
	}
	return nil
}

// validateBatch validates all elements against the pre-batch state plus the
// cumulative pending effects of earlier elements in the same batch.
// Returns the index of the first failing element.
func (e *Engine) validateBatch(cmds []instrument.Command) (int, error) {
	// Pending aspirations per well, so two elements cannot jointly drain a
	// well beyond its contents.
	pendingDraw := make(map[instrument.WellRef]float64)
	pendingTips := make(map[int]bool) // channel -> tip state change pending

	for i, cmd := range cmds {
		if err := cmd.Validate(e.channels.NumChannels()); err != nil {
			return i, &instrument.PreconditionError{Command: cmd, Err: err}
		}

		var err error
		switch cmd.Kind {
		case instrument.KindPickupTip:
			if e.channels.TipPresent(cmd.Channel) || pendingTips[cmd.Channel] {
				err = fmt.Errorf("%w: channel %d", instrument.ErrTipAlreadyPresent, cmd.Channel)
			} else {
				pendingTips[cmd.Channel] = true
			}
		case instrument.KindDropTip:
			err = e.channels.CheckDrop(cmd.Channel)
		case instrument.KindAspirate:
			if err = e.channels.CheckTip(cmd.Channel); err == nil {
				need := pendingDraw[cmd.Well] + cmd.Volume
				err = e.ledger.CheckAspirate(cmd.Well, need)
				if err == nil {
					pendingDraw[cmd.Well] = need
				}
			}
		case instrument.KindDispense:
			if err = e.channels.CheckTip(cmd.Channel); err == nil {
				err = e.ledger.CheckDispense(cmd.Well, cmd.Volume, e.cfg.EnforceCapacity)
			}
		case instrument.KindMix:
			err = e.channels.CheckTip(cmd.Channel)
		case instrument.KindPickupResource:
			err = e.gripper.CheckPickup(cmd.Resource)
		case instrument.KindMoveResource, instrument.KindDropResource:
			err = e.gripper.CheckHolding(cmd.Resource)
		case instrument.KindWash, instrument.KindBreak:
		}

		if err != nil {
			var precond *instrument.PreconditionError
			if !errors.As(err, &precond) {
				err = &instrument.PreconditionError{Command: cmd, Err: err}
			}
			return i, err
		}
	}
	return -1, nil
}

// apply commits a confirmed command's state mutation. The only callers of
// the stores' Apply methods are here.
func (e *Engine) apply(cmd instrument.Command) {
	switch cmd.Kind {
	case instrument.KindPickupTip:
		e.channels.ApplyPickup(cmd.Channel)
	case instrument.KindDropTip:
		e.channels.ApplyDrop(cmd.Channel)
	case instrument.KindAspirate:
		e.ledger.ApplyAspirate(cmd.Well, cmd.Volume)
	case instrument.KindDispense:
		e.ledger.ApplyDispense(cmd.Well, cmd.Volume)
	case instrument.KindPickupResource:
		e.gripper.ApplyPickup(cmd.Resource)
	case instrument.KindDropResource:
		e.gripper.ApplyDrop()
	case instrument.KindMix, instrument.KindWash, instrument.KindBreak, instrument.KindMoveResource:
		// No net state change: mix's internal aspirate/dispense pairs are
		// not separately ledgered, and a held resource stays held on move.
	}
}

// appendEntry appends a log entry for a single command.
func (e *Engine) appendEntry(cmd instrument.Command, outcome OutcomeKind, cause string, duration time.Duration) LogEntry {
	entry := LogEntry{
		Seq:      len(e.log),
		Command:  cmd,
		Outcome:  outcome,
		Cause:    cause,
		Duration: duration,
		Clock:    e.clock,
		State:    instrument.TakeSnapshot(e.channels, e.ledger, e.gripper, len(e.log)),
	}
	e.log = append(e.log, entry)
	e.notify(entry)
	return entry
}

// appendBatchEntry appends a success entry for one batch element.
func (e *Engine) appendBatchEntry(cmd instrument.Command, duration time.Duration) LogEntry {
	return e.appendEntry(cmd, OutcomeSuccess, "", duration)
}

// record forwards a successful entry to the telemetry sink.
func (e *Engine) record(cmd instrument.Command, entry LogEntry) {
	if e.telemetry == nil {
		return
	}
	e.telemetry.RecordCommand(string(cmd.Kind), string(entry.Outcome), entry.Duration, entry.Clock)
	if cmd.Kind == instrument.KindAspirate || cmd.Kind == instrument.KindDispense {
		e.telemetry.RecordWellVolume(cmd.Well.Plate, cmd.Well.Well, e.ledger.Volume(cmd.Well))
	}
}

// notify broadcasts a log entry to the event notifier.
func (e *Engine) notify(entry LogEntry) {
	if e.notifier == nil {
		return
	}
	e.notifier.Broadcast("command.executed", entry)
}

// NominalDuration returns a command's fixed simulated duration on the
// deterministic clock. Ports that pace real time use the same table.
func NominalDuration(cmd instrument.Command) time.Duration {
	switch cmd.Kind {
	case instrument.KindPickupTip, instrument.KindDropTip:
		return durTip
	case instrument.KindAspirate, instrument.KindDispense:
		return durLiquid
	case instrument.KindMix:
		return time.Duration(cmd.Cycles) * durMixPerCycle
	case instrument.KindWash:
		return durWash
	case instrument.KindBreak:
		return durBreak
	case instrument.KindPickupResource, instrument.KindMoveResource, instrument.KindDropResource:
		return durResource
	default:
		return 0
	}
}

// repeatOutcome builds a per-op outcome slice with one repeated value.
func repeatOutcome(o OutcomeKind, n int) []OutcomeKind {
	out := make([]OutcomeKind, n)
	for i := range out {
		out[i] = o
	}
	return out
}
