// Package runlog persists run records and their per-command execution
// entries to SQLite, giving every run a durable audit trail.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridianlab/fluidcore/internal/engine"
	"github.com/meridianlab/fluidcore/internal/instrument"
)

// Run statuses.
const (
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusAborted     = "aborted"
	StatusInterrupted = "interrupted"
)

// ErrNotFound is returned when a run ID does not exist.
var ErrNotFound = errors.New("runlog: run not found")

// Run is one execution of a command sequence against the engine.
type Run struct {
	ID            string        `json:"id"`
	InstrumentID  string        `json:"instrument_id"`
	Source        string        `json:"source"`
	Status        string        `json:"status"`
	CommandsTotal int           `json:"commands_total"`
	Completed     int           `json:"completed"`
	Clock         time.Duration `json:"clock"`
	Cause         string        `json:"cause,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
}

// Entry is one persisted engine log entry belonging to a run.
type Entry struct {
	RunID    string              `json:"run_id"`
	Seq      int                 `json:"seq"`
	Command  instrument.Command  `json:"command"`
	Outcome  engine.OutcomeKind  `json:"outcome"`
	Cause    string              `json:"cause,omitempty"`
	Duration time.Duration       `json:"duration"`
	Clock    time.Duration       `json:"clock"`
	State    instrument.Snapshot `json:"state"`
}

// Filter controls which runs to return.
type Filter struct {
	Status string // optional: filter by run status
	Limit  int    // default 50, max 200
	Offset int    // pagination offset
}

// ListResult contains paginated run results.
type ListResult struct {
	Runs   []Run `json:"runs"`
	Total  int   `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// Repository defines the interface for run persistence.
type Repository interface {
	Create(ctx context.Context, run *Run) error
	Complete(ctx context.Context, id, status string, completed int, clock time.Duration, cause string) error
	AppendEntries(ctx context.Context, runID string, entries []engine.LogEntry) error
	Get(ctx context.Context, id string) (*Run, error)
	Entries(ctx context.Context, runID string) ([]Entry, error)
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores runs in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new run repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new run. The ID, Status and CreatedAt are generated
// if empty.
func (r *SQLiteRepository) Create(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = "run-" + uuid.NewString()[:8]
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, instrument_id, source, status, commands_total, completed, clock_ms, cause, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.InstrumentID, run.Source, run.Status,
		run.CommandsTotal, run.Completed, run.Clock.Milliseconds(),
		nullableString(run.Cause),
		run.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	return nil
}

// Complete marks a run finished with its final status, completed count,
// clock and (for non-success statuses) cause.
func (r *SQLiteRepository) Complete(ctx context.Context, id, status string, completed int, clock time.Duration, cause string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed = ?, clock_ms = ?, cause = ?, completed_at = ? WHERE id = ?`,
		status, completed, clock.Milliseconds(),
		nullableString(cause),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("completing run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking completed run: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// AppendEntries persists a run's log entries in a single transaction so a
// partially written run never appears in queries.
func (r *SQLiteRepository) AppendEntries(ctx context.Context, runID string, entries []engine.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	for _, e := range entries {
		commandJSON, err := json.Marshal(e.Command)
		if err != nil {
			return fmt.Errorf("marshalling command for entry %d: %w", e.Seq, err)
		}
		stateJSON, err := json.Marshal(e.State)
		if err != nil {
			return fmt.Errorf("marshalling snapshot for entry %d: %w", e.Seq, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_entries (run_id, seq, command, outcome, cause, duration_ms, clock_ms, state)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, e.Seq, string(commandJSON), string(e.Outcome),
			nullableString(e.Cause),
			e.Duration.Milliseconds(), e.Clock.Milliseconds(),
			string(stateJSON),
		); err != nil {
			return fmt.Errorf("inserting run entry %d: %w", e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run entries: %w", err)
	}
	return nil
}

// Get returns a single run by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, instrument_id, source, status, commands_total, completed, clock_ms, cause, created_at, completed_at
		 FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Entries returns all persisted entries for a run, in execution order.
func (r *SQLiteRepository) Entries(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT run_id, seq, command, outcome, cause, duration_ms, clock_ms, state
		 FROM run_entries WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying run entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var commandJSON, stateJSON string
		var cause sql.NullString
		var durationMS, clockMS int64

		if err := rows.Scan(&e.RunID, &e.Seq, &commandJSON, &e.Outcome,
			&cause, &durationMS, &clockMS, &stateJSON); err != nil {
			return nil, fmt.Errorf("scanning run entry: %w", err)
		}

		if err := json.Unmarshal([]byte(commandJSON), &e.Command); err != nil {
			return nil, fmt.Errorf("decoding command for entry %d: %w", e.Seq, err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &e.State); err != nil {
			return nil, fmt.Errorf("decoding snapshot for entry %d: %w", e.Seq, err)
		}
		if cause.Valid {
			e.Cause = cause.String
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.Clock = time.Duration(clockMS) * time.Millisecond

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run entries: %w", err)
	}
	return entries, nil
}

// List returns runs matching the filter, ordered by most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for run queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM runs %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting runs: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		`SELECT id, instrument_id, source, status, commands_total, completed, clock_ms, cause, created_at, completed_at
		 FROM runs %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return &ListResult{
		Runs:   runs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// rowScanner covers both sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var cause, completedAt sql.NullString
	var clockMS int64
	var createdAt string

	if err := row.Scan(&run.ID, &run.InstrumentID, &run.Source, &run.Status,
		&run.CommandsTotal, &run.Completed, &clockMS, &cause,
		&createdAt, &completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	if cause.Valid {
		run.Cause = cause.String
	}
	run.Clock = time.Duration(clockMS) * time.Millisecond

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing run timestamp %q: %w", createdAt, err)
	}
	run.CreatedAt = t

	if completedAt.Valid && completedAt.String != "" {
		ct, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing completion timestamp %q: %w", completedAt.String, err)
		}
		run.CompletedAt = &ct
	}

	return &run, nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// StatusForResult maps an execution error to a run status.
func StatusForResult(err error) string {
	switch {
	case err == nil:
		return StatusCompleted
	case errors.Is(err, engine.ErrInterrupted):
		return StatusInterrupted
	default:
		return StatusAborted
	}
}
