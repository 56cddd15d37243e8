// Package audit provides access to the audit_logs table recording who did
// what on the instrument: logins, user management, run submissions.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// AuditLog represents a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter selects a page of the trail. Zero-value fields are not
// filtered on.
type Filter struct {
	Action     string // create, delete, login, execute, ...
	EntityType string // user, run, ...
	EntityID   string
	Limit      int // default 50, capped at 200
	Offset     int
}

// ListResult is one page of the trail plus the unpaginated total.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores the trail in the fluidcore SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create appends an entry to the trail, generating ID and timestamp
// when unset. Details are stored as a JSON document.
func (r *SQLiteRepository) Create(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()[:8]
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	var details any
	if log.Details != nil {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		details = string(b)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, entity_type, entity_id, user_id, source, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Action, log.EntityType,
		emptyToNull(log.EntityID), emptyToNull(log.UserID),
		log.Source, details,
		log.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// List returns one page of the trail, newest first, with a total count
// for the same filter.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	filter = clampPage(filter)
	where, args := filterClause(filter)

	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, action, entity_type, entity_id, user_id, source, details, created_at FROM audit_logs"+
			where+" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	logs := []AuditLog{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}

	return &ListResult{
		Logs:   logs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

func clampPage(f Filter) Filter {
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// filterClause assembles the WHERE fragment from the set filter fields.
// Values travel as ? placeholders; the SQL text itself is fixed.
func filterClause(f Filter) (string, []any) {
	var conditions []string
	var args []any

	for _, c := range []struct {
		column, value string
	}{
		{"action", f.Action},
		{"entity_type", f.EntityType},
		{"entity_id", f.EntityID},
	} {
		if c.value != "" {
			conditions = append(conditions, c.column+" = ?")
			args = append(args, c.value)
		}
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func scanEntry(rows *sql.Rows) (AuditLog, error) {
	var (
		entry                     AuditLog
		entityID, userID, details sql.NullString
		createdAt                 string
	)
	if err := rows.Scan(&entry.ID, &entry.Action, &entry.EntityType,
		&entityID, &userID, &entry.Source, &details, &createdAt); err != nil {
		return entry, fmt.Errorf("scanning audit log: %w", err)
	}

	entry.EntityID = entityID.String
	entry.UserID = userID.String
	if details.String != "" {
		// A corrupt details document degrades to nil rather than
		// blocking the whole page.
		_ = json.Unmarshal([]byte(details.String), &entry.Details) //nolint:errcheck
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return entry, fmt.Errorf("parsing audit log timestamp %q: %w", createdAt, err)
	}
	entry.CreatedAt = t
	return entry, nil
}

// emptyToNull keeps optional columns NULL instead of "".
func emptyToNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
