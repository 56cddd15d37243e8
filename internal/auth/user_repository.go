package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserRepository is the persistence boundary for operator accounts.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Update(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// userColumns is the select list every read shares; scanUser depends on
// this exact order.
const userColumns = "id, username, display_name, email, password_hash, role, is_active, created_by, created_at, updated_at"

// SQLiteUserRepository stores operator accounts in the fluidcore
// SQLite database.
type SQLiteUserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

// Create inserts an operator account, generating an ID when absent.
// A username collision returns ErrUsernameExists.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()[:8]
	}
	user.CreatedAt = time.Now().UTC().Truncate(time.Second)
	user.UpdatedAt = user.CreatedAt
	stamp := user.CreatedAt.Format(time.RFC3339)

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		user.ID, user.Username, user.DisplayName, optional(user.Email),
		user.PasswordHash, string(user.Role), user.IsActive,
		optional(user.CreatedBy), stamp, stamp)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUser(row)
}

func (r *SQLiteUserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = ?", username)
	return scanUser(row)
}

// List returns all accounts, oldest first. Never nil: an empty table
// yields an empty slice so the API serialises [] rather than null.
func (r *SQLiteUserRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// Update rewrites the mutable fields: display name, email, role, and
// the active flag. Username and password change through their own
// paths.
func (r *SQLiteUserRepository) Update(ctx context.Context, user *User) error {
	user.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	result, err := r.db.ExecContext(ctx,
		"UPDATE users SET display_name = ?, email = ?, role = ?, is_active = ?, updated_at = ? WHERE id = ?",
		user.DisplayName, optional(user.Email), string(user.Role), user.IsActive,
		user.UpdatedAt.Format(time.RFC3339), user.ID)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	return requireRow(result)
}

func (r *SQLiteUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?",
		passwordHash, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return requireRow(result)
}

func (r *SQLiteUserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return requireRow(result)
}

func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// requireRow turns a zero-row write into ErrUserNotFound.
func requireRow(result sql.Result) error {
	n, _ := result.RowsAffected() //nolint:errcheck // always available on SQLite
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// scanUser reads one account row; works for both sql.Row and sql.Rows.
func scanUser(row interface{ Scan(dest ...any) error }) (*User, error) {
	var (
		u                    User
		email, createdBy     sql.NullString
		role                 string
		createdAt, updatedAt string
	)
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &email,
		&u.PasswordHash, &role, &u.IsActive, &createdBy,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.Role = Role(role)
	u.Email = email.String
	u.CreatedBy = createdBy.String
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // written by this repository
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // written by this repository
	return &u, nil
}

// optional maps "" onto NULL so absent emails don't trip the unique
// index on the column.
func optional(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
