package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianlab/fluidcore/internal/auth"
)

type createUserRequest struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	Password    string    `json:"password"`
	Role        auth.Role `json:"role"`
}

// handleListUsers returns all user accounts.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.logger.Error("list users failed", "error", err)
		writeInternalError(w, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleCreateUser creates a new user account.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Username == "" || req.Password == "" || req.DisplayName == "" {
		writeBadRequest(w, "username, password, and display_name are required")
		return
	}
	if !auth.IsValidUsername(req.Username) {
		writeBadRequest(w, "username may only contain letters, digits, dots, hyphens, and underscores")
		return
	}

	if len(req.Password) < 8 { //nolint:mnd // minimum password length
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}

	if req.Role == "" {
		req.Role = auth.RoleViewer
	}

	if !auth.IsValidUserRole(req.Role) {
		writeBadRequest(w, "invalid role: must be viewer, operator, or admin")
		return
	}

	claims := claimsFromContext(r.Context())

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("hash password failed", "error", err)
		writeInternalError(w, "failed to create user")
		return
	}

	user := &auth.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		IsActive:     true,
		CreatedBy:    claims.Subject,
	}

	if err := s.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrUsernameExists) {
			writeConflict(w, "username already exists")
			return
		}
		s.logger.Error("create user failed", "error", err)
		writeInternalError(w, "failed to create user")
		return
	}

	s.logger.Info("user created", "user_id", user.ID, "username", user.Username, "role", user.Role, "created_by", claims.Subject)
	s.auditLog("create", "user", user.ID, claims.Subject, map[string]any{
		"username": user.Username,
		"role":     user.Role,
	})

	writeJSON(w, http.StatusCreated, user)
}

// handleDeleteUser removes a user account.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claims := claimsFromContext(r.Context())

	// Cannot delete yourself
	if id == claims.Subject {
		writeForbidden(w, "cannot delete your own account")
		return
	}

	user, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("get user for delete failed", "error", err)
		writeInternalError(w, "failed to delete user")
		return
	}

	if err := s.users.Delete(r.Context(), id); err != nil {
		s.logger.Error("delete user failed", "error", err)
		writeInternalError(w, "failed to delete user")
		return
	}

	s.logger.Info("user deleted", "user_id", id, "username", user.Username, "deleted_by", claims.Subject)
	s.auditLog("delete", "user", id, claims.Subject, map[string]any{
		"username": user.Username,
	})

	w.WriteHeader(http.StatusNoContent)
}
