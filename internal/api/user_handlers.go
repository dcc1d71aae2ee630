package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tappbx/tappbx/internal/database"
	"github.com/tappbx/tappbx/internal/database/models"
)

type userRequest struct {
	DomainID string `json:"domain_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	IsAdmin  *bool  `json:"is_admin"`
	Enabled  *bool  `json:"enabled"`
}

type userResponse struct {
	ID        string `json:"id"`
	DomainID  string `json:"domain_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	IsAdmin   bool   `json:"is_admin"`
	Enabled   bool   `json:"enabled"`
	UpdatedAt string `json:"updated_at"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:        u.ID,
		DomainID:  u.DomainID,
		Username:  u.Username,
		Email:     u.Email,
		IsAdmin:   u.IsAdmin,
		Enabled:   u.Enabled,
		UpdatedAt: u.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Users.List(r.Context(), r.URL.Query().Get("domain_id"))
	if err != nil {
		writeStoreError(w, "list users", err)
		return
	}
	items := make([]userResponse, len(users))
	for i := range users {
		items[i] = toUserResponse(&users[i])
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("username", req.Username, maxNameLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}
	if req.Email != "" {
		if errMsg := validateEmail("email", req.Email); errMsg != "" {
			writeError(w, http.StatusBadRequest, errMsg)
			return
		}
	}

	hash, err := database.HashPassword(req.Password)
	if err != nil {
		writeStoreError(w, "create user: hash", err)
		return
	}

	u := &models.User{
		ID:           uuid.NewString(),
		DomainID:     req.DomainID,
		Username:     req.Username,
		PasswordHash: hash,
		Email:        req.Email,
		Enabled:      true,
	}
	if req.IsAdmin != nil {
		u.IsAdmin = *req.IsAdmin
	}
	if req.Enabled != nil {
		u.Enabled = *req.Enabled
	}

	if err := s.deps.Users.Create(r.Context(), u); err != nil {
		writeStoreError(w, "create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.deps.Users.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "get user", err)
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.deps.Users.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "update user", err)
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	var req userRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if req.Password != "" {
		hash, err := database.HashPassword(req.Password)
		if err != nil {
			writeStoreError(w, "update user: hash", err)
			return
		}
		u.PasswordHash = hash
	}
	if req.Email != "" {
		if errMsg := validateEmail("email", req.Email); errMsg != "" {
			writeError(w, http.StatusBadRequest, errMsg)
			return
		}
		u.Email = req.Email
	}
	if req.IsAdmin != nil {
		u.IsAdmin = *req.IsAdmin
	}
	if req.Enabled != nil {
		u.Enabled = *req.Enabled
	}

	if err := s.deps.Users.Update(r.Context(), u); err != nil {
		writeStoreError(w, "update user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Users.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, "delete user", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
