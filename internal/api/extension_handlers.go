package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tappbx/tappbx/internal/database/models"
	"github.com/tappbx/tappbx/internal/reload"
)

type extensionRequest struct {
	DomainID       string          `json:"domain_id"`
	Extension      string          `json:"extension"`
	CallerIDName   string          `json:"caller_id_name"`
	CallerIDNumber string          `json:"caller_id_number"`
	UserID         *string         `json:"user_id"`
	CallTimeout    *int            `json:"call_timeout"`
	FollowMe       *bool           `json:"follow_me"`
	Enabled        *bool           `json:"enabled"`
	FollowMeDests  *[]followMeDest `json:"follow_me_destinations"`
}

type followMeDest struct {
	Destination string `json:"destination"`
	Delay       int    `json:"delay"`
	Timeout     int    `json:"timeout"`
	Prompt      bool   `json:"prompt"`
	Sequence    int    `json:"sequence"`
}

type extensionResponse struct {
	ID             string         `json:"id"`
	DomainID       string         `json:"domain_id"`
	Extension      string         `json:"extension"`
	CallerIDName   string         `json:"caller_id_name"`
	CallerIDNumber string         `json:"caller_id_number"`
	UserID         *string        `json:"user_id"`
	CallTimeout    int            `json:"call_timeout"`
	FollowMe       bool           `json:"follow_me"`
	Enabled        bool           `json:"enabled"`
	FollowMeDests  []followMeDest `json:"follow_me_destinations,omitempty"`
	UpdatedAt      string         `json:"updated_at"`
}

func toExtensionResponse(ext *models.Extension, dests []models.FollowMeDestination) extensionResponse {
	resp := extensionResponse{
		ID:             ext.ID,
		DomainID:       ext.DomainID,
		Extension:      ext.Extension,
		CallerIDName:   ext.CallerIDName,
		CallerIDNumber: ext.CallerIDNumber,
		UserID:         ext.UserID,
		CallTimeout:    ext.CallTimeout,
		FollowMe:       ext.FollowMe,
		Enabled:        ext.Enabled,
		UpdatedAt:      ext.UpdatedAt.Format(time.RFC3339),
	}
	for _, d := range dests {
		resp.FollowMeDests = append(resp.FollowMeDests, followMeDest{
			Destination: d.Destination, Delay: d.Delay, Timeout: d.Timeout,
			Prompt: d.Prompt, Sequence: d.Sequence,
		})
	}
	return resp
}

func fromFollowMeDests(extensionID string, rows []followMeDest) []models.FollowMeDestination {
	dests := make([]models.FollowMeDestination, len(rows))
	for i, d := range rows {
		dests[i] = models.FollowMeDestination{
			ExtensionID: extensionID, Destination: d.Destination, Delay: d.Delay,
			Timeout: d.Timeout, Prompt: d.Prompt, Sequence: d.Sequence,
		}
	}
	return dests
}

func (s *Server) handleListExtensions(w http.ResponseWriter, r *http.Request) {
	exts, err := s.deps.Extensions.List(r.Context(), r.URL.Query().Get("domain_id"))
	if err != nil {
		writeStoreError(w, "list extensions", err)
		return
	}
	items := make([]extensionResponse, len(exts))
	for i := range exts {
		items[i] = toExtensionResponse(&exts[i], nil)
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateExtension(w http.ResponseWriter, r *http.Request) {
	var req extensionRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateExtensionNumber("extension", req.Extension); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	ext := &models.Extension{
		ID:             uuid.NewString(),
		DomainID:       req.DomainID,
		Extension:      req.Extension,
		CallerIDName:   req.CallerIDName,
		CallerIDNumber: req.CallerIDNumber,
		UserID:         req.UserID,
		CallTimeout:    30,
		Enabled:        true,
	}
	if req.CallTimeout != nil {
		ext.CallTimeout = *req.CallTimeout
	}
	if req.FollowMe != nil {
		ext.FollowMe = *req.FollowMe
	}
	if req.Enabled != nil {
		ext.Enabled = *req.Enabled
	}

	if err := s.deps.Extensions.Create(r.Context(), ext); err != nil {
		writeStoreError(w, "create extension", err)
		return
	}

	var dests []models.FollowMeDestination
	if req.FollowMeDests != nil {
		dests = fromFollowMeDests(ext.ID, *req.FollowMeDests)
		if err := s.deps.Extensions.ReplaceFollowMe(r.Context(), ext.ID, dests); err != nil {
			writeStoreError(w, "create extension: follow-me", err)
			return
		}
	}

	s.deps.Reload.AutoFlush(r.Context(), reload.ScopeDirectory, "")
	writeJSON(w, http.StatusCreated, toExtensionResponse(ext, dests))
}

func (s *Server) handleGetExtension(w http.ResponseWriter, r *http.Request) {
	ext, err := s.deps.Extensions.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "get extension", err)
		return
	}
	if ext == nil {
		writeError(w, http.StatusNotFound, "extension not found")
		return
	}
	dests, err := s.deps.Extensions.ListFollowMe(r.Context(), ext.ID)
	if err != nil {
		writeStoreError(w, "get extension: follow-me", err)
		return
	}
	writeJSON(w, http.StatusOK, toExtensionResponse(ext, dests))
}

func (s *Server) handleUpdateExtension(w http.ResponseWriter, r *http.Request) {
	ext, err := s.deps.Extensions.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "update extension", err)
		return
	}
	if ext == nil {
		writeError(w, http.StatusNotFound, "extension not found")
		return
	}

	var req extensionRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	ext.CallerIDName = req.CallerIDName
	ext.CallerIDNumber = req.CallerIDNumber
	ext.UserID = req.UserID
	if req.CallTimeout != nil {
		ext.CallTimeout = *req.CallTimeout
	}
	if req.FollowMe != nil {
		ext.FollowMe = *req.FollowMe
	}
	if req.Enabled != nil {
		ext.Enabled = *req.Enabled
	}

	if err := s.deps.Extensions.Update(r.Context(), ext); err != nil {
		writeStoreError(w, "update extension", err)
		return
	}

	var dests []models.FollowMeDestination
	if req.FollowMeDests != nil {
		dests = fromFollowMeDests(ext.ID, *req.FollowMeDests)
		if err := s.deps.Extensions.ReplaceFollowMe(r.Context(), ext.ID, dests); err != nil {
			writeStoreError(w, "update extension: follow-me", err)
			return
		}
	} else {
		dests, err = s.deps.Extensions.ListFollowMe(r.Context(), ext.ID)
		if err != nil {
			writeStoreError(w, "update extension: follow-me", err)
			return
		}
	}

	s.deps.Reload.AutoFlush(r.Context(), reload.ScopeDirectory, "")
	writeJSON(w, http.StatusOK, toExtensionResponse(ext, dests))
}

func (s *Server) handleDeleteExtension(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Extensions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, "delete extension", err)
		return
	}
	s.deps.Reload.AutoFlush(r.Context(), reload.ScopeDirectory, "")
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
