package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tappbx/tappbx/internal/database/models"
	"github.com/tappbx/tappbx/internal/reload"
	"github.com/tappbx/tappbx/internal/settings"
)

// settingRequest is the JSON request body for creating/updating a setting.
type settingRequest struct {
	Scope       string  `json:"scope"`
	DomainID    *string `json:"domain_id"`
	UserID      *string `json:"user_id"`
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory"`
	Type        string  `json:"type"`
	Value       string  `json:"value"`
	Sequence    *int    `json:"sequence"`
	Enabled     *bool   `json:"enabled"`
	Description string  `json:"description"`
}

type settingResponse struct {
	ID          string  `json:"id"`
	Scope       string  `json:"scope"`
	DomainID    *string `json:"domain_id,omitempty"`
	UserID      *string `json:"user_id,omitempty"`
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory"`
	Type        string  `json:"type"`
	Value       string  `json:"value"`
	Sequence    int     `json:"sequence"`
	Enabled     bool    `json:"enabled"`
	Description string  `json:"description"`
	UpdatedAt   string  `json:"updated_at"`
}

func toSettingResponse(st *models.Setting) settingResponse {
	return settingResponse{
		ID:          st.ID,
		Scope:       st.Scope,
		DomainID:    st.DomainID,
		UserID:      st.UserID,
		Category:    st.Category,
		Subcategory: st.Subcategory,
		Type:        st.Type,
		Value:       st.Value,
		Sequence:    st.Sequence,
		Enabled:     st.Enabled,
		Description: st.Description,
		UpdatedAt:   st.UpdatedAt.Format(time.RFC3339),
	}
}

func validateSettingRequest(req settingRequest) string {
	switch req.Scope {
	case models.ScopeGlobal, models.ScopeDomain, models.ScopeUser:
	default:
		return "scope must be global, domain or user"
	}
	if req.Scope != models.ScopeGlobal && req.DomainID == nil {
		return "domain_id is required for non-global settings"
	}
	if req.Scope == models.ScopeUser && req.UserID == nil {
		return "user_id is required for user settings"
	}
	if errMsg := validateRequiredStringLen("category", req.Category, maxNameLen); errMsg != "" {
		return errMsg
	}
	return validateRequiredStringLen("subcategory", req.Subcategory, maxNameLen)
}

// flushSettings signals the settings change so the reload coordinator can
// drop the memoised configuration and language keys. Without a notifier the
// flush runs inline.
func (s *Server) flushSettings(r *http.Request, domainID *string) {
	if s.deps.Notifier != nil {
		s.deps.Notifier.Notify(settings.Change{Kind: reload.ScopeConfiguration, DomainID: domainID})
		s.deps.Notifier.Notify(settings.Change{Kind: reload.ScopeLanguages, DomainID: domainID})
		return
	}
	tenant := ""
	if domainID != nil {
		tenant = *domainID
	}
	s.deps.Reload.AutoFlush(r.Context(), reload.ScopeConfiguration, tenant)
	s.deps.Reload.AutoFlush(r.Context(), reload.ScopeLanguages, tenant)
}

func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope := q.Get("scope")
	if scope == "" {
		scope = models.ScopeGlobal
	}
	var domainID, userID *string
	if v := q.Get("domain_id"); v != "" {
		domainID = &v
	}
	if v := q.Get("user_id"); v != "" {
		userID = &v
	}

	rows, err := s.deps.Settings.List(r.Context(), scope, domainID, userID)
	if err != nil {
		writeStoreError(w, "list settings", err)
		return
	}
	items := make([]settingResponse, len(rows))
	for i := range rows {
		items[i] = toSettingResponse(&rows[i])
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateSetting(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateSettingRequest(req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	st := &models.Setting{
		ID:          uuid.NewString(),
		Scope:       req.Scope,
		DomainID:    req.DomainID,
		UserID:      req.UserID,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Type:        req.Type,
		Value:       req.Value,
		Enabled:     true,
		Description: req.Description,
	}
	if st.Type == "" {
		st.Type = models.TypeText
	}
	if req.Sequence != nil {
		st.Sequence = *req.Sequence
	}
	if req.Enabled != nil {
		st.Enabled = *req.Enabled
	}

	if err := s.deps.Settings.Create(r.Context(), st); err != nil {
		writeStoreError(w, "create setting", err)
		return
	}
	s.flushSettings(r, st.DomainID)
	writeJSON(w, http.StatusCreated, toSettingResponse(st))
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Settings.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "get setting", err)
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, "setting not found")
		return
	}
	writeJSON(w, http.StatusOK, toSettingResponse(st))
}

func (s *Server) handleUpdateSetting(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Settings.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "update setting", err)
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, "setting not found")
		return
	}

	var req settingRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if req.Type != "" {
		st.Type = req.Type
	}
	st.Value = req.Value
	if req.Sequence != nil {
		st.Sequence = *req.Sequence
	}
	if req.Enabled != nil {
		st.Enabled = *req.Enabled
	}
	if req.Description != "" {
		st.Description = req.Description
	}

	if err := s.deps.Settings.Update(r.Context(), st); err != nil {
		writeStoreError(w, "update setting", err)
		return
	}
	s.flushSettings(r, st.DomainID)
	writeJSON(w, http.StatusOK, toSettingResponse(st))
}

func (s *Server) handleDeleteSetting(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Settings.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "delete setting", err)
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, "setting not found")
		return
	}
	if err := s.deps.Settings.Delete(r.Context(), st.ID); err != nil {
		writeStoreError(w, "delete setting", err)
		return
	}
	s.flushSettings(r, st.DomainID)
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
