package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tappbx/tappbx/internal/database/models"
)

type timeConditionRequest struct {
	DomainID    string `json:"domain_id"`
	Name        string `json:"name"`
	Extension   string `json:"extension"`
	Context     string `json:"context"`
	Settings    string `json:"settings"`
	DefaultApp  string `json:"default_app"`
	DefaultData string `json:"default_data"`
	Sequence    *int   `json:"sequence"`
	Enabled     *bool  `json:"enabled"`
}

type timeConditionResponse struct {
	ID          string `json:"id"`
	DomainID    string `json:"domain_id"`
	DialplanID  string `json:"dialplan_id"`
	Name        string `json:"name"`
	Extension   string `json:"extension"`
	Context     string `json:"context"`
	Settings    string `json:"settings"`
	DefaultApp  string `json:"default_app"`
	DefaultData string `json:"default_data"`
	Sequence    int    `json:"sequence"`
	Enabled     bool   `json:"enabled"`
	UpdatedAt   string `json:"updated_at"`
}

func toTimeConditionResponse(tc *models.TimeCondition) timeConditionResponse {
	return timeConditionResponse{
		ID:          tc.ID,
		DomainID:    tc.DomainID,
		DialplanID:  tc.DialplanID,
		Name:        tc.Name,
		Extension:   tc.Extension,
		Context:     tc.Context,
		Settings:    tc.Settings,
		DefaultApp:  tc.DefaultApp,
		DefaultData: tc.DefaultData,
		Sequence:    tc.Sequence,
		Enabled:     tc.Enabled,
		UpdatedAt:   tc.UpdatedAt.Format(time.RFC3339),
	}
}

// validateMatchBlocks checks the match-block payload is a JSON array and
// within the size cap. Field-level validation happens at compile time;
// malformed blocks degrade to the default action.
func validateMatchBlocks(settings string) string {
	if settings == "" {
		return ""
	}
	if len(settings) > maxSettingsJSONLen {
		return "settings exceeds maximum length"
	}
	var blocks []json.RawMessage
	if err := json.Unmarshal([]byte(settings), &blocks); err != nil {
		return "settings must be a JSON array of match blocks"
	}
	return ""
}

func (s *Server) handleListTimeConditions(w http.ResponseWriter, r *http.Request) {
	conds, err := s.deps.TimeConditions.List(r.Context(), r.URL.Query().Get("domain_id"))
	if err != nil {
		writeStoreError(w, "list time conditions", err)
		return
	}
	items := make([]timeConditionResponse, len(conds))
	for i := range conds {
		items[i] = toTimeConditionResponse(&conds[i])
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateTimeCondition(w http.ResponseWriter, r *http.Request) {
	var req timeConditionRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("name", req.Name, maxNameLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateExtensionNumber("extension", req.Extension); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateMatchBlocks(req.Settings); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	tenant, err := s.tenantByID(r.Context(), req.DomainID)
	if err != nil {
		writeStoreError(w, "create time condition: tenant", err)
		return
	}
	context := req.Context
	if context == "" {
		context = tenant.Name
	}
	sequence := 300
	if req.Sequence != nil {
		sequence = *req.Sequence
	}

	rec, err := s.createRouteDialplan(r, req.DomainID, models.AppTimeCondition,
		"Time condition", req.Name, req.Extension, context, sequence)
	if err != nil {
		writeStoreError(w, "create time condition: dialplan", err)
		return
	}

	tc := &models.TimeCondition{
		ID:          uuid.NewString(),
		DomainID:    req.DomainID,
		DialplanID:  rec.ID,
		Name:        req.Name,
		Extension:   req.Extension,
		Context:     context,
		Settings:    req.Settings,
		DefaultApp:  req.DefaultApp,
		DefaultData: req.DefaultData,
		Sequence:    sequence,
		Enabled:     true,
	}
	if req.Enabled != nil {
		tc.Enabled = *req.Enabled
	}

	if err := s.deps.TimeConditions.Create(r.Context(), tc); err != nil {
		writeStoreError(w, "create time condition", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTimeConditionResponse(tc))
}

func (s *Server) handleGetTimeCondition(w http.ResponseWriter, r *http.Request) {
	tc, err := s.deps.TimeConditions.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "get time condition", err)
		return
	}
	if tc == nil {
		writeError(w, http.StatusNotFound, "time condition not found")
		return
	}
	writeJSON(w, http.StatusOK, toTimeConditionResponse(tc))
}

func (s *Server) handleUpdateTimeCondition(w http.ResponseWriter, r *http.Request) {
	tc, err := s.deps.TimeConditions.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "update time condition", err)
		return
	}
	if tc == nil {
		writeError(w, http.StatusNotFound, "time condition not found")
		return
	}

	var req timeConditionRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateMatchBlocks(req.Settings); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if req.Name != "" {
		tc.Name = req.Name
	}
	tc.Settings = req.Settings
	tc.DefaultApp = req.DefaultApp
	tc.DefaultData = req.DefaultData
	if req.Sequence != nil {
		tc.Sequence = *req.Sequence
	}
	if req.Enabled != nil {
		tc.Enabled = *req.Enabled
	}

	if err := s.deps.TimeConditions.Update(r.Context(), tc); err != nil {
		writeStoreError(w, "update time condition", err)
		return
	}
	writeJSON(w, http.StatusOK, toTimeConditionResponse(tc))
}

func (s *Server) handleDeleteTimeCondition(w http.ResponseWriter, r *http.Request) {
	tc, err := s.deps.TimeConditions.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "delete time condition", err)
		return
	}
	if tc == nil {
		writeError(w, http.StatusNotFound, "time condition not found")
		return
	}
	if err := s.deps.TimeConditions.Delete(r.Context(), tc.ID); err != nil {
		writeStoreError(w, "delete time condition", err)
		return
	}
	if err := s.deps.Dialplans.Delete(r.Context(), tc.DialplanID); err != nil {
		writeStoreError(w, "delete time condition: dialplan", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleCompileTimeCondition(w http.ResponseWriter, r *http.Request) {
	tc, err := s.deps.TimeConditions.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "compile time condition", err)
		return
	}
	if tc == nil {
		writeError(w, http.StatusNotFound, "time condition not found")
		return
	}
	tenant, err := s.tenantByID(r.Context(), tc.DomainID)
	if err != nil {
		writeStoreError(w, "compile time condition: tenant", err)
		return
	}

	xml := s.deps.Compiler.CompileTimeCondition(r.Context(), tc, tenant)
	res, err := s.saveCompiled(r.Context(), tc.DialplanID, xml, tenant.Name)
	respondCompiled(w, "compile time condition", res, err)
}
