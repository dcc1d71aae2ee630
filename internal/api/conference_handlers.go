package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tappbx/tappbx/internal/database/models"
)

type conferenceRequest struct {
	DomainID  string `json:"domain_id"`
	Name      string `json:"name"`
	Extension string `json:"extension"`
	Context   string `json:"context"`
	Greeting  string `json:"greeting"`
	PINLength *int   `json:"pin_length"`
	Record    *bool  `json:"record"`
	Enabled   *bool  `json:"enabled"`
}

type conferenceResponse struct {
	ID         string `json:"id"`
	DomainID   string `json:"domain_id"`
	DialplanID string `json:"dialplan_id"`
	Name       string `json:"name"`
	Extension  string `json:"extension"`
	Context    string `json:"context"`
	Greeting   string `json:"greeting"`
	PINLength  int    `json:"pin_length"`
	Record     bool   `json:"record"`
	Enabled    bool   `json:"enabled"`
	UpdatedAt  string `json:"updated_at"`
}

func toConferenceResponse(cc *models.ConferenceCentre) conferenceResponse {
	return conferenceResponse{
		ID:         cc.ID,
		DomainID:   cc.DomainID,
		DialplanID: cc.DialplanID,
		Name:       cc.Name,
		Extension:  cc.Extension,
		Context:    cc.Context,
		Greeting:   cc.Greeting,
		PINLength:  cc.PINLength,
		Record:     cc.Record,
		Enabled:    cc.Enabled,
		UpdatedAt:  cc.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleListConferences(w http.ResponseWriter, r *http.Request) {
	centres, err := s.deps.Conferences.List(r.Context(), r.URL.Query().Get("domain_id"))
	if err != nil {
		writeStoreError(w, "list conference centres", err)
		return
	}
	items := make([]conferenceResponse, len(centres))
	for i := range centres {
		items[i] = toConferenceResponse(&centres[i])
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateConference(w http.ResponseWriter, r *http.Request) {
	var req conferenceRequest
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

	tenant, err := s.tenantByID(r.Context(), req.DomainID)
	if err != nil {
		writeStoreError(w, "create conference centre: tenant", err)
		return
	}
	context := req.Context
	if context == "" {
		context = tenant.Name
	}

	rec, err := s.createRouteDialplan(r, req.DomainID, models.AppConferenceCentre,
		"Conference centre", req.Name, req.Extension, context, 101)
	if err != nil {
		writeStoreError(w, "create conference centre: dialplan", err)
		return
	}

	cc := &models.ConferenceCentre{
		ID:         uuid.NewString(),
		DomainID:   req.DomainID,
		DialplanID: rec.ID,
		Name:       req.Name,
		Extension:  req.Extension,
		Context:    context,
		Greeting:   req.Greeting,
		PINLength:  8,
		Enabled:    true,
	}
	if req.PINLength != nil {
		cc.PINLength = *req.PINLength
	}
	if req.Record != nil {
		cc.Record = *req.Record
	}
	if req.Enabled != nil {
		cc.Enabled = *req.Enabled
	}

	if err := s.deps.Conferences.Create(r.Context(), cc); err != nil {
		writeStoreError(w, "create conference centre", err)
		return
	}
	writeJSON(w, http.StatusCreated, toConferenceResponse(cc))
}

func (s *Server) handleGetConference(w http.ResponseWriter, r *http.Request) {
	cc, err := s.deps.Conferences.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "get conference centre", err)
		return
	}
	if cc == nil {
		writeError(w, http.StatusNotFound, "conference centre not found")
		return
	}
	writeJSON(w, http.StatusOK, toConferenceResponse(cc))
}

func (s *Server) handleUpdateConference(w http.ResponseWriter, r *http.Request) {
	cc, err := s.deps.Conferences.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "update conference centre", err)
		return
	}
	if cc == nil {
		writeError(w, http.StatusNotFound, "conference centre not found")
		return
	}

	var req conferenceRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if req.Name != "" {
		cc.Name = req.Name
	}
	cc.Greeting = req.Greeting
	if req.PINLength != nil {
		cc.PINLength = *req.PINLength
	}
	if req.Record != nil {
		cc.Record = *req.Record
	}
	if req.Enabled != nil {
		cc.Enabled = *req.Enabled
	}

	if err := s.deps.Conferences.Update(r.Context(), cc); err != nil {
		writeStoreError(w, "update conference centre", err)
		return
	}
	writeJSON(w, http.StatusOK, toConferenceResponse(cc))
}

func (s *Server) handleDeleteConference(w http.ResponseWriter, r *http.Request) {
	cc, err := s.deps.Conferences.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "delete conference centre", err)
		return
	}
	if cc == nil {
		writeError(w, http.StatusNotFound, "conference centre not found")
		return
	}
	if err := s.deps.Conferences.Delete(r.Context(), cc.ID); err != nil {
		writeStoreError(w, "delete conference centre", err)
		return
	}
	if err := s.deps.Dialplans.Delete(r.Context(), cc.DialplanID); err != nil {
		writeStoreError(w, "delete conference centre: dialplan", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleCompileConference(w http.ResponseWriter, r *http.Request) {
	cc, err := s.deps.Conferences.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "compile conference centre", err)
		return
	}
	if cc == nil {
		writeError(w, http.StatusNotFound, "conference centre not found")
		return
	}
	tenant, err := s.tenantByID(r.Context(), cc.DomainID)
	if err != nil {
		writeStoreError(w, "compile conference centre: tenant", err)
		return
	}

	xml := s.deps.Compiler.CompileConference(r.Context(), cc, tenant)
	res, err := s.saveCompiled(r.Context(), cc.DialplanID, xml, tenant.Name)
	respondCompiled(w, "compile conference centre", res, err)
}
