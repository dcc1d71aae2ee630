package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tappbx/tappbx/internal/database/models"
)

// domainRequest is the JSON request body for creating/updating a tenant.
type domainRequest struct {
	Name        string `json:"name"`
	Enabled     *bool  `json:"enabled"`
	Description string `json:"description"`
}

type domainResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toDomainResponse(d *models.Domain) domainResponse {
	return domainResponse{
		ID:          d.ID,
		Name:        d.Name,
		Enabled:     d.Enabled,
		Description: d.Description,
		CreatedAt:   d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   d.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleListDomains(w http.ResponseWriter, r *http.Request) {
	doms, err := s.deps.Domains.List(r.Context())
	if err != nil {
		writeStoreError(w, "list domains", err)
		return
	}
	items := make([]domainResponse, len(doms))
	for i := range doms {
		items[i] = toDomainResponse(&doms[i])
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateDomain(w http.ResponseWriter, r *http.Request) {
	var req domainRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("name", req.Name, maxHostLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	d := &models.Domain{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Enabled:     true,
		Description: req.Description,
	}
	if req.Enabled != nil {
		d.Enabled = *req.Enabled
	}
	if err := s.deps.Domains.Create(r.Context(), d); err != nil {
		writeStoreError(w, "create domain", err)
		return
	}

	created, err := s.deps.Domains.GetByID(r.Context(), d.ID)
	if err != nil || created == nil {
		writeStoreError(w, "create domain: re-fetch", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDomainResponse(created))
}

func (s *Server) handleGetDomain(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Domains.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "get domain", err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "domain not found")
		return
	}
	writeJSON(w, http.StatusOK, toDomainResponse(d))
}

func (s *Server) handleUpdateDomain(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Domains.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "update domain", err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "domain not found")
		return
	}

	var req domainRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	// The name is immutable; only the flag and description change.
	if req.Enabled != nil {
		d.Enabled = *req.Enabled
	}
	if req.Description != "" {
		d.Description = req.Description
	}
	if err := s.deps.Domains.Update(r.Context(), d); err != nil {
		writeStoreError(w, "update domain", err)
		return
	}
	writeJSON(w, http.StatusOK, toDomainResponse(d))
}

func (s *Server) handleDeleteDomain(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Domains.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, "delete domain", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
