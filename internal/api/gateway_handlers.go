package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tappbx/tappbx/internal/database/models"
)

// gatewayRequest is the JSON request body for creating/updating a gateway.
type gatewayRequest struct {
	DomainID string `json:"domain_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Prefix   string `json:"prefix"`
	Proxy    string `json:"proxy"`
	Enabled  *bool  `json:"enabled"`
}

type gatewayResponse struct {
	ID        string `json:"id"`
	DomainID  string `json:"domain_id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Prefix    string `json:"prefix"`
	Proxy     string `json:"proxy"`
	Enabled   bool   `json:"enabled"`
	UpdatedAt string `json:"updated_at"`
}

func toGatewayResponse(g *models.Gateway) gatewayResponse {
	return gatewayResponse{
		ID:        g.ID,
		DomainID:  g.DomainID,
		Name:      g.Name,
		Type:      g.Type,
		Prefix:    g.Prefix,
		Proxy:     g.Proxy,
		Enabled:   g.Enabled,
		UpdatedAt: g.UpdatedAt.Format(time.RFC3339),
	}
}

func validateGatewayType(t string) string {
	switch t {
	case "bridge", "transfer", "enum":
		return ""
	default:
		return "type must be bridge, transfer or enum"
	}
}

func (s *Server) handleListGateways(w http.ResponseWriter, r *http.Request) {
	gws, err := s.deps.Gateways.List(r.Context(), r.URL.Query().Get("domain_id"))
	if err != nil {
		writeStoreError(w, "list gateways", err)
		return
	}
	items := make([]gatewayResponse, len(gws))
	for i := range gws {
		items[i] = toGatewayResponse(&gws[i])
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateGateway(w http.ResponseWriter, r *http.Request) {
	var req gatewayRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("name", req.Name, maxNameLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateGatewayType(req.Type); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	g := &models.Gateway{
		ID:       uuid.NewString(),
		DomainID: req.DomainID,
		Name:     req.Name,
		Type:     req.Type,
		Prefix:   req.Prefix,
		Proxy:    req.Proxy,
		Enabled:  true,
	}
	if req.Enabled != nil {
		g.Enabled = *req.Enabled
	}
	if err := s.deps.Gateways.Create(r.Context(), g); err != nil {
		writeStoreError(w, "create gateway", err)
		return
	}
	writeJSON(w, http.StatusCreated, toGatewayResponse(g))
}

func (s *Server) handleGetGateway(w http.ResponseWriter, r *http.Request) {
	g, err := s.deps.Gateways.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "get gateway", err)
		return
	}
	if g == nil {
		writeError(w, http.StatusNotFound, "gateway not found")
		return
	}
	writeJSON(w, http.StatusOK, toGatewayResponse(g))
}

func (s *Server) handleUpdateGateway(w http.ResponseWriter, r *http.Request) {
	g, err := s.deps.Gateways.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "update gateway", err)
		return
	}
	if g == nil {
		writeError(w, http.StatusNotFound, "gateway not found")
		return
	}

	var req gatewayRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Name != "" {
		g.Name = req.Name
	}
	if req.Type != "" {
		if errMsg := validateGatewayType(req.Type); errMsg != "" {
			writeError(w, http.StatusBadRequest, errMsg)
			return
		}
		g.Type = req.Type
	}
	g.Prefix = req.Prefix
	if req.Proxy != "" {
		g.Proxy = req.Proxy
	}
	if req.Enabled != nil {
		g.Enabled = *req.Enabled
	}

	if err := s.deps.Gateways.Update(r.Context(), g); err != nil {
		writeStoreError(w, "update gateway", err)
		return
	}
	writeJSON(w, http.StatusOK, toGatewayResponse(g))
}

func (s *Server) handleDeleteGateway(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Gateways.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, "delete gateway", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
