package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tappbx/tappbx/internal/database/models"
)

// inboundRouteRequest is the JSON request body for creating/updating an
// inbound route.
type inboundRouteRequest struct {
	DomainID      string `json:"domain_id"`
	Name          string `json:"name"`
	Prefix        string `json:"prefix"`
	Number        string `json:"number"`
	Context       string `json:"context"`
	CIDNamePrefix string `json:"cid_name_prefix"`
	Record        *bool  `json:"record"`
	AccountCode   string `json:"account_code"`
	App           string `json:"app"`
	Data          string `json:"data"`
	Sequence      *int   `json:"sequence"`
	Enabled       *bool  `json:"enabled"`
}

type inboundRouteResponse struct {
	ID            string `json:"id"`
	DomainID      string `json:"domain_id"`
	DialplanID    string `json:"dialplan_id"`
	Name          string `json:"name"`
	Prefix        string `json:"prefix"`
	Number        string `json:"number"`
	Context       string `json:"context"`
	CIDNamePrefix string `json:"cid_name_prefix"`
	Record        bool   `json:"record"`
	AccountCode   string `json:"account_code"`
	App           string `json:"app"`
	Data          string `json:"data"`
	Sequence      int    `json:"sequence"`
	Enabled       bool   `json:"enabled"`
	UpdatedAt     string `json:"updated_at"`
}

func toInboundRouteResponse(rt *models.InboundRoute) inboundRouteResponse {
	return inboundRouteResponse{
		ID:            rt.ID,
		DomainID:      rt.DomainID,
		DialplanID:    rt.DialplanID,
		Name:          rt.Name,
		Prefix:        rt.Prefix,
		Number:        rt.Number,
		Context:       rt.Context,
		CIDNamePrefix: rt.CIDNamePrefix,
		Record:        rt.Record,
		AccountCode:   rt.AccountCode,
		App:           rt.App,
		Data:          rt.Data,
		Sequence:      rt.Sequence,
		Enabled:       rt.Enabled,
		UpdatedAt:     rt.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleListInboundRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := s.deps.InboundRoutes.List(r.Context(), r.URL.Query().Get("domain_id"))
	if err != nil {
		writeStoreError(w, "list inbound routes", err)
		return
	}
	items := make([]inboundRouteResponse, len(routes))
	for i := range routes {
		items[i] = toInboundRouteResponse(&routes[i])
	}
	writeJSON(w, http.StatusOK, items)
}

// createRouteDialplan creates the compiled-record envelope a new
// route-family record points at.
func (s *Server) createRouteDialplan(r *http.Request, domainID, appID, category, name, number, context string, sequence int) (*models.DialplanRecord, error) {
	rec := &models.DialplanRecord{
		ID:       uuid.NewString(),
		DomainID: &domainID,
		AppID:    appID,
		Category: category,
		Name:     name,
		Number:   number,
		Context:  context,
		Continue: true,
		Sequence: sequence,
		Enabled:  true,
	}
	if err := s.deps.Dialplans.Create(r.Context(), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Server) handleCreateInboundRoute(w http.ResponseWriter, r *http.Request) {
	var req inboundRouteRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("domain_id", req.DomainID, maxNameLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("number", req.Number, maxShortStringLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	seq := 100
	if req.Sequence != nil {
		seq = *req.Sequence
	}
	rec, err := s.createRouteDialplan(r, req.DomainID, models.AppInboundRoute,
		"Inbound route", req.Name, req.Number, req.Context, seq)
	if err != nil {
		writeStoreError(w, "create inbound route: dialplan", err)
		return
	}

	rt := &models.InboundRoute{
		ID:            uuid.NewString(),
		DomainID:      req.DomainID,
		DialplanID:    rec.ID,
		Name:          req.Name,
		Prefix:        req.Prefix,
		Number:        req.Number,
		Context:       req.Context,
		CIDNamePrefix: req.CIDNamePrefix,
		AccountCode:   req.AccountCode,
		App:           req.App,
		Data:          req.Data,
		Sequence:      seq,
		Enabled:       true,
	}
	if req.Record != nil {
		rt.Record = *req.Record
	}
	if req.Enabled != nil {
		rt.Enabled = *req.Enabled
	}

	if err := s.deps.InboundRoutes.Create(r.Context(), rt); err != nil {
		writeStoreError(w, "create inbound route", err)
		return
	}
	writeJSON(w, http.StatusCreated, toInboundRouteResponse(rt))
}

func (s *Server) handleGetInboundRoute(w http.ResponseWriter, r *http.Request) {
	rt, err := s.deps.InboundRoutes.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "get inbound route", err)
		return
	}
	if rt == nil {
		writeError(w, http.StatusNotFound, "inbound route not found")
		return
	}
	writeJSON(w, http.StatusOK, toInboundRouteResponse(rt))
}

func (s *Server) handleUpdateInboundRoute(w http.ResponseWriter, r *http.Request) {
	rt, err := s.deps.InboundRoutes.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "update inbound route", err)
		return
	}
	if rt == nil {
		writeError(w, http.StatusNotFound, "inbound route not found")
		return
	}

	var req inboundRouteRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if req.Name != "" {
		rt.Name = req.Name
	}
	rt.Prefix = req.Prefix
	if req.Number != "" {
		rt.Number = req.Number
	}
	if req.Context != "" {
		rt.Context = req.Context
	}
	rt.CIDNamePrefix = req.CIDNamePrefix
	rt.AccountCode = req.AccountCode
	if req.App != "" {
		rt.App = req.App
	}
	if req.Data != "" {
		rt.Data = req.Data
	}
	if req.Record != nil {
		rt.Record = *req.Record
	}
	if req.Sequence != nil {
		rt.Sequence = *req.Sequence
	}
	if req.Enabled != nil {
		rt.Enabled = *req.Enabled
	}

	if err := s.deps.InboundRoutes.Update(r.Context(), rt); err != nil {
		writeStoreError(w, "update inbound route", err)
		return
	}
	writeJSON(w, http.StatusOK, toInboundRouteResponse(rt))
}

func (s *Server) handleDeleteInboundRoute(w http.ResponseWriter, r *http.Request) {
	rt, err := s.deps.InboundRoutes.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "delete inbound route", err)
		return
	}
	if rt == nil {
		writeError(w, http.StatusNotFound, "inbound route not found")
		return
	}

	// The route owns its compiled record; cascade explicitly.
	if err := s.deps.InboundRoutes.Delete(r.Context(), rt.ID); err != nil {
		writeStoreError(w, "delete inbound route", err)
		return
	}
	if err := s.deps.Dialplans.Delete(r.Context(), rt.DialplanID); err != nil {
		writeStoreError(w, "delete inbound route: dialplan", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleCompileInboundRoute(w http.ResponseWriter, r *http.Request) {
	rt, err := s.deps.InboundRoutes.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "compile inbound route", err)
		return
	}
	if rt == nil {
		writeError(w, http.StatusNotFound, "inbound route not found")
		return
	}
	tenant, err := s.tenantByID(r.Context(), rt.DomainID)
	if err != nil {
		writeStoreError(w, "compile inbound route: tenant", err)
		return
	}

	xml := s.deps.Compiler.CompileInbound(rt, tenant)
	res, err := s.saveCompiled(r.Context(), rt.DialplanID, xml, tenant.Name)
	respondCompiled(w, "compile inbound route", res, err)
}
