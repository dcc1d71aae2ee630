package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tappbx/tappbx/internal/database/models"
)

type callFlowRequest struct {
	DomainID    string `json:"domain_id"`
	Name        string `json:"name"`
	Extension   string `json:"extension"`
	FeatureCode string `json:"feature_code"`
	Context     string `json:"context"`
	Status      string `json:"status"`
	PIN         string `json:"pin"`
	AppA        string `json:"app_a"`
	DataA       string `json:"data_a"`
	AppB        string `json:"app_b"`
	DataB       string `json:"data_b"`
	Sound       string `json:"sound"`
	Enabled     *bool  `json:"enabled"`
}

type callFlowResponse struct {
	ID          string `json:"id"`
	DomainID    string `json:"domain_id"`
	DialplanID  string `json:"dialplan_id"`
	Name        string `json:"name"`
	Extension   string `json:"extension"`
	FeatureCode string `json:"feature_code"`
	Context     string `json:"context"`
	Status      string `json:"status"`
	PIN         string `json:"pin"`
	AppA        string `json:"app_a"`
	DataA       string `json:"data_a"`
	AppB        string `json:"app_b"`
	DataB       string `json:"data_b"`
	Sound       string `json:"sound"`
	Enabled     bool   `json:"enabled"`
	UpdatedAt   string `json:"updated_at"`
}

func toCallFlowResponse(cf *models.CallFlow) callFlowResponse {
	return callFlowResponse{
		ID:          cf.ID,
		DomainID:    cf.DomainID,
		DialplanID:  cf.DialplanID,
		Name:        cf.Name,
		Extension:   cf.Extension,
		FeatureCode: cf.FeatureCode,
		Context:     cf.Context,
		Status:      cf.Status,
		PIN:         cf.PIN,
		AppA:        cf.AppA,
		DataA:       cf.DataA,
		AppB:        cf.AppB,
		DataB:       cf.DataB,
		Sound:       cf.Sound,
		Enabled:     cf.Enabled,
		UpdatedAt:   cf.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleListCallFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := s.deps.CallFlows.List(r.Context(), r.URL.Query().Get("domain_id"))
	if err != nil {
		writeStoreError(w, "list call flows", err)
		return
	}
	items := make([]callFlowResponse, len(flows))
	for i := range flows {
		items[i] = toCallFlowResponse(&flows[i])
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateCallFlow(w http.ResponseWriter, r *http.Request) {
	var req callFlowRequest
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
	if errMsg := validateExtensionNumber("feature_code", req.FeatureCode); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.PIN != "" {
		if errMsg := validatePIN("pin", req.PIN); errMsg != "" {
			writeError(w, http.StatusBadRequest, errMsg)
			return
		}
	}

	tenant, err := s.tenantByID(r.Context(), req.DomainID)
	if err != nil {
		writeStoreError(w, "create call flow: tenant", err)
		return
	}
	context := req.Context
	if context == "" {
		context = tenant.Name
	}

	// The dialplan record anchors on the feature code; the toggle target
	// extension is handled by whichever record owns it.
	rec, err := s.createRouteDialplan(r, req.DomainID, models.AppCallFlow,
		"Call flow", req.Name, req.FeatureCode, context, 101)
	if err != nil {
		writeStoreError(w, "create call flow: dialplan", err)
		return
	}

	status := req.Status
	if status == "" {
		status = "true"
	}

	cf := &models.CallFlow{
		ID:          uuid.NewString(),
		DomainID:    req.DomainID,
		DialplanID:  rec.ID,
		Name:        req.Name,
		Extension:   req.Extension,
		FeatureCode: req.FeatureCode,
		Context:     context,
		Status:      status,
		PIN:         req.PIN,
		AppA:        req.AppA,
		DataA:       req.DataA,
		AppB:        req.AppB,
		DataB:       req.DataB,
		Sound:       req.Sound,
		Enabled:     true,
	}
	if req.Enabled != nil {
		cf.Enabled = *req.Enabled
	}

	if err := s.deps.CallFlows.Create(r.Context(), cf); err != nil {
		writeStoreError(w, "create call flow", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCallFlowResponse(cf))
}

func (s *Server) handleGetCallFlow(w http.ResponseWriter, r *http.Request) {
	cf, err := s.deps.CallFlows.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "get call flow", err)
		return
	}
	if cf == nil {
		writeError(w, http.StatusNotFound, "call flow not found")
		return
	}
	writeJSON(w, http.StatusOK, toCallFlowResponse(cf))
}

func (s *Server) handleUpdateCallFlow(w http.ResponseWriter, r *http.Request) {
	cf, err := s.deps.CallFlows.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "update call flow", err)
		return
	}
	if cf == nil {
		writeError(w, http.StatusNotFound, "call flow not found")
		return
	}

	var req callFlowRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.PIN != "" {
		if errMsg := validatePIN("pin", req.PIN); errMsg != "" {
			writeError(w, http.StatusBadRequest, errMsg)
			return
		}
	}

	if req.Name != "" {
		cf.Name = req.Name
	}
	if req.Status != "" {
		cf.Status = req.Status
	}
	cf.PIN = req.PIN
	cf.AppA = req.AppA
	cf.DataA = req.DataA
	cf.AppB = req.AppB
	cf.DataB = req.DataB
	cf.Sound = req.Sound
	if req.Enabled != nil {
		cf.Enabled = *req.Enabled
	}

	if err := s.deps.CallFlows.Update(r.Context(), cf); err != nil {
		writeStoreError(w, "update call flow", err)
		return
	}
	writeJSON(w, http.StatusOK, toCallFlowResponse(cf))
}

func (s *Server) handleDeleteCallFlow(w http.ResponseWriter, r *http.Request) {
	cf, err := s.deps.CallFlows.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "delete call flow", err)
		return
	}
	if cf == nil {
		writeError(w, http.StatusNotFound, "call flow not found")
		return
	}
	if err := s.deps.CallFlows.Delete(r.Context(), cf.ID); err != nil {
		writeStoreError(w, "delete call flow", err)
		return
	}
	if err := s.deps.Dialplans.Delete(r.Context(), cf.DialplanID); err != nil {
		writeStoreError(w, "delete call flow: dialplan", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleCompileCallFlow(w http.ResponseWriter, r *http.Request) {
	cf, err := s.deps.CallFlows.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "compile call flow", err)
		return
	}
	if cf == nil {
		writeError(w, http.StatusNotFound, "call flow not found")
		return
	}
	tenant, err := s.tenantByID(r.Context(), cf.DomainID)
	if err != nil {
		writeStoreError(w, "compile call flow: tenant", err)
		return
	}

	xml := s.deps.Compiler.CompileCallFlow(r.Context(), cf, tenant)
	res, err := s.saveCompiled(r.Context(), cf.DialplanID, xml, tenant.Name)
	respondCompiled(w, "compile call flow", res, err)
}
