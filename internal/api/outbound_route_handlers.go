package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tappbx/tappbx/internal/database/models"
)

// outboundRouteRequest is the JSON request body for creating/updating an
// outbound route.
type outboundRouteRequest struct {
	DomainID    string  `json:"domain_id"`
	Name        string  `json:"name"`
	Number      string  `json:"number"`
	Gateway1ID  *string `json:"gateway_1_id"`
	Gateway2ID  *string `json:"gateway_2_id"`
	Gateway3ID  *string `json:"gateway_3_id"`
	TollAllow   string  `json:"toll_allow"`
	AccountCode string  `json:"account_code"`
	Limit       *int    `json:"limit"`
	PINRequired *bool   `json:"pin_required"`
	Sequence    *int    `json:"sequence"`
	Enabled     *bool   `json:"enabled"`
}

type outboundRouteResponse struct {
	ID          string  `json:"id"`
	DomainID    string  `json:"domain_id"`
	DialplanID  string  `json:"dialplan_id"`
	Name        string  `json:"name"`
	Number      string  `json:"number"`
	Gateway1ID  *string `json:"gateway_1_id,omitempty"`
	Gateway2ID  *string `json:"gateway_2_id,omitempty"`
	Gateway3ID  *string `json:"gateway_3_id,omitempty"`
	TollAllow   string  `json:"toll_allow"`
	AccountCode string  `json:"account_code"`
	Limit       int     `json:"limit"`
	PINRequired bool    `json:"pin_required"`
	Sequence    int     `json:"sequence"`
	Enabled     bool    `json:"enabled"`
	UpdatedAt   string  `json:"updated_at"`
}

func toOutboundRouteResponse(rt *models.OutboundRoute) outboundRouteResponse {
	return outboundRouteResponse{
		ID:          rt.ID,
		DomainID:    rt.DomainID,
		DialplanID:  rt.DialplanID,
		Name:        rt.Name,
		Number:      rt.Number,
		Gateway1ID:  rt.Gateway1ID,
		Gateway2ID:  rt.Gateway2ID,
		Gateway3ID:  rt.Gateway3ID,
		TollAllow:   rt.TollAllow,
		AccountCode: rt.AccountCode,
		Limit:       rt.Limit,
		PINRequired: rt.PINRequired,
		Sequence:    rt.Sequence,
		Enabled:     rt.Enabled,
		UpdatedAt:   rt.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleListOutboundRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := s.deps.OutboundRoutes.List(r.Context(), r.URL.Query().Get("domain_id"))
	if err != nil {
		writeStoreError(w, "list outbound routes", err)
		return
	}
	items := make([]outboundRouteResponse, len(routes))
	for i := range routes {
		items[i] = toOutboundRouteResponse(&routes[i])
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateOutboundRoute(w http.ResponseWriter, r *http.Request) {
	var req outboundRouteRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("domain_id", req.DomainID, maxNameLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("number", req.Number, maxNameLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	tenant, err := s.tenantByID(r.Context(), req.DomainID)
	if err != nil {
		writeStoreError(w, "create outbound route: tenant", err)
		return
	}

	seq := 100
	if req.Sequence != nil {
		seq = *req.Sequence
	}
	rec, err := s.createRouteDialplan(r, req.DomainID, models.AppOutboundRoute,
		"Outbound route", req.Name, req.Number, tenant.Name, seq)
	if err != nil {
		writeStoreError(w, "create outbound route: dialplan", err)
		return
	}

	rt := &models.OutboundRoute{
		ID:          uuid.NewString(),
		DomainID:    req.DomainID,
		DialplanID:  rec.ID,
		Name:        req.Name,
		Number:      req.Number,
		Gateway1ID:  req.Gateway1ID,
		Gateway2ID:  req.Gateway2ID,
		Gateway3ID:  req.Gateway3ID,
		TollAllow:   req.TollAllow,
		AccountCode: req.AccountCode,
		Sequence:    seq,
		Enabled:     true,
	}
	if req.Limit != nil {
		rt.Limit = *req.Limit
	}
	if req.PINRequired != nil {
		rt.PINRequired = *req.PINRequired
	}
	if req.Enabled != nil {
		rt.Enabled = *req.Enabled
	}

	if err := s.deps.OutboundRoutes.Create(r.Context(), rt); err != nil {
		writeStoreError(w, "create outbound route", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOutboundRouteResponse(rt))
}

func (s *Server) handleGetOutboundRoute(w http.ResponseWriter, r *http.Request) {
	rt, err := s.deps.OutboundRoutes.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "get outbound route", err)
		return
	}
	if rt == nil {
		writeError(w, http.StatusNotFound, "outbound route not found")
		return
	}
	writeJSON(w, http.StatusOK, toOutboundRouteResponse(rt))
}

func (s *Server) handleUpdateOutboundRoute(w http.ResponseWriter, r *http.Request) {
	rt, err := s.deps.OutboundRoutes.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "update outbound route", err)
		return
	}
	if rt == nil {
		writeError(w, http.StatusNotFound, "outbound route not found")
		return
	}

	var req outboundRouteRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if req.Name != "" {
		rt.Name = req.Name
	}
	if req.Number != "" {
		rt.Number = req.Number
	}
	rt.Gateway1ID = req.Gateway1ID
	rt.Gateway2ID = req.Gateway2ID
	rt.Gateway3ID = req.Gateway3ID
	rt.TollAllow = req.TollAllow
	rt.AccountCode = req.AccountCode
	if req.Limit != nil {
		rt.Limit = *req.Limit
	}
	if req.PINRequired != nil {
		rt.PINRequired = *req.PINRequired
	}
	if req.Sequence != nil {
		rt.Sequence = *req.Sequence
	}
	if req.Enabled != nil {
		rt.Enabled = *req.Enabled
	}

	if err := s.deps.OutboundRoutes.Update(r.Context(), rt); err != nil {
		writeStoreError(w, "update outbound route", err)
		return
	}
	writeJSON(w, http.StatusOK, toOutboundRouteResponse(rt))
}

func (s *Server) handleDeleteOutboundRoute(w http.ResponseWriter, r *http.Request) {
	rt, err := s.deps.OutboundRoutes.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "delete outbound route", err)
		return
	}
	if rt == nil {
		writeError(w, http.StatusNotFound, "outbound route not found")
		return
	}

	if err := s.deps.OutboundRoutes.Delete(r.Context(), rt.ID); err != nil {
		writeStoreError(w, "delete outbound route", err)
		return
	}
	if err := s.deps.Dialplans.Delete(r.Context(), rt.DialplanID); err != nil {
		writeStoreError(w, "delete outbound route: dialplan", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleCompileOutboundRoute(w http.ResponseWriter, r *http.Request) {
	rt, err := s.deps.OutboundRoutes.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "compile outbound route", err)
		return
	}
	if rt == nil {
		writeError(w, http.StatusNotFound, "outbound route not found")
		return
	}
	tenant, err := s.tenantByID(r.Context(), rt.DomainID)
	if err != nil {
		writeStoreError(w, "compile outbound route: tenant", err)
		return
	}

	xml, err := s.deps.Compiler.CompileOutbound(r.Context(), rt, tenant)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	res, err := s.saveCompiled(r.Context(), rt.DialplanID, xml, tenant.Name)
	respondCompiled(w, "compile outbound route", res, err)
}
