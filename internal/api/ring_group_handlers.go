package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tappbx/tappbx/internal/database/models"
)

// ringGroupRequest is the JSON request body for creating/updating a ring
// group.
type ringGroupRequest struct {
	DomainID      string              `json:"domain_id"`
	Name          string              `json:"name"`
	Extension     string              `json:"extension"`
	Context       string              `json:"context"`
	Strategy      string              `json:"strategy"`
	CallTimeout   *int                `json:"call_timeout"`
	Ringback      string              `json:"ringback"`
	Greeting      string              `json:"greeting"`
	FollowMe      *bool               `json:"follow_me"`
	CIDNamePrefix string              `json:"cid_name_prefix"`
	TimeoutApp    string              `json:"timeout_app"`
	TimeoutData   string              `json:"timeout_data"`
	Forward       *bool               `json:"forward"`
	ForwardTarget string              `json:"forward_target"`
	Enabled       *bool               `json:"enabled"`
	Destinations  *[]ringGroupDestRow `json:"destinations"`
}

type ringGroupDestRow struct {
	Number   string `json:"number"`
	Delay    int    `json:"delay"`
	Timeout  int    `json:"timeout"`
	Prompt   bool   `json:"prompt"`
	Sequence int    `json:"sequence"`
}

type ringGroupResponse struct {
	ID            string             `json:"id"`
	DomainID      string             `json:"domain_id"`
	DialplanID    string             `json:"dialplan_id"`
	Name          string             `json:"name"`
	Extension     string             `json:"extension"`
	Context       string             `json:"context"`
	Strategy      string             `json:"strategy"`
	CallTimeout   int                `json:"call_timeout"`
	Ringback      string             `json:"ringback"`
	Greeting      string             `json:"greeting"`
	FollowMe      bool               `json:"follow_me"`
	CIDNamePrefix string             `json:"cid_name_prefix"`
	TimeoutApp    string             `json:"timeout_app"`
	TimeoutData   string             `json:"timeout_data"`
	Forward       bool               `json:"forward"`
	ForwardTarget string             `json:"forward_target"`
	Enabled       bool               `json:"enabled"`
	Destinations  []ringGroupDestRow `json:"destinations,omitempty"`
	UpdatedAt     string             `json:"updated_at"`
}

func toRingGroupResponse(rg *models.RingGroup, dests []models.RingGroupDestination) ringGroupResponse {
	resp := ringGroupResponse{
		ID:            rg.ID,
		DomainID:      rg.DomainID,
		DialplanID:    rg.DialplanID,
		Name:          rg.Name,
		Extension:     rg.Extension,
		Context:       rg.Context,
		Strategy:      rg.Strategy,
		CallTimeout:   rg.CallTimeout,
		Ringback:      rg.Ringback,
		Greeting:      rg.Greeting,
		FollowMe:      rg.FollowMe,
		CIDNamePrefix: rg.CIDNamePrefix,
		TimeoutApp:    rg.TimeoutApp,
		TimeoutData:   rg.TimeoutData,
		Forward:       rg.Forward,
		ForwardTarget: rg.ForwardTarget,
		Enabled:       rg.Enabled,
		UpdatedAt:     rg.UpdatedAt.Format(time.RFC3339),
	}
	for _, d := range dests {
		resp.Destinations = append(resp.Destinations, ringGroupDestRow{
			Number: d.Number, Delay: d.Delay, Timeout: d.Timeout,
			Prompt: d.Prompt, Sequence: d.Sequence,
		})
	}
	return resp
}

func validateStrategy(strategy string) string {
	switch strategy {
	case models.StrategySimultaneous, models.StrategySequence,
		models.StrategyEnterprise, models.StrategyRollover, models.StrategyRandom:
		return ""
	default:
		return "unknown ring strategy"
	}
}

func (s *Server) handleListRingGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.deps.RingGroups.List(r.Context(), r.URL.Query().Get("domain_id"))
	if err != nil {
		writeStoreError(w, "list ring groups", err)
		return
	}
	items := make([]ringGroupResponse, len(groups))
	for i := range groups {
		items[i] = toRingGroupResponse(&groups[i], nil)
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateRingGroup(w http.ResponseWriter, r *http.Request) {
	var req ringGroupRequest
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

	strategy := models.StrategySimultaneous
	if req.Strategy != "" {
		if errMsg := validateStrategy(req.Strategy); errMsg != "" {
			writeError(w, http.StatusBadRequest, errMsg)
			return
		}
		strategy = req.Strategy
	}

	tenant, err := s.tenantByID(r.Context(), req.DomainID)
	if err != nil {
		writeStoreError(w, "create ring group: tenant", err)
		return
	}
	context := req.Context
	if context == "" {
		context = tenant.Name
	}

	rec, err := s.createRouteDialplan(r, req.DomainID, models.AppRingGroup,
		"Ring group", req.Name, req.Extension, context, 101)
	if err != nil {
		writeStoreError(w, "create ring group: dialplan", err)
		return
	}

	rg := &models.RingGroup{
		ID:            uuid.NewString(),
		DomainID:      req.DomainID,
		DialplanID:    rec.ID,
		Name:          req.Name,
		Extension:     req.Extension,
		Context:       context,
		Strategy:      strategy,
		CallTimeout:   30,
		Ringback:      req.Ringback,
		Greeting:      req.Greeting,
		CIDNamePrefix: req.CIDNamePrefix,
		TimeoutApp:    req.TimeoutApp,
		TimeoutData:   req.TimeoutData,
		ForwardTarget: req.ForwardTarget,
		Enabled:       true,
	}
	if req.CallTimeout != nil {
		rg.CallTimeout = *req.CallTimeout
	}
	if req.FollowMe != nil {
		rg.FollowMe = *req.FollowMe
	}
	if req.Forward != nil {
		rg.Forward = *req.Forward
	}
	if req.Enabled != nil {
		rg.Enabled = *req.Enabled
	}

	if err := s.deps.RingGroups.Create(r.Context(), rg); err != nil {
		writeStoreError(w, "create ring group", err)
		return
	}

	var dests []models.RingGroupDestination
	if req.Destinations != nil {
		dests = fromRingGroupDestRows(rg.ID, *req.Destinations)
		if err := s.deps.RingGroups.ReplaceDestinations(r.Context(), rg.ID, dests); err != nil {
			writeStoreError(w, "create ring group: destinations", err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, toRingGroupResponse(rg, dests))
}

func fromRingGroupDestRows(ringGroupID string, rows []ringGroupDestRow) []models.RingGroupDestination {
	dests := make([]models.RingGroupDestination, len(rows))
	for i, d := range rows {
		dests[i] = models.RingGroupDestination{
			RingGroupID: ringGroupID, Number: d.Number, Delay: d.Delay,
			Timeout: d.Timeout, Prompt: d.Prompt, Sequence: d.Sequence,
		}
	}
	return dests
}

func (s *Server) handleGetRingGroup(w http.ResponseWriter, r *http.Request) {
	rg, err := s.deps.RingGroups.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "get ring group", err)
		return
	}
	if rg == nil {
		writeError(w, http.StatusNotFound, "ring group not found")
		return
	}
	dests, err := s.deps.RingGroups.ListDestinations(r.Context(), rg.ID)
	if err != nil {
		writeStoreError(w, "get ring group: destinations", err)
		return
	}
	writeJSON(w, http.StatusOK, toRingGroupResponse(rg, dests))
}

func (s *Server) handleUpdateRingGroup(w http.ResponseWriter, r *http.Request) {
	rg, err := s.deps.RingGroups.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "update ring group", err)
		return
	}
	if rg == nil {
		writeError(w, http.StatusNotFound, "ring group not found")
		return
	}

	var req ringGroupRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if req.Name != "" {
		rg.Name = req.Name
	}
	if req.Strategy != "" {
		if errMsg := validateStrategy(req.Strategy); errMsg != "" {
			writeError(w, http.StatusBadRequest, errMsg)
			return
		}
		rg.Strategy = req.Strategy
	}
	if req.CallTimeout != nil {
		rg.CallTimeout = *req.CallTimeout
	}
	rg.Ringback = req.Ringback
	rg.Greeting = req.Greeting
	rg.CIDNamePrefix = req.CIDNamePrefix
	rg.TimeoutApp = req.TimeoutApp
	rg.TimeoutData = req.TimeoutData
	rg.ForwardTarget = req.ForwardTarget
	if req.FollowMe != nil {
		rg.FollowMe = *req.FollowMe
	}
	if req.Forward != nil {
		rg.Forward = *req.Forward
	}
	if req.Enabled != nil {
		rg.Enabled = *req.Enabled
	}

	if err := s.deps.RingGroups.Update(r.Context(), rg); err != nil {
		writeStoreError(w, "update ring group", err)
		return
	}

	var dests []models.RingGroupDestination
	if req.Destinations != nil {
		dests = fromRingGroupDestRows(rg.ID, *req.Destinations)
		if err := s.deps.RingGroups.ReplaceDestinations(r.Context(), rg.ID, dests); err != nil {
			writeStoreError(w, "update ring group: destinations", err)
			return
		}
	} else {
		dests, err = s.deps.RingGroups.ListDestinations(r.Context(), rg.ID)
		if err != nil {
			writeStoreError(w, "update ring group: destinations", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, toRingGroupResponse(rg, dests))
}

func (s *Server) handleDeleteRingGroup(w http.ResponseWriter, r *http.Request) {
	rg, err := s.deps.RingGroups.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "delete ring group", err)
		return
	}
	if rg == nil {
		writeError(w, http.StatusNotFound, "ring group not found")
		return
	}
	if err := s.deps.RingGroups.Delete(r.Context(), rg.ID); err != nil {
		writeStoreError(w, "delete ring group", err)
		return
	}
	if err := s.deps.Dialplans.Delete(r.Context(), rg.DialplanID); err != nil {
		writeStoreError(w, "delete ring group: dialplan", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleCompileRingGroup(w http.ResponseWriter, r *http.Request) {
	rg, err := s.deps.RingGroups.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "compile ring group", err)
		return
	}
	if rg == nil {
		writeError(w, http.StatusNotFound, "ring group not found")
		return
	}
	tenant, err := s.tenantByID(r.Context(), rg.DomainID)
	if err != nil {
		writeStoreError(w, "compile ring group: tenant", err)
		return
	}
	dests, err := s.deps.RingGroups.ListDestinations(r.Context(), rg.ID)
	if err != nil {
		writeStoreError(w, "compile ring group: destinations", err)
		return
	}

	xml, err := s.deps.Compiler.CompileRingGroup(r.Context(), rg, dests, tenant)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	res, err := s.saveCompiled(r.Context(), rg.DialplanID, xml, tenant.Name)
	respondCompiled(w, "compile ring group", res, err)
}
