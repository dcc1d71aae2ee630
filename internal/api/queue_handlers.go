package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tappbx/tappbx/internal/database/models"
)

type queueRequest struct {
	DomainID              string `json:"domain_id"`
	Name                  string `json:"name"`
	Extension             string `json:"extension"`
	Context               string `json:"context"`
	Strategy              string `json:"strategy"`
	MOHSound              string `json:"moh_sound"`
	RecordTemplate        string `json:"record_template"`
	TimeBaseScore         string `json:"time_base_score"`
	MaxWaitTime           *int   `json:"max_wait_time"`
	MaxWaitTimeNoAgent    *int   `json:"max_wait_time_no_agent"`
	TierRulesApply        *bool  `json:"tier_rules_apply"`
	TierRuleWaitSecond    *int   `json:"tier_rule_wait_second"`
	DiscardAbandonedAfter *int   `json:"discard_abandoned_after"`
	AnnounceSound         string `json:"announce_sound"`
	AnnounceFrequency     *int   `json:"announce_frequency"`
	Enabled               *bool  `json:"enabled"`
}

type queueResponse struct {
	ID                    string `json:"id"`
	DomainID              string `json:"domain_id"`
	DialplanID            string `json:"dialplan_id"`
	Name                  string `json:"name"`
	Extension             string `json:"extension"`
	Context               string `json:"context"`
	Strategy              string `json:"strategy"`
	MOHSound              string `json:"moh_sound"`
	RecordTemplate        string `json:"record_template"`
	TimeBaseScore         string `json:"time_base_score"`
	MaxWaitTime           int    `json:"max_wait_time"`
	MaxWaitTimeNoAgent    int    `json:"max_wait_time_no_agent"`
	TierRulesApply        bool   `json:"tier_rules_apply"`
	TierRuleWaitSecond    int    `json:"tier_rule_wait_second"`
	DiscardAbandonedAfter int    `json:"discard_abandoned_after"`
	AnnounceSound         string `json:"announce_sound"`
	AnnounceFrequency     int    `json:"announce_frequency"`
	Enabled               bool   `json:"enabled"`
	UpdatedAt             string `json:"updated_at"`
}

func toQueueResponse(q *models.Queue) queueResponse {
	return queueResponse{
		ID:                    q.ID,
		DomainID:              q.DomainID,
		DialplanID:            q.DialplanID,
		Name:                  q.Name,
		Extension:             q.Extension,
		Context:               q.Context,
		Strategy:              q.Strategy,
		MOHSound:              q.MOHSound,
		RecordTemplate:        q.RecordTemplate,
		TimeBaseScore:         q.TimeBaseScore,
		MaxWaitTime:           q.MaxWaitTime,
		MaxWaitTimeNoAgent:    q.MaxWaitTimeNoAgent,
		TierRulesApply:        q.TierRulesApply,
		TierRuleWaitSecond:    q.TierRuleWaitSecond,
		DiscardAbandonedAfter: q.DiscardAbandonedAfter,
		AnnounceSound:         q.AnnounceSound,
		AnnounceFrequency:     q.AnnounceFrequency,
		Enabled:               q.Enabled,
		UpdatedAt:             q.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := s.deps.Queues.List(r.Context(), r.URL.Query().Get("domain_id"))
	if err != nil {
		writeStoreError(w, "list queues", err)
		return
	}
	items := make([]queueResponse, len(queues))
	for i := range queues {
		items[i] = toQueueResponse(&queues[i])
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateQueue(w http.ResponseWriter, r *http.Request) {
	var req queueRequest
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
		writeStoreError(w, "create queue: tenant", err)
		return
	}
	context := req.Context
	if context == "" {
		context = tenant.Name
	}

	rec, err := s.createRouteDialplan(r, req.DomainID, models.AppCallCentreQueue,
		"Call centre queue", req.Name, req.Extension, context, 101)
	if err != nil {
		writeStoreError(w, "create queue: dialplan", err)
		return
	}

	q := &models.Queue{
		ID:                 uuid.NewString(),
		DomainID:           req.DomainID,
		DialplanID:         rec.ID,
		Name:               req.Name,
		Extension:          req.Extension,
		Context:            context,
		Strategy:           "longest-idle-agent",
		MOHSound:           req.MOHSound,
		RecordTemplate:     req.RecordTemplate,
		TimeBaseScore:      "system",
		MaxWaitTime:        0,
		MaxWaitTimeNoAgent: 90,
		AnnounceSound:      req.AnnounceSound,
		Enabled:            true,
	}
	if req.Strategy != "" {
		q.Strategy = req.Strategy
	}
	if req.TimeBaseScore != "" {
		q.TimeBaseScore = req.TimeBaseScore
	}
	if req.MaxWaitTime != nil {
		q.MaxWaitTime = *req.MaxWaitTime
	}
	if req.MaxWaitTimeNoAgent != nil {
		q.MaxWaitTimeNoAgent = *req.MaxWaitTimeNoAgent
	}
	if req.TierRulesApply != nil {
		q.TierRulesApply = *req.TierRulesApply
	}
	if req.TierRuleWaitSecond != nil {
		q.TierRuleWaitSecond = *req.TierRuleWaitSecond
	}
	if req.DiscardAbandonedAfter != nil {
		q.DiscardAbandonedAfter = *req.DiscardAbandonedAfter
	}
	if req.AnnounceFrequency != nil {
		q.AnnounceFrequency = *req.AnnounceFrequency
	}
	if req.Enabled != nil {
		q.Enabled = *req.Enabled
	}

	if err := s.deps.Queues.Create(r.Context(), q); err != nil {
		writeStoreError(w, "create queue", err)
		return
	}
	writeJSON(w, http.StatusCreated, toQueueResponse(q))
}

func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	q, err := s.deps.Queues.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "get queue", err)
		return
	}
	if q == nil {
		writeError(w, http.StatusNotFound, "queue not found")
		return
	}
	writeJSON(w, http.StatusOK, toQueueResponse(q))
}

func (s *Server) handleUpdateQueue(w http.ResponseWriter, r *http.Request) {
	q, err := s.deps.Queues.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "update queue", err)
		return
	}
	if q == nil {
		writeError(w, http.StatusNotFound, "queue not found")
		return
	}

	var req queueRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if req.Name != "" {
		q.Name = req.Name
	}
	if req.Strategy != "" {
		q.Strategy = req.Strategy
	}
	if req.TimeBaseScore != "" {
		q.TimeBaseScore = req.TimeBaseScore
	}
	q.MOHSound = req.MOHSound
	q.RecordTemplate = req.RecordTemplate
	q.AnnounceSound = req.AnnounceSound
	if req.MaxWaitTime != nil {
		q.MaxWaitTime = *req.MaxWaitTime
	}
	if req.MaxWaitTimeNoAgent != nil {
		q.MaxWaitTimeNoAgent = *req.MaxWaitTimeNoAgent
	}
	if req.TierRulesApply != nil {
		q.TierRulesApply = *req.TierRulesApply
	}
	if req.TierRuleWaitSecond != nil {
		q.TierRuleWaitSecond = *req.TierRuleWaitSecond
	}
	if req.DiscardAbandonedAfter != nil {
		q.DiscardAbandonedAfter = *req.DiscardAbandonedAfter
	}
	if req.AnnounceFrequency != nil {
		q.AnnounceFrequency = *req.AnnounceFrequency
	}
	if req.Enabled != nil {
		q.Enabled = *req.Enabled
	}

	if err := s.deps.Queues.Update(r.Context(), q); err != nil {
		writeStoreError(w, "update queue", err)
		return
	}
	writeJSON(w, http.StatusOK, toQueueResponse(q))
}

func (s *Server) handleDeleteQueue(w http.ResponseWriter, r *http.Request) {
	q, err := s.deps.Queues.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "delete queue", err)
		return
	}
	if q == nil {
		writeError(w, http.StatusNotFound, "queue not found")
		return
	}
	if err := s.deps.Queues.Delete(r.Context(), q.ID); err != nil {
		writeStoreError(w, "delete queue", err)
		return
	}
	if err := s.deps.Dialplans.Delete(r.Context(), q.DialplanID); err != nil {
		writeStoreError(w, "delete queue: dialplan", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleCompileQueue(w http.ResponseWriter, r *http.Request) {
	q, err := s.deps.Queues.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "compile queue", err)
		return
	}
	if q == nil {
		writeError(w, http.StatusNotFound, "queue not found")
		return
	}
	tenant, err := s.tenantByID(r.Context(), q.DomainID)
	if err != nil {
		writeStoreError(w, "compile queue: tenant", err)
		return
	}

	xml := s.deps.Compiler.CompileQueue(q, tenant)
	res, err := s.saveCompiled(r.Context(), q.DialplanID, xml, tenant.Name)
	respondCompiled(w, "compile queue", res, err)
}

// Tiers.

type tierRequest struct {
	AgentID  string `json:"agent_id"`
	Level    int    `json:"level"`
	Position int    `json:"position"`
}

type tierResponse struct {
	QueueID  string `json:"queue_id"`
	AgentID  string `json:"agent_id"`
	Level    int    `json:"level"`
	Position int    `json:"position"`
}

func (s *Server) handleListTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := s.deps.Queues.ListTiers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "list tiers", err)
		return
	}
	items := make([]tierResponse, len(tiers))
	for i, t := range tiers {
		items[i] = tierResponse{QueueID: t.QueueID, AgentID: t.AgentID, Level: t.Level, Position: t.Position}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleAddTier(w http.ResponseWriter, r *http.Request) {
	var req tierRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}
	t := &models.Tier{
		QueueID:  chi.URLParam(r, "id"),
		AgentID:  req.AgentID,
		Level:    req.Level,
		Position: req.Position,
	}
	if err := s.deps.Queues.AddTier(r.Context(), t); err != nil {
		writeStoreError(w, "add tier", err)
		return
	}
	writeJSON(w, http.StatusCreated, tierResponse{QueueID: t.QueueID, AgentID: t.AgentID, Level: t.Level, Position: t.Position})
}

func (s *Server) handleUpdateTier(w http.ResponseWriter, r *http.Request) {
	var req tierRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}
	t := &models.Tier{
		QueueID:  chi.URLParam(r, "id"),
		AgentID:  req.AgentID,
		Level:    req.Level,
		Position: req.Position,
	}
	if err := s.deps.Queues.UpdateTier(r.Context(), t); err != nil {
		writeStoreError(w, "update tier", err)
		return
	}
	writeJSON(w, http.StatusOK, tierResponse{QueueID: t.QueueID, AgentID: t.AgentID, Level: t.Level, Position: t.Position})
}

func (s *Server) handleRemoveTier(w http.ResponseWriter, r *http.Request) {
	queueID := chi.URLParam(r, "id")
	agentID := chi.URLParam(r, "agentID")
	if err := s.deps.Queues.RemoveTier(r.Context(), queueID, agentID); err != nil {
		writeStoreError(w, "remove tier", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
