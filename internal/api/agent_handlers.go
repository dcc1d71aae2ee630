package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tappbx/tappbx/internal/database/models"
)

type agentRequest struct {
	DomainID          string `json:"domain_id"`
	Name              string `json:"name"`
	Type              string `json:"type"`
	Contact           string `json:"contact"`
	Status            string `json:"status"`
	MaxNoAnswer       *int   `json:"max_no_answer"`
	WrapUpTime        *int   `json:"wrap_up_time"`
	RejectDelayTime   *int   `json:"reject_delay_time"`
	BusyDelayTime     *int   `json:"busy_delay_time"`
	NoAnswerDelayTime *int   `json:"no_answer_delay_time"`
}

type agentResponse struct {
	ID                string `json:"id"`
	DomainID          string `json:"domain_id"`
	Name              string `json:"name"`
	Type              string `json:"type"`
	Contact           string `json:"contact"`
	Status            string `json:"status"`
	MaxNoAnswer       int    `json:"max_no_answer"`
	WrapUpTime        int    `json:"wrap_up_time"`
	RejectDelayTime   int    `json:"reject_delay_time"`
	BusyDelayTime     int    `json:"busy_delay_time"`
	NoAnswerDelayTime int    `json:"no_answer_delay_time"`
	UpdatedAt         string `json:"updated_at"`
}

func toAgentResponse(a *models.Agent) agentResponse {
	return agentResponse{
		ID:                a.ID,
		DomainID:          a.DomainID,
		Name:              a.Name,
		Type:              a.Type,
		Contact:           a.Contact,
		Status:            a.Status,
		MaxNoAnswer:       a.MaxNoAnswer,
		WrapUpTime:        a.WrapUpTime,
		RejectDelayTime:   a.RejectDelayTime,
		BusyDelayTime:     a.BusyDelayTime,
		NoAnswerDelayTime: a.NoAnswerDelayTime,
		UpdatedAt:         a.UpdatedAt.Format(time.RFC3339),
	}
}

func validateAgentType(agentType string) string {
	switch agentType {
	case "callback", "uuid-standby":
		return ""
	default:
		return "agent type must be callback or uuid-standby"
	}
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.deps.Queues.ListAgents(r.Context(), r.URL.Query().Get("domain_id"))
	if err != nil {
		writeStoreError(w, "list agents", err)
		return
	}
	items := make([]agentResponse, len(agents))
	for i := range agents {
		items[i] = toAgentResponse(&agents[i])
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("name", req.Name, maxNameLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	agentType := req.Type
	if agentType == "" {
		agentType = "callback"
	}
	if errMsg := validateAgentType(agentType); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	a := &models.Agent{
		ID:          uuid.NewString(),
		DomainID:    req.DomainID,
		Name:        req.Name,
		Type:        agentType,
		Contact:     req.Contact,
		Status:      "Logged Out",
		MaxNoAnswer: 3,
		WrapUpTime:  10,
	}
	if req.Status != "" {
		a.Status = req.Status
	}
	if req.MaxNoAnswer != nil {
		a.MaxNoAnswer = *req.MaxNoAnswer
	}
	if req.WrapUpTime != nil {
		a.WrapUpTime = *req.WrapUpTime
	}
	if req.RejectDelayTime != nil {
		a.RejectDelayTime = *req.RejectDelayTime
	}
	if req.BusyDelayTime != nil {
		a.BusyDelayTime = *req.BusyDelayTime
	}
	if req.NoAnswerDelayTime != nil {
		a.NoAnswerDelayTime = *req.NoAnswerDelayTime
	}

	if err := s.deps.Queues.CreateAgent(r.Context(), a); err != nil {
		writeStoreError(w, "create agent", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAgentResponse(a))
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Queues.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "get agent", err)
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, toAgentResponse(a))
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Queues.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "update agent", err)
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	var req agentRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Type != "" {
		if errMsg := validateAgentType(req.Type); errMsg != "" {
			writeError(w, http.StatusBadRequest, errMsg)
			return
		}
		a.Type = req.Type
	}

	if req.Name != "" {
		a.Name = req.Name
	}
	a.Contact = req.Contact
	if req.Status != "" {
		a.Status = req.Status
	}
	if req.MaxNoAnswer != nil {
		a.MaxNoAnswer = *req.MaxNoAnswer
	}
	if req.WrapUpTime != nil {
		a.WrapUpTime = *req.WrapUpTime
	}
	if req.RejectDelayTime != nil {
		a.RejectDelayTime = *req.RejectDelayTime
	}
	if req.BusyDelayTime != nil {
		a.BusyDelayTime = *req.BusyDelayTime
	}
	if req.NoAnswerDelayTime != nil {
		a.NoAnswerDelayTime = *req.NoAnswerDelayTime
	}

	if err := s.deps.Queues.UpdateAgent(r.Context(), a); err != nil {
		writeStoreError(w, "update agent", err)
		return
	}
	writeJSON(w, http.StatusOK, toAgentResponse(a))
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Queues.DeleteAgent(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, "delete agent", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
