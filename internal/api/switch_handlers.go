package api

import (
	"log/slog"
	"net/http"

	"github.com/tappbx/tappbx/internal/reload"
)

// Switch operations address all nodes when host is empty.

type switchHostRequest struct {
	Host string `json:"host"`
}

func (s *Server) handleReloadXML(w http.ResponseWriter, r *http.Request) {
	var req switchHostRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if err := s.deps.Fabric.ReloadXML(r.Context(), req.Host); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reloaded": true})
}

func (s *Server) handleReloadACL(w http.ResponseWriter, r *http.Request) {
	var req switchHostRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if err := s.deps.Fabric.ReloadACL(r.Context(), req.Host); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	// ACL edits invalidate cached configuration documents too.
	if err := s.deps.Reload.Invalidate(r.Context(), reload.ScopeConfiguration, "", ""); err != nil {
		slog.Warn("configuration cache flush failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reloaded": true})
}

type notifyRequest struct {
	Profile     string `json:"profile"`
	Event       string `json:"event"`
	User        string `json:"user"`
	Realm       string `json:"realm"`
	ContentType string `json:"content_type"`
	Host        string `json:"host"`
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.User == "" || req.Realm == "" || req.Event == "" {
		writeError(w, http.StatusBadRequest, "user, realm and event are required")
		return
	}
	if req.Profile == "" {
		req.Profile = "internal"
	}
	if req.ContentType == "" {
		req.ContentType = "application/simple-message-summary"
	}
	if err := s.deps.Fabric.Notify(r.Context(), req.Profile, req.Event, req.User, req.Realm, req.ContentType, req.Host); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

func (s *Server) handleRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := s.deps.Fabric.ShowRegistrations(r.Context(), r.URL.Query().Get("host"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, regs)
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.deps.Fabric.ShowChannels(r.Context(), r.URL.Query().Get("host"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

type uuidKillRequest struct {
	UUID string `json:"uuid"`
	Host string `json:"host"`
}

func (s *Server) handleUUIDKill(w http.ResponseWriter, r *http.Request) {
	var req uuidKillRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.UUID == "" {
		writeError(w, http.StatusBadRequest, "uuid is required")
		return
	}
	if err := s.deps.Fabric.UUIDKill(r.Context(), req.UUID, req.Host); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"killed": true})
}

type callcenterRequest struct {
	Action string   `json:"action"`
	Queue  string   `json:"queue"`
	Agent  string   `json:"agent"`
	Host   string   `json:"host"`
	Args   []string `json:"args"`
}

func (s *Server) handleCallcenterQueue(w http.ResponseWriter, r *http.Request) {
	var req callcenterRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Action == "" || req.Queue == "" {
		writeError(w, http.StatusBadRequest, "action and queue are required")
		return
	}
	if err := s.deps.Fabric.QueueCommand(r.Context(), req.Action, req.Queue, req.Host); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleCallcenterTier(w http.ResponseWriter, r *http.Request) {
	var req callcenterRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Action == "" || req.Queue == "" || req.Agent == "" {
		writeError(w, http.StatusBadRequest, "action, queue and agent are required")
		return
	}
	if err := s.deps.Fabric.TierCommand(r.Context(), req.Action, req.Queue, req.Agent, req.Host, req.Args...); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleCallcenterAgent(w http.ResponseWriter, r *http.Request) {
	var req callcenterRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Action == "" || req.Agent == "" {
		writeError(w, http.StatusBadRequest, "action and agent are required")
		return
	}
	if err := s.deps.Fabric.AgentCommand(r.Context(), req.Action, req.Agent, req.Host, req.Args...); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
