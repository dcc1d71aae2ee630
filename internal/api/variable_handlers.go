package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tappbx/tappbx/internal/database/models"
	"github.com/tappbx/tappbx/internal/dialplan"
)

type variableRequest struct {
	Category    string  `json:"category"`
	Name        string  `json:"name"`
	Value       string  `json:"value"`
	Command     string  `json:"command"`
	Hostname    *string `json:"hostname"`
	Enabled     *bool   `json:"enabled"`
	Sequence    *int    `json:"sequence"`
	Description string  `json:"description"`
}

type variableResponse struct {
	ID          string  `json:"id"`
	Category    string  `json:"category"`
	Name        string  `json:"name"`
	Value       string  `json:"value"`
	Command     string  `json:"command"`
	Hostname    *string `json:"hostname"`
	Enabled     bool    `json:"enabled"`
	Sequence    int     `json:"sequence"`
	Description string  `json:"description"`
	UpdatedAt   string  `json:"updated_at"`
}

func toVariableResponse(v *models.SwitchVariable) variableResponse {
	return variableResponse{
		ID:          v.ID,
		Category:    v.Category,
		Name:        v.Name,
		Value:       v.Value,
		Command:     v.Command,
		Hostname:    v.Hostname,
		Enabled:     v.Enabled,
		Sequence:    v.Sequence,
		Description: v.Description,
		UpdatedAt:   v.UpdatedAt.Format(time.RFC3339),
	}
}

func validateVariableCommand(cmd string) string {
	switch cmd {
	case "set", "exec-set":
		return ""
	default:
		return "command must be set or exec-set"
	}
}

func (s *Server) handleListVariables(w http.ResponseWriter, r *http.Request) {
	vars, err := s.deps.Variables.List(r.Context())
	if err != nil {
		writeStoreError(w, "list switch variables", err)
		return
	}
	items := make([]variableResponse, len(vars))
	for i := range vars {
		items[i] = toVariableResponse(&vars[i])
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateVariable(w http.ResponseWriter, r *http.Request) {
	var req variableRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("name", req.Name, maxNameLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	command := req.Command
	if command == "" {
		command = "set"
	}
	if errMsg := validateVariableCommand(command); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	v := &models.SwitchVariable{
		ID:          uuid.NewString(),
		Category:    req.Category,
		Name:        req.Name,
		Value:       req.Value,
		Command:     command,
		Hostname:    req.Hostname,
		Enabled:     true,
		Sequence:    10,
		Description: req.Description,
	}
	if req.Enabled != nil {
		v.Enabled = *req.Enabled
	}
	if req.Sequence != nil {
		v.Sequence = *req.Sequence
	}

	if err := s.deps.Variables.Create(r.Context(), v); err != nil {
		writeStoreError(w, "create switch variable", err)
		return
	}
	writeJSON(w, http.StatusCreated, toVariableResponse(v))
}

func (s *Server) handleGetVariable(w http.ResponseWriter, r *http.Request) {
	v, err := s.deps.Variables.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "get switch variable", err)
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, "switch variable not found")
		return
	}
	writeJSON(w, http.StatusOK, toVariableResponse(v))
}

func (s *Server) handleUpdateVariable(w http.ResponseWriter, r *http.Request) {
	v, err := s.deps.Variables.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "update switch variable", err)
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, "switch variable not found")
		return
	}

	var req variableRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Command != "" {
		if errMsg := validateVariableCommand(req.Command); errMsg != "" {
			writeError(w, http.StatusBadRequest, errMsg)
			return
		}
		v.Command = req.Command
	}

	if req.Category != "" {
		v.Category = req.Category
	}
	if req.Name != "" {
		v.Name = req.Name
	}
	v.Value = req.Value
	v.Hostname = req.Hostname
	v.Description = req.Description
	if req.Enabled != nil {
		v.Enabled = *req.Enabled
	}
	if req.Sequence != nil {
		v.Sequence = *req.Sequence
	}

	if err := s.deps.Variables.Update(r.Context(), v); err != nil {
		writeStoreError(w, "update switch variable", err)
		return
	}
	writeJSON(w, http.StatusOK, toVariableResponse(v))
}

func (s *Server) handleDeleteVariable(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Variables.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, "delete switch variable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// VarsXML serialises the enabled switch variables for one host into the
// boot-time include file.
func VarsXML(vars []models.SwitchVariable) string {
	root := dialplan.NewNode("include")
	for _, v := range vars {
		root.Add(dialplan.NewNode("X-PRE-PROCESS",
			"cmd", v.Command,
			"data", v.Name+"="+v.Value,
		))
	}
	return dialplan.Render(root)
}

func (s *Server) handleVarsXML(w http.ResponseWriter, r *http.Request) {
	vars, err := s.deps.Variables.ListEnabled(r.Context(), r.URL.Query().Get("hostname"))
	if err != nil {
		writeStoreError(w, "vars xml", err)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(VarsXML(vars)))
}
