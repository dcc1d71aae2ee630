package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tappbx/tappbx/internal/database/models"
)

type aclNodeRow struct {
	Type        string `json:"type"`
	CIDR        string `json:"cidr"`
	Domain      string `json:"domain"`
	Description string `json:"description"`
	Sequence    int    `json:"sequence"`
}

type aclRequest struct {
	Name    string       `json:"name"`
	Default string       `json:"default"`
	Nodes   []aclNodeRow `json:"nodes"`
}

type aclResponse struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Default string       `json:"default"`
	Nodes   []aclNodeRow `json:"nodes,omitempty"`
}

func toACLResponse(a *models.ACL, nodes []models.ACLNode) aclResponse {
	resp := aclResponse{ID: a.ID, Name: a.Name, Default: a.Default}
	for _, n := range nodes {
		resp.Nodes = append(resp.Nodes, aclNodeRow{
			Type: n.Type, CIDR: n.CIDR, Domain: n.Domain,
			Description: n.Description, Sequence: n.Sequence,
		})
	}
	return resp
}

func validateACLPolicy(policy string) string {
	if policy != "allow" && policy != "deny" {
		return "policy must be allow or deny"
	}
	return ""
}

func (s *Server) handleListACLs(w http.ResponseWriter, r *http.Request) {
	acls, err := s.deps.ACLs.List(r.Context())
	if err != nil {
		writeStoreError(w, "list acls", err)
		return
	}
	items := make([]aclResponse, len(acls))
	for i := range acls {
		items[i] = toACLResponse(&acls[i], nil)
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateACL(w http.ResponseWriter, r *http.Request) {
	var req aclRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("name", req.Name, maxNameLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	def := req.Default
	if def == "" {
		def = "deny"
	}
	if errMsg := validateACLPolicy(def); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	for _, n := range req.Nodes {
		if errMsg := validateACLPolicy(n.Type); errMsg != "" {
			writeError(w, http.StatusBadRequest, errMsg)
			return
		}
	}

	a := &models.ACL{ID: uuid.NewString(), Name: req.Name, Default: def}
	if err := s.deps.ACLs.Create(r.Context(), a); err != nil {
		writeStoreError(w, "create acl", err)
		return
	}
	nodes := fromACLNodeRows(a.ID, req.Nodes)
	if len(nodes) > 0 {
		if err := s.deps.ACLs.ReplaceNodes(r.Context(), a.ID, nodes); err != nil {
			writeStoreError(w, "create acl: nodes", err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, toACLResponse(a, nodes))
}

func fromACLNodeRows(aclID string, rows []aclNodeRow) []models.ACLNode {
	nodes := make([]models.ACLNode, len(rows))
	for i, n := range rows {
		nodes[i] = models.ACLNode{
			ACLID: aclID, Type: n.Type, CIDR: n.CIDR, Domain: n.Domain,
			Description: n.Description, Sequence: n.Sequence,
		}
	}
	return nodes
}

func (s *Server) handleGetACL(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.ACLs.GetByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeStoreError(w, "get acl", err)
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "acl not found")
		return
	}
	nodes, err := s.deps.ACLs.ListNodes(r.Context(), a.ID)
	if err != nil {
		writeStoreError(w, "get acl: nodes", err)
		return
	}
	writeJSON(w, http.StatusOK, toACLResponse(a, nodes))
}

func (s *Server) handleReplaceACLNodes(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.ACLs.GetByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeStoreError(w, "replace acl nodes", err)
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "acl not found")
		return
	}

	var rows []aclNodeRow
	if errMsg := readJSON(r, &rows); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	for _, n := range rows {
		if errMsg := validateACLPolicy(n.Type); errMsg != "" {
			writeError(w, http.StatusBadRequest, errMsg)
			return
		}
	}

	nodes := fromACLNodeRows(a.ID, rows)
	if err := s.deps.ACLs.ReplaceNodes(r.Context(), a.ID, nodes); err != nil {
		writeStoreError(w, "replace acl nodes", err)
		return
	}

	// The switch holds its lists in memory; push the change out.
	if err := s.deps.Fabric.ReloadACL(r.Context(), ""); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"acl":    toACLResponse(a, nodes),
			"detail": "saved, not reloaded",
		})
		return
	}
	writeJSON(w, http.StatusOK, toACLResponse(a, nodes))
}

func (s *Server) handleDeleteACL(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.ACLs.GetByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeStoreError(w, "delete acl", err)
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "acl not found")
		return
	}
	if err := s.deps.ACLs.Delete(r.Context(), a.ID); err != nil {
		writeStoreError(w, "delete acl", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
