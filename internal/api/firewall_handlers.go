package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tappbx/tappbx/internal/database/models"
)

type firewallAddressRequest struct {
	Address string `json:"address"`
}

type firewallAddressResponse struct {
	Address   string `json:"address"`
	Family    string `json:"family"`
	List      string `json:"list"`
	FirstSeen string `json:"first_seen"`
	LastSeen  string `json:"last_seen"`
	Status    string `json:"status"`
}

func validFirewallList(list string) bool {
	switch list {
	case models.ListBlock, models.ListWhite, models.ListSIPCustomer,
		models.ListSIPGateway, models.ListWebBlock:
		return true
	}
	return false
}

func (s *Server) handleListFirewall(w http.ResponseWriter, r *http.Request) {
	list := chi.URLParam(r, "list")
	if !validFirewallList(list) {
		writeError(w, http.StatusNotFound, "unknown firewall list")
		return
	}
	rows, err := s.deps.Firewall.ListActive(r.Context(), list)
	if err != nil {
		writeStoreError(w, "list firewall addresses", err)
		return
	}
	items := make([]firewallAddressResponse, len(rows))
	for i, a := range rows {
		items[i] = firewallAddressResponse{
			Address:   a.Address,
			Family:    a.Family,
			List:      a.List,
			FirstSeen: a.FirstSeen.Format(time.RFC3339),
			LastSeen:  a.LastSeen.Format(time.RFC3339),
			Status:    a.Status,
		}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleAddFirewall(w http.ResponseWriter, r *http.Request) {
	list := chi.URLParam(r, "list")
	if !validFirewallList(list) {
		writeError(w, http.StatusNotFound, "unknown firewall list")
		return
	}
	var req firewallAddressRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateIP("address", req.Address); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if err := s.deps.Reconciler.Add(r.Context(), req.Address, list); err != nil {
		writeStoreError(w, "add firewall address", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"address": req.Address, "list": list})
}

func (s *Server) handleRemoveFirewall(w http.ResponseWriter, r *http.Request) {
	list := chi.URLParam(r, "list")
	if !validFirewallList(list) {
		writeError(w, http.StatusNotFound, "unknown firewall list")
		return
	}
	address := chi.URLParam(r, "address")
	if errMsg := validateIP("address", address); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if err := s.deps.Reconciler.Remove(r.Context(), address, list); err != nil {
		writeStoreError(w, "remove firewall address", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleReplayFirewall(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Reconciler.Replay(r.Context()); err != nil {
		writeStoreError(w, "replay firewall", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"replayed": true})
}
