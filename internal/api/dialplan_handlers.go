package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tappbx/tappbx/internal/database/models"
	"github.com/tappbx/tappbx/internal/dialplan"
	"github.com/tappbx/tappbx/internal/reload"
)

// detailStep is the sequence spacing assigned to decompiled detail rows.
const detailStep = 10

// dialplanRequest is the JSON request body for creating/updating a
// dialplan record.
type dialplanRequest struct {
	DomainID *string `json:"domain_id"`
	Category string  `json:"category"`
	Name     string  `json:"name"`
	Number   string  `json:"number"`
	Context  string  `json:"context"`
	Continue *bool   `json:"continue"`
	Sequence *int    `json:"sequence"`
	Enabled  *bool   `json:"enabled"`
	Hostname *string `json:"hostname"`
	XML      string  `json:"xml"`
}

type dialplanResponse struct {
	ID              string  `json:"id"`
	DomainID        *string `json:"domain_id,omitempty"`
	AppID           string  `json:"app_id"`
	Category        string  `json:"category"`
	Name            string  `json:"name"`
	Number          string  `json:"number"`
	Context         string  `json:"context"`
	Continue        bool    `json:"continue"`
	Sequence        int     `json:"sequence"`
	Enabled         bool    `json:"enabled"`
	Hostname        *string `json:"hostname,omitempty"`
	XML             string  `json:"xml"`
	Opaque          bool    `json:"opaque"`
	LastReloadError string  `json:"last_reload_error,omitempty"`
	UpdatedAt       string  `json:"updated_at"`
}

type detailRow struct {
	Group    int    `json:"group"`
	Tag      string `json:"tag"`
	Type     string `json:"type"`
	Data     string `json:"data"`
	Break    string `json:"break,omitempty"`
	Inline   bool   `json:"inline,omitempty"`
	Sequence int    `json:"sequence"`
}

func toDialplanResponse(rec *models.DialplanRecord) dialplanResponse {
	return dialplanResponse{
		ID:              rec.ID,
		DomainID:        rec.DomainID,
		AppID:           rec.AppID,
		Category:        rec.Category,
		Name:            rec.Name,
		Number:          rec.Number,
		Context:         rec.Context,
		Continue:        rec.Continue,
		Sequence:        rec.Sequence,
		Enabled:         rec.Enabled,
		Hostname:        rec.Hostname,
		XML:             rec.XML,
		Opaque:          rec.Opaque,
		LastReloadError: rec.LastReloadError,
		UpdatedAt:       rec.UpdatedAt.Format(time.RFC3339),
	}
}

func toDetailRows(details []models.DialplanDetail) []detailRow {
	rows := make([]detailRow, len(details))
	for i, d := range details {
		rows[i] = detailRow{
			Group: d.Group, Tag: d.Tag, Type: d.Type,
			Data: d.Data, Break: d.Break, Inline: d.Inline, Sequence: d.Sequence,
		}
	}
	return rows
}

func fromDetailRows(recordID string, rows []detailRow) []models.DialplanDetail {
	details := make([]models.DialplanDetail, len(rows))
	for i, r := range rows {
		details[i] = models.DialplanDetail{
			RecordID: recordID, Group: r.Group, Tag: r.Tag, Type: r.Type,
			Data: r.Data, Break: r.Break, Inline: r.Inline, Sequence: r.Sequence,
		}
	}
	return details
}

func (s *Server) handleListDialplans(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	var domainID *string
	if v := r.URL.Query().Get("domain_id"); v != "" {
		domainID = &v
	}
	recs, err := s.deps.Dialplans.List(r.Context(), domainID)
	if err != nil {
		writeStoreError(w, "list dialplans", err)
		return
	}

	total := len(recs)
	start := pg.Offset
	if start > total {
		start = total
	}
	end := start + pg.Limit
	if end > total {
		end = total
	}
	items := make([]dialplanResponse, 0, end-start)
	for i := start; i < end; i++ {
		items = append(items, toDialplanResponse(&recs[i]))
	}
	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  items,
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}

func (s *Server) handleCreateDialplan(w http.ResponseWriter, r *http.Request) {
	var req dialplanRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("name", req.Name, maxNameLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("context", req.Context, maxNameLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	rec := &models.DialplanRecord{
		ID:       uuid.NewString(),
		DomainID: req.DomainID,
		AppID:    models.AppGeneric,
		Category: req.Category,
		Name:     req.Name,
		Number:   req.Number,
		Context:  req.Context,
		Enabled:  true,
		Hostname: req.Hostname,
		XML:      req.XML,
	}
	if req.Continue != nil {
		rec.Continue = *req.Continue
	}
	if req.Sequence != nil {
		rec.Sequence = *req.Sequence
	}
	if req.Enabled != nil {
		rec.Enabled = *req.Enabled
	}

	if err := s.deps.Dialplans.Create(r.Context(), rec); err != nil {
		writeStoreError(w, "create dialplan", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDialplanResponse(rec))
}

func (s *Server) handleGetDialplan(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Dialplans.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "get dialplan", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "dialplan not found")
		return
	}

	details, err := s.deps.Dialplans.ListDetails(r.Context(), rec.ID)
	if err != nil {
		writeStoreError(w, "get dialplan details", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"record":  toDialplanResponse(rec),
		"details": toDetailRows(details),
	})
}

func (s *Server) handleUpdateDialplan(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Dialplans.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "update dialplan", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "dialplan not found")
		return
	}

	var req struct {
		dialplanRequest
		Details *[]detailRow `json:"details"`
	}
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if req.Name != "" {
		rec.Name = req.Name
	}
	if req.Number != "" {
		rec.Number = req.Number
	}
	if req.Context != "" {
		rec.Context = req.Context
	}
	if req.Continue != nil {
		rec.Continue = *req.Continue
	}
	if req.Sequence != nil {
		rec.Sequence = *req.Sequence
	}
	if req.Enabled != nil {
		rec.Enabled = *req.Enabled
	}
	rec.Hostname = req.Hostname

	if err := s.deps.Dialplans.Update(r.Context(), rec); err != nil {
		writeStoreError(w, "update dialplan", err)
		return
	}
	if req.Details != nil {
		if err := s.deps.Dialplans.ReplaceDetails(r.Context(), rec.ID, fromDetailRows(rec.ID, *req.Details)); err != nil {
			writeStoreError(w, "update dialplan details", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, toDialplanResponse(rec))
}

func (s *Server) handleDeleteDialplan(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Dialplans.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, "delete dialplan", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// handleCompileDialplan regenerates a generic record's XML from its detail
// rows and reloads the switch.
func (s *Server) handleCompileDialplan(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Dialplans.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "compile dialplan", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "dialplan not found")
		return
	}

	tenant := dialplan.Tenant{}
	if rec.DomainID != nil {
		tenant, err = s.tenantByID(r.Context(), *rec.DomainID)
		if err != nil {
			writeStoreError(w, "compile dialplan: tenant", err)
			return
		}
	}

	details, err := s.deps.Dialplans.ListDetails(r.Context(), rec.ID)
	if err != nil {
		writeStoreError(w, "compile dialplan: details", err)
		return
	}

	xml := s.deps.Compiler.CompileGeneric(rec, details, tenant)
	res, err := s.saveCompiled(r.Context(), rec.ID, xml, tenant.Name)
	respondCompiled(w, "compile dialplan", res, err)
}

// handleDecompileDialplan parses the record's XML back into detail rows and
// stores them. Records whose XML does not survive the round trip are
// flagged opaque and left untouched.
func (s *Server) handleDecompileDialplan(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Dialplans.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "decompile dialplan", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "dialplan not found")
		return
	}
	if rec.XML == "" {
		writeError(w, http.StatusBadRequest, "record has no xml")
		return
	}

	details, err := dialplan.Decompile(rec.XML, detailStep)
	if err != nil {
		if errors.Is(err, dialplan.ErrInvalidXML) {
			writeError(w, http.StatusUnprocessableEntity, "record xml is not valid dialplan xml")
			return
		}
		writeStoreError(w, "decompile dialplan", err)
		return
	}

	tenant := dialplan.Tenant{}
	if rec.DomainID != nil {
		tenant, err = s.tenantByID(r.Context(), *rec.DomainID)
		if err != nil {
			writeStoreError(w, "decompile dialplan: tenant", err)
			return
		}
	}

	// Opaque records are editable as raw XML only.
	opaque := s.deps.Compiler.CompileGeneric(rec, details, tenant) != rec.XML
	if opaque {
		if err := s.deps.Dialplans.UpdateXML(r.Context(), rec.ID, rec.XML, true, rec.UpdatedAt); err != nil {
			writeStoreError(w, "decompile dialplan: flag opaque", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"opaque": true})
		return
	}

	for i := range details {
		details[i].RecordID = rec.ID
	}
	if err := s.deps.Dialplans.ReplaceDetails(r.Context(), rec.ID, details); err != nil {
		writeStoreError(w, "decompile dialplan: store details", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"opaque":  false,
		"details": toDetailRows(details),
	})
}

// handleGenerateDialplanXML returns the record's XML without saving
// anything. Explicit invocation per the admin surface contract.
func (s *Server) handleGenerateDialplanXML(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Dialplans.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "generate dialplan xml", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "dialplan not found")
		return
	}

	tenant := dialplan.Tenant{}
	if rec.DomainID != nil {
		tenant, err = s.tenantByID(r.Context(), *rec.DomainID)
		if err != nil {
			writeStoreError(w, "generate dialplan xml: tenant", err)
			return
		}
	}
	details, err := s.deps.Dialplans.ListDetails(r.Context(), rec.ID)
	if err != nil {
		writeStoreError(w, "generate dialplan xml: details", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"xml": s.deps.Compiler.CompileGeneric(rec, details, tenant),
	})
}

// handleFlushDialplanCache drops the dialplan cache keys and reloads.
func (s *Server) handleFlushDialplanCache(w http.ResponseWriter, r *http.Request) {
	tenant := r.URL.Query().Get("domain_id")
	if err := s.deps.Reload.FlushAndReload(r.Context(), reload.ScopeDialplan, tenant); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"flushed": true, "reloaded": false, "detail": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flushed": true, "reloaded": true})
}

// renderedContextTTL bounds how long a rendered context document may be
// served without consulting the store. Scope invalidation clears it
// earlier on any dialplan write.
const renderedContextTTL = 5 * time.Minute

func contextCacheKey(domainID *string, name, hostname string) string {
	tenant := "global"
	if domainID != nil {
		tenant = *domainID
	}
	if hostname == "" {
		hostname = "all"
	}
	return "dialplan:" + tenant + ":context:" + name + ":" + hostname
}

// handleRenderContext serialises one full dialplan context, the document
// the switch receives for that context. Rendered documents are cached
// under the dialplan scope so record writes invalidate them.
func (s *Server) handleRenderContext(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	hostname := r.URL.Query().Get("hostname")
	var domainID *string
	if v := r.URL.Query().Get("domain_id"); v != "" {
		domainID = &v
	}

	key := contextCacheKey(domainID, name, hostname)
	if s.deps.Cache != nil {
		if xml, ok := s.deps.Cache.Get(r.Context(), key); ok {
			writeJSON(w, http.StatusOK, map[string]string{"xml": xml})
			return
		}
	}

	recs, err := s.deps.Dialplans.ForContext(r.Context(), name, hostname, domainID)
	if err != nil {
		writeStoreError(w, "render context", err)
		return
	}
	xml := dialplan.RenderContext(name, recs)
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Set(r.Context(), key, xml, renderedContextTTL); err != nil {
			slog.Warn("caching rendered context failed", "key", key, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"xml": xml})
}
