package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tappbx/tappbx/internal/database/models"
	"github.com/tappbx/tappbx/internal/reload"
)

type ivrMenuRequest struct {
	DomainID          string        `json:"domain_id"`
	Name              string        `json:"name"`
	Extension         string        `json:"extension"`
	Context           string        `json:"context"`
	GreetLong         string        `json:"greet_long"`
	GreetShort        string        `json:"greet_short"`
	InvalidSound      string        `json:"invalid_sound"`
	ExitSound         string        `json:"exit_sound"`
	Timeout           *int          `json:"timeout"`
	InterDigitTimeout *int          `json:"inter_digit_timeout"`
	MaxFailures       *int          `json:"max_failures"`
	MaxTimeouts       *int          `json:"max_timeouts"`
	DigitLen          *int          `json:"digit_len"`
	TTSEngine         string        `json:"tts_engine"`
	TTSVoice          string        `json:"tts_voice"`
	DirectDial        *bool         `json:"direct_dial"`
	Ringback          string        `json:"ringback"`
	ExitApp           string        `json:"exit_app"`
	ExitData          string        `json:"exit_data"`
	Enabled           *bool         `json:"enabled"`
	Options           *[]ivrMenuOpt `json:"options"`
}

type ivrMenuOpt struct {
	Digits   string `json:"digits"`
	App      string `json:"app"`
	Data     string `json:"data"`
	Sequence int    `json:"sequence"`
}

type ivrMenuResponse struct {
	ID                string       `json:"id"`
	DomainID          string       `json:"domain_id"`
	DialplanID        string       `json:"dialplan_id"`
	Name              string       `json:"name"`
	Extension         string       `json:"extension"`
	Context           string       `json:"context"`
	GreetLong         string       `json:"greet_long"`
	GreetShort        string       `json:"greet_short"`
	InvalidSound      string       `json:"invalid_sound"`
	ExitSound         string       `json:"exit_sound"`
	Timeout           int          `json:"timeout"`
	InterDigitTimeout int          `json:"inter_digit_timeout"`
	MaxFailures       int          `json:"max_failures"`
	MaxTimeouts       int          `json:"max_timeouts"`
	DigitLen          int          `json:"digit_len"`
	TTSEngine         string       `json:"tts_engine"`
	TTSVoice          string       `json:"tts_voice"`
	DirectDial        bool         `json:"direct_dial"`
	Ringback          string       `json:"ringback"`
	ExitApp           string       `json:"exit_app"`
	ExitData          string       `json:"exit_data"`
	Enabled           bool         `json:"enabled"`
	Options           []ivrMenuOpt `json:"options,omitempty"`
	UpdatedAt         string       `json:"updated_at"`
}

func toIVRMenuResponse(m *models.IVRMenu, opts []models.IVRMenuOption) ivrMenuResponse {
	resp := ivrMenuResponse{
		ID:                m.ID,
		DomainID:          m.DomainID,
		DialplanID:        m.DialplanID,
		Name:              m.Name,
		Extension:         m.Extension,
		Context:           m.Context,
		GreetLong:         m.GreetLong,
		GreetShort:        m.GreetShort,
		InvalidSound:      m.InvalidSound,
		ExitSound:         m.ExitSound,
		Timeout:           m.Timeout,
		InterDigitTimeout: m.InterDigitTimeout,
		MaxFailures:       m.MaxFailures,
		MaxTimeouts:       m.MaxTimeouts,
		DigitLen:          m.DigitLen,
		TTSEngine:         m.TTSEngine,
		TTSVoice:          m.TTSVoice,
		DirectDial:        m.DirectDial,
		Ringback:          m.Ringback,
		ExitApp:           m.ExitApp,
		ExitData:          m.ExitData,
		Enabled:           m.Enabled,
		UpdatedAt:         m.UpdatedAt.Format(time.RFC3339),
	}
	for _, o := range opts {
		resp.Options = append(resp.Options, ivrMenuOpt{
			Digits: o.Digits, App: o.App, Data: o.Data, Sequence: o.Sequence,
		})
	}
	return resp
}

func fromIVRMenuOpts(menuID string, rows []ivrMenuOpt) []models.IVRMenuOption {
	opts := make([]models.IVRMenuOption, len(rows))
	for i, o := range rows {
		opts[i] = models.IVRMenuOption{
			MenuID: menuID, Digits: o.Digits, App: o.App, Data: o.Data, Sequence: o.Sequence,
		}
	}
	return opts
}

func (s *Server) handleListIVRMenus(w http.ResponseWriter, r *http.Request) {
	menus, err := s.deps.IVRMenus.List(r.Context(), r.URL.Query().Get("domain_id"))
	if err != nil {
		writeStoreError(w, "list ivr menus", err)
		return
	}
	items := make([]ivrMenuResponse, len(menus))
	for i := range menus {
		items[i] = toIVRMenuResponse(&menus[i], nil)
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateIVRMenu(w http.ResponseWriter, r *http.Request) {
	var req ivrMenuRequest
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
		writeStoreError(w, "create ivr menu: tenant", err)
		return
	}
	context := req.Context
	if context == "" {
		context = tenant.Name
	}

	rec, err := s.createRouteDialplan(r, req.DomainID, models.AppIVRMenu,
		"IVR menu", req.Name, req.Extension, context, 101)
	if err != nil {
		writeStoreError(w, "create ivr menu: dialplan", err)
		return
	}

	m := &models.IVRMenu{
		ID:                uuid.NewString(),
		DomainID:          req.DomainID,
		DialplanID:        rec.ID,
		Name:              req.Name,
		Extension:         req.Extension,
		Context:           context,
		GreetLong:         req.GreetLong,
		GreetShort:        req.GreetShort,
		InvalidSound:      req.InvalidSound,
		ExitSound:         req.ExitSound,
		Timeout:           10000,
		InterDigitTimeout: 2000,
		MaxFailures:       3,
		MaxTimeouts:       3,
		DigitLen:          4,
		TTSEngine:         req.TTSEngine,
		TTSVoice:          req.TTSVoice,
		Ringback:          req.Ringback,
		ExitApp:           req.ExitApp,
		ExitData:          req.ExitData,
		Enabled:           true,
	}
	if req.Timeout != nil {
		m.Timeout = *req.Timeout
	}
	if req.InterDigitTimeout != nil {
		m.InterDigitTimeout = *req.InterDigitTimeout
	}
	if req.MaxFailures != nil {
		m.MaxFailures = *req.MaxFailures
	}
	if req.MaxTimeouts != nil {
		m.MaxTimeouts = *req.MaxTimeouts
	}
	if req.DigitLen != nil {
		m.DigitLen = *req.DigitLen
	}
	if req.DirectDial != nil {
		m.DirectDial = *req.DirectDial
	}
	if req.Enabled != nil {
		m.Enabled = *req.Enabled
	}

	if err := s.deps.IVRMenus.Create(r.Context(), m); err != nil {
		writeStoreError(w, "create ivr menu", err)
		return
	}

	var opts []models.IVRMenuOption
	if req.Options != nil {
		opts = fromIVRMenuOpts(m.ID, *req.Options)
		if err := s.deps.IVRMenus.ReplaceOptions(r.Context(), m.ID, opts); err != nil {
			writeStoreError(w, "create ivr menu: options", err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, toIVRMenuResponse(m, opts))
}

func (s *Server) handleGetIVRMenu(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.IVRMenus.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "get ivr menu", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "ivr menu not found")
		return
	}
	opts, err := s.deps.IVRMenus.ListOptions(r.Context(), m.ID)
	if err != nil {
		writeStoreError(w, "get ivr menu: options", err)
		return
	}
	writeJSON(w, http.StatusOK, toIVRMenuResponse(m, opts))
}

func (s *Server) handleUpdateIVRMenu(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.IVRMenus.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "update ivr menu", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "ivr menu not found")
		return
	}

	var req ivrMenuRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if req.Name != "" {
		m.Name = req.Name
	}
	m.GreetLong = req.GreetLong
	m.GreetShort = req.GreetShort
	m.InvalidSound = req.InvalidSound
	m.ExitSound = req.ExitSound
	m.TTSEngine = req.TTSEngine
	m.TTSVoice = req.TTSVoice
	m.Ringback = req.Ringback
	m.ExitApp = req.ExitApp
	m.ExitData = req.ExitData
	if req.Timeout != nil {
		m.Timeout = *req.Timeout
	}
	if req.InterDigitTimeout != nil {
		m.InterDigitTimeout = *req.InterDigitTimeout
	}
	if req.MaxFailures != nil {
		m.MaxFailures = *req.MaxFailures
	}
	if req.MaxTimeouts != nil {
		m.MaxTimeouts = *req.MaxTimeouts
	}
	if req.DigitLen != nil {
		m.DigitLen = *req.DigitLen
	}
	if req.DirectDial != nil {
		m.DirectDial = *req.DirectDial
	}
	if req.Enabled != nil {
		m.Enabled = *req.Enabled
	}

	if err := s.deps.IVRMenus.Update(r.Context(), m); err != nil {
		writeStoreError(w, "update ivr menu", err)
		return
	}

	var opts []models.IVRMenuOption
	if req.Options != nil {
		opts = fromIVRMenuOpts(m.ID, *req.Options)
		if err := s.deps.IVRMenus.ReplaceOptions(r.Context(), m.ID, opts); err != nil {
			writeStoreError(w, "update ivr menu: options", err)
			return
		}
	} else {
		opts, err = s.deps.IVRMenus.ListOptions(r.Context(), m.ID)
		if err != nil {
			writeStoreError(w, "update ivr menu: options", err)
			return
		}
	}
	s.invalidateIVRMenus(r, m.DomainID)
	writeJSON(w, http.StatusOK, toIVRMenuResponse(m, opts))
}

func (s *Server) handleDeleteIVRMenu(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.IVRMenus.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "delete ivr menu", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "ivr menu not found")
		return
	}
	if err := s.deps.IVRMenus.Delete(r.Context(), m.ID); err != nil {
		writeStoreError(w, "delete ivr menu", err)
		return
	}
	if err := s.deps.Dialplans.Delete(r.Context(), m.DialplanID); err != nil {
		writeStoreError(w, "delete ivr menu: dialplan", err)
		return
	}
	s.invalidateIVRMenus(r, m.DomainID)
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) invalidateIVRMenus(r *http.Request, domainID string) {
	if err := s.deps.Reload.Invalidate(r.Context(), reload.ScopeIVRMenus, domainID, ""); err != nil {
		slog.Warn("invalidating ivr menu cache failed", "domain_id", domainID, "error", err)
	}
}

// menuConfigTTL bounds how long a compiled menu definition may be served
// without consulting the store.
const menuConfigTTL = 5 * time.Minute

// handleIVRMenuXML serialises the switch-side menu definition: greetings,
// timeouts and digit bindings in ivr.conf form.
func (s *Server) handleIVRMenuXML(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.IVRMenus.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "ivr menu xml", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "ivr menu not found")
		return
	}

	key := "ivr-menus:" + m.DomainID + ":" + m.ID
	if s.deps.Cache != nil {
		if xml, ok := s.deps.Cache.Get(r.Context(), key); ok {
			writeJSON(w, http.StatusOK, map[string]string{"xml": xml})
			return
		}
	}

	tenant, err := s.tenantByID(r.Context(), m.DomainID)
	if err != nil {
		writeStoreError(w, "ivr menu xml: tenant", err)
		return
	}
	opts, err := s.deps.IVRMenus.ListOptions(r.Context(), m.ID)
	if err != nil {
		writeStoreError(w, "ivr menu xml: options", err)
		return
	}

	xml := s.deps.Compiler.CompileIVRConfig(r.Context(), m, opts, tenant)
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Set(r.Context(), key, xml, menuConfigTTL); err != nil {
			slog.Warn("caching ivr menu xml failed", "key", key, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"xml": xml})
}

func (s *Server) handleCompileIVRMenu(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.IVRMenus.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "compile ivr menu", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "ivr menu not found")
		return
	}
	tenant, err := s.tenantByID(r.Context(), m.DomainID)
	if err != nil {
		writeStoreError(w, "compile ivr menu: tenant", err)
		return
	}

	xml := s.deps.Compiler.CompileIVR(r.Context(), m, tenant)
	res, err := s.saveCompiled(r.Context(), m.DialplanID, xml, tenant.Name)
	respondCompiled(w, "compile ivr menu", res, err)
}
