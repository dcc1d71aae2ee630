package httapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tappbx/tappbx/internal/database"
	"github.com/tappbx/tappbx/internal/dialplan"
	"github.com/tappbx/tappbx/internal/firewall"
)

// SessionMaxAge bounds how long an abandoned session row survives before
// the housekeeping sweep removes it.
const SessionMaxAge = 24 * time.Hour

// Deps collects the stores and services the responder consults.
type Deps struct {
	Sessions    database.HTTAPISessionRepository
	Domains     database.DomainRepository
	RingGroups  database.RingGroupRepository
	Conferences database.ConferenceCentreRepository
	CallFlows   database.CallFlowRepository
	Dialplans   database.DialplanRepository
	Compiler    *dialplan.Compiler
	Reconciler  *firewall.Reconciler
}

// Server answers the switch's mid-call httapi dialogs.
type Server struct {
	router *chi.Mux
	deps   Deps
	logger *slog.Logger
}

// NewServer creates the responder with all handlers mounted.
func NewServer(deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		deps:   deps,
		logger: logger.With("subsystem", "httapi"),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Post("/ringgroup", s.session(s.handleRingGroup))
	s.router.Post("/conference", s.session(s.handleConference))
	s.router.Post("/callflow", s.session(s.handleCallFlow))
	s.router.Post("/register", s.handleRegister)
}

func (s *Server) respond(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "text/xml")
	w.Write([]byte(doc))
}

// fail logs the error path and returns the terminal hangup document.
func (s *Server) fail(w http.ResponseWriter, sessionID, errorCode string, err error) {
	s.logger.Error("httapi dialog failed",
		"session_id", sessionID, "error_code", errorCode, "err", err)
	s.respond(w, HangupDocument())
}

// session wraps a handler with the session row lifecycle: created on first
// request, deleted when the switch posts exiting=true.
func (s *Server) session(next func(w http.ResponseWriter, r *http.Request, sessionID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			s.fail(w, "", "bad_form", err)
			return
		}
		sessionID := r.PostFormValue("session_id")
		if sessionID == "" {
			s.fail(w, "", "missing_session", nil)
			return
		}

		if r.PostFormValue("exiting") == "true" {
			if err := s.deps.Sessions.Delete(r.Context(), sessionID); err != nil {
				s.logger.Error("deleting session", "session_id", sessionID, "err", err)
			}
			s.respond(w, NewDocument().Render())
			return
		}

		name := chi.RouteContext(r.Context()).RoutePattern()
		if _, _, err := s.deps.Sessions.GetOrCreate(r.Context(), sessionID, name); err != nil {
			s.fail(w, sessionID, "session_store", err)
			return
		}
		next(w, r, sessionID)
	}
}

func (s *Server) tenantFor(ctx context.Context, domainID string) (dialplan.Tenant, error) {
	dom, err := s.deps.Domains.GetByID(ctx, domainID)
	if err != nil {
		return dialplan.Tenant{}, err
	}
	if dom == nil {
		return dialplan.Tenant{}, database.ErrNotFound
	}
	return dialplan.Tenant{ID: dom.ID, Name: dom.Name}, nil
}

func (s *Server) handleRingGroup(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx := r.Context()
	rgID := r.PostFormValue("ring_group_uuid")
	rg, err := s.deps.RingGroups.GetByID(ctx, rgID)
	if err != nil {
		s.fail(w, sessionID, "ring_group_lookup", err)
		return
	}
	if rg == nil {
		s.fail(w, sessionID, "ring_group_unknown", nil)
		return
	}

	tenant, err := s.tenantFor(ctx, rg.DomainID)
	if err != nil {
		s.fail(w, sessionID, "tenant_lookup", err)
		return
	}
	dests, err := s.deps.RingGroups.ListDestinations(ctx, rg.ID)
	if err != nil {
		s.fail(w, sessionID, "ring_group_destinations", err)
		return
	}
	bridge, err := s.deps.Compiler.BridgeString(ctx, rg, dests, tenant)
	if err != nil {
		s.fail(w, sessionID, "ring_group_compile", err)
		return
	}

	doc := NewDocument()
	if rg.Ringback != "" {
		doc.Execute("set", "ringback="+rg.Ringback)
	}
	if rg.CallTimeout > 0 {
		doc.Execute("set", "call_timeout="+strconv.Itoa(rg.CallTimeout))
	}
	doc.Execute("bridge", bridge)
	if rg.TimeoutApp != "" {
		doc.Execute(rg.TimeoutApp, rg.TimeoutData)
	}
	s.respond(w, doc.Render())
}

func (s *Server) handleConference(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx := r.Context()
	ccID := r.PostFormValue("conference_centre_uuid")
	cc, err := s.deps.Conferences.GetByID(ctx, ccID)
	if err != nil {
		s.fail(w, sessionID, "conference_lookup", err)
		return
	}
	if cc == nil {
		s.fail(w, sessionID, "conference_unknown", nil)
		return
	}
	tenant, err := s.tenantFor(ctx, cc.DomainID)
	if err != nil {
		s.fail(w, sessionID, "tenant_lookup", err)
		return
	}

	doc := NewDocument()
	if cc.Greeting != "" {
		doc.Playback(cc.Greeting)
	}
	doc.Execute("conference", cc.Extension+"@"+tenant.Name)
	s.respond(w, doc.Render())
}

func (s *Server) handleCallFlow(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx := r.Context()
	cfID := r.PostFormValue("call_flow_uuid")
	cf, err := s.deps.CallFlows.GetByID(ctx, cfID)
	if err != nil {
		s.fail(w, sessionID, "call_flow_lookup", err)
		return
	}
	if cf == nil {
		s.fail(w, sessionID, "call_flow_unknown", nil)
		return
	}
	tenant, err := s.tenantFor(ctx, cf.DomainID)
	if err != nil {
		s.fail(w, sessionID, "tenant_lookup", err)
		return
	}

	next := "true"
	if cf.Status == "true" {
		next = "false"
	}
	if err := s.deps.CallFlows.SetStatus(ctx, cf.ID, next); err != nil {
		s.fail(w, sessionID, "call_flow_toggle", err)
		return
	}
	cf.Status = next

	rec, err := s.deps.Dialplans.GetByID(ctx, cf.DialplanID)
	if err != nil {
		s.fail(w, sessionID, "dialplan_lookup", err)
		return
	}
	if rec != nil {
		xml := s.deps.Compiler.CompileCallFlow(ctx, cf, tenant)
		if err := s.deps.Dialplans.UpdateXML(ctx, rec.ID, xml, rec.Opaque, rec.UpdatedAt); err != nil {
			s.logger.Error("recompiling call flow", "call_flow", cf.ID, "err", err)
		}
	}

	doc := NewDocument()
	if cf.Sound != "" {
		doc.Playback(cf.Sound)
	}
	doc.Hangup()
	s.respond(w, doc.Render())
}

// handleRegister is the HTTP ingress for registration events; deployments
// without a broker point the switch here.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.fail(w, "", "bad_form", err)
		return
	}
	ev := firewall.RegistrationEvent{
		Event:     r.PostFormValue("Event-Name"),
		Status:    r.PostFormValue("status"),
		NetworkIP: r.PostFormValue("network-ip"),
		User:      r.PostFormValue("username"),
		Realm:     r.PostFormValue("realm"),
	}
	if err := s.deps.Reconciler.HandleEvent(r.Context(), ev); err != nil {
		s.logger.Error("registration ingress", "user", ev.User, "err", err)
	}
	s.respond(w, NewDocument().Render())
}

// Sweep removes sessions older than the retention window. The housekeeping
// pass calls this.
func Sweep(ctx context.Context, sessions database.HTTAPISessionRepository) (int64, error) {
	return sessions.DeleteOlderThan(ctx, time.Now().Add(-SessionMaxAge))
}
