package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tappbx/tappbx/internal/api/middleware"
	"github.com/tappbx/tappbx/internal/cache"
	"github.com/tappbx/tappbx/internal/database"
	"github.com/tappbx/tappbx/internal/dialplan"
	"github.com/tappbx/tappbx/internal/firewall"
	"github.com/tappbx/tappbx/internal/reload"
	"github.com/tappbx/tappbx/internal/settings"
	"github.com/tappbx/tappbx/internal/switchrpc"
)

// Deps collects the stores and services the admin surface consults.
type Deps struct {
	Domains        database.DomainRepository
	Users          database.UserRepository
	Settings       database.SettingRepository
	Dialplans      database.DialplanRepository
	Extensions     database.ExtensionRepository
	InboundRoutes  database.InboundRouteRepository
	OutboundRoutes database.OutboundRouteRepository
	Gateways       database.GatewayRepository
	RingGroups     database.RingGroupRepository
	IVRMenus       database.IVRMenuRepository
	TimeConditions database.TimeConditionRepository
	CallFlows      database.CallFlowRepository
	Conferences    database.ConferenceCentreRepository
	Queues         database.QueueRepository
	Variables      database.SwitchVariableRepository
	ACLs           database.ACLRepository
	Devices        database.DeviceRepository
	Firewall       database.FirewallRepository

	Cache      cache.Cache
	Compiler   *dialplan.Compiler
	Reload     *reload.Coordinator
	Fabric     *switchrpc.Fabric
	Reconciler *firewall.Reconciler
	Resolver   *settings.Resolver
	Notifier   *settings.Notifier
	Throttle   *Throttle

	TLSEnabled  bool
	CORSOrigins []string
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router *chi.Mux
	deps   Deps
	secret []byte
}

// NewServer creates the HTTP handler with all routes mounted.
func NewServer(deps Deps, jwtSecret []byte) *Server {
	s := &Server{
		router: chi.NewRouter(),
		deps:   deps,
		secret: jwtSecret,
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// crud mounts the standard list/get/create/update/delete verbs plus any
// extra per-record actions.
func crud(r chi.Router, list, create http.HandlerFunc, get, update, del http.HandlerFunc, extra func(chi.Router)) {
	r.Get("/", list)
	r.Post("/", create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", get)
		r.Put("/", update)
		r.Delete("/", del)
		if extra != nil {
			extra(r)
		}
	})
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.SecurityHeaders(s.deps.TLSEnabled))
	if len(s.deps.CORSOrigins) > 0 {
		r.Use(middleware.CORS(s.deps.CORSOrigins))
	}
	r.Use(middleware.RateLimit(middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig())))

	authLimiter := middleware.NewIPRateLimiter(middleware.AuthRateLimitConfig())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.With(middleware.RateLimit(authLimiter)).Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.secret))

			r.Get("/auth/me", s.handleMe)

			r.Route("/domains", func(r chi.Router) {
				crud(r, s.handleListDomains, s.handleCreateDomain,
					s.handleGetDomain, s.handleUpdateDomain, s.handleDeleteDomain, nil)
			})

			r.Route("/users", func(r chi.Router) {
				crud(r, s.handleListUsers, s.handleCreateUser,
					s.handleGetUser, s.handleUpdateUser, s.handleDeleteUser, nil)
			})

			r.Route("/extensions", func(r chi.Router) {
				crud(r, s.handleListExtensions, s.handleCreateExtension,
					s.handleGetExtension, s.handleUpdateExtension, s.handleDeleteExtension, nil)
			})

			r.Route("/settings", func(r chi.Router) {
				crud(r, s.handleListSettings, s.handleCreateSetting,
					s.handleGetSetting, s.handleUpdateSetting, s.handleDeleteSetting, nil)
			})

			r.Route("/dialplans", func(r chi.Router) {
				crud(r, s.handleListDialplans, s.handleCreateDialplan,
					s.handleGetDialplan, s.handleUpdateDialplan, s.handleDeleteDialplan,
					func(r chi.Router) {
						r.Post("/compile", s.handleCompileDialplan)
						r.Post("/decompile", s.handleDecompileDialplan)
						r.Get("/generate-xml", s.handleGenerateDialplanXML)
					})
				r.Post("/flush-cache", s.handleFlushDialplanCache)
				r.Get("/context/{name}", s.handleRenderContext)
			})

			r.Route("/inbound-routes", func(r chi.Router) {
				crud(r, s.handleListInboundRoutes, s.handleCreateInboundRoute,
					s.handleGetInboundRoute, s.handleUpdateInboundRoute, s.handleDeleteInboundRoute,
					func(r chi.Router) {
						r.Post("/compile", s.handleCompileInboundRoute)
					})
			})

			r.Route("/outbound-routes", func(r chi.Router) {
				crud(r, s.handleListOutboundRoutes, s.handleCreateOutboundRoute,
					s.handleGetOutboundRoute, s.handleUpdateOutboundRoute, s.handleDeleteOutboundRoute,
					func(r chi.Router) {
						r.Post("/compile", s.handleCompileOutboundRoute)
					})
			})

			r.Route("/gateways", func(r chi.Router) {
				crud(r, s.handleListGateways, s.handleCreateGateway,
					s.handleGetGateway, s.handleUpdateGateway, s.handleDeleteGateway, nil)
			})

			r.Route("/ring-groups", func(r chi.Router) {
				crud(r, s.handleListRingGroups, s.handleCreateRingGroup,
					s.handleGetRingGroup, s.handleUpdateRingGroup, s.handleDeleteRingGroup,
					func(r chi.Router) {
						r.Post("/compile", s.handleCompileRingGroup)
					})
			})

			r.Route("/ivr-menus", func(r chi.Router) {
				crud(r, s.handleListIVRMenus, s.handleCreateIVRMenu,
					s.handleGetIVRMenu, s.handleUpdateIVRMenu, s.handleDeleteIVRMenu,
					func(r chi.Router) {
						r.Post("/compile", s.handleCompileIVRMenu)
						r.Get("/generate-xml", s.handleIVRMenuXML)
					})
			})

			r.Route("/time-conditions", func(r chi.Router) {
				crud(r, s.handleListTimeConditions, s.handleCreateTimeCondition,
					s.handleGetTimeCondition, s.handleUpdateTimeCondition, s.handleDeleteTimeCondition,
					func(r chi.Router) {
						r.Post("/compile", s.handleCompileTimeCondition)
					})
			})

			r.Route("/call-flows", func(r chi.Router) {
				crud(r, s.handleListCallFlows, s.handleCreateCallFlow,
					s.handleGetCallFlow, s.handleUpdateCallFlow, s.handleDeleteCallFlow,
					func(r chi.Router) {
						r.Post("/compile", s.handleCompileCallFlow)
					})
			})

			r.Route("/conference-centres", func(r chi.Router) {
				crud(r, s.handleListConferences, s.handleCreateConference,
					s.handleGetConference, s.handleUpdateConference, s.handleDeleteConference,
					func(r chi.Router) {
						r.Post("/compile", s.handleCompileConference)
					})
			})

			r.Route("/queues", func(r chi.Router) {
				crud(r, s.handleListQueues, s.handleCreateQueue,
					s.handleGetQueue, s.handleUpdateQueue, s.handleDeleteQueue,
					func(r chi.Router) {
						r.Post("/compile", s.handleCompileQueue)
						r.Get("/tiers", s.handleListTiers)
						r.Post("/tiers", s.handleAddTier)
						r.Put("/tiers", s.handleUpdateTier)
						r.Delete("/tiers/{agentID}", s.handleRemoveTier)
					})
			})

			r.Route("/agents", func(r chi.Router) {
				crud(r, s.handleListAgents, s.handleCreateAgent,
					s.handleGetAgent, s.handleUpdateAgent, s.handleDeleteAgent, nil)
			})

			r.Route("/switch-variables", func(r chi.Router) {
				crud(r, s.handleListVariables, s.handleCreateVariable,
					s.handleGetVariable, s.handleUpdateVariable, s.handleDeleteVariable, nil)
				r.Get("/vars-xml", s.handleVarsXML)
			})

			r.Route("/acls", func(r chi.Router) {
				r.Get("/", s.handleListACLs)
				r.Post("/", s.handleCreateACL)
				r.Route("/{name}", func(r chi.Router) {
					r.Get("/", s.handleGetACL)
					r.Put("/nodes", s.handleReplaceACLNodes)
					r.Delete("/", s.handleDeleteACL)
				})
			})

			r.Route("/devices", func(r chi.Router) {
				crud(r, s.handleListDevices, s.handleCreateDevice,
					s.handleGetDevice, s.handleUpdateDevice, s.handleDeleteDevice, nil)
			})

			r.Route("/device-profiles", func(r chi.Router) {
				r.Get("/", s.handleListDeviceProfiles)
				r.Post("/", s.handleCreateDeviceProfile)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDeviceProfile)
					r.Put("/settings", s.handleReplaceDeviceProfileSettings)
					r.Delete("/", s.handleDeleteDeviceProfile)
				})
			})

			r.Route("/firewall", func(r chi.Router) {
				r.Get("/{list}", s.handleListFirewall)
				r.Post("/{list}", s.handleAddFirewall)
				r.Delete("/{list}/{address}", s.handleRemoveFirewall)
				r.Post("/replay", s.handleReplayFirewall)
			})

			r.Route("/switch", func(r chi.Router) {
				r.Post("/reloadxml", s.handleReloadXML)
				r.Post("/reloadacl", s.handleReloadACL)
				r.Post("/notify", s.handleNotify)
				r.Get("/registrations", s.handleRegistrations)
				r.Get("/channels", s.handleChannels)
				r.Post("/uuid-kill", s.handleUUIDKill)
				r.Post("/callcenter/queue", s.handleCallcenterQueue)
				r.Post("/callcenter/tier", s.handleCallcenterTier)
				r.Post("/callcenter/agent", s.handleCallcenterAgent)
			})
		})
	})
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
