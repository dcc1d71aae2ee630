package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tappbx/tappbx/internal/api"
	"github.com/tappbx/tappbx/internal/api/middleware"
	"github.com/tappbx/tappbx/internal/cache"
	"github.com/tappbx/tappbx/internal/config"
	"github.com/tappbx/tappbx/internal/database"
	"github.com/tappbx/tappbx/internal/dialplan"
	"github.com/tappbx/tappbx/internal/firewall"
	"github.com/tappbx/tappbx/internal/firewall/pgstore"
	"github.com/tappbx/tappbx/internal/httapi"
	"github.com/tappbx/tappbx/internal/metrics"
	"github.com/tappbx/tappbx/internal/provision"
	"github.com/tappbx/tappbx/internal/reload"
	"github.com/tappbx/tappbx/internal/settings"
	"github.com/tappbx/tappbx/internal/switchrpc"
)

// eventBindings are the broker routing keys carrying switch registration
// events the firewall reconciler consumes.
var eventBindings = []string{
	"#.CUSTOM.sofia::register.#",
	"#.CUSTOM.sofia::unregister.#",
	"#.CUSTOM.sofia::expire.#",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	slog.Info("starting tappbx",
		"http_port", cfg.HTTPPort,
		"transport", cfg.Transport,
		"data_dir", cfg.DataDir,
	)

	db, err := database.Open(cfg.DataDir)
	if err != nil {
		slog.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	secret, err := jwtSecret(cfg)
	if err != nil {
		slog.Error("reading jwt secret", "error", err)
		os.Exit(1)
	}

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Cache capability.
	var cch cache.Cache
	switch cfg.CacheBackend {
	case "redis":
		rc, err := cache.OpenRedis(appCtx, cache.RedisConfig{Addr: cfg.RedisAddr})
		if err != nil {
			slog.Error("opening redis cache", "error", err)
			os.Exit(1)
		}
		cch = rc
	default:
		cch = cache.NewMemory()
	}

	// Switch command fabric over the configured transport.
	hosts := cfg.Hosts()
	var rpc switchrpc.SwitchRPC
	var broker *switchrpc.BrokerRPC
	if cfg.Transport == "broker" {
		broker = switchrpc.NewBrokerRPC(switchrpc.BrokerConfig{
			URL:   cfg.BrokerURL,
			Hosts: hosts,
		}, logger)
		rpc = broker
	} else {
		host := ""
		if len(hosts) > 0 {
			host = hosts[0]
		}
		rpc = switchrpc.NewSocketRPC(switchrpc.SocketConfig{
			Addr:     cfg.SocketAddr,
			Password: cfg.SocketPassword,
			Host:     host,
		}, logger)
	}
	if err := rpc.Connect(appCtx); err != nil {
		slog.Warn("switch transport not reachable at startup", "error", err)
	}
	defer rpc.Close()
	fabric := switchrpc.NewFabric(rpc, hosts, logger)

	// Stores.
	domains := database.NewDomainRepository(db)
	users := database.NewUserRepository(db)
	settingRepo := database.NewSettingRepository(db)
	dialplans := database.NewDialplanRepository(db)
	extensions := database.NewExtensionRepository(db)
	gateways := database.NewGatewayRepository(db)
	sessions := database.NewHTTAPISessionRepository(db)
	devices := database.NewDeviceRepository(db)
	ringGroups := database.NewRingGroupRepository(db)
	ivrMenus := database.NewIVRMenuRepository(db)
	conferences := database.NewConferenceCentreRepository(db)
	callFlows := database.NewCallFlowRepository(db)

	resolver := settings.NewResolver(settingRepo, cch, logger)
	notifier := settings.NewNotifier()
	compiler := dialplan.NewCompiler(resolver, extensions, gateways, logger)

	coordinator := reload.New(cch, fabric, logger)
	coordinator.SetRecompiler(dialplan.NewRefresher(compiler, dialplans, domains, ivrMenus, conferences, callFlows, logger))
	go coordinator.Watch(appCtx, notifier.Subscribe())

	// Firewall reconciler over the configured registration store.
	var fwStore firewall.Store
	fwRepo := database.NewFirewallRepository(db)
	if cfg.FirewallStore == "postgres" {
		pg, err := pgstore.Open(appCtx, cfg.FirewallDSN)
		if err != nil {
			slog.Error("opening firewall store", "error", err)
			os.Exit(1)
		}
		fwStore = pg
	} else {
		fwStore = fwRepo
	}

	nodeName, _ := os.Hostname()
	var pub firewall.Publisher
	if broker != nil {
		pub = broker
	}
	announcer := firewall.NewAnnouncer(pub, nodeName, logger)
	runner := firewall.NewRunner(cfg.ScriptDir, logger)
	reconciler := firewall.NewReconciler(fwStore, runner, announcer, logger)

	if err := reconciler.Replay(appCtx); err != nil {
		slog.Error("replaying firewall sets", "error", err)
	}
	if broker != nil {
		consumer := firewall.NewConsumer(reconciler, logger)
		go func() {
			if err := broker.ConsumeEvents(appCtx, "tappbx_events_"+nodeName, eventBindings, consumer.Handle); err != nil {
				slog.Error("event consumer stopped", "error", err)
			}
		}()
	}

	throttle := api.NewThrottle(database.NewLoginAttemptRepository(db), resolver, reconciler, logger)

	apiSrv := api.NewServer(api.Deps{
		Domains:        domains,
		Users:          users,
		Settings:       settingRepo,
		Dialplans:      dialplans,
		Extensions:     extensions,
		InboundRoutes:  database.NewInboundRouteRepository(db),
		OutboundRoutes: database.NewOutboundRouteRepository(db),
		Gateways:       gateways,
		RingGroups:     ringGroups,
		IVRMenus:       ivrMenus,
		TimeConditions: database.NewTimeConditionRepository(db),
		CallFlows:      callFlows,
		Conferences:    conferences,
		Queues:         database.NewQueueRepository(db),
		Variables:      database.NewSwitchVariableRepository(db),
		ACLs:           database.NewACLRepository(db),
		Devices:        devices,
		Firewall:       fwRepo,
		Cache:          cch,
		Compiler:       compiler,
		Reload:         coordinator,
		Fabric:         fabric,
		Reconciler:     reconciler,
		Resolver:       resolver,
		Notifier:       notifier,
		Throttle:       throttle,
		TLSEnabled:     cfg.TLSEnabled(),
		CORSOrigins:    middleware.ParseCORSOrigins(cfg.CORSOrigins),
	}, secret)

	httapiSrv := httapi.NewServer(httapi.Deps{
		Sessions:    sessions,
		Domains:     domains,
		RingGroups:  ringGroups,
		Conferences: conferences,
		CallFlows:   callFlows,
		Dialplans:   dialplans,
		Compiler:    compiler,
		Reconciler:  reconciler,
	}, logger)

	provSrv := provision.NewServer(provision.Deps{
		Domains:  domains,
		Users:    users,
		Devices:  devices,
		Resolver: resolver,
		Renderer: provision.NewRenderer(settingRepo, devices, filepath.Join(cfg.DataDir, "provision")),
		Throttle: throttle,
	}, logger)

	root := chi.NewRouter()
	root.Mount("/app/httapi", httapiSrv)
	root.Mount("/app/provision", provSrv)
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		metrics.Register(reg, metrics.NewCollector(sessions, fwStore, fabric, time.Now()))
		root.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	root.Handle("/api/v1/*", apiSrv)
	root.Handle("/api/v1", apiSrv)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      root,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.TLSEnabled() {
			slog.Info("https server listening", "addr", srv.Addr)
			if err := srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
			return
		}
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var redirectSrv *http.Server
	if cfg.RedirectPort > 0 {
		redirectSrv = &http.Server{
			Addr:        fmt.Sprintf(":%d", cfg.RedirectPort),
			Handler:     middleware.HTTPSRedirectHandler(),
			ReadTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("https redirect listening", "addr", redirectSrv.Addr)
			if err := redirectSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("https redirect server error", "error", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	appCancel()
	if redirectSrv != nil {
		redirectSrv.Shutdown(ctx)
	}
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("tappbx stopped")
}

// jwtSecret decodes the configured signing secret, generating an ephemeral
// one when none is set. An ephemeral secret invalidates tokens on restart.
func jwtSecret(cfg *config.Config) ([]byte, error) {
	if cfg.JWTSecret != "" {
		secret, err := hex.DecodeString(cfg.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("jwt-secret must be hex: %w", err)
		}
		if len(secret) < 32 {
			return nil, fmt.Errorf("jwt-secret must be at least 32 bytes, got %d", len(secret))
		}
		return secret, nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	slog.Warn("no jwt secret configured, tokens will not survive a restart")
	return secret, nil
}
