package serve

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/planetrip/planet-chat/internal/config"
	"github.com/planetrip/planet-chat/internal/plugin/route/accounts"
	"github.com/planetrip/planet-chat/internal/plugin/route/admin"
	"github.com/planetrip/planet-chat/internal/plugin/route/members"
	"github.com/planetrip/planet-chat/internal/plugin/route/messages"
	"github.com/planetrip/planet-chat/internal/plugin/route/planets"
	"github.com/planetrip/planet-chat/internal/plugin/route/receipts"
	"github.com/planetrip/planet-chat/internal/plugin/route/search"
	routesystem "github.com/planetrip/planet-chat/internal/plugin/route/system"
	storemetrics "github.com/planetrip/planet-chat/internal/plugin/store/metrics"
	registrycache "github.com/planetrip/planet-chat/internal/registry/cache"
	registrymigrate "github.com/planetrip/planet-chat/internal/registry/migrate"
	registrynotify "github.com/planetrip/planet-chat/internal/registry/notify"
	registryroute "github.com/planetrip/planet-chat/internal/registry/route"
	registrystore "github.com/planetrip/planet-chat/internal/registry/store"
	"github.com/planetrip/planet-chat/internal/security"
	"github.com/planetrip/planet-chat/internal/service"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config          *config.Config
	Store           registrystore.ChatStore
	Router          *gin.Engine
	Running         *RunningServers
	closeManagement func(context.Context) error
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.closeManagement != nil {
		_ = s.closeManagement(ctx)
	}
	return s.Running.Close(ctx)
}

// StartServer initializes all subsystems and starts the HTTP server.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting planet chat",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"cache", cfg.CacheType,
		"notifier", cfg.NotifierType,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	// Run migrations
	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	// Initialize cache and inject into context so store loaders can read it.
	if cacheLoader, err := registrycache.Select(cfg.CacheType); err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
	} else if unreadCache, err := cacheLoader(ctx); err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
	} else {
		ctx = registrycache.WithUnreadCacheContext(ctx, unreadCache)
	}

	// Initialize store
	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)

	// Initialize notifier (optional; fanout still records notification rows).
	var notifier registrynotify.Notifier
	if notifyLoader, err := registrynotify.Select(cfg.NotifierType); err != nil {
		log.Warn("Notifier not available", "notifier", cfg.NotifierType, "err", err)
	} else if notifier, err = notifyLoader(ctx); err != nil {
		log.Warn("Failed to initialize notifier", "notifier", cfg.NotifierType, "err", err)
	}

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	router.Use(security.AdminAuditMiddleware(cfg.RequireJustification))
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	// Mount main route plugins on the main router.
	if err := registryroute.Mount(router, registryroute.RouteTypeMain); err != nil {
		return nil, err
	}

	// Create shared token resolver and auth middleware.
	resolver := security.NewTokenResolver(cfg)
	auth := security.AuthMiddleware(resolver)

	// Mount API routes
	accounts.MountRoutes(router, store, auth)
	planets.MountRoutes(router, store, auth)
	members.MountRoutes(router, store, auth)
	messages.MountRoutes(router, store, auth)
	search.MountRoutes(router, store, auth)
	receipts.MountRoutes(router, store, auth)

	// Mount Admin API routes
	admin.MountRoutes(router, store, auth)

	// Start background services
	taskProc := service.NewTaskProcessor(store, notifier)
	go taskProc.Start(ctx)

	reindexer := service.NewReindexer(store, cfg.ReindexBatchSize)
	go reindexer.Start(ctx)

	// Mount management route plugins. If a dedicated management port is configured,
	// run them on a bare gin engine served by the management server. Otherwise,
	// mount them on the main router so existing single-port behaviour is unchanged.
	var closeManagement func(context.Context) error
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(security.AccessLogMiddleware())
		}
		if err := registryroute.Mount(mgmtRouter, registryroute.RouteTypeManagement); err != nil {
			return nil, err
		}
		// Management listener shares TLS cert/key with the main listener.
		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		_, closeManagement, err = startManagementServer(mgmtCfg, mgmtRouter)
		if err != nil {
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
	} else {
		if err := registryroute.Mount(router, registryroute.RouteTypeManagement); err != nil {
			return nil, err
		}
	}

	// Start single-port HTTP
	running, err := StartSinglePortHTTP(ctx, cfg.Listener, router)
	if err != nil {
		return nil, err
	}

	log.Info("Server listening",
		"port", running.Port,
		"plaintext", cfg.Listener.EnablePlainText,
		"tls", cfg.Listener.EnableTLS,
	)

	routesystem.MarkReady()
	return &Server{
		Config:          cfg,
		Store:           store,
		Router:          router,
		Running:         running,
		closeManagement: closeManagement,
	}, nil
}
