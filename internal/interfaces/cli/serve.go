package cli

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/turtacn/BizAtlas/internal/application/viewport"
	"github.com/turtacn/BizAtlas/internal/config"
	"github.com/turtacn/BizAtlas/internal/infrastructure/database/postgres"
	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BizAtlas/internal/infrastructure/storage/minio"
	httpserver "github.com/turtacn/BizAtlas/internal/interfaces/http"
	"github.com/turtacn/BizAtlas/internal/interfaces/http/handlers"
	"github.com/turtacn/BizAtlas/internal/interfaces/http/middleware"
)

const limiterCleanupInterval = 5 * time.Minute

type serveOptions struct {
	migrate bool
	watch   bool
}

// NewServeCmd runs the HTTP API.
func NewServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the map and agent HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			cfg, err := cliCtx.Config()
			if err != nil {
				return err
			}
			logger, err := serviceLogger(cfg)
			if err != nil {
				return err
			}
			logging.SetDefault(logger)
			defer logger.Sync() //nolint:errcheck
			return runServe(cmd.Context(), cliCtx.Options.ConfigPath, cfg, logger, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.migrate, "migrate", true, "apply pending schema migrations before serving")
	cmd.Flags().BoolVar(&opts.watch, "watch-config", true, "log edits to the config file that need a restart")
	return cmd
}

func runServe(ctx context.Context, configPath string, cfg *config.Config, logger logging.Logger, opts *serveOptions) error {
	gin.SetMode(cfg.Server.Mode)
	logger.Info("Starting BizAtlas API server",
		logging.String("version", Version),
		logging.String("addr", cfg.Server.Addr()),
	)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.migrate {
		if err := postgres.NewMigrator(postgres.BuildDSN(cfg.Database), logger).Up(); err != nil {
			return err
		}
	}

	snapshots, err := a.snapshotService()
	if err != nil {
		return err
	}

	var registryOpts []viewport.RegistryOption
	if cfg.MinIO.Endpoint != "" {
		store, err := minio.NewSnapshotStore(ctx, cfg.MinIO, logger)
		if err != nil {
			logger.Warn("Snapshot export disabled", logging.Err(err))
		} else {
			registryOpts = append(registryOpts, viewport.WithSnapshotStore(store))
		}
	}
	registry := viewport.NewRegistry(viewport.ConfigFromMap(cfg.Map), snapshots, a.metrics, logger, registryOpts...)
	registry.Start()
	defer registry.Shutdown()

	agentSvc, err := a.agentService(ctx)
	if err != nil {
		return err
	}

	routerCfg := httpserver.RouterConfig{
		MapHandler:   handlers.NewMapHandler(registry, logger),
		AgentHandler: handlers.NewAgentHandler(agentSvc),
		HealthHandler: handlers.NewHealthHandler(Version,
			handlers.NewChecker("postgres", a.conn.HealthCheck),
			handlers.NewChecker("redis", a.redis.Ping),
		),
		Logging:          middleware.DefaultLoggingConfig(),
		MaxBodySize:      cfg.Server.MaxBodySize,
		Logger:           logger,
		Metrics:          a.metrics,
		MetricsCollector: a.collector,
	}
	if len(cfg.Server.AllowedOrigins) > 0 {
		cors := middleware.DefaultCORSConfig()
		cors.AllowedOrigins = cfg.Server.AllowedOrigins
		cors.AllowWildcard = true
		routerCfg.CORS = &cors
	}
	if cfg.Agents.RateLimit > 0 {
		limiter := middleware.NewTokenBucketLimiter(cfg.Agents.RateLimit, cfg.Agents.RateBurst, limiterCleanupInterval)
		defer limiter.Stop()
		routerCfg.AgentLimiter = limiter
	}

	if opts.watch && configPath != "" {
		watchConfig(configPath, cfg, logger)
	}

	srv := httpserver.NewServer(cfg.Server, httpserver.NewRouter(routerCfg), logger)
	srv.OnShutdown(registry.Shutdown)
	return serveUntilDone(ctx, srv, cfg.Server.ShutdownTimeout, logger)
}

type stoppable interface {
	Start() error
	Stop(ctx context.Context) error
}

// serveUntilDone runs srv until ctx is cancelled or it fails, then drains it.
func serveUntilDone(ctx context.Context, srv stoppable, timeout time.Duration, logger logging.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		return err
	}
	return <-errCh
}

// watchConfig reports config edits.  Sections wired into long-lived
// components only take effect after a restart.
func watchConfig(path string, current *config.Config, logger logging.Logger) {
	err := config.Watch(path, func(next *config.Config) {
		logger.Warn("Configuration file changed; restart to apply",
			logging.String("path", path),
			logging.Bool("map_changed", next.Map != current.Map),
			logging.Bool("log_changed", next.Log != current.Log),
		)
	}, func(err error) {
		logger.Error("Configuration reload rejected", logging.Err(err))
	})
	if err != nil {
		logger.Warn("Config watch disabled", logging.Err(err))
	}
}

//Personal.AI order the ending
