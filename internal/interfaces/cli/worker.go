package cli

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/turtacn/BizAtlas/internal/application/changefeed"
	"github.com/turtacn/BizAtlas/internal/config"
	redisinfra "github.com/turtacn/BizAtlas/internal/infrastructure/database/redis"
	"github.com/turtacn/BizAtlas/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/BizAtlas/internal/interfaces/http"
	"github.com/turtacn/BizAtlas/internal/interfaces/http/handlers"
	"github.com/turtacn/BizAtlas/internal/interfaces/http/middleware"
)

const defaultWorkerHealthPort = 8081

type workerOptions struct {
	healthPort   int
	ensureTopics bool
}

// NewWorkerCmd runs the change-feed consumer.
func NewWorkerCmd() *cobra.Command {
	opts := &workerOptions{}
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume company change events and bump the snapshot version",
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
			return runWorker(cmd.Context(), cfg, logger, opts)
		},
	}
	cmd.Flags().IntVar(&opts.healthPort, "health-port", defaultWorkerHealthPort, "port for /healthz and /metrics; 0 disables")
	cmd.Flags().BoolVar(&opts.ensureTopics, "ensure-topics", true, "create the change and audit topics when missing")
	return cmd
}

func runWorker(ctx context.Context, cfg *config.Config, logger logging.Logger, opts *workerOptions) error {
	logger.Info("Starting BizAtlas worker",
		logging.String("version", Version),
		logging.String("topic", cfg.Kafka.ChangeTopic),
		logging.String("group", cfg.Kafka.GroupID),
	)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	rc, err := a.redisClient()
	if err != nil {
		return err
	}

	if opts.ensureTopics {
		if err := ensureTopics(ctx, cfg.Kafka, logger); err != nil {
			return err
		}
	}

	handler := changefeed.NewHandler(redisinfra.NewVersionStore(rc), nil, a.metrics, logger)
	consumer, err := kafka.NewConsumer(cfg.Kafka, []string{cfg.Kafka.ChangeTopic}, a.metrics, logger)
	if err != nil {
		return err
	}
	consumer.Subscribe(cfg.Kafka.ChangeTopic, handler.Handle)
	if err := consumer.Start(ctx); err != nil {
		return err
	}
	defer consumer.Close()

	if opts.healthPort <= 0 {
		<-ctx.Done()
		logger.Info("Shutting down")
		return nil
	}

	gin.SetMode(cfg.Server.Mode)
	router := httpserver.NewRouter(httpserver.RouterConfig{
		HealthHandler:    handlers.NewHealthHandler(Version, handlers.NewChecker("redis", rc.Ping)),
		Logging:          middleware.DefaultLoggingConfig(),
		Logger:           logger,
		Metrics:          a.metrics,
		MetricsCollector: a.collector,
	})
	srv := httpserver.NewServer(config.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         opts.healthPort,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}, router, logger)
	return serveUntilDone(ctx, srv, cfg.Server.ShutdownTimeout, logger)
}

func ensureTopics(ctx context.Context, cfg config.KafkaConfig, logger logging.Logger) error {
	tm, err := kafka.NewTopicManager(cfg.Brokers, logger)
	if err != nil {
		return err
	}
	defer tm.Close()
	return tm.EnsureTopics(ctx, kafka.Topics(cfg))
}

//Personal.AI order the ending
