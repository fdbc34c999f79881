package cli

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/turtacn/BizAtlas/internal/application/agents"
	"github.com/turtacn/BizAtlas/internal/config"
	"github.com/turtacn/BizAtlas/internal/domain/geoentity"
	"github.com/turtacn/BizAtlas/internal/infrastructure/database/postgres"
	"github.com/turtacn/BizAtlas/internal/infrastructure/database/postgres/repositories"
	redisinfra "github.com/turtacn/BizAtlas/internal/infrastructure/database/redis"
	"github.com/turtacn/BizAtlas/internal/infrastructure/llm"
	"github.com/turtacn/BizAtlas/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/prometheus"
)

const metricsNamespace = "bizatlas"

// app opens infrastructure on first use and closes it in reverse order.
type app struct {
	cfg       *config.Config
	logger    logging.Logger
	collector prom.MetricsCollector
	metrics   *prom.AppMetrics

	conn      *postgres.Connection
	redis     *redisinfra.Client
	producer  *kafka.Producer
	companies *repositories.CompanyRepository

	closers []io.Closer
}

func newApp(cfg *config.Config, logger logging.Logger) (*app, error) {
	collector, err := prom.NewMetricsCollector(prom.CollectorConfig{
		Namespace:            metricsNamespace,
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		return nil, err
	}
	collector.MustRegister(buildInfo())
	return &app{
		cfg:       cfg,
		logger:    logger,
		collector: collector,
		metrics:   prom.NewAppMetrics(collector),
	}, nil
}

// buildInfo exports the binary version as a constant-1 gauge.
func buildInfo() prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Name:        "build_info",
		Help:        "Build version of the running binary",
		ConstLabels: prometheus.Labels{"version": Version, "commit": GitCommit},
	}, func() float64 { return 1 })
}

func (a *app) postgres() (*postgres.Connection, error) {
	if a.conn != nil {
		return a.conn, nil
	}
	conn, err := postgres.NewConnection(a.cfg.Database, a.logger)
	if err != nil {
		return nil, err
	}
	a.conn = conn
	a.closers = append(a.closers, conn)
	return conn, nil
}

func (a *app) redisClient() (*redisinfra.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	rc, err := redisinfra.NewClient(a.cfg.Redis, a.logger)
	if err != nil {
		return nil, err
	}
	a.redis = rc
	a.closers = append(a.closers, rc)
	return rc, nil
}

func (a *app) kafkaProducer() (*kafka.Producer, error) {
	if a.producer != nil {
		return a.producer, nil
	}
	p, err := kafka.NewProducer(a.cfg.Kafka, a.metrics, a.logger)
	if err != nil {
		return nil, err
	}
	a.producer = p
	a.closers = append(a.closers, p)
	return p, nil
}

func (a *app) companyRepository() (*repositories.CompanyRepository, error) {
	if a.companies != nil {
		return a.companies, nil
	}
	conn, err := a.postgres()
	if err != nil {
		return nil, err
	}
	a.companies = repositories.NewCompanyRepository(conn, a.cfg.Database.CompanyTable, a.metrics, a.logger)
	return a.companies, nil
}

// snapshotService reads companies from PostgreSQL and versions them in Redis.
func (a *app) snapshotService() (*geoentity.SnapshotService, error) {
	companies, err := a.companyRepository()
	if err != nil {
		return nil, err
	}
	rc, err := a.redisClient()
	if err != nil {
		return nil, err
	}
	scores := repositories.NewScoreRepository(a.conn, a.metrics)
	return geoentity.NewSnapshotService(companies, scores, redisinfra.NewVersionStore(rc), a.logger,
		geoentity.WithLoadTimeout(a.cfg.Map.SnapshotLoadTimeout)), nil
}

// agentService wires the catalog, the agent data reader and the LLM gateway.
// The Redis result cache and the Kafka audit trail follow the agents section.
func (a *app) agentService(ctx context.Context) (*agents.Service, error) {
	catalog, err := agents.LoadCatalog(a.cfg.Agents.CatalogPath)
	if err != nil {
		return nil, err
	}
	companies, err := a.companyRepository()
	if err != nil {
		return nil, err
	}
	gateway, err := llm.New(ctx, a.cfg.LLM, a.metrics, a.logger)
	if err != nil {
		return nil, err
	}

	opts := []agents.ServiceOption{agents.WithRunTimeout(a.cfg.Agents.RunTimeout)}
	if a.cfg.Agents.CacheEnable {
		rc, err := a.redisClient()
		if err != nil {
			return nil, err
		}
		cache := redisinfra.NewCache(rc, a.logger, redisinfra.WithNamespace("agents"), redisinfra.WithDefaultTTL(a.cfg.Agents.CacheTTL))
		opts = append(opts, agents.WithCache(cache, a.cfg.Agents.CacheTTL))
	}
	if a.cfg.Agents.Audit {
		p, err := a.kafkaProducer()
		if err != nil {
			return nil, err
		}
		opts = append(opts, agents.WithAudit(kafka.NewAuditPublisher(p, a.cfg.Kafka.AuditTopic)))
	}

	reader := repositories.NewAgentDataRepository(a.conn, companies, a.metrics)
	a.logger.Info("Agent service ready",
		logging.Strings("agents", catalog.Names()),
		logging.String("provider", gateway.Provider()),
		logging.String("model", gateway.Model()),
		logging.Bool("cache", a.cfg.Agents.CacheEnable),
		logging.Bool("audit", a.cfg.Agents.Audit),
	)
	return agents.NewService(catalog, reader, gateway, a.metrics, a.logger, opts...), nil
}

// Close releases everything opened, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("Failed to close resource", logging.Err(err))
		}
	}
	a.closers = nil
}

//Personal.AI order the ending
