package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerHost = "0.0.0.0"
	DefaultServerPort = 8080
	DefaultServerMode = "release"

	DefaultShutdownTimeout = 15 * time.Second

	DefaultDBHost       = "localhost"
	DefaultDBPort       = 5432
	DefaultDBName       = "bizatlas"
	DefaultDBMaxConns   = 25
	DefaultCompanyTable = "companies"

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "bizatlas:"

	DefaultKafkaBroker      = "localhost:9092"
	DefaultKafkaGroupID     = "bizatlas-worker"
	DefaultKafkaChangeTopic = "companies.changed"
	DefaultKafkaAuditTopic  = "agents.completed"

	DefaultMinIOEndpoint       = "localhost:9000"
	DefaultMinIOBucket         = "bizatlas"
	DefaultMinIOSnapshotPrefix = "snapshots/"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMinVisibleZoom    = 7
	DefaultMaxVisibleMarkers = 500
	DefaultClusterRadius     = 60
	DefaultClusterExtent     = 512
	DefaultClusterMinPoints  = 2
	DefaultClusterMaxZoom    = 16
	DefaultDebounceDelay     = 300 * time.Millisecond
	DefaultSessionIdleTTL    = 30 * time.Minute
	DefaultMaxSessions       = 1000
	DefaultSnapshotTimeout   = 30 * time.Second

	DefaultAgentCacheTTL   = 10 * time.Minute
	DefaultAgentRateBurst  = 5
	DefaultAgentRunTimeout = 90 * time.Second

	DefaultLLMProvider = "openai"
	DefaultLLMModel    = "gpt-4o-mini"
	DefaultLLMTimeout  = 60 * time.Second
	DefaultLLMBaseURL  = "https://api.openai.com/v1"
)

// ApplyDefaults fills every zero-value field in cfg with the default.  Fields
// already set by the caller are left unchanged so explicit configuration
// always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 1 << 20
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = cfg.Database.MaxConns / 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = time.Hour
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.CompanyTable == "" {
		cfg.Database.CompanyTable = DefaultCompanyTable
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 20
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = time.Hour
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "latest"
	}
	if cfg.Kafka.ChangeTopic == "" {
		cfg.Kafka.ChangeTopic = DefaultKafkaChangeTopic
	}
	if cfg.Kafka.AuditTopic == "" {
		cfg.Kafka.AuditTopic = DefaultKafkaAuditTopic
	}
	if cfg.Kafka.MaxRetries == 0 {
		cfg.Kafka.MaxRetries = 3
	}
	if cfg.Kafka.RetryBackoff == 0 {
		cfg.Kafka.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = 50 * time.Millisecond
	}
	if cfg.Kafka.Partitions == 0 {
		cfg.Kafka.Partitions = 3
	}
	if cfg.Kafka.ReplicationFactor == 0 {
		cfg.Kafka.ReplicationFactor = 1
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.MinIO.PresignExpiry == 0 {
		cfg.MinIO.PresignExpiry = time.Hour
	}
	if cfg.MinIO.SnapshotPrefix == "" {
		cfg.MinIO.SnapshotPrefix = DefaultMinIOSnapshotPrefix
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Map ───────────────────────────────────────────────────────────────────
	// MinZoom 0 is meaningful and is the zero value, so it is never defaulted.
	if cfg.Map.MinVisibleZoom == 0 {
		cfg.Map.MinVisibleZoom = DefaultMinVisibleZoom
	}
	if cfg.Map.MaxVisibleMarkers == 0 {
		cfg.Map.MaxVisibleMarkers = DefaultMaxVisibleMarkers
	}
	if cfg.Map.Radius == 0 {
		cfg.Map.Radius = DefaultClusterRadius
	}
	if cfg.Map.Extent == 0 {
		cfg.Map.Extent = DefaultClusterExtent
	}
	if cfg.Map.MinPoints == 0 {
		cfg.Map.MinPoints = DefaultClusterMinPoints
	}
	if cfg.Map.MaxZoom == 0 {
		cfg.Map.MaxZoom = DefaultClusterMaxZoom
	}
	if cfg.Map.DebounceDelay == 0 {
		cfg.Map.DebounceDelay = DefaultDebounceDelay
	}
	if cfg.Map.SessionIdleTTL == 0 {
		cfg.Map.SessionIdleTTL = DefaultSessionIdleTTL
	}
	if cfg.Map.MaxSessions == 0 {
		cfg.Map.MaxSessions = DefaultMaxSessions
	}
	if cfg.Map.SnapshotLoadTimeout == 0 {
		cfg.Map.SnapshotLoadTimeout = DefaultSnapshotTimeout
	}

	// ── Agents ────────────────────────────────────────────────────────────────
	if cfg.Agents.CacheTTL == 0 {
		cfg.Agents.CacheTTL = DefaultAgentCacheTTL
	}
	if cfg.Agents.RunTimeout == 0 {
		cfg.Agents.RunTimeout = DefaultAgentRunTimeout
	}
	if cfg.Agents.RateLimit > 0 && cfg.Agents.RateBurst <= 0 {
		cfg.Agents.RateBurst = DefaultAgentRateBurst
	}

	// ── LLM ───────────────────────────────────────────────────────────────────
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = DefaultLLMProvider
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultLLMModel
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = DefaultLLMTimeout
	}
	if cfg.LLM.BaseURL == "" && cfg.LLM.Provider == "openai" {
		cfg.LLM.BaseURL = DefaultLLMBaseURL
	}
}

//Personal.AI order the ending
