// Package config defines all configuration structures for BizAtlas.  No I/O
// or parsing logic lives here, only plain data types and validation.
package config

import (
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// AllowedOrigins lists CORS origins for the map client; "*" allows any.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	// CompanyTable is the table the map layer reads geo-entities from.
	CompanyTable string `mapstructure:"company_table"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds Kafka producer/consumer parameters.
type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	GroupID         string        `mapstructure:"group_id"`
	AutoOffsetReset string        `mapstructure:"auto_offset_reset"` // "earliest" | "latest"
	ChangeTopic     string        `mapstructure:"change_topic"`
	AuditTopic      string        `mapstructure:"audit_topic"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`

	// Partitions and ReplicationFactor apply when the worker creates topics.
	Partitions        int `mapstructure:"partitions"`
	ReplicationFactor int `mapstructure:"replication_factor"`
}

// MinIOConfig holds MinIO / S3-compatible object-storage parameters.
type MinIOConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	AccessKey      string        `mapstructure:"access_key"`
	SecretKey      string        `mapstructure:"secret_key"`
	Bucket         string        `mapstructure:"bucket"`
	UseSSL         bool          `mapstructure:"use_ssl"`
	Region         string        `mapstructure:"region"`
	PresignExpiry  time.Duration `mapstructure:"presign_expiry"`
	SnapshotPrefix string        `mapstructure:"snapshot_prefix"`

	// SnapshotRetentionDays expires exported snapshots; 0 keeps them.
	SnapshotRetentionDays int `mapstructure:"snapshot_retention_days"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level        string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format       string `mapstructure:"format"` // "json" | "console"
	Output       string `mapstructure:"output"`
	EnableCaller bool   `mapstructure:"enable_caller"`
}

// MapConfig holds the filter-and-cluster tunables.
type MapConfig struct {
	// MinVisibleZoom: queries below this zoom render nothing.
	MinVisibleZoom int `mapstructure:"min_visible_zoom"`
	// MaxVisibleMarkers caps the number of items one visible query returns.
	MaxVisibleMarkers int `mapstructure:"max_visible_markers"`

	Radius    float64 `mapstructure:"radius"`
	Extent    float64 `mapstructure:"extent"`
	MinPoints int     `mapstructure:"min_points"`
	MinZoom   int     `mapstructure:"min_zoom"`
	MaxZoom   int     `mapstructure:"max_zoom"`

	DebounceDelay  time.Duration `mapstructure:"debounce_delay"`
	SessionIdleTTL time.Duration `mapstructure:"session_idle_ttl"`
	MaxSessions    int           `mapstructure:"max_sessions"`
	// SnapshotLoadTimeout bounds one shared company snapshot load.
	SnapshotLoadTimeout time.Duration `mapstructure:"snapshot_load_timeout"`
}

// AgentsConfig holds AI-agent runtime parameters.
type AgentsConfig struct {
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	CacheEnable bool          `mapstructure:"cache_enable"`
	// CatalogPath overrides the embedded prompt catalog when set.
	CatalogPath string `mapstructure:"catalog_path"`
	Audit       bool   `mapstructure:"audit"`
	// RunTimeout bounds one shared agent run (data reads plus completion).
	RunTimeout time.Duration `mapstructure:"run_timeout"`

	// RateLimit is the sustained per-client request rate on agent
	// endpoints, in requests per second; <= 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// LLMConfig selects and parameterises the completion gateway.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // "openai" | "gemini"
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.  Every infrastructure component
// and application service reads its settings from the relevant sub-struct.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Log      LogConfig      `mapstructure:"log"`
	Map      MapConfig      `mapstructure:"map"`
	Agents   AgentsConfig   `mapstructure:"agents"`
	LLM      LLMConfig      `mapstructure:"llm"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers treat any error as fatal.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	// Database
	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("config: database.max_conns must be >= 1, got %d", c.Database.MaxConns)
	}

	// Redis
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
	}

	// Kafka
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}
	if c.Kafka.GroupID == "" {
		return fmt.Errorf("config: kafka.group_id is required")
	}

	// Map
	if c.Map.MaxZoom < c.Map.MinZoom {
		return fmt.Errorf("config: map.max_zoom %d is below map.min_zoom %d", c.Map.MaxZoom, c.Map.MinZoom)
	}
	if c.Map.MaxZoom > 24 {
		return fmt.Errorf("config: map.max_zoom %d exceeds 24", c.Map.MaxZoom)
	}
	if c.Map.Radius <= 0 || c.Map.Extent <= 0 {
		return fmt.Errorf("config: map.radius and map.extent must be positive")
	}
	if c.Map.MinPoints < 2 {
		return fmt.Errorf("config: map.min_points must be >= 2, got %d", c.Map.MinPoints)
	}
	if c.Map.MaxVisibleMarkers < 1 {
		return fmt.Errorf("config: map.max_visible_markers must be >= 1, got %d", c.Map.MaxVisibleMarkers)
	}
	if c.Map.MaxSessions < 1 {
		return fmt.Errorf("config: map.max_sessions must be >= 1, got %d", c.Map.MaxSessions)
	}

	// LLM
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("config: llm.provider %q is invalid; expected openai|gemini", c.LLM.Provider)
	}
	if c.LLM.Provider == "openai" && c.LLM.BaseURL == "" {
		return fmt.Errorf("config: llm.base_url is required for the openai provider")
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}

//Personal.AI order the ending
