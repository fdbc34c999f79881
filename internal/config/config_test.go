package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/BizAtlas/internal/config"
)

// validConfig returns a Config that passes Validate() with all required fields set.
func validConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Database.User = "bizatlas"
	cfg.Database.Password = "secret"
	return cfg
}

func TestConfig_Validate_ValidConfig(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_Failures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"port zero", func(c *config.Config) { c.Server.Port = 0 }, "server.port"},
		{"port too high", func(c *config.Config) { c.Server.Port = 65536 }, "server.port"},
		{"bad mode", func(c *config.Config) { c.Server.Mode = "prod" }, "server.mode"},
		{"no db host", func(c *config.Config) { c.Database.Host = "" }, "database.host"},
		{"no db user", func(c *config.Config) { c.Database.User = "" }, "database.user"},
		{"no db name", func(c *config.Config) { c.Database.DBName = "" }, "database.db_name"},
		{"no redis", func(c *config.Config) { c.Redis.Addr = "" }, "redis.addr"},
		{"no brokers", func(c *config.Config) { c.Kafka.Brokers = nil }, "kafka.brokers"},
		{"zoom order", func(c *config.Config) { c.Map.MinZoom = 10; c.Map.MaxZoom = 5 }, "map.max_zoom"},
		{"zoom ceiling", func(c *config.Config) { c.Map.MaxZoom = 30 }, "map.max_zoom"},
		{"min points", func(c *config.Config) { c.Map.MinPoints = 1 }, "map.min_points"},
		{"marker cap", func(c *config.Config) { c.Map.MaxVisibleMarkers = -1 }, "map.max_visible_markers"},
		{"provider", func(c *config.Config) { c.LLM.Provider = "claude" }, "llm.provider"},
		{"openai base url", func(c *config.Config) { c.LLM.BaseURL = "" }, "llm.base_url"},
		{"log level", func(c *config.Config) { c.Log.Level = "trace" }, "log.level"},
		{"log format", func(c *config.Config) { c.Log.Format = "text" }, "log.format"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestConfig_Validate_GeminiNeedsNoBaseURL(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.LLM.Provider = "gemini"
	cfg.LLM.BaseURL = ""
	assert.NoError(t, cfg.Validate())
}

func TestServerConfig_Addr(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "127.0.0.1:9090", config.ServerConfig{Host: "127.0.0.1", Port: 9090}.Addr())
}

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	assert.Equal(t, config.DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, config.DefaultMinVisibleZoom, cfg.Map.MinVisibleZoom)
	assert.Equal(t, config.DefaultMaxVisibleMarkers, cfg.Map.MaxVisibleMarkers)
	assert.Equal(t, float64(config.DefaultClusterRadius), cfg.Map.Radius)
	assert.Equal(t, config.DefaultClusterMaxZoom, cfg.Map.MaxZoom)
	assert.Equal(t, config.DefaultDebounceDelay, cfg.Map.DebounceDelay)
	assert.Equal(t, config.DefaultSnapshotTimeout, cfg.Map.SnapshotLoadTimeout)
	assert.Equal(t, config.DefaultAgentRunTimeout, cfg.Agents.RunTimeout)
	assert.Equal(t, []string{config.DefaultKafkaBroker}, cfg.Kafka.Brokers)
	assert.Equal(t, config.DefaultLLMBaseURL, cfg.LLM.BaseURL)
	assert.Equal(t, config.DefaultCompanyTable, cfg.Database.CompanyTable)
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Server.Port = 9999
	cfg.Map.MaxVisibleMarkers = 50
	cfg.LLM.Provider = "gemini"
	config.ApplyDefaults(cfg)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Map.MaxVisibleMarkers)
	assert.Empty(t, cfg.LLM.BaseURL)
}

func TestApplyDefaults_Nil(t *testing.T) {
	t.Parallel()
	assert.NotPanics(t, func() { config.ApplyDefaults(nil) })
}

//Personal.AI order the ending
