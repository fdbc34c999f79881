package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
server:
  port: 8080
  mode: test
database:
  host: db.internal
  port: 5432
  user: bizatlas
  password: secret
  db_name: crm
redis:
  addr: redis.internal:6379
kafka:
  brokers: ["k1:9092", "k2:9092"]
  group_id: bizatlas
map:
  min_visible_zoom: 8
  max_visible_markers: 300
  debounce_delay: 250ms
llm:
  provider: gemini
  api_key: key
`

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FromFile_ValidConfig(t *testing.T) {
	cfg, err := Load(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 8, cfg.Map.MinVisibleZoom)
	assert.Equal(t, 300, cfg.Map.MaxVisibleMarkers)
	assert.Equal(t, 250*time.Millisecond, cfg.Map.DebounceDelay)
	assert.Equal(t, "gemini", cfg.LLM.Provider)

	// defaults fill what the file left out
	assert.Equal(t, DefaultClusterMaxZoom, cfg.Map.MaxZoom)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "server: ["))
	assert.ErrorIs(t, err, ErrConfigParseError)
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "server:\n  port: 70000\ndatabase:\n  user: u\n"))
	assert.ErrorIs(t, err, ErrConfigValidation)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	t.Setenv("BIZATLAS_SERVER_PORT", "9999")
	t.Setenv("BIZATLAS_DATABASE_HOST", "db-override")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "db-override", cfg.Database.Host)
}

func TestLoad_EnvOverride_KeyAbsentFromFile(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	t.Setenv("BIZATLAS_MINIO_BUCKET", "atlas-snapshots")
	t.Setenv("BIZATLAS_MAP_MAX_ZOOM", "14")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "atlas-snapshots", cfg.MinIO.Bucket)
	assert.Equal(t, 14, cfg.Map.MaxZoom)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BIZATLAS_DATABASE_USER", "env-user")
	t.Setenv("BIZATLAS_LLM_PROVIDER", "gemini")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-user", cfg.Database.User)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, DefaultDBHost, cfg.Database.Host)
}

func TestLoadFromEnv_MissingRequired(t *testing.T) {
	_, err := LoadFromEnv()
	assert.ErrorIs(t, err, ErrConfigValidation)
}

func TestLoadOrEnv_PrefersFile(t *testing.T) {
	cfg, err := LoadOrEnv(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, "crm", cfg.Database.DBName)
}

func TestMustLoad_Panics(t *testing.T) {
	assert.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "nope.yaml")) })
}

func TestWatch_InvokesCallbackOnChange(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)

	changed := make(chan *Config, 1)
	require.NoError(t, Watch(path, func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	}, nil))

	updated := validConfigYAML + "log:\n  level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case cfg := <-changed:
		assert.Equal(t, "debug", cfg.Log.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("watch callback not invoked")
	}
}

//Personal.AI order the ending
