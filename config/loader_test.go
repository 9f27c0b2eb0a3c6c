// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Zero(t, cfg.Server.WriteTimeout)

	assert.Equal(t, "agent_session_", cfg.Session.DirPrefix)
	assert.Equal(t, 24*time.Hour, cfg.Session.MaxAge)
	assert.Equal(t, 150, cfg.Session.RecursionLimit)

	assert.Equal(t, "openai/gpt-4o-2024-11-20", cfg.LLM.Model)
	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.Equal(t, "python3", cfg.Sandbox.Interpreter)

	assert.False(t, cfg.Cache.Enabled)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "sqlite", cfg.Database.Driver)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestServerConfig_Addr(t *testing.T) {
	assert.Equal(t, "0.0.0.0:8000", DefaultServerConfig().Addr())
}

// --- Loader 测试 ---

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.HTTPPort)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  http_port: 8888
  read_timeout: 60s
  cors_allowed_origins: ["https://a.example", "https://b.example"]

session:
  max_age: 2h
  recursion_limit: 40

llm:
  model: "openai/gpt-4o-mini"
  temperature: 0.5

cache:
  enabled: true
  addr: "redis.example.com:6379"
  db: 1

database:
  enabled: true
  driver: postgres

log:
  level: "debug"
  format: "console"
`)

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, 2*time.Hour, cfg.Session.MaxAge)
	assert.Equal(t, 40, cfg.Session.RecursionLimit)
	// 未出现在文件中的字段保留默认值
	assert.Equal(t, "agent_session_", cfg.Session.DirPrefix)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 0.5, cfg.LLM.Temperature)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "redis.example.com:6379", cfg.Cache.Addr)
	assert.Equal(t, 1, cfg.Cache.DB)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("HATEAMS_SERVER_HTTP_PORT", "7777")
	t.Setenv("HATEAMS_SERVER_RATE_LIMIT_RPS", "2.5")
	t.Setenv("HATEAMS_SESSION_REAP_INTERVAL", "5m")
	t.Setenv("HATEAMS_LLM_MODEL", "env-model")
	t.Setenv("HATEAMS_CACHE_ENABLED", "true")
	t.Setenv("HATEAMS_SEARCH_SCRAPE_MAX_BYTES", "1024")
	t.Setenv("HATEAMS_LOG_OUTPUT_PATHS", "stdout, /tmp/hateams.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, 2.5, cfg.Server.RateLimitRPS)
	assert.Equal(t, 5*time.Minute, cfg.Session.ReapInterval)
	assert.Equal(t, "env-model", cfg.LLM.Model)
	assert.True(t, cfg.Cache.Enabled)
	assert.EqualValues(t, 1024, cfg.Search.ScrapeMaxBytes)
	assert.Equal(t, []string{"stdout", "/tmp/hateams.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  http_port: 8888
llm:
  model: "yaml-model"
  provider: "yaml-provider"
`)
	t.Setenv("HATEAMS_SERVER_HTTP_PORT", "9999")
	t.Setenv("HATEAMS_LLM_MODEL", "env-model")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "env-model", cfg.LLM.Model)
	assert.Equal(t, "yaml-provider", cfg.LLM.Provider)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("HATEAMS_SESSION_MAX_AGE", "forever")
	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HATEAMS_SESSION_MAX_AGE")
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoader_CredentialEnv(t *testing.T) {
	t.Setenv(EnvOpenRouterAPIKey, "or-key")
	t.Setenv(EnvTavilyAPIKey, "tv-key")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "or-key", cfg.LLM.APIKey)
	assert.Equal(t, "tv-key", cfg.Search.APIKey)

	// 带前缀的变量优先
	t.Setenv("HATEAMS_LLM_API_KEY", "prefixed")
	cfg, err = NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.LLM.APIKey)
}

func TestLoader_DotEnv(t *testing.T) {
	t.Setenv(EnvOpenRouterAPIKey, "")
	require.NoError(t, os.Unsetenv(EnvOpenRouterAPIKey))
	t.Setenv(EnvTavilyAPIKey, "from-shell")
	path := writeFile(t, ".env", "OPENROUTER_API_KEY=from-dotenv\nTAVILY_API_KEY=from-dotenv\n")

	cfg, err := NewLoader().WithDotEnv(path, filepath.Join(t.TempDir(), "missing.env")).Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.LLM.APIKey)
	// 已设置的变量不被覆盖
	assert.Equal(t, "from-shell", cfg.Search.APIKey)
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("HATEAMS_SERVER_HTTP_PORT", "70000")

	_, err := NewLoader().WithValidator((*Config).Validate).Load()
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/non/existent/path/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := writeFile(t, "invalid.yaml", "server:\n  http_port: [invalid\n  this is not valid yaml\n")

	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid default config", func(c *Config) {}, false},
		{"negative HTTP port", func(c *Config) { c.Server.HTTPPort = -1 }, true},
		{"HTTP port too large", func(c *Config) { c.Server.HTTPPort = 70000 }, true},
		{"metrics port clash", func(c *Config) { c.Server.MetricsPort = c.Server.HTTPPort }, true},
		{"metrics disabled", func(c *Config) { c.Server.MetricsPort = 0 }, false},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }, true},
		{"auth with secret", func(c *Config) { c.Auth.Enabled, c.Auth.JWTSecret = true, "s" }, false},
		{"zero recursion limit", func(c *Config) { c.Session.RecursionLimit = 0 }, true},
		{"temperature too high", func(c *Config) { c.LLM.Temperature = 3 }, true},
		{"zero max iterations", func(c *Config) { c.LLM.MaxIterations = 0 }, true},
		{"unknown driver", func(c *Config) { c.Database.Enabled, c.Database.Driver = true, "oracle" }, true},
		{"unknown driver unused", func(c *Config) { c.Database.Driver = "oracle" }, false},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 1.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateJoinsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.HTTPPort = 0
	cfg.Session.RecursionLimit = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http_port")
	assert.Contains(t, err.Error(), "recursion_limit")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name:     "postgres DSN",
			config:   DatabaseConfig{Driver: "postgres", Host: "localhost", Port: 5432, User: "user", Password: "pass", Name: "dbname", SSLMode: "disable"},
			expected: "host=localhost port=5432 user=user password=pass dbname=dbname sslmode=disable",
		},
		{
			name:     "mysql DSN",
			config:   DatabaseConfig{Driver: "mysql", Host: "localhost", Port: 3306, User: "user", Password: "pass", Name: "dbname"},
			expected: "user:pass@tcp(localhost:3306)/dbname?parseTime=true",
		},
		{
			name:     "sqlite DSN",
			config:   DatabaseConfig{Driver: "sqlite", Name: "/path/to/db.sqlite"},
			expected: "/path/to/db.sqlite",
		},
		{
			name:     "unknown driver",
			config:   DatabaseConfig{Driver: "unknown"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}
