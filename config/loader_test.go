// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "text", cfg.Chat.DefaultMode)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s
  cors_allowed_origins: ["https://app.example.com"]

chat:
  default_mode: steps
  model: "gpt-4o"
  max_history_tokens: 4000
  temperature: 0.2

llm:
  base_url: "http://localhost:11434"
  max_retries: 1

redis:
  enabled: true
  addr: "redis.example.com:6379"
  password: "secret"
  chat_ttl: 1h

database:
  enabled: true
  driver: sqlite
  name: /tmp/streamform.db

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSAllowedOrigins)

	assert.Equal(t, "steps", cfg.Chat.DefaultMode)
	assert.Equal(t, "gpt-4o", cfg.Chat.Model)
	assert.Equal(t, 4000, cfg.Chat.MaxHistoryTokens)
	assert.Equal(t, 0.2, cfg.Chat.Temperature)
	// untouched fields keep their defaults
	assert.Equal(t, 2048, cfg.Chat.MaxTokens)

	assert.Equal(t, "http://localhost:11434", cfg.LLM.BaseURL)
	assert.Equal(t, 1, cfg.LLM.MaxRetries)

	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, time.Hour, cfg.Redis.ChatTTL)

	assert.Equal(t, "/tmp/streamform.db", cfg.Database.DSN())

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("STREAMFORM_SERVER_HTTP_PORT", "7777")
	t.Setenv("STREAMFORM_SERVER_RATE_LIMIT_RPS", "2.5")
	t.Setenv("STREAMFORM_CHAT_DEFAULT_MODE", "qa")
	t.Setenv("STREAMFORM_CHAT_TEMPERATURE", "0.9")
	t.Setenv("STREAMFORM_LLM_API_KEY", "sk-test")
	t.Setenv("STREAMFORM_LLM_TIMEOUT", "45s")
	t.Setenv("STREAMFORM_REDIS_ENABLED", "true")
	t.Setenv("STREAMFORM_LOG_OUTPUT_PATHS", "stdout, /var/log/sf.log")
	t.Setenv("STREAMFORM_JWT_SECRET", "hmac")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, 2.5, cfg.Server.RateLimitRPS)
	assert.Equal(t, "qa", cfg.Chat.DefaultMode)
	assert.Equal(t, 0.9, cfg.Chat.Temperature)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"stdout", "/var/log/sf.log"}, cfg.Log.OutputPaths)
	assert.Equal(t, "hmac", cfg.JWT.Secret)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
chat:
  model: "yaml-model"
  system_prompt: "yaml prompt"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	t.Setenv("STREAMFORM_SERVER_HTTP_PORT", "9999")
	t.Setenv("STREAMFORM_CHAT_MODEL", "env-model")

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "env-model", cfg.Chat.Model)
	assert.Equal(t, "yaml prompt", cfg.Chat.SystemPrompt)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")

	cfg, err := NewLoader().
		WithEnvPrefix("MYAPP").
		Load()
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("STREAMFORM_LLM_TIMEOUT", "soon")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STREAMFORM_LLM_TIMEOUT")
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("STREAMFORM_SERVER_HTTP_PORT", "80")

	_, err := NewLoader().
		WithValidator(func(cfg *Config) error {
			if cfg.Server.HTTPPort < 1024 {
				return assert.AnError
			}
			return nil
		}).
		Load()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath("/non/existent/path/config.yaml").
		Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
server:
  http_port: [invalid
  this is not valid yaml
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidYAML), 0644))

	_, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{name: "invalid HTTP port", modify: func(c *Config) { c.Server.HTTPPort = 70000 }, wantErr: "invalid HTTP port"},
		{name: "negative rate limit", modify: func(c *Config) { c.Server.RateLimitRPS = -1 }, wantErr: "rate_limit_rps"},
		{name: "unknown mode", modify: func(c *Config) { c.Chat.DefaultMode = "poem" }, wantErr: `unknown chat mode "poem"`},
		{name: "temperature too high", modify: func(c *Config) { c.Chat.Temperature = 3 }, wantErr: "temperature"},
		{name: "negative history budget", modify: func(c *Config) { c.Chat.MaxHistoryTokens = -1 }, wantErr: "token limits"},
		{name: "missing base url", modify: func(c *Config) { c.LLM.BaseURL = "" }, wantErr: "base_url"},
		{
			name: "unsupported driver when enabled",
			modify: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Driver = "oracle"
			},
			wantErr: "unsupported database driver",
		},
		{
			name: "driver ignored when disabled",
			modify: func(c *Config) {
				c.Database.Enabled = false
				c.Database.Driver = "oracle"
			},
		},
		{name: "sample rate", modify: func(c *Config) { c.Telemetry.SampleRate = 1.5 }, wantErr: "sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "postgres DSN",
			config: DatabaseConfig{
				Driver: "postgres", Host: "localhost", Port: 5432,
				User: "user", Password: "pass", Name: "dbname", SSLMode: "disable",
			},
			expected: "host=localhost port=5432 user=user password=pass dbname=dbname sslmode=disable",
		},
		{
			name: "mysql DSN",
			config: DatabaseConfig{
				Driver: "mysql", Host: "localhost", Port: 3306,
				User: "user", Password: "pass", Name: "dbname",
			},
			expected: "user:pass@tcp(localhost:3306)/dbname?parseTime=true",
		},
		{
			name:     "sqlite DSN",
			config:   DatabaseConfig{Driver: "sqlite", Name: "/path/to/db.sqlite"},
			expected: "/path/to/db.sqlite",
		},
		{name: "unknown driver", config: DatabaseConfig{Driver: "unknown"}, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

// --- MustLoad 测试 ---

func TestMustLoad_Success(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 8081\n"), 0644))

	assert.NotPanics(t, func() {
		cfg := MustLoad(configPath)
		assert.Equal(t, 8081, cfg.Server.HTTPPort)
	})
}

func TestMustLoad_InvalidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("invalid: [yaml"), 0644))

	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}
