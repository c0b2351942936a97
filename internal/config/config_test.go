package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zieneks/teamtailor-csv-export/pkg/client"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "", cfg.APIKey)
	assert.Equal(t, client.DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, client.DefaultAPIVersion, cfg.APIVersion)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10000, cfg.MaxPages)
	assert.Equal(t, 5*time.Minute, cfg.ExportTimeout)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("TEAMTAILOR_API_KEY", "  secret  ")
	t.Setenv("TEAMTAILOR_BASE_URL", "http://localhost:9999/v1")
	t.Setenv("PORT", "3000")
	t.Setenv("MAX_PAGES", "0")
	t.Setenv("REQUESTS_PER_SECOND", "2.5")
	t.Setenv("EXPORT_TIMEOUT", "90s")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, "http://localhost:9999/v1", cfg.BaseURL)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 0, cfg.MaxPages)
	assert.Equal(t, 2.5, cfg.RequestsPerSecond)
	assert.Equal(t, 90*time.Second, cfg.ExportTimeout)
	assert.True(t, cfg.LogPretty)

	clientCfg := cfg.ClientConfig()
	assert.Equal(t, "http://localhost:9999/v1", clientCfg.BaseURL)
	assert.Equal(t, 2.5, clientCfg.RequestsPerSecond)
	assert.Equal(t, 0, cfg.PaginationConfig().MaxPages)
}

func TestBindFlags_FlagOverridesEnvironment(t *testing.T) {
	t.Setenv("PORT", "3000")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 8080, "")
	flags.Int("max-pages", 10000, "")
	flags.Bool("unrelated", false, "")
	require.NoError(t, flags.Parse([]string{"--port", "4000", "--max-pages", "3"}))

	v := New()
	require.NoError(t, BindFlags(v, flags))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, 3, cfg.MaxPages)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			BaseURL:    client.DefaultBaseURL,
			APIVersion: client.DefaultAPIVersion,
			Port:       8080,
			MaxPages:   10,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"port_zero", func(c *Config) { c.Port = 0 }, "port must be between 1 and 65535"},
		{"port_too_large", func(c *Config) { c.Port = 70000 }, "port must be between 1 and 65535"},
		{"relative_base_url", func(c *Config) { c.BaseURL = "/v1" }, "base url must be an absolute http(s) url"},
		{"ftp_base_url", func(c *Config) { c.BaseURL = "ftp://example.com" }, "base url must be an absolute http(s) url"},
		{"no_api_version", func(c *Config) { c.APIVersion = "" }, "api version is required"},
		{"negative_max_pages", func(c *Config) { c.MaxPages = -1 }, "max pages must be >= 0"},
		{"negative_rps", func(c *Config) { c.RequestsPerSecond = -1 }, "requests per second must be >= 0"},
		{"negative_timeout", func(c *Config) { c.ExportTimeout = -time.Second }, "export timeout must be >= 0"},
		{"bad_redis_url", func(c *Config) { c.RedisURL = "postgres://x" }, "invalid redis url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestRedisOptions(t *testing.T) {
	cfg := &Config{}
	opts, err := cfg.RedisOptions()
	require.NoError(t, err)
	assert.Nil(t, opts)

	cfg.RedisURL = "localhost:6379"
	opts, err = cfg.RedisOptions()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	cfg.RedisURL = "redis://cache:6380/2"
	opts, err = cfg.RedisOptions()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("TEAMTAILOR_API_KEY=from-file\nSTATIC_DIR=/srv/public\n"), 0o600))

	t.Setenv("TEAMTAILOR_API_KEY", "from-env")
	t.Setenv("STATIC_DIR", "")
	require.NoError(t, os.Unsetenv("STATIC_DIR"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.APIKey, "existing environment wins")
	assert.Equal(t, "/srv/public", cfg.StaticDir)
}
