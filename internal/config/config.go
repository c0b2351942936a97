// Package config loads exporter settings from flags, the environment and
// optional .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zieneks/teamtailor-csv-export/pkg/client"
	"github.com/zieneks/teamtailor-csv-export/pkg/pagination"
)

// Keys double as environment variable names once upper-cased.
const (
	KeyAPIKey            = "teamtailor_api_key"
	KeyBaseURL           = "teamtailor_base_url"
	KeyAPIVersion        = "teamtailor_api_version"
	KeyPort              = "port"
	KeyLogLevel          = "log_level"
	KeyLogPretty         = "log_pretty"
	KeyRedisURL          = "redis_url"
	KeyMaxPages          = "max_pages"
	KeyRequestsPerSecond = "requests_per_second"
	KeyExportTimeout     = "export_timeout"
	KeyStaticDir         = "static_dir"
)

// Config holds the settings shared by the serve and export commands.
type Config struct {
	APIKey            string
	BaseURL           string
	APIVersion        string
	Port              int
	LogLevel          string
	LogPretty         bool
	RedisURL          string
	MaxPages          int
	RequestsPerSecond float64
	ExportTimeout     time.Duration
	StaticDir         string
}

// New returns a viper instance with defaults set and environment binding
// enabled.
func New() *viper.Viper {
	v := viper.New()

	clientDefaults := client.DefaultConfig()
	v.SetDefault(KeyAPIKey, "")
	v.SetDefault(KeyBaseURL, clientDefaults.BaseURL)
	v.SetDefault(KeyAPIVersion, clientDefaults.APIVersion)
	v.SetDefault(KeyPort, 8080)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogPretty, false)
	v.SetDefault(KeyRedisURL, "")
	v.SetDefault(KeyMaxPages, pagination.DefaultConfig().MaxPages)
	v.SetDefault(KeyRequestsPerSecond, clientDefaults.RequestsPerSecond)
	v.SetDefault(KeyExportTimeout, 5*time.Minute)
	v.SetDefault(KeyStaticDir, "")

	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

// BindFlags binds every flag in the set whose name maps to a known key.
// Flag names use dashes ("max-pages" binds "max_pages").
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !isKnownKey(key) || bindErr != nil {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("bind flag %q: %w", f.Name, err)
		}
	})
	return bindErr
}

// LoadDotEnv loads the given .env files. Missing files are skipped and
// variables already present in the environment take precedence.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %q: %w", path, err)
		}
	}
	return nil
}

// Load reads the configuration from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		APIKey:            strings.TrimSpace(v.GetString(KeyAPIKey)),
		BaseURL:           strings.TrimSpace(v.GetString(KeyBaseURL)),
		APIVersion:        strings.TrimSpace(v.GetString(KeyAPIVersion)),
		Port:              v.GetInt(KeyPort),
		LogLevel:          v.GetString(KeyLogLevel),
		LogPretty:         v.GetBool(KeyLogPretty),
		RedisURL:          strings.TrimSpace(v.GetString(KeyRedisURL)),
		MaxPages:          v.GetInt(KeyMaxPages),
		RequestsPerSecond: v.GetFloat64(KeyRequestsPerSecond),
		ExportTimeout:     v.GetDuration(KeyExportTimeout),
		StaticDir:         strings.TrimSpace(v.GetString(KeyStaticDir)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. A missing API key is not a configuration
// error: exports fail with client.ErrMissingCredential instead.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535 (got %d)", c.Port))
	}

	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("base url must be an absolute http(s) url (got %q)", c.BaseURL))
	}

	if c.APIVersion == "" {
		errs = append(errs, errors.New("api version is required"))
	}

	if c.MaxPages < 0 {
		errs = append(errs, fmt.Errorf("max pages must be >= 0 (got %d)", c.MaxPages))
	}

	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("requests per second must be >= 0 (got %v)", c.RequestsPerSecond))
	}

	if c.ExportTimeout < 0 {
		errs = append(errs, fmt.Errorf("export timeout must be >= 0 (got %s)", c.ExportTimeout))
	}

	if c.RedisURL != "" {
		if _, err := c.RedisOptions(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// RedisOptions returns connection options for RedisURL, or nil when Redis
// is not configured. Both "redis://host:port/db" URLs and bare "host:port"
// addresses are accepted.
func (c *Config) RedisOptions() (*redis.Options, error) {
	if c.RedisURL == "" {
		return nil, nil
	}

	if strings.Contains(c.RedisURL, "://") {
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opts, nil
	}

	return &redis.Options{Addr: c.RedisURL}, nil
}

// ClientConfig derives the Teamtailor client configuration.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig()
	cfg.BaseURL = c.BaseURL
	cfg.APIVersion = c.APIVersion
	cfg.RequestsPerSecond = c.RequestsPerSecond
	return cfg
}

// PaginationConfig derives the pagination driver configuration.
func (c *Config) PaginationConfig() pagination.Config {
	cfg := pagination.DefaultConfig()
	cfg.MaxPages = c.MaxPages
	return cfg
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func isKnownKey(key string) bool {
	switch key {
	case KeyAPIKey, KeyBaseURL, KeyAPIVersion, KeyPort, KeyLogLevel, KeyLogPretty,
		KeyRedisURL, KeyMaxPages, KeyRequestsPerSecond, KeyExportTimeout, KeyStaticDir:
		return true
	}
	return false
}
