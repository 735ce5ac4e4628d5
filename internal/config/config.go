package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration. Values load from the environment
// first; an optional YAML file overlays on top, so the file wins for any key
// it sets.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Geocoder   GeocoderConfig   `yaml:"geocoder"`
	Escalation EscalationConfig `yaml:"escalation"`
	Redis      RedisConfig      `yaml:"redis"`
}

type ServerConfig struct {
	Addr         string        `env:"SERVER_ADDR,default=:8080" yaml:"addr"`
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT,default=15s" yaml:"read_timeout"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT,default=30s" yaml:"write_timeout"`

	// AuthTokens is a comma-separated list of accepted bearer tokens. Empty
	// disables authentication (local development only).
	AuthTokens string `env:"SERVER_AUTH_TOKENS" yaml:"auth_tokens"`
}

// Tokens splits the configured bearer tokens.
func (c ServerConfig) Tokens() []string {
	if strings.TrimSpace(c.AuthTokens) == "" {
		return nil
	}
	parts := strings.Split(c.AuthTokens, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type DatabaseConfig struct {
	URL          string        `env:"DATABASE_URL" yaml:"url"`
	MaxOpenConns int           `env:"DATABASE_MAX_OPEN_CONNS,default=20" yaml:"max_open_conns"`
	MaxIdleConns int           `env:"DATABASE_MAX_IDLE_CONNS,default=5" yaml:"max_idle_conns"`
	ConnLifetime time.Duration `env:"DATABASE_CONN_LIFETIME,default=30m" yaml:"conn_lifetime"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info" yaml:"level"`
	Format string `env:"LOG_FORMAT,default=text" yaml:"format"`
}

type GeocoderConfig struct {
	// Endpoint is the provider URL. Empty disables the worker; the service
	// starts and serves the admin API regardless.
	Endpoint          string        `env:"GEOCODER_ENDPOINT" yaml:"endpoint"`
	APIKey            string        `env:"GEOCODER_API_KEY" yaml:"api_key"`
	RequestsPerSecond float64       `env:"GEOCODER_RPS,default=1" yaml:"requests_per_second"`
	Timeout           time.Duration `env:"GEOCODER_TIMEOUT,default=10s" yaml:"timeout"`
	PollInterval      time.Duration `env:"GEOCODER_POLL_INTERVAL,default=30s" yaml:"poll_interval"`
	BatchSize         int           `env:"GEOCODER_BATCH_SIZE,default=10" yaml:"batch_size"`
	BackoffBase       time.Duration `env:"GEOCODER_BACKOFF_BASE,default=30s" yaml:"backoff_base"`
	BackoffCap        time.Duration `env:"GEOCODER_BACKOFF_CAP,default=15m" yaml:"backoff_cap"`
}

type EscalationConfig struct {
	Threshold      int    `env:"ESCALATION_THRESHOLD,default=3" yaml:"threshold"`
	AdminBaseURL   string `env:"ESCALATION_ADMIN_BASE_URL,default=http://localhost:8080" yaml:"admin_base_url"`
	DigestSchedule string `env:"ESCALATION_DIGEST_SCHEDULE,default=0 8 * * *" yaml:"digest_schedule"`
}

type RedisConfig struct {
	// Addr empty disables the geocode result cache.
	Addr     string        `env:"REDIS_ADDR" yaml:"addr"`
	Password string        `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int           `env:"REDIS_DB,default=0" yaml:"db"`
	CacheTTL time.Duration `env:"REDIS_CACHE_TTL,default=24h" yaml:"cache_ttl"`
}

// Load reads configuration from the environment, then overlays the YAML file
// at path if one is given.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Escalation.Threshold <= 0 {
		return fmt.Errorf("escalation threshold must be positive, got %d", c.Escalation.Threshold)
	}
	if c.Geocoder.BatchSize <= 0 {
		return fmt.Errorf("geocoder batch size must be positive, got %d", c.Geocoder.BatchSize)
	}
	if c.Geocoder.PollInterval <= 0 {
		return fmt.Errorf("geocoder poll interval must be positive")
	}
	return nil
}
