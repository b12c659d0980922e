package main

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/deviceauth"
	"github.com/MrEthical07/deviceauth/store/postgres"
	"github.com/spf13/viper"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Auth struct {
	JWTSecret          string        `mapstructure:"jwt_secret"`
	Issuer             string        `mapstructure:"issuer"`
	Audience           string        `mapstructure:"audience"`
	AccessTTL          time.Duration `mapstructure:"access_ttl"`
	RefreshTTL         time.Duration `mapstructure:"refresh_ttl"`
	KeyPrefix          string        `mapstructure:"key_prefix"`
	FreshMaxAge        time.Duration `mapstructure:"fresh_max_age"`
	DefaultRoles       []string      `mapstructure:"default_roles"`
	PasswordMinLength  int           `mapstructure:"password_min_length"`
	AcceptLegacyBcrypt bool          `mapstructure:"accept_legacy_bcrypt"`
	RateLimit          bool          `mapstructure:"rate_limit"`
	IPThrottle         bool          `mapstructure:"ip_throttle"`
	MaxLoginAttempts   int           `mapstructure:"max_login_attempts"`
}

type Audit struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
}

type Metrics struct {
	Enabled bool `mapstructure:"enabled"`
	Latency bool `mapstructure:"latency"`
}

type Sweep struct {
	Interval  time.Duration `mapstructure:"interval"`
	Retention time.Duration `mapstructure:"retention"`
}

type Config struct {
	App     App             `mapstructure:"app"`
	Server  Server          `mapstructure:"server"`
	DB      postgres.Config `mapstructure:"db"`
	Redis   Redis           `mapstructure:"redis"`
	Log     Log             `mapstructure:"log"`
	Auth    Auth            `mapstructure:"auth"`
	Audit   Audit           `mapstructure:"audit"`
	Metrics Metrics         `mapstructure:"metrics"`
	Sweep   Sweep           `mapstructure:"sweep"`
}

// loadConfig reads path when set, then applies DEVICEAUTH_* environment
// overrides (DEVICEAUTH_AUTH_JWT_SECRET, DEVICEAUTH_DB_URL, ...).
func loadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	v.SetDefault("app.name", "deviceauthd")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.version", "")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "15s")

	v.SetDefault("db.url", "")
	v.SetDefault("db.max_conns", 20)
	v.SetDefault("db.min_conns", 2)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.max_conn_idle_time", "10m")
	v.SetDefault("db.health_check_period", "30s")
	v.SetDefault("db.query_timeout", "2s")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.access_ttl", "15m")
	v.SetDefault("auth.refresh_ttl", "720h")
	v.SetDefault("auth.key_prefix", "")
	v.SetDefault("auth.fresh_max_age", "5m")
	v.SetDefault("auth.default_roles", []string{"member"})
	v.SetDefault("auth.password_min_length", 10)
	v.SetDefault("auth.accept_legacy_bcrypt", false)
	v.SetDefault("auth.rate_limit", true)
	v.SetDefault("auth.ip_throttle", false)
	v.SetDefault("auth.max_login_attempts", 5)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.buffer_size", 1024)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.latency", true)

	v.SetDefault("sweep.interval", "1h")
	v.SetDefault("sweep.retention", "168h")

	v.SetEnvPrefix("DEVICEAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is not set")
	}
	return &cfg, nil
}

// engineConfig converts the daemon settings into library settings. The
// result is validated by the builder.
func (c *Config) engineConfig() deviceauth.Config {
	out := deviceauth.DefaultConfig()

	out.JWT.Secret = []byte(c.Auth.JWTSecret)
	out.JWT.Issuer = c.Auth.Issuer
	out.JWT.Audience = c.Auth.Audience
	out.JWT.AccessTTL = c.Auth.AccessTTL
	out.JWT.RefreshTTL = c.Auth.RefreshTTL

	out.Session.KeyPrefix = c.Auth.KeyPrefix
	out.Freshness.DefaultMaxAge = c.Auth.FreshMaxAge

	out.Password.MinLength = c.Auth.PasswordMinLength
	out.Password.AcceptLegacyBcrypt = c.Auth.AcceptLegacyBcrypt

	out.RateLimit.Enabled = c.Auth.RateLimit
	out.RateLimit.EnableIPThrottle = c.Auth.IPThrottle
	out.RateLimit.MaxLoginAttempts = c.Auth.MaxLoginAttempts

	out.Audit.Enabled = c.Audit.Enabled
	out.Audit.BufferSize = c.Audit.BufferSize

	out.Metrics.Enabled = c.Metrics.Enabled
	out.Metrics.EnableLatencyHistograms = c.Metrics.Latency

	return out
}
