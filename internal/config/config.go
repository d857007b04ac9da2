// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

// Package config loads the codebot configuration.
//
// Values are layered in this order, later sources winning:
//
//  1. built-in defaults (Default)
//  2. the YAML config file
//  3. DATABASE_URL and REDIS_URL
//  4. CODEBOT_* environment variables, with "__" separating sections
//     (CODEBOT_SESSION__IDLE_TIMEOUT=12h)
//  5. command-line flags that were explicitly set
package config

import (
	"slices"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Session store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

var (
	sessionStores = []string{StoreMemory, StorePostgres, StoreRedis}
	bucketStores  = []string{StoreMemory, StorePostgres, StoreRedis}
	logFormats    = []string{"json", "text"}
	logLevels     = []string{"debug", "info", "warn", "error"}
)

// Duration is a time.Duration written as "24h" in files and output.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return oops.Code("CONFIG_INVALID_DURATION").With("value", string(b)).Wrap(err)
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the complete runtime configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server" yaml:"server" json:"server,omitempty"`
	Database  DatabaseConfig  `koanf:"database" yaml:"database" json:"database,omitempty"`
	Redis     RedisConfig     `koanf:"redis" yaml:"redis" json:"redis,omitempty"`
	Session   SessionConfig   `koanf:"session" yaml:"session" json:"session,omitempty"`
	RateLimit RateLimitConfig `koanf:"ratelimit" yaml:"ratelimit" json:"ratelimit,omitempty"`
	Audit     AuditConfig     `koanf:"audit" yaml:"audit" json:"audit,omitempty"`
	Log       LogConfig       `koanf:"log" yaml:"log" json:"log,omitempty"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	Addr            string   `koanf:"addr" yaml:"addr" json:"addr,omitempty" jsonschema:"description=HTTP listen address"`
	MetricsAddr     string   `koanf:"metrics_addr" yaml:"metrics_addr" json:"metrics_addr,omitempty" jsonschema:"description=metrics and health listen address (empty disables)"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout,omitempty" jsonschema:"type=string"`
	TrustedProxies  []string `koanf:"trusted_proxies" yaml:"trusted_proxies" json:"trusted_proxies,omitempty" jsonschema:"description=proxy CIDRs whose X-Forwarded-For is trusted"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL            string   `koanf:"url" yaml:"url" json:"url,omitempty"`
	ConnectRetries uint64   `koanf:"connect_retries" yaml:"connect_retries" json:"connect_retries,omitempty"`
	ConnectBackoff Duration `koanf:"connect_backoff" yaml:"connect_backoff" json:"connect_backoff,omitempty" jsonschema:"type=string"`
}

// RedisConfig configures Redis. Only needed when a store uses it.
type RedisConfig struct {
	URL    string `koanf:"url" yaml:"url" json:"url,omitempty"`
	Prefix string `koanf:"prefix" yaml:"prefix" json:"prefix,omitempty" jsonschema:"description=key prefix shared by session and bucket keys"`
}

// SessionConfig configures the session manager and cookie.
type SessionConfig struct {
	Store         string   `koanf:"store" yaml:"store" json:"store,omitempty" jsonschema:"enum=memory,enum=postgres,enum=redis"`
	IdleTimeout   Duration `koanf:"idle_timeout" yaml:"idle_timeout" json:"idle_timeout,omitempty" jsonschema:"type=string"`
	PruneInterval Duration `koanf:"prune_interval" yaml:"prune_interval" json:"prune_interval,omitempty" jsonschema:"type=string"`
	CookieName    string   `koanf:"cookie_name" yaml:"cookie_name" json:"cookie_name,omitempty"`
	CookieSecure  bool     `koanf:"cookie_secure" yaml:"cookie_secure" json:"cookie_secure,omitempty"`
	CSRFRequired  bool     `koanf:"csrf_required" yaml:"csrf_required" json:"csrf_required,omitempty"`
}

// RateLimitConfig configures the request budget.
type RateLimitConfig struct {
	Store           string   `koanf:"store" yaml:"store" json:"store,omitempty" jsonschema:"enum=memory,enum=postgres,enum=redis"`
	Limit           int      `koanf:"limit" yaml:"limit" json:"limit,omitempty" jsonschema:"minimum=1"`
	Period          Duration `koanf:"period" yaml:"period" json:"period,omitempty" jsonschema:"type=string"`
	CleanupInterval Duration `koanf:"cleanup_interval" yaml:"cleanup_interval" json:"cleanup_interval,omitempty" jsonschema:"type=string"`
}

// AuditConfig configures where auth events go. Events are logged when
// NATSURL is empty.
type AuditConfig struct {
	NATSURL       string `koanf:"nats_url" yaml:"nats_url" json:"nats_url,omitempty"`
	SubjectPrefix string `koanf:"subject_prefix" yaml:"subject_prefix" json:"subject_prefix,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Format string `koanf:"format" yaml:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            "localhost:8080",
			MetricsAddr:     "127.0.0.1:9100",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Database: DatabaseConfig{
			ConnectRetries: 5,
			ConnectBackoff: Duration(500 * time.Millisecond),
		},
		Redis: RedisConfig{
			Prefix: "codebot:",
		},
		Session: SessionConfig{
			Store:         StorePostgres,
			IdleTimeout:   Duration(24 * time.Hour),
			PruneInterval: Duration(10 * time.Minute),
			CookieName:    "codebot_session",
			CookieSecure:  true,
			CSRFRequired:  true,
		},
		RateLimit: RateLimitConfig{
			Store:           StoreMemory,
			Limit:           60,
			Period:          Duration(time.Minute),
			CleanupInterval: Duration(time.Minute),
		},
		Audit: AuditConfig{
			SubjectPrefix: "auth.events",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// NeedsRedis reports whether any configured store uses Redis.
func (c *Config) NeedsRedis() bool {
	return c.Session.Store == StoreRedis || c.RateLimit.Store == StoreRedis
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	errb := oops.Code("CONFIG_INVALID")

	if c.Server.Addr == "" {
		return errb.Errorf("server.addr is required")
	}
	if !slices.Contains(sessionStores, c.Session.Store) {
		return errb.With("value", c.Session.Store).
			Errorf("session.store must be one of %s", strings.Join(sessionStores, ", "))
	}
	if !slices.Contains(bucketStores, c.RateLimit.Store) {
		return errb.With("value", c.RateLimit.Store).
			Errorf("ratelimit.store must be one of %s", strings.Join(bucketStores, ", "))
	}
	if c.Session.IdleTimeout <= 0 {
		return errb.Errorf("session.idle_timeout must be positive")
	}
	if c.Session.PruneInterval <= 0 {
		return errb.Errorf("session.prune_interval must be positive")
	}
	if c.Session.CookieName == "" {
		return errb.Errorf("session.cookie_name is required")
	}
	if c.RateLimit.Limit < 1 {
		return errb.With("value", c.RateLimit.Limit).Errorf("ratelimit.limit must be at least 1")
	}
	if c.RateLimit.Period <= 0 {
		return errb.Errorf("ratelimit.period must be positive")
	}
	if c.RateLimit.CleanupInterval <= 0 {
		return errb.Errorf("ratelimit.cleanup_interval must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errb.Errorf("server.shutdown_timeout must be positive")
	}
	if c.NeedsRedis() && c.Redis.URL == "" {
		return errb.Errorf("redis.url is required when a store is redis")
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		return errb.With("value", c.Log.Format).Errorf("log.format must be 'json' or 'text'")
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		return errb.With("value", c.Log.Level).
			Errorf("log.level must be one of %s", strings.Join(logLevels, ", "))
	}
	return nil
}

// Redacted returns a copy of c safe to print: credentials embedded in
// connection URLs are masked.
func (c Config) Redacted() Config {
	c.Database.URL = redactURL(c.Database.URL)
	c.Redis.URL = redactURL(c.Redis.URL)
	c.Audit.NATSURL = redactURL(c.Audit.NATSURL)
	c.Server.TrustedProxies = slices.Clone(c.Server.TrustedProxies)
	return c
}
