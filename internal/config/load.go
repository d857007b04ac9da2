// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package config

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/codebot/codebot/internal/xdg"
)

// EnvPrefix prefixes every configuration environment variable.
const EnvPrefix = "CODEBOT_"

// flagKeys maps command-line flag names to config keys. Flags not listed
// here (such as --config) are not configuration values.
var flagKeys = map[string]string{
	"addr":            "server.addr",
	"metrics-addr":    "server.metrics_addr",
	"database-url":    "database.url",
	"redis-url":       "redis.url",
	"session-store":   "session.store",
	"cookie-secure":   "session.cookie_secure",
	"ratelimit-store": "ratelimit.store",
	"log-level":       "log.level",
	"log-format":      "log.format",
}

// BindFlags registers the configuration flags on fs with defaults taken
// from Default.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("addr", d.Server.Addr, "HTTP listen address")
	fs.String("metrics-addr", d.Server.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("database-url", d.Database.URL, "PostgreSQL connection URL")
	fs.String("redis-url", d.Redis.URL, "Redis connection URL")
	fs.String("session-store", d.Session.Store, "session store (memory, postgres or redis)")
	fs.Bool("cookie-secure", d.Session.CookieSecure, "mark the session cookie Secure")
	fs.String("ratelimit-store", d.RateLimit.Store, "rate limit bucket store (memory, postgres or redis)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn or error)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
}

// Options controls Load.
type Options struct {
	// File is the config file path. Empty means the XDG default, which may
	// be absent. An explicit path must exist.
	File string

	// Flags holds flags registered with BindFlags. May be nil.
	Flags *pflag.FlagSet
}

// Load builds the effective configuration and validates it.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	path, explicit := opts.File, opts.File != ""
	if !explicit {
		path = xdg.ConfigFile()
	}

	if err := loadFile(k, path, explicit); err != nil {
		return nil, err
	}

	if err := k.Load(env.ProviderWithValue("", ".", wellKnownEnv), nil); err != nil {
		return nil, oops.Code("CONFIG_ENV_FAILED").Wrap(err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_ENV_FAILED").Wrap(err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").With("file", path).Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, oops.With("file", path).Wrap(err)
	}
	return &cfg, nil
}

// loadFile validates the YAML file at path against the config schema and
// loads it into k. A missing default file is not an error.
func loadFile(k *koanf.Koanf, path string, required bool) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return oops.Code("CONFIG_READ_FAILED").With("file", path).Wrap(err)
	}

	if err := ValidateYAML(data); err != nil {
		return oops.Code("CONFIG_SCHEMA_INVALID").With("file", path).Wrap(err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_PARSE_FAILED").With("file", path).Wrap(err)
	}
	return nil
}

// wellKnownEnv maps the conventional DATABASE_URL and REDIS_URL variables
// onto their config keys and ignores everything else.
func wellKnownEnv(key, value string) (string, any) {
	switch key {
	case "DATABASE_URL":
		return "database.url", value
	case "REDIS_URL":
		return "redis.url", value
	}
	return "", nil
}

// envKey turns CODEBOT_SESSION__IDLE_TIMEOUT into session.idle_timeout.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[unparseable]"
	}
	if u.User == nil {
		return raw
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
