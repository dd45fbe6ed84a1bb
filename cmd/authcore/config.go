package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/samber/oops"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/notify"
)

// Store backends selectable with AUTHCORE_STORE.
const (
	storeMemory   = "memory"
	storeRedis    = "redis"
	storePostgres = "postgres"
)

// serverConfig is the full environment surface of the authcore command.
type serverConfig struct {
	AccessSecret  string        `env:"JWT_ACCESS_SECRET"`
	RefreshSecret string        `env:"JWT_REFRESH_SECRET"`
	AccessTTL     time.Duration `env:"JWT_ACCESS_EXPIRY"  envDefault:"15m"`
	RefreshTTL    time.Duration `env:"JWT_REFRESH_EXPIRY" envDefault:"168h"`
	BcryptCost    int           `env:"AUTHCORE_BCRYPT_COST" envDefault:"12"`
	UpgradeHashes bool          `env:"AUTHCORE_PASSWORD_UPGRADE" envDefault:"true"`
	NotifyPolicy  string        `env:"AUTHCORE_NOTIFY_POLICY" envDefault:"best_effort"`

	HTTPAddr   string `env:"AUTHCORE_HTTP_ADDR"  envDefault:":8080"`
	TrustProxy bool   `env:"AUTHCORE_TRUST_PROXY"`
	LogFormat  string `env:"AUTHCORE_LOG_FORMAT" envDefault:"json"`
	LogLevel   string `env:"AUTHCORE_LOG_LEVEL"  envDefault:"info"`

	Store       string `env:"AUTHCORE_STORE"        envDefault:"memory"`
	DatabaseURL string `env:"AUTHCORE_DATABASE_URL"`
	RedisAddr   string `env:"AUTHCORE_REDIS_ADDR"   envDefault:"localhost:6379"`
	RedisPrefix string `env:"AUTHCORE_REDIS_PREFIX" envDefault:"authcore"`

	// SMTP.Host empty selects the log notifier.
	SMTP notify.SMTPConfig
}

// parseEnv loads configuration from environment variables.
func parseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func loadServerConfig() (serverConfig, error) {
	var cfg serverConfig
	if err := parseEnv(&cfg); err != nil {
		return serverConfig{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	switch cfg.Store {
	case storeMemory, storeRedis:
	case storePostgres:
		if cfg.DatabaseURL == "" {
			return serverConfig{}, oops.Code("CONFIG_INVALID").
				Errorf("AUTHCORE_DATABASE_URL is required for the postgres store")
		}
	default:
		return serverConfig{}, oops.Code("CONFIG_INVALID").
			With("store", cfg.Store).
			Errorf("unknown store backend %q", cfg.Store)
	}
	return cfg, nil
}

// engineConfig maps the environment onto authcore.Config. Validation is left
// to the engine builder.
func (c serverConfig) engineConfig() authcore.Config {
	cfg := authcore.DefaultConfig()
	cfg.JWT.AccessSecret = []byte(c.AccessSecret)
	cfg.JWT.RefreshSecret = []byte(c.RefreshSecret)
	cfg.JWT.AccessTTL = c.AccessTTL
	cfg.JWT.RefreshTTL = c.RefreshTTL
	cfg.Password.BcryptCost = c.BcryptCost
	cfg.Password.UpgradeOnLogin = c.UpgradeHashes
	cfg.Verification.TokenTTL = c.SMTP.LinkTTL
	cfg.Verification.NotifyFailurePolicy = authcore.NotifyFailurePolicy(c.NotifyPolicy)
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("level", level).Wrap(err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "json", "":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, oops.Code("CONFIG_INVALID").Errorf("unknown log format %q", format)
	}
}
