package authcore

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
)

// Builder assembles an Engine. A Builder can be used once.
type Builder struct {
	config    Config
	store     AccountStore
	notifier  Notifier
	auditSink AuditSink
	logger    *slog.Logger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithAccountStore sets the persistence backend. Required.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.store = store
	return b
}

// WithNotifier sets the verification email sender. Required.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink enables audit dispatch to sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithLogger sets the engine logger. The default discards output.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles login and refresh latency histograms. They
// only record while metrics are enabled.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and constructs the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("account store required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// -------- CREDENTIAL HASHER --------
	hasher, err := password.New(password.Config{
		Algorithm:  cfg.Password.Algorithm,
		BcryptCost: cfg.Password.BcryptCost,
		Argon2:     cfg.Password.Argon2,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Password.Algorithm == password.AlgorithmBcrypt && cfg.Password.BcryptCost < password.DefaultBcryptCost-2 {
		logger.Warn("authcore: bcrypt cost below recommended minimum", "cost", cfg.Password.BcryptCost)
	}

	// Unknown-email logins verify against this so both failure paths pay
	// the same hashing cost.
	seed, err := internal.NewVerificationToken(internal.MinVerificationTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("seed dummy hash: %w", err)
	}
	dummyHash, err := hasher.Hash(seed[:32])
	if err != nil {
		return nil, fmt.Errorf("compute dummy hash: %w", err)
	}

	// -------- TOKEN ISSUER --------
	tokens, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	// -------- AUDIT --------
	var dispatcher *audit.Dispatcher
	if cfg.Audit.Enabled {
		dispatcher = audit.NewDispatcher(audit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink)
	}

	b.built = true
	return &Engine{
		config:    cfg,
		store:     b.store,
		notifier:  b.notifier,
		hasher:    hasher,
		dummyHash: dummyHash,
		tokens:    tokens,
		audit:     dispatcher,
		metrics:   NewMetrics(cfg.Metrics),
		logger:    logger,
	}, nil
}
