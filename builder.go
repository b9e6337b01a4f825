package twofa

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. Zero or one call per With* option, then
// Build exactly once.
type Builder struct {
	config Config
	redis  *redis.Client

	store       ConfigStore
	smsSender   CodeSender
	emailSender CodeSender
	clock       Clock
	logger      *zap.Logger
	auditSink   AuditSink

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the default configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client backing the engine-owned pending
// challenge store. Required for SMS and email enrollment and login codes;
// TOTP-only deployments may omit it.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithConfigStore supplies the persistence capability for tenant settings and
// committed account configs. Required.
func (b *Builder) WithConfigStore(store ConfigStore) *Builder {
	b.store = store
	return b
}

// WithSMSSender supplies the SMS dispatch capability.
func (b *Builder) WithSMSSender(sender CodeSender) *Builder {
	b.smsSender = sender
	return b
}

// WithEmailSender supplies the email dispatch capability.
func (b *Builder) WithEmailSender(sender CodeSender) *Builder {
	b.emailSender = sender
	return b
}

// WithClock overrides the time source. Tests use this for deterministic TOTP
// steps and challenge expiry.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithLogger attaches a structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink attaches an audit sink; audit must also be enabled in Config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process metrics registry.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires the collaborators, and returns the
// immutable Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	cfg := cloneConfig(b.config)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("config store is required")
	}

	clock := b.clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := &Engine{
		config:      cfg,
		store:       b.store,
		totp:        newTOTPVerifier(cfg.TOTP),
		smsSender:   b.smsSender,
		emailSender: b.emailSender,
		clock:       clock,
		logger:      logger,
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:     NewMetrics(cfg.Metrics),
	}
	if b.redis != nil {
		engine.pending = newPendingChallengeStore(b.redis, cfg.KeyPrefix)
	}

	return engine, nil
}
