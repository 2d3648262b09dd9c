package ctxAuth

import (
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/ctxAuth/internal/audit"
	"github.com/MrEthical07/ctxAuth/internal/stores"
	"github.com/MrEthical07/ctxAuth/jwt"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Builder assembles an [Engine]. A Builder is single-use.
//
// Stores not supplied explicitly default to the Redis implementations when a
// Redis client is configured via [Builder.WithRedis].
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users       UserDirectory
	trustStore  TrustStore
	challenges  ChallengeStore
	refresh     RefreshTokenStore
	preferences PreferenceStore
	mailer      Mailer
	auditSink   AuditSink
	logger      logrus.FieldLogger
	now         func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used by the default stores.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserDirectory sets the host application's user lookup.
func (b *Builder) WithUserDirectory(users UserDirectory) *Builder {
	b.users = users
	return b
}

// WithTrustStore overrides the trust record store.
func (b *Builder) WithTrustStore(s TrustStore) *Builder {
	b.trustStore = s
	return b
}

// WithChallengeStore overrides the challenge store.
func (b *Builder) WithChallengeStore(s ChallengeStore) *Builder {
	b.challenges = s
	return b
}

// WithRefreshTokenStore overrides the refresh token store.
func (b *Builder) WithRefreshTokenStore(s RefreshTokenStore) *Builder {
	b.refresh = s
	return b
}

// WithPreferenceStore overrides the context-auth preference store.
func (b *Builder) WithPreferenceStore(s PreferenceStore) *Builder {
	b.preferences = s
	return b
}

// WithMailer sets the challenge delivery transport.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink sets the destination for audit events. Audit must also be
// enabled in [AuditConfig].
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for best-effort failures.
func (b *Builder) WithLogger(logger logrus.FieldLogger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source used for token issuance, validation,
// rotation and challenge expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the Authenticate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.users == nil {
		return nil, errors.New("user directory required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}

	// -------- STORES --------
	if b.redis != nil {
		if b.trustStore == nil {
			b.trustStore = stores.NewTrustStore(b.redis, cfg.Redis.TrustPrefix)
		}
		if b.challenges == nil {
			b.challenges = stores.NewChallengeStore(b.redis, cfg.Redis.ChallengePrefix)
		}
		if b.refresh == nil {
			b.refresh = stores.NewRefreshTokenStore(b.redis, cfg.Redis.RefreshPrefix)
		}
		if b.preferences == nil {
			b.preferences = stores.NewPreferenceStore(b.redis, cfg.Redis.PreferencePrefix)
		}
	}
	if b.trustStore == nil || b.challenges == nil || b.refresh == nil || b.preferences == nil {
		return nil, errors.New("redis client or explicit stores required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	logger := b.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	// -------- TOKENS --------
	accessJWT, err := jwt.NewManager(jwt.Config{
		TTL:    cfg.JWT.AccessTTL,
		Secret: cloneBytes(cfg.JWT.AccessSecret),
		Issuer: cfg.JWT.Issuer,
		Leeway: cfg.JWT.Leeway,
		Now:    now,
	})
	if err != nil {
		return nil, err
	}
	refreshJWT, err := jwt.NewManager(jwt.Config{
		TTL:    cfg.JWT.RefreshTTL,
		Secret: cloneBytes(cfg.JWT.RefreshSecret),
		Issuer: cfg.JWT.Issuer,
		Leeway: cfg.JWT.Leeway,
		Now:    now,
	})
	if err != nil {
		return nil, err
	}

	renderer, err := newMailRenderer(cfg.Mail)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:      cfg,
		users:       b.users,
		trustStore:  b.trustStore,
		challenges:  b.challenges,
		refresh:     b.refresh,
		preferences: b.preferences,
		mailer:      b.mailer,
		mail:        renderer,
		accessJWT:   accessJWT,
		refreshJWT:  refreshJWT,
		metrics:     NewMetrics(cfg.Metrics),
		logger:      logger,
		now:         now,
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true

	return engine, nil
}
