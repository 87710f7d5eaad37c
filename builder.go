package authflow

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authflow/flowtoken"
	"github.com/MrEthical07/authflow/internal/attack"
	"github.com/MrEthical07/authflow/internal/audit"
	internalflows "github.com/MrEthical07/authflow/internal/flows"
	"github.com/MrEthical07/authflow/internal/rate"
	"github.com/MrEthical07/authflow/store"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. A Builder can be used once.
type Builder struct {
	config Config
	store  store.Store
	redis  redis.UniversalClient

	provider  IdentityProvider
	directory UserDirectory
	auditSink AuditSink
	logger    *zap.Logger
	now       func() time.Time
	jitter    func() time.Duration

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the persistent store. It takes precedence over WithRedis.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithRedis persists limiter state and flow progress in Redis under
// Config.Store.RedisPrefix.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.provider = p
	return b
}

func (b *Builder) WithUserDirectory(d UserDirectory) *Builder {
	b.directory = d
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides the engine clock. Used by tests to step through
// backoff and lockout windows.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithJitter overrides the backoff jitter source.
func (b *Builder) WithJitter(jitter func() time.Duration) *Builder {
	b.jitter = jitter
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.provider == nil {
		return nil, errors.New("identity provider required")
	}
	if b.directory == nil {
		return nil, errors.New("user directory required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	st := b.store
	switch {
	case st != nil:
	case b.redis != nil:
		st = store.NewRedis(b.redis, cfg.Store.RedisPrefix)
	default:
		logger.Warn("no persistent store configured, using in-memory store")
		st = store.NewMemory(store.WithClock(now))
	}

	engine := &Engine{
		config:    cloneConfig(cfg),
		store:     st,
		provider:  b.provider,
		directory: b.directory,
		logger:    logger,
		now:       now,
		newID:     uuid.NewString,
	}

	engine.detector = attack.New(st, attack.Config{
		HistoryWindow:               cfg.AttackDetection.HistoryWindow,
		FrequencyWindow:             cfg.AttackDetection.FrequencyWindow,
		MaxAttemptsInWindow:         cfg.AttackDetection.MaxAttemptsInWindow,
		ConsecutiveFailureThreshold: cfg.AttackDetection.ConsecutiveFailureThreshold,
		RapidInterval:               cfg.AttackDetection.RapidInterval,
		RapidPairThreshold:          cfg.AttackDetection.RapidPairThreshold,
		MaxHistory:                  cfg.AttackDetection.MaxHistory,
	}, attack.WithClock(now), attack.WithLogger(logger.Named("attack")))
	engine.limiter = rate.New(st, engine.detector, rate.Options{
		Now:    now,
		Jitter: b.jitter,
		Logger: logger.Named("rate"),
	})
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     logger.Named("audit"),
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	if cfg.ResumeToken.Enabled {
		tm, err := newTokenManager(cfg.ResumeToken, now)
		if err != nil {
			return nil, err
		}
		engine.tokens = tm
	}

	engine.flows = internalflows.New(engine.flowDeps())

	b.built = true

	return engine, nil
}

func newTokenManager(cfg ResumeTokenConfig, now func() time.Time) (*flowtoken.Manager, error) {
	priv := cloneBytes(cfg.PrivateKey)
	if cfg.SigningMethod == string(flowtoken.MethodEd25519) && len(priv) == 0 {
		_, generated, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate resume token key: %w", err)
		}
		priv = generated
	}
	return flowtoken.NewManager(flowtoken.Config{
		TTL:           cfg.TTL,
		SigningMethod: flowtoken.SigningMethod(cfg.SigningMethod),
		PrivateKey:    priv,
		PublicKey:     cloneBytes(cfg.PublicKey),
		Issuer:        cfg.Issuer,
		Now:           now,
	})
}
