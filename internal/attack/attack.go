package attack

import (
	"context"
	"errors"
	"fmt"
	"hash/maphash"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrStoreUnavailable wraps persistence failures.
	ErrStoreUnavailable = errors.New("attack pattern store unavailable")
	// ErrInvalidIdentifier is returned for empty identifiers.
	ErrInvalidIdentifier = errors.New("invalid attack identifier")
)

// Store is the subset of the persistence port the detector needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Config tunes the heuristics. Zero fields take the defaults from
// DefaultConfig.
type Config struct {
	HistoryWindow               time.Duration
	FrequencyWindow             time.Duration
	MaxAttemptsInWindow         int
	ConsecutiveFailureThreshold int
	RapidInterval               time.Duration
	RapidPairThreshold          int
	MaxHistory                  int
}

// DefaultConfig returns the production heuristics.
func DefaultConfig() Config {
	return Config{
		HistoryWindow:               time.Hour,
		FrequencyWindow:             15 * time.Minute,
		MaxAttemptsInWindow:         10,
		ConsecutiveFailureThreshold: 5,
		RapidInterval:               time.Second,
		RapidPairThreshold:          3,
		MaxHistory:                  128,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = d.HistoryWindow
	}
	if c.FrequencyWindow <= 0 {
		c.FrequencyWindow = d.FrequencyWindow
	}
	if c.MaxAttemptsInWindow <= 0 {
		c.MaxAttemptsInWindow = d.MaxAttemptsInWindow
	}
	if c.ConsecutiveFailureThreshold <= 0 {
		c.ConsecutiveFailureThreshold = d.ConsecutiveFailureThreshold
	}
	if c.RapidInterval <= 0 {
		c.RapidInterval = d.RapidInterval
	}
	if c.RapidPairThreshold <= 0 {
		c.RapidPairThreshold = d.RapidPairThreshold
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = d.MaxHistory
	}
	return c
}

// Attempt is one observed authentication attempt.
type Attempt struct {
	Timestamp  time.Time
	Identifier string
	Operation  string
	Success    bool
	ClientTag  string
}

// Pattern is the derived view of an identifier's recent attempts.
type Pattern struct {
	Attempts            []Attempt
	ConsecutiveFailures uint32
	UnderAttack         bool
	LockoutLevel        uint32
}

const stripeCount = 64

// Detector records attempts and evaluates attack heuristics. It is safe for
// concurrent use within a process.
type Detector struct {
	store  Store
	config Config
	now    func() time.Time
	logger *zap.Logger
	seed   maphash.Seed
	locks  [stripeCount]sync.Mutex
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock overrides the detector clock.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// New returns a detector persisting histories in s.
func New(s Store, cfg Config, opts ...Option) *Detector {
	d := &Detector{
		store:  s,
		config: cfg.withDefaults(),
		now:    time.Now,
		logger: zap.NewNop(),
		seed:   maphash.MakeSeed(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func patternKey(identifier string) string {
	return "ap:" + identifier
}

func (d *Detector) lock(identifier string) *sync.Mutex {
	return &d.locks[maphash.String(d.seed, identifier)%stripeCount]
}

// Record appends attempt to the identifier's history, prunes it, re-evaluates
// the heuristics and persists the result. A zero Timestamp is replaced by the
// detector clock.
func (d *Detector) Record(ctx context.Context, attempt Attempt) (Pattern, error) {
	if d == nil {
		return Pattern{}, nil
	}
	if attempt.Identifier == "" {
		return Pattern{}, ErrInvalidIdentifier
	}
	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = d.now()
	}

	mu := d.lock(attempt.Identifier)
	mu.Lock()
	defer mu.Unlock()

	stored, err := d.load(ctx, attempt.Identifier)
	if err != nil {
		return Pattern{}, err
	}

	wasUnderAttack := d.evaluate(stored, attempt.Timestamp).UnderAttack

	stored.Attempts = append(stored.Attempts, attempt)
	pattern := d.evaluate(stored, attempt.Timestamp)
	if pattern.UnderAttack && !wasUnderAttack {
		pattern.LockoutLevel++
		d.logger.Warn("attack pattern detected",
			zap.String("identifier", attempt.Identifier),
			zap.String("operation", attempt.Operation),
			zap.Uint32("lockout_level", pattern.LockoutLevel),
			zap.Uint32("consecutive_failures", pattern.ConsecutiveFailures),
		)
	}

	data, err := encodePattern(pattern)
	if err != nil {
		return Pattern{}, err
	}
	if err := d.store.Set(ctx, patternKey(attempt.Identifier), data, d.config.HistoryWindow); err != nil {
		return Pattern{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return pattern, nil
}

// Pattern returns the identifier's current view without writing anything.
func (d *Detector) Pattern(ctx context.Context, identifier string) (Pattern, error) {
	if d == nil || identifier == "" {
		return Pattern{}, nil
	}
	stored, err := d.load(ctx, identifier)
	if err != nil {
		return Pattern{}, err
	}
	return d.evaluate(stored, d.now()), nil
}

// IsUnderAttack reports the current verdict for identifier.
func (d *Detector) IsUnderAttack(ctx context.Context, identifier string) (bool, error) {
	p, err := d.Pattern(ctx, identifier)
	if err != nil {
		return false, err
	}
	return p.UnderAttack, nil
}

// Forget drops the identifier's history and lockout level.
func (d *Detector) Forget(ctx context.Context, identifier string) error {
	if d == nil || identifier == "" {
		return nil
	}
	mu := d.lock(identifier)
	mu.Lock()
	defer mu.Unlock()
	if err := d.store.Delete(ctx, patternKey(identifier)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (d *Detector) load(ctx context.Context, identifier string) (Pattern, error) {
	data, err := d.store.Get(ctx, patternKey(identifier))
	if err != nil {
		return Pattern{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if data == nil {
		return Pattern{}, nil
	}
	p, err := decodePattern(data, identifier)
	if err != nil {
		// A corrupt history is discarded rather than blocking the identifier.
		d.logger.Warn("discarding corrupt attack pattern", zap.String("identifier", identifier), zap.Error(err))
		return Pattern{}, nil
	}
	return p, nil
}

// evaluate prunes p to the history window ending at now and derives the
// verdict. LockoutLevel is carried over unchanged.
func (d *Detector) evaluate(p Pattern, now time.Time) Pattern {
	cfg := d.config
	historyStart := now.Add(-cfg.HistoryWindow)
	frequencyStart := now.Add(-cfg.FrequencyWindow)

	kept := make([]Attempt, 0, len(p.Attempts))
	for _, a := range p.Attempts {
		if a.Timestamp.After(historyStart) {
			kept = append(kept, a)
		}
	}
	if over := len(kept) - cfg.MaxHistory; over > 0 {
		kept = kept[over:]
	}

	var consecutive uint32
	for i := len(kept) - 1; i >= 0 && !kept[i].Success; i-- {
		consecutive++
	}

	var inWindow, rapidPairs int
	var prev *Attempt
	for i := range kept {
		a := &kept[i]
		if a.Timestamp.Before(frequencyStart) {
			continue
		}
		inWindow++
		if prev != nil && a.Timestamp.Sub(prev.Timestamp) < cfg.RapidInterval {
			rapidPairs++
		}
		prev = a
	}

	// A success clears the flag until the next recorded attempt, which
	// re-evaluates the whole window.
	lastSucceeded := len(kept) > 0 && kept[len(kept)-1].Success

	return Pattern{
		Attempts:            kept,
		ConsecutiveFailures: consecutive,
		LockoutLevel:        p.LockoutLevel,
		UnderAttack: !lastSucceeded && (inWindow > cfg.MaxAttemptsInWindow ||
			int(consecutive) >= cfg.ConsecutiveFailureThreshold ||
			rapidPairs > cfg.RapidPairThreshold),
	}
}
