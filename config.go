package authflow

import (
	"crypto/ed25519"
	"errors"
	"strings"
	"time"
)

// Config is the engine configuration. Build clones it, so later changes to
// the caller's copy have no effect. The per-operation attempt policies are
// fixed and not configurable.
type Config struct {
	Store           StoreConfig
	AttackDetection AttackDetectionConfig
	Flow            FlowConfig
	ResumeToken     ResumeTokenConfig
	PasswordPolicy  PasswordPolicyConfig
	Audit           AuditConfig
	Metrics         MetricsConfig
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig controls the persistent store. When no store and no Redis
// client are supplied to the builder an in-memory store is used.
type StoreConfig struct {
	RedisPrefix string
}

/*
====================================
ATTACK DETECTION CONFIG
====================================
*/

// AttackDetectionConfig tunes the per-identifier attack heuristics.
type AttackDetectionConfig struct {
	HistoryWindow               time.Duration
	FrequencyWindow             time.Duration
	MaxAttemptsInWindow         int
	ConsecutiveFailureThreshold int
	RapidInterval               time.Duration
	RapidPairThreshold          int
	MaxHistory                  int
}

/*
====================================
FLOW CONFIG
====================================
*/

// FlowConfig controls flow progress persistence and input checks.
type FlowConfig struct {
	// ProgressTTL bounds how long an abandoned flow can be resumed.
	ProgressTTL time.Duration
	// CodeDigits is the length of numeric verification codes.
	CodeDigits int
	// PollInterval is the default AwaitVerification interval.
	PollInterval time.Duration
}

/*
====================================
RESUME TOKEN CONFIG
====================================
*/

// ResumeTokenConfig controls signed resume tokens. With Enabled set and no
// keys supplied, Build generates an ephemeral ed25519 key pair, which makes
// tokens valid for this process only.
type ResumeTokenConfig struct {
	Enabled       bool
	TTL           time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
}

/*
====================================
PASSWORD POLICY CONFIG
====================================
*/

// PasswordPolicyConfig bounds new passwords at PasswordSetup and
// PasswordResetConfirm.
type PasswordPolicyConfig struct {
	MinLength int
	MaxLength int
	// MinScore is the minimum zxcvbn strength score (0-4). Zero disables the
	// strength check.
	MinScore int
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Store: StoreConfig{
			RedisPrefix: "af",
		},
		AttackDetection: AttackDetectionConfig{
			HistoryWindow:               time.Hour,
			FrequencyWindow:             15 * time.Minute,
			MaxAttemptsInWindow:         10,
			ConsecutiveFailureThreshold: 5,
			RapidInterval:               time.Second,
			RapidPairThreshold:          3,
			MaxHistory:                  128,
		},
		Flow: FlowConfig{
			ProgressTTL:  24 * time.Hour,
			CodeDigits:   6,
			PollInterval: 5 * time.Second,
		},
		ResumeToken: ResumeTokenConfig{
			TTL:           30 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "authflow",
		},
		PasswordPolicy: PasswordPolicyConfig{
			MinLength: 8,
			MaxLength: 256,
			MinScore:  3,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.ResumeToken.PrivateKey = cloneBytes(cfg.ResumeToken.PrivateKey)
	out.ResumeToken.PublicKey = cloneBytes(cfg.ResumeToken.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Store
	if strings.ContainsAny(c.Store.RedisPrefix, " \t\r\n") {
		return errors.New("Store RedisPrefix must not contain whitespace")
	}

	// Attack detection
	a := c.AttackDetection
	if a.HistoryWindow <= 0 || a.FrequencyWindow <= 0 {
		return errors.New("AttackDetection windows must be > 0")
	}
	if a.FrequencyWindow > a.HistoryWindow {
		return errors.New("AttackDetection FrequencyWindow must be <= HistoryWindow")
	}
	if a.MaxAttemptsInWindow <= 0 || a.ConsecutiveFailureThreshold <= 0 || a.RapidPairThreshold <= 0 {
		return errors.New("AttackDetection thresholds must be > 0")
	}
	if a.RapidInterval <= 0 {
		return errors.New("AttackDetection RapidInterval must be > 0")
	}
	if a.MaxHistory <= a.MaxAttemptsInWindow {
		return errors.New("AttackDetection MaxHistory must exceed MaxAttemptsInWindow")
	}
	if a.MaxHistory > 4096 {
		return errors.New("AttackDetection MaxHistory must be <= 4096")
	}

	// Flow
	if c.Flow.ProgressTTL <= 0 {
		return errors.New("Flow ProgressTTL must be > 0")
	}
	if c.Flow.CodeDigits < 4 || c.Flow.CodeDigits > 10 {
		return errors.New("Flow CodeDigits must be between 4 and 10")
	}
	if c.Flow.PollInterval <= 0 {
		return errors.New("Flow PollInterval must be > 0")
	}

	// Resume tokens
	if c.ResumeToken.Enabled {
		if c.ResumeToken.TTL <= 0 {
			return errors.New("ResumeToken TTL must be > 0")
		}
		if c.ResumeToken.TTL > c.Flow.ProgressTTL {
			return errors.New("ResumeToken TTL must be <= Flow ProgressTTL")
		}
		switch c.ResumeToken.SigningMethod {
		case "ed25519":
			if len(c.ResumeToken.PublicKey) > 0 && len(c.ResumeToken.PrivateKey) == 0 {
				return errors.New("ResumeToken ed25519 requires PrivateKey when PublicKey is set")
			}
			if n := len(c.ResumeToken.PrivateKey); n > 0 && n != ed25519.PrivateKeySize && !strings.Contains(string(c.ResumeToken.PrivateKey), "PRIVATE KEY") {
				return errors.New("ResumeToken ed25519 PrivateKey is malformed")
			}
		case "hs256":
			if len(c.ResumeToken.PrivateKey) < 32 {
				return errors.New("ResumeToken hs256 requires a PrivateKey of at least 32 bytes")
			}
		default:
			return errors.New("unsupported ResumeToken signing method")
		}
	}

	// Password policy
	p := c.PasswordPolicy
	if p.MinLength < 1 {
		return errors.New("PasswordPolicy MinLength must be >= 1")
	}
	if p.MaxLength < p.MinLength {
		return errors.New("PasswordPolicy MaxLength must be >= MinLength")
	}
	if p.MinScore < 0 || p.MinScore > 4 {
		return errors.New("PasswordPolicy MinScore must be between 0 and 4")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
