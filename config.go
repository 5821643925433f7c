package goPasskey

import (
	"errors"
	"time"
)

// Config defines a public type used by goPasskey APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Challenge ChallengeConfig
	RateLimit RateLimitConfig
	Lockout   LockoutConfig
	RP        RPConfig
	Timeouts  TimeoutConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ChallengeMode defines a public type used by goPasskey APIs.
//
// ChallengeMode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ChallengeMode int

const (
	// ModeStateless is an exported constant or variable used by the passkey engine.
	ModeStateless ChallengeMode = iota
	// ModeServerHeld is an exported constant or variable used by the passkey engine.
	ModeServerHeld
)

// ChallengeConfig defines a public type used by goPasskey APIs.
//
// ChallengeConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ChallengeConfig struct {
	Mode           ChallengeMode
	Secret         []byte
	RetiredSecrets [][]byte
	TTL            time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig defines a public type used by goPasskey APIs.
//
// RateLimitConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RateLimitConfig struct {
	Window             time.Duration
	RegisterOptionsMax int
	RegisterVerifyMax  int
	AuthOptionsMax     int
	AuthVerifyMax      int
}

// LockoutConfig defines a public type used by goPasskey APIs.
//
// LockoutConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LockoutConfig struct {
	Enabled   bool
	Threshold int
	Window    time.Duration
}

/*
====================================
RELYING PARTY CONFIG
====================================
*/

// RPConfig defines a public type used by goPasskey APIs.
//
// RPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
// The relying-party identity is fixed at construction time; deriving it
// per-request from proxy headers moves the security boundary and is left to
// callers who accept that trade-off.
type RPConfig struct {
	ID          string
	DisplayName string
	Origins     []string
}

// TimeoutConfig defines a public type used by goPasskey APIs.
//
// TimeoutConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TimeoutConfig struct {
	Verifier      time.Duration
	Directory     time.Duration
	SessionIssuer time.Duration
}

// AuditConfig defines a public type used by goPasskey APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by goPasskey APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration: stateless challenges with
// a 120s TTL, per-operation ceremony windows, and lockout enabled. Callers set
// the challenge secret and relying-party identity before use.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Challenge: ChallengeConfig{
			Mode: ModeStateless,
			TTL:  120 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Window:             time.Minute,
			RegisterOptionsMax: 10,
			RegisterVerifyMax:  20,
			AuthOptionsMax:     15,
			AuthVerifyMax:      30,
		},
		Lockout: LockoutConfig{
			Enabled:   true,
			Threshold: 5,
			Window:    15 * time.Minute,
		},
		Timeouts: TimeoutConfig{
			Verifier:      5 * time.Second,
			Directory:     3 * time.Second,
			SessionIssuer: 3 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Challenge.Secret = cloneBytes(cfg.Challenge.Secret)
	if len(cfg.Challenge.RetiredSecrets) > 0 {
		out.Challenge.RetiredSecrets = make([][]byte, len(cfg.Challenge.RetiredSecrets))
		for i, k := range cfg.Challenge.RetiredSecrets {
			out.Challenge.RetiredSecrets[i] = cloneBytes(k)
		}
	}
	if len(cfg.RP.Origins) > 0 {
		out.RP.Origins = append([]string(nil), cfg.RP.Origins...)
	}
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

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	if len(c.Challenge.Secret) < 16 {
		return errors.New("Challenge Secret must be at least 16 bytes")
	}
	for _, k := range c.Challenge.RetiredSecrets {
		if len(k) < 16 {
			return errors.New("Challenge RetiredSecrets entries must be at least 16 bytes")
		}
	}
	if c.Challenge.TTL <= 0 {
		return errors.New("Challenge TTL must be positive")
	}
	if c.Challenge.Mode != ModeStateless && c.Challenge.Mode != ModeServerHeld {
		return errors.New("Challenge Mode must be ModeStateless or ModeServerHeld")
	}

	if c.RateLimit.Window <= 0 {
		return errors.New("RateLimit Window must be positive")
	}
	if c.RateLimit.RegisterOptionsMax <= 0 ||
		c.RateLimit.RegisterVerifyMax <= 0 ||
		c.RateLimit.AuthOptionsMax <= 0 ||
		c.RateLimit.AuthVerifyMax <= 0 {
		return errors.New("RateLimit per-operation caps must be positive")
	}

	if c.Lockout.Enabled {
		if c.Lockout.Threshold <= 0 {
			return errors.New("Lockout Threshold must be positive when enabled")
		}
		if c.Lockout.Window <= 0 {
			return errors.New("Lockout Window must be positive when enabled")
		}
	}

	if c.Timeouts.Verifier <= 0 || c.Timeouts.Directory <= 0 || c.Timeouts.SessionIssuer <= 0 {
		return errors.New("Timeouts must be positive")
	}

	return nil
}
