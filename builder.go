package goPasskey

import (
	"errors"
	"time"

	"github.com/MrEthical07/goPasskey/challenge"
	"github.com/MrEthical07/goPasskey/credential"
	"github.com/MrEthical07/goPasskey/internal/rate"
	"github.com/MrEthical07/goPasskey/webauthn"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by goPasskey APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  *redis.Client

	verifier  Verifier
	issuer    SessionIssuer
	directory credential.DirectoryService
	backend   credential.Backend
	auditSink AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithVerifier overrides the default go-webauthn backed verifier, mainly for
// tests and for callers that terminate ceremonies elsewhere.
//
// WithVerifier may return an error when input validation, dependency calls, or security checks fail.
// WithVerifier does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithVerifier(v Verifier) *Builder {
	b.verifier = v
	return b
}

// WithSessionIssuer describes the withsessionissuer operation and its observable behavior.
//
// WithSessionIssuer may return an error when input validation, dependency calls, or security checks fail.
// WithSessionIssuer does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithSessionIssuer(issuer SessionIssuer) *Builder {
	b.issuer = issuer
	return b
}

// WithUserDirectory wires the external user directory. It doubles as the
// credential persistence backend unless WithCredentialBackend overrides that.
//
// WithUserDirectory may return an error when input validation, dependency calls, or security checks fail.
// WithUserDirectory does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithUserDirectory(dir credential.DirectoryService) *Builder {
	b.directory = dir
	return b
}

// WithCredentialBackend describes the withcredentialbackend operation and its observable behavior.
//
// WithCredentialBackend may return an error when input validation, dependency calls, or security checks fail.
// WithCredentialBackend does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithCredentialBackend(backend credential.Backend) *Builder {
	b.backend = backend
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms may return an error when input validation, dependency calls, or security checks fail.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// -------- CHALLENGE LAYER --------
	codec, err := challenge.NewCodec(cfg.Challenge.Secret, cfg.Challenge.RetiredSecrets...)
	if err != nil {
		return nil, err
	}
	challengeStore := challenge.NewStore(b.redis)

	// -------- ADMISSION --------
	limiter := rate.New(b.redis)
	var lockout *rate.Lockout
	if cfg.Lockout.Enabled {
		lockout = rate.NewLockout(b.redis, rate.LockoutConfig{
			Enabled:   true,
			Threshold: cfg.Lockout.Threshold,
			Duration:  cfg.Lockout.Window,
		})
	}

	// -------- CREDENTIAL REPOSITORY --------
	backend := b.backend
	if backend == nil {
		if b.directory != nil {
			backend = credential.NewDirectoryBackend(b.directory)
		} else {
			backend = credential.NewRedisBackend(b.redis)
		}
	}
	repository := credential.NewRepository(backend)

	// -------- VERIFIER --------
	verifier := b.verifier
	if verifier == nil {
		if cfg.RP.ID == "" || cfg.RP.DisplayName == "" || len(cfg.RP.Origins) == 0 {
			return nil, errors.New("RP ID, DisplayName and Origins required to build the default verifier")
		}
		v, err := webauthn.NewVerifier(webauthn.Config{
			RPDisplayName: cfg.RP.DisplayName,
			RPID:          cfg.RP.ID,
			RPOrigins:     append([]string(nil), cfg.RP.Origins...),
		})
		if err != nil {
			return nil, err
		}
		verifier = v
	}

	var directory UserDirectory
	if b.directory != nil {
		directory = b.directory
	}

	engine := &Engine{
		config:      cfg,
		codec:       codec,
		challenges:  challengeStore,
		limiter:     limiter,
		lockout:     lockout,
		credentials: repository,
		verifier:    verifier,
		issuer:      b.issuer,
		directory:   directory,
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:     NewMetrics(cfg.Metrics),
		now:         time.Now,
	}

	b.built = true
	return engine, nil
}
