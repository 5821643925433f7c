package goPasskey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goPasskey/challenge"
	"github.com/MrEthical07/goPasskey/credential"
	"github.com/MrEthical07/goPasskey/internal/rate"
)

const (
	opRegisterOptions = "register:options"
	opRegisterVerify  = "register:verify"
	opAuthOptions     = "auth:options"
	opAuthVerify      = "auth:verify"
	opConnectOptions  = "connect:options"
	opConnectVerify   = "connect:verify"
)

// Engine defines a public type used by goPasskey APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config      Config
	codec       *challenge.Codec
	challenges  *challenge.Store
	limiter     *rate.Limiter
	lockout     *rate.Lockout
	credentials *credential.Repository
	verifier    Verifier
	issuer      SessionIssuer
	directory   UserDirectory
	audit       *auditDispatcher
	metrics     *Metrics
	now         func() time.Time
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// normalizeSubject canonicalizes an identity string before it is used as a
// limiter, challenge, or repository key. Emails arrive in mixed case.
func normalizeSubject(subjectID string) string {
	return strings.ToLower(strings.TrimSpace(subjectID))
}

// admit runs the fixed-window limiter and the escalating lockout gate for one
// operation. The limiter keys on the caller IP when the context carries one,
// falling back to the subject identifier.
func (e *Engine) admit(ctx context.Context, operation, subjectID string, maxAttempts int) error {
	caller := clientIPFromContext(ctx)
	if caller == "" {
		caller = subjectID
	}

	decision, err := e.limiter.Allow(ctx, operation, caller, maxAttempts, e.config.RateLimit.Window)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !decision.Allowed {
		e.emitRateLimit(ctx, operation, subjectID, nil)
		return &RateLimitedError{Operation: operation, ResetAt: decision.ResetAt}
	}

	if e.lockout != nil {
		locked, err := e.lockout.Locked(ctx, subjectID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if locked {
			e.emitRateLimit(ctx, operation, subjectID, func() map[string]string {
				return map[string]string{
					"reason": "lockout",
				}
			})
			// The lockout TTL rolls on every failure; the window length is
			// an upper bound on the remaining lock time.
			return &RateLimitedError{Operation: operation, ResetAt: e.now().Add(e.config.Lockout.Window)}
		}
	}

	return nil
}

func (e *Engine) recordFailure(ctx context.Context, subjectID string) {
	if e.lockout == nil {
		return
	}
	// Tally errors never mask the ceremony outcome.
	_, _ = e.lockout.RecordFailure(ctx, subjectID)
}

func (e *Engine) recordSuccess(ctx context.Context, subjectID string) {
	if e.lockout == nil {
		return
	}
	_ = e.lockout.Reset(ctx, subjectID)
}

// ceremonyScope collapses the options and verify endpoints of one ceremony to
// a single label so a challenge issued at options time is found at verify time.
func ceremonyScope(operation string) string {
	if i := strings.IndexByte(operation, ':'); i > 0 {
		return operation[:i]
	}
	return operation
}

// issueChallenge mints a challenge for (operation, subjectID). In server-held
// mode the challenge value is also persisted; reissuing supersedes any prior
// outstanding challenge for the same pair.
func (e *Engine) issueChallenge(ctx context.Context, operation, subjectID string) (challenge.Issued, error) {
	issued, err := e.codec.Issue(subjectID, e.config.Challenge.TTL)
	if err != nil {
		return challenge.Issued{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if e.config.Challenge.Mode == ModeServerHeld {
		if err := e.challenges.Save(ctx, ceremonyScope(operation), subjectID, issued.Challenge, e.config.Challenge.TTL); err != nil {
			return challenge.Issued{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	e.metricInc(MetricChallengeIssued)
	return issued, nil
}

// verifyChallenge enforces the single-use freshness contract for both modes.
// Stateless tokens are burned by digest after MAC verification; server-held
// records are consumed atomically by the store.
func (e *Engine) verifyChallenge(ctx context.Context, operation, subjectID, challengeValue, token string) error {
	switch e.config.Challenge.Mode {
	case ModeServerHeld:
		err := e.challenges.Consume(ctx, ceremonyScope(operation), subjectID, challengeValue, e.config.Challenge.TTL)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, challenge.ErrUnavailable):
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		default:
			return fmt.Errorf("%w: %v", ErrChallengeInvalid, err)
		}
	default:
		if err := e.codec.Verify(subjectID, challengeValue, token); err != nil {
			return fmt.Errorf("%w: %v", ErrChallengeInvalid, err)
		}
		fresh, err := e.challenges.MarkTokenUsed(ctx, token, e.config.Challenge.TTL)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if !fresh {
			e.metricInc(MetricChallengeReplay)
			e.emitAudit(ctx, auditEventChallengeReplay, false, subjectID, "", ErrChallengeInvalid, func() map[string]string {
				return map[string]string{
					"operation": operation,
					"token":     challenge.TokenDigest(token),
				}
			})
			return fmt.Errorf("%w: %v", ErrChallengeInvalid, challenge.ErrTokenInvalid)
		}
		return nil
	}
}

// userHandle resolves the external directory handle for subjectID. Without a
// configured directory the subject identifier is the handle.
func (e *Engine) userHandle(ctx context.Context, subjectID string) (string, error) {
	if e.directory == nil {
		return subjectID, nil
	}

	dctx, cancel := context.WithTimeout(ctx, e.config.Timeouts.Directory)
	defer cancel()

	handle, err := e.directory.FindOrCreate(dctx, subjectID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if handle == "" {
		return subjectID, nil
	}
	return handle, nil
}

// ListPasskeys returns every credential stored for a subject, all statuses
// included; callers filter.
func (e *Engine) ListPasskeys(ctx context.Context, subjectID string) ([]credential.Record, error) {
	if e == nil || e.credentials == nil {
		return nil, ErrEngineNotReady
	}

	records, err := e.credentials.ListBySubject(ctx, normalizeSubject(subjectID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return records, nil
}
