package goPasskey

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goPasskey/credential"
)

// BeginAuthentication describes the beginauthentication operation and its observable behavior.
//
// BeginAuthentication may return an error when input validation, dependency calls, or security checks fail.
// BeginAuthentication does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) BeginAuthentication(ctx context.Context, subjectID string) (*AuthenticationOptions, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}
	subjectID = normalizeSubject(subjectID)

	if err := e.admit(ctx, opAuthOptions, subjectID, e.config.RateLimit.AuthOptionsMax); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricAuthenticationRateLimited)
		}
		return nil, err
	}

	records, err := e.credentials.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	// Only active credentials are offered; an empty allow list tells the
	// client to register instead.
	allowed := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.Status == credential.StatusActive {
			allowed = append(allowed, rec.CredentialID)
		}
	}

	issued, err := e.issueChallenge(ctx, opAuthOptions, subjectID)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventAuthOptions, true, subjectID, "", nil, func() map[string]string {
		return map[string]string{
			"allowed": fmt.Sprintf("%d", len(allowed)),
		}
	})

	return &AuthenticationOptions{
		Challenge:          issued.Challenge,
		Token:              issued.Token,
		ExpiresAt:          issued.ExpiresAt,
		RPID:               e.config.RP.ID,
		AllowCredentialIDs: allowed,
	}, nil
}

// CompleteAuthentication verifies an assertion payload against the stored
// credential state, commits the new signature counter, and requests a session
// hand-off. A counter regression marks the credential compromised and aborts
// without a hand-off.
//
// CompleteAuthentication may return an error when input validation, dependency calls, or security checks fail.
// CompleteAuthentication does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CompleteAuthentication(ctx context.Context, subjectID, challengeValue, token string, assertionPayload []byte) (*AuthenticationResult, error) {
	if e == nil || e.codec == nil || e.verifier == nil {
		return nil, ErrEngineNotReady
	}
	started := e.now()
	subjectID = normalizeSubject(subjectID)

	if err := e.admit(ctx, opAuthVerify, subjectID, e.config.RateLimit.AuthVerifyMax); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricAuthenticationRateLimited)
		}
		return nil, err
	}

	if err := e.verifyChallenge(ctx, opAuthVerify, subjectID, challengeValue, token); err != nil {
		return nil, e.failAuthentication(ctx, subjectID, "", err)
	}

	credentialID, err := validateAssertionShape(assertionPayload)
	if err != nil {
		return nil, e.failAuthentication(ctx, subjectID, "", err)
	}

	owner, stored, err := e.credentials.FindByCredentialID(ctx, credentialID)
	switch {
	case errors.Is(err, credential.ErrNotFound):
		return nil, e.failAuthentication(ctx, subjectID, credentialID, fmt.Errorf("%w: %s", ErrUnknownCredential, credentialID))
	case err != nil:
		return nil, e.failAuthentication(ctx, subjectID, credentialID, fmt.Errorf("%w: %v", ErrBackendUnavailable, err))
	}
	// A credential owned by someone else, or one that is disabled or
	// compromised, is indistinguishable from an unknown one to the caller.
	if owner != subjectID || stored.Status != credential.StatusActive {
		return nil, e.failAuthentication(ctx, subjectID, credentialID, fmt.Errorf("%w: %s", ErrUnknownCredential, credentialID))
	}

	handle, err := e.userHandle(ctx, subjectID)
	if err != nil {
		return nil, e.failAuthentication(ctx, subjectID, credentialID, err)
	}

	vctx, cancel := context.WithTimeout(ctx, e.config.Timeouts.Verifier)
	verified, err := e.verifier.VerifyAuthentication(vctx, assertionPayload, challengeValue, subjectID, handle, stored.CredentialID, stored.PublicKey, stored.Counter)
	cancel()
	if err != nil {
		return nil, e.failAuthentication(ctx, subjectID, credentialID, mapVerifierError(err))
	}

	updated, err := e.credentials.UpdateCounter(ctx, credentialID, verified.NewCounter)
	switch {
	case errors.Is(err, credential.ErrCounterRegression):
		return nil, e.handleCloneSignal(ctx, subjectID, credentialID, stored.Counter, verified.NewCounter)
	case errors.Is(err, credential.ErrNotFound):
		return nil, e.failAuthentication(ctx, subjectID, credentialID, fmt.Errorf("%w: %s", ErrUnknownCredential, credentialID))
	case err != nil:
		return nil, e.failAuthentication(ctx, subjectID, credentialID, fmt.Errorf("%w: %v", ErrBackendUnavailable, err))
	}

	e.recordSuccess(ctx, subjectID)

	result := &AuthenticationResult{
		SubjectID:    subjectID,
		CredentialID: credentialID,
		Counter:      updated.Counter,
	}

	if e.issuer != nil {
		ictx, cancel := context.WithTimeout(ctx, e.config.Timeouts.SessionIssuer)
		grant, err := e.issuer.Issue(ictx, handle)
		cancel()
		if err != nil || grant == nil {
			// Cryptographic success stands; the caller gets a degraded
			// outcome instead of a hand-off secret.
			result.Degraded = true
			e.metricInc(MetricHandoffDegraded)
			e.emitAudit(ctx, auditEventHandoffDegraded, true, subjectID, credentialID, nil, func() map[string]string {
				md := map[string]string{}
				if err != nil {
					md["reason"] = "issuer_error"
				} else {
					md["reason"] = "issuer_declined"
				}
				return md
			})
		} else {
			result.Handoff = grant
			e.metricInc(MetricHandoffIssued)
		}
	} else {
		result.Degraded = true
		e.metricInc(MetricHandoffDegraded)
	}

	e.metricInc(MetricAuthenticationSuccess)
	if e.metrics != nil {
		e.metrics.Observe(MetricCeremonyLatency, e.now().Sub(started))
	}
	e.emitAudit(ctx, auditEventAuthSuccess, true, subjectID, credentialID, nil, func() map[string]string {
		return map[string]string{
			"counter": fmt.Sprintf("%d", updated.Counter),
		}
	})

	return result, nil
}

func (e *Engine) failAuthentication(ctx context.Context, subjectID, credentialID string, err error) error {
	e.recordFailure(ctx, subjectID)
	e.metricInc(MetricAuthenticationFailure)
	e.emitAudit(ctx, auditEventAuthFailure, false, subjectID, credentialID, err, nil)
	return err
}

// handleCloneSignal reacts to a signature counter regression: the credential
// is marked compromised before the error surfaces, and no session is issued.
// The stored counter keeps the last known-good value as evidence.
func (e *Engine) handleCloneSignal(ctx context.Context, subjectID, credentialID string, storedCounter, reportedCounter uint32) error {
	if err := e.credentials.SetStatus(ctx, credentialID, credential.StatusCompromised); err != nil {
		e.emitAudit(ctx, auditEventCloneDetected, false, subjectID, credentialID, fmt.Errorf("%w: %v", ErrBackendUnavailable, err), nil)
	}

	e.recordFailure(ctx, subjectID)
	e.metricInc(MetricCloneDetected)
	e.metricInc(MetricAuthenticationFailure)
	e.emitAudit(ctx, auditEventCloneDetected, false, subjectID, credentialID, ErrPotentialCompromise, func() map[string]string {
		return map[string]string{
			"stored_counter":   fmt.Sprintf("%d", storedCounter),
			"reported_counter": fmt.Sprintf("%d", reportedCounter),
		}
	})

	return fmt.Errorf("%w: credential %s", ErrPotentialCompromise, credentialID)
}
