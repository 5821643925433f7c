package goPasskey

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goPasskey/credential"
	"github.com/MrEthical07/goPasskey/webauthn"
)

// BeginRegistration describes the beginregistration operation and its observable behavior.
//
// BeginRegistration may return an error when input validation, dependency calls, or security checks fail.
// BeginRegistration does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) BeginRegistration(ctx context.Context, subjectID string) (*RegistrationOptions, error) {
	return e.beginEnrollment(ctx, opRegisterOptions, auditEventRegisterOptions, subjectID)
}

// CompleteRegistration verifies an attestation payload and stores the new
// credential. Registration never issues a session hand-off; the caller runs
// an authentication ceremony (or its own session logic) afterwards.
//
// CompleteRegistration may return an error when input validation, dependency calls, or security checks fail.
// CompleteRegistration does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CompleteRegistration(ctx context.Context, subjectID, challengeValue, token string, attestationPayload []byte) (*RegistrationResult, error) {
	return e.completeEnrollment(ctx, enrollmentFlow{
		opVerify:     opRegisterVerify,
		eventSuccess: auditEventRegisterSuccess,
		eventFailure: auditEventRegisterFailure,
		metricOK:     MetricRegistrationSuccess,
		metricFail:   MetricRegistrationFailure,
		metricDenied: MetricRegistrationRateLimited,
	}, subjectID, challengeValue, token, attestationPayload)
}

// BeginConnect starts the add-a-passkey flow for an already-authenticated
// subject. Same ceremony as registration under separate limiter keys.
//
// BeginConnect may return an error when input validation, dependency calls, or security checks fail.
// BeginConnect does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) BeginConnect(ctx context.Context, subjectID string) (*RegistrationOptions, error) {
	return e.beginEnrollment(ctx, opConnectOptions, auditEventConnectOptions, subjectID)
}

// CompleteConnect describes the completeconnect operation and its observable behavior.
//
// CompleteConnect may return an error when input validation, dependency calls, or security checks fail.
// CompleteConnect does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CompleteConnect(ctx context.Context, subjectID, challengeValue, token string, attestationPayload []byte) (*RegistrationResult, error) {
	return e.completeEnrollment(ctx, enrollmentFlow{
		opVerify:     opConnectVerify,
		eventSuccess: auditEventConnectSuccess,
		eventFailure: auditEventConnectFailure,
		metricOK:     MetricConnectSuccess,
		metricFail:   MetricConnectFailure,
		metricDenied: MetricRegistrationRateLimited,
	}, subjectID, challengeValue, token, attestationPayload)
}

// enrollmentFlow parameterizes the shared verify-and-store path between the
// registration and connect ceremonies.
type enrollmentFlow struct {
	opVerify     string
	eventSuccess string
	eventFailure string
	metricOK     MetricID
	metricFail   MetricID
	metricDenied MetricID
}

func (e *Engine) rateCap(operation string) int {
	switch operation {
	case opRegisterOptions, opConnectOptions:
		return e.config.RateLimit.RegisterOptionsMax
	case opRegisterVerify, opConnectVerify:
		return e.config.RateLimit.RegisterVerifyMax
	case opAuthOptions:
		return e.config.RateLimit.AuthOptionsMax
	default:
		return e.config.RateLimit.AuthVerifyMax
	}
}

func (e *Engine) beginEnrollment(ctx context.Context, operation, event, subjectID string) (*RegistrationOptions, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}
	subjectID = normalizeSubject(subjectID)

	if err := e.admit(ctx, operation, subjectID, e.rateCap(operation)); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricRegistrationRateLimited)
		}
		return nil, err
	}

	existing, err := e.credentials.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	excluded := make([]string, 0, len(existing))
	for _, rec := range existing {
		excluded = append(excluded, rec.CredentialID)
	}

	handle, err := e.userHandle(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	issued, err := e.issueChallenge(ctx, operation, subjectID)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, event, true, subjectID, "", nil, func() map[string]string {
		return map[string]string{
			"excluded": fmt.Sprintf("%d", len(excluded)),
		}
	})

	return &RegistrationOptions{
		Challenge:            issued.Challenge,
		Token:                issued.Token,
		ExpiresAt:            issued.ExpiresAt,
		RPID:                 e.config.RP.ID,
		RPName:               e.config.RP.DisplayName,
		UserHandle:           handle,
		ExcludeCredentialIDs: excluded,
	}, nil
}

func (e *Engine) completeEnrollment(ctx context.Context, flow enrollmentFlow, subjectID, challengeValue, token string, attestationPayload []byte) (*RegistrationResult, error) {
	if e == nil || e.codec == nil || e.verifier == nil {
		return nil, ErrEngineNotReady
	}
	subjectID = normalizeSubject(subjectID)

	if err := e.admit(ctx, flow.opVerify, subjectID, e.rateCap(flow.opVerify)); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(flow.metricDenied)
		}
		return nil, err
	}

	if err := e.verifyChallenge(ctx, flow.opVerify, subjectID, challengeValue, token); err != nil {
		return nil, e.failEnrollment(ctx, flow, subjectID, "", err)
	}

	// Shape check runs before the verifier or the repository see the payload.
	if err := validateAttestationShape(attestationPayload); err != nil {
		return nil, e.failEnrollment(ctx, flow, subjectID, "", err)
	}

	handle, err := e.userHandle(ctx, subjectID)
	if err != nil {
		return nil, e.failEnrollment(ctx, flow, subjectID, "", err)
	}

	vctx, cancel := context.WithTimeout(ctx, e.config.Timeouts.Verifier)
	verified, err := e.verifier.VerifyRegistration(vctx, attestationPayload, challengeValue, subjectID, handle)
	cancel()
	if err != nil {
		return nil, e.failEnrollment(ctx, flow, subjectID, "", mapVerifierError(err))
	}

	record := credential.Record{
		CredentialID: verified.CredentialID,
		PublicKey:    verified.PublicKey,
		Counter:      verified.InitialCounter,
		Transports:   verified.Transports,
		Status:       credential.StatusActive,
	}
	if err := e.credentials.Create(ctx, subjectID, record); err != nil {
		switch {
		case errors.Is(err, credential.ErrDuplicate):
			return nil, e.failEnrollment(ctx, flow, subjectID, record.CredentialID, fmt.Errorf("%w: %s", ErrDuplicateCredential, record.CredentialID))
		default:
			return nil, e.failEnrollment(ctx, flow, subjectID, record.CredentialID, fmt.Errorf("%w: %v", ErrBackendUnavailable, err))
		}
	}

	stored, err := e.credentials.ListBySubject(ctx, subjectID)
	if err == nil {
		for _, rec := range stored {
			if rec.CredentialID == record.CredentialID {
				record = rec
				break
			}
		}
	}

	e.recordSuccess(ctx, subjectID)
	e.metricInc(flow.metricOK)
	e.metricInc(MetricCredentialCreated)
	e.emitAudit(ctx, flow.eventSuccess, true, subjectID, record.CredentialID, nil, nil)

	return &RegistrationResult{
		SubjectID:  subjectID,
		Credential: record,
	}, nil
}

func (e *Engine) failEnrollment(ctx context.Context, flow enrollmentFlow, subjectID, credentialID string, err error) error {
	e.recordFailure(ctx, subjectID)
	e.metricInc(flow.metricFail)
	e.emitAudit(ctx, flow.eventFailure, false, subjectID, credentialID, err, nil)
	return err
}

// mapVerifierError folds verifier outcomes into the public taxonomy: parse or
// crypto rejection is a verification failure, a deadline or transport fault is
// infrastructure and must never read as "verified=false".
func mapVerifierError(err error) error {
	switch {
	case errors.Is(err, webauthn.ErrMalformed), errors.Is(err, webauthn.ErrRejected):
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}
