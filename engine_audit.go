package goPasskey

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventRegisterOptions    = "passkey_register_options"
	auditEventRegisterSuccess    = "passkey_register_success"
	auditEventRegisterFailure    = "passkey_register_failure"
	auditEventAuthOptions        = "passkey_auth_options"
	auditEventAuthSuccess        = "passkey_auth_success"
	auditEventAuthFailure        = "passkey_auth_failure"
	auditEventConnectOptions     = "passkey_connect_options"
	auditEventConnectSuccess     = "passkey_connect_success"
	auditEventConnectFailure     = "passkey_connect_failure"
	auditEventCloneDetected      = "passkey_clone_detected"
	auditEventChallengeReplay    = "passkey_challenge_replay"
	auditEventHandoffDegraded    = "passkey_handoff_degraded"
	auditEventCredentialRenamed  = "passkey_credential_renamed"
	auditEventCredentialDisabled = "passkey_credential_disabled"
	auditEventCredentialEnabled  = "passkey_credential_enabled"
	auditEventCredentialDeleted  = "passkey_credential_deleted"
	auditEventRateLimitTriggered = "rate_limit_triggered"
)

// AuditErrorCode defines a public type used by goPasskey APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrRateLimited         AuditErrorCode = "rate_limited"
	auditErrChallengeInvalid    AuditErrorCode = "challenge_invalid"
	auditErrMalformedPayload    AuditErrorCode = "malformed_payload"
	auditErrVerificationFailed  AuditErrorCode = "verification_failed"
	auditErrPotentialCompromise AuditErrorCode = "potential_compromise"
	auditErrDuplicate           AuditErrorCode = "duplicate"
	auditErrUnknownCredential   AuditErrorCode = "unknown_credential"
	auditErrUnavailable         AuditErrorCode = "backend_unavailable"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subjectID string,
	credentialID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		SubjectID:    subjectID,
		CredentialID: credentialID,
		IP:           clientIPFromContext(ctx),
		Success:      success,
		Metadata:     metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	scope string,
	subjectID string,
	metadataBuilder func() map[string]string,
) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, subjectID, "", ErrRateLimited, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrChallengeInvalid):
		return auditErrChallengeInvalid
	case errors.Is(err, ErrMalformedPayload):
		return auditErrMalformedPayload
	case errors.Is(err, ErrVerificationFailed):
		return auditErrVerificationFailed
	case errors.Is(err, ErrPotentialCompromise):
		return auditErrPotentialCompromise
	case errors.Is(err, ErrDuplicateCredential):
		return auditErrDuplicate
	case errors.Is(err, ErrUnknownCredential):
		return auditErrUnknownCredential
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
