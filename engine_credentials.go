package goPasskey

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goPasskey/credential"
)

// RenamePasskey describes the renamepasskey operation and its observable behavior.
//
// RenamePasskey may return an error when input validation, dependency calls, or security checks fail.
// RenamePasskey does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RenamePasskey(ctx context.Context, credentialID, displayName string) error {
	if e == nil || e.credentials == nil {
		return ErrEngineNotReady
	}

	if err := e.credentials.Rename(ctx, credentialID, displayName); err != nil {
		return mapCredentialError(err, credentialID)
	}

	e.emitAudit(ctx, auditEventCredentialRenamed, true, "", credentialID, nil, func() map[string]string {
		return map[string]string{
			"display_name": displayName,
		}
	})
	return nil
}

// DisablePasskey is the reversible alternative to deletion; a disabled
// credential is never offered for authentication and never asserts.
//
// DisablePasskey may return an error when input validation, dependency calls, or security checks fail.
// DisablePasskey does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) DisablePasskey(ctx context.Context, credentialID string) error {
	if e == nil || e.credentials == nil {
		return ErrEngineNotReady
	}

	if err := e.credentials.SetStatus(ctx, credentialID, credential.StatusDisabled); err != nil {
		return mapCredentialError(err, credentialID)
	}

	e.metricInc(MetricCredentialDisabled)
	e.emitAudit(ctx, auditEventCredentialDisabled, true, "", credentialID, nil, nil)
	return nil
}

// EnablePasskey restores a disabled or compromised credential to active.
// Re-enabling a compromised credential is an explicit owner decision.
//
// EnablePasskey may return an error when input validation, dependency calls, or security checks fail.
// EnablePasskey does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) EnablePasskey(ctx context.Context, credentialID string) error {
	if e == nil || e.credentials == nil {
		return ErrEngineNotReady
	}

	if err := e.credentials.SetStatus(ctx, credentialID, credential.StatusActive); err != nil {
		return mapCredentialError(err, credentialID)
	}

	e.emitAudit(ctx, auditEventCredentialEnabled, true, "", credentialID, nil, nil)
	return nil
}

// DeletePasskey removes a credential permanently. There is no recovery path;
// DisablePasskey is the reversible option.
//
// DeletePasskey may return an error when input validation, dependency calls, or security checks fail.
// DeletePasskey does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) DeletePasskey(ctx context.Context, credentialID string) error {
	if e == nil || e.credentials == nil {
		return ErrEngineNotReady
	}

	if err := e.credentials.Delete(ctx, credentialID); err != nil {
		return mapCredentialError(err, credentialID)
	}

	e.metricInc(MetricCredentialDeleted)
	e.emitAudit(ctx, auditEventCredentialDeleted, true, "", credentialID, nil, nil)
	return nil
}

// PasskeyHistory returns the process-local forensic counter history for a
// credential, newest last.
func (e *Engine) PasskeyHistory(credentialID string) []credential.HistoryEntry {
	if e == nil || e.credentials == nil {
		return nil
	}
	return e.credentials.History(credentialID)
}

func mapCredentialError(err error, credentialID string) error {
	switch {
	case errors.Is(err, credential.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrUnknownCredential, credentialID)
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}
