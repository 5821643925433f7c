package goPasskey

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrRateLimited is an exported constant or variable used by the passkey engine.
	ErrRateLimited = errors.New("rate limited")
	// ErrChallengeInvalid is an exported constant or variable used by the passkey engine.
	ErrChallengeInvalid = errors.New("challenge invalid")
	// ErrMalformedPayload is an exported constant or variable used by the passkey engine.
	ErrMalformedPayload = errors.New("malformed ceremony payload")
	// ErrVerificationFailed is an exported constant or variable used by the passkey engine.
	ErrVerificationFailed = errors.New("ceremony verification failed")
	// ErrPotentialCompromise is an exported constant or variable used by the passkey engine.
	ErrPotentialCompromise = errors.New("potential credential compromise detected, reset your account")
	// ErrDuplicateCredential is an exported constant or variable used by the passkey engine.
	ErrDuplicateCredential = errors.New("credential already registered")
	// ErrUnknownCredential is an exported constant or variable used by the passkey engine.
	ErrUnknownCredential = errors.New("unknown credential")
	// ErrBackendUnavailable is an exported constant or variable used by the passkey engine.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrEngineNotReady is an exported constant or variable used by the passkey engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RateLimitedError defines a public type used by goPasskey APIs.
//
// RateLimitedError instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RateLimitedError struct {
	Operation string
	ResetAt   time.Time
}

// Error describes the error operation and its observable behavior.
//
// Error may return an error when input validation, dependency calls, or security checks fail.
// Error does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: %s, retry after %s", e.Operation, e.ResetAt.UTC().Format(time.RFC3339))
}

// Unwrap describes the unwrap operation and its observable behavior.
//
// Unwrap may return an error when input validation, dependency calls, or security checks fail.
// Unwrap does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

// MalformedPayloadError defines a public type used by goPasskey APIs.
//
// MalformedPayloadError instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MalformedPayloadError struct {
	Missing []string
}

// Error describes the error operation and its observable behavior.
//
// Error may return an error when input validation, dependency calls, or security checks fail.
// Error does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *MalformedPayloadError) Error() string {
	return "malformed ceremony payload: missing " + strings.Join(e.Missing, ", ")
}

// Unwrap describes the unwrap operation and its observable behavior.
//
// Unwrap may return an error when input validation, dependency calls, or security checks fail.
// Unwrap does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *MalformedPayloadError) Unwrap() error {
	return ErrMalformedPayload
}
