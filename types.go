package goPasskey

import (
	"context"
	"time"

	"github.com/MrEthical07/goPasskey/credential"
	"github.com/MrEthical07/goPasskey/session"
	"github.com/MrEthical07/goPasskey/webauthn"
)

// Verifier defines a public type used by goPasskey APIs.
//
// Verifier instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
// The production implementation is [webauthn.Verifier]; tests substitute mocks.
// A returned error is never interpreted as "verified=false" success.
type Verifier interface {
	VerifyRegistration(ctx context.Context, attestationPayload []byte, expectedChallenge, subjectID, userHandle string) (webauthn.RegistrationResult, error)
	VerifyAuthentication(ctx context.Context, assertionPayload []byte, expectedChallenge, subjectID, userHandle, storedCredentialID, storedPublicKey string, storedCounter uint32) (webauthn.AuthenticationResult, error)
}

// SessionIssuer defines a public type used by goPasskey APIs.
//
// SessionIssuer instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
// A nil grant with a nil error means the issuer declined; the ceremony still
// reports success with a degraded (no hand-off) outcome.
type SessionIssuer interface {
	Issue(ctx context.Context, userHandle string) (*session.Grant, error)
}

// UserDirectory defines a public type used by goPasskey APIs.
//
// UserDirectory instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
// It resolves a normalized subject identifier to the directory's opaque user
// handle. When no directory is configured the subject identifier doubles as
// the handle.
type UserDirectory interface {
	FindOrCreate(ctx context.Context, subjectID string) (string, error)
}

// RegistrationOptions defines a public type used by goPasskey APIs.
//
// RegistrationOptions instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RegistrationOptions struct {
	Challenge            string
	Token                string
	ExpiresAt            time.Time
	RPID                 string
	RPName               string
	UserHandle           string
	ExcludeCredentialIDs []string
}

// AuthenticationOptions defines a public type used by goPasskey APIs.
//
// AuthenticationOptions instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
// An empty AllowCredentialIDs set is valid; it signals the subject has no
// active credentials and should register instead.
type AuthenticationOptions struct {
	Challenge          string
	Token              string
	ExpiresAt          time.Time
	RPID               string
	AllowCredentialIDs []string
}

// RegistrationResult defines a public type used by goPasskey APIs.
//
// RegistrationResult instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RegistrationResult struct {
	SubjectID  string
	Credential credential.Record
}

// AuthenticationResult defines a public type used by goPasskey APIs.
//
// AuthenticationResult instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
// Handoff is nil when the session issuer is absent or declined; Degraded is
// set in that case and the authentication itself still succeeded.
type AuthenticationResult struct {
	SubjectID    string
	CredentialID string
	Counter      uint32
	Handoff      *session.Grant
	Degraded     bool
}
