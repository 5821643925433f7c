// Package webauthn adapts the go-webauthn library to the verifier contract
// consumed by the passkey engine: byte payloads in, flat results out. The
// relying-party identity is fixed at construction; deriving it per-request
// from proxy headers moves the security boundary and is intentionally not
// supported here.
package webauthn

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

var (
	// ErrMalformed indicates the browser payload could not be parsed.
	ErrMalformed = errors.New("malformed webauthn payload")
	// ErrRejected indicates the cryptographic verification failed.
	ErrRejected = errors.New("webauthn verification rejected")
)

// Config controls WebAuthn relying party settings.
type Config struct {
	RPDisplayName string
	RPID          string
	RPOrigins     []string
}

// RegistrationResult carries the verified authenticator material extracted
// from an attestation. Credential ID and public key are base64url encoded.
type RegistrationResult struct {
	CredentialID   string
	PublicKey      string
	InitialCounter uint32
	Transports     []string
}

// AuthenticationResult carries the authenticator state reported by a
// verified assertion.
type AuthenticationResult struct {
	NewCounter uint32
}

// Verifier wraps a configured go-webauthn instance.
type Verifier struct {
	web *webauthn.WebAuthn
}

// NewVerifier creates a [Verifier] for the given relying party.
func NewVerifier(cfg Config) (*Verifier, error) {
	web, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, err
	}
	return &Verifier{web: web}, nil
}

// ceremonyUser satisfies webauthn.User with exactly the state one ceremony
// needs: the directory handle as the user ID plus any stored credentials.
type ceremonyUser struct {
	id          []byte
	name        string
	credentials []webauthn.Credential
}

var _ webauthn.User = (*ceremonyUser)(nil)

func (u *ceremonyUser) WebAuthnID() []byte                         { return u.id }
func (u *ceremonyUser) WebAuthnName() string                       { return u.name }
func (u *ceremonyUser) WebAuthnDisplayName() string                { return u.name }
func (u *ceremonyUser) WebAuthnIcon() string                       { return "" }
func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

// VerifyRegistration parses and cryptographically validates an attestation
// payload against the expected challenge and the configured relying party.
// Parse failures return [ErrMalformed]; validation failures return
// [ErrRejected]. A nil error means verified.
func (v *Verifier) VerifyRegistration(_ context.Context, attestationPayload []byte, expectedChallenge, subjectID, userHandle string) (RegistrationResult, error) {
	parsed, err := protocol.ParseCredentialCreationResponseBytes(attestationPayload)
	if err != nil {
		return RegistrationResult{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	user := &ceremonyUser{id: []byte(userHandle), name: subjectID}
	session := webauthn.SessionData{
		Challenge: expectedChallenge,
		UserID:    user.WebAuthnID(),
	}

	cred, err := v.web.CreateCredential(user, session, parsed)
	if err != nil {
		return RegistrationResult{}, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	transports := make([]string, 0, len(cred.Transport))
	for _, transport := range cred.Transport {
		transports = append(transports, string(transport))
	}

	return RegistrationResult{
		CredentialID:   base64.RawURLEncoding.EncodeToString(cred.ID),
		PublicKey:      base64.RawURLEncoding.EncodeToString(cred.PublicKey),
		InitialCounter: cred.Authenticator.SignCount,
		Transports:     transports,
	}, nil
}

// VerifyAuthentication parses and validates an assertion payload against the
// stored credential state. The reported counter is returned as-is; counter
// monotonicity is the repository's concern, not this adapter's.
func (v *Verifier) VerifyAuthentication(_ context.Context, assertionPayload []byte, expectedChallenge, subjectID, userHandle, storedCredentialID, storedPublicKey string, storedCounter uint32) (AuthenticationResult, error) {
	parsed, err := protocol.ParseCredentialRequestResponseBytes(assertionPayload)
	if err != nil {
		return AuthenticationResult{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	credID, err := base64.RawURLEncoding.DecodeString(storedCredentialID)
	if err != nil {
		return AuthenticationResult{}, fmt.Errorf("%w: stored credential id: %v", ErrMalformed, err)
	}
	publicKey, err := base64.RawURLEncoding.DecodeString(storedPublicKey)
	if err != nil {
		return AuthenticationResult{}, fmt.Errorf("%w: stored public key: %v", ErrMalformed, err)
	}

	user := &ceremonyUser{
		id:   []byte(userHandle),
		name: subjectID,
		credentials: []webauthn.Credential{{
			ID:        credID,
			PublicKey: publicKey,
			Authenticator: webauthn.Authenticator{
				SignCount: storedCounter,
			},
		}},
	}
	session := webauthn.SessionData{
		Challenge: expectedChallenge,
		UserID:    user.WebAuthnID(),
	}

	cred, err := v.web.ValidateLogin(user, session, parsed)
	if err != nil {
		return AuthenticationResult{}, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	return AuthenticationResult{NewCounter: cred.Authenticator.SignCount}, nil
}
