package goPasskey

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goPasskey/session"
	"github.com/MrEthical07/goPasskey/webauthn"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

type mockVerifier struct {
	registrationResult webauthn.RegistrationResult
	registrationErr    error
	authResult         webauthn.AuthenticationResult
	authErr            error

	registrationCalls atomic.Int64
	authCalls         atomic.Int64
}

func (m *mockVerifier) VerifyRegistration(_ context.Context, _ []byte, _, _, _ string) (webauthn.RegistrationResult, error) {
	m.registrationCalls.Add(1)
	if m.registrationErr != nil {
		return webauthn.RegistrationResult{}, m.registrationErr
	}
	return m.registrationResult, nil
}

func (m *mockVerifier) VerifyAuthentication(_ context.Context, _ []byte, _, _, _, _, _ string, _ uint32) (webauthn.AuthenticationResult, error) {
	m.authCalls.Add(1)
	if m.authErr != nil {
		return webauthn.AuthenticationResult{}, m.authErr
	}
	return m.authResult, nil
}

type mockIssuer struct {
	grant *session.Grant
	err   error
	calls atomic.Int64
}

func (m *mockIssuer) Issue(context.Context, string) (*session.Grant, error) {
	m.calls.Add(1)
	return m.grant, m.err
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Challenge.Secret = []byte("unit-test-challenge-secret-key-01")
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, verifier Verifier, issuer SessionIssuer) (*Engine, *miniredis.Miniredis) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	t.Cleanup(mr.Close)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithVerifier(verifier).
		WithSessionIssuer(issuer).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, mr
}

func attestationPayload(credentialID string) []byte {
	payload, _ := json.Marshal(map[string]any{
		"id":   credentialID,
		"type": "public-key",
		"response": map[string]any{
			"clientDataJSON":    "ZXhhbXBsZQ",
			"attestationObject": "ZXhhbXBsZQ",
		},
	})
	return payload
}

func assertionPayload(credentialID string) []byte {
	payload, _ := json.Marshal(map[string]any{
		"id":   credentialID,
		"type": "public-key",
		"response": map[string]any{
			"clientDataJSON":    "ZXhhbXBsZQ",
			"authenticatorData": "ZXhhbXBsZQ",
			"signature":         "ZXhhbXBsZQ",
		},
	})
	return payload
}

// registerCredential drives a full registration ceremony and returns the
// stored credential identifier.
func registerCredential(t *testing.T, engine *Engine, subjectID, credentialID string, initialCounter uint32) {
	t.Helper()

	verifier, ok := engine.verifier.(*mockVerifier)
	if !ok {
		t.Fatal("registerCredential requires a mock verifier")
	}
	verifier.registrationResult = webauthn.RegistrationResult{
		CredentialID:   credentialID,
		PublicKey:      "pk-" + credentialID,
		InitialCounter: initialCounter,
	}

	opts, err := engine.BeginRegistration(context.Background(), subjectID)
	if err != nil {
		t.Fatalf("BeginRegistration failed: %v", err)
	}
	if _, err := engine.CompleteRegistration(context.Background(), subjectID, opts.Challenge, opts.Token, attestationPayload(credentialID)); err != nil {
		t.Fatalf("CompleteRegistration failed: %v", err)
	}
}

func mustBeRateLimited(t *testing.T, err error) *RateLimitedError {
	t.Helper()

	var limited *RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected error to unwrap to ErrRateLimited, got %v", err)
	}
	return limited
}
