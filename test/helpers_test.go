//go:build integration
// +build integration

package test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goPasskey "github.com/MrEthical07/goPasskey"
	"github.com/MrEthical07/goPasskey/webauthn"
)

func integrationConfig() goPasskey.Config {
	cfg := goPasskey.DefaultConfig()
	cfg.Challenge.Secret = []byte("integration-challenge-secret-001")
	cfg.RateLimit.RegisterOptionsMax = 100
	cfg.RateLimit.RegisterVerifyMax = 100
	cfg.RateLimit.AuthOptionsMax = 100
	cfg.RateLimit.AuthVerifyMax = 100
	cfg.Lockout.Threshold = 50
	return cfg
}

func newIntegrationEngine(t *testing.T, cfg goPasskey.Config) (*goPasskey.Engine, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	engine, err := goPasskey.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithVerifier(&acceptAllVerifier{}).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("engine build failed: %v", err)
	}

	return engine, rdb, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

// acceptAllVerifier treats every well-formed payload as verified and reports
// a strictly increasing counter per credential.
type acceptAllVerifier struct {
	mu       sync.Mutex
	counters map[string]uint32
}

func (v *acceptAllVerifier) VerifyRegistration(_ context.Context, attestationPayload []byte, _, _, _ string) (webauthn.RegistrationResult, error) {
	id, err := payloadCredentialID(attestationPayload)
	if err != nil {
		return webauthn.RegistrationResult{}, err
	}
	return webauthn.RegistrationResult{CredentialID: id, PublicKey: "pk-" + id}, nil
}

func (v *acceptAllVerifier) VerifyAuthentication(_ context.Context, assertionPayload []byte, _, _, _, _, _ string, _ uint32) (webauthn.AuthenticationResult, error) {
	id, err := payloadCredentialID(assertionPayload)
	if err != nil {
		return webauthn.AuthenticationResult{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.counters == nil {
		v.counters = make(map[string]uint32)
	}
	v.counters[id]++
	return webauthn.AuthenticationResult{NewCounter: v.counters[id]}, nil
}

func payloadCredentialID(payload []byte) (string, error) {
	var envelope struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return "", err
	}
	if envelope.ID == "" {
		return "", fmt.Errorf("payload missing credential id")
	}
	return envelope.ID, nil
}

func attestation(credentialID string) []byte {
	payload, _ := json.Marshal(map[string]any{
		"id":   credentialID,
		"type": "public-key",
		"response": map[string]string{
			"clientDataJSON":    "ZXhhbXBsZQ",
			"attestationObject": "ZXhhbXBsZQ",
		},
	})
	return payload
}

func assertion(credentialID string) []byte {
	payload, _ := json.Marshal(map[string]any{
		"id":   credentialID,
		"type": "public-key",
		"response": map[string]string{
			"clientDataJSON":    "ZXhhbXBsZQ",
			"authenticatorData": "ZXhhbXBsZQ",
			"signature":         "ZXhhbXBsZQ",
		},
	})
	return payload
}

func register(t *testing.T, engine *goPasskey.Engine, subject, credentialID string) {
	t.Helper()

	ctx := context.Background()
	opts, err := engine.BeginRegistration(ctx, subject)
	if err != nil {
		t.Fatalf("BeginRegistration failed: %v", err)
	}
	if _, err := engine.CompleteRegistration(ctx, subject, opts.Challenge, opts.Token, attestation(credentialID)); err != nil {
		t.Fatalf("CompleteRegistration failed: %v", err)
	}
}
