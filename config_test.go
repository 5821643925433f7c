package goPasskey

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()
	if cfg.Challenge.Mode != ModeStateless {
		t.Fatalf("default mode = %v, want ModeStateless", cfg.Challenge.Mode)
	}
	if cfg.Challenge.TTL != 120*time.Second {
		t.Fatalf("default TTL = %v", cfg.Challenge.TTL)
	}
	if !cfg.Lockout.Enabled || cfg.Lockout.Threshold != 5 {
		t.Fatalf("unexpected lockout defaults %+v", cfg.Lockout)
	}
	if cfg.Audit.Enabled || cfg.Metrics.Enabled {
		t.Fatal("audit and metrics must default to disabled")
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "valid", mutate: func(*Config) {}, ok: true},
		{name: "short secret", mutate: func(c *Config) { c.Challenge.Secret = []byte("short") }},
		{name: "short retired secret", mutate: func(c *Config) { c.Challenge.RetiredSecrets = [][]byte{[]byte("short")} }},
		{name: "zero ttl", mutate: func(c *Config) { c.Challenge.TTL = 0 }},
		{name: "bogus mode", mutate: func(c *Config) { c.Challenge.Mode = ChallengeMode(9) }},
		{name: "zero window", mutate: func(c *Config) { c.RateLimit.Window = 0 }},
		{name: "zero cap", mutate: func(c *Config) { c.RateLimit.AuthVerifyMax = 0 }},
		{name: "lockout threshold", mutate: func(c *Config) { c.Lockout.Threshold = 0 }},
		{name: "lockout window", mutate: func(c *Config) { c.Lockout.Window = 0 }},
		{name: "lockout disabled skips checks", mutate: func(c *Config) { c.Lockout = LockoutConfig{} }, ok: true},
		{name: "zero verifier timeout", mutate: func(c *Config) { c.Timeouts.Verifier = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCloneConfigIsolatesSecretMaterial(t *testing.T) {
	cfg := testConfig()
	cfg.Challenge.RetiredSecrets = [][]byte{[]byte("retired-secret-material-00")}
	cfg.RP.Origins = []string{"https://example.com"}

	cloned := cloneConfig(cfg)
	cfg.Challenge.Secret[0] ^= 0xff
	cfg.Challenge.RetiredSecrets[0][0] ^= 0xff
	cfg.RP.Origins[0] = "https://evil.example"

	if cloned.Challenge.Secret[0] == cfg.Challenge.Secret[0] {
		t.Fatal("clone shares the primary secret slice")
	}
	if cloned.Challenge.RetiredSecrets[0][0] == cfg.Challenge.RetiredSecrets[0][0] {
		t.Fatal("clone shares a retired secret slice")
	}
	if cloned.RP.Origins[0] != "https://example.com" {
		t.Fatal("clone shares the origins slice")
	}
}

func TestBuilderRequiresRedis(t *testing.T) {
	_, err := New().WithConfig(testConfig()).WithVerifier(&mockVerifier{}).Build()
	if err == nil {
		t.Fatal("expected error without redis client")
	}
}

func TestBuilderRequiresRPForDefaultVerifier(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	_, err := New().WithConfig(testConfig()).WithRedis(rdb).Build()
	if err == nil {
		t.Fatal("expected error without RP configuration")
	}
}

func TestBuilderDefaultVerifierFromRPConfig(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	cfg := testConfig()
	cfg.RP = RPConfig{
		ID:          "example.com",
		DisplayName: "Example",
		Origins:     []string{"https://example.com"},
	}
	engine, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	if engine.verifier == nil {
		t.Fatal("expected a default verifier")
	}
}

func TestBuilderRejectsReuse(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	builder := New().WithConfig(testConfig()).WithRedis(rdb).WithVerifier(&mockVerifier{})
	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := builder.Build(); err == nil {
		t.Fatal("expected error on builder reuse")
	}
}

func TestBuilderRejectsInvalidConfig(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	cfg := testConfig()
	cfg.Challenge.Secret = []byte("short")
	if _, err := New().WithConfig(cfg).WithRedis(rdb).WithVerifier(&mockVerifier{}).Build(); err == nil {
		t.Fatal("expected validation error")
	}
}
