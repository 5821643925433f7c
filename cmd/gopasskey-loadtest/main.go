package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goPasskey "github.com/MrEthical07/goPasskey"
	"github.com/MrEthical07/goPasskey/session"
	"github.com/MrEthical07/goPasskey/webauthn"
)

type subjectState struct {
	subject      string
	credentialID string
	mu           sync.Mutex
}

func main() {
	var (
		subjects    = flag.Int("subjects", 10000, "number of subjects to enroll")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "ceremonies per phase (authenticate + redeem)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *subjects <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "subjects, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	issuer, err := session.NewManager(session.Config{
		SigningKey: []byte("loadtest-grant-signing-key-000001"),
		Issuer:     "gopasskey-loadtest",
		Audience:   "loadtest",
		TTL:        time.Minute,
	}, rdb)
	if err != nil {
		fmt.Fprintf(os.Stderr, "session manager: %v\n", err)
		os.Exit(1)
	}

	cfg := loadtestConfig()
	engine, err := goPasskey.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithVerifier(newStubVerifier()).
		WithSessionIssuer(issuer).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]subjectState, *subjects)
	fmt.Printf("enrolling %d subjects...\n", *subjects)
	startSeed := time.Now()
	if err := enroll(ctx, engine, states, *concurrency); err != nil {
		fmt.Fprintf(os.Stderr, "enrollment failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("enrolled in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authStats, grants := runAuthenticatePhase(ctx, engine, states, *ops, *concurrency)
	redeemStats := runRedeemPhase(ctx, issuer, grants, *concurrency)

	fmt.Println("---- results ----")
	printStats("authenticate", authStats)
	printStats("redeem", redeemStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("engine: auth_success=%d auth_failure=%d handoff_issued=%d rate_limited=%d\n",
		snap.Counters[goPasskey.MetricAuthenticationSuccess],
		snap.Counters[goPasskey.MetricAuthenticationFailure],
		snap.Counters[goPasskey.MetricHandoffIssued],
		snap.Counters[goPasskey.MetricRateLimitHit],
	)
}

// loadtestConfig widens the admission windows so the limiter measures Redis
// round trips instead of rejecting the workload.
func loadtestConfig() goPasskey.Config {
	cfg := goPasskey.DefaultConfig()
	cfg.Challenge.Secret = []byte("loadtest-challenge-secret-000001")
	cfg.Challenge.TTL = 5 * time.Minute
	cfg.RateLimit.RegisterOptionsMax = 1 << 30
	cfg.RateLimit.RegisterVerifyMax = 1 << 30
	cfg.RateLimit.AuthOptionsMax = 1 << 30
	cfg.RateLimit.AuthVerifyMax = 1 << 30
	cfg.Lockout.Enabled = false
	return cfg
}

func enroll(ctx context.Context, engine *goPasskey.Engine, states []subjectState, concurrency int) error {
	var (
		wg       sync.WaitGroup
		cursor   int64
		mu       sync.Mutex
		firstErr error
	)

	record := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(states) {
					return
				}
				subject := fmt.Sprintf("subject-%d@load.test", i)
				credentialID := fmt.Sprintf("cred-%d", i)
				states[i].subject = subject
				states[i].credentialID = credentialID

				opts, err := engine.BeginRegistration(ctx, subject)
				if err != nil {
					record(err)
					return
				}
				payload := ceremonyPayload(credentialID, true)
				if _, err := engine.CompleteRegistration(ctx, subject, opts.Challenge, opts.Token, payload); err != nil {
					record(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	return firstErr
}

func runAuthenticatePhase(ctx context.Context, engine *goPasskey.Engine, states []subjectState, ops, concurrency int) (phaseStats, []string) {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		grants    = make([]string, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]

				// Counters are strictly increasing per credential, so one
				// ceremony per credential at a time.
				state.mu.Lock()
				t0 := time.Now()
				grant, err := authenticateOnce(ctx, engine, state)
				d := time.Since(t0)
				state.mu.Unlock()

				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				if grant != "" {
					grants = append(grants, grant)
				}
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures), grants
}

func authenticateOnce(ctx context.Context, engine *goPasskey.Engine, state *subjectState) (string, error) {
	opts, err := engine.BeginAuthentication(ctx, state.subject)
	if err != nil {
		return "", err
	}
	payload := ceremonyPayload(state.credentialID, false)
	result, err := engine.CompleteAuthentication(ctx, state.subject, opts.Challenge, opts.Token, payload)
	if err != nil {
		return "", err
	}
	if result.Handoff == nil {
		return "", nil
	}
	return result.Handoff.Secret, nil
}

func runRedeemPhase(ctx context.Context, issuer *session.Manager, grants []string, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, len(grants))
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(grants) {
					return
				}
				t0 := time.Now()
				_, err := issuer.Redeem(ctx, grants[i])
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func ceremonyPayload(credentialID string, registration bool) []byte {
	response := map[string]string{
		"clientDataJSON": "ZXhhbXBsZQ",
	}
	if registration {
		response["attestationObject"] = "ZXhhbXBsZQ"
	} else {
		response["authenticatorData"] = "ZXhhbXBsZQ"
		response["signature"] = "ZXhhbXBsZQ"
	}
	payload, _ := json.Marshal(map[string]any{
		"id":       credentialID,
		"type":     "public-key",
		"response": response,
	})
	return payload
}

// stubVerifier accepts every well-formed payload and reports a strictly
// increasing signature counter per credential, so the exercised paths are the
// engine's own: admission, challenge handling, repository writes, hand-off.
type stubVerifier struct {
	counters sync.Map // credentialID -> *atomic.Uint32
}

func newStubVerifier() *stubVerifier {
	return &stubVerifier{}
}

func (v *stubVerifier) VerifyRegistration(_ context.Context, attestationPayload []byte, _, _, _ string) (webauthn.RegistrationResult, error) {
	id, err := payloadID(attestationPayload)
	if err != nil {
		return webauthn.RegistrationResult{}, err
	}
	return webauthn.RegistrationResult{
		CredentialID:   id,
		PublicKey:      "pk-" + id,
		InitialCounter: 0,
	}, nil
}

func (v *stubVerifier) VerifyAuthentication(_ context.Context, assertionPayload []byte, _, _, _, _, _ string, _ uint32) (webauthn.AuthenticationResult, error) {
	id, err := payloadID(assertionPayload)
	if err != nil {
		return webauthn.AuthenticationResult{}, err
	}
	entry, _ := v.counters.LoadOrStore(id, new(atomic.Uint32))
	counter := entry.(*atomic.Uint32)
	return webauthn.AuthenticationResult{NewCounter: counter.Add(1)}, nil
}

func payloadID(payload []byte) (string, error) {
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
