package internaldefs

import (
	goPasskey "github.com/MrEthical07/goPasskey"
)

// CounterDef defines a public type used by goPasskey APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   goPasskey.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by goPasskey APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   goPasskey.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the passkey engine.
var CounterDefs = []CounterDef{
	{ID: goPasskey.MetricRegistrationSuccess, Name: "gopasskey_registration_success_total", Help: "Successful registration ceremonies."},
	{ID: goPasskey.MetricRegistrationFailure, Name: "gopasskey_registration_failure_total", Help: "Failed registration ceremonies."},
	{ID: goPasskey.MetricRegistrationRateLimited, Name: "gopasskey_registration_rate_limited_total", Help: "Rate-limited registration attempts."},
	{ID: goPasskey.MetricAuthenticationSuccess, Name: "gopasskey_authentication_success_total", Help: "Successful authentication ceremonies."},
	{ID: goPasskey.MetricAuthenticationFailure, Name: "gopasskey_authentication_failure_total", Help: "Failed authentication ceremonies."},
	{ID: goPasskey.MetricAuthenticationRateLimited, Name: "gopasskey_authentication_rate_limited_total", Help: "Rate-limited authentication attempts."},
	{ID: goPasskey.MetricConnectSuccess, Name: "gopasskey_connect_success_total", Help: "Successful connect (add-passkey) ceremonies."},
	{ID: goPasskey.MetricConnectFailure, Name: "gopasskey_connect_failure_total", Help: "Failed connect (add-passkey) ceremonies."},
	{ID: goPasskey.MetricChallengeIssued, Name: "gopasskey_challenge_issued_total", Help: "Issued ceremony challenges."},
	{ID: goPasskey.MetricChallengeReplay, Name: "gopasskey_challenge_replay_total", Help: "Detected challenge token replays."},
	{ID: goPasskey.MetricCloneDetected, Name: "gopasskey_clone_detected_total", Help: "Detected signature counter regressions."},
	{ID: goPasskey.MetricHandoffIssued, Name: "gopasskey_handoff_issued_total", Help: "Issued session hand-off grants."},
	{ID: goPasskey.MetricHandoffDegraded, Name: "gopasskey_handoff_degraded_total", Help: "Authentications that succeeded without a hand-off grant."},
	{ID: goPasskey.MetricRateLimitHit, Name: "gopasskey_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: goPasskey.MetricCredentialCreated, Name: "gopasskey_credential_created_total", Help: "Created credentials."},
	{ID: goPasskey.MetricCredentialDisabled, Name: "gopasskey_credential_disabled_total", Help: "Disabled credentials."},
	{ID: goPasskey.MetricCredentialDeleted, Name: "gopasskey_credential_deleted_total", Help: "Deleted credentials."},
}

// HistogramDefs is an exported constant or variable used by the passkey engine.
var HistogramDefs = []HistogramDef{
	{ID: goPasskey.MetricCeremonyLatency, Name: "gopasskey_ceremony_latency_seconds", Help: "CompleteAuthentication latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the passkey engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the passkey engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
