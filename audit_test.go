package goPasskey

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

type captureSink struct {
	events chan AuditEvent
}

func newCaptureSink(buffer int) *captureSink {
	return &captureSink{events: make(chan AuditEvent, buffer)}
}

func (s *captureSink) Emit(_ context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	default:
	}
}

// gateSink blocks every Emit until the gate channel is closed, forcing the
// dispatcher buffer to fill.
type gateSink struct {
	gate    chan struct{}
	entered chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.gate
}

func TestDispatcherDisabledReturnsNil(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("disabled audit config must yield a nil dispatcher")
	}
	// nil receivers are safe no-ops.
	d.Emit(context.Background(), AuditEvent{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reports zero drops")
	}
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 64, DropIfFull: true}, sink)

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "drain_test"})
	}
	d.Close()

	if got := sink.count.Load(); got != 50 {
		t.Fatalf("expected 50 delivered events after close, got %d", got)
	}
	if d.Dropped() != 0 {
		t.Fatalf("expected no drops, got %d", d.Dropped())
	}
}

func TestDispatcherDropsWhenBufferFull(t *testing.T) {
	sink := newGateSink()
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// First event occupies the sink, second fills the buffer.
	d.Emit(context.Background(), AuditEvent{EventType: "a"})
	<-sink.entered
	d.Emit(context.Background(), AuditEvent{EventType: "b"})

	deadline := time.After(2 * time.Second)
	for d.Dropped() == 0 {
		d.Emit(context.Background(), AuditEvent{EventType: "c"})
		select {
		case <-deadline:
			t.Fatal("dispatcher never dropped with a full buffer")
		default:
		}
	}

	close(sink.gate)
	d.Close()
}

func TestDispatcherEmitAfterCloseIsNoOp(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 4, DropIfFull: true}, sink)
	d.Close()

	d.Emit(context.Background(), AuditEvent{EventType: "late"})
	if got := sink.count.Load(); got != 0 {
		t.Fatalf("expected no delivery after close, got %d", got)
	}
}

func TestEngineEmitsCeremonyAuditTrail(t *testing.T) {
	cfg := testConfig()
	cfg.Audit = AuditConfig{Enabled: true, BufferSize: 64, DropIfFull: false}
	verifier := &mockVerifier{}
	sink := newCaptureSink(64)

	mr, rdb := newTestRedis(t)
	t.Cleanup(mr.Close)
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithVerifier(verifier).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ctx := WithClientIP(context.Background(), "198.51.100.4")
	verifier.registrationResult.CredentialID = "cred-audit-1"
	verifier.registrationResult.PublicKey = "pk"
	opts, err := engine.BeginRegistration(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("BeginRegistration failed: %v", err)
	}
	if _, err := engine.CompleteRegistration(ctx, "alice@example.com", opts.Challenge, opts.Token, attestationPayload("cred-audit-1")); err != nil {
		t.Fatalf("CompleteRegistration failed: %v", err)
	}
	engine.Close()

	var types []string
	for {
		select {
		case event := <-sink.events:
			types = append(types, event.EventType)
			if event.IP != "198.51.100.4" {
				t.Fatalf("expected caller IP on event %s, got %q", event.EventType, event.IP)
			}
			if event.SubjectID != "alice@example.com" {
				t.Fatalf("unexpected subject %q", event.SubjectID)
			}
		default:
			want := []string{auditEventRegisterOptions, auditEventRegisterSuccess}
			if len(types) != len(want) {
				t.Fatalf("event types = %v, want %v", types, want)
			}
			for i := range want {
				if types[i] != want[i] {
					t.Fatalf("event types = %v, want %v", types, want)
				}
			}
			return
		}
	}
}

func TestEngineAuditRecordsErrorCode(t *testing.T) {
	cfg := testConfig()
	cfg.Audit = AuditConfig{Enabled: true, BufferSize: 64, DropIfFull: false}
	verifier := &mockVerifier{}
	sink := newCaptureSink(64)

	mr, rdb := newTestRedis(t)
	t.Cleanup(mr.Close)
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithVerifier(verifier).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	opts, err := engine.BeginRegistration(context.Background(), "bob@example.com")
	if err != nil {
		t.Fatalf("BeginRegistration failed: %v", err)
	}
	if _, err := engine.CompleteRegistration(context.Background(), "bob@example.com", opts.Challenge, "forged-token", attestationPayload("cred-x")); !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected ErrChallengeInvalid, got %v", err)
	}
	engine.Close()

	var failure *AuditEvent
	for {
		select {
		case event := <-sink.events:
			if event.EventType == auditEventRegisterFailure {
				captured := event
				failure = &captured
			}
			continue
		default:
		}
		break
	}
	if failure == nil {
		t.Fatal("expected a register failure event")
	}
	if failure.Error != string(auditErrChallengeInvalid) {
		t.Fatalf("error code = %q, want %q", failure.Error, auditErrChallengeInvalid)
	}
	if failure.Success {
		t.Fatal("failure event marked successful")
	}
}

func TestAuditErrorCodeTaxonomy(t *testing.T) {
	cases := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrRateLimited, auditErrRateLimited},
		{&RateLimitedError{Operation: "x"}, auditErrRateLimited},
		{ErrChallengeInvalid, auditErrChallengeInvalid},
		{&MalformedPayloadError{Missing: []string{"id"}}, auditErrMalformedPayload},
		{ErrVerificationFailed, auditErrVerificationFailed},
		{ErrPotentialCompromise, auditErrPotentialCompromise},
		{ErrDuplicateCredential, auditErrDuplicate},
		{ErrUnknownCredential, auditErrUnknownCredential},
		{ErrBackendUnavailable, auditErrUnavailable},
		{errors.New("boom"), auditErrInternal},
	}

	for _, tc := range cases {
		if got := auditErrorCode(tc.err); got != tc.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestJSONWriterSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{EventType: "one", Success: true})
	sink.Emit(context.Background(), AuditEvent{EventType: "two"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var event AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("line is not valid JSON: %v", err)
	}
	if event.EventType != "one" || !event.Success {
		t.Fatalf("unexpected decoded event %+v", event)
	}
}

func TestChannelSinkDeliversEvents(t *testing.T) {
	sink := NewChannelSink(4)
	sink.Emit(context.Background(), AuditEvent{EventType: "ping"})

	select {
	case event := <-sink.Events():
		if event.EventType != "ping" {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}
