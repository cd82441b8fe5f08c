package rotary

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newAuditEngine(t *testing.T) (*Engine, *ChannelSink) {
	t.Helper()

	cfg := rotationTestConfig()
	cfg.Audit.Enabled = true
	sink := NewChannelSink(64)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(newTestRedis(t)).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, sink
}

func waitForEvent(t *testing.T, sink *ChannelSink, eventType string) AuditEvent {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-sink.Events():
			if event.EventType == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", eventType)
		}
	}
}

func TestAuditTrailForRotation(t *testing.T) {
	engine, sink := newAuditEngine(t)
	ctx := WithClientIP(context.Background(), "203.0.113.7")

	pair, err := engine.Login(ctx, LoginRequest{PrincipalID: "alice", DeviceName: "laptop"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	login := waitForEvent(t, sink, "login_success")
	if login.PrincipalID != "alice" || !login.Success {
		t.Fatalf("unexpected login event: %+v", login)
	}
	if login.IP != "203.0.113.7" {
		t.Fatalf("expected client IP from context, got %q", login.IP)
	}
	if login.ChainID == "" || login.RecordID == "" {
		t.Fatalf("login event missing chain/record ids: %+v", login)
	}

	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	refreshed := waitForEvent(t, sink, "refresh_success")
	if refreshed.ChainID != login.ChainID {
		t.Fatalf("refresh event must carry the chain: %+v", refreshed)
	}
}

func TestAuditRecordsReuseDetection(t *testing.T) {
	engine, sink := newAuditEngine(t)
	ctx := context.Background()

	pair, err := engine.Login(ctx, LoginRequest{PrincipalID: "alice"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse, got %v", err)
	}

	event := waitForEvent(t, sink, "refresh_reuse_detected")
	if event.Success {
		t.Fatal("reuse event must not be marked successful")
	}
	if event.Error != "refresh_reuse" {
		t.Fatalf("expected refresh_reuse error code, got %q", event.Error)
	}
	if event.ChainID == "" {
		t.Fatalf("reuse event missing chain id: %+v", event)
	}
	if event.Metadata["chain_revoked"] == "" {
		t.Fatalf("reuse event missing revocation count: %+v", event)
	}
}
