package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

func hs256Config() Config {
	return Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("test-secret-key-for-hs256-tokens"),
	}
}

func TestCreateParseRoundtripHS256(t *testing.T) {
	m, err := NewManager(hs256Config())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	tokenStr, err := m.CreateAccess("p1", "admin", "chain-1")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	claims, err := m.ParseAccess(tokenStr)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.UID != "p1" {
		t.Fatalf("expected uid p1, got %s", claims.UID)
	}
	if claims.Role != "admin" {
		t.Fatalf("expected role admin, got %s", claims.Role)
	}
	if claims.ChainID != "chain-1" {
		t.Fatalf("expected chain chain-1, got %s", claims.ChainID)
	}
}

func TestCreateParseRoundtripEd25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	tokenStr, err := m.CreateAccess("p2", "", "chain-2")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	claims, err := m.ParseAccess(tokenStr)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.UID != "p2" || claims.ChainID != "chain-2" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	m1, err := NewManager(hs256Config())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	cfg := hs256Config()
	cfg.PrivateKey = []byte("a-completely-different-signing-key")
	m2, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	tokenStr, err := m1.CreateAccess("p1", "", "c1")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	if _, err := m2.ParseAccess(tokenStr); err == nil {
		t.Fatal("expected signature verification to fail")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	cfg := hs256Config()
	cfg.AccessTTL = time.Millisecond
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	tokenStr, err := m.CreateAccess("p1", "", "c1")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if _, err := m.ParseAccess(tokenStr); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestParseEnforcesIssuerAndAudience(t *testing.T) {
	cfg := hs256Config()
	cfg.Issuer = "rotary-test"
	cfg.Audience = "api"
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	tokenStr, err := m.CreateAccess("p1", "", "c1")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	if _, err := m.ParseAccess(tokenStr); err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}

	other := hs256Config()
	other.Issuer = "someone-else"
	other.Audience = "api"
	m2, err := NewManager(other)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if _, err := m2.ParseAccess(tokenStr); err == nil {
		t.Fatal("expected issuer mismatch to be rejected")
	}
}

func TestNewManagerValidation(t *testing.T) {
	cfg := hs256Config()
	cfg.AccessTTL = 0
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("expected error for zero TTL")
	}

	cfg = hs256Config()
	cfg.PrivateKey = nil
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("expected error for missing hs256 key")
	}

	cfg = hs256Config()
	cfg.SigningMethod = "rs512"
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("expected error for unsupported method")
	}
}
