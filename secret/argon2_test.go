package secret

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func testConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashVerifyRoundtrip(t *testing.T) {
	hasher, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}

	secret := bytes.Repeat([]byte{0xAB}, 32)
	digest, err := hasher.Hash(secret)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(digest, "$argon2id$") {
		t.Fatalf("unexpected digest format: %s", digest)
	}

	ok, err := hasher.Verify(secret, digest)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Fatal("expected digest to verify")
	}
}

func TestVerifyMismatchIsNotAnError(t *testing.T) {
	hasher, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}

	digest, err := hasher.Hash(bytes.Repeat([]byte{0x01}, 32))
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	ok, err := hasher.Verify(bytes.Repeat([]byte{0x02}, 32), digest)
	if err != nil {
		t.Fatalf("expected mismatch without error, got: %v", err)
	}
	if ok {
		t.Fatal("expected mismatch")
	}
}

func TestVerifyCorruptDigest(t *testing.T) {
	hasher, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}

	cases := []string{
		"",
		"not-a-digest",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaA",
	}
	for _, digest := range cases {
		_, err := hasher.Verify(bytes.Repeat([]byte{0x01}, 32), digest)
		if !errors.Is(err, ErrDigestCorrupt) {
			t.Fatalf("digest %q: expected ErrDigestCorrupt, got %v", digest, err)
		}
	}
}

func TestHashRejectsShortSecret(t *testing.T) {
	hasher, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}

	if _, err := hasher.Hash([]byte("short")); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}

	digest, err := weak.Hash(bytes.Repeat([]byte{0x07}, 32))
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	strongCfg := testConfig()
	strongCfg.Memory = 16 * 1024
	strong, err := NewHasher(strongCfg)
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}

	upgrade, err := strong.NeedsUpgrade(digest)
	if err != nil {
		t.Fatalf("NeedsUpgrade failed: %v", err)
	}
	if !upgrade {
		t.Fatal("expected upgrade for weaker digest")
	}

	upgrade, err = weak.NeedsUpgrade(digest)
	if err != nil {
		t.Fatalf("NeedsUpgrade failed: %v", err)
	}
	if upgrade {
		t.Fatal("expected no upgrade for matching parameters")
	}
}

func TestNewHasherRejectsWeakParameters(t *testing.T) {
	cfg := testConfig()
	cfg.Memory = 1024
	if _, err := NewHasher(cfg); err == nil {
		t.Fatal("expected error for low memory")
	}

	cfg = testConfig()
	cfg.SaltLength = 8
	if _, err := NewHasher(cfg); err == nil {
		t.Fatal("expected error for short salt")
	}
}
