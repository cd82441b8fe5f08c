package flows

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nexauth/rotary/token"
)

// fakeStore resolves secrets by comparing them to each record's SecretHash
// verbatim, which keeps rotation semantics testable without argon2.
type fakeStore struct {
	records map[string]*token.Record

	lastUsedCalls int
	revokeErr     error
	chainErr      error
	findErr       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*token.Record{}}
}

func (s *fakeStore) add(rec *token.Record) *token.Record {
	s.records[rec.ID] = rec
	return rec
}

func (s *fakeStore) FindActiveMatch(_ context.Context, principalID string, rawSecret []byte) (*token.Record, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	now := time.Now()
	for _, rec := range s.records {
		if rec.PrincipalID == principalID && rec.Active(now) && rec.SecretHash == string(rawSecret) {
			c := *rec
			return &c, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FindAnyMatch(_ context.Context, principalID string, rawSecret []byte) (*token.Record, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, rec := range s.records {
		if rec.PrincipalID == principalID && rec.SecretHash == string(rawSecret) {
			c := *rec
			return &c, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) MarkRevoked(_ context.Context, recordID string, at int64) (bool, error) {
	if s.revokeErr != nil {
		return false, s.revokeErr
	}
	rec, ok := s.records[recordID]
	if !ok {
		return false, token.ErrRecordNotFound
	}
	if rec.RevokedAt != 0 {
		return false, nil
	}
	rec.RevokedAt = at
	return true, nil
}

func (s *fakeStore) MarkRevokedForChain(_ context.Context, chainID string, at int64) (int, error) {
	if s.chainErr != nil {
		return 0, s.chainErr
	}
	revoked := 0
	for _, rec := range s.records {
		if rec.ChainID == chainID && rec.RevokedAt == 0 {
			rec.RevokedAt = at
			revoked++
		}
	}
	return revoked, nil
}

func (s *fakeStore) UpdateLastUsed(_ context.Context, recordID string, at int64) error {
	s.lastUsedCalls++
	if rec, ok := s.records[recordID]; ok {
		rec.LastUsedAt = at
	}
	return nil
}

func (s *fakeStore) Persist(_ context.Context, rec *token.Record) (*token.Record, error) {
	stored := *rec
	if stored.ID == "" {
		stored.ID = "rec-" + time.Now().Format("150405.000000000")
	}
	s.records[stored.ID] = &stored
	copied := stored
	return &copied, nil
}

func testRotateDeps(s *fakeStore) RotateDeps {
	return RotateDeps{
		Store: s,
		Issue: func(ctx context.Context, req IssueRequest) IssueResult {
			return RunIssue(ctx, req, testIssueDeps(s))
		},
		Now: time.Now,
	}
}

func testIssueDeps(s *fakeStore) IssueDeps {
	counter := 0
	return IssueDeps{
		NewRefreshSecret: func() ([]byte, error) {
			counter++
			return bytes.Repeat([]byte{byte(counter)}, 32), nil
		},
		HashSecret: func(_ context.Context, secret []byte) (string, error) {
			return string(secret), nil
		},
		EncodeRefreshToken: func(principalID string, secret []byte) (string, error) {
			return principalID + ":" + string(secret), nil
		},
		IssueAccessToken: func(principalID, role, chainID string) (string, error) {
			return "access:" + principalID + ":" + chainID, nil
		},
		NewChainID:      func() string { return "chain-new" },
		Now:             time.Now,
		RefreshLifetime: time.Hour,
		Store:           s,
	}
}

func activeRecord(id, principal, chain, hash string) *token.Record {
	now := time.Now().Unix()
	return &token.Record{
		ID:          id,
		PrincipalID: principal,
		ChainID:     chain,
		SecretHash:  hash,
		CreatedAt:   now,
		ExpiresAt:   now + 3600,
	}
}

func TestRotateSuccessLinksSuccessor(t *testing.T) {
	store := newFakeStore()
	pred := store.add(activeRecord("r0", "p1", "c1", "s0"))

	res := RunRotate(context.Background(), "p1", []byte("s0"), token.Device{}, testRotateDeps(store))
	if res.Failure != RotateFailureNone {
		t.Fatalf("expected success, got failure %d err %v", res.Failure, res.Err)
	}

	if pred.RevokedAt == 0 {
		t.Fatal("expected predecessor to be revoked")
	}
	if res.Record == nil {
		t.Fatal("expected successor record")
	}
	if res.Record.ChainID != "c1" {
		t.Fatalf("expected successor to stay in chain c1, got %s", res.Record.ChainID)
	}
	if res.Record.ParentSecretHash != "s0" {
		t.Fatalf("expected parent hash s0, got %s", res.Record.ParentSecretHash)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("expected issued token pair")
	}
	if store.lastUsedCalls != 1 {
		t.Fatalf("expected one last-used stamp, got %d", store.lastUsedCalls)
	}
}

func TestRotateLoserOfConditionalRevokeIsStale(t *testing.T) {
	store := newFakeStore()
	store.add(activeRecord("r0", "p1", "c1", "s0"))

	// Freeze the lookup result so both calls observe the record active and
	// race to the conditional revoke; only the first transition wins.
	frozen := activeRecord("r0", "p1", "c1", "s0")
	deps := testRotateDeps(store)
	deps.Store = &frozenLookupStore{fakeStore: store, frozen: frozen}

	first := RunRotate(context.Background(), "p1", []byte("s0"), token.Device{}, deps)
	if first.Failure != RotateFailureNone {
		t.Fatalf("expected first rotation to win, got %d", first.Failure)
	}

	second := RunRotate(context.Background(), "p1", []byte("s0"), token.Device{}, deps)
	if second.Failure != RotateFailureStale {
		t.Fatalf("expected stale for conditional-revoke loser, got %d", second.Failure)
	}
	if second.Err != nil {
		t.Fatalf("stale is not an error condition: %v", second.Err)
	}

	// A stale submission must not tear the family down.
	for _, rec := range store.records {
		if rec.ID != "r0" && rec.RevokedAt != 0 {
			t.Fatal("stale submission revoked an unrelated record")
		}
	}
}

// frozenLookupStore always reports the seeded record as the active match,
// simulating a second rotation that read the record before the first one
// revoked it.
type frozenLookupStore struct {
	*fakeStore
	frozen *token.Record
}

func (s *frozenLookupStore) FindActiveMatch(_ context.Context, principalID string, rawSecret []byte) (*token.Record, error) {
	if s.frozen.PrincipalID == principalID && s.frozen.SecretHash == string(rawSecret) {
		c := *s.frozen
		return &c, nil
	}
	return nil, nil
}

func TestRotateReuseRevokesFamily(t *testing.T) {
	store := newFakeStore()
	revoked := activeRecord("r0", "p1", "c1", "s0")
	revoked.RevokedAt = time.Now().Unix() - 10
	store.add(revoked)
	store.add(activeRecord("r1", "p1", "c1", "s1"))
	store.add(activeRecord("other", "p1", "c2", "sX"))

	res := RunRotate(context.Background(), "p1", []byte("s0"), token.Device{}, testRotateDeps(store))
	if res.Failure != RotateFailureReuse {
		t.Fatalf("expected reuse, got %d", res.Failure)
	}
	if res.ChainRevoked != 1 {
		t.Fatalf("expected 1 chain revocation, got %d", res.ChainRevoked)
	}

	if store.records["r1"].RevokedAt == 0 {
		t.Fatal("expected live descendant to be revoked on reuse")
	}
	if store.records["other"].RevokedAt != 0 {
		t.Fatal("reuse must not touch unrelated chains")
	}
}

func TestRotateExpiredRecord(t *testing.T) {
	store := newFakeStore()
	expired := activeRecord("r0", "p1", "c1", "s0")
	expired.ExpiresAt = time.Now().Unix() - 10
	store.add(expired)

	res := RunRotate(context.Background(), "p1", []byte("s0"), token.Device{}, testRotateDeps(store))
	if res.Failure != RotateFailureExpired {
		t.Fatalf("expected expired, got %d", res.Failure)
	}
	if store.records["r0"].RevokedAt != 0 {
		t.Fatal("expiry must not mutate the record")
	}
}

func TestRotateUnknownSecret(t *testing.T) {
	store := newFakeStore()
	store.add(activeRecord("r0", "p1", "c1", "s0"))

	res := RunRotate(context.Background(), "p1", []byte("nope"), token.Device{}, testRotateDeps(store))
	if res.Failure != RotateFailureInvalid {
		t.Fatalf("expected invalid, got %d", res.Failure)
	}
}

type denyLimiter struct{ called bool }

func (l *denyLimiter) CheckRefresh(context.Context, string) error {
	l.called = true
	return errors.New("over budget")
}

func TestRotateRateLimitedBeforeLookup(t *testing.T) {
	store := newFakeStore()
	store.findErr = errors.New("lookup must not run")
	limiter := &denyLimiter{}

	deps := testRotateDeps(store)
	deps.RateLimiter = limiter

	res := RunRotate(context.Background(), "p1", []byte("s0"), token.Device{}, deps)
	if res.Failure != RotateFailureRateLimited {
		t.Fatalf("expected rate limited, got %d", res.Failure)
	}
	if !limiter.called {
		t.Fatal("expected limiter to be consulted")
	}
}

func TestRotateStoreFaultSurfacesAsLookupFailure(t *testing.T) {
	store := newFakeStore()
	store.findErr = token.ErrStoreUnavailable

	res := RunRotate(context.Background(), "p1", []byte("s0"), token.Device{}, testRotateDeps(store))
	if res.Failure != RotateFailureLookup {
		t.Fatalf("expected lookup failure, got %d", res.Failure)
	}
	if !errors.Is(res.Err, token.ErrStoreUnavailable) {
		t.Fatalf("expected store fault to pass through, got %v", res.Err)
	}
}

func TestIssueFreshChain(t *testing.T) {
	store := newFakeStore()

	res := RunIssue(context.Background(), IssueRequest{
		PrincipalID: "p1",
		Role:        "admin",
		Device:      token.Device{Name: "laptop"},
	}, testIssueDeps(store))
	if res.Failure != IssueFailureNone {
		t.Fatalf("expected success, got %d err %v", res.Failure, res.Err)
	}
	if res.Record.ChainID != "chain-new" {
		t.Fatalf("expected fresh chain id, got %s", res.Record.ChainID)
	}
	if res.Record.ParentSecretHash != "" {
		t.Fatal("fresh chain must have no parent hash")
	}
	if res.Record.Role != "admin" {
		t.Fatalf("expected role to persist, got %s", res.Record.Role)
	}
	if res.Record.Device.Name != "laptop" {
		t.Fatalf("expected device name to persist, got %s", res.Record.Device.Name)
	}
}
