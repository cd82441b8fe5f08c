package token

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process [Store] for tests and embedders that do not
// run Redis. It honors the same atomic conditional-revoke contract as
// [RedisStore]: the revoke transition happens under one lock acquisition, so
// concurrent rotations still resolve to a single winner.
//
// Retention is handled by Purge rather than TTLs; nothing in the request path
// deletes records.
type MemoryStore struct {
	verifier Verifier

	mu          sync.Mutex
	records     map[string]*Record
	byPrincipal map[string][]string
	byChain     map[string][]string
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore(verifier Verifier) *MemoryStore {
	return &MemoryStore{
		verifier:    verifier,
		records:     make(map[string]*Record),
		byPrincipal: make(map[string][]string),
		byChain:     make(map[string][]string),
	}
}

// Persist stores a copy of the record, assigning an ID when absent.
func (s *MemoryStore) Persist(_ context.Context, rec *Record) (*Record, error) {
	if rec == nil {
		return nil, errNilRecord
	}
	if rec.ExpiresAt <= rec.CreatedAt {
		return nil, errBadExpiry
	}

	stored := rec.clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[stored.ID] = stored
	s.byPrincipal[stored.PrincipalID] = append(s.byPrincipal[stored.PrincipalID], stored.ID)
	s.byChain[stored.ChainID] = append(s.byChain[stored.ChainID], stored.ID)

	return stored.clone(), nil
}

// Get fetches one record by id.
func (s *MemoryStore) Get(_ context.Context, recordID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[recordID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.clone(), nil
}

// FindActiveMatch verifies rawSecret against each active record of the
// principal. Hashing runs outside the lock; only the snapshot is guarded.
func (s *MemoryStore) FindActiveMatch(ctx context.Context, principalID string, rawSecret []byte) (*Record, error) {
	now := time.Now()
	candidates := s.snapshotPrincipal(principalID, func(r *Record) bool { return r.Active(now) })
	return s.verifyAgainst(ctx, candidates, rawSecret)
}

// FindAnyMatch is the forensic search across every record of the principal.
func (s *MemoryStore) FindAnyMatch(ctx context.Context, principalID string, rawSecret []byte) (*Record, error) {
	candidates := s.snapshotPrincipal(principalID, nil)
	return s.verifyAgainst(ctx, candidates, rawSecret)
}

// MarkRevoked performs the conditional revoke under the store lock.
func (s *MemoryStore) MarkRevoked(_ context.Context, recordID string, at int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[recordID]
	if !ok {
		return false, ErrRecordNotFound
	}
	if rec.RevokedAt != 0 {
		return false, nil
	}
	rec.RevokedAt = at
	return true, nil
}

// MarkRevokedForChain revokes every still-active record in the chain.
func (s *MemoryStore) MarkRevokedForChain(_ context.Context, chainID string, at int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revoked := 0
	for _, id := range s.byChain[chainID] {
		rec, ok := s.records[id]
		if !ok || rec.RevokedAt != 0 {
			continue
		}
		rec.RevokedAt = at
		revoked++
	}
	return revoked, nil
}

// UpdateLastUsed stamps the record's last-use time; missing records are not
// an error.
func (s *MemoryStore) UpdateLastUsed(_ context.Context, recordID string, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[recordID]; ok {
		rec.LastUsedAt = at
	}
	return nil
}

// ListActive returns the principal's unrevoked, unexpired records.
func (s *MemoryStore) ListActive(_ context.Context, principalID string) ([]*Record, error) {
	now := time.Now()
	return s.snapshotPrincipal(principalID, func(r *Record) bool { return r.Active(now) }), nil
}

// Purge drops records whose retention window (expiry plus grace) has passed.
// It is the in-memory stand-in for Redis TTL eviction.
func (s *MemoryStore) Purge(now time.Time, retentionGrace time.Duration) int {
	cutoff := now.Add(-retentionGrace).Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, rec := range s.records {
		if rec.ExpiresAt > cutoff {
			continue
		}
		delete(s.records, id)
		s.byPrincipal[rec.PrincipalID] = removeID(s.byPrincipal[rec.PrincipalID], id)
		s.byChain[rec.ChainID] = removeID(s.byChain[rec.ChainID], id)
		purged++
	}
	return purged
}

func (s *MemoryStore) snapshotPrincipal(principalID string, keep func(*Record) bool) []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.byPrincipal[principalID]
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		if keep != nil && !keep(rec) {
			continue
		}
		out = append(out, rec.clone())
	}
	return out
}

func (s *MemoryStore) verifyAgainst(ctx context.Context, candidates []*Record, rawSecret []byte) (*Record, error) {
	for _, rec := range candidates {
		ok, err := s.verifier.Verify(ctx, rawSecret, rec.SecretHash)
		if err != nil {
			return nil, err
		}
		if ok {
			return rec, nil
		}
	}
	return nil, nil
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
