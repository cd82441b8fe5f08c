package token

import (
	"context"
	"errors"
)

// ErrStoreUnavailable is an exported constant or variable used by the rotation engine.
var ErrStoreUnavailable = errors.New("token store unavailable")

// ErrRecordNotFound is returned when a record id resolves to nothing.
var ErrRecordNotFound = errors.New("token record not found")

var (
	errNilRecord = errors.New("nil record")
	errBadExpiry = errors.New("record expiry must be after creation")
)

// Verifier checks a raw secret against a stored digest. Implementations must
// distinguish "did not match" (false, nil) from backend faults (false, err).
type Verifier interface {
	Verify(ctx context.Context, secret []byte, digest string) (bool, error)
}

// Store is the capability set required of a refresh-token record store.
//
// MarkRevoked is the load-bearing primitive: it must be a single atomic
// conditional write (set RevokedAt only if currently zero, report whether this
// call performed the transition), never a read followed by a write. Every
// implementation, including test stores, must honor that contract or
// concurrent rotations of one secret could both succeed and fork the chain.
type Store interface {
	// Persist writes a new record and returns it with its store-assigned ID.
	// The caller must have hashed the secret already; stores never see raw
	// secret material.
	Persist(ctx context.Context, rec *Record) (*Record, error)

	// FindActiveMatch searches the principal's unrevoked, unexpired records
	// for the one whose digest verifies against rawSecret. The digest is
	// salted, so this iterates the principal's bounded active set rather than
	// indexing on the hash. Returns (nil, nil) when nothing matches.
	FindActiveMatch(ctx context.Context, principalID string, rawSecret []byte) (*Record, error)

	// FindAnyMatch is the forensic variant: same search across all of the
	// principal's records regardless of revocation or expiry.
	FindAnyMatch(ctx context.Context, principalID string, rawSecret []byte) (*Record, error)

	// MarkRevoked sets RevokedAt if and only if it is currently unset.
	// The boolean reports whether this call won the transition.
	MarkRevoked(ctx context.Context, recordID string, at int64) (bool, error)

	// MarkRevokedForChain revokes every still-active record in the chain and
	// returns how many transitions were performed.
	MarkRevokedForChain(ctx context.Context, chainID string, at int64) (int, error)

	// UpdateLastUsed stamps the record's last-use time. Best effort; failures
	// do not invalidate an otherwise complete rotation.
	UpdateLastUsed(ctx context.Context, recordID string, at int64) error

	// ListActive returns the principal's unrevoked, unexpired records.
	ListActive(ctx context.Context, principalID string) ([]*Record, error)

	// Get fetches one record by id. Returns ErrRecordNotFound when absent.
	Get(ctx context.Context, recordID string) (*Record, error)
}
