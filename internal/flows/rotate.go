package flows

import (
	"context"
	"time"

	"github.com/nexauth/rotary/token"
)

// RotateFailureKind classifies rotation flow failures for root-level mapping.
type RotateFailureKind int

const (
	RotateFailureNone RotateFailureKind = iota
	RotateFailureRateLimited
	RotateFailureLookup
	RotateFailureStale
	RotateFailureExpired
	RotateFailureInvalid
	RotateFailureReuse
	RotateFailureRevoke
	RotateFailureIssue
)

// RotateResult carries the successor pair or failure metadata. On a reuse
// detection, ChainRevoked holds how many records the family revocation hit
// and Record points at the revoked record that was presented.
type RotateResult struct {
	Failure      RotateFailureKind
	Err          error
	Record       *token.Record
	Issue        IssueResult
	AccessToken  string
	RefreshToken string
	ChainRevoked int
}

type RotateRateLimiter interface {
	CheckRefresh(ctx context.Context, principalID string) error
}

type RotateStore interface {
	FindActiveMatch(ctx context.Context, principalID string, rawSecret []byte) (*token.Record, error)
	FindAnyMatch(ctx context.Context, principalID string, rawSecret []byte) (*token.Record, error)
	MarkRevoked(ctx context.Context, recordID string, at int64) (bool, error)
	MarkRevokedForChain(ctx context.Context, chainID string, at int64) (int, error)
	UpdateLastUsed(ctx context.Context, recordID string, at int64) error
}

// RotateDeps captures rotation flow dependencies.
type RotateDeps struct {
	Store       RotateStore
	RateLimiter RotateRateLimiter
	Issue       func(ctx context.Context, req IssueRequest) IssueResult
	Now         func() time.Time
	Warn        func(string, ...any)
}

// RunRotate executes one rotation of a presented refresh secret.
//
// The flow resolves the secret against the principal's active records, then
// claims the rotation with the store's atomic conditional revoke. Losing the
// conditional write means a concurrent rotation of the same secret already
// won; that is a stale submission, not an attack. A secret that resolves only
// against an already-revoked record is a reuse: the whole chain is revoked
// before the failure is reported.
func RunRotate(ctx context.Context, principalID string, rawSecret []byte, device token.Device, deps RotateDeps) RotateResult {
	now := deps.Now()

	// Throttle before the digest search: lookups pay for memory-hard
	// verification, so the limiter has to sit in front of them.
	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, principalID); err != nil {
			return RotateResult{Failure: RotateFailureRateLimited, Err: err}
		}
	}

	rec, err := deps.Store.FindActiveMatch(ctx, principalID, rawSecret)
	if err != nil {
		return RotateResult{Failure: RotateFailureLookup, Err: err}
	}

	if rec == nil {
		return classifyMiss(ctx, principalID, rawSecret, now, deps)
	}

	won, err := deps.Store.MarkRevoked(ctx, rec.ID, now.Unix())
	if err != nil {
		return RotateResult{Failure: RotateFailureRevoke, Err: err, Record: rec}
	}
	if !won {
		return RotateResult{Failure: RotateFailureStale, Record: rec}
	}

	issued := deps.Issue(ctx, IssueRequest{
		PrincipalID:      principalID,
		Role:             rec.Role,
		Device:           device,
		ChainID:          rec.ChainID,
		ParentSecretHash: rec.SecretHash,
	})
	if issued.Failure != IssueFailureNone {
		return RotateResult{Failure: RotateFailureIssue, Err: issued.Err, Record: rec, Issue: issued}
	}

	if err := deps.Store.UpdateLastUsed(ctx, rec.ID, now.Unix()); err != nil && deps.Warn != nil {
		deps.Warn("rotary: last-used stamp failed")
	}

	return RotateResult{
		Failure:      RotateFailureNone,
		Record:       issued.Record,
		Issue:        issued,
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
	}
}

// classifyMiss distinguishes why a secret has no active match: revoked record
// found means reuse, expired record means a lapsed session, no record at all
// means the secret was never ours.
func classifyMiss(ctx context.Context, principalID string, rawSecret []byte, now time.Time, deps RotateDeps) RotateResult {
	rec, err := deps.Store.FindAnyMatch(ctx, principalID, rawSecret)
	if err != nil {
		return RotateResult{Failure: RotateFailureLookup, Err: err}
	}
	if rec == nil {
		return RotateResult{Failure: RotateFailureInvalid}
	}

	if rec.RevokedAt != 0 {
		revoked, revokeErr := deps.Store.MarkRevokedForChain(ctx, rec.ChainID, now.Unix())
		if revokeErr != nil && deps.Warn != nil {
			deps.Warn("rotary: family revocation on reuse failed")
		}
		return RotateResult{
			Failure:      RotateFailureReuse,
			Err:          revokeErr,
			Record:       rec,
			ChainRevoked: revoked,
		}
	}

	return RotateResult{Failure: RotateFailureExpired, Record: rec}
}
