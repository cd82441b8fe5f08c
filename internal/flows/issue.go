package flows

import (
	"context"
	"time"

	"github.com/nexauth/rotary/token"
)

// IssueFailureKind classifies issuance flow failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureSecret
	IssueFailureHash
	IssueFailurePersist
	IssueFailureAccess
	IssueFailureEncode
)

// IssueResult carries either the issued token pair or failure metadata.
type IssueResult struct {
	Failure      IssueFailureKind
	Err          error
	Record       *token.Record
	AccessToken  string
	RefreshToken string
}

type IssueStore interface {
	Persist(ctx context.Context, rec *token.Record) (*token.Record, error)
}

// IssueDeps captures issuance flow dependencies.
type IssueDeps struct {
	NewRefreshSecret   func() ([]byte, error)
	HashSecret         func(context.Context, []byte) (string, error)
	EncodeRefreshToken func(principalID string, secret []byte) (string, error)
	IssueAccessToken   func(principalID, role, chainID string) (string, error)
	NewChainID         func() string
	Now                func() time.Time
	RefreshLifetime    time.Duration
	Store              IssueStore
}

// IssueRequest names the inputs of one issuance. ChainID and ParentSecretHash
// are zero for a fresh login; rotation supplies both from the predecessor.
type IssueRequest struct {
	PrincipalID      string
	Role             string
	Device           token.Device
	ChainID          string
	ParentSecretHash string
}

// RunIssue generates a fresh refresh secret, hashes and persists its record,
// and returns the encoded pair. The raw secret exists only on the stack of
// this function and in the returned wire token.
func RunIssue(ctx context.Context, req IssueRequest, deps IssueDeps) IssueResult {
	secret, err := deps.NewRefreshSecret()
	if err != nil {
		return IssueResult{Failure: IssueFailureSecret, Err: err}
	}

	digest, err := deps.HashSecret(ctx, secret)
	if err != nil {
		return IssueResult{Failure: IssueFailureHash, Err: err}
	}

	chainID := req.ChainID
	if chainID == "" {
		chainID = deps.NewChainID()
	}

	now := deps.Now()
	rec := &token.Record{
		PrincipalID:      req.PrincipalID,
		Role:             req.Role,
		SecretHash:       digest,
		Device:           req.Device,
		ChainID:          chainID,
		ParentSecretHash: req.ParentSecretHash,
		CreatedAt:        now.Unix(),
		ExpiresAt:        now.Add(deps.RefreshLifetime).Unix(),
	}

	rec, err = deps.Store.Persist(ctx, rec)
	if err != nil {
		return IssueResult{Failure: IssueFailurePersist, Err: err}
	}

	access, err := deps.IssueAccessToken(req.PrincipalID, req.Role, chainID)
	if err != nil {
		return IssueResult{Failure: IssueFailureAccess, Err: err, Record: rec}
	}

	refresh, err := deps.EncodeRefreshToken(req.PrincipalID, secret)
	if err != nil {
		return IssueResult{Failure: IssueFailureEncode, Err: err, Record: rec}
	}

	return IssueResult{
		Failure:      IssueFailureNone,
		Record:       rec,
		AccessToken:  access,
		RefreshToken: refresh,
	}
}
