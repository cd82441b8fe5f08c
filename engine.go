package rotary

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nexauth/rotary/internal"
	internalaudit "github.com/nexauth/rotary/internal/audit"
	"github.com/nexauth/rotary/internal/flows"
	"github.com/nexauth/rotary/internal/rate"
	"github.com/nexauth/rotary/jwt"
	"github.com/nexauth/rotary/secret"
	"github.com/nexauth/rotary/token"
)

// Engine defines a public type used by rotary APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config      Config
	store       token.Store
	pool        *secret.Pool
	rateLimiter *rate.Limiter
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	jwtManager  *jwt.Manager
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) issueDeps() flows.IssueDeps {
	return flows.IssueDeps{
		NewRefreshSecret:   internal.NewRefreshSecret,
		HashSecret:         e.pool.Hash,
		EncodeRefreshToken: internal.EncodeRefreshToken,
		IssueAccessToken:   e.jwtManager.CreateAccess,
		NewChainID:         uuid.NewString,
		Now:                time.Now,
		RefreshLifetime:    e.config.Token.RefreshTTL,
		Store:              e.store,
	}
}

func (e *Engine) rotateDeps() flows.RotateDeps {
	deps := flows.RotateDeps{
		Store: e.store,
		Issue: func(ctx context.Context, req flows.IssueRequest) flows.IssueResult {
			return flows.RunIssue(ctx, req, e.issueDeps())
		},
		Now:  time.Now,
		Warn: log.Printf,
	}
	if e.rateLimiter != nil {
		deps.RateLimiter = e.rateLimiter
	}
	return deps
}

// mapInfraErr folds subsystem faults into the engine's public sentinels.
func mapInfraErr(err error) error {
	switch {
	case errors.Is(err, secret.ErrSaturated):
		return ErrHasherSaturated
	case errors.Is(err, token.ErrStoreUnavailable),
		errors.Is(err, rate.ErrRedisUnavailable),
		errors.Is(err, secret.ErrDigestCorrupt):
		return ErrStoreUnavailable
	default:
		return err
	}
}

// Login describes the login operation and its observable behavior.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*TokenPair, error) {
	if e == nil || e.store == nil || e.pool == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if req.PrincipalID == "" {
		return nil, errors.New("principal id required")
	}

	if e.config.Security.MaxChainsPerPrincipal > 0 {
		active, err := e.store.ListActive(ctx, req.PrincipalID)
		if err != nil {
			e.metricInc(MetricLoginFailure)
			e.metricInc(MetricStoreUnavailable)
			return nil, mapInfraErr(err)
		}
		chains := map[string]struct{}{}
		for _, rec := range active {
			chains[rec.ChainID] = struct{}{}
		}
		if len(chains) >= e.config.Security.MaxChainsPerPrincipal {
			e.metricInc(MetricLoginFailure)
			e.metricInc(MetricChainLimitExceeded)
			e.emitAudit(ctx, auditEventLoginFailure, false, req.PrincipalID, "", "", ErrChainLimitExceeded, func() map[string]string {
				return map[string]string{
					"reason":        "chain_limit",
					"active_chains": strconv.Itoa(len(chains)),
				}
			})
			return nil, ErrChainLimitExceeded
		}
	}

	deviceName := req.DeviceName
	if deviceName == "" {
		deviceName = deviceNameFromContext(ctx)
	}
	device := token.Device{
		UserAgent: userAgentFromContext(ctx),
		IP:        clientIPFromContext(ctx),
		DeviceID:  uuid.NewString(),
		Name:      deviceName,
	}

	res := flows.RunIssue(ctx, flows.IssueRequest{
		PrincipalID: req.PrincipalID,
		Role:        req.Role,
		Device:      device,
	}, e.issueDeps())
	if res.Failure != flows.IssueFailureNone {
		err := e.mapIssueFailure(res)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, req.PrincipalID, "", "", err, func() map[string]string {
			return map[string]string{
				"reason": issueFailureReason(res.Failure),
			}
		})
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, req.PrincipalID, res.Record.ChainID, res.Record.ID, nil, func() map[string]string {
		return map[string]string{
			"device": deviceName,
		}
	})

	return &TokenPair{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	}, nil
}

func (e *Engine) mapIssueFailure(res flows.IssueResult) error {
	switch res.Failure {
	case flows.IssueFailureHash:
		if errors.Is(res.Err, secret.ErrSaturated) {
			e.metricInc(MetricHasherSaturated)
			return ErrHasherSaturated
		}
		return ErrIssueFailed
	case flows.IssueFailurePersist:
		e.metricInc(MetricStoreUnavailable)
		return mapInfraErr(res.Err)
	default:
		return ErrIssueFailed
	}
}

func issueFailureReason(kind flows.IssueFailureKind) string {
	switch kind {
	case flows.IssueFailureSecret:
		return "secret_generation"
	case flows.IssueFailureHash:
		return "hash_failed"
	case flows.IssueFailurePersist:
		return "persist_failed"
	case flows.IssueFailureAccess:
		return "issue_access_failed"
	case flows.IssueFailureEncode:
		return "encode_refresh_failed"
	default:
		return "unknown"
	}
}

// Refresh describes the refresh operation and its observable behavior.
//
// Refresh may return an error when input validation, dependency calls, or security checks fail.
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.store == nil || e.pool == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricRefreshLatency, time.Since(start)) }()
	}

	principalID, providedSecret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", "", ErrRefreshInvalid, func() map[string]string {
			return map[string]string{
				"reason": "decode_failed",
			}
		})
		return nil, ErrRefreshInvalid
	}

	device := token.Device{
		UserAgent: userAgentFromContext(ctx),
		IP:        clientIPFromContext(ctx),
		Name:      deviceNameFromContext(ctx),
	}

	res := flows.RunRotate(ctx, principalID, providedSecret, device, e.rotateDeps())
	switch res.Failure {
	case flows.RotateFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, principalID, res.Record.ChainID, res.Record.ID, nil, nil)
		return &TokenPair{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
		}, nil

	case flows.RotateFailureRateLimited:
		e.metricInc(MetricRefreshRateLimited)
		e.emitAudit(ctx, auditEventRefreshRateLimited, false, principalID, "", "", ErrRefreshRateLimited, nil)
		e.emitRateLimit(ctx, "refresh", principalID, nil)
		if errors.Is(res.Err, rate.ErrRedisUnavailable) {
			e.metricInc(MetricStoreUnavailable)
			return nil, ErrStoreUnavailable
		}
		return nil, ErrRefreshRateLimited

	case flows.RotateFailureStale:
		e.metricInc(MetricRefreshStale)
		e.emitAudit(ctx, auditEventRefreshStale, false, principalID, res.Record.ChainID, res.Record.ID, ErrRefreshStale, nil)
		return nil, ErrRefreshStale

	case flows.RotateFailureExpired:
		e.metricInc(MetricRefreshExpired)
		e.emitAudit(ctx, auditEventRefreshExpired, false, principalID, res.Record.ChainID, res.Record.ID, ErrRefreshExpired, nil)
		return nil, ErrRefreshExpired

	case flows.RotateFailureInvalid:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, principalID, "", "", ErrRefreshInvalid, func() map[string]string {
			return map[string]string{
				"reason": "no_match",
			}
		})
		return nil, ErrRefreshInvalid

	case flows.RotateFailureReuse:
		e.metricInc(MetricRefreshReuseDetected)
		e.metricInc(MetricChainRevoked)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, principalID, res.Record.ChainID, res.Record.ID, ErrRefreshReuse, func() map[string]string {
			m := map[string]string{
				"chain_revoked": strconv.Itoa(res.ChainRevoked),
			}
			if res.Err != nil {
				m["revoke_error"] = "true"
			}
			return m
		})
		return nil, ErrRefreshReuse

	case flows.RotateFailureLookup, flows.RotateFailureRevoke:
		mapped := mapInfraErr(res.Err)
		if errors.Is(mapped, ErrHasherSaturated) {
			e.metricInc(MetricHasherSaturated)
		} else {
			e.metricInc(MetricStoreUnavailable)
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, principalID, "", "", mapped, func() map[string]string {
			return map[string]string{
				"reason": "store_failed",
			}
		})
		return nil, mapped

	case flows.RotateFailureIssue:
		err := e.mapIssueFailure(res.Issue)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, principalID, res.Record.ChainID, res.Record.ID, err, func() map[string]string {
			return map[string]string{
				"reason": issueFailureReason(res.Issue.Failure),
			}
		})
		return nil, err

	default:
		e.metricInc(MetricRefreshFailure)
		return nil, ErrRefreshInvalid
	}
}

// Logout describes the logout operation and its observable behavior.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	principalID, providedSecret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return ErrRefreshInvalid
	}

	rec, err := e.store.FindAnyMatch(ctx, principalID, providedSecret)
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		return mapInfraErr(err)
	}
	if rec == nil {
		return ErrRefreshInvalid
	}

	// Logout revokes the presented record only. The record is its chain's
	// live head, so the session ends here; an already-revoked record makes
	// logout a no-op rather than an error.
	won, err := e.store.MarkRevoked(ctx, rec.ID, time.Now().Unix())
	if err != nil && !errors.Is(err, token.ErrRecordNotFound) {
		e.metricInc(MetricStoreUnavailable)
		return mapInfraErr(err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, principalID, rec.ChainID, rec.ID, nil, func() map[string]string {
		return map[string]string{
			"revoked": strconv.FormatBool(won),
		}
	})

	return nil
}

// ValidateAccess describes the validateaccess operation and its observable behavior.
//
// ValidateAccess may return an error when input validation, dependency calls, or security checks fail.
// ValidateAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ValidateAccess(ctx context.Context, tokenStr string) (*Identity, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	return &Identity{
		PrincipalID: claims.UID,
		Role:        claims.Role,
		ChainID:     claims.ChainID,
	}, nil
}
