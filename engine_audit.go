package rotary

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshStale         = "refresh_stale"
	auditEventRefreshExpired       = "refresh_expired"
	auditEventRefreshRateLimited   = "refresh_rate_limited"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventChainRevoked         = "chain_revoked"
	auditEventLogoutSession        = "logout_session"
	auditEventDeviceRevoked        = "device_revoked"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
)

// AuditErrorCode defines a public type used by rotary APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrRefreshExpired     AuditErrorCode = "refresh_expired"
	auditErrRefreshStale       AuditErrorCode = "refresh_stale"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrRecordNotFound     AuditErrorCode = "record_not_found"
	auditErrChainLimitExceeded AuditErrorCode = "chain_limit_exceeded"
	auditErrHasherSaturated    AuditErrorCode = "hasher_saturated"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID string,
	chainID string,
	recordID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		PrincipalID: principalID,
		ChainID:     chainID,
		RecordID:    recordID,
		IP:          clientIPFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	scope string,
	principalID string,
	metadataBuilder func() map[string]string,
) {
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, principalID, "", "", nil, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrRefreshStale):
		return auditErrRefreshStale
	case errors.Is(err, ErrRefreshExpired):
		return auditErrRefreshExpired
	case errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenClockSkew):
		return auditErrInvalidToken
	case errors.Is(err, ErrRefreshRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrRecordNotFound),
		errors.Is(err, ErrDeviceNotFound):
		return auditErrRecordNotFound
	case errors.Is(err, ErrChainLimitExceeded):
		return auditErrChainLimitExceeded
	case errors.Is(err, ErrHasherSaturated):
		return auditErrHasherSaturated
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrIssueFailed):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
