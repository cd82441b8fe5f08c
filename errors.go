package rotary

import "errors"

var (
	// ErrRefreshInvalid is an exported constant or variable used by the rotation engine.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshExpired is an exported constant or variable used by the rotation engine.
	ErrRefreshExpired = errors.New("refresh token expired")
	// ErrRefreshStale is an exported constant or variable used by the rotation engine.
	ErrRefreshStale = errors.New("refresh token already rotated")
	// ErrRefreshReuse is an exported constant or variable used by the rotation engine.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrRefreshDenied is an exported constant or variable used by the rotation engine.
	ErrRefreshDenied = errors.New("refresh denied")
	// ErrRefreshRateLimited is an exported constant or variable used by the rotation engine.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrTokenInvalid is an exported constant or variable used by the rotation engine.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenClockSkew is an exported constant or variable used by the rotation engine.
	ErrTokenClockSkew = errors.New("token clock skew exceeded")
	// ErrRecordNotFound is an exported constant or variable used by the rotation engine.
	ErrRecordNotFound = errors.New("token record not found")
	// ErrDeviceNotFound is an exported constant or variable used by the rotation engine.
	ErrDeviceNotFound = errors.New("device session not found")
	// ErrChainLimitExceeded is an exported constant or variable used by the rotation engine.
	ErrChainLimitExceeded = errors.New("active session limit exceeded")
	// ErrHasherSaturated is an exported constant or variable used by the rotation engine.
	ErrHasherSaturated = errors.New("hashing pool saturated")
	// ErrStoreUnavailable is an exported constant or variable used by the rotation engine.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrIssueFailed is an exported constant or variable used by the rotation engine.
	ErrIssueFailed = errors.New("token issuance failed")
	// ErrEngineNotReady is an exported constant or variable used by the rotation engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ClientFacing collapses an engine error to the error a transport layer should
// expose. Every rotation denial maps to the same opaque ErrRefreshDenied so
// the wire response never reveals whether a presented token was malformed,
// expired, stale, or flagged as reuse. Infrastructure faults and rate limits
// keep their identity; callers may translate those to 503 and 429.
func ClientFacing(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrRefreshExpired),
		errors.Is(err, ErrRefreshStale),
		errors.Is(err, ErrRefreshReuse):
		return ErrRefreshDenied
	default:
		return err
	}
}
