package rotary

import (
	"io"

	internalaudit "github.com/nexauth/rotary/internal/audit"
)

// TokenPair is returned by [Engine.Login] and [Engine.Refresh]. RefreshToken
// is an opaque single-use credential; AccessToken is a signed JWT.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginRequest is the input for [Engine.Login]. The caller is expected to
// have authenticated the principal already; rotary manages the session
// tokens, not the credential check.
type LoginRequest struct {
	PrincipalID string
	Role        string
	DeviceName  string
}

// Identity is returned by [Engine.ValidateAccess]. It contains the
// authenticated principal, the role claim, and the rotation chain the access
// token was minted under.
type Identity struct {
	PrincipalID string
	Role        string
	ChainID     string
}

// DeviceSession is one entry in the device registry returned by
// [Engine.Devices]. It describes the newest active record of a rotation
// chain; revoking it through [Engine.RevokeDevice] kills the whole chain.
type DeviceSession struct {
	RecordID   string
	ChainID    string
	DeviceName string
	UserAgent  string
	IP         string
	CreatedAt  int64
	LastUsedAt int64
	ExpiresAt  int64
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine’s audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
