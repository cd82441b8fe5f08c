package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// Refresh tokens on the wire are base64url over:
//
//	[1]byte version | [1]byte principal length | principal bytes | [32]byte secret
//
// The principal travels inside the token so the refresh endpoint does not need
// a separate identity input; the secret alone still carries all the entropy.
const (
	refreshWireVersion = 1
	refreshSecretSize  = 32
	maxPrincipalLen    = 255
)

// ErrMalformedToken is returned for any wire token that does not decode to
// the exact expected layout.
var ErrMalformedToken = errors.New("malformed refresh token")

// NewRefreshSecret returns a fresh 256-bit secret.
func NewRefreshSecret() ([]byte, error) {
	secret := make([]byte, refreshSecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// EncodeRefreshToken packs a principal id and raw secret into the wire form.
func EncodeRefreshToken(principalID string, secret []byte) (string, error) {
	if principalID == "" || len(principalID) > maxPrincipalLen {
		return "", errors.New("invalid principal id length")
	}
	if len(secret) != refreshSecretSize {
		return "", errors.New("invalid refresh secret size")
	}

	raw := make([]byte, 0, 2+len(principalID)+refreshSecretSize)
	raw = append(raw, refreshWireVersion, byte(len(principalID)))
	raw = append(raw, principalID...)
	raw = append(raw, secret...)

	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeRefreshToken unpacks a wire token into principal id and raw secret.
func DecodeRefreshToken(token string) (string, []byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", nil, ErrMalformedToken
	}
	if len(raw) < 2 || raw[0] != refreshWireVersion {
		return "", nil, ErrMalformedToken
	}

	principalLen := int(raw[1])
	if principalLen == 0 || len(raw) != 2+principalLen+refreshSecretSize {
		return "", nil, ErrMalformedToken
	}

	principalID := string(raw[2 : 2+principalLen])
	secret := make([]byte, refreshSecretSize)
	copy(secret, raw[2+principalLen:])

	return principalID, secret, nil
}
