package token

import "time"

// Device is the metadata bag captured when a refresh credential is issued.
// It is stored verbatim and surfaced by the device registry; nothing in it
// is trusted for security decisions.
type Device struct {
	UserAgent string
	IP        string
	DeviceID  string
	Name      string
}

// Record is the persisted refresh-token record. One Record exists per issued
// refresh credential; successive rotations of one session share a ChainID and
// are linked through ParentSecretHash.
//
// Record instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise. The raw secret never
// appears in a Record: SecretHash is a salted, memory-hard digest.
type Record struct {
	ID               string
	PrincipalID      string
	Role             string
	SecretHash       string
	Device           Device
	ChainID          string
	ParentSecretHash string

	CreatedAt  int64
	ExpiresAt  int64
	LastUsedAt int64
	RevokedAt  int64
}

// Active reports whether the record is usable at the given instant:
// not revoked and not past its expiry.
func (r *Record) Active(now time.Time) bool {
	if r == nil {
		return false
	}
	return r.RevokedAt == 0 && r.ExpiresAt > now.Unix()
}

// Expired reports whether the record is past its expiry. Expiry is a derived
// condition; it is never written back to the store.
func (r *Record) Expired(now time.Time) bool {
	if r == nil {
		return true
	}
	return r.ExpiresAt <= now.Unix()
}

func (r *Record) clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
