package token

import (
	"errors"
	"strconv"
)

// Field names for the Redis hash representation of a Record. The conditional
// revoke script addresses fieldRevokedAt directly, so renaming a field is a
// breaking storage change.
const (
	fieldID         = "id"
	fieldPrincipal  = "principal_id"
	fieldRole       = "role"
	fieldSecretHash = "secret_hash"
	fieldUserAgent  = "ua"
	fieldIP         = "ip"
	fieldDeviceID   = "device_id"
	fieldDeviceName = "device_name"
	fieldChainID    = "chain_id"
	fieldParentHash = "parent_secret_hash"
	fieldCreatedAt  = "created_at"
	fieldExpiresAt  = "expires_at"
	fieldLastUsedAt = "last_used_at"
	fieldRevokedAt  = "revoked_at"
)

func encodeRecord(r *Record) map[string]interface{} {
	return map[string]interface{}{
		fieldID:         r.ID,
		fieldPrincipal:  r.PrincipalID,
		fieldRole:       r.Role,
		fieldSecretHash: r.SecretHash,
		fieldUserAgent:  r.Device.UserAgent,
		fieldIP:         r.Device.IP,
		fieldDeviceID:   r.Device.DeviceID,
		fieldDeviceName: r.Device.Name,
		fieldChainID:    r.ChainID,
		fieldParentHash: r.ParentSecretHash,
		fieldCreatedAt:  strconv.FormatInt(r.CreatedAt, 10),
		fieldExpiresAt:  strconv.FormatInt(r.ExpiresAt, 10),
		fieldLastUsedAt: strconv.FormatInt(r.LastUsedAt, 10),
		fieldRevokedAt:  strconv.FormatInt(r.RevokedAt, 10),
	}
}

func decodeRecord(fields map[string]string) (*Record, error) {
	if len(fields) == 0 {
		return nil, ErrRecordNotFound
	}
	if fields[fieldID] == "" || fields[fieldPrincipal] == "" || fields[fieldChainID] == "" {
		return nil, errors.New("token record missing identity fields")
	}

	createdAt, err := decodeUnix(fields[fieldCreatedAt])
	if err != nil {
		return nil, err
	}
	expiresAt, err := decodeUnix(fields[fieldExpiresAt])
	if err != nil {
		return nil, err
	}
	lastUsedAt, err := decodeUnix(fields[fieldLastUsedAt])
	if err != nil {
		return nil, err
	}
	revokedAt, err := decodeUnix(fields[fieldRevokedAt])
	if err != nil {
		return nil, err
	}

	return &Record{
		ID:          fields[fieldID],
		PrincipalID: fields[fieldPrincipal],
		Role:        fields[fieldRole],
		SecretHash:  fields[fieldSecretHash],
		Device: Device{
			UserAgent: fields[fieldUserAgent],
			IP:        fields[fieldIP],
			DeviceID:  fields[fieldDeviceID],
			Name:      fields[fieldDeviceName],
		},
		ChainID:          fields[fieldChainID],
		ParentSecretHash: fields[fieldParentHash],
		CreatedAt:        createdAt,
		ExpiresAt:        expiresAt,
		LastUsedAt:       lastUsedAt,
		RevokedAt:        revokedAt,
	}, nil
}

func decodeUnix(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.New("token record has invalid timestamp field")
	}
	return v, nil
}
