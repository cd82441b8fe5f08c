package rotary

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/nexauth/rotary/token"
)

// Devices describes the devices operation and its observable behavior.
//
// Devices may return an error when input validation, dependency calls, or security checks fail.
// Devices does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Devices(ctx context.Context, principalID string) ([]DeviceSession, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if principalID == "" {
		return nil, errors.New("principal id required")
	}

	active, err := e.store.ListActive(ctx, principalID)
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		return nil, mapInfraErr(err)
	}

	// One entry per chain: the newest record is the chain's live head, and
	// its device metadata is what the last rotation captured.
	heads := make(map[string]*token.Record, len(active))
	for _, rec := range active {
		head, ok := heads[rec.ChainID]
		if !ok || rec.CreatedAt > head.CreatedAt {
			heads[rec.ChainID] = rec
		}
	}

	sessions := make([]DeviceSession, 0, len(heads))
	for _, rec := range heads {
		sessions = append(sessions, DeviceSession{
			RecordID:   rec.ID,
			ChainID:    rec.ChainID,
			DeviceName: rec.Device.Name,
			UserAgent:  rec.Device.UserAgent,
			IP:         rec.Device.IP,
			CreatedAt:  rec.CreatedAt,
			LastUsedAt: rec.LastUsedAt,
			ExpiresAt:  rec.ExpiresAt,
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt != sessions[j].CreatedAt {
			return sessions[i].CreatedAt > sessions[j].CreatedAt
		}
		return sessions[i].RecordID < sessions[j].RecordID
	})

	return sessions, nil
}

// RevokeDevice describes the revokedevice operation and its observable behavior.
//
// RevokeDevice may return an error when input validation, dependency calls, or security checks fail.
// RevokeDevice does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RevokeDevice(ctx context.Context, principalID, recordID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if principalID == "" || recordID == "" {
		return ErrDeviceNotFound
	}

	rec, err := e.store.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, token.ErrRecordNotFound) {
			return ErrDeviceNotFound
		}
		e.metricInc(MetricStoreUnavailable)
		return mapInfraErr(err)
	}
	// Ownership check happens before any write; a foreign record id behaves
	// exactly like a missing one.
	if rec.PrincipalID != principalID {
		return ErrDeviceNotFound
	}

	revoked, err := e.store.MarkRevokedForChain(ctx, rec.ChainID, time.Now().Unix())
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		return mapInfraErr(err)
	}

	e.metricInc(MetricDeviceRevoked)
	if revoked > 0 {
		e.metricInc(MetricChainRevoked)
	}
	e.emitAudit(ctx, auditEventDeviceRevoked, true, principalID, rec.ChainID, rec.ID, nil, func() map[string]string {
		return map[string]string{
			"chain_revoked": strconv.Itoa(revoked),
			"device":        rec.Device.Name,
		}
	})

	return nil
}
