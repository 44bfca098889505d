// Package storage implements the popup's persisted key-value state over two
// tiers: a propagating tier that follows the user across devices and a
// device-local tier. Callers go through Store, which attempts the propagating
// tier first and silently falls back to the local tier per call.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tibco87/clipsmart/internal/common"
)

// Well-known storage keys. The extensionpay_* keys match the payment
// library's historical names so existing installs keep their state.
const (
	KeyItems        = "clipboardItems"
	KeyTags         = "tags"
	KeySettings     = "settings"
	KeyProFlag      = "isPro"
	KeySortOrder    = "sortOrder"
	KeyUsageCounter = "translationsThisMonth"
	KeyUser         = "extensionpay_user"
	KeyAPIKey       = "extensionpay_api_key"
	KeyInstalledAt  = "extensionpay_installed_at"
)

// Record is a partial key-value snapshot. Values are raw JSON so tiers stay
// agnostic of the shapes they carry.
type Record map[string]json.RawMessage

// Decode unmarshals the value under key into v. ok is false when the key is
// absent from the record.
func (r Record) Decode(key string, v any) (bool, error) {
	raw, exists := r[key]
	if !exists || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Encode marshals v and stores it under key.
func (r Record) Encode(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	r[key] = raw
	return nil
}

// Tier is a single persistence backend.
type Tier interface {
	// Get returns the values for the requested keys. Absent keys are simply
	// missing from the result, not an error.
	Get(ctx context.Context, keys ...string) (Record, error)
	// Set upserts every key in rec.
	Set(ctx context.Context, rec Record) error
}

// Store layers the two tiers. Every call re-attempts the propagating tier
// first; fallback is per-call, never cached as a permanent decision.
type Store struct {
	synced Tier
	local  Tier
}

func NewStore(synced, local Tier) *Store {
	return &Store{synced: synced, local: local}
}

// Synced exposes the propagating tier for reconciliation reads.
func (s *Store) Synced() Tier { return s.synced }

// Local exposes the device-local tier for reconciliation reads and for state
// that intentionally never propagates.
func (s *Store) Local() Tier { return s.local }

// Get reads keys from the propagating tier, falling back to the local tier
// when it is unavailable. Callers cannot tell which tier served the request.
func (s *Store) Get(ctx context.Context, keys ...string) (Record, error) {
	rec, syncErr := s.synced.Get(ctx, keys...)
	if syncErr == nil {
		return rec, nil
	}
	rec, localErr := s.local.Get(ctx, keys...)
	if localErr == nil {
		return rec, nil
	}
	return nil, fmt.Errorf("%w: %w", common.ErrStorageUnavailable, errors.Join(syncErr, localErr))
}

// Set writes rec to the propagating tier, falling back to the local tier when
// it is unavailable.
func (s *Store) Set(ctx context.Context, rec Record) error {
	syncErr := s.synced.Set(ctx, rec)
	if syncErr == nil {
		return nil
	}
	localErr := s.local.Set(ctx, rec)
	if localErr == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", common.ErrStorageUnavailable, errors.Join(syncErr, localErr))
}

// GetMerged reads keys from both tiers and merges the results, preferring the
// propagating tier's values. A single tier failing is tolerated; the error is
// returned only when both fail.
func (s *Store) GetMerged(ctx context.Context, keys ...string) (Record, error) {
	syncRec, syncErr := s.synced.Get(ctx, keys...)
	localRec, localErr := s.local.Get(ctx, keys...)
	if syncErr != nil && localErr != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStorageUnavailable, errors.Join(syncErr, localErr))
	}

	merged := Record{}
	for k, v := range localRec {
		merged[k] = v
	}
	for k, v := range syncRec {
		merged[k] = v
	}
	return merged, nil
}
