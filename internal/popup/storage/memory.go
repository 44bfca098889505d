package storage

import (
	"context"
	"errors"
	"sync"
)

// MemoryTier is an in-memory Tier used in tests and as a scratch backend.
type MemoryTier struct {
	mu   sync.RWMutex
	data Record
}

func NewMemoryTier() *MemoryTier {
	return &MemoryTier{data: Record{}}
}

func (m *MemoryTier) Get(ctx context.Context, keys ...string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec := Record{}
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			rec[k] = append([]byte(nil), v...)
		}
	}
	return rec, nil
}

func (m *MemoryTier) Set(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range rec {
		m.data[k] = append([]byte(nil), v...)
	}
	return nil
}

// UnavailableTier is a Tier that always fails. It stands in for the
// propagating tier in runtime contexts where sync storage does not exist,
// which makes Store fall back to the local tier on every call.
type UnavailableTier struct{}

var errTierUnavailable = errors.New("sync tier not available in this context")

func (UnavailableTier) Get(ctx context.Context, keys ...string) (Record, error) {
	return nil, errTierUnavailable
}

func (UnavailableTier) Set(ctx context.Context, rec Record) error {
	return errTierUnavailable
}
