// Package quota gates the translation feature behind a monthly ceiling for
// non-entitled users. Entitled users bypass the tracker entirely; their
// counter stays frozen at its last value and resumes being enforced if
// entitlement is later revoked.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/tibco87/clipsmart/internal/popup/models"
	"github.com/tibco87/clipsmart/internal/popup/storage"
)

// Tracker persists the counter on the device-local tier. Usage is per
// install, not per account, so it never propagates.
type Tracker struct {
	store *storage.Store
	limit int
	now   func() time.Time
}

func NewTracker(store *storage.Store, limit int, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{store: store, limit: limit, now: now}
}

// CheckLimit reports whether another translation is allowed. Entitled users
// always pass. A period rollover resets the counter to zero and persists the
// reset; the old count is discarded.
func (t *Tracker) CheckLimit(ctx context.Context, entitled bool) (bool, error) {
	if entitled {
		return true, nil
	}

	counter, err := t.load(ctx)
	if err != nil {
		return false, err
	}

	period := models.PeriodKey(t.now())
	if counter == nil || counter.Month != period {
		if err := t.save(ctx, models.UsageCounter{Month: period, Count: 0}); err != nil {
			return false, err
		}
		return true, nil
	}
	return counter.Count < t.limit, nil
}

// Increment records one translation. No-op for entitled users.
func (t *Tracker) Increment(ctx context.Context, entitled bool) error {
	if entitled {
		return nil
	}

	counter, err := t.load(ctx)
	if err != nil {
		return err
	}

	period := models.PeriodKey(t.now())
	next := models.UsageCounter{Month: period, Count: 1}
	if counter != nil && counter.Month == period {
		next.Count = counter.Count + 1
	}
	return t.save(ctx, next)
}

// Used returns the count consumed in the current period.
func (t *Tracker) Used(ctx context.Context) (int, error) {
	counter, err := t.load(ctx)
	if err != nil {
		return 0, err
	}
	if counter == nil || counter.Month != models.PeriodKey(t.now()) {
		return 0, nil
	}
	return counter.Count, nil
}

func (t *Tracker) load(ctx context.Context) (*models.UsageCounter, error) {
	rec, err := t.store.Local().Get(ctx, storage.KeyUsageCounter)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage counter: %w", err)
	}
	var counter models.UsageCounter
	ok, err := rec.Decode(storage.KeyUsageCounter, &counter)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &counter, nil
}

func (t *Tracker) save(ctx context.Context, counter models.UsageCounter) error {
	rec := storage.Record{}
	if err := rec.Encode(storage.KeyUsageCounter, counter); err != nil {
		return err
	}
	if err := t.store.Local().Set(ctx, rec); err != nil {
		return fmt.Errorf("failed to persist usage counter: %w", err)
	}
	return nil
}
