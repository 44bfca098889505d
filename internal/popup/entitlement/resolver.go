// Package entitlement reconciles the paid/unpaid status of the current
// install from three sources: the device-local cached flag, the user record
// cached in either storage tier, and fresh fetches from the payment service.
package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tibco87/clipsmart/internal/common"
	"github.com/tibco87/clipsmart/internal/logging"
	"github.com/tibco87/clipsmart/internal/popup/models"
	"github.com/tibco87/clipsmart/internal/popup/storage"
)

// PaymentService is the remote side of the resolver. *extpay.Client
// implements it.
type PaymentService interface {
	CreateKey(ctx context.Context, development bool) (string, error)
	FetchUser(ctx context.Context, apiKey string) (*models.UserRecord, json.RawMessage, error)
}

// Listener receives the resolved user record on an entitlement transition.
type Listener func(models.UserRecord)

type Options struct {
	// Development requests test-mode credentials when provisioning.
	Development bool
	// PollInterval and PollAttempts bound PollUntilPaid.
	PollInterval time.Duration
	PollAttempts int
	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

type Resolver struct {
	store   *storage.Store
	service PaymentService
	log     logging.Logger
	now     func() time.Time

	development  bool
	pollInterval time.Duration
	pollAttempts int

	// poll collapses concurrent PollUntilPaid calls into one loop whose
	// result all callers share.
	poll singleflight.Group

	mu             sync.Mutex
	paidListeners  []Listener
	trialListeners []Listener
}

func NewResolver(store *storage.Store, service PaymentService, log logging.Logger, opts Options) *Resolver {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		store:        store,
		service:      service,
		log:          log,
		now:          now,
		development:  opts.Development,
		pollInterval: opts.PollInterval,
		pollAttempts: opts.PollAttempts,
	}
}

// OnPaid registers fn to run when paidAt transitions from absent to present.
func (r *Resolver) OnPaid(fn Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paidListeners = append(r.paidListeners, fn)
}

// OnTrialStarted registers fn to run when trialStartedAt transitions from
// absent to present.
func (r *Resolver) OnTrialStarted(fn Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trialListeners = append(r.trialListeners, fn)
}

// EnsureInstalled returns the install instant, establishing it on first run.
// A record left behind by pre-v2 versions carried the install time inside the
// cached user record; that value is migrated rather than replaced. A missing
// or unparseable timestamp falls back to "now", persisted once.
func (r *Resolver) EnsureInstalled(ctx context.Context) (time.Time, error) {
	rec, err := r.store.Get(ctx, storage.KeyInstalledAt, storage.KeyUser)
	if err != nil {
		return time.Time{}, err
	}

	var stored string
	if ok, err := rec.Decode(storage.KeyInstalledAt, &stored); err == nil && ok && stored != "" {
		t, err := models.ParseInstant(stored)
		if err == nil {
			return t, nil
		}
		r.log.Warn(ctx, "stored install timestamp is corrupt, resetting", "value", stored)
	}

	installedAt := r.now()
	var legacy models.UserRecord
	if ok, err := rec.Decode(storage.KeyUser, &legacy); err == nil && ok && legacy.InstalledAt != nil {
		installedAt = *legacy.InstalledAt
	}

	out := storage.Record{}
	if err := out.Encode(storage.KeyInstalledAt, installedAt.Format(time.RFC3339Nano)); err != nil {
		return time.Time{}, err
	}
	if err := r.store.Set(ctx, out); err != nil {
		return time.Time{}, fmt.Errorf("failed to persist install timestamp: %w", err)
	}
	return installedAt, nil
}

// ResolveOnLoad produces the authoritative entitlement flag for this popup
// session. The flag itself is device-local; the cached user record may live
// in either tier and wins over the flag in both directions. Repeated calls
// with unchanged inputs write nothing.
func (r *Resolver) ResolveOnLoad(ctx context.Context) (bool, error) {
	var entitled bool
	local, err := r.store.Local().Get(ctx, storage.KeyProFlag)
	if err != nil {
		return false, fmt.Errorf("failed to read entitlement flag: %w", err)
	}
	if _, err := local.Decode(storage.KeyProFlag, &entitled); err != nil {
		r.log.Warn(ctx, "entitlement flag is corrupt, treating as unpaid", "error", err)
		entitled = false
	}

	rec, err := r.store.GetMerged(ctx, storage.KeyUser, storage.KeyAPIKey)
	if err != nil {
		return false, err
	}

	r.syncUp(ctx, rec)

	var user models.UserRecord
	ok, err := rec.Decode(storage.KeyUser, &user)
	if err != nil {
		r.log.Warn(ctx, "cached user record is corrupt, ignoring", "error", err)
		return entitled, nil
	}
	if !ok {
		return entitled, nil
	}

	if user.Paid != entitled {
		entitled = user.Paid
		if err := r.setFlag(ctx, entitled); err != nil {
			return false, err
		}
	}
	return entitled, nil
}

// syncUp copies the user record and API credential into the propagating tier
// when they exist only locally, so a reinstall on another device finds them.
// Best effort: failures are logged and do not affect resolution.
func (r *Resolver) syncUp(ctx context.Context, merged storage.Record) {
	synced, err := r.store.Synced().Get(ctx, storage.KeyUser, storage.KeyAPIKey)
	if err != nil {
		return
	}

	out := storage.Record{}
	for _, key := range []string{storage.KeyUser, storage.KeyAPIKey} {
		if v, ok := merged[key]; ok {
			if _, exists := synced[key]; !exists {
				out[key] = v
			}
		}
	}
	if len(out) == 0 {
		return
	}
	if err := r.store.Synced().Set(ctx, out); err != nil {
		r.log.Warn(ctx, "failed to propagate payment state to sync tier", "error", err)
	}
}

// EnsureKey returns the cached API credential, provisioning one from the
// payment service if none exists yet.
func (r *Resolver) EnsureKey(ctx context.Context) (string, error) {
	rec, err := r.store.Get(ctx, storage.KeyAPIKey)
	if err != nil {
		return "", err
	}
	var key string
	if ok, err := rec.Decode(storage.KeyAPIKey, &key); err == nil && ok && key != "" {
		return key, nil
	}

	key, err = r.service.CreateKey(ctx, r.development)
	if err != nil {
		return "", fmt.Errorf("failed to provision api key: %w", err)
	}

	out := storage.Record{}
	if err := out.Encode(storage.KeyAPIKey, key); err != nil {
		return "", err
	}
	if err := r.store.Set(ctx, out); err != nil {
		return "", fmt.Errorf("failed to persist api key: %w", err)
	}
	return key, nil
}

// FetchRemote fetches the current user record from the payment service,
// fires transition listeners, and persists the record as the new cache. On
// failure the previous cached state is left untouched; unpaid is never
// assumed.
func (r *Resolver) FetchRemote(ctx context.Context) (*models.UserRecord, error) {
	apiKey, err := r.EnsureKey(ctx)
	if err != nil {
		return nil, err
	}

	user, _, err := r.service.FetchUser(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	installedAt, err := r.EnsureInstalled(ctx)
	if err != nil {
		return nil, err
	}
	// The install time is authoritative locally, never from the remote
	// payload.
	user.InstalledAt = &installedAt

	prev := r.cachedUser(ctx)
	if user.PaidAt != nil && (prev == nil || prev.PaidAt == nil) {
		fire(r.paidSnapshot(), *user)
	}
	if user.TrialStartedAt != nil && (prev == nil || prev.TrialStartedAt == nil) {
		fire(r.trialSnapshot(), *user)
	}

	out := storage.Record{}
	if err := out.Encode(storage.KeyUser, user); err != nil {
		return nil, err
	}
	if err := r.store.Set(ctx, out); err != nil {
		return nil, fmt.Errorf("failed to persist user record: %w", err)
	}
	if err := r.setFlag(ctx, user.Paid); err != nil {
		return nil, err
	}
	return user, nil
}

// PollUntilPaid repeatedly fetches the user record until paidAt appears, the
// attempt budget runs out, or ctx is cancelled. The checkout webhook can land
// late, so individual fetch errors are logged and the loop continues.
// Concurrent calls join the in-flight loop and share its result.
func (r *Resolver) PollUntilPaid(ctx context.Context) (*models.UserRecord, error) {
	v, err, _ := r.poll.Do("poll", func() (any, error) {
		return r.pollLoop(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.UserRecord), nil
}

func (r *Resolver) pollLoop(ctx context.Context) (*models.UserRecord, error) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < r.pollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-ticker.C:
			}
		}

		user, err := r.FetchRemote(ctx)
		if err != nil {
			r.log.Warn(ctx, "payment poll fetch failed", "attempt", attempt, "error", err)
			continue
		}
		if user.PaidAt != nil {
			return user, nil
		}
	}
	return nil, common.ErrPaymentNotConfirmed
}

func (r *Resolver) setFlag(ctx context.Context, entitled bool) error {
	rec := storage.Record{}
	if err := rec.Encode(storage.KeyProFlag, entitled); err != nil {
		return err
	}
	if err := r.store.Local().Set(ctx, rec); err != nil {
		return fmt.Errorf("failed to persist entitlement flag: %w", err)
	}
	return nil
}

func (r *Resolver) cachedUser(ctx context.Context) *models.UserRecord {
	rec, err := r.store.Get(ctx, storage.KeyUser)
	if err != nil {
		return nil
	}
	var user models.UserRecord
	ok, err := rec.Decode(storage.KeyUser, &user)
	if err != nil || !ok {
		return nil
	}
	return &user
}

func (r *Resolver) paidSnapshot() []Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Listener(nil), r.paidListeners...)
}

func (r *Resolver) trialSnapshot() []Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Listener(nil), r.trialListeners...)
}

func fire(listeners []Listener, user models.UserRecord) {
	for _, fn := range listeners {
		fn(user)
	}
}
