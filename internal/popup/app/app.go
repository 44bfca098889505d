// Package app wires the popup session together: one App per opened popup,
// holding the resolved entitlement, the loaded item collection and the user
// settings, and exposing the operations the UI invokes.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tibco87/clipsmart/internal/common"
	"github.com/tibco87/clipsmart/internal/logging"
	"github.com/tibco87/clipsmart/internal/popup/config"
	"github.com/tibco87/clipsmart/internal/popup/entitlement"
	"github.com/tibco87/clipsmart/internal/popup/extpay"
	"github.com/tibco87/clipsmart/internal/popup/items"
	"github.com/tibco87/clipsmart/internal/popup/models"
	"github.com/tibco87/clipsmart/internal/popup/quota"
	"github.com/tibco87/clipsmart/internal/popup/storage"
)

// PageOpener opens a URL in a new tab or window. The host runtime provides
// the implementation.
type PageOpener interface {
	OpenPage(ctx context.Context, url string) error
}

// Messenger relays signals to the background context, e.g. badge updates.
type Messenger interface {
	Send(ctx context.Context, action string, payload any) error
}

// Translator translates text to a target language. The background service
// provides the implementation.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// ExportFormat selects the export encoding.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// View is a rendered slice of the collection plus the count of items hidden
// behind the free ceiling, for the "N more items available" affordance.
type View struct {
	Items    []models.ClipboardItem
	Overflow int
}

type App struct {
	cfg        *config.Config
	log        logging.Logger
	store      *storage.Store
	resolver   *entitlement.Resolver
	quota      *quota.Tracker
	repo       *items.Repository
	payments   *extpay.Client
	opener     PageOpener
	messenger  Messenger
	translator Translator

	mu       sync.RWMutex
	entitled bool
	settings models.Settings
}

type Deps struct {
	Config     *config.Config
	Log        logging.Logger
	Store      *storage.Store
	Resolver   *entitlement.Resolver
	Quota      *quota.Tracker
	Repo       *items.Repository
	Payments   *extpay.Client
	Opener     PageOpener
	Messenger  Messenger
	Translator Translator
}

func NewApp(d Deps) *App {
	return &App{
		cfg:        d.Config,
		log:        d.Log,
		store:      d.Store,
		resolver:   d.Resolver,
		quota:      d.Quota,
		repo:       d.Repo,
		payments:   d.Payments,
		opener:     d.Opener,
		messenger:  d.Messenger,
		translator: d.Translator,
		settings:   models.DefaultSettings(),
	}
}

// Init runs the load sequence of a popup session: establish the install
// time, load items and settings, resolve entitlement from the caches, then
// refresh from the payment service best-effort and sweep expired items.
func (a *App) Init(ctx context.Context) error {
	if _, err := a.resolver.EnsureInstalled(ctx); err != nil {
		return err
	}
	if err := a.repo.Load(ctx); err != nil {
		return err
	}
	if err := a.loadSettings(ctx); err != nil {
		return err
	}

	entitled, err := a.resolver.ResolveOnLoad(ctx)
	if err != nil {
		return err
	}
	a.setEntitled(entitled)

	// The remote refresh is best effort: a popup opened offline keeps the
	// cached entitlement.
	if user, err := a.resolver.FetchRemote(ctx); err != nil {
		a.log.Warn(ctx, "entitlement refresh failed, using cached state", "error", err)
	} else {
		a.setEntitled(user.Paid)
	}

	if _, err := a.repo.CleanupByAge(ctx, a.Settings()); err != nil {
		return err
	}
	a.updateBadge(ctx)
	return nil
}

// Entitled reports the current resolved entitlement.
func (a *App) Entitled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.entitled
}

func (a *App) setEntitled(v bool) {
	a.mu.Lock()
	a.entitled = v
	a.mu.Unlock()
}

// Settings returns the current user preferences.
func (a *App) Settings() models.Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings
}

// UpdateSettings persists new preferences.
func (a *App) UpdateSettings(ctx context.Context, s models.Settings) error {
	rec := storage.Record{}
	if err := rec.Encode(storage.KeySettings, s); err != nil {
		return err
	}
	if err := a.store.Local().Set(ctx, rec); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	a.mu.Lock()
	a.settings = s
	a.mu.Unlock()
	return nil
}

func (a *App) loadSettings(ctx context.Context) error {
	rec, err := a.store.Local().Get(ctx, storage.KeySettings)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	s := models.DefaultSettings()
	if _, err := rec.Decode(storage.KeySettings, &s); err != nil {
		a.log.Warn(ctx, "stored settings are corrupt, using defaults", "error", err)
		s = models.DefaultSettings()
	}
	a.mu.Lock()
	a.settings = s
	a.mu.Unlock()
	return nil
}

// RecentView returns the recent tab's items: filtered, ranked by the stored
// sort preference and truncated to the free ceiling.
func (a *App) RecentView(query string) View {
	list := a.repo.FilterRecent(query)
	items.Sort(list, a.repo.SortOrder())
	visible, overflow := a.repo.ApplyFreeLimit(list, a.Entitled())
	return View{Items: visible, Overflow: overflow}
}

// PinnedView returns the pinned tab's items. Pinned items are not subject to
// the free ceiling.
func (a *App) PinnedView(query string) View {
	list := a.repo.FilterPinned(query)
	items.Sort(list, a.repo.SortOrder())
	return View{Items: list}
}

// SetSortOrder stores the ranking preference.
func (a *App) SetSortOrder(ctx context.Context, order items.SortOrder) error {
	return a.repo.SetSortOrder(ctx, order)
}

// Translate translates an item's text, recording quota usage for free users.
// A quota rejection surfaces as ErrQuotaExceeded for the UI to turn into an
// upgrade prompt.
func (a *App) Translate(ctx context.Context, itemID, targetLang string) (string, error) {
	if a.translator == nil {
		return "", errors.New("translation backend is not wired")
	}

	entitled := a.Entitled()
	ok, err := a.quota.CheckLimit(ctx, entitled)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", common.ErrQuotaExceeded
	}

	var text string
	found := false
	for _, item := range a.repo.Items() {
		if item.ID == itemID {
			text = item.Text
			found = true
			break
		}
	}
	if !found {
		return "", common.ErrorNotFound
	}

	translation, err := a.translator.Translate(ctx, text, targetLang)
	if err != nil {
		return "", fmt.Errorf("translation failed: %w", err)
	}

	if err := a.quota.Increment(ctx, entitled); err != nil {
		return "", err
	}
	return translation, nil
}

// TranslationsUsed reports this month's consumed quota.
func (a *App) TranslationsUsed(ctx context.Context) (int, error) {
	return a.quota.Used(ctx)
}

// PinTranslation keeps a translation result as a pinned item.
func (a *App) PinTranslation(ctx context.Context, translation string) (models.ClipboardItem, error) {
	item, err := a.repo.PinTranslation(ctx, translation)
	if err != nil {
		return models.ClipboardItem{}, err
	}
	a.updateBadge(ctx)
	return item, nil
}

func (a *App) AddTag(ctx context.Context, itemID, tag string) error {
	return a.repo.AddTag(ctx, itemID, tag, a.Entitled())
}

func (a *App) RemoveTag(ctx context.Context, itemID, tag string) error {
	return a.repo.RemoveTag(ctx, itemID, tag)
}

func (a *App) TogglePin(ctx context.Context, itemID string) (bool, error) {
	return a.repo.TogglePin(ctx, itemID)
}

func (a *App) Delete(ctx context.Context, itemID string) error {
	if err := a.repo.Delete(ctx, itemID); err != nil {
		return err
	}
	a.updateBadge(ctx)
	return nil
}

func (a *App) ClearAll(ctx context.Context) error {
	if err := a.repo.ClearAll(ctx); err != nil {
		return err
	}
	a.updateBadge(ctx)
	return nil
}

// Export writes the collection to w in the requested format. Gated behind
// entitlement.
func (a *App) Export(ctx context.Context, w io.Writer, format ExportFormat) error {
	recs, err := a.repo.Export(a.Entitled())
	if err != nil {
		return err
	}
	switch format {
	case ExportCSV:
		return items.EncodeCSV(w, recs)
	case ExportJSON:
		return items.EncodeJSON(w, recs)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// Plans returns the published plans for the upgrade dialog.
func (a *App) Plans(ctx context.Context) ([]byte, error) {
	return a.payments.Plans(ctx)
}

// Upgrade opens the checkout page and polls for the payment to land in the
// background. The poll outcome updates the session's entitlement.
func (a *App) Upgrade(ctx context.Context) error {
	key, err := a.resolver.EnsureKey(ctx)
	if err != nil {
		return err
	}
	if err := a.opener.OpenPage(ctx, a.payments.PaymentPageURL(key, "")); err != nil {
		return fmt.Errorf("failed to open payment page: %w", err)
	}

	go func() {
		user, err := a.resolver.PollUntilPaid(ctx)
		if err != nil {
			a.log.Warn(ctx, "payment was not confirmed", "error", err)
			return
		}
		a.setEntitled(user.Paid)
		a.log.Info(ctx, "payment confirmed")
	}()
	return nil
}

// StartTrial opens the free-trial page.
func (a *App) StartTrial(ctx context.Context, period string) error {
	key, err := a.resolver.EnsureKey(ctx)
	if err != nil {
		return err
	}
	return a.opener.OpenPage(ctx, a.payments.TrialPageURL(key, period))
}

// ManageSubscription opens the login/reactivate page where an existing payer
// reattaches their subscription.
func (a *App) ManageSubscription(ctx context.Context) error {
	key, err := a.resolver.EnsureKey(ctx)
	if err != nil {
		return err
	}
	return a.opener.OpenPage(ctx, a.payments.LoginPageURL(key))
}

// StartEntitlementWatcher re-verifies entitlement at interval until ctx is
// cancelled. It compares against the last-known state before acting, so an
// unchanged status produces no writes and no notifications.
func (a *App) StartEntitlementWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			user, err := a.resolver.FetchRemote(ctx)
			if err != nil {
				a.log.Warn(ctx, "entitlement recheck failed", "error", err)
				continue
			}
			if user.Paid != a.Entitled() {
				a.log.Info(ctx, "payment status changed", "paid", user.Paid)
				a.setEntitled(user.Paid)
			}
		case <-ctx.Done():
			return
		}
	}
}

// updateBadge tells the background context how many items exist. Best
// effort; the popup works without a badge.
func (a *App) updateBadge(ctx context.Context) {
	if a.messenger == nil {
		return
	}
	if err := a.messenger.Send(ctx, "updateBadge", a.repo.Count()); err != nil {
		a.log.Warn(ctx, "badge update failed", "error", err)
	}
}
