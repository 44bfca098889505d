// Package items manages the clipboard item collection: loading, filtering,
// ranking, tagging, pinning and the free-tier visibility ceiling.
package items

import (
	"context"
	"fmt"
	"time"

	"github.com/tibco87/clipsmart/internal/common"
	"github.com/tibco87/clipsmart/internal/logging"
	"github.com/tibco87/clipsmart/internal/popup/models"
	"github.com/tibco87/clipsmart/internal/popup/storage"
)

// Repository holds the in-memory working copy of the collection. Every
// mutation persists the full collection before returning, so the store never
// lags the working copy by more than one operation.
//
// Items, the tag index and the sort preference are device-local state.
type Repository struct {
	store     *storage.Store
	log       logging.Logger
	now       func() time.Time
	freeLimit int

	items     []models.ClipboardItem
	tags      models.TagSet
	sortOrder SortOrder
}

func NewRepository(store *storage.Store, log logging.Logger, freeLimit int, now func() time.Time) *Repository {
	if now == nil {
		now = time.Now
	}
	return &Repository{
		store:     store,
		log:       log,
		now:       now,
		freeLimit: freeLimit,
		tags:      models.TagSet{},
		sortOrder: SortNewest,
	}
}

// Load reads the collection, tag index and sort preference from the store.
// Items are normalized on the way in: derived fields recomputed, historical
// tag shapes converted to the canonical set.
func (r *Repository) Load(ctx context.Context) error {
	rec, err := r.store.Local().Get(ctx, storage.KeyItems, storage.KeyTags, storage.KeySortOrder)
	if err != nil {
		return fmt.Errorf("failed to load items: %w", err)
	}

	r.items = nil
	if _, err := rec.Decode(storage.KeyItems, &r.items); err != nil {
		return err
	}
	for i := range r.items {
		r.items[i].Normalize()
	}

	r.tags = models.TagSet{}
	if _, err := rec.Decode(storage.KeyTags, &r.tags); err != nil {
		return err
	}

	var order string
	if ok, err := rec.Decode(storage.KeySortOrder, &order); err == nil && ok {
		if parsed, valid := ParseSortOrder(order); valid {
			r.sortOrder = parsed
		}
	}

	r.log.Info(ctx, "items loaded", "count", len(r.items), "tags", r.tags.Len())
	return nil
}

// Save persists the collection, tag index and sort preference in one write.
func (r *Repository) Save(ctx context.Context) error {
	rec := storage.Record{}
	if err := rec.Encode(storage.KeyItems, r.items); err != nil {
		return err
	}
	if err := rec.Encode(storage.KeyTags, r.tags); err != nil {
		return err
	}
	if err := rec.Encode(storage.KeySortOrder, string(r.sortOrder)); err != nil {
		return err
	}
	if err := r.store.Local().Set(ctx, rec); err != nil {
		return fmt.Errorf("failed to save items: %w", err)
	}
	return nil
}

// Items returns a copy of the full collection.
func (r *Repository) Items() []models.ClipboardItem {
	return append([]models.ClipboardItem(nil), r.items...)
}

func (r *Repository) Count() int { return len(r.items) }

// Tags returns the global tag index as a sorted list.
func (r *Repository) Tags() []string { return r.tags.Slice() }

func (r *Repository) SortOrder() SortOrder { return r.sortOrder }

// SetSortOrder stores the preference and persists it.
func (r *Repository) SetSortOrder(ctx context.Context, order SortOrder) error {
	if _, valid := ParseSortOrder(string(order)); !valid {
		return fmt.Errorf("unknown sort order %q", order)
	}
	r.sortOrder = order
	return r.Save(ctx)
}

// FilterRecent returns unpinned, non-translation items matching query.
func (r *Repository) FilterRecent(query string) []models.ClipboardItem {
	var out []models.ClipboardItem
	for i := range r.items {
		item := &r.items[i]
		if item.Pinned || item.Type == models.TypeTranslation {
			continue
		}
		if item.MatchesQuery(query) {
			out = append(out, *item)
		}
	}
	return out
}

// FilterPinned returns pinned items matching query.
func (r *Repository) FilterPinned(query string) []models.ClipboardItem {
	var out []models.ClipboardItem
	for i := range r.items {
		item := &r.items[i]
		if item.Pinned && item.MatchesQuery(query) {
			out = append(out, *item)
		}
	}
	return out
}

// ApplyFreeLimit truncates the list to the free ceiling for non-entitled
// users and reports how many items fell beyond it. Entitled users see the
// full set.
func (r *Repository) ApplyFreeLimit(list []models.ClipboardItem, entitled bool) ([]models.ClipboardItem, int) {
	if entitled || len(list) <= r.freeLimit {
		return list, 0
	}
	return list[:r.freeLimit], len(list) - r.freeLimit
}

// Add appends a captured item and persists.
func (r *Repository) Add(ctx context.Context, item models.ClipboardItem) error {
	item.Normalize()
	r.items = append(r.items, item)
	return r.Save(ctx)
}

// PinTranslation turns a translation result into a pinned item.
func (r *Repository) PinTranslation(ctx context.Context, translation string) (models.ClipboardItem, error) {
	item := models.NewPinnedTranslation(translation, r.now())
	if err := r.Add(ctx, item); err != nil {
		return models.ClipboardItem{}, err
	}
	return item, nil
}

// AddTag attaches tag to the item and records it in the global index.
// Tagging is a paid feature.
func (r *Repository) AddTag(ctx context.Context, itemID, tag string, entitled bool) error {
	if !entitled {
		return common.ErrEntitlementRequired
	}
	item := r.find(itemID)
	if item == nil {
		return common.ErrorNotFound
	}
	item.Tags.Add(tag)
	r.tags.Add(tag)
	return r.Save(ctx)
}

// RemoveTag detaches tag from the item. The tag leaves the global index only
// when no remaining item references it.
func (r *Repository) RemoveTag(ctx context.Context, itemID, tag string) error {
	item := r.find(itemID)
	if item == nil {
		return common.ErrorNotFound
	}
	item.Tags.Remove(tag)

	stillUsed := false
	for i := range r.items {
		if r.items[i].Tags.Has(tag) {
			stillUsed = true
			break
		}
	}
	if !stillUsed {
		r.tags.Remove(tag)
	}
	return r.Save(ctx)
}

// TogglePin flips the item's pinned state and returns the new state.
func (r *Repository) TogglePin(ctx context.Context, itemID string) (bool, error) {
	item := r.find(itemID)
	if item == nil {
		return false, common.ErrorNotFound
	}
	item.Pinned = !item.Pinned
	if err := r.Save(ctx); err != nil {
		return false, err
	}
	return item.Pinned, nil
}

// Delete removes the item from the collection.
func (r *Repository) Delete(ctx context.Context, itemID string) error {
	kept := r.items[:0]
	found := false
	for _, item := range r.items {
		if item.ID == itemID {
			found = true
			continue
		}
		kept = append(kept, item)
	}
	if !found {
		return common.ErrorNotFound
	}
	r.items = kept
	return r.Save(ctx)
}

// ClearAll empties the collection. The tag index empties with it.
func (r *Repository) ClearAll(ctx context.Context) error {
	r.items = nil
	r.tags = models.TagSet{}
	return r.Save(ctx)
}

// CleanupByAge removes unpinned items older than the settings' auto-delete
// horizon and returns how many were removed. Run once at load; a horizon of
// "never" removes nothing.
func (r *Repository) CleanupByAge(ctx context.Context, settings models.Settings) (int, error) {
	horizon, enabled := settings.AutoDeleteHorizon()
	if !enabled {
		return 0, nil
	}

	cutoff := r.now().Add(-horizon)
	kept := r.items[:0]
	removed := 0
	for _, item := range r.items {
		if !item.Pinned && item.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	if removed == 0 {
		return 0, nil
	}
	r.items = kept

	if err := r.Save(ctx); err != nil {
		return 0, err
	}
	r.log.Info(ctx, "expired items removed", "count", removed)
	return removed, nil
}

func (r *Repository) find(itemID string) *models.ClipboardItem {
	for i := range r.items {
		if r.items[i].ID == itemID {
			return &r.items[i]
		}
	}
	return nil
}
