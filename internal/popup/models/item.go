// Package models defines the clipboard item, settings, entitlement and usage
// types shared by the popup services.
package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ItemType classifies a clipboard entry.
type ItemType string

const (
	TypeText        ItemType = "text"
	TypeURL         ItemType = "url"
	TypeEmail       ItemType = "email"
	TypeCode        ItemType = "code"
	TypeTranslation ItemType = "translation"
)

// ClipboardItem is a single captured clipboard entry.
type ClipboardItem struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Type      ItemType          `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Pinned    bool              `json:"pinned"`
	Tags      TagSet            `json:"tags"`
	CharCount int               `json:"charCount"`
	// Translations maps language code to translated text. Kept for export
	// only; it is not comprehensively persisted.
	Translations map[string]string `json:"translations,omitempty"`
}

// NewItem creates an item with a fresh id (creation-time millis plus a random
// suffix) and a recomputed character count.
func NewItem(text string, typ ItemType, now time.Time) ClipboardItem {
	return ClipboardItem{
		ID:        newItemID(now),
		Text:      text,
		Type:      typ,
		Timestamp: now,
		Tags:      TagSet{},
		CharCount: len(text),
	}
}

// NewPinnedTranslation creates the pinned item produced when a user pins a
// translation result.
func NewPinnedTranslation(text string, now time.Time) ClipboardItem {
	item := NewItem(text, TypeTranslation, now)
	item.Pinned = true
	return item
}

func newItemID(now time.Time) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + suffix
}

// Normalize repairs derived fields after deserialization: CharCount is always
// recomputed from Text (persisted values are never trusted) and a nil tag set
// becomes an empty one.
func (i *ClipboardItem) Normalize() {
	i.CharCount = len(i.Text)
	if i.Tags == nil {
		i.Tags = TagSet{}
	}
}

// MatchesQuery reports whether the item's text or any of its tags contains
// query as a case-insensitive substring. An empty query matches everything.
func (i *ClipboardItem) MatchesQuery(query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(i.Text), q) {
		return true
	}
	return i.Tags.MatchesSubstring(q)
}
