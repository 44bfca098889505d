package items

import (
	"sort"
	"strings"

	"github.com/tibco87/clipsmart/internal/popup/models"
)

// SortOrder names a ranking of the visible item list.
type SortOrder string

const (
	SortNewest   SortOrder = "newest"
	SortOldest   SortOrder = "oldest"
	SortAZ       SortOrder = "az"
	SortZA       SortOrder = "za"
	SortLongest  SortOrder = "longest"
	SortShortest SortOrder = "shortest"
)

// ParseSortOrder validates a persisted or user-supplied order name.
func ParseSortOrder(s string) (SortOrder, bool) {
	switch SortOrder(s) {
	case SortNewest, SortOldest, SortAZ, SortZA, SortLongest, SortShortest:
		return SortOrder(s), true
	}
	return "", false
}

// Sort ranks list in place. Alphabetical orders compare case-insensitively,
// with the raw text as tiebreaker so the result is deterministic.
func Sort(list []models.ClipboardItem, order SortOrder) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := &list[i], &list[j]
		switch order {
		case SortOldest:
			return a.Timestamp.Before(b.Timestamp)
		case SortAZ:
			return lessAlpha(a.Text, b.Text)
		case SortZA:
			return lessAlpha(b.Text, a.Text)
		case SortLongest:
			return a.CharCount > b.CharCount
		case SortShortest:
			return a.CharCount < b.CharCount
		default: // newest
			return b.Timestamp.Before(a.Timestamp)
		}
	})
}

func lessAlpha(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}
