package items

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/tibco87/clipsmart/internal/common"
	"github.com/tibco87/clipsmart/internal/popup/models"
)

// displayTimeLayout matches the timestamp format shown in the item list.
const displayTimeLayout = "02.01.2006 15:04"

// FormatTimestamp renders an instant the way the item list displays it.
func FormatTimestamp(t time.Time) string {
	return t.Format(displayTimeLayout)
}

// ExportRecord is the serializable projection of one item.
type ExportRecord struct {
	Text         string            `json:"text"`
	Timestamp    string            `json:"timestamp"`
	Tags         []string          `json:"tags"`
	Translations map[string]string `json:"translations"`
}

// Export projects the whole collection for download. Export is a paid
// feature; non-entitled callers get a rejection to turn into an upgrade
// prompt.
func (r *Repository) Export(entitled bool) ([]ExportRecord, error) {
	if !entitled {
		return nil, common.ErrEntitlementRequired
	}

	out := make([]ExportRecord, 0, len(r.items))
	for i := range r.items {
		out = append(out, exportRecord(&r.items[i]))
	}
	return out, nil
}

// ExportItem projects a single item, same gating as Export.
func (r *Repository) ExportItem(itemID string, entitled bool) (ExportRecord, error) {
	if !entitled {
		return ExportRecord{}, common.ErrEntitlementRequired
	}
	item := r.find(itemID)
	if item == nil {
		return ExportRecord{}, common.ErrorNotFound
	}
	return exportRecord(item), nil
}

func exportRecord(item *models.ClipboardItem) ExportRecord {
	translations := item.Translations
	if translations == nil {
		translations = map[string]string{}
	}
	return ExportRecord{
		Text:         item.Text,
		Timestamp:    FormatTimestamp(item.Timestamp),
		Tags:         item.Tags.Slice(),
		Translations: translations,
	}
}

// EncodeJSON writes the records as indented JSON.
func EncodeJSON(w io.Writer, recs []ExportRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(recs); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}

// EncodeCSV writes the records as CSV with one row per item. Tags are joined
// with ", "; translations render as "lang: text" pairs joined with "; ",
// ordered by language for a stable output.
func EncodeCSV(w io.Writer, recs []ExportRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Text", "Timestamp", "Tags", "Translations"}); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}
	for _, rec := range recs {
		row := []string{
			rec.Text,
			rec.Timestamp,
			strings.Join(rec.Tags, ", "),
			joinTranslations(rec.Translations),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write export row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func joinTranslations(translations map[string]string) string {
	langs := make([]string, 0, len(translations))
	for lang := range translations {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	parts := make([]string, 0, len(langs))
	for _, lang := range langs {
		parts = append(parts, lang+": "+translations[lang])
	}
	return strings.Join(parts, "; ")
}
