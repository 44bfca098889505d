package models

import (
	"fmt"
	"time"
)

// UsageCounter buckets translation usage by calendar month.
type UsageCounter struct {
	// Month is the period key, e.g. "2024-5". Note the month is not
	// zero-padded; the key only ever needs equality comparison.
	Month string `json:"month"`
	Count int    `json:"count"`
}

// PeriodKey returns the counter bucket key for t's calendar month.
func PeriodKey(t time.Time) string {
	return fmt.Sprintf("%d-%d", t.Year(), int(t.Month()))
}
