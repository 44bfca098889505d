package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// datetimeRe matches ISO-8601 date-time strings as sent by the payment
// service, e.g. "2024-05-01T12:00:00Z" or the legacy zone-less form.
var datetimeRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T`)

// UserRecord is the payment service's view of this install. Known fields are
// typed; everything else the server sends is passed through in Extra, with
// any date-time-looking string parsed into an instant.
type UserRecord struct {
	Paid           bool
	PaidAt         *time.Time
	InstalledAt    *time.Time
	TrialStartedAt *time.Time
	Extra          map[string]any
}

// ParseInstant parses an ISO-8601 date-time. A legacy format lacking a time
// zone is interpreted as UTC.
func ParseInstant(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid instant %q", s)
}

func (u *UserRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("user record: %w", err)
	}

	out := UserRecord{Extra: map[string]any{}}
	for key, value := range raw {
		switch key {
		case "paid":
			if err := json.Unmarshal(value, &out.Paid); err != nil {
				return fmt.Errorf("user record field %q: %w", key, err)
			}
		case "paidAt":
			t, err := unmarshalInstant(value)
			if err != nil {
				return fmt.Errorf("user record field %q: %w", key, err)
			}
			out.PaidAt = t
		case "installedAt":
			t, err := unmarshalInstant(value)
			if err != nil {
				return fmt.Errorf("user record field %q: %w", key, err)
			}
			out.InstalledAt = t
		case "trialStartedAt":
			t, err := unmarshalInstant(value)
			if err != nil {
				return fmt.Errorf("user record field %q: %w", key, err)
			}
			out.TrialStartedAt = t
		default:
			var v any
			if err := json.Unmarshal(value, &v); err != nil {
				return fmt.Errorf("user record field %q: %w", key, err)
			}
			// Any extra string matching the date-time pattern is promoted
			// to an instant; unparseable ones stay strings.
			if s, ok := v.(string); ok && datetimeRe.MatchString(s) {
				if t, err := ParseInstant(s); err == nil {
					v = t
				}
			}
			out.Extra[key] = v
		}
	}

	*u = out
	return nil
}

func (u UserRecord) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(u.Extra)+4)
	for k, v := range u.Extra {
		if t, ok := v.(time.Time); ok {
			v = t.Format(time.RFC3339Nano)
		}
		m[k] = v
	}
	m["paid"] = u.Paid
	m["paidAt"] = formatInstant(u.PaidAt)
	m["installedAt"] = formatInstant(u.InstalledAt)
	m["trialStartedAt"] = formatInstant(u.TrialStartedAt)
	return json.Marshal(m)
}

func unmarshalInstant(data json.RawMessage) (*time.Time, error) {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := ParseInstant(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatInstant(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
