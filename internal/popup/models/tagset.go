package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// TagSet is the canonical in-memory representation of an item's tags: a
// de-duplicated, order-irrelevant set of labels.
//
// Historical storage snapshots persisted tags in three different shapes: a
// single string, a list of strings, or an object keyed by tag. All three
// deserialize into a TagSet here, at the storage boundary, so no other code
// ever branches on representation.
type TagSet map[string]struct{}

func NewTagSet(tags ...string) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		s.Add(t)
	}
	return s
}

func (s TagSet) Add(tag string)      { s[tag] = struct{}{} }
func (s TagSet) Remove(tag string)   { delete(s, tag) }
func (s TagSet) Has(tag string) bool { _, ok := s[tag]; return ok }
func (s TagSet) Len() int            { return len(s) }

// Slice returns the tags as a sorted list. Sorting keeps the persisted form
// and test expectations stable.
func (s TagSet) Slice() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// MatchesSubstring reports whether any tag contains q as a case-insensitive
// substring. q must already be lower-cased by the caller.
func (s TagSet) MatchesSubstring(q string) bool {
	for t := range s {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

func (s TagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *TagSet) UnmarshalJSON(data []byte) error {
	// null and the empty-object form a JS Set serializes to both mean "no tags".
	out := TagSet{}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single != "" {
			out.Add(single)
		}
		*s = out
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		for _, t := range list {
			out.Add(t)
		}
		*s = out
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err == nil {
		for t := range obj {
			out.Add(t)
		}
		*s = out
		return nil
	}

	if string(data) == "null" {
		*s = out
		return nil
	}

	return fmt.Errorf("tags: unsupported representation %s", data)
}
