package nostr

import "encoding/json"

// Filter selects events from a relay subscription. Zero-valued fields are
// unconstrained.
type Filter struct {
	IDs     []string
	Kinds   []int
	Authors []string
	P       []string // "#p" recipient tag values
	T       []string // "#t" type tag values
	Since   int64
	Limit   int
}

// MarshalJSON emits the relay wire form, where tag constraints are keyed as
// "#p" and "#t".
func (f Filter) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{})
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.P) > 0 {
		m["#p"] = f.P
	}
	if len(f.T) > 0 {
		m["#t"] = f.T
	}
	if f.Since > 0 {
		m["since"] = f.Since
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	return json.Marshal(m)
}

// Matches reports whether the event satisfies every constraint of the filter.
func (f Filter) Matches(e *Event) bool {
	if len(f.IDs) > 0 && !containsString(f.IDs, e.ID) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, e.Kind) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, e.PubKey) {
		return false
	}
	if len(f.P) > 0 && !intersects(f.P, e.Tags.Values("p")) {
		return false
	}
	if len(f.T) > 0 && !intersects(f.T, e.Tags.Values("t")) {
		return false
	}
	if f.Since > 0 && e.CreatedAt < f.Since {
		return false
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsInt(haystack []int, needle int) bool {
	for _, n := range haystack {
		if n == needle {
			return true
		}
	}
	return false
}

func intersects(want, have []string) bool {
	for _, w := range want {
		if containsString(have, w) {
			return true
		}
	}
	return false
}
