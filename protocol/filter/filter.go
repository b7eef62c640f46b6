// Package filter is a codec and matcher for Nostr subscription filters, the
// predicate clients send in a REQ envelope. The matching rule is the one
// fixed by spec §3: every non-empty set is contains-match, time bounds must
// hold, and every specified tag selector must match at least one of the
// event's tags.
package filter

import (
	"encoding/json"

	"relaygate.dev/protocol/nostrevent"
)

// F is a single Nostr filter.
type F struct {
	Ids     []string            `json:"ids,omitempty"`
	Authors []string            `json:"authors,omitempty"`
	Kinds   []int               `json:"kinds,omitempty"`
	Tags    map[string][]string `json:"-"`
	Since   *int64              `json:"since,omitempty"`
	Until   *int64              `json:"until,omitempty"`
	Limit   *int                `json:"limit,omitempty"`
	Search  string              `json:"search,omitempty"`
}

// UnmarshalJSON accepts both the Ids/Authors/Kinds/Since/Until/Limit/Search
// fields and any "#<name>" tag-selector field, collecting the latter into
// Tags.
func (f *F) UnmarshalJSON(data []byte) error {
	type alias F
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*f = F(a)
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		if len(k) < 2 || k[0] != '#' {
			continue
		}
		var vals []string
		if err := json.Unmarshal(v, &vals); err != nil {
			continue
		}
		if f.Tags == nil {
			f.Tags = make(map[string][]string)
		}
		f.Tags[k[1:]] = vals
	}
	return nil
}

// MarshalJSON emits the Ids/Authors/Kinds/.../Search fields plus one
// "#<name>" field per tag selector.
func (f *F) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{})
	if len(f.Ids) > 0 {
		out["ids"] = f.Ids
	}
	if len(f.Authors) > 0 {
		out["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		out["kinds"] = f.Kinds
	}
	if f.Since != nil {
		out["since"] = *f.Since
	}
	if f.Until != nil {
		out["until"] = *f.Until
	}
	if f.Limit != nil {
		out["limit"] = *f.Limit
	}
	if f.Search != "" {
		out["search"] = f.Search
	}
	for name, vals := range f.Tags {
		out["#"+name] = vals
	}
	return json.Marshal(out)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsInt(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Matches reports whether ev satisfies f, per spec §3: every non-empty set is
// a contains-match, time bounds hold, and every tag selector matches at least
// one tag value on the event.
func (f *F) Matches(ev *nostrevent.E) bool {
	if ev == nil {
		return false
	}
	if len(f.Ids) > 0 && !contains(f.Ids, ev.Id) {
		return false
	}
	if len(f.Authors) > 0 && !contains(f.Authors, ev.Pubkey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, ev.Kind) {
		return false
	}
	if f.Since != nil && ev.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && ev.CreatedAt > *f.Until {
		return false
	}
	for name, values := range f.Tags {
		if len(values) == 0 {
			continue
		}
		evValues := ev.Tags.Values(name)
		matched := false
		for _, v := range values {
			if contains(evValues, v) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// S is a set of filters as sent in a REQ envelope: ["REQ", subId, filter1,
// filter2, ...]. A subscription's overall match is the OR of its filters.
type S struct {
	F []*F
}

// Matches reports whether ev matches any filter in the set.
func (s *S) Matches(ev *nostrevent.E) bool {
	for _, f := range s.F {
		if f.Matches(ev) {
			return true
		}
	}
	return false
}
