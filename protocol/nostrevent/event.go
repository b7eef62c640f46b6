// Package nostrevent defines the wire shape of a Nostr event as the gateway
// sees it: a thin, JSON-preserving envelope. Cryptographic signature
// verification is explicitly delegated to the worker relay that owns the
// event (see spec Non-goals); the gateway only needs the fields required to
// route, index and replicate events.
package nostrevent

import (
	"encoding/json"
)

// Tag is one Nostr tag: a non-empty array of strings, tag[0] being its name.
type Tag []string

// Key returns the tag name, or "" if the tag is empty.
func (t Tag) Key() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the tag's first value (tag[1]), or "" if absent.
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

// Tags is an ordered collection of Tag.
type Tags []Tag

// Values returns every value (tag[1]) among tags named name.
func (ts Tags) Values(name string) (vals []string) {
	for _, t := range ts {
		if t.Key() == name && len(t) >= 2 {
			vals = append(vals, t[1])
		}
	}
	return
}

// E is a Nostr event. Unknown/extra fields are preserved by keeping the
// original raw JSON alongside the parsed fields (see Raw), so the replica
// never lossily round-trips an event it doesn't fully understand.
type E struct {
	Id        string          `json:"id"`
	Pubkey    string          `json:"pubkey"`
	CreatedAt int64           `json:"created_at"`
	Kind      int             `json:"kind"`
	Tags      Tags            `json:"tags"`
	Content   string          `json:"content"`
	Sig       string          `json:"sig"`
	Raw       json.RawMessage `json:"-"`
}

// Parse decodes a JSON event body, preserving the original bytes in Raw.
func Parse(body []byte) (ev *E, err error) {
	ev = &E{}
	if err = json.Unmarshal(body, ev); err != nil {
		return nil, err
	}
	ev.Raw = append(json.RawMessage{}, body...)
	return ev, nil
}

// Marshal returns the original bytes this event was parsed from, if any,
// otherwise a fresh JSON encoding of the parsed fields.
func (e *E) Marshal() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	return json.Marshal(e)
}

// IsReplaceable reports whether kind is a NIP-01 replaceable kind: 0, 3, or
// 10000-19999.
func (e *E) IsReplaceable() bool {
	return e.Kind == 0 || e.Kind == 3 || (e.Kind >= 10000 && e.Kind < 20000)
}

// IsParameterizedReplaceable reports whether kind is in the NIP-33
// parameterized-replaceable band (30000-39999), identified together with the
// "d" tag value.
func (e *E) IsParameterizedReplaceable() bool {
	return e.Kind >= 30000 && e.Kind < 40000
}

// DTag returns the value of this event's "d" tag, used to identify a specific
// parameterized-replaceable event among those of the same kind/pubkey.
func (e *E) DTag() string {
	vals := e.Tags.Values("d")
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

const DeletionKind = 5
