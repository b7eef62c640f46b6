// Package replica implements the Replica Adapter (spec §4.7): the local
// read (and lease-gated write) path over an embedded ordered key/value log.
// Grounded on the teacher's database package for the embedded-store
// lifecycle (badger.Open under a managed context, units-sized cache), but
// using the literal textual key scheme the specification mandates rather
// than the teacher's compact binary index encoding (see DESIGN.md).
package replica

import "fmt"

// Index key prefixes, exactly as specified (spec §4.7).
const (
	prefixCreatedAt = "created_at"
	prefixKind      = "kind"
	prefixPubkey    = "pubkey"
	prefixTagKey    = "tagKey"
	prefixTagValue  = "tagValue"
	prefixId        = "id"
	prefixReplace   = "replaceable"
)

// replaceableKey addresses the current event id for a NIP-01/NIP-33
// replaceable (kind, pubkey, d-tag) identity, letting AppendEvent find and
// supersede the previous event in that slot (spec §9 supplement).
func replaceableKey(kind int, pubkey, dTag string) []byte {
	return []byte(fmt.Sprintf("%s:%05d:%s:%s", prefixReplace, kind, pubkey, dTag))
}

// idKey is the primary key an event is stored under.
func idKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", prefixId, id))
}

func tail(createdAt int64, id string) string {
	return fmt.Sprintf("%010d:%s:%s", createdAt, prefixId, id)
}

// createdAtKey indexes an event by creation time alone.
func createdAtKey(createdAt int64, id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", prefixCreatedAt, tail(createdAt, id)))
}

// kindKey indexes an event by kind, then creation time.
func kindKey(kind int, createdAt int64, id string) []byte {
	return []byte(
		fmt.Sprintf(
			"%s:%05d:%s:%s", prefixKind, kind, prefixCreatedAt,
			tail(createdAt, id),
		),
	)
}

// pubkeyKey indexes an event by author, then creation time.
func pubkeyKey(pubkey string, createdAt int64, id string) []byte {
	return []byte(
		fmt.Sprintf(
			"%s:%s:%s:%s", prefixPubkey, pubkey, prefixCreatedAt,
			tail(createdAt, id),
		),
	)
}

// tagIndexKey indexes an event by one of its tag (name, value) pairs, then
// creation time.
func tagIndexKey(name, value string, createdAt int64, id string) []byte {
	return []byte(
		fmt.Sprintf(
			"%s:%s:%s:%s:%s:%s", prefixTagKey, name, prefixTagValue, value,
			prefixCreatedAt, tail(createdAt, id),
		),
	)
}

// kindPrefix is the scan prefix for every event of the given kind.
func kindPrefix(kind int) []byte {
	return []byte(fmt.Sprintf("%s:%05d:", prefixKind, kind))
}

// pubkeyPrefix is the scan prefix for every event by the given author.
func pubkeyPrefix(pubkey string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", prefixPubkey, pubkey))
}

// tagPrefix is the scan prefix for every event carrying tag (name, value).
func tagPrefix(name, value string) []byte {
	return []byte(
		fmt.Sprintf("%s:%s:%s:%s:", prefixTagKey, name, prefixTagValue, value),
	)
}
