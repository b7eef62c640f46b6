// Package store is the capability interface the Replica Adapter implements
// over the embedded log-structured key/value database (spec §4.7). The
// database implementation itself is an external collaborator (spec §1
// Non-goals); this interface is the only thing the core depends on.
package store

import (
	"io"

	"relaygate.dev/protocol/filter"
	"relaygate.dev/protocol/nostrevent"
	"relaygate.dev/utils/context"
)

// Stats is the result of GetReplicaStats: spec §4.7.
type Stats struct {
	Length     uint64
	Downloaded uint64
	Lag        uint64
}

// DecryptHint accompanies an event from a two-phase encrypted replica read
// (spec §9 design notes): the algorithm and salt needed for the external
// client/worker to decrypt the envelope. The core never decrypts content.
type DecryptHint struct {
	Algorithm string `json:"algorithm"`
	Salt      string `json:"salt,omitempty"`
}

// Envelope is one opaque query result. Encrypted replicas populate Hint;
// plaintext replicas leave it nil.
type Envelope struct {
	Event *nostrevent.E
	Hint  *DecryptHint
}

// I is the capability interface a Replica Adapter backend implements.
type I interface {
	io.Closer
	// Init opens/creates the database at path.
	Init(path string) error
	// Path returns the directory the database is stored under.
	Path() string
	// Query runs every filter in fs against the replica and returns matching
	// events merged by id, newest-first, each filter's own Limit applied
	// before the merge (spec §4.7).
	Query(c context.T, fs []*filter.F) ([]*Envelope, error)
	// AppendEvent writes ev and its derived index keys atomically. It returns
	// the implementation's read-only error (replica.ErrReadOnly) if no writer
	// lease is held for the relay.
	AppendEvent(c context.T, relayKey string, ev *nostrevent.E) error
	// Stats reports the replica's length/downloaded/lag counters.
	Stats() (Stats, error)
}
