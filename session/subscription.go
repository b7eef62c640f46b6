package session

import "relaygate.dev/protocol/filter"

// Subscription tracks one REQ's live filters and read cursor (spec §3
// Session.subscriptions).
type Subscription struct {
	Filters        *filter.S
	LastReturnedAt int64
}

// Advance moves the cursor forward. It is a no-op if createdAt does not
// strictly exceed the current cursor, preserving the non-decreasing
// invariant (spec §3 Session invariants).
func (s *Subscription) Advance(createdAt int64) {
	if createdAt > s.LastReturnedAt {
		s.LastReturnedAt = createdAt
	}
}
