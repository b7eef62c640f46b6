package dispatcher

import (
	"time"

	"relaygate.dev/protocol/filter"
)

// Status is a SubscriptionJob's lifecycle state (spec §3 SubscriptionJob).
type Status string

const (
	StatusPending      Status = "pending"
	StatusAssigned     Status = "assigned"
	StatusAcknowledged Status = "acknowledged"
	StatusFailed       Status = "failed"
	StatusRejected     Status = "rejected"
	StatusClosed       Status = "closed"
)

// Requester identifies the session that created a job.
type Requester struct {
	PeerId   string
	RelayKey string
}

// Job is a unit of dispatcher work (spec §3 SubscriptionJob).
type Job struct {
	Id             string
	Filters        *filter.S
	Requester      Requester
	CreatedAt      time.Time
	CandidatePeers []string
	AssignedPeer   string
	Status         Status
}

// Decision is the result of Schedule.
type Decision struct {
	Status       Status
	AssignedPeer string
	Degraded     bool
	Reason       string
}
