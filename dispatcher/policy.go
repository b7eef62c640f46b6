package dispatcher

import "time"

// Policy holds the scoring weights and thresholds the Relay Dispatcher uses
// (spec §4.5). It is hot-swappable via ApplyPolicyUpdate.
type Policy struct {
	MaxConcurrentJobsPerPeer int
	InFlightWeight           float64
	LatencyWeight            float64
	FailureWeight            float64
	LagPenalty               float64
	ReassignOnLagBlocks      uint64
	CircuitBreakerThreshold  int
	CircuitBreakerDuration   time.Duration
}

// DefaultPolicy returns reasonable defaults, grounded on the relative
// weighting suggested by the spec's scoring formula.
func DefaultPolicy() Policy {
	return Policy{
		MaxConcurrentJobsPerPeer: 32,
		InFlightWeight:           1.0,
		LatencyWeight:            0.05,
		FailureWeight:            10.0,
		LagPenalty:               50.0,
		ReassignOnLagBlocks:      100,
		CircuitBreakerThreshold:  5,
		CircuitBreakerDuration:   30 * time.Second,
	}
}
