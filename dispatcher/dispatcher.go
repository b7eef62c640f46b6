// Package dispatcher implements the Relay Dispatcher (spec §4.5):
// health-weighted scheduling of subscription jobs across candidate peers,
// with a circuit breaker and hot-swappable scoring policy. Grounded on the
// teacher's atomic-counter-heavy concurrency style and the xsync concurrent
// map already wired for the peer pool.
package dispatcher

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"relaygate.dev/interfaces/peer"
	"relaygate.dev/utils/atomic"
	"relaygate.dev/utils/log"
)

type peerState struct {
	mu               sync.Mutex
	telemetry        peer.Metrics
	inFlight         atomic.Int64
	failureRate      float64
	failureStreak    int
	replicaLag       uint64
	reportedAt       time.Time
	circuitOpenUntil time.Time
}

func (s *peerState) circuitOpen(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Before(s.circuitOpenUntil)
}

// Dispatcher is the Relay Dispatcher.
type Dispatcher struct {
	policyMu sync.RWMutex
	policy   Policy

	peers *xsync.MapOf[string, *peerState]
	jobs  *xsync.MapOf[string, *Job]

	shuttingDown atomic.Bool
}

// New builds a Dispatcher with the given initial policy.
func New(policy Policy) *Dispatcher {
	return &Dispatcher{
		policy: policy,
		peers:  xsync.NewMapOf[string, *peerState](),
		jobs:   xsync.NewMapOf[string, *Job](),
	}
}

func (d *Dispatcher) currentPolicy() Policy {
	d.policyMu.RLock()
	defer d.policyMu.RUnlock()
	return d.policy
}

func (d *Dispatcher) stateFor(peerID string) *peerState {
	s, _ := d.peers.LoadOrStore(peerID, &peerState{})
	return s
}

func (d *Dispatcher) score(peerID string, policy Policy) (score float64, degraded bool) {
	s := d.stateFor(peerID)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	degraded = now.Before(s.circuitOpenUntil)
	score = policy.InFlightWeight*float64(s.inFlight.Load()) +
		policy.LatencyWeight*s.telemetry.AvgLatencyMs +
		policy.FailureWeight*s.failureRate
	if s.replicaLag > policy.ReassignOnLagBlocks {
		score += policy.LagPenalty
	}
	return
}

// Schedule assigns job to the best-scoring viable candidate peer (spec §4.5
// schedule). A candidate is viable only if its circuit is closed and its
// in-flight count is below policy.MaxConcurrentJobsPerPeer; Schedule only
// assigns to a peer over that cap when every candidate is circuit-broken or
// over cap, flagging the decision degraded. Repeated calls for the same job
// id are idempotent.
func (d *Dispatcher) Schedule(job *Job) Decision {
	if d.shuttingDown.Load() {
		return Decision{Status: StatusRejected, Reason: "dispatcher shutting down"}
	}
	if existing, ok := d.jobs.Load(job.Id); ok && existing.Status != StatusPending {
		return Decision{
			Status: existing.Status, AssignedPeer: existing.AssignedPeer,
		}
	}
	if len(job.CandidatePeers) == 0 {
		job.Status = StatusRejected
		d.jobs.Store(job.Id, job)
		return Decision{Status: StatusRejected, Reason: "no candidate peers"}
	}
	policy := d.currentPolicy()
	now := time.Now()

	type scored struct {
		peerID   string
		score    float64
		inFlight int64
	}
	var viable, all []scored
	for _, p := range job.CandidatePeers {
		s := d.stateFor(p)
		sc, _ := d.score(p, policy)
		entry := scored{peerID: p, score: sc, inFlight: s.inFlight.Load()}
		all = append(all, entry)
		if !s.circuitOpen(now) && entry.inFlight < int64(policy.MaxConcurrentJobsPerPeer) {
			viable = append(viable, entry)
		}
	}
	pick := func(candidates []scored) scored {
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.score < best.score ||
				(c.score == best.score && c.inFlight < best.inFlight) {
				best = c
			}
		}
		return best
	}

	var chosen scored
	degraded := false
	if len(viable) > 0 {
		chosen = pick(viable)
	} else {
		// every candidate is circuit-broken or at MaxConcurrentJobsPerPeer:
		// assign to the least-bad one anyway, flagged degraded (spec §4.5
		// edge case)
		chosen = pick(all)
		degraded = true
	}

	job.AssignedPeer = chosen.peerID
	job.Status = StatusAssigned
	d.jobs.Store(job.Id, job)
	d.stateFor(chosen.peerID).inFlight.Inc()
	return Decision{
		Status: StatusAssigned, AssignedPeer: chosen.peerID, Degraded: degraded,
	}
}

// Acknowledge decrements in-flight for the assigned peer and updates its
// failure EMA; a success also resets its consecutive-failure count (spec
// §4.5 acknowledge). Unknown jobId is a no-op.
func (d *Dispatcher) Acknowledge(jobID string, success bool) {
	job, ok := d.jobs.Load(jobID)
	if !ok || job.AssignedPeer == "" {
		return
	}
	job.Status = StatusAcknowledged
	s := d.stateFor(job.AssignedPeer)
	s.inFlight.Dec()
	s.mu.Lock()
	const alpha = 0.2
	observed := 0.0
	if !success {
		observed = 1.0
	}
	s.failureRate = alpha*observed + (1-alpha)*s.failureRate
	if success {
		s.failureStreak = 0
	}
	s.mu.Unlock()
}

// Fail marks jobID failed, increments the assigned peer's failure counter
// and may open its circuit breaker (spec §4.5 fail).
func (d *Dispatcher) Fail(jobID string, reason string) {
	job, ok := d.jobs.Load(jobID)
	if !ok || job.AssignedPeer == "" {
		return
	}
	job.Status = StatusFailed
	policy := d.currentPolicy()
	s := d.stateFor(job.AssignedPeer)
	s.inFlight.Dec()
	s.mu.Lock()
	s.failureRate = 0.2*1.0 + 0.8*s.failureRate
	s.failureStreak++
	consecutive := s.failureStreak >= policy.CircuitBreakerThreshold
	if consecutive {
		s.circuitOpenUntil = time.Now().Add(policy.CircuitBreakerDuration)
		log.W.F(
			"dispatcher: circuit breaker opened for peer %s until %s (%s)",
			job.AssignedPeer, s.circuitOpenUntil, reason,
		)
	}
	s.mu.Unlock()
}

// ReportPeerMetrics merges the latest telemetry for peerID (spec §4.5
// reportPeerMetrics). reportedAt is monotonic: stale reports are dropped.
func (d *Dispatcher) ReportPeerMetrics(peerID string, m peer.Metrics) {
	s := d.stateFor(peerID)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if now.Before(s.reportedAt) {
		return
	}
	s.telemetry = m
	s.reportedAt = now
}

// ReportReplicaLag records the replica lag reported for peerID, used by the
// lag-penalty term of the scoring formula.
func (d *Dispatcher) ReportReplicaLag(peerID string, lag uint64) {
	s := d.stateFor(peerID)
	s.mu.Lock()
	s.replicaLag = lag
	s.mu.Unlock()
}

// ApplyPolicyUpdate hot-swaps the scoring weights. In-flight assignments are
// unaffected (spec §4.5 applyPolicyUpdate).
func (d *Dispatcher) ApplyPolicyUpdate(policy Policy) {
	d.policyMu.Lock()
	d.policy = policy
	d.policyMu.Unlock()
}

// Shutdown refuses new schedules; existing in-flight jobs drain naturally as
// their Acknowledge/Fail calls arrive (spec §4.5 shutdown).
func (d *Dispatcher) Shutdown() {
	d.shuttingDown.Store(true)
}
