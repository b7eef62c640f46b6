package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relaygate.dev/interfaces/peer"
)

func newJob(id string, candidates ...string) *Job {
	return &Job{Id: id, CreatedAt: time.Now(), CandidatePeers: candidates}
}

func TestScheduleRejectsWithNoCandidates(t *testing.T) {
	d := New(DefaultPolicy())
	decision := d.Schedule(newJob("job-1"))
	require.Equal(t, StatusRejected, decision.Status)
}

func TestScheduleIsIdempotent(t *testing.T) {
	d := New(DefaultPolicy())
	job := newJob("job-1", "peer-a", "peer-b")

	first := d.Schedule(job)
	require.Equal(t, StatusAssigned, first.Status)

	second := d.Schedule(job)
	require.Equal(t, first.AssignedPeer, second.AssignedPeer)
	require.Equal(t, first.Status, second.Status)
}

func TestSchedulePrefersLowerScoringPeer(t *testing.T) {
	d := New(DefaultPolicy())
	d.ReportPeerMetrics("peer-a", peer.Metrics{AvgLatencyMs: 500})
	d.ReportPeerMetrics("peer-b", peer.Metrics{AvgLatencyMs: 5})

	decision := d.Schedule(newJob("job-1", "peer-a", "peer-b"))
	require.Equal(t, "peer-b", decision.AssignedPeer)
	require.False(t, decision.Degraded)
}

func TestFailOpensCircuitBreakerAfterRepeatedFailures(t *testing.T) {
	policy := DefaultPolicy()
	policy.CircuitBreakerThreshold = 2
	d := New(policy)

	for i := 0; i < 5; i++ {
		job := newJob(string(rune('a'+i)), "peer-a")
		decision := d.Schedule(job)
		require.Equal(t, "peer-a", decision.AssignedPeer)
		d.Fail(job.Id, "simulated failure")
	}

	decision := d.Schedule(newJob("job-degraded", "peer-a"))
	require.True(t, decision.Degraded)
	require.Equal(t, "peer-a", decision.AssignedPeer)
}

func TestScheduleFallsBackToDegradedWhenAllCircuitsOpen(t *testing.T) {
	policy := DefaultPolicy()
	policy.CircuitBreakerThreshold = 1
	d := New(policy)

	for _, p := range []string{"peer-a", "peer-b"} {
		job := newJob("warm-"+p, p)
		d.Schedule(job)
		d.Fail(job.Id, "forced")
	}

	decision := d.Schedule(newJob("job-final", "peer-a", "peer-b"))
	require.Equal(t, StatusAssigned, decision.Status)
	require.True(t, decision.Degraded)
}

func TestAcknowledgeDecrementsInFlightAndLowersFailureRate(t *testing.T) {
	d := New(DefaultPolicy())
	job := newJob("job-1", "peer-a")
	d.Schedule(job)
	s := d.stateFor("peer-a")
	s.mu.Lock()
	s.failureRate = 0.5
	s.mu.Unlock()

	d.Acknowledge(job.Id, true)
	require.EqualValues(t, 0, s.inFlight.Load())
	require.Equal(t, StatusAcknowledged, job.Status)
	require.Less(t, s.failureRate, 0.5)
}

func TestReportPeerMetricsDropsStaleReports(t *testing.T) {
	d := New(DefaultPolicy())
	d.ReportPeerMetrics("peer-a", peer.Metrics{AvgLatencyMs: 10})
	s := d.stateFor("peer-a")
	firstReportedAt := s.reportedAt

	s.mu.Lock()
	s.reportedAt = firstReportedAt.Add(time.Hour)
	s.mu.Unlock()

	d.ReportPeerMetrics("peer-a", peer.Metrics{AvgLatencyMs: 999})
	require.Equal(t, 10.0, s.telemetry.AvgLatencyMs)
}

func TestShutdownRejectsNewSchedules(t *testing.T) {
	d := New(DefaultPolicy())
	d.Shutdown()
	decision := d.Schedule(newJob("job-1", "peer-a"))
	require.Equal(t, StatusRejected, decision.Status)
}

func TestScheduleExcludesPeerAtMaxConcurrentJobsPerPeer(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxConcurrentJobsPerPeer = 2
	d := New(policy)
	d.ReportPeerMetrics("peer-a", peer.Metrics{AvgLatencyMs: 1})
	d.ReportPeerMetrics("peer-b", peer.Metrics{AvgLatencyMs: 500})

	for i := 0; i < 2; i++ {
		decision := d.Schedule(newJob(string(rune('a'+i)), "peer-a", "peer-b"))
		require.Equal(t, "peer-a", decision.AssignedPeer)
		require.False(t, decision.Degraded)
	}

	decision := d.Schedule(newJob("job-overflow", "peer-a", "peer-b"))
	require.Equal(t, "peer-b", decision.AssignedPeer)
	require.False(t, decision.Degraded)
}

func TestScheduleDegradesWhenAllCandidatesAtCap(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxConcurrentJobsPerPeer = 1
	d := New(policy)

	d.Schedule(newJob("warm-a", "peer-a"))
	d.Schedule(newJob("warm-b", "peer-b"))

	decision := d.Schedule(newJob("job-final", "peer-a", "peer-b"))
	require.Equal(t, StatusAssigned, decision.Status)
	require.True(t, decision.Degraded)
}

func TestApplyPolicyUpdateAffectsSubsequentScheduling(t *testing.T) {
	d := New(DefaultPolicy())
	d.ReportPeerMetrics("peer-a", peer.Metrics{AvgLatencyMs: 100})
	d.ReportPeerMetrics("peer-b", peer.Metrics{AvgLatencyMs: 1})

	updated := DefaultPolicy()
	updated.LatencyWeight = 0
	updated.InFlightWeight = 100
	d.ApplyPolicyUpdate(updated)

	decision := d.Schedule(newJob("job-1", "peer-a", "peer-b"))
	require.Equal(t, "peer-a", decision.AssignedPeer)
}
