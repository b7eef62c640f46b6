package pendingwrite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relaygate.dev/interfaces/peer"
	"relaygate.dev/interfaces/registry"
	registrystore "relaygate.dev/registry"
	"relaygate.dev/utils/context"
)

type fakePeer struct {
	id       string
	fail     bool
	requests int
}

func (f *fakePeer) Id() string { return f.id }
func (f *fakePeer) Forward(c context.T, relayKey string, frame []byte, connectionKey, relayAuthToken string) error {
	return nil
}
func (f *fakePeer) PollEvents(c context.T, relayKey, connectionKey, cursor string) ([]peer.Frame, string, error) {
	return nil, cursor, nil
}
func (f *fakePeer) FetchBlob(c context.T, relayKey, identifier string) ([]byte, error) {
	return nil, nil
}
func (f *fakePeer) PostRequest(c context.T, relayKey, path string, body []byte) ([]byte, error) {
	f.requests++
	if f.fail {
		return nil, errFakePostFailed
	}
	return []byte("ok"), nil
}
func (f *fakePeer) Metrics() peer.Metrics { return peer.Metrics{} }
func (f *fakePeer) Alive() bool           { return true }
func (f *fakePeer) Close() error          { return nil }

var errFakePostFailed = &fakePostError{}

type fakePostError struct{}

func (*fakePostError) Error() string { return "post failed" }

type fakePeerSource struct {
	peers map[string]*fakePeer
}

func (s *fakePeerSource) Peer(c context.T, peerID string) (peer.I, error) {
	p, ok := s.peers[peerID]
	if !ok {
		return nil, errFakePostFailed
	}
	return p, nil
}

func newTestPusher(t *testing.T, peers map[string]*fakePeer) (*Pusher, registry.I) {
	t.Helper()
	regs := registrystore.NewMemory(time.Hour)
	require.NoError(t, regs.UpsertRelay(
		context.Bg(), &registry.Descriptor{RelayKey: "r1", Peers: keysOf(peers)},
	))
	return New(regs, &fakePeerSource{peers: peers}), regs
}

func keysOf(m map[string]*fakePeer) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestPushToAllPeersAckedWhenAnyPeerSucceeds(t *testing.T) {
	good := &fakePeer{id: "p-good"}
	bad := &fakePeer{id: "p-bad", fail: true}
	p, _ := newTestPusher(t, map[string]*fakePeer{"p-good": good, "p-bad": bad})

	e := &entry{relayKey: "r1", pendingSince: time.Now()}
	acked := p.pushToAllPeers(context.Bg(), e, "pending")
	require.True(t, acked)
	require.Equal(t, 1, good.requests)
	require.Equal(t, 1, bad.requests)
}

func TestPushToAllPeersNotAckedWhenAllPeersFail(t *testing.T) {
	bad1 := &fakePeer{id: "p-bad-1", fail: true}
	bad2 := &fakePeer{id: "p-bad-2", fail: true}
	p, _ := newTestPusher(t, map[string]*fakePeer{"p-bad-1": bad1, "p-bad-2": bad2})

	e := &entry{relayKey: "r1", pendingSince: time.Now()}
	acked := p.pushToAllPeers(context.Bg(), e, "pending")
	require.False(t, acked)
}

func TestPushToAllPeersUnregisteredRelayIsNotAcked(t *testing.T) {
	p, _ := newTestPusher(t, map[string]*fakePeer{})
	e := &entry{relayKey: "does-not-exist", pendingSince: time.Now()}
	require.False(t, p.pushToAllPeers(context.Bg(), e, "pending"))
}

func TestNotifyPendingWriteIsIdempotentPerRelay(t *testing.T) {
	good := &fakePeer{id: "p-good"}
	p, _ := newTestPusher(t, map[string]*fakePeer{"p-good": good})

	p.NotifyPendingWrite("r1")
	p.mu.Lock()
	first := p.pending["r1"]
	p.mu.Unlock()
	require.NotNil(t, first)

	p.NotifyPendingWrite("r1")
	p.mu.Lock()
	second := p.pending["r1"]
	p.mu.Unlock()
	require.Same(t, first, second)

	p.NotifyCleared(context.Bg(), "r1")
}

func TestNotifyClearedCancelsRetryLoopAndPushesClearedState(t *testing.T) {
	good := &fakePeer{id: "p-good"}
	p, _ := newTestPusher(t, map[string]*fakePeer{"p-good": good})

	p.NotifyPendingWrite("r1")
	p.NotifyCleared(context.Bg(), "r1")

	p.mu.Lock()
	_, stillPending := p.pending["r1"]
	p.mu.Unlock()
	require.False(t, stillPending)
	require.Equal(t, 1, good.requests)
}

func TestJitterStaysWithinExpectedBand(t *testing.T) {
	base := 10 * time.Second
	for i := 0; i < 50; i++ {
		j := jitter(base)
		require.InDelta(t, float64(base), float64(j), float64(base)*jitterFraction+1)
	}
}

func TestObserveAckDelayReturnsCopy(t *testing.T) {
	p := New(registrystore.NewMemory(time.Hour), &fakePeerSource{peers: map[string]*fakePeer{}})
	p.ackDelays = append(p.ackDelays, 5*time.Second)

	out := p.ObserveAckDelay()
	require.Len(t, out, 1)
	out[0] = 99 * time.Second
	require.Equal(t, 5*time.Second, p.ackDelays[0], "ObserveAckDelay must return a copy")
}
