// Package pendingwrite implements the Pending-write Pusher (spec §4.8):
// when the gateway mutates a replica during peer-absent fallback, it
// retries a reconciliation notice to every registered peer for that relay
// with exponential backoff and jitter until acknowledged or cleared.
// Grounded on the reconnect-backoff shape used for the outbound peer-mesh
// client in the example corpus, generalized from "reconnect a socket" to
// "retry a notification."
package pendingwrite

import (
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"relaygate.dev/interfaces/peer"
	"relaygate.dev/interfaces/registry"
	"relaygate.dev/utils/chk"
	"relaygate.dev/utils/context"
	"relaygate.dev/utils/log"
)

const (
	initialBackoff = 15 * time.Second
	maxBackoff     = 300 * time.Second
	jitterFraction = 0.2
)

// PeerSource resolves a live RPC handle for a peer id.
type PeerSource interface {
	Peer(c context.T, peerID string) (peer.I, error)
}

type entry struct {
	relayKey        string
	attempts        int
	pendingSince    time.Time
	lastPushAt      time.Time
	metadataSnapshot *registry.Descriptor
	cancel          chan struct{}
}

// pushPayload is the body of POST /gateway/pending-writes.
type pushPayload struct {
	RelayKey string `json:"relayKey"`
	State    string `json:"state"`
	Attempts int    `json:"attempts"`
}

// Pusher is the Pending-write Pusher.
type Pusher struct {
	registrations registry.I
	peers         PeerSource

	mu      sync.Mutex
	pending map[string]*entry

	ackDelays []time.Duration
}

// New builds a Pusher.
func New(registrations registry.I, peers PeerSource) *Pusher {
	return &Pusher{
		registrations: registrations,
		peers:         peers,
		pending:       make(map[string]*entry),
	}
}

// NotifyPendingWrite announces a replica mutation for relayKey, starting (or
// continuing) its retry loop if one is not already running.
func (p *Pusher) NotifyPendingWrite(relayKey string) {
	p.mu.Lock()
	if _, ok := p.pending[relayKey]; ok {
		p.mu.Unlock()
		return
	}
	e := &entry{
		relayKey:     relayKey,
		pendingSince: time.Now(),
		cancel:       make(chan struct{}),
	}
	p.pending[relayKey] = e
	p.mu.Unlock()
	go p.retryLoop(context.Bg(), e)
}

// NotifyCleared cancels the retry loop for relayKey and emits one final
// state:"cleared" push (spec §4.8).
func (p *Pusher) NotifyCleared(c context.T, relayKey string) {
	p.mu.Lock()
	e, ok := p.pending[relayKey]
	if ok {
		delete(p.pending, relayKey)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	close(e.cancel)
	p.pushToAllPeers(c, e, "cleared")
}

func jitter(d time.Duration) time.Duration {
	delta := float64(d) * jitterFraction
	offset := (rand.Float64()*2 - 1) * delta
	return d + time.Duration(offset)
}

func (p *Pusher) retryLoop(c context.T, e *entry) {
	backoff := initialBackoff
	for {
		select {
		case <-e.cancel:
			return
		case <-time.After(jitter(backoff)):
		}
		p.mu.Lock()
		e.attempts++
		e.lastPushAt = time.Now()
		p.mu.Unlock()
		acked := p.pushToAllPeers(c, e, "pending")
		if acked {
			p.mu.Lock()
			delay := time.Since(e.pendingSince)
			p.ackDelays = append(p.ackDelays, delay)
			p.mu.Unlock()
			log.I.F(
				"pending-write pusher: relay %s acked after %s (%d attempts)",
				e.relayKey, delay, e.attempts,
			)
			return
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// pushToAllPeers sends the push to every registered peer for the relay,
// returning true if at least one peer acknowledged it.
func (p *Pusher) pushToAllPeers(c context.T, e *entry, state string) bool {
	desc, err := p.registrations.GetRelay(c, e.relayKey)
	if chk.T(err) || desc == nil {
		return false
	}
	payload, err := json.Marshal(
		pushPayload{RelayKey: e.relayKey, State: state, Attempts: e.attempts},
	)
	if chk.E(err) {
		return false
	}
	acked := false
	for _, peerID := range desc.Peers {
		conn, dialErr := p.peers.Peer(c, peerID)
		if dialErr != nil {
			continue
		}
		if _, postErr := conn.PostRequest(
			c, e.relayKey, "/gateway/pending-writes", payload,
		); postErr == nil {
			acked = true
		}
	}
	return acked
}

// ObserveAckDelay returns the recorded (ackAt - pendingSince) delays, in
// arrival order, for metrics export (spec §4.8 observeAckDelay).
func (p *Pusher) ObserveAckDelay() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]time.Duration, len(p.ackDelays))
	copy(out, p.ackDelays)
	return out
}
