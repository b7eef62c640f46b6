// Package session implements the Session Manager (spec §4.4): per-WebSocket
// client state, admission, per-message processing, peer rotation and the
// event-polling loop. Grounded on the teacher's single-writer-mutex
// WebSocket listener (protocol/ws) and its FIFO dispatch style, generalized
// from "one relay" to "one relayKey routed across several candidate peers."
package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"relaygate.dev/dispatcher"
	"relaygate.dev/interfaces/peer"
	"relaygate.dev/interfaces/store"
	"relaygate.dev/protocol/envelopes"
	"relaygate.dev/protocol/ws"
	"relaygate.dev/utils/chk"
	"relaygate.dev/utils/context"
	"relaygate.dev/utils/log"
)

// Close codes (spec §4.9).
const (
	CloseInternal       = 1011
	CloseNoPeers        = 1013
	CloseTokenProblem   = 4403
	CloseRelayNotFound  = 4404
)

// PeerSource resolves a live RPC handle for a peer id (spec §4.3 getConnection,
// wrapped with the RPC surface of interfaces/peer).
type PeerSource interface {
	Peer(c context.T, peerID string) (peer.I, error)
}

// Session is one active WebSocket client (spec §3 Session).
type Session struct {
	ConnectionKey  string
	RelayKey       string
	ClientWs       *ws.Listener
	ClientToken    string
	RelayAuthToken string
	ClientPubkey   string
	Scope          []string

	mu            sync.Mutex
	peers         []string
	peerIndex     int
	subscriptions map[string]*Subscription
	subPeer       map[string]string

	LocalOnly bool
	OpenedAt  time.Time

	queue     *Queue
	pollTimer *time.Ticker
	closeOnce sync.Once

	manager *Manager
}

func newConnectionKey() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func newSession(
	m *Manager, relayKey string, clientWs *ws.Listener, clientToken string,
	relayAuthToken, clientPubkey string, scope []string, peers []string,
	localOnly bool,
) *Session {
	return &Session{
		ConnectionKey:  newConnectionKey(),
		RelayKey:       relayKey,
		ClientWs:       clientWs,
		ClientToken:    clientToken,
		RelayAuthToken: relayAuthToken,
		ClientPubkey:   clientPubkey,
		Scope:          scope,
		peers:          peers,
		subscriptions:  make(map[string]*Subscription),
		subPeer:        make(map[string]string),
		LocalOnly:      localOnly,
		OpenedAt:       time.Now(),
		queue:          NewQueue(),
		manager:        m,
	}
}

// currentPeer returns the candidate peer at peerIndex, rotating on repeated
// failure (spec §4.4 peer rotation on failure).
func (s *Session) currentPeer() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.peers) == 0 {
		return "", false
	}
	return s.peers[s.peerIndex%len(s.peers)], true
}

func (s *Session) rotate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.peers) == 0 {
		return
	}
	s.peerIndex = (s.peerIndex + 1) % len(s.peers)
}

func (s *Session) peerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Enqueue adds an inbound client frame to this session's FIFO.
func (s *Session) Enqueue(msg []byte) { s.queue.Push(msg) }

// Run processes the session's inbound queue until closed. It is the single
// consumer for this session's messages (spec §5 ordering guarantees).
func (s *Session) Run(c context.T) {
	for {
		msg, ok := s.queue.Pop()
		if !ok {
			return
		}
		s.handleFrame(c, msg)
	}
}

func (s *Session) notice(text string) {
	frame, err := envelopes.NewNotice(text)
	if chk.E(err) {
		return
	}
	_, _ = s.ClientWs.Write(frame)
}

func (s *Session) handleFrame(c context.T, msg []byte) {
	label, rest, err := envelopes.Identify(msg)
	if err != nil {
		s.notice(fmt.Sprintf("invalid: %v", err))
		return
	}
	switch label {
	case envelopes.Event:
		s.handleEvent(c, rest)
	case envelopes.Req:
		s.handleReq(c, rest)
	case envelopes.Close:
		s.handleClose(c, rest)
	case envelopes.Ping:
		_, _ = s.ClientWs.Write([]byte(`["PONG"]`))
	case envelopes.Auth:
		// AUTH payload verification is a worker-side concern (spec §1 Non-goals).
	default:
		s.notice("unsupported frame type: " + label)
	}
}

func (s *Session) handleEvent(c context.T, rest []json.RawMessage) {
	sub, err := envelopes.ParseEventSubmission(rest)
	if err != nil {
		s.notice(fmt.Sprintf("invalid EVENT: %v", err))
		return
	}
	ev := sub.Event
	if s.LocalOnly {
		desc := s.manager.descriptorFor(c, s.RelayKey)
		if desc == nil || !desc.Metadata.LeaseActive {
			s.ack(ev.Id, false, "error: replica-readonly")
			return
		}
		replica := s.manager.replicaFor(s.RelayKey)
		if replica == nil {
			s.ack(ev.Id, false, "error: no local replica configured")
			return
		}
		if err = replica.AppendEvent(c, s.RelayKey, ev); chk.E(err) {
			s.ack(ev.Id, false, "error: "+err.Error())
			return
		}
		s.manager.notifyPendingWrite(s.RelayKey)
		s.ack(ev.Id, true, "")
		return
	}
	peerID, ok := s.currentPeer()
	if !ok {
		s.ack(ev.Id, false, "error: no peers available")
		return
	}
	raw, _ := json.Marshal([]interface{}{envelopes.Event, ev})
	s.forwardWithRotation(c, peerID, raw, func(err error) {
		if err != nil {
			s.ack(ev.Id, false, "error: "+err.Error())
			return
		}
		s.ack(ev.Id, true, "")
	})
}

func (s *Session) ack(eventId string, success bool, message string) {
	frame, err := envelopes.NewOK(eventId, success, message)
	if chk.E(err) {
		return
	}
	_, _ = s.ClientWs.Write(frame)
}

// forwardWithRotation forwards raw to peerID, rotating through the
// session's remaining candidate peers on failure before giving up
// (spec §4.4 peer rotation on failure).
func (s *Session) forwardWithRotation(
	c context.T, peerID string, raw []byte, done func(error),
) {
	attempts := s.peerCount()
	if attempts == 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		p, err := s.manager.peers.Peer(c, peerID)
		if err == nil {
			err = p.Forward(c, s.RelayKey, raw, s.ConnectionKey, s.RelayAuthToken)
		}
		if err == nil {
			done(nil)
			return
		}
		lastErr = err
		s.rotate()
		peerID, _ = s.currentPeer()
	}
	s.notice(fmt.Sprintf("peer forward failed: %v", lastErr))
	done(lastErr)
}

func (s *Session) handleReq(c context.T, rest []json.RawMessage) {
	req, err := envelopes.ParseReq(rest)
	if err != nil {
		s.notice(fmt.Sprintf("invalid REQ: %v", err))
		return
	}
	s.mu.Lock()
	s.subscriptions[req.SubId] = &Subscription{Filters: req.Filters}
	s.mu.Unlock()

	replica := s.manager.replicaFor(s.RelayKey)
	if replica != nil && s.manager.replicaCapable(s.RelayKey) {
		s.serveLocal(c, req.SubId, replica)
		return
	}
	peerID, ok := s.currentPeer()
	if !ok {
		s.notice("no peers available for REQ " + req.SubId)
		return
	}
	if s.manager.dispatcherEnabled {
		job := &dispatcher.Job{
			Id:      s.ConnectionKey + ":" + req.SubId,
			Filters: req.Filters,
			Requester: dispatcher.Requester{
				PeerId: s.ConnectionKey, RelayKey: s.RelayKey,
			},
			CreatedAt:      time.Now(),
			CandidatePeers: s.peersSnapshot(),
		}
		decision := s.manager.dispatcher.Schedule(job)
		if decision.Status == dispatcher.StatusRejected {
			s.forwardReq(c, peerID, req)
			return
		}
		if decision.Degraded {
			s.notice("dispatcher degraded: all candidate peers unhealthy")
		}
		s.mu.Lock()
		s.subPeer[req.SubId] = decision.AssignedPeer
		s.mu.Unlock()
		raw, _ := json.Marshal(
			[]interface{}{envelopes.Req, req.SubId, req.Filters},
		)
		p, err := s.manager.peers.Peer(c, decision.AssignedPeer)
		if err != nil {
			s.manager.dispatcher.Fail(job.Id, err.Error())
			s.forwardReq(c, peerID, req)
			return
		}
		if err = p.Forward(
			c, s.RelayKey, raw, s.ConnectionKey, s.RelayAuthToken,
		); err != nil {
			s.manager.dispatcher.Fail(job.Id, err.Error())
			s.forwardReq(c, peerID, req)
			return
		}
		s.manager.dispatcher.Acknowledge(job.Id, true)
		return
	}
	s.forwardReq(c, peerID, req)
}

func (s *Session) forwardReq(c context.T, peerID string, req envelopes.ReqFrame) {
	raw, _ := json.Marshal([]interface{}{envelopes.Req, req.SubId, req.Filters})
	s.forwardWithRotation(c, peerID, raw, func(err error) {})
}

func (s *Session) serveLocal(c context.T, subId string, replica store.I) {
	s.mu.Lock()
	sub := s.subscriptions[subId]
	s.mu.Unlock()
	if sub == nil {
		return
	}
	envs, err := replica.Query(c, sub.Filters.F)
	if chk.E(err) {
		return
	}
	for _, e := range envs {
		if e.Event.CreatedAt <= sub.LastReturnedAt {
			continue
		}
		result := envelopes.EventResult{SubId: subId, Event: e.Event}
		raw, marshalErr := result.Marshal()
		if chk.E(marshalErr) {
			continue
		}
		_, _ = s.ClientWs.Write(raw)
		sub.Advance(e.Event.CreatedAt)
	}
	eose, err := envelopes.NewEOSE(subId)
	if chk.E(err) {
		return
	}
	_, _ = s.ClientWs.Write(eose)
}

func (s *Session) handleClose(c context.T, rest []json.RawMessage) {
	closeFrame, err := envelopes.ParseClose(rest)
	if err != nil {
		return
	}
	s.mu.Lock()
	delete(s.subscriptions, closeFrame.SubId)
	assignedPeer, hadJob := s.subPeer[closeFrame.SubId]
	delete(s.subPeer, closeFrame.SubId)
	s.mu.Unlock()
	if peerID, ok := s.currentPeer(); ok {
		raw, _ := json.Marshal([]interface{}{envelopes.Close, closeFrame.SubId})
		s.forwardWithRotation(c, peerID, raw, func(error) {})
	}
	if hadJob && s.manager.dispatcherEnabled {
		s.manager.dispatcher.Acknowledge(s.ConnectionKey+":"+closeFrame.SubId, true)
		_ = assignedPeer
	}
}

func (s *Session) peersSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.peers))
	copy(out, s.peers)
	return out
}

// startPolling launches the event-poll loop (spec §4.4 event polling loop):
// ~1s cadence pulling from the current peer when routed, or the replica
// adapter when local-only.
func (s *Session) startPolling(c context.T) {
	s.pollTimer = time.NewTicker(time.Second)
	go func() {
		for {
			select {
			case <-c.Done():
				return
			case <-s.pollTimer.C:
				s.pollOnce(c)
			}
		}
	}()
}

func (s *Session) pollOnce(c context.T) {
	if s.LocalOnly {
		replica := s.manager.replicaFor(s.RelayKey)
		if replica == nil {
			return
		}
		s.mu.Lock()
		subs := make(map[string]*Subscription, len(s.subscriptions))
		for id, sub := range s.subscriptions {
			subs[id] = sub
		}
		s.mu.Unlock()
		for subId, sub := range subs {
			envs, err := replica.Query(c, sub.Filters.F)
			if chk.E(err) {
				continue
			}
			for _, e := range envs {
				if e.Event.CreatedAt <= sub.LastReturnedAt {
					continue
				}
				result := envelopes.EventResult{SubId: subId, Event: e.Event}
				raw, marshalErr := result.Marshal()
				if chk.E(marshalErr) {
					continue
				}
				_, _ = s.ClientWs.Write(raw)
				sub.Advance(e.Event.CreatedAt)
			}
		}
		return
	}
	peerID, ok := s.currentPeer()
	if !ok {
		return
	}
	p, err := s.manager.peers.Peer(c, peerID)
	if chk.T(err) {
		s.rotate()
		return
	}
	frames, _, err := p.PollEvents(c, s.RelayKey, s.ConnectionKey, "")
	if chk.T(err) {
		s.rotate()
		return
	}
	for _, f := range frames {
		_, _ = s.ClientWs.Write(f.Payload)
	}
}

// Close tears down the session exactly once (spec §4.9 on session shutdown).
func (s *Session) Close(code int, reason string) {
	s.closeOnce.Do(func() {
		if s.pollTimer != nil {
			s.pollTimer.Stop()
		}
		s.queue.Close()
		if s.manager.dispatcherEnabled {
			s.mu.Lock()
			subIds := make([]string, 0, len(s.subPeer))
			for id := range s.subPeer {
				subIds = append(subIds, id)
			}
			s.mu.Unlock()
			for _, id := range subIds {
				s.manager.dispatcher.Acknowledge(s.ConnectionKey+":"+id, true)
			}
		}
		s.manager.unregister(s)
		if err := s.ClientWs.WriteClose(code, reason); chk.T(err) {
		}
		_ = s.ClientWs.Close()
		log.D.F("session %s closed: %s", s.ConnectionKey, reason)
	})
}
