package session

import (
	"sync"
	"sync/atomic"

	"relaygate.dev/dispatcher"
	"relaygate.dev/interfaces/registry"
	"relaygate.dev/interfaces/store"
	"relaygate.dev/protocol/envelopes"
	"relaygate.dev/protocol/ws"
	"relaygate.dev/token"
	"relaygate.dev/utils/chk"
	"relaygate.dev/utils/context"
	"relaygate.dev/utils/log"
)

// ReplicaLookup resolves the local replica adapter for a relayKey, if any.
type ReplicaLookup interface {
	Replica(relayKey string) (store.I, bool)
}

// PendingWriteNotifier is told whenever the replica is mutated during a
// peer-absent fallback (spec §4.8).
type PendingWriteNotifier interface {
	NotifyPendingWrite(relayKey string)
}

// Manager is the Session Manager (spec §4.4).
type Manager struct {
	registrations registry.I
	tokens        *token.Service
	peers         PeerSource
	dispatcher    *dispatcher.Dispatcher
	replicas      ReplicaLookup
	pendingWrites PendingWriteNotifier

	dispatcherEnabled bool

	mu      sync.Mutex
	byConn  map[string]*Session
	byRelay map[string]map[string]*Session

	gauge int64
}

// New builds a Manager. dispatcherEnabled toggles whether REQs are routed
// through the Relay Dispatcher or forwarded directly to the current peer.
func New(
	registrations registry.I, tokens *token.Service, peers PeerSource,
	dispatch *dispatcher.Dispatcher, replicas ReplicaLookup,
	pendingWrites PendingWriteNotifier, dispatcherEnabled bool,
) *Manager {
	return &Manager{
		registrations:     registrations,
		tokens:            tokens,
		peers:             peers,
		dispatcher:        dispatch,
		replicas:          replicas,
		pendingWrites:     pendingWrites,
		dispatcherEnabled: dispatcherEnabled,
		byConn:            make(map[string]*Session),
		byRelay:           make(map[string]map[string]*Session),
	}
}

func (m *Manager) descriptorFor(c context.T, relayKey string) *registry.Descriptor {
	d, err := m.registrations.GetRelay(c, relayKey)
	if chk.T(err) {
		return nil
	}
	return d
}

func (m *Manager) replicaFor(relayKey string) store.I {
	if m.replicas == nil {
		return nil
	}
	r, ok := m.replicas.Replica(relayKey)
	if !ok {
		return nil
	}
	return r
}

func (m *Manager) replicaCapable(relayKey string) bool {
	_, ok := m.replicas.Replica(relayKey)
	return ok
}

func (m *Manager) notifyPendingWrite(relayKey string) {
	if m.pendingWrites != nil {
		m.pendingWrites.NotifyPendingWrite(relayKey)
	}
}

// SessionGauge returns the current number of live sessions.
func (m *Manager) SessionGauge() int64 { return atomic.LoadInt64(&m.gauge) }

// Admit implements steps 1-6 of spec §4.4: descriptor lookup, token
// validation, initial peer selection, connection establishment and session
// registration. It returns the new Session, or an application close code
// and reason if admission failed.
func (m *Manager) Admit(
	c context.T, relayKey, presentedToken string, clientWs *ws.Listener,
) (s *Session, closeCode int, closeReason string) {
	desc := m.descriptorFor(c, relayKey)
	if desc == nil {
		return nil, CloseRelayNotFound, "relay not registered"
	}
	relayAuthToken := ""
	clientPubkey := ""
	var scope []string
	if desc.Metadata.AuthRequired() {
		if presentedToken == "" {
			return nil, CloseTokenProblem, "token required"
		}
		record, err := m.tokens.VerifyToken(c, presentedToken, relayKey)
		if err != nil {
			return nil, CloseTokenProblem, "token " + token.ReasonOf(err)
		}
		relayAuthToken = record.RelayAuthToken
		clientPubkey = record.Pubkey
		scope = record.Scope
	}
	localOnly := false
	if len(desc.Peers) == 0 {
		if !desc.Metadata.IsReplica {
			return nil, CloseNoPeers, "no peers available"
		}
		localOnly = true
	}
	s = newSession(
		m, relayKey, clientWs, presentedToken, relayAuthToken, clientPubkey,
		scope, desc.Peers, localOnly,
	)
	if !localOnly {
		if _, err := m.peers.Peer(c, desc.Peers[0]); chk.T(err) {
			// first candidate unreachable; subsequent rotation in the
			// per-message path will try the rest
			log.W.F(
				"session admit: initial peer %s unreachable for relay %s: %v",
				desc.Peers[0], relayKey, err,
			)
		}
	}
	m.register(s)
	s.startPolling(c)
	go s.Run(c)
	return s, 0, ""
}

func (m *Manager) register(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byConn[s.ConnectionKey] = s
	set, ok := m.byRelay[s.RelayKey]
	if !ok {
		set = make(map[string]*Session)
		m.byRelay[s.RelayKey] = set
	}
	set[s.ConnectionKey] = s
	atomic.AddInt64(&m.gauge, 1)
}

func (m *Manager) unregister(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byConn, s.ConnectionKey)
	if set, ok := m.byRelay[s.RelayKey]; ok {
		delete(set, s.ConnectionKey)
		if len(set) == 0 {
			delete(m.byRelay, s.RelayKey)
		}
	}
	atomic.AddInt64(&m.gauge, -1)
}

// BroadcastRevocation sends ["TOKEN","REVOKED",...] to every live session on
// relayKey and closes them with 4403 (spec §4.6 revokeToken).
func (m *Manager) BroadcastRevocation(relayKey, reason string, sequence uint64) {
	m.mu.Lock()
	set := m.byRelay[relayKey]
	sessions := make([]*Session, 0, len(set))
	for _, s := range set {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()
	frame, err := envelopes.NewTokenRevoked(reason, sequence)
	if chk.E(err) {
		return
	}
	for _, s := range sessions {
		_, _ = s.ClientWs.Write(frame)
		s.Close(CloseTokenProblem, "token revoked: "+reason)
	}
}
