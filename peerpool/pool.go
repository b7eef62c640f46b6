// Package peerpool implements the Peer Pool (spec §4.3): at most one live
// outbound connection per PeerId, serialized dialing, periodic health
// sweeps and stale-socket replacement. Grounded on the reconnect/backoff
// shape of an outbound WebSocket client in the example corpus, generalized
// from a single always-on connection to a keyed pool of many.
package peerpool

import (
	"time"

	"github.com/coder/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"

	"relaygate.dev/interfaces/peer"
	"relaygate.dev/utils/chk"
	"relaygate.dev/utils/context"
	"relaygate.dev/utils/log"
)

// Dialer opens the transport-level connection to a peer. The address
// resolution behind it (registration store lookup, discovery) is external
// to the pool.
type Dialer interface {
	Dial(c context.T, peerID string) (conn *websocket.Conn, url string, err error)
}

// TelemetrySink receives forwarded peer telemetry for dispatcher scoring.
type TelemetrySink interface {
	ReportPeerMetrics(peerID string, m peer.Metrics)
}

// Pool is the Peer Pool.
type Pool struct {
	dialer      Dialer
	sink        TelemetrySink
	group       singleflight.Group
	conns       *xsync.MapOf[string, *Connection]
	pingTimeout time.Duration
	staleAfter  time.Duration
}

// New builds a Pool. sink may be nil if telemetry forwarding is not wired yet.
func New(dialer Dialer, sink TelemetrySink, pingTimeout, staleAfter time.Duration) *Pool {
	return &Pool{
		dialer:      dialer,
		sink:        sink,
		conns:       xsync.NewMapOf[string, *Connection](),
		pingTimeout: pingTimeout,
		staleAfter:  staleAfter,
	}
}

// GetConnection returns the live wrapper for peerID, dialing one if absent.
// Concurrent calls for the same peerID are serialized onto a single dial.
func (p *Pool) GetConnection(c context.T, peerID string) (*Connection, error) {
	if existing, ok := p.conns.Load(peerID); ok && existing.Alive() {
		return existing, nil
	}
	result, err, _ := p.group.Do(peerID, func() (interface{}, error) {
		if existing, ok := p.conns.Load(peerID); ok && existing.Alive() {
			return existing, nil
		}
		conn, url, dialErr := p.dialer.Dial(c, peerID)
		if dialErr != nil {
			return nil, dialErr
		}
		wrapper := newConnection(peerID, url, conn)
		p.conns.Store(peerID, wrapper)
		log.D.F("peer pool: dialed %s at %s", peerID, url)
		return wrapper, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Connection), nil
}

// OnInboundConnection accepts an inbound stream for peerID: if the existing
// wrapper is healthy the inbound connection is torn down, else it replaces
// the stale wrapper (spec §4.3 onInboundConnection).
func (p *Pool) OnInboundConnection(peerID string, conn *websocket.Conn) {
	if existing, ok := p.conns.Load(peerID); ok && existing.Alive() {
		_ = conn.Close(websocket.StatusNormalClosure, "existing connection healthy")
		return
	}
	wrapper := newConnection(peerID, "inbound", conn)
	if old, loaded := p.conns.LoadAndStore(peerID, wrapper); loaded {
		_ = old.Close()
	}
}

// HealthSweep pings every wrapper; failures mark the wrapper unhealthy and
// remove it (spec §4.3 healthSweep).
func (p *Pool) HealthSweep(c context.T) {
	p.conns.Range(func(peerID string, conn *Connection) bool {
		if err := conn.ping(c, p.pingTimeout); chk.T(err) {
			log.W.F("peer pool: health ping failed for %s: %v", peerID, err)
			p.removeUnhealthy(peerID, conn)
			return true
		}
		idle := time.Since(time.UnixMilli(conn.lastActivityAt.Load()))
		if idle > p.staleAfter {
			log.D.F("peer pool: %s idle %s, marking stale", peerID, idle)
			p.removeUnhealthy(peerID, conn)
		}
		return true
	})
}

func (p *Pool) removeUnhealthy(peerID string, conn *Connection) {
	if current, ok := p.conns.Load(peerID); ok && current == conn {
		p.conns.Delete(peerID)
	}
	_ = conn.Close()
}

// TelemetryReceived forwards peer-reported metrics into the dispatcher
// (spec §4.3 telemetrySink).
func (p *Pool) TelemetryReceived(peerID string, m peer.Metrics) {
	if conn, ok := p.conns.Load(peerID); ok {
		conn.setMetrics(m)
	}
	if p.sink != nil {
		p.sink.ReportPeerMetrics(peerID, m)
	}
}

// Destroy closes every wrapper (spec §4.3 destroy).
func (p *Pool) Destroy() {
	p.conns.Range(func(peerID string, conn *Connection) bool {
		_ = conn.Close()
		p.conns.Delete(peerID)
		return true
	})
}
