package peerpool

import (
	"sync"
	"time"

	"github.com/coder/websocket"

	"relaygate.dev/interfaces/peer"
	"relaygate.dev/utils/atomic"
	"relaygate.dev/utils/context"
)

// Connection is one outbound PeerConnection wrapper (spec §3 PeerConnection).
type Connection struct {
	peerID          string
	url             string
	protocol        string
	conn            *websocket.Conn
	connected       atomic.Bool
	lastHandshakeAt atomic.Int64
	lastActivityAt  atomic.Int64
	failureStreak   atomic.Int64

	writeMu sync.Mutex
	metrics peer.Metrics
	metricsMu sync.RWMutex
}

func newConnection(peerID, url string, conn *websocket.Conn) *Connection {
	c := &Connection{peerID: peerID, url: url, protocol: "wss", conn: conn}
	now := time.Now().UnixMilli()
	c.lastHandshakeAt.Store(now)
	c.lastActivityAt.Store(now)
	c.connected.Store(true)
	return c
}

func (c *Connection) Id() string { return c.peerID }

func (c *Connection) Alive() bool { return c.connected.Load() }

func (c *Connection) touch() { c.lastActivityAt.Store(time.Now().UnixMilli()) }

func (c *Connection) markFailed() {
	c.connected.Store(false)
	c.failureStreak.Inc()
}

func (c *Connection) resetFailures() { c.failureStreak.Store(0) }

func (c *Connection) FailureStreak() int64 { return c.failureStreak.Load() }

// write sends a single text frame, serialized against concurrent writers.
func (c *Connection) write(ctx context.T, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	err := c.conn.Write(ctx, websocket.MessageText, data)
	if err != nil {
		c.markFailed()
		return err
	}
	c.touch()
	return nil
}

// SendRPC writes a single binary msgpack-framed RPC request, serialized
// against concurrent writers and ordinary forwarded frames alike.
func (c *Connection) SendRPC(ctx context.T, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	err := c.conn.Write(ctx, websocket.MessageBinary, data)
	if err != nil {
		c.markFailed()
		return err
	}
	c.touch()
	return nil
}

// RecvRPC reads the next binary frame off the connection. The
// one-live-connection-per-PeerId invariant (spec §3 PeerConnection) makes
// this safe to call without additional correlation: each RPC's reply is the
// next frame the wire package reads after sending its request.
func (c *Connection) RecvRPC(ctx context.T) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		c.markFailed()
		return nil, err
	}
	c.touch()
	return data, nil
}

// ping performs a protocol-level liveness check (spec §4.3 healthSweep).
func (c *Connection) ping(ctx context.T, timeout time.Duration) error {
	pingCtx, cancel := context.Timeout(ctx, timeout)
	defer cancel()
	if err := c.conn.Ping(pingCtx); err != nil {
		c.markFailed()
		return err
	}
	c.resetFailures()
	c.touch()
	return nil
}

func (c *Connection) setMetrics(m peer.Metrics) {
	c.metricsMu.Lock()
	c.metrics = m
	c.metricsMu.Unlock()
}

func (c *Connection) Metrics() peer.Metrics {
	c.metricsMu.RLock()
	defer c.metricsMu.RUnlock()
	return c.metrics
}

func (c *Connection) Close() error {
	c.connected.Store(false)
	return c.conn.Close(websocket.StatusNormalClosure, "pool closing")
}
