// Package peer is the capability interface for a worker-relay connection
// held by the Peer Pool (spec §4.3, §6): the RPC surface the Dispatcher and
// Pending-write Pusher use to talk to a peer over its msgpack-framed
// connection, independent of whether that connection was dialed outbound or
// accepted inbound.
package peer

import (
	"relaygate.dev/utils/context"
)

// Metrics is the health telemetry a peer reports on its own connection
// (spec §4.3 PeerTelemetry), consumed by the Dispatcher's scoring formula.
type Metrics struct {
	PeerId         string  `json:"peerId"`
	QueueDepth     int     `json:"queueDepth"`
	AvgLatencyMs   float64 `json:"avgLatencyMs"`
	ErrorRate      float64 `json:"errorRate"`
	CapacityRemain int     `json:"capacityRemaining"`
}

// Frame is one opaque protocol frame forwarded to or polled from a peer.
type Frame struct {
	RelayKey string
	Payload  []byte
}

// I is the RPC surface a connected peer exposes.
type I interface {
	// Id is the peer's stable PeerId.
	Id() string
	// Forward delivers a client frame to the relay hosted at relayKey,
	// presenting connectionKey and relayAuthToken so the peer can bind the
	// write to the correct session and authorize it (spec §6 forward).
	Forward(c context.T, relayKey string, frame []byte, connectionKey string, relayAuthToken string) error
	// PollEvents long-polls the peer for buffered events destined for
	// connectionKey since the given cursor (spec §6 pollEvents).
	PollEvents(c context.T, relayKey string, connectionKey string, cursor string) ([]Frame, string, error)
	// FetchBlob retrieves a drive object by identifier (spec §6 fetchBlob).
	FetchBlob(c context.T, relayKey string, identifier string) ([]byte, error)
	// PostRequest proxies an arbitrary REST call to the relay's local control
	// surface (spec §6 postRequest).
	PostRequest(c context.T, relayKey string, path string, body []byte) ([]byte, error)
	// Metrics returns the peer's last-reported telemetry snapshot.
	Metrics() Metrics
	// Alive reports whether the underlying transport is still usable.
	Alive() bool
	// Close tears down the connection.
	Close() error
}
