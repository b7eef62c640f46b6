package gateway

import (
	"relaygate.dev/interfaces/peer"
	"relaygate.dev/peerpool"
	"relaygate.dev/utils/context"
	"relaygate.dev/wire"
)

// PeerSource adapts the Peer Pool to the interfaces/peer.I RPC surface,
// implementing session.PeerSource and pendingwrite.PeerSource.
type PeerSource struct {
	pool *peerpool.Pool
}

// NewPeerSource builds a PeerSource over pool.
func NewPeerSource(pool *peerpool.Pool) *PeerSource {
	return &PeerSource{pool: pool}
}

func (p *PeerSource) Peer(c context.T, peerID string) (peer.I, error) {
	conn, err := p.pool.GetConnection(c, peerID)
	if err != nil {
		return nil, err
	}
	return wire.NewClient(conn), nil
}
