// Package wire implements the msgpack-framed Peer RPC transport (spec §6):
// forward, pollEvents, fetchBlob and postRequest, carried over one pooled
// peer-mesh connection. Grounded on the teacher's preference for msgpack as
// the internal wire format (go.mod: vmihailenco/msgpack/v5).
package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"relaygate.dev/interfaces/peer"
	"relaygate.dev/peerpool"
	"relaygate.dev/utils/context"
)

// rpcRequest is the msgpack envelope sent over the peer-mesh connection for
// every RPC call.
type rpcRequest struct {
	Method         string `msgpack:"method"`
	RelayKey       string `msgpack:"relayKey"`
	ConnectionKey  string `msgpack:"connectionKey,omitempty"`
	RelayAuthToken string `msgpack:"relayAuthToken,omitempty"`
	Path           string `msgpack:"path,omitempty"`
	Cursor         string `msgpack:"cursor,omitempty"`
	Identifier     string `msgpack:"identifier,omitempty"`
	Body           []byte `msgpack:"body,omitempty"`
}

// rpcResponse is the msgpack envelope a peer replies with.
type rpcResponse struct {
	Ok       bool     `msgpack:"ok"`
	Error    string   `msgpack:"error,omitempty"`
	Body     []byte   `msgpack:"body,omitempty"`
	Frames   [][]byte `msgpack:"frames,omitempty"`
	Cursor   string   `msgpack:"cursor,omitempty"`
	Metrics  peer.Metrics `msgpack:"metrics,omitempty"`
}

// Client adapts a pooled peer-mesh connection to the interfaces/peer.I RPC
// surface.
type Client struct {
	conn *peerpool.Connection
}

// NewClient wraps conn.
func NewClient(conn *peerpool.Connection) *Client {
	return &Client{conn: conn}
}

func (c *Client) Id() string { return c.conn.Id() }

func (c *Client) Alive() bool { return c.conn.Alive() }

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) Metrics() peer.Metrics { return c.conn.Metrics() }

func (c *Client) call(ctx context.T, req rpcRequest) (rpcResponse, error) {
	raw, err := msgpack.Marshal(req)
	if err != nil {
		return rpcResponse{}, err
	}
	// In the one-connection-per-peer model, request/response correlation
	// over the shared transport is handled by the transport layer's own
	// framing (external to this wrapper); here we model the call as a
	// single write with the reply delivered through the same channel the
	// transport exposes for synchronous calls.
	if err = c.conn.SendRPC(ctx, raw); err != nil {
		return rpcResponse{}, err
	}
	replyRaw, err := c.conn.RecvRPC(ctx)
	if err != nil {
		return rpcResponse{}, err
	}
	var resp rpcResponse
	if err = msgpack.Unmarshal(replyRaw, &resp); err != nil {
		return rpcResponse{}, err
	}
	if !resp.Ok {
		return resp, fmt.Errorf("peer rpc error: %s", resp.Error)
	}
	return resp, nil
}

// Forward implements interfaces/peer.I.
func (c *Client) Forward(
	ctx context.T, relayKey string, frame []byte, connectionKey string,
	relayAuthToken string,
) error {
	_, err := c.call(ctx, rpcRequest{
		Method: "forward", RelayKey: relayKey, Body: frame,
		ConnectionKey: connectionKey, RelayAuthToken: relayAuthToken,
	})
	return err
}

// PollEvents implements interfaces/peer.I.
func (c *Client) PollEvents(
	ctx context.T, relayKey, connectionKey, cursor string,
) ([]peer.Frame, string, error) {
	resp, err := c.call(ctx, rpcRequest{
		Method: "pollEvents", RelayKey: relayKey,
		ConnectionKey: connectionKey, Cursor: cursor,
	})
	if err != nil {
		return nil, "", err
	}
	frames := make([]peer.Frame, 0, len(resp.Frames))
	for _, f := range resp.Frames {
		frames = append(frames, peer.Frame{RelayKey: relayKey, Payload: f})
	}
	return frames, resp.Cursor, nil
}

// FetchBlob implements interfaces/peer.I.
func (c *Client) FetchBlob(
	ctx context.T, relayKey, identifier string,
) ([]byte, error) {
	resp, err := c.call(ctx, rpcRequest{
		Method: "fetchBlob", RelayKey: relayKey, Identifier: identifier,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// PostRequest implements interfaces/peer.I.
func (c *Client) PostRequest(
	ctx context.T, relayKey, path string, body []byte,
) ([]byte, error) {
	resp, err := c.call(ctx, rpcRequest{
		Method: "postRequest", RelayKey: relayKey, Path: path, Body: body,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

var _ peer.I = (*Client)(nil)
