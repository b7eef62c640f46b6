package wire

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"relaygate.dev/peerpool"
	"relaygate.dev/utils/context"
)

// fakePeerServer speaks the same msgpack RPC framing Client.call expects,
// replying based on the request's Method field.
func fakePeerServer(t *testing.T, handle func(rpcRequest) rpcResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				conn, err := websocket.Accept(w, r, nil)
				if err != nil {
					return
				}
				defer conn.Close(websocket.StatusNormalClosure, "")
				for {
					_, data, err := conn.Read(r.Context())
					if err != nil {
						return
					}
					var req rpcRequest
					if err = msgpack.Unmarshal(data, &req); err != nil {
						return
					}
					resp := handle(req)
					raw, err := msgpack.Marshal(resp)
					if err != nil {
						return
					}
					if err = conn.Write(r.Context(), websocket.MessageBinary, raw); err != nil {
						return
					}
				}
			},
		),
	)
}

type staticDialer struct{ url string }

func (d *staticDialer) Dial(c context.T, peerID string) (*websocket.Conn, string, error) {
	conn, _, err := websocket.Dial(c, d.url, nil)
	if err != nil {
		return nil, "", err
	}
	return conn, d.url, nil
}

func newTestClient(t *testing.T, handle func(rpcRequest) rpcResponse) *Client {
	t.Helper()
	srv := fakePeerServer(t, handle)
	t.Cleanup(srv.Close)
	dialer := &staticDialer{url: "ws" + srv.URL[len("http"):]}
	pool := peerpool.New(dialer, nil, time.Second, time.Minute)
	conn, err := pool.GetConnection(context.Bg(), "peer-1")
	require.NoError(t, err)
	return NewClient(conn)
}

func TestClientForwardSuccess(t *testing.T) {
	client := newTestClient(
		t, func(req rpcRequest) rpcResponse {
			require.Equal(t, "forward", req.Method)
			require.Equal(t, "r1", req.RelayKey)
			return rpcResponse{Ok: true}
		},
	)
	err := client.Forward(context.Bg(), "r1", []byte("frame"), "conn-key", "auth")
	require.NoError(t, err)
}

func TestClientForwardErrorResponse(t *testing.T) {
	client := newTestClient(
		t, func(req rpcRequest) rpcResponse {
			return rpcResponse{Ok: false, Error: "not authorized"}
		},
	)
	err := client.Forward(context.Bg(), "r1", []byte("frame"), "conn-key", "auth")
	require.ErrorContains(t, err, "not authorized")
}

func TestClientPollEventsReturnsFramesAndCursor(t *testing.T) {
	client := newTestClient(
		t, func(req rpcRequest) rpcResponse {
			require.Equal(t, "pollEvents", req.Method)
			require.Equal(t, "cursor-0", req.Cursor)
			return rpcResponse{
				Ok: true, Frames: [][]byte{[]byte("a"), []byte("b")}, Cursor: "cursor-1",
			}
		},
	)
	frames, cursor, err := client.PollEvents(context.Bg(), "r1", "conn-key", "cursor-0")
	require.NoError(t, err)
	require.Equal(t, "cursor-1", cursor)
	require.Len(t, frames, 2)
	require.Equal(t, "a", string(frames[0].Payload))
	require.Equal(t, "r1", frames[0].RelayKey)
}

func TestClientFetchBlobReturnsBody(t *testing.T) {
	client := newTestClient(
		t, func(req rpcRequest) rpcResponse {
			require.Equal(t, "fetchBlob", req.Method)
			require.Equal(t, "blob-id", req.Identifier)
			return rpcResponse{Ok: true, Body: []byte("blob-bytes")}
		},
	)
	body, err := client.FetchBlob(context.Bg(), "r1", "blob-id")
	require.NoError(t, err)
	require.Equal(t, "blob-bytes", string(body))
}

func TestClientPostRequestReturnsBody(t *testing.T) {
	client := newTestClient(
		t, func(req rpcRequest) rpcResponse {
			require.Equal(t, "postRequest", req.Method)
			require.Equal(t, "/gateway/pending-writes", req.Path)
			return rpcResponse{Ok: true, Body: []byte("ack")}
		},
	)
	body, err := client.PostRequest(context.Bg(), "r1", "/gateway/pending-writes", []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, "ack", string(body))
}
