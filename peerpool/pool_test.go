package peerpool

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"relaygate.dev/interfaces/peer"
	"relaygate.dev/utils/context"
)

// echoServer accepts one websocket connection per request and echoes binary
// frames back, mirroring how a worker relay's peer-mesh listener behaves.
func echoServer(t *testing.T) *httptest.Server {
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
					typ, data, err := conn.Read(r.Context())
					if err != nil {
						return
					}
					if err = conn.Write(r.Context(), typ, data); err != nil {
						return
					}
				}
			},
		),
	)
}

type staticDialer struct {
	url string
}

func (d *staticDialer) Dial(c context.T, peerID string) (*websocket.Conn, string, error) {
	conn, _, err := websocket.Dial(c, d.url, nil)
	if err != nil {
		return nil, "", err
	}
	return conn, d.url, nil
}

type fakeSink struct {
	reports map[string]peer.Metrics
}

func (f *fakeSink) ReportPeerMetrics(peerID string, m peer.Metrics) {
	f.reports[peerID] = m
}

func TestGetConnectionDialsOnceAndReuses(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()
	dialer := &staticDialer{url: "ws" + srv.URL[len("http"):]}
	pool := New(dialer, nil, time.Second, time.Minute)
	c := context.Bg()

	first, err := pool.GetConnection(c, "peer-1")
	require.NoError(t, err)
	require.True(t, first.Alive())

	second, err := pool.GetConnection(c, "peer-1")
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestSendRPCRoundTrip(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()
	dialer := &staticDialer{url: "ws" + srv.URL[len("http"):]}
	pool := New(dialer, nil, time.Second, time.Minute)
	c := context.Bg()

	conn, err := pool.GetConnection(c, "peer-1")
	require.NoError(t, err)

	require.NoError(t, conn.SendRPC(c, []byte("hello")))
	data, err := conn.RecvRPC(c)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestTelemetryReceivedForwardsToSink(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()
	dialer := &staticDialer{url: "ws" + srv.URL[len("http"):]}
	sink := &fakeSink{reports: make(map[string]peer.Metrics)}
	pool := New(dialer, sink, time.Second, time.Minute)
	c := context.Bg()

	_, err := pool.GetConnection(c, "peer-1")
	require.NoError(t, err)

	m := peer.Metrics{PeerId: "peer-1", AvgLatencyMs: 42, QueueDepth: 3, CapacityRemain: 10}
	pool.TelemetryReceived("peer-1", m)
	require.Equal(t, m, sink.reports["peer-1"])

	conn, ok := pool.conns.Load("peer-1")
	require.True(t, ok)
	require.Equal(t, m, conn.Metrics())
}

func TestDestroyClosesAllConnections(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()
	dialer := &staticDialer{url: "ws" + srv.URL[len("http"):]}
	pool := New(dialer, nil, time.Second, time.Minute)
	c := context.Bg()

	conn, err := pool.GetConnection(c, "peer-1")
	require.NoError(t, err)
	require.True(t, conn.Alive())

	pool.Destroy()
	require.False(t, conn.Alive())
	_, ok := pool.conns.Load("peer-1")
	require.False(t, ok)
}

func TestGetConnectionDialErrorPropagates(t *testing.T) {
	dialer := &staticDialer{url: "ws://127.0.0.1:1/unreachable"}
	pool := New(dialer, nil, time.Second, time.Minute)
	c := context.Bg()

	_, err := pool.GetConnection(c, "peer-down")
	require.Error(t, err)
}
