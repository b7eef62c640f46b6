// Package ws wraps the client-facing WebSocket connection (fasthttp/websocket)
// with the bookkeeping the Session Manager needs: the real remote address
// (behind a reverse proxy) and a single writer mutex, since a session streams
// REQ results while a NOTICE or TOKEN control frame can fire concurrently.
package ws

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/websocket"

	"relaygate.dev/helpers"
	"relaygate.dev/utils/atomic"
)

// Listener is one client-facing WebSocket connection.
type Listener struct {
	mutex   sync.Mutex
	Conn    *websocket.Conn
	Request *http.Request
	remote  atomic.String
}

// NewListener wraps conn, capturing the real remote address from req.
func NewListener(conn *websocket.Conn, req *http.Request) (l *Listener) {
	l = &Listener{Conn: conn, Request: req}
	l.setRemoteFromReq(req)
	return
}

func (l *Listener) setRemoteFromReq(r *http.Request) {
	rr := helpers.GetRemoteFromReq(r)
	if rr == "" {
		// fall back to the raw peer address, probably a proxy unless the
		// gateway is directly internet-facing
		rr = l.Conn.NetConn().RemoteAddr().String()
	}
	l.remote.Store(rr)
}

// Write implements io.Writer by sending p as one text message.
func (l *Listener) Write(p []byte) (n int, err error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	err = l.Conn.WriteMessage(websocket.TextMessage, p)
	if err != nil {
		if strings.Contains(err.Error(), "close sent") {
			_ = l.Conn.Close()
			return len(p), nil
		}
		return 0, err
	}
	return len(p), nil
}

// WriteMessage sends a message of the given websocket message type.
func (l *Listener) WriteMessage(t int, b []byte) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.Conn.WriteMessage(t, b)
}

// WriteClose sends a close frame with the given application close code and
// reason — the mechanism behind the codes in spec §4.9.
func (l *Listener) WriteClose(code int, reason string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	return l.Conn.WriteControl(
		websocket.CloseMessage, msg, time.Now().Add(5*time.Second),
	)
}

// RealRemote returns the stored remote address of the client.
func (l *Listener) RealRemote() string { return l.remote.Load() }

// Req returns the originating HTTP upgrade request.
func (l *Listener) Req() *http.Request { return l.Request }

// Close tears down the underlying connection.
func (l *Listener) Close() error { return l.Conn.Close() }
