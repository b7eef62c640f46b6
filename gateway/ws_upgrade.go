package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/fasthttp/websocket"

	"relaygate.dev/helpers"
	"relaygate.dev/protocol/ws"
	"relaygate.dev/session"
	"relaygate.dev/utils/chk"
	"relaygate.dev/utils/log"
	"relaygate.dev/utils/units"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingWait       = 30 * time.Second
	wsMaxMessageSize = 1 * units.Mb
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// registerWebSocketRoute wires the client-facing WebSocket path, matching
// anything under the relay prefix; relayKey is recovered from the path tail
// (spec §9 open question 1) and the bearer token from the query string.
func (s *Server) registerWebSocketRoute() {
	s.router.Get("/*", s.handleUpgrade)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	if path == "" || path == "health" || strings.HasPrefix(path, "api/") ||
		strings.HasPrefix(path, "drive/") {
		http.NotFound(w, r)
		return
	}
	i := strings.IndexByte(path, '/')
	var relayKey string
	if i < 0 {
		relayKey = path
	} else {
		relayKey = helpers.ToColonIdentifier(path[:i], path[i+1:])
	}

	if strings.Contains(r.Header.Get("Accept"), "application/nostr+json") {
		s.handleRelayInfo(w, r, relayKey)
		return
	}

	presentedToken := r.URL.Query().Get("token")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.W.F("failed to upgrade websocket for %s: %v", relayKey, err)
		return
	}
	listener := ws.NewListener(conn, r)
	conn.SetReadLimit(wsMaxMessageSize)
	if err = conn.SetReadDeadline(time.Now().Add(wsPongWait)); chk.E(err) {
	}
	conn.SetPongHandler(
		func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		},
	)

	sess, closeCode, closeReason := s.sessions.Admit(
		s.ctx, relayKey, presentedToken, listener,
	)
	if sess == nil {
		if err = listener.WriteClose(closeCode, closeReason); chk.E(err) {
		}
		_ = listener.Close()
		return
	}

	ticker := time.NewTicker(wsPingWait)
	defer ticker.Stop()
	go s.pingLoop(conn, ticker, relayKey)

	for {
		typ, message, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if typ == websocket.PingMessage {
			continue
		}
		sess.Enqueue(message)
	}
	sess.Close(session.CloseInternal, "client disconnected")
}

func (s *Server) pingLoop(conn *websocket.Conn, ticker *time.Ticker, relayKey string) {
	for range ticker.C {
		if err := conn.WriteControl(
			websocket.PingMessage, nil, time.Now().Add(wsWriteWait),
		); err != nil {
			log.T.F("ping failed for %s: %v", relayKey, err)
			return
		}
	}
}
