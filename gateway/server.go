// Package gateway implements the Gateway Server (spec §4.1): the HTTP and
// WebSocket front-end, request parsing and process lifecycle. Grounded on
// the teacher's relay server's init/start/shutdown shape (app/realy), with
// huma/v2 registered through humachi over a chi router rather than the
// teacher's hand-rolled ServeMux, since the fronted relay is reached over a
// dispatch layer rather than served in-process.
package gateway

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/netutil"

	"relaygate.dev/app/version"
	"relaygate.dev/dispatcher"
	"relaygate.dev/interfaces/registry"
	"relaygate.dev/interfaces/store"
	"relaygate.dev/pendingwrite"
	"relaygate.dev/peerpool"
	"relaygate.dev/session"
	"relaygate.dev/token"
	gocontext "relaygate.dev/utils/context"
	"relaygate.dev/utils/chk"
	"relaygate.dev/utils/log"
)

// Config is the Gateway Server's runtime configuration (spec §6 environment
// / configuration).
type Config struct {
	Host             string
	Port             int
	PublicBaseURL    string
	SharedSecret     []byte
	MaxConnections   int
	DefaultTokenTTL  time.Duration
	RefreshWindow    time.Duration
	DispatcherEnabled bool
	TokenEnforcement bool
}

// Server is the Gateway Server.
type Server struct {
	cfg Config

	ctx    gocontext.T
	cancel gocontext.F

	router chi.Router
	api    huma.API

	registrations registry.I
	tokens        *token.Service
	peers         *peerpool.Pool
	dispatcher    *dispatcher.Dispatcher
	sessions      *session.Manager
	pending       *pendingwrite.Pusher
	peerSource    *PeerSource

	replicasMu sync.RWMutex
	replicas   map[string]store.I

	httpServer *http.Server
}

// New wires a Server out of its already-constructed dependencies (spec §2
// leaves-first dependency order: each of these is built before the Gateway
// Server itself).
func New(
	cfg Config, registrations registry.I, tokens *token.Service,
	peers *peerpool.Pool, dispatch *dispatcher.Dispatcher,
	pending *pendingwrite.Pusher,
) *Server {
	ctx, cancel := gocontext.Cancel(gocontext.Bg())
	s := &Server{
		cfg:           cfg,
		ctx:           ctx,
		cancel:        cancel,
		registrations: registrations,
		tokens:        tokens,
		peers:         peers,
		dispatcher:    dispatch,
		pending:       pending,
		replicas:      make(map[string]store.I),
	}
	s.peerSource = NewPeerSource(peers)
	s.router = chi.NewRouter()
	config := huma.DefaultConfig("relaygate", version.V)
	config.Info.Description = version.Description
	s.api = humachi.New(s.router, config)
	s.registerRoutes()
	return s
}

// AttachSessions wires the Session Manager after construction, breaking the
// Server/Manager construction cycle (the Manager needs the Server as its
// ReplicaLookup; the Server's routes need the Manager to broadcast token
// revocations and admit WebSocket upgrades).
func (s *Server) AttachSessions(sessions *session.Manager) {
	s.sessions = sessions
}

// PeerSource exposes the Server's peer RPC source for components built
// before the Server (e.g. the Pending-write Pusher).
func (s *Server) PeerSource() *PeerSource {
	return s.peerSource
}

// RegisterReplica makes a local replica reachable for relayKey (spec §4.7).
func (s *Server) RegisterReplica(relayKey string, adapter store.I) {
	s.replicasMu.Lock()
	defer s.replicasMu.Unlock()
	s.replicas[relayKey] = adapter
}

// Replica implements session.ReplicaLookup.
func (s *Server) Replica(relayKey string) (store.I, bool) {
	s.replicasMu.RLock()
	defer s.replicasMu.RUnlock()
	r, ok := s.replicas[relayKey]
	return r, ok
}

func (s *Server) descriptorFor(c gocontext.T, relayKey string) *registry.Descriptor {
	d, err := s.registrations.GetRelay(c, relayKey)
	if chk.T(err) {
		return nil
	}
	return d
}

func (s *Server) registerRoutes() {
	s.registerRelayRoutes()
	s.registerTokenRoutes()
	s.registerDriveRoutes()
	s.registerHealthRoutes()
	s.registerWebSocketRoute()
}

// Init runs before Start, allowing subsystems to initialize (spec §4.1
// lifecycle: init -> start -> stop).
func (s *Server) Init() error {
	return nil
}

// Start begins serving HTTP/WebSocket traffic (spec §4.1 lifecycle).
func (s *Server) Start(started ...chan bool) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	log.I.F("starting gateway listener at %s", addr)
	ln, err := net.Listen("tcp", addr)
	if chk.E(err) {
		return err
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	handler := cors.Default().Handler(s.router)
	s.httpServer = &http.Server{
		Handler:           handler,
		Addr:              addr,
		ReadHeaderTimeout: 7 * time.Second,
		IdleTimeout:       28 * time.Second,
	}
	for _, c := range started {
		close(c)
	}
	if err = s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop rejects new dispatcher jobs, shuts the HTTP server down (which stops
// accepting connections), destroys the peer pool, disconnects the
// registration store and closes every local replica (spec §4.1 lifecycle:
// stop). WebSocket sessions that are already upgraded are not closed by it,
// and their polling timers are not stopped.
func (s *Server) Stop() {
	log.I.Ln("stopping gateway server")
	s.dispatcher.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); chk.E(err) {
		}
	}
	s.peers.Destroy()
	if err := s.registrations.Disconnect(); chk.E(err) {
	}
	s.replicasMu.RLock()
	for relayKey, r := range s.replicas {
		if err := r.Close(); chk.E(err) {
			log.W.F("error closing replica for %s: %v", relayKey, err)
		}
	}
	s.replicasMu.RUnlock()
	s.cancel()
}
