// Package main is the public relay gateway: an HTTP/WebSocket front-end that
// admits client sessions and dispatches them across a pool of worker relays.
// Configuration is via environment variables or an optional .env file.
package main

import (
	"encoding/hex"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/pkg/profile"
	"github.com/redis/go-redis/v9"

	"relaygate.dev/app"
	"relaygate.dev/app/config"
	"relaygate.dev/app/version"
	"relaygate.dev/dispatcher"
	"relaygate.dev/gateway"
	"relaygate.dev/interfaces/registry"
	"relaygate.dev/pendingwrite"
	"relaygate.dev/peerpool"
	registrystore "relaygate.dev/registry"
	"relaygate.dev/session"
	"relaygate.dev/token"
	"relaygate.dev/utils/chk"
	"relaygate.dev/utils/context"
	"relaygate.dev/utils/interrupt"
	"relaygate.dev/utils/log"
	"relaygate.dev/utils/lol"
	"relaygate.dev/wire"
)

const (
	peerPingTimeout     = 10 * time.Second
	peerStaleAfter      = 2 * time.Minute
	registryFallbackTTL = 2 * time.Minute
)

// runHealthSweep periodically pings every pooled peer connection, pruning
// unresponsive or idle ones (spec §4.3 healthSweep).
func runHealthSweep(c context.T, pool *peerpool.Pool) {
	ticker := time.NewTicker(peerPingTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-c.Done():
			return
		case <-ticker.C:
			pool.HealthSweep(c)
		}
	}
}

// runRegistryPrune periodically sweeps expired relay descriptors and token
// metadata out of the Registration Store (spec §4.2 pruneExpired).
func runRegistryPrune(c context.T, registrations registry.I) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.Done():
			return
		case <-ticker.C:
			if removed, err := registrations.PruneExpired(c); err == nil && removed > 0 {
				log.D.F("registration store: pruned %d expired entries", removed)
			}
		}
	}
}

func newRegistrations(cfg *config.C) registry.I {
	if cfg.RegistryRedisURL == "" {
		log.I.Ln("no redis URL configured, using in-memory registration store")
		return registrystore.NewMemory(cfg.RegistryTTL)
	}
	opts, err := redis.ParseURL(cfg.RegistryRedisURL)
	if chk.E(err) {
		log.F.F("invalid RELAYGATE_REGISTRY_REDIS_URL: %v", err)
		os.Exit(1)
	}
	client := redis.NewClient(opts)
	return registrystore.NewRemoteCache(
		client, cfg.AppName, cfg.RegistryTTL, registryFallbackTTL,
	)
}

func main() {
	var err error
	var cfg *config.C
	if cfg, err = config.New(); chk.T(err) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %s\n\n", err)
		}
		config.PrintHelp(cfg, os.Stderr)
		os.Exit(0)
	}
	log.I.F("starting %s %s", cfg.AppName, version.V)
	if config.GetEnv() {
		config.PrintEnv(cfg, os.Stdout)
		os.Exit(0)
	}
	if config.HelpRequested() {
		config.PrintHelp(cfg, os.Stderr)
		os.Exit(0)
	}
	lol.SetLogLevel(cfg.LogLevel)
	if cfg.Pprof {
		defer profile.Start(profile.MemProfile).Stop()
		go func() {
			chk.E(http.ListenAndServe("127.0.0.1:6060", nil))
		}()
	}
	if cfg.SharedSecretHex == "" {
		log.F.Ln("RELAYGATE_SHARED_SECRET is required")
		os.Exit(1)
	}
	sharedSecret, err := hex.DecodeString(cfg.SharedSecretHex)
	if chk.E(err) {
		os.Exit(1)
	}

	c, cancel := context.Cancel(context.Bg())
	go app.MonitorResources(c)

	// Registration Store (spec §4.2).
	registrations := newRegistrations(cfg)

	// Relay Token Service (spec §4.6).
	tokens, err := token.NewService(sharedSecret, registrations, cfg.RefreshWindow)
	if chk.E(err) {
		os.Exit(1)
	}

	// Peer Pool (spec §4.3).
	addressBook := wire.NewRegistryAddressBook(registrations)
	dialer := wire.NewDialer(addressBook)

	// Relay Dispatcher (spec §4.5), wired as the pool's telemetry sink so
	// every reported peer metric feeds the scoring formula.
	policy := dispatcher.DefaultPolicy()
	dispatch := dispatcher.New(policy)
	pool := peerpool.New(dialer, dispatch, peerPingTimeout, peerStaleAfter)

	// Gateway Server (spec §4.1): HTTP/WebSocket front-end, registered
	// before the Session Manager exists since the Manager needs the Server
	// as its replica lookup and the Server's routes need the Manager.
	pending := pendingwrite.New(registrations, gateway.NewPeerSource(pool))
	server := gateway.New(
		gateway.Config{
			Host:              cfg.Listen,
			Port:              cfg.Port,
			PublicBaseURL:     cfg.PublicBaseURL,
			SharedSecret:      sharedSecret,
			MaxConnections:    cfg.MaxConnections,
			DefaultTokenTTL:   cfg.DefaultTokenTTL,
			RefreshWindow:     cfg.RefreshWindow,
			DispatcherEnabled: cfg.DispatcherEnabled,
			TokenEnforcement:  cfg.TokenEnforcement,
		},
		registrations, tokens, pool, dispatch, pending,
	)
	sessions := session.New(
		registrations, tokens, server.PeerSource(), dispatch, server,
		pending, cfg.DispatcherEnabled,
	)
	server.AttachSessions(sessions)

	go runHealthSweep(c, pool)
	go runRegistryPrune(c, registrations)

	interrupt.AddHandler(func() { server.Stop() })
	if err = server.Init(); chk.E(err) {
		log.F.F("failed to initialize gateway: %v", err)
		os.Exit(1)
	}
	if err = server.Start(); chk.E(err) {
		log.F.F("gateway terminated: %v", err)
		os.Exit(1)
	}
	cancel()
}
