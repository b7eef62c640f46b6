package gateway

import (
	"net/http"
	"strings"

	"relaygate.dev/helpers"
	"relaygate.dev/utils/chk"
	"relaygate.dev/utils/log"
)

// registerDriveRoutes wires GET /drive/{identifier}/{file}: a read-through
// of a content blob from that relay's registered peers, tried in
// registration order with failover to the next peer on error (spec §4.1).
// Every request starts at the first registered peer; the starting peer is
// not rotated between requests.
func (s *Server) registerDriveRoutes() {
	s.router.Get("/drive/*", s.handleDrive)
}

func (s *Server) handleDrive(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path[len("/drive/"):]
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		http.Error(w, "missing file segment", http.StatusBadRequest)
		return
	}
	rawIdentifier, file := path[:i], path[i+1:]
	identifier := helpers.SplitDriveIdentifier(rawIdentifier)

	desc := s.descriptorFor(r.Context(), identifier)
	if desc == nil {
		http.Error(w, "relay not registered", http.StatusNotFound)
		return
	}
	var lastErr error
	for _, peerID := range desc.Peers {
		client, err := s.peerSource.Peer(r.Context(), peerID)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := client.FetchBlob(r.Context(), identifier, file)
		if err != nil {
			lastErr = err
			continue
		}
		if _, err = w.Write(body); chk.E(err) {
		}
		return
	}
	log.W.F("drive read-through failed for %s/%s: %v", identifier, file, lastErr)
	http.Error(w, "no peers available", http.StatusServiceUnavailable)
}
