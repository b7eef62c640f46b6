package gateway

import (
	"encoding/json"
	"net/http"
	"sort"

	"relaygate.dev/app/version"
	"relaygate.dev/protocol/relayinfo"
)

// handleRelayInfo answers a NIP-11 "application/nostr+json" request on a
// relay path, built from the RelayDescriptor's metadata (spec §9 supplement:
// NIP-11 relay info surfaced for replica-only relays, made explicit as an
// operation of §4.1).
func (s *Server) handleRelayInfo(w http.ResponseWriter, r *http.Request, relayKey string) {
	desc := s.descriptorFor(r.Context(), relayKey)
	if desc == nil {
		http.NotFound(w, r)
		return
	}
	nips := relayinfo.GetList(
		relayinfo.BasicProtocol, relayinfo.EventDeletion,
		relayinfo.RelayInformationDocument, relayinfo.GenericTagQueries,
		relayinfo.EventTreatment, relayinfo.ParameterizedReplaceableEvents,
	)
	authRequired := desc.Metadata.AuthRequired()
	if authRequired {
		nips = append(nips, relayinfo.Authentication)
	}
	sort.Sort(nips)
	doc := relayinfo.T{
		Name:        desc.Identifier,
		Description: version.Description,
		Software:    version.URL,
		Version:     version.V,
		Nips:        nips,
		Limitation:  relayinfo.Limits{AuthRequired: authRequired},
	}
	w.Header().Set("Content-Type", "application/nostr+json")
	_ = json.NewEncoder(w).Encode(doc)
}
