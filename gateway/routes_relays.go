package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"relaygate.dev/helpers"
	"relaygate.dev/interfaces/registry"
	"relaygate.dev/utils/chk"
)

// registrationPayload is the signed body of POST /api/relays (spec §6).
type registrationPayload struct {
	RelayKey   string `json:"relayKey"`
	Identifier string `json:"identifier"`
	Peers      []string `json:"peers"`
	Metadata   registry.Metadata `json:"metadata"`
}

type registrationEnvelope struct {
	Registration registrationPayload `json:"registration"`
	Signature    string              `json:"signature"`
}

func (s *Server) verifySignature(signed []byte, signatureHex string) bool {
	mac := hmac.New(sha256.New, s.cfg.SharedSecret)
	mac.Write(signed)
	expected := mac.Sum(nil)
	given, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(expected, given) == 1
}

type upsertRelayInput struct {
	Body registrationEnvelope
}

type upsertRelayOutput struct {
	Body struct {
		RelayKey    string `json:"relayKey"`
		GatewayPath string `json:"gatewayPath"`
	}
}

func (s *Server) registerRelayRoutes() {
	huma.Register(
		s.api, huma.Operation{
			OperationID: "upsert-relay",
			Method:      http.MethodPost,
			Path:        "/api/relays",
			Summary:     "Register or refresh a relay descriptor",
			Description: helpers.GenerateDescription(
				"Creates or updates a RelayDescriptor, validated against the "+
					"shared secret.", []string{"admin"},
			),
		}, func(c context.Context, in *upsertRelayInput) (
			*upsertRelayOutput, error,
		) {
			raw, err := json.Marshal(in.Body.Registration)
			if chk.E(err) {
				return nil, huma.Error500InternalServerError("encode error")
			}
			if !s.verifySignature(raw, in.Body.Signature) {
				return nil, huma.Error401Unauthorized("signature mismatch")
			}
			reg := in.Body.Registration
			desc := &registry.Descriptor{
				RelayKey:   reg.RelayKey,
				Identifier: reg.Identifier,
				Peers:      reg.Peers,
				Metadata:   reg.Metadata,
			}
			if err = s.registrations.UpsertRelay(c, desc); chk.E(err) {
				return nil, huma.Error500InternalServerError("registration store error")
			}
			prefix, tail := helpers.ToGatewayPath(reg.RelayKey)
			out := &upsertRelayOutput{}
			out.Body.RelayKey = reg.RelayKey
			out.Body.GatewayPath = "/" + prefix + "/" + tail
			return out, nil
		},
	)

	huma.Register(
		s.api, huma.Operation{
			OperationID: "delete-relay",
			Method:      http.MethodDelete,
			Path:        "/api/relays/{relayKey}",
			Summary:     "Delete a relay descriptor",
		}, func(c context.Context, in *struct {
			RelayKey  string `path:"relayKey"`
			Signature string `header:"X-Signature"`
		}) (*struct{}, error) {
			if !s.verifySignature([]byte(in.RelayKey), in.Signature) {
				return nil, huma.Error401Unauthorized("signature mismatch")
			}
			if err := s.registrations.RemoveRelay(c, in.RelayKey); chk.E(err) {
				return nil, huma.Error500InternalServerError("registration store error")
			}
			return nil, nil
		},
	)
}
