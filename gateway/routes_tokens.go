package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"relaygate.dev/helpers"
	"relaygate.dev/token"
)

type signedTokenRequest struct {
	RelayKey       string   `json:"relayKey"`
	RelayAuthToken string   `json:"relayAuthToken,omitempty"`
	Pubkey         string   `json:"pubkey,omitempty"`
	Scope          []string `json:"scope,omitempty"`
	TtlSeconds     int      `json:"ttlSeconds,omitempty"`
	Token          string   `json:"token,omitempty"`
	Reason         string   `json:"reason,omitempty"`
	Signature      string   `json:"signature"`
}

type tokenOutput struct {
	Body struct {
		Token     string `json:"token"`
		ExpiresAt int64  `json:"expiresAt"`
		Sequence  uint64 `json:"sequence"`
	}
}

func (s *Server) defaultTTL(requested int) time.Duration {
	if requested <= 0 {
		return s.cfg.DefaultTokenTTL
	}
	return time.Duration(requested) * time.Second
}

func (s *Server) registerTokenRoutes() {
	huma.Register(
		s.api, huma.Operation{
			OperationID: "issue-relay-token",
			Method:      http.MethodPost,
			Path:        "/api/relay-tokens/issue",
			Summary:     "Issue a relay bearer token",
			Description: helpers.GenerateDescription(
				"Issues a signed, opaque bearer token scoped to one relay.",
				[]string{"issue"},
			),
		}, func(c context.Context, in *struct{ Body signedTokenRequest }) (
			*tokenOutput, error,
		) {
			if !s.verifySignature([]byte(in.Body.RelayKey), in.Body.Signature) {
				return nil, huma.Error401Unauthorized("signature mismatch")
			}
			record, err := s.tokens.IssueToken(
				c, in.Body.RelayKey, token.IssueOptions{
					RelayAuthToken: in.Body.RelayAuthToken,
					Pubkey:         in.Body.Pubkey,
					Scope:          in.Body.Scope,
					TTL:            s.defaultTTL(in.Body.TtlSeconds),
				},
			)
			if err != nil {
				return nil, huma.Error400BadRequest(token.ReasonOf(err))
			}
			out := &tokenOutput{}
			out.Body.Token = record.Token
			out.Body.ExpiresAt = record.ExpiresAt.Unix()
			out.Body.Sequence = record.Sequence
			return out, nil
		},
	)

	huma.Register(
		s.api, huma.Operation{
			OperationID: "refresh-relay-token",
			Method:      http.MethodPost,
			Path:        "/api/relay-tokens/refresh",
			Summary:     "Refresh a relay bearer token",
		}, func(c context.Context, in *struct{ Body signedTokenRequest }) (
			*tokenOutput, error,
		) {
			if !s.verifySignature([]byte(in.Body.RelayKey), in.Body.Signature) {
				return nil, huma.Error401Unauthorized("signature mismatch")
			}
			record, err := s.tokens.RefreshToken(
				c, in.Body.RelayKey, in.Body.Token, s.defaultTTL(in.Body.TtlSeconds),
			)
			if err != nil {
				return nil, huma.Error400BadRequest(token.ReasonOf(err))
			}
			out := &tokenOutput{}
			out.Body.Token = record.Token
			out.Body.ExpiresAt = record.ExpiresAt.Unix()
			out.Body.Sequence = record.Sequence
			return out, nil
		},
	)

	huma.Register(
		s.api, huma.Operation{
			OperationID: "revoke-relay-token",
			Method:      http.MethodPost,
			Path:        "/api/relay-tokens/revoke",
			Summary:     "Revoke a relay's active bearer token",
		}, func(c context.Context, in *struct{ Body signedTokenRequest }) (
			*struct {
				Body struct {
					Sequence uint64 `json:"sequence"`
				}
			}, error,
		) {
			if !s.verifySignature([]byte(in.Body.RelayKey), in.Body.Signature) {
				return nil, huma.Error401Unauthorized("signature mismatch")
			}
			sequence, err := s.tokens.RevokeToken(c, in.Body.RelayKey, in.Body.Reason)
			if err != nil {
				return nil, huma.Error400BadRequest(token.ReasonOf(err))
			}
			s.sessions.BroadcastRevocation(in.Body.RelayKey, in.Body.Reason, sequence)
			out := &struct {
				Body struct {
					Sequence uint64 `json:"sequence"`
				}
			}{}
			out.Body.Sequence = sequence
			return out, nil
		},
	)
}
