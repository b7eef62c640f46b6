// Package main is gatewayctl, an admin CLI for registering and
// unregistering relays and for issuing/refreshing/revoking relay bearer
// tokens against a running Gateway Server's signed REST surface (spec §6).
package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/alexflint/go-arg"

	"relaygate.dev/interfaces/registry"
	"relaygate.dev/utils/chk"
	"relaygate.dev/utils/log"
)

type registerCmd struct {
	RelayKey      string   `arg:"required,--relay-key" help:"colon-separated relay identifier, e.g. acme:east-1"`
	Identifier    string   `arg:"--identifier" help:"human-readable relay name"`
	Peers         []string `arg:"--peer" help:"peer id reachable for this relay, may repeat"`
	ConnectionURL string   `arg:"--connection-url" help:"peer-mesh URL this relay's peers dial"`
	GatewayPath   string   `arg:"--gateway-path" help:"client-facing path the relay is reachable under"`
	RequiresAuth  *bool    `arg:"--requires-auth" help:"require a relay bearer token for client admission (defaults to required if omitted)"`
	IsReplica     bool     `arg:"--is-replica" help:"allow local-only serving from a replica when no peers are live"`
}

type unregisterCmd struct {
	RelayKey string `arg:"required,--relay-key"`
}

type issueTokenCmd struct {
	RelayKey       string   `arg:"required,--relay-key"`
	RelayAuthToken string   `arg:"--relay-auth-token"`
	Pubkey         string   `arg:"--pubkey"`
	Scope          []string `arg:"--scope"`
	TTLSeconds     int      `arg:"--ttl-seconds"`
}

type refreshTokenCmd struct {
	RelayKey   string `arg:"required,--relay-key"`
	Token      string `arg:"required,--token"`
	TTLSeconds int    `arg:"--ttl-seconds"`
}

type revokeTokenCmd struct {
	RelayKey string `arg:"required,--relay-key"`
	Reason   string `arg:"--reason"`
}

var args struct {
	GatewayURL   string           `arg:"required,--gateway-url" help:"base URL of the Gateway Server, e.g. https://gateway.example.com"`
	SharedSecret string           `arg:"required,--shared-secret" help:"hex-encoded secret shared with the gateway"`
	Register     *registerCmd     `arg:"subcommand:register"`
	Unregister   *unregisterCmd   `arg:"subcommand:unregister"`
	IssueToken   *issueTokenCmd   `arg:"subcommand:issue-token"`
	RefreshToken *refreshTokenCmd `arg:"subcommand:refresh-token"`
	RevokeToken  *revokeTokenCmd  `arg:"subcommand:revoke-token"`
}

func sign(secret []byte, data []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

func postJSON(url string, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if chk.E(err) {
		return nil, err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if chk.E(err) {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, out)
	}
	return out, nil
}

func main() {
	arg.MustParse(&args)
	secret, err := hex.DecodeString(args.SharedSecret)
	if chk.E(err) {
		log.F.F("invalid --shared-secret: %v", err)
		os.Exit(1)
	}

	var out []byte
	switch {
	case args.Register != nil:
		out, err = runRegister(secret, args.Register)
	case args.Unregister != nil:
		out, err = runUnregister(secret, args.Unregister)
	case args.IssueToken != nil:
		out, err = runIssueToken(secret, args.IssueToken)
	case args.RefreshToken != nil:
		out, err = runRefreshToken(secret, args.RefreshToken)
	case args.RevokeToken != nil:
		out, err = runRevokeToken(secret, args.RevokeToken)
	default:
		log.F.Ln("no subcommand given; see --help")
		os.Exit(1)
	}
	if chk.E(err) {
		log.F.F("gatewayctl: %v", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

// registrationPayload mirrors the gateway's own field order exactly: the
// signature is computed over these bytes verbatim, and the gateway
// re-marshals the same struct shape to verify it.
type registrationPayload struct {
	RelayKey   string            `json:"relayKey"`
	Identifier string            `json:"identifier"`
	Peers      []string          `json:"peers"`
	Metadata   registry.Metadata `json:"metadata"`
}

func runRegister(secret []byte, cmd *registerCmd) ([]byte, error) {
	registration := registrationPayload{
		RelayKey:   cmd.RelayKey,
		Identifier: cmd.Identifier,
		Peers:      cmd.Peers,
		Metadata: registry.Metadata{
			RequiresAuth:  cmd.RequiresAuth,
			IsReplica:     cmd.IsReplica,
			GatewayPath:   cmd.GatewayPath,
			ConnectionUrl: cmd.ConnectionURL,
		},
	}
	raw, err := json.Marshal(registration)
	if chk.E(err) {
		return nil, err
	}
	return postJSON(
		args.GatewayURL+"/api/relays", map[string]any{
			"registration": json.RawMessage(raw),
			"signature":    sign(secret, raw),
		},
	)
}

func runUnregister(secret []byte, cmd *unregisterCmd) ([]byte, error) {
	req, err := http.NewRequest(
		http.MethodDelete, args.GatewayURL+"/api/relays/"+cmd.RelayKey, nil,
	)
	if chk.E(err) {
		return nil, err
	}
	req.Header.Set("X-Signature", sign(secret, []byte(cmd.RelayKey)))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if chk.E(err) {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, out)
	}
	return out, nil
}

func runIssueToken(secret []byte, cmd *issueTokenCmd) ([]byte, error) {
	return postJSON(
		args.GatewayURL+"/api/relay-tokens/issue", map[string]any{
			"relayKey":       cmd.RelayKey,
			"relayAuthToken": cmd.RelayAuthToken,
			"pubkey":         cmd.Pubkey,
			"scope":          cmd.Scope,
			"ttlSeconds":     cmd.TTLSeconds,
			"signature":      sign(secret, []byte(cmd.RelayKey)),
		},
	)
}

func runRefreshToken(secret []byte, cmd *refreshTokenCmd) ([]byte, error) {
	return postJSON(
		args.GatewayURL+"/api/relay-tokens/refresh", map[string]any{
			"relayKey":   cmd.RelayKey,
			"token":      cmd.Token,
			"ttlSeconds": cmd.TTLSeconds,
			"signature":  sign(secret, []byte(cmd.RelayKey)),
		},
	)
}

func runRevokeToken(secret []byte, cmd *revokeTokenCmd) ([]byte, error) {
	return postJSON(
		args.GatewayURL+"/api/relay-tokens/revoke", map[string]any{
			"relayKey":  cmd.RelayKey,
			"reason":    cmd.Reason,
			"signature": sign(secret, []byte(cmd.RelayKey)),
		},
	)
}
