package token

import (
	"bytes"
	"crypto/hmac"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/minio/sha256-simd"
	"golang.org/x/crypto/hkdf"
)

// payload is the signed, opaque-to-clients body of a token envelope
// (spec §6 "token envelope").
type payload struct {
	RelayKey       string   `json:"relayKey"`
	RelayAuthToken string   `json:"relayAuthToken"`
	Pubkey         string   `json:"pubkey,omitempty"`
	Scope          []string `json:"scope,omitempty"`
	ExpiresAt      int64    `json:"expiresAt"`
	Sequence       uint64   `json:"sequence"`
}

// signer derives a stable HMAC key from the shared secret via HKDF so the
// raw secret is never used directly as a MAC key.
type signer struct {
	key []byte
}

func newSigner(sharedSecret []byte) (*signer, error) {
	reader := hkdf.New(sha256.New, sharedSecret, nil, []byte("relaygate-token-v1"))
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return &signer{key: key}, nil
}

func (s *signer) sign(data []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(data)
	return mac.Sum(nil)
}

// encode produces the deterministic base64(json).base64(hmac) envelope.
func (s *signer) encode(p payload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	sig := s.sign(raw)
	return fmt.Sprintf(
		"%s.%s",
		base64.RawURLEncoding.EncodeToString(raw),
		base64.RawURLEncoding.EncodeToString(sig),
	), nil
}

// decode verifies the envelope signature and returns its payload.
func (s *signer) decode(envelope string) (payload, error) {
	var p payload
	i := bytes.IndexByte([]byte(envelope), '.')
	if i < 0 {
		return p, newErr(ReasonInvalid)
	}
	rawPart, sigPart := envelope[:i], envelope[i+1:]
	raw, err := base64.RawURLEncoding.DecodeString(rawPart)
	if err != nil {
		return p, newErr(ReasonInvalid)
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return p, newErr(ReasonInvalid)
	}
	expected := s.sign(raw)
	if subtle.ConstantTimeCompare(sig, expected) != 1 {
		return p, newErr(ReasonInvalid)
	}
	if err = json.Unmarshal(raw, &p); err != nil {
		return p, newErr(ReasonInvalid)
	}
	return p, nil
}

func toUnix(t time.Time) int64 { return t.Unix() }
func fromUnix(sec int64) time.Time { return time.Unix(sec, 0).UTC() }
