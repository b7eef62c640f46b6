package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func signFor(secret, data []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignatureAcceptsMatchingHMAC(t *testing.T) {
	s := &Server{cfg: Config{SharedSecret: []byte("shared-secret")}}
	data := []byte("acme:east-1")
	require.True(t, s.verifySignature(data, signFor(s.cfg.SharedSecret, data)))
}

func TestVerifySignatureRejectsTamperedPayload(t *testing.T) {
	s := &Server{cfg: Config{SharedSecret: []byte("shared-secret")}}
	sig := signFor(s.cfg.SharedSecret, []byte("acme:east-1"))
	require.False(t, s.verifySignature([]byte("acme:west-1"), sig))
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	s := &Server{cfg: Config{SharedSecret: []byte("shared-secret")}}
	sig := signFor([]byte("different-secret"), []byte("acme:east-1"))
	require.False(t, s.verifySignature([]byte("acme:east-1"), sig))
}

func TestVerifySignatureRejectsMalformedHex(t *testing.T) {
	s := &Server{cfg: Config{SharedSecret: []byte("shared-secret")}}
	require.False(t, s.verifySignature([]byte("acme:east-1"), "not-hex!!"))
}

func TestDefaultTTLFallsBackToConfiguredDefault(t *testing.T) {
	s := &Server{cfg: Config{DefaultTokenTTL: 30 * time.Minute}}
	require.Equal(t, 30*time.Minute, s.defaultTTL(0))
	require.Equal(t, 30*time.Minute, s.defaultTTL(-5))
}

func TestDefaultTTLUsesRequestedSeconds(t *testing.T) {
	s := &Server{cfg: Config{DefaultTokenTTL: 30 * time.Minute}}
	require.Equal(t, 120*time.Second, s.defaultTTL(120))
}
