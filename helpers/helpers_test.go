package helpers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToGatewayPathAndBackRoundTrip(t *testing.T) {
	prefix, tail := ToGatewayPath("acme:east-1")
	require.Equal(t, "acme", prefix)
	require.Equal(t, "east-1", tail)
	require.Equal(t, "acme:east-1", ToColonIdentifier(prefix, tail))
}

func TestToGatewayPathWithoutColon(t *testing.T) {
	prefix, tail := ToGatewayPath("noseparator")
	require.Equal(t, "noseparator", prefix)
	require.Equal(t, "", tail)
}

func TestToGatewayPathPreservesFurtherColonsInTail(t *testing.T) {
	prefix, tail := ToGatewayPath("acme:east-1:shard-3")
	require.Equal(t, "acme", prefix)
	require.Equal(t, "east-1:shard-3", tail)
}

func TestSplitDriveIdentifierAlreadyColonForm(t *testing.T) {
	require.Equal(t, "acme:east-1", SplitDriveIdentifier("acme:east-1"))
}

func TestSplitDriveIdentifierSlashForm(t *testing.T) {
	require.Equal(t, "acme:east-1", SplitDriveIdentifier("acme/east-1"))
}

func TestSplitDriveIdentifierNoSeparator(t *testing.T) {
	require.Equal(t, "bare", SplitDriveIdentifier("bare"))
}

func TestGenerateDescriptionWithScopes(t *testing.T) {
	out := GenerateDescription("Issues a token.", []string{"issue", "admin"})
	require.Contains(t, out, "Issues a token.")
	require.Contains(t, out, "`issue`")
	require.Contains(t, out, "`admin`")
}

func TestGenerateDescriptionWithoutScopes(t *testing.T) {
	require.Equal(t, "Issues a token.", GenerateDescription("Issues a token.", nil))
}

func TestGetRemoteFromReqPrefersXForwardedFor(t *testing.T) {
	r, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)
	r.Header.Set("X-Forwarded-For", "203.0.113.5")
	require.Equal(t, "203.0.113.5", GetRemoteFromReq(r))
}

func TestGetRemoteFromReqFallsBackToForwarded(t *testing.T) {
	r, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)
	r.Header.Set("Forwarded", "for=203.0.113.7")
	require.Equal(t, "203.0.113.7", GetRemoteFromReq(r))
}

func TestGetRemoteFromReqNoHeaders(t *testing.T) {
	r, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)
	require.Equal(t, "", GetRemoteFromReq(r))
}
