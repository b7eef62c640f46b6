// Package helpers holds small utility functions used by more than one
// gateway component: remote-address resolution behind a reverse proxy, and
// the path<->identifier conversion rule for relay paths (spec §9 open
// question 1).
package helpers

import (
	"net/http"
	"strings"
)

// GenerateDescription appends a Markdown "Scopes" list to text, used for
// generated REST operation documentation (token issue/refresh scopes).
func GenerateDescription(text string, scopes []string) string {
	if len(scopes) == 0 {
		return text
	}
	result := make([]string, 0, len(scopes))
	for _, value := range scopes {
		result = append(result, "`"+value+"`")
	}
	return text + "<br/><br/>**Scopes**<br/>" + strings.Join(result, ", ")
}

// GetRemoteFromReq resolves the real client address behind a reverse proxy,
// preferring X-Forwarded-For, then Forwarded. Returns "" if neither header is
// present, in which case the caller should fall back to the raw connection
// remote address.
func GetRemoteFromReq(r *http.Request) (rr string) {
	remoteAddress := r.Header.Get("X-Forwarded-For")
	if remoteAddress == "" {
		remoteAddress = r.Header.Get("Forwarded")
		if remoteAddress == "" {
			return ""
		}
		splitted := strings.Split(remoteAddress, ", ")
		if len(splitted) >= 1 {
			forwarded := strings.Split(splitted[0], "=")
			if len(forwarded) == 2 {
				rr = forwarded[1]
			}
			return
		}
	}
	splitted := strings.Split(remoteAddress, " ")
	if len(splitted) == 1 {
		rr = splitted[0]
	}
	if len(splitted) == 2 {
		sp := strings.Split(splitted[0], ",")
		rr = sp[0]
	}
	return
}

// ToColonIdentifier converts a gateway URL path tail ("<prefix>/<tail>") into
// the colon-separated relayKey form ("<prefix>:<tail>"). Per spec §9 open
// question 1, only the first "/" is significant; any further "/" in tail is
// kept verbatim on the right-hand side of the single ":".
func ToColonIdentifier(prefix, tail string) string {
	return prefix + ":" + tail
}

// ToGatewayPath is the inverse of ToColonIdentifier: it splits a relayKey on
// its first ":" into a prefix and tail suitable for use in a URL path
// ("<prefix>/<tail>"). Any further ":" in the tail is preserved verbatim.
func ToGatewayPath(relayKey string) (prefix, tail string) {
	i := strings.IndexByte(relayKey, ':')
	if i < 0 {
		return relayKey, ""
	}
	return relayKey[:i], relayKey[i+1:]
}

// SplitDriveIdentifier accepts a /drive/<identifier>/<file> path's identifier
// segment, which may itself use ":" or "/" as its separator (both resolve to
// the same descriptor, per spec §6). It normalizes to the colon form.
func SplitDriveIdentifier(identifier string) string {
	if strings.Contains(identifier, ":") {
		return identifier
	}
	i := strings.IndexByte(identifier, '/')
	if i < 0 {
		return identifier
	}
	return ToColonIdentifier(identifier[:i], identifier[i+1:])
}
