// Package version holds build-time identity constants, overridable with
// -ldflags at build time the way the teacher repo does.
package version

// V is the build version, set via -ldflags "-X relaygate.dev/app/version.V=...".
var V = "v0.0.0-dev"

// URL identifies the software for the NIP-11 "software" field.
const URL = "https://github.com/relaygate/relaygate"

// Description is the default NIP-11 "description" field.
const Description = "a public relay gateway dispatching sessions across a pool of worker relays"
