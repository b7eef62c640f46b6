// Package tests provides fixture generators shared by this module's
// package-level tests.
package tests

import (
	"encoding/base64"
	"encoding/hex"
	"time"

	"lukechampine.com/frand"

	"relaygate.dev/protocol/nostrevent"
)

// GenerateEvent builds an unsigned fixture event with randomized content up
// to maxSize bytes, for exercising the replica adapter and dispatcher
// without a real worker relay's signing key.
func GenerateEvent(maxSize int) (ev *nostrevent.E, err error) {
	l := frand.Intn(maxSize * 6 / 8) // account for base64 expansion
	ev = &nostrevent.E{
		Id:        hex.EncodeToString(frand.Bytes(32)),
		Pubkey:    hex.EncodeToString(frand.Bytes(32)),
		CreatedAt: time.Now().Unix(),
		Kind:      1,
		Content:   base64.StdEncoding.EncodeToString(frand.Bytes(l)),
		Sig:       hex.EncodeToString(frand.Bytes(64)),
	}
	return ev, nil
}

// GenerateTagged is GenerateEvent with kind and tags overridden, for
// exercising the replica's tag-index query path.
func GenerateTagged(kind int, tags nostrevent.Tags) (ev *nostrevent.E, err error) {
	if ev, err = GenerateEvent(256); err != nil {
		return nil, err
	}
	ev.Kind = kind
	ev.Tags = tags
	return ev, nil
}
