// Package atomic re-exports the handful of go.uber.org/atomic types the
// gateway mutates across goroutines, plus a Bytes wrapper with JSON support
// for marshalling an atomically-held byte slice.
package atomic

import (
	"encoding/base64"
	"encoding/json"

	uatomic "go.uber.org/atomic"
)

type (
	// String is a CAS-safe string, used for the WS listener's remote address.
	String = uatomic.String
	// Bool is a CAS-safe bool, used for PeerConnection.connected and the
	// dispatcher's and replica adapter's state flags.
	Bool = uatomic.Bool
	// Int64 is a CAS-safe int64, used for the dispatcher's in-flight counts
	// and the PeerConnection's timestamps and failure streak.
	Int64 = uatomic.Int64
	// Uint64 is a CAS-safe uint64, used for the replica's downloaded counter.
	Uint64 = uatomic.Uint64
	// Duration is a CAS-safe time.Duration.
	Duration = uatomic.Duration
)

// Bytes is a CAS-safe []byte with JSON (de)serialization support, encoded as
// base64 on the wire.
type Bytes struct {
	uatomic.Value
}

// LoadBytes returns the wrapped bytes, or nil if never stored.
func (b *Bytes) LoadBytes() []byte {
	v := b.Value.Load()
	if v == nil {
		return nil
	}
	return v.([]byte)
}

// StoreBytes replaces the wrapped bytes.
func (b *Bytes) StoreBytes(p []byte) { b.Value.Store(p) }

// MarshalJSON encodes the wrapped []byte as a base64 string.
func (b *Bytes) MarshalJSON() ([]byte, error) {
	data := b.LoadBytes()
	if data == nil {
		return []byte("null"), nil
	}
	return json.Marshal(base64.StdEncoding.EncodeToString(data))
}

// UnmarshalJSON decodes a base64 string into the wrapped []byte.
func (b *Bytes) UnmarshalJSON(text []byte) error {
	var encoded string
	if err := json.Unmarshal(text, &encoded); err != nil {
		return err
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return err
	}
	b.StoreBytes(decoded)
	return nil
}
