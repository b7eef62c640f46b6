// Package registry is the capability interface for the Registration Store
// (spec §4.2): relay descriptor and token metadata persistence, with two
// concrete variants — in-memory, and a remote-cache-backed one.
package registry

import (
	"time"

	"relaygate.dev/utils/context"
)

// Metadata is the free-form per-relay configuration carried on a descriptor.
//
// RequiresAuth is a pointer so an omitted field is distinguishable from an
// explicit false: spec §4.4 step 2 phrases the admission check as
// "requiresAuth≠false", meaning a registration that never sets the field
// still requires a token. Use AuthRequired to read it.
type Metadata struct {
	RequiresAuth   *bool  `json:"requiresAuth,omitempty"`
	IsReplica      bool   `json:"isReplica"`
	GatewayPath    string `json:"gatewayPath,omitempty"`
	ConnectionUrl  string `json:"connectionUrl,omitempty"`
	LeaseActive    bool   `json:"leaseActive,omitempty"`
}

// AuthRequired resolves RequiresAuth, defaulting to true when unset.
func (m Metadata) AuthRequired() bool {
	return m.RequiresAuth == nil || *m.RequiresAuth
}

// Descriptor identifies one logical relay (spec §3 RelayDescriptor).
type Descriptor struct {
	RelayKey     string    `json:"relayKey"`
	Identifier   string    `json:"identifier"`
	Peers        []string  `json:"peers"`
	Metadata     Metadata  `json:"metadata"`
	RegisteredAt time.Time `json:"registeredAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TokenMetadata is the persisted shadow of a TokenRecord (spec §3), stored
// alongside the descriptor so the Token Service can recover sequence state
// across restarts without re-deriving it from issued tokens.
type TokenMetadata struct {
	RelayKey     string    `json:"relayKey"`
	Sequence     uint64    `json:"sequence"`
	RevokedAt    time.Time `json:"revokedAt,omitempty"`
	LastValidate time.Time `json:"lastValidatedAt,omitempty"`
}

// I is the Registration Store capability interface.
type I interface {
	// UpsertRelay creates or updates a descriptor. RegisteredAt is preserved
	// across updates; UpdatedAt always advances.
	UpsertRelay(c context.T, d *Descriptor) error
	// GetRelay returns nil, nil for an absent or TTL-expired descriptor.
	GetRelay(c context.T, relayKey string) (*Descriptor, error)
	// RemoveRelay deletes a descriptor and its token metadata.
	RemoveRelay(c context.T, relayKey string) error
	// StoreTokenMetadata upserts the token metadata shadow for relayKey.
	StoreTokenMetadata(c context.T, m *TokenMetadata) error
	// GetTokenMetadata returns nil, nil if none is stored.
	GetTokenMetadata(c context.T, relayKey string) (*TokenMetadata, error)
	// PruneExpired removes descriptors past their TTL. Idempotent.
	PruneExpired(c context.T) (removed int, err error)
	// Disconnect releases any underlying connection/resources.
	Disconnect() error
}
