package wire

import (
	"fmt"

	"github.com/coder/websocket"

	"relaygate.dev/interfaces/registry"
	"relaygate.dev/utils/context"
)

// AddressBook resolves a peer id to the URL its peer-mesh listener accepts
// connections on. The concrete resolution (registration store lookup,
// discovery) is supplied by the caller.
type AddressBook interface {
	URLFor(peerID string) (string, bool)
}

// RegistryAddressBook resolves peer mesh URLs out of relay descriptors'
// connectionUrl metadata, keyed by peer id matching the relayKey convention
// used when peers self-register.
type RegistryAddressBook struct {
	registrations registry.I
}

// NewRegistryAddressBook builds an AddressBook backed by the Registration
// Store.
func NewRegistryAddressBook(registrations registry.I) *RegistryAddressBook {
	return &RegistryAddressBook{registrations: registrations}
}

func (a *RegistryAddressBook) URLFor(peerID string) (string, bool) {
	d, err := a.registrations.GetRelay(context.Bg(), peerID)
	if err != nil || d == nil {
		return "", false
	}
	return d.Metadata.ConnectionUrl, d.Metadata.ConnectionUrl != ""
}

// Dialer dials a peer's mesh URL with coder/websocket, implementing
// peerpool.Dialer.
type Dialer struct {
	addresses AddressBook
}

// NewDialer builds a Dialer.
func NewDialer(addresses AddressBook) *Dialer {
	return &Dialer{addresses: addresses}
}

func (d *Dialer) Dial(c context.T, peerID string) (*websocket.Conn, string, error) {
	url, ok := d.addresses.URLFor(peerID)
	if !ok {
		return nil, "", fmt.Errorf("no known mesh address for peer %s", peerID)
	}
	conn, _, err := websocket.Dial(c, url, nil)
	if err != nil {
		return nil, "", err
	}
	conn.SetReadLimit(8 << 20)
	return conn, url, nil
}
