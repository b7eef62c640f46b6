package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relaygate.dev/interfaces/registry"
	registrystore "relaygate.dev/registry"
	"relaygate.dev/utils/context"
)

func TestRegistryAddressBookURLForKnownPeer(t *testing.T) {
	regs := registrystore.NewMemory(time.Hour)
	c := context.Bg()
	require.NoError(t, regs.UpsertRelay(c, &registry.Descriptor{
		RelayKey: "acme:east-1",
		Metadata: registry.Metadata{ConnectionUrl: "wss://east-1.mesh.internal"},
	}))

	book := NewRegistryAddressBook(regs)
	url, ok := book.URLFor("acme:east-1")
	require.True(t, ok)
	require.Equal(t, "wss://east-1.mesh.internal", url)
}

func TestRegistryAddressBookURLForUnknownPeer(t *testing.T) {
	regs := registrystore.NewMemory(time.Hour)
	book := NewRegistryAddressBook(regs)
	_, ok := book.URLFor("does-not-exist")
	require.False(t, ok)
}

func TestRegistryAddressBookURLForMissingConnectionUrl(t *testing.T) {
	regs := registrystore.NewMemory(time.Hour)
	c := context.Bg()
	require.NoError(t, regs.UpsertRelay(c, &registry.Descriptor{RelayKey: "acme:east-1"}))

	book := NewRegistryAddressBook(regs)
	_, ok := book.URLFor("acme:east-1")
	require.False(t, ok)
}

func TestDialerDialFailsForUnknownPeer(t *testing.T) {
	regs := registrystore.NewMemory(time.Hour)
	dialer := NewDialer(NewRegistryAddressBook(regs))
	_, _, err := dialer.Dial(context.Bg(), "ghost-peer")
	require.Error(t, err)
}
