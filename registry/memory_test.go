package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relaygate.dev/interfaces/registry"
	"relaygate.dev/utils/context"
)

func TestMemoryUpsertPreservesRegisteredAt(t *testing.T) {
	m := NewMemory(time.Minute)
	c := context.Bg()
	d := &registry.Descriptor{RelayKey: "acme:east-1", Peers: []string{"p1"}}
	require.NoError(t, m.UpsertRelay(c, d))
	first := d.RegisteredAt

	time.Sleep(time.Millisecond)
	d2 := &registry.Descriptor{RelayKey: "acme:east-1", Peers: []string{"p1", "p2"}}
	require.NoError(t, m.UpsertRelay(c, d2))
	require.Equal(t, first, d2.RegisteredAt)
	require.True(t, d2.UpdatedAt.After(first) || d2.UpdatedAt.Equal(first))

	got, err := m.GetRelay(c, "acme:east-1")
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2"}, got.Peers)
}

func TestMemoryGetRelayExpires(t *testing.T) {
	m := NewMemory(time.Millisecond)
	c := context.Bg()
	d := &registry.Descriptor{RelayKey: "acme:east-1"}
	require.NoError(t, m.UpsertRelay(c, d))

	time.Sleep(5 * time.Millisecond)
	got, err := m.GetRelay(c, "acme:east-1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMemoryRemoveRelayDeletesTokens(t *testing.T) {
	m := NewMemory(time.Minute)
	c := context.Bg()
	require.NoError(t, m.UpsertRelay(c, &registry.Descriptor{RelayKey: "r1"}))
	require.NoError(t, m.StoreTokenMetadata(c, &registry.TokenMetadata{RelayKey: "r1", Sequence: 3}))

	require.NoError(t, m.RemoveRelay(c, "r1"))

	d, err := m.GetRelay(c, "r1")
	require.NoError(t, err)
	require.Nil(t, d)
	meta, err := m.GetTokenMetadata(c, "r1")
	require.NoError(t, err)
	require.Nil(t, meta)
}

func TestMemoryPruneExpiredIsIdempotent(t *testing.T) {
	m := NewMemory(time.Millisecond)
	c := context.Bg()
	require.NoError(t, m.UpsertRelay(c, &registry.Descriptor{RelayKey: "r1"}))
	time.Sleep(5 * time.Millisecond)

	removed, err := m.PruneExpired(c)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	removed, err = m.PruneExpired(c)
	require.NoError(t, err)
	require.Equal(t, 0, removed)
}
