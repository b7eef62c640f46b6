package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relaygate.dev/interfaces/registry"
	registrystore "relaygate.dev/registry"
	"relaygate.dev/utils/context"
)

func newTestManager(t *testing.T) (*Manager, registry.I) {
	t.Helper()
	regs := registrystore.NewMemory(time.Hour)
	m := New(regs, nil, nil, nil, nil, nil, false)
	return m, regs
}

func boolPtr(b bool) *bool { return &b }

func TestAdmitRejectsUnregisteredRelay(t *testing.T) {
	m, _ := newTestManager(t)
	s, code, reason := m.Admit(context.Bg(), "nope:east-1", "", nil)
	require.Nil(t, s)
	require.Equal(t, CloseRelayNotFound, code)
	require.NotEmpty(t, reason)
}

func TestAdmitRequiresTokenWhenAuthRequired(t *testing.T) {
	m, regs := newTestManager(t)
	c := context.Bg()
	require.NoError(t, regs.UpsertRelay(c, &registry.Descriptor{
		RelayKey: "acme:east-1",
		Peers:    []string{"peer-1"},
		Metadata: registry.Metadata{RequiresAuth: boolPtr(true)},
	}))

	s, code, reason := m.Admit(c, "acme:east-1", "", nil)
	require.Nil(t, s)
	require.Equal(t, CloseTokenProblem, code)
	require.Equal(t, "token required", reason)
}

func TestAdmitRequiresTokenWhenAuthMetadataOmitted(t *testing.T) {
	m, regs := newTestManager(t)
	c := context.Bg()
	require.NoError(t, regs.UpsertRelay(c, &registry.Descriptor{
		RelayKey: "acme:east-1",
		Peers:    []string{"peer-1"},
	}))

	s, code, reason := m.Admit(c, "acme:east-1", "", nil)
	require.Nil(t, s)
	require.Equal(t, CloseTokenProblem, code)
	require.Equal(t, "token required", reason)
}

func TestAdmitRejectsWhenNoPeersAndNotReplica(t *testing.T) {
	m, regs := newTestManager(t)
	c := context.Bg()
	require.NoError(t, regs.UpsertRelay(c, &registry.Descriptor{
		RelayKey: "acme:east-1",
		Metadata: registry.Metadata{RequiresAuth: boolPtr(false), IsReplica: false},
	}))

	s, code, reason := m.Admit(c, "acme:east-1", "", nil)
	require.Nil(t, s)
	require.Equal(t, CloseNoPeers, code)
	require.NotEmpty(t, reason)
}

func TestBroadcastRevocationWithNoSessionsIsNoop(t *testing.T) {
	m, _ := newTestManager(t)
	require.NotPanics(t, func() {
		m.BroadcastRevocation("acme:east-1", "rotated", 1)
	})
}

func TestSessionGaugeStartsAtZero(t *testing.T) {
	m, _ := newTestManager(t)
	require.EqualValues(t, 0, m.SessionGauge())
}
