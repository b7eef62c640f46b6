// Package registry implements the Registration Store (spec §4.2): two
// interchangeable backends behind interfaces/registry.I, an in-memory map
// and a remote-cache-backed variant, mirroring the teacher's database
// package's lifecycle style (New/Close over a background context).
package registry

import (
	"sync"
	"time"

	"relaygate.dev/interfaces/registry"
	"relaygate.dev/utils/context"
	"relaygate.dev/utils/log"
)

// Memory is the in-memory Registration Store, TTL-expiring descriptors on
// read. It is always available as a fallback for the remote-cache variant.
type Memory struct {
	mutex   sync.Mutex
	ttl     time.Duration
	relays  map[string]*entry
	tokens  map[string]*registry.TokenMetadata
}

type entry struct {
	descriptor *registry.Descriptor
	expiresAt  time.Time
}

// NewMemory builds a Memory store with the given descriptor TTL.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:    ttl,
		relays: make(map[string]*entry),
		tokens: make(map[string]*registry.TokenMetadata),
	}
}

func (m *Memory) UpsertRelay(c context.T, d *registry.Descriptor) (err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	now := time.Now()
	if existing, ok := m.relays[d.RelayKey]; ok {
		d.RegisteredAt = existing.descriptor.RegisteredAt
	} else {
		d.RegisteredAt = now
	}
	d.UpdatedAt = now
	m.relays[d.RelayKey] = &entry{descriptor: d, expiresAt: now.Add(m.ttl)}
	return
}

func (m *Memory) GetRelay(c context.T, relayKey string) (
	d *registry.Descriptor, err error,
) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	e, ok := m.relays[relayKey]
	if !ok {
		return nil, nil
	}
	if time.Now().After(e.expiresAt) {
		delete(m.relays, relayKey)
		return nil, nil
	}
	return e.descriptor, nil
}

func (m *Memory) RemoveRelay(c context.T, relayKey string) (err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.relays, relayKey)
	delete(m.tokens, relayKey)
	return
}

func (m *Memory) StoreTokenMetadata(
	c context.T, meta *registry.TokenMetadata,
) (err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.tokens[meta.RelayKey] = meta
	return
}

func (m *Memory) GetTokenMetadata(c context.T, relayKey string) (
	meta *registry.TokenMetadata, err error,
) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.tokens[relayKey], nil
}

func (m *Memory) PruneExpired(c context.T) (removed int, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	now := time.Now()
	for key, e := range m.relays {
		if now.After(e.expiresAt) {
			delete(m.relays, key)
			delete(m.tokens, key)
			removed++
		}
	}
	if removed > 0 {
		log.D.F("pruned %d expired relay descriptors", removed)
	}
	return
}

func (m *Memory) Disconnect() (err error) {
	return
}

var _ registry.I = (*Memory)(nil)
