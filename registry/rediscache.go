package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"relaygate.dev/interfaces/registry"
	"relaygate.dev/utils/chk"
	"relaygate.dev/utils/context"
	"relaygate.dev/utils/log"
)

// RemoteCache is the remote-cache-backed Registration Store variant (spec
// §4.2): a namespaced go-redis client with an EX TTL on every write, falling
// back to an in-memory Memory store when the remote is unavailable.
type RemoteCache struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	fallback  *Memory
}

// NewRemoteCache builds a RemoteCache using client, prefixing every key with
// namespace and keeping entries alive for ttl. fallbackTTL sizes the
// in-memory fallback used when the remote cache is unreachable.
func NewRemoteCache(
	client *redis.Client, namespace string, ttl, fallbackTTL time.Duration,
) *RemoteCache {
	return &RemoteCache{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
		fallback:  NewMemory(fallbackTTL),
	}
}

func (r *RemoteCache) relayKeyFor(relayKey string) string {
	return fmt.Sprintf("%s:relay:%s", r.namespace, relayKey)
}

func (r *RemoteCache) tokenKeyFor(relayKey string) string {
	return fmt.Sprintf("%s:token:%s", r.namespace, relayKey)
}

func (r *RemoteCache) warnDegraded(op string, err error) {
	log.W.F(
		"registration store: remote cache unavailable during %s, falling "+
			"back to in-memory cache (dev-only fallback): %v", op, err,
	)
}

func (r *RemoteCache) UpsertRelay(c context.T, d *registry.Descriptor) (
	err error,
) {
	now := time.Now()
	existing, getErr := r.GetRelay(c, d.RelayKey)
	if getErr == nil && existing != nil {
		d.RegisteredAt = existing.RegisteredAt
	} else {
		d.RegisteredAt = now
	}
	d.UpdatedAt = now
	raw, err := json.Marshal(d)
	if chk.E(err) {
		return
	}
	if err = r.client.Set(
		c, r.relayKeyFor(d.RelayKey), raw, r.ttl,
	).Err(); err != nil {
		r.warnDegraded("upsertRelay", err)
		return r.fallback.UpsertRelay(c, d)
	}
	return
}

func (r *RemoteCache) GetRelay(c context.T, relayKey string) (
	d *registry.Descriptor, err error,
) {
	raw, err := r.client.Get(c, r.relayKeyFor(relayKey)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		r.warnDegraded("getRelay", err)
		return r.fallback.GetRelay(c, relayKey)
	}
	d = &registry.Descriptor{}
	if err = json.Unmarshal(raw, d); chk.E(err) {
		return nil, err
	}
	return d, nil
}

func (r *RemoteCache) RemoveRelay(c context.T, relayKey string) (err error) {
	if err = r.client.Del(
		c, r.relayKeyFor(relayKey), r.tokenKeyFor(relayKey),
	).Err(); err != nil {
		r.warnDegraded("removeRelay", err)
		return r.fallback.RemoveRelay(c, relayKey)
	}
	return
}

func (r *RemoteCache) StoreTokenMetadata(
	c context.T, meta *registry.TokenMetadata,
) (err error) {
	raw, err := json.Marshal(meta)
	if chk.E(err) {
		return
	}
	if err = r.client.Set(
		c, r.tokenKeyFor(meta.RelayKey), raw, r.ttl,
	).Err(); err != nil {
		r.warnDegraded("storeTokenMetadata", err)
		return r.fallback.StoreTokenMetadata(c, meta)
	}
	return
}

func (r *RemoteCache) GetTokenMetadata(c context.T, relayKey string) (
	meta *registry.TokenMetadata, err error,
) {
	raw, err := r.client.Get(c, r.tokenKeyFor(relayKey)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		r.warnDegraded("getTokenMetadata", err)
		return r.fallback.GetTokenMetadata(c, relayKey)
	}
	meta = &registry.TokenMetadata{}
	if err = json.Unmarshal(raw, meta); chk.E(err) {
		return nil, err
	}
	return meta, nil
}

// PruneExpired is a no-op on the remote variant: Redis expires keys itself
// via the TTL set on every write. It only sweeps the in-memory fallback.
func (r *RemoteCache) PruneExpired(c context.T) (removed int, err error) {
	return r.fallback.PruneExpired(c)
}

func (r *RemoteCache) Disconnect() (err error) {
	return r.client.Close()
}

var _ registry.I = (*RemoteCache)(nil)
