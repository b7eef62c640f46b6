package replica

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"relaygate.dev/interfaces/store"
	"relaygate.dev/protocol/filter"
	"relaygate.dev/protocol/nostrevent"
	"relaygate.dev/utils/apputil"
	"relaygate.dev/utils/atomic"
	"relaygate.dev/utils/chk"
	"relaygate.dev/utils/context"
	"relaygate.dev/utils/log"
	"relaygate.dev/utils/units"
)

// ErrReadOnly is returned by AppendEvent when no writer lease is held.
var ErrReadOnly = errors.New("replica-readonly")

// maxIndexScan bounds how many index entries a single scan may visit
// (spec §4.7 query step 2).
const maxIndexScan = 10000

// Adapter is the badger-backed Replica Adapter for a single relay.
type Adapter struct {
	db          *badger.DB
	dir         string
	leaseActive atomic.Bool
	downloaded  atomic.Uint64
}

// New constructs an unopened Adapter. Call Init to open the database.
func New() *Adapter { return &Adapter{} }

// Init opens (creating if absent) the embedded database at path, following
// the teacher's database package's option shape.
func (a *Adapter) Init(path string) (err error) {
	a.dir = path
	if err = os.MkdirAll(path, 0755); chk.E(err) {
		return
	}
	if err = apputil.EnsureDir(filepath.Join(path, "dummy.sst")); chk.E(err) {
		return
	}
	opts := badger.DefaultOptions(path)
	opts.BlockCacheSize = int64(units.Gb)
	opts.BlockSize = units.Gb
	opts.CompactL0OnClose = true
	opts.LmaxCompaction = true
	opts.Logger = nil
	if a.db, err = badger.Open(opts); chk.E(err) {
		return
	}
	log.I.F("replica adapter: opened embedded store at %s", path)
	return
}

func (a *Adapter) Path() string { return a.dir }

// SetLeaseActive flips the writer-lease state this adapter honors for
// AppendEvent (the lease protocol itself is external, per spec §1).
func (a *Adapter) SetLeaseActive(active bool) { a.leaseActive.Store(active) }

func (a *Adapter) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// AppendEvent writes ev under its id key plus every derived index key in one
// atomic batched commit (spec §4.7 appendEvent). For a replaceable or
// parameterized-replaceable kind, the previous event occupying the same
// (kind, pubkey[, d-tag]) slot is superseded: its id key and derived index
// keys are removed in the same batch, mirroring the teacher's
// DeleteEvent(..., noTombstone) replace-on-write behavior (spec §9
// supplement).
func (a *Adapter) AppendEvent(
	c context.T, relayKey string, ev *nostrevent.E,
) (err error) {
	if !a.leaseActive.Load() {
		return ErrReadOnly
	}
	raw, err := ev.Marshal()
	if chk.E(err) {
		return
	}
	wb := a.db.NewWriteBatch()
	defer wb.Cancel()

	if ev.IsReplaceable() || ev.IsParameterizedReplaceable() {
		rKey := replaceableKey(ev.Kind, ev.Pubkey, ev.DTag())
		if superseded, getErr := a.replaceableTarget(rKey); getErr == nil && superseded != nil {
			if superseded.CreatedAt > ev.CreatedAt {
				return nil
			}
			for _, k := range append(derivedIndexKeys(superseded), idKey(superseded.Id)) {
				if err = wb.Delete(k); chk.E(err) {
					return
				}
			}
		}
		if err = wb.Set(rKey, []byte(ev.Id)); chk.E(err) {
			return
		}
	}

	if err = wb.Set(idKey(ev.Id), raw); chk.E(err) {
		return
	}
	for _, k := range derivedIndexKeys(ev) {
		if err = wb.Set(k, []byte(ev.Id)); chk.E(err) {
			return
		}
	}
	if err = wb.Flush(); chk.E(err) {
		return
	}
	return nil
}

// replaceableTarget resolves the event currently occupying a replaceable
// slot, or nil if the slot is empty.
func (a *Adapter) replaceableTarget(rKey []byte) (*nostrevent.E, error) {
	var id string
	err := a.db.View(func(txn *badger.Txn) error {
		item, getErr := txn.Get(rKey)
		if getErr != nil {
			return getErr
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a.getById(id)
}

func derivedIndexKeys(ev *nostrevent.E) [][]byte {
	keys := [][]byte{
		createdAtKey(ev.CreatedAt, ev.Id),
		kindKey(ev.Kind, ev.CreatedAt, ev.Id),
		pubkeyKey(ev.Pubkey, ev.CreatedAt, ev.Id),
	}
	for _, t := range ev.Tags {
		if len(t) < 2 || len(t[0]) != 1 {
			continue
		}
		keys = append(keys, tagIndexKey(t[0], t[1], ev.CreatedAt, ev.Id))
	}
	return keys
}

func (a *Adapter) getById(id string) (*nostrevent.E, error) {
	var raw []byte
	err := a.db.View(func(txn *badger.Txn) error {
		item, getErr := txn.Get(idKey(id))
		if getErr != nil {
			return getErr
		}
		return item.Value(func(val []byte) error {
			raw = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return nostrevent.Parse(raw)
}

// scanPrefix visits up to limit keys under prefix, in descending key order
// (newest created_at first), and resolves each to the event id it points at.
func (a *Adapter) scanPrefix(prefix []byte, limit int) (ids []string, err error) {
	err = a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()
		count := 0
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && count < limit; it.Next() {
			item := it.Item()
			if getErr := item.Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			}); getErr != nil {
				return getErr
			}
			count++
		}
		return nil
	})
	return
}

func intersect(sets [][]string) []string {
	if len(sets) == 0 {
		return nil
	}
	counts := make(map[string]int, len(sets[0]))
	for _, set := range sets {
		seen := make(map[string]bool, len(set))
		for _, id := range set {
			if seen[id] {
				continue
			}
			seen[id] = true
			counts[id]++
		}
	}
	out := make([]string, 0, len(counts))
	for id, n := range counts {
		if n == len(sets) {
			out = append(out, id)
		}
	}
	return out
}

func (a *Adapter) candidateIdsFor(f *filter.F, scanLimit int) (
	ids []string, hasGroups bool, err error,
) {
	var groups [][]string
	if len(f.Kinds) > 0 {
		var union []string
		for _, k := range f.Kinds {
			got, scanErr := a.scanPrefix(kindPrefix(k), scanLimit)
			if scanErr != nil {
				return nil, false, scanErr
			}
			union = append(union, got...)
		}
		groups = append(groups, union)
	}
	if len(f.Authors) > 0 {
		var union []string
		for _, author := range f.Authors {
			got, scanErr := a.scanPrefix(pubkeyPrefix(author), scanLimit)
			if scanErr != nil {
				return nil, false, scanErr
			}
			union = append(union, got...)
		}
		groups = append(groups, union)
	}
	for name, values := range f.Tags {
		var union []string
		for _, v := range values {
			got, scanErr := a.scanPrefix(tagPrefix(name, v), scanLimit)
			if scanErr != nil {
				return nil, false, scanErr
			}
			union = append(union, got...)
		}
		groups = append(groups, union)
	}
	if len(groups) == 0 {
		return nil, false, nil
	}
	return intersect(groups), true, nil
}

// Query runs every filter in fs, truncates each filter's own matches to its
// Limit (newest-first) before merging, then merges matching events by id,
// sorted newest-first (spec §4.7 query).
func (a *Adapter) Query(c context.T, fs []*filter.F) (
	out []*store.Envelope, err error,
) {
	merged := make(map[string]*nostrevent.E)
	for _, f := range fs {
		limit := 0
		if f.Limit != nil {
			limit = *f.Limit
		}
		scanLimit := maxIndexScan
		if limit > 0 && limit*4 < scanLimit {
			scanLimit = limit * 4
		}
		var candidates []*nostrevent.E
		if len(f.Ids) > 0 {
			for _, id := range f.Ids {
				ev, getErr := a.getById(id)
				if getErr != nil {
					continue
				}
				candidates = append(candidates, ev)
			}
		} else {
			ids, hasGroups, candErr := a.candidateIdsFor(f, scanLimit)
			if candErr != nil {
				return nil, candErr
			}
			if !hasGroups {
				continue
			}
			for _, id := range ids {
				ev, getErr := a.getById(id)
				if getErr != nil {
					continue
				}
				candidates = append(candidates, ev)
			}
		}
		var matched []*nostrevent.E
		for _, ev := range candidates {
			if !f.Matches(ev) {
				continue
			}
			matched = append(matched, ev)
		}
		sort.Slice(matched, func(i, j int) bool {
			if matched[i].CreatedAt != matched[j].CreatedAt {
				return matched[i].CreatedAt > matched[j].CreatedAt
			}
			return strings.Compare(matched[i].Id, matched[j].Id) < 0
		})
		if limit > 0 && len(matched) > limit {
			matched = matched[:limit]
		}
		for _, ev := range matched {
			merged[ev.Id] = ev
		}
	}
	events := make([]*nostrevent.E, 0, len(merged))
	for _, ev := range merged {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return strings.Compare(events[i].Id, events[j].Id) < 0
	})
	for _, ev := range events {
		out = append(out, &store.Envelope{Event: ev})
	}
	return out, nil
}

// Stats reports length/downloaded/lag (spec §4.7 getReplicaStats).
func (a *Adapter) Stats() (stats store.Stats, err error) {
	var length uint64
	err = a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixId + ":")
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			length++
		}
		return nil
	})
	if chk.E(err) {
		return
	}
	downloaded := a.downloaded.Load()
	lag := uint64(0)
	if length > downloaded {
		lag = length - downloaded
	}
	return store.Stats{Length: length, Downloaded: downloaded, Lag: lag}, nil
}

// ObserveDownloaded records that n additional events have been pulled from
// the peer mesh into the replica, narrowing reported lag.
func (a *Adapter) ObserveDownloaded(n uint64) { a.downloaded.Add(n) }

var _ store.I = (*Adapter)(nil)
