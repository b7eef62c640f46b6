package replica

import (
	"testing"

	"github.com/stretchr/testify/require"

	"relaygate.dev/protocol/filter"
	"relaygate.dev/protocol/nostrevent"
	"relaygate.dev/utils/context"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a := New()
	require.NoError(t, a.Init(t.TempDir()))
	t.Cleanup(func() { _ = a.Close() })
	a.SetLeaseActive(true)
	return a
}

func sampleEvent(id, pubkey string, kind int, createdAt int64, tags nostrevent.Tags) *nostrevent.E {
	return &nostrevent.E{
		Id: id, Pubkey: pubkey, Kind: kind, CreatedAt: createdAt,
		Tags: tags, Content: "hello",
	}
}

func TestAppendEventRejectsWithoutLease(t *testing.T) {
	a := New()
	require.NoError(t, a.Init(t.TempDir()))
	t.Cleanup(func() { _ = a.Close() })

	err := a.AppendEvent(context.Bg(), "acme:east-1", sampleEvent("id1", "pub1", 1, 100, nil))
	require.Equal(t, ErrReadOnly, err)
}

func TestQueryByIdsRoundTrip(t *testing.T) {
	a := newTestAdapter(t)
	c := context.Bg()
	ev := sampleEvent("id1", "pub1", 1, 100, nil)
	require.NoError(t, a.AppendEvent(c, "acme:east-1", ev))

	out, err := a.Query(c, []*filter.F{{Ids: []string{"id1"}}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "id1", out[0].Event.Id)
}

func TestQueryByKindAndAuthorIntersects(t *testing.T) {
	a := newTestAdapter(t)
	c := context.Bg()
	require.NoError(t, a.AppendEvent(c, "r1", sampleEvent("id1", "pub1", 1, 100, nil)))
	require.NoError(t, a.AppendEvent(c, "r1", sampleEvent("id2", "pub1", 2, 101, nil)))
	require.NoError(t, a.AppendEvent(c, "r1", sampleEvent("id3", "pub2", 1, 102, nil)))

	out, err := a.Query(c, []*filter.F{{Kinds: []int{1}, Authors: []string{"pub1"}}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "id1", out[0].Event.Id)
}

func TestQueryByTagSelector(t *testing.T) {
	a := newTestAdapter(t)
	c := context.Bg()
	require.NoError(t, a.AppendEvent(
		c, "r1", sampleEvent("id1", "pub1", 1, 100, nostrevent.Tags{{"e", "root-id"}}),
	))
	require.NoError(t, a.AppendEvent(c, "r1", sampleEvent("id2", "pub1", 1, 101, nil)))

	out, err := a.Query(c, []*filter.F{{Tags: map[string][]string{"e": {"root-id"}}}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "id1", out[0].Event.Id)
}

func TestQueryOrdersNewestFirst(t *testing.T) {
	a := newTestAdapter(t)
	c := context.Bg()
	require.NoError(t, a.AppendEvent(c, "r1", sampleEvent("older", "pub1", 1, 100, nil)))
	require.NoError(t, a.AppendEvent(c, "r1", sampleEvent("newer", "pub1", 1, 200, nil)))

	out, err := a.Query(c, []*filter.F{{Authors: []string{"pub1"}}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "newer", out[0].Event.Id)
	require.Equal(t, "older", out[1].Event.Id)
}

func TestQueryAppliesPerFilterLimitBeforeMerge(t *testing.T) {
	a := newTestAdapter(t)
	c := context.Bg()
	require.NoError(t, a.AppendEvent(c, "r1", sampleEvent("id1", "pub1", 1, 100, nil)))
	require.NoError(t, a.AppendEvent(c, "r1", sampleEvent("id2", "pub1", 1, 101, nil)))
	require.NoError(t, a.AppendEvent(c, "r1", sampleEvent("id3", "pub1", 1, 102, nil)))

	limit := 1
	out, err := a.Query(c, []*filter.F{{Authors: []string{"pub1"}, Limit: &limit}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "id3", out[0].Event.Id)
}

func TestQueryMergesPerFilterLimitsAcrossMultipleFilters(t *testing.T) {
	a := newTestAdapter(t)
	c := context.Bg()
	require.NoError(t, a.AppendEvent(c, "r1", sampleEvent("id1", "pub1", 1, 100, nil)))
	require.NoError(t, a.AppendEvent(c, "r1", sampleEvent("id2", "pub1", 1, 101, nil)))
	require.NoError(t, a.AppendEvent(c, "r1", sampleEvent("id3", "pub2", 1, 102, nil)))
	require.NoError(t, a.AppendEvent(c, "r1", sampleEvent("id4", "pub2", 1, 103, nil)))

	limit := 1
	out, err := a.Query(c, []*filter.F{
		{Authors: []string{"pub1"}, Limit: &limit},
		{Authors: []string{"pub2"}, Limit: &limit},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "id4", out[0].Event.Id)
	require.Equal(t, "id2", out[1].Event.Id)
}

func TestAppendEventSupersedesOlderParameterizedReplaceable(t *testing.T) {
	a := newTestAdapter(t)
	c := context.Bg()
	tags := nostrevent.Tags{{"d", "profile-1"}}
	require.NoError(t, a.AppendEvent(c, "r1", sampleEvent("old", "pub1", 30001, 100, tags)))
	require.NoError(t, a.AppendEvent(c, "r1", sampleEvent("new", "pub1", 30001, 200, tags)))

	out, err := a.Query(c, []*filter.F{{Authors: []string{"pub1"}, Kinds: []int{30001}}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "new", out[0].Event.Id)

	_, err = a.Query(c, []*filter.F{{Ids: []string{"old"}}})
	require.NoError(t, err)
}

func TestAppendEventIgnoresOlderReplaceableWrite(t *testing.T) {
	a := newTestAdapter(t)
	c := context.Bg()
	tags := nostrevent.Tags{{"d", "profile-1"}}
	require.NoError(t, a.AppendEvent(c, "r1", sampleEvent("new", "pub1", 30001, 200, tags)))
	require.NoError(t, a.AppendEvent(c, "r1", sampleEvent("old", "pub1", 30001, 100, tags)))

	out, err := a.Query(c, []*filter.F{{Authors: []string{"pub1"}, Kinds: []int{30001}}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "new", out[0].Event.Id)
}

func TestStatsReflectsAppendedEventsAndDownloadedLag(t *testing.T) {
	a := newTestAdapter(t)
	c := context.Bg()
	require.NoError(t, a.AppendEvent(c, "r1", sampleEvent("id1", "pub1", 1, 100, nil)))
	require.NoError(t, a.AppendEvent(c, "r1", sampleEvent("id2", "pub1", 1, 101, nil)))

	stats, err := a.Stats()
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.Length)
	require.EqualValues(t, 0, stats.Downloaded)
	require.EqualValues(t, 2, stats.Lag)

	a.ObserveDownloaded(2)
	stats, err = a.Stats()
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.Downloaded)
	require.EqualValues(t, 0, stats.Lag)
}
