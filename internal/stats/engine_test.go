package stats

import (
	"testing"

	"github.com/rich-project/plexid/internal/cos"
	"github.com/rich-project/plexid/internal/euiaddr"
	"github.com/rich-project/plexid/internal/mac"
	"github.com/stretchr/testify/require"
)

// fakeSchedule is a minimal mac.Schedule double so the stats engine
// can be tested without a real schedule.Manager.
type fakeSchedule struct {
	links []mac.LinkRef
}

func (f *fakeSchedule) LinksAt(sfHandle uint32, timeslot uint16) []mac.LinkRef {
	var out []mac.LinkRef
	for _, l := range f.links {
		if l.SlotframeHandle == sfHandle {
			out = append(out, l)
		}
	}
	return out
}

func (f *fakeSchedule) Find(filter mac.LinkFilter) []mac.LinkRef {
	var out []mac.LinkRef
	for _, l := range f.links {
		if filter.SlotframeHandle != nil && *filter.SlotframeHandle != l.SlotframeHandle {
			continue
		}
		out = append(out, l)
	}
	return out
}

var _ mac.Schedule = (*fakeSchedule)(nil)

func mustAddr(t *testing.T, s string) euiaddr.Addr {
	t.Helper()
	a, err := euiaddr.Parse(s)
	require.NoError(t, err)
	return a
}

func TestRSSIEwmaWorkedExample(t *testing.T) {
	sched := &fakeSchedule{links: []mac.LinkRef{{SlotframeHandle: 1, LinkHandle: 7}}}
	e := NewEngine(sched, 16, 16)

	ids, err := e.Configure(ConfigureRequest{
		Slotframe: uint32p(1),
		Metric:    "rssi",
		Enable:    true,
		Window:    16,
	})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	sender := mustAddr(t, "0:12:74:1:1:1:1:1")
	for _, sample := range []int8{-60, -62, -58} {
		e.OnRx(mac.FrameMeta{Sender: sender, SlotframeHandle: 1, Timeslot: 0, RSSI: sample})
	}

	entries := e.EntriesOnLink(7)
	require.Len(t, entries, 1)
	require.Equal(t, int64(-59), entries[0].Value)
}

func TestBroadcastETXRejected(t *testing.T) {
	sched := &fakeSchedule{links: []mac.LinkRef{{SlotframeHandle: 1, LinkHandle: 7, Broadcast: true}}}
	e := NewEngine(sched, 16, 16)

	_, err := e.Configure(ConfigureRequest{
		Slotframe: uint32p(1),
		Metric:    "etx",
		Enable:    true,
	})
	require.Error(t, err)
	require.ErrorIs(t, err, cos.ErrBadRequest)
}

func TestConfigureRejectsUnknownMetric(t *testing.T) {
	sched := &fakeSchedule{}
	e := NewEngine(sched, 16, 16)
	_, err := e.Configure(ConfigureRequest{Metric: "bogus", Enable: true})
	require.ErrorIs(t, err, cos.ErrBadRequest)
}

func TestPurgeOnLinkRemovesAllEntries(t *testing.T) {
	sched := &fakeSchedule{links: []mac.LinkRef{{SlotframeHandle: 1, LinkHandle: 7}}}
	e := NewEngine(sched, 16, 16)
	_, err := e.Configure(ConfigureRequest{Slotframe: uint32p(1), Metric: "rssi", Enable: true})
	require.NoError(t, err)
	require.Len(t, e.EntriesOnLink(7), 1)

	e.PurgeOnLink(7)
	require.Empty(t, e.EntriesOnLink(7))
}

func TestPurgeNeighborRemovesEnhancedAcrossLinks(t *testing.T) {
	sched := &fakeSchedule{links: []mac.LinkRef{
		{SlotframeHandle: 1, LinkHandle: 7, Shared: true},
		{SlotframeHandle: 1, LinkHandle: 8, Shared: true},
	}}
	e := NewEngine(sched, 16, 16)
	_, err := e.Configure(ConfigureRequest{Slotframe: uint32p(1), Metric: "rssi", Enable: true})
	require.NoError(t, err)

	peer := mustAddr(t, "0:12:74:1:1:1:1:1")
	e.OnRx(mac.FrameMeta{Sender: peer, SlotframeHandle: 1, Timeslot: 0, RSSI: -60})

	e.PurgeNeighbor(peer)

	for _, h := range []uint32{7, 8} {
		for _, entry := range e.EntriesOnLink(h) {
			require.Empty(t, entry.enhOrder)
		}
	}
}

func TestETXIgnoresUnackedTransmissions(t *testing.T) {
	sched := &fakeSchedule{links: []mac.LinkRef{{SlotframeHandle: 1, LinkHandle: 7}}}
	e := NewEngine(sched, 16, 16)
	_, err := e.Configure(ConfigureRequest{Slotframe: uint32p(1), Metric: "etx", Enable: true})
	require.NoError(t, err)

	receiver := mustAddr(t, "0:12:74:1:1:1:1:1")
	e.OnTxComplete(mac.FrameMeta{Receiver: receiver, SlotframeHandle: 1, Timeslot: 0, TxAttempts: 1}, false)
	entries := e.EntriesOnLink(7)
	require.Equal(t, int64(-1), entries[0].Value, "no sample recorded for an unacked frame")

	e.OnTxComplete(mac.FrameMeta{Receiver: receiver, SlotframeHandle: 1, Timeslot: 0, TxAttempts: 1}, true)
	entries = e.EntriesOnLink(7)
	require.Equal(t, int64(256), entries[0].Value, "first acked sample replaces the sentinel")
}

func TestOnRxUpdatesDisabledEntry(t *testing.T) {
	sched := &fakeSchedule{links: []mac.LinkRef{{SlotframeHandle: 1, LinkHandle: 7}}}
	e := NewEngine(sched, 16, 16)

	_, err := e.Configure(ConfigureRequest{
		Slotframe: uint32p(1),
		Metric:    "rssi",
		Enable:    false,
		Window:    16,
	})
	require.NoError(t, err)

	sender := mustAddr(t, "0:12:74:1:1:1:1:1")
	e.OnRx(mac.FrameMeta{Sender: sender, SlotframeHandle: 1, Timeslot: 0, RSSI: -60})

	entries := e.EntriesOnLink(7)
	require.Len(t, entries, 1)
	require.False(t, entries[0].Enabled)
	require.Equal(t, int64(-60), entries[0].Value, "disabled entries still accumulate samples")
}

func TestConfigureSeedsValueOnNewAndExistingEntry(t *testing.T) {
	sched := &fakeSchedule{links: []mac.LinkRef{{SlotframeHandle: 1, LinkHandle: 7}}}
	e := NewEngine(sched, 16, 16)

	seed := int64(-70)
	_, err := e.Configure(ConfigureRequest{
		Slotframe: uint32p(1),
		Metric:    "rssi",
		Enable:    true,
		Window:    16,
		Value:     &seed,
	})
	require.NoError(t, err)
	entries := e.EntriesOnLink(7)
	require.Len(t, entries, 1)
	require.Equal(t, seed, entries[0].Value, "value? seeds a newly-allocated entry")

	reseed := int64(-40)
	_, err = e.Configure(ConfigureRequest{
		Slotframe: uint32p(1),
		Metric:    "rssi",
		Enable:    true,
		Window:    32,
		Value:     &reseed,
	})
	require.NoError(t, err)
	entries = e.EntriesOnLink(7)
	require.Len(t, entries, 1)
	require.Equal(t, reseed, entries[0].Value, "value? overwrites an existing entry's value")
}

func uint32p(v uint32) *uint32 { return &v }
