package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestore_ResumesLikeFullReplay(t *testing.T) {
	evs := randomSession(11, 600)
	p := Params{PInf: 900, PSup: 1100, TickSize: 1}
	var opts []Option
	for i := 0; i < len(evs); i += 60 {
		opts = append(opts, WithSchedule(evs[i].PriorityTime))
	}

	full, err := NewBook(p, opts...)
	require.NoError(t, err)
	for _, ev := range evs {
		require.NoError(t, full.Apply(ev))
	}

	head, err := NewBook(p, opts...)
	require.NoError(t, err)
	for _, ev := range evs[:300] {
		require.NoError(t, head.Apply(ev))
	}
	resumed, err := Restore(head.Checkpoint())
	require.NoError(t, err)
	for _, ev := range evs[300:] {
		require.NoError(t, resumed.Apply(ev))
	}

	want, got := full.Checkpoint(), resumed.Checkpoint()
	assert.Equal(t, want.Buy, got.Buy)
	assert.Equal(t, want.Sell, got.Sell)
	assert.Equal(t, want.Phase, got.Phase)
	assert.Equal(t, want.LastModified, got.LastModified)
	assert.Equal(t, full.Snapshots(), resumed.Snapshots())
	assert.Equal(t, full.Spreads(), resumed.Spreads())
	assert.Equal(t, full.PendingSchedule(), resumed.PendingSchedule())
}

func TestRestore_KeepsQueueOrder(t *testing.T) {
	b := newTestBook(t, Closed)
	applyAll(t, b,
		mkEvent(EventNew, Sell, 1, 1, 105, 3, 0),
		mkEvent(EventNew, Sell, 2, 2, 105, 4, 0),
		mkEvent(EventNew, Sell, 3, 3, 105, 5, 0),
		mkEvent(EventUpdate, Sell, 1, 4, 105, 3, 1),
	)
	r, err := Restore(b.Checkpoint())
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3, 1}, r.Queue(Sell, 105))
	assert.Equal(t, b.Depth(Sell), r.Depth(Sell))
}

func TestRestore_RejectsInconsistentCheckpoint(t *testing.T) {
	base := Checkpoint{Params: testParams(Closed)}

	dup := base
	dup.Buy = []RestingOrder{
		{Sequence: 1, Size: 5, Price: 100, LastModified: at(1)},
		{Sequence: 1, Size: 5, Price: 99, LastModified: at(1)},
	}
	_, err := Restore(dup)
	require.Error(t, err)

	filled := base
	filled.Sell = []RestingOrder{{Sequence: 1, Size: 5, Executed: 5, Price: 100}}
	_, err = Restore(filled)
	require.Error(t, err)

	outside := base
	outside.Sell = []RestingOrder{{Sequence: 1, Size: 5, Price: 9000}}
	_, err = Restore(outside)
	require.Error(t, err)

	crossed := base
	crossed.Phase = Open
	crossed.Buy = []RestingOrder{{Sequence: 1, Size: 5, Price: 101}}
	crossed.Sell = []RestingOrder{{Sequence: 2, Size: 5, Price: 100}}
	_, err = Restore(crossed)
	require.Error(t, err)
}
