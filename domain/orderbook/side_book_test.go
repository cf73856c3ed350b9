package orderbook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2019, 6, 28, 10, 0, 0, 0, time.UTC)

func at(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

func mkEvent(kind EventKind, side Side, seq uint64, ms int, price, size, executed int64) Event {
	return Event{
		PriorityTime: at(ms),
		Sequence:     seq,
		GenerationID: uint64(ms),
		Side:         side,
		Kind:         kind,
		Price:        price,
		Size:         size,
		Executed:     executed,
	}
}

func testParams(phase Phase) Params {
	return Params{PInf: 0, PSup: 7000, TickSize: 1, Phase: phase}
}

func newTestSide(t *testing.T, side Side) (*SideBook, *[]Notice) {
	t.Helper()
	var notices []Notice
	s, err := NewSideBook(side, testParams(Closed), func(n Notice) { notices = append(notices, n) })
	require.NoError(t, err)
	return s, &notices
}

func aggregateAt(s *SideBook, price int64) int64 {
	idx, ok := s.params.Index(price)
	if !ok {
		return 0
	}
	return s.levels[idx].Aggregate
}

func TestSideBook_NewRests(t *testing.T) {
	s, _ := newTestSide(t, Buy)
	require.NoError(t, s.Apply(mkEvent(EventNew, Buy, 1, 1, 100, 10, 0)))

	assert.Equal(t, int64(10), aggregateAt(s, 100))
	assert.Equal(t, 1, s.Len())
	o, ok := s.Order(1)
	require.True(t, ok)
	assert.Equal(t, int64(10), o.Remaining())
	assert.Equal(t, at(1), o.LastModified)
	require.NoError(t, s.Verify())
}

func TestSideBook_CancelRemoves(t *testing.T) {
	s, _ := newTestSide(t, Buy)
	require.NoError(t, s.Apply(mkEvent(EventNew, Buy, 1, 1, 100, 10, 0)))
	require.NoError(t, s.Apply(mkEvent(EventCancel, Buy, 1, 2, 100, 10, 0)))

	assert.Zero(t, aggregateAt(s, 100))
	assert.Zero(t, s.Len())
	_, ok := s.Best()
	assert.False(t, ok)
	require.NoError(t, s.Verify())
}

func TestSideBook_CancelIsIdempotent(t *testing.T) {
	s, notices := newTestSide(t, Sell)
	require.NoError(t, s.Apply(mkEvent(EventNew, Sell, 1, 1, 100, 10, 0)))
	require.NoError(t, s.Apply(mkEvent(EventNew, Sell, 2, 1, 100, 3, 0)))
	require.NoError(t, s.Apply(mkEvent(EventCancel, Sell, 1, 2, 100, 10, 0)))
	once := s.Depth()

	require.NoError(t, s.Apply(mkEvent(EventCancel, Sell, 1, 3, 100, 10, 0)))
	assert.Equal(t, once, s.Depth())
	require.Len(t, *notices, 1)
	assert.Equal(t, NoticeUnknownCancel, (*notices)[0].Kind)
}

func TestSideBook_ExpireOfUnknownIsNoop(t *testing.T) {
	s, notices := newTestSide(t, Buy)
	require.NoError(t, s.Apply(mkEvent(EventExpire, Buy, 7, 1, 100, 10, 0)))
	assert.Zero(t, s.Len())
	assert.Len(t, *notices, 1)
}

func TestSideBook_DuplicateNewReplaces(t *testing.T) {
	s, notices := newTestSide(t, Buy)
	require.NoError(t, s.Apply(mkEvent(EventNew, Buy, 1, 1, 100, 10, 0)))
	require.NoError(t, s.Apply(mkEvent(EventNew, Buy, 1, 2, 101, 5, 0)))

	assert.Zero(t, aggregateAt(s, 100))
	assert.Equal(t, int64(5), aggregateAt(s, 101))
	assert.Equal(t, 1, s.Len())
	require.Len(t, *notices, 1)
	assert.Equal(t, NoticeDuplicateNew, (*notices)[0].Kind)
	require.NoError(t, s.Verify())
}

func TestSideBook_UpdateRequeuesAndOverwritesExecuted(t *testing.T) {
	s, _ := newTestSide(t, Buy)
	require.NoError(t, s.Apply(mkEvent(EventNew, Buy, 1, 1, 100, 10, 0)))
	require.NoError(t, s.Apply(mkEvent(EventNew, Buy, 2, 2, 100, 5, 0)))
	require.NoError(t, s.Apply(mkEvent(EventUpdate, Buy, 1, 3, 100, 8, 2)))

	assert.Equal(t, []uint64{2, 1}, s.Queue(100))
	assert.Equal(t, int64(11), aggregateAt(s, 100))
	o, _ := s.Order(1)
	assert.Equal(t, int64(2), o.Executed)
	assert.Equal(t, int64(8), o.Size)
	require.NoError(t, s.Verify())
}

func TestSideBook_UpdateMovesPrice(t *testing.T) {
	s, _ := newTestSide(t, Sell)
	require.NoError(t, s.Apply(mkEvent(EventNew, Sell, 1, 1, 100, 10, 0)))
	require.NoError(t, s.Apply(mkEvent(EventUpdate, Sell, 1, 2, 98, 10, 0)))

	assert.Zero(t, aggregateAt(s, 100))
	assert.Equal(t, int64(10), aggregateAt(s, 98))
	best, ok := s.Best()
	require.True(t, ok)
	assert.Equal(t, int64(98), best.Price)
	require.NoError(t, s.Verify())
}

func TestSideBook_UpdateOfUnknownActsAsNew(t *testing.T) {
	s, notices := newTestSide(t, Buy)
	require.NoError(t, s.Apply(mkEvent(EventUpdate, Buy, 5, 1, 50, 3, 0)))

	assert.Equal(t, int64(3), aggregateAt(s, 50))
	assert.Equal(t, 1, s.Len())
	require.Len(t, *notices, 1)
	assert.Equal(t, NoticeImplicitNew, (*notices)[0].Kind)
}

func TestSideBook_ReentryResetsPriority(t *testing.T) {
	s, _ := newTestSide(t, Sell)
	require.NoError(t, s.Apply(mkEvent(EventNew, Sell, 1, 1, 100, 4, 0)))
	require.NoError(t, s.Apply(mkEvent(EventNew, Sell, 2, 2, 100, 4, 0)))
	require.NoError(t, s.Apply(mkEvent(EventReentry, Sell, 1, 3, 100, 4, 0)))

	assert.Equal(t, []uint64{2, 1}, s.Queue(100))
	assert.Equal(t, int64(8), aggregateAt(s, 100))
}

func TestSideBook_TradeCreditsDelta(t *testing.T) {
	s, _ := newTestSide(t, Buy)
	require.NoError(t, s.Apply(mkEvent(EventNew, Buy, 1, 1, 100, 10, 0)))
	require.NoError(t, s.Apply(mkEvent(EventNew, Buy, 2, 2, 100, 10, 0)))
	require.NoError(t, s.Apply(mkEvent(EventTrade, Buy, 1, 3, 100, 10, 3)))

	assert.Equal(t, int64(17), aggregateAt(s, 100))
	assert.Equal(t, []uint64{1, 2}, s.Queue(100), "partial fill keeps queue position")

	require.NoError(t, s.Apply(mkEvent(EventTrade, Buy, 1, 4, 100, 10, 10)))
	assert.Equal(t, int64(10), aggregateAt(s, 100))
	_, ok := s.Order(1)
	assert.False(t, ok, "fully executed order leaves the book")
	require.NoError(t, s.Verify())
}

func TestSideBook_TradeRejectsNonPositiveDelta(t *testing.T) {
	s, _ := newTestSide(t, Buy)
	require.NoError(t, s.Apply(mkEvent(EventNew, Buy, 1, 1, 100, 10, 0)))
	require.NoError(t, s.Apply(mkEvent(EventTrade, Buy, 1, 2, 100, 10, 4)))

	err := s.Apply(mkEvent(EventTrade, Buy, 1, 3, 100, 10, 4))
	require.ErrorIs(t, err, ErrNonPositiveTrade)
	assert.Equal(t, KindNonPositiveTrade, KindOf(err))
	assert.Equal(t, int64(6), aggregateAt(s, 100))
}

func TestSideBook_TradeAtNewPriceRepositions(t *testing.T) {
	s, notices := newTestSide(t, Sell)
	require.NoError(t, s.Apply(mkEvent(EventNew, Sell, 1, 1, 100, 10, 0)))
	require.NoError(t, s.Apply(mkEvent(EventNew, Sell, 2, 1, 102, 1, 0)))
	require.NoError(t, s.Apply(mkEvent(EventTrade, Sell, 1, 2, 102, 10, 5)))

	assert.Zero(t, aggregateAt(s, 100))
	assert.Equal(t, int64(6), aggregateAt(s, 102))
	assert.Equal(t, []uint64{2, 1}, s.Queue(102))
	o, _ := s.Order(1)
	assert.Equal(t, int64(102), o.Price)
	require.Len(t, *notices, 1)
	assert.Equal(t, NoticeTradeRepriced, (*notices)[0].Kind)
	require.NoError(t, s.Verify())
}

func TestSideBook_TradeOfUnknownActsAsNew(t *testing.T) {
	s, _ := newTestSide(t, Sell)
	require.NoError(t, s.Apply(mkEvent(EventTrade, Sell, 9, 1, 50, 10, 4)))

	assert.Equal(t, int64(6), aggregateAt(s, 50))
	o, ok := s.Order(9)
	require.True(t, ok)
	assert.Equal(t, int64(4), o.Executed)
}

func TestSideBook_MalformedLeavesStateUnchanged(t *testing.T) {
	s, _ := newTestSide(t, Buy)
	require.NoError(t, s.Apply(mkEvent(EventNew, Buy, 1, 1, 100, 10, 0)))
	before := s.Depth()

	cases := []struct {
		name string
		ev   Event
	}{
		{"executed above size", mkEvent(EventUpdate, Buy, 1, 2, 100, 10, 12)},
		{"new already executed", mkEvent(EventNew, Buy, 2, 2, 100, 10, 1)},
		{"negative size", mkEvent(EventNew, Buy, 3, 2, 100, -1, 0)},
		{"price below ladder", mkEvent(EventNew, Buy, 4, 2, -1, 1, 0)},
		{"price above ladder", mkEvent(EventNew, Buy, 5, 2, 7000, 1, 0)},
		{"wrong side", mkEvent(EventNew, Sell, 6, 2, 100, 1, 0)},
		{"trade past resting size", mkEvent(EventTrade, Buy, 1, 2, 100, 20, 15)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.Apply(tc.ev)
			require.ErrorIs(t, err, ErrMalformedEvent)
			assert.Equal(t, before, s.Depth())
			assert.Equal(t, 1, s.Len())
		})
	}
}

func TestSideBook_UnknownKindIsSurfaced(t *testing.T) {
	s, _ := newTestSide(t, Buy)
	ev := mkEvent(EventUnknown, Buy, 1, 1, 100, 10, 0)
	ev.RawKind = 7
	err := s.Apply(ev)
	require.ErrorIs(t, err, ErrUnknownEventKind)

	var ee *EventError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, uint64(1), ee.Event.Sequence)
}

func TestSideBook_BestTracksAcrossEmptySlots(t *testing.T) {
	s, _ := newTestSide(t, Buy)
	require.NoError(t, s.Apply(mkEvent(EventNew, Buy, 1, 1, 90, 1, 0)))
	require.NoError(t, s.Apply(mkEvent(EventNew, Buy, 2, 1, 110, 1, 0)))
	require.NoError(t, s.Apply(mkEvent(EventNew, Buy, 3, 1, 100, 1, 0)))

	best, _ := s.Best()
	assert.Equal(t, int64(110), best.Price)
	require.NoError(t, s.Apply(mkEvent(EventCancel, Buy, 2, 2, 0, 0, 0)))
	best, _ = s.Best()
	assert.Equal(t, int64(100), best.Price)
	assert.Equal(t, []Level{{Price: 100, Size: 1}, {Price: 90, Size: 1}}, s.Depth())
	require.NoError(t, s.Verify())
}

func TestSideBook_TickSizeBucketsPrices(t *testing.T) {
	s, err := NewSideBook(Sell, Params{PInf: 1000, PSup: 2000, TickSize: 5}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Apply(mkEvent(EventNew, Sell, 1, 1, 1003, 2, 0)))
	require.NoError(t, s.Apply(mkEvent(EventNew, Sell, 2, 1, 1001, 3, 0)))

	assert.Equal(t, []Level{{Price: 1000, Size: 5}}, s.Depth())
	assert.Equal(t, 200, s.params.BookSize())
}

func TestSideBook_CorruptAggregateIsNegativeDepth(t *testing.T) {
	s, _ := newTestSide(t, Buy)
	require.NoError(t, s.Apply(mkEvent(EventNew, Buy, 1, 1, 100, 10, 0)))
	require.NoError(t, s.Verify())

	idx, ok := s.params.Index(100)
	require.True(t, ok)
	s.levels[idx].Aggregate = 4

	o := s.orders[1]
	trade := mkEvent(EventTrade, Buy, 1, 2, 100, 10, 6)
	err := s.execute(o, 6, at(2), trade)
	assert.ErrorIs(t, err, ErrNegativeDepth)
	assert.Equal(t, KindNegativeDepth, KindOf(err))
	assert.Zero(t, o.Executed, "failed debit must not touch the order")

	err = s.remove(o, mkEvent(EventCancel, Buy, 1, 3, 100, 10, 0))
	assert.ErrorIs(t, err, ErrNegativeDepth)
	assert.Equal(t, KindNegativeDepth, KindOf(err))
	assert.Equal(t, int64(4), s.levels[idx].Aggregate)
	assert.Equal(t, 1, s.Len())

	assert.ErrorIs(t, s.Apply(mkEvent(EventCancel, Buy, 1, 4, 100, 10, 0)), ErrNegativeDepth)
	assert.Error(t, s.Verify())
}
