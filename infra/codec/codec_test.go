package codec

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"lobster/domain/orderbook"
)

var ts = time.Date(2019, 6, 28, 10, 15, 0, 123456789, time.UTC)

func TestEvent_RoundTripKeepsEveryField(t *testing.T) {
	ev := orderbook.Event{
		PriorityTime: ts,
		Sequence:     8_001_234,
		GenerationID: 77,
		Side:         orderbook.Sell,
		Kind:         orderbook.EventTrade,
		RawKind:      4,
		Price:        2_675_000,
		Size:         300,
		Executed:     100,
		Condition:    2,
		State:        "F",
	}
	got, err := DecodeEvent(EncodeEvent(ev))
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestEvent_ZeroTimeIsOmitted(t *testing.T) {
	ev := orderbook.Event{Sequence: 1, Kind: orderbook.EventCancel}
	got, err := DecodeEvent(EncodeEvent(ev))
	require.NoError(t, err)
	assert.True(t, got.PriorityTime.IsZero())
	assert.Equal(t, ev, got)
}

func TestEvent_NegativeValuesSurvive(t *testing.T) {
	ev := orderbook.Event{PriorityTime: ts, Sequence: 3, Kind: orderbook.EventNew, Price: -5, Size: -1, RawKind: -2}
	got, err := DecodeEvent(EncodeEvent(ev))
	require.NoError(t, err)
	assert.Equal(t, int64(-5), got.Price)
	assert.Equal(t, int64(-1), got.Size)
	assert.Equal(t, int32(-2), got.RawKind)
}

func TestDecode_SkipsUnknownFields(t *testing.T) {
	b := EncodeFill(orderbook.Fill{Time: ts, BuySeq: 1, SellSeq: 2, Price: 10, Size: 3})
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("future"))

	f, err := DecodeFill(b)
	require.NoError(t, err)
	assert.Equal(t, orderbook.Fill{Time: ts, BuySeq: 1, SellSeq: 2, Price: 10, Size: 3}, f)
}

func TestDecode_TruncatedIsCorrupt(t *testing.T) {
	b := EncodeEvent(orderbook.Event{PriorityTime: ts, Sequence: 1 << 40})
	_, err := DecodeEvent(b[:len(b)-1])
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptRecord))
}

func TestSnapshot_RoundTrip(t *testing.T) {
	s := orderbook.Snapshot{
		ScheduledTime: ts,
		Buy:           []orderbook.Level{{Price: 100, Size: 5}, {Price: 99, Size: 1}},
		Sell:          []orderbook.Level{{Price: 101, Size: 7}},
	}
	got, err := DecodeSnapshot(EncodeSnapshot(s))
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestSpread_RoundTrip(t *testing.T) {
	s := orderbook.SpreadSample{Time: ts, BidPrice: 100, BidSize: 2, AskPrice: 103, AskSize: 9}
	got, err := DecodeSpread(EncodeSpread(s))
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestEnvelope_WrapAndUnwrap(t *testing.T) {
	sample := orderbook.SpreadSample{Time: ts, BidPrice: 1, BidSize: 1, AskPrice: 2, AskSize: 1}
	e, err := Wrap("session-1", "PETR4", 42, sample)
	require.NoError(t, err)
	assert.Equal(t, KindSpread, e.Kind)

	decoded, err := DecodeEnvelope(EncodeEnvelope(e))
	require.NoError(t, err)
	assert.Equal(t, e, decoded)

	v, err := decoded.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, sample, v)
}

func TestEnvelope_RejectsUnknownPayloads(t *testing.T) {
	_, err := Wrap("s", "i", 1, "not a record")
	require.Error(t, err)

	_, err = Envelope{Kind: 0}.Unwrap()
	assert.True(t, errors.Is(err, ErrCorruptRecord))
}
