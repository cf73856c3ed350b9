package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobster/domain/orderbook"
	"lobster/infra/codec"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublishFills_KeysByInstrument(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w}
	fill := orderbook.Fill{Time: time.Date(2019, 6, 28, 10, 0, 0, 0, time.UTC), BuySeq: 1, SellSeq: 2, Price: 100, Size: 5}
	env, err := codec.Wrap("s1", "PETR4", 7, fill)
	require.NoError(t, err)

	require.NoError(t, p.PublishFills(context.Background(), []codec.Envelope{env}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("PETR4"), w.msgs[0].Key)

	got, err := codec.DecodeEnvelope(w.msgs[0].Value)
	require.NoError(t, err)
	v, err := got.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, fill, v)
	assert.Equal(t, kafka.Header{Key: "kind", Value: []byte("fill")}, w.msgs[0].Headers[0])
}

func TestPublishFills_EmptyIsNoop(t *testing.T) {
	w := &fakeWriter{err: errors.New("unreachable")}
	p := &Producer{writer: w}
	require.NoError(t, p.PublishFills(context.Background(), nil))
}

func TestPublishFills_WrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := &Producer{writer: &fakeWriter{err: boom}}
	err := p.PublishFills(context.Background(), []codec.Envelope{{Instrument: "X", Kind: codec.KindFill}})
	assert.True(t, errors.Is(err, boom))
}

func TestClose(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, (&Producer{writer: w}).Close())
	assert.True(t, w.closed)
}
