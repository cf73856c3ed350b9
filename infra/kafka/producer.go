package kafka

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"

	"lobster/infra/codec"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes matcher fills. Messages are keyed by instrument so a
// consumer sees one instrument's fills in order.
type Producer struct {
	writer messageWriter
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Producer) Send(ctx context.Context, key []byte, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
	})
}

// PublishFills writes the envelopes as one batch.
func (p *Producer) PublishFills(ctx context.Context, fills []codec.Envelope) error {
	if len(fills) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(fills))
	for _, env := range fills {
		msgs = append(msgs, kafka.Message{
			Key:   []byte(env.Instrument),
			Value: codec.EncodeEnvelope(env),
			Headers: []kafka.Header{
				{Key: "kind", Value: []byte(env.Kind.String())},
				{Key: "session", Value: []byte(env.Session)},
			},
		})
	}
	return errors.Wrapf(p.writer.WriteMessages(ctx, msgs...), "kafka: publish %d fills", len(msgs))
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
