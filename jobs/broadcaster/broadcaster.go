// Package broadcaster drains the outbox to Kafka. Records are published at
// least once: an entry is marked SENT before the send and ACKED after the
// broker confirms it, so a crash in between republishes it on restart.
package broadcaster

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"lobster/infra/codec"
	"lobster/infra/metrics"
	exitwal "lobster/infra/wal/exit"
)

// Outbox is the part of the exit WAL the broadcaster drives.
type Outbox interface {
	ScanPending(maxRetries uint32, limit int, fn func(rec exitwal.ExitRecord) error) error
	MarkSent(seq uint64) error
	MarkAcked(seq uint64) error
	MarkFailed(seq uint64) error
}

type Config struct {
	Topic      string
	Interval   time.Duration
	MaxRetries uint32
	// BatchSize caps the entries sent per pass; 0 sends all pending.
	BatchSize int
}

type Broadcaster struct {
	outbox   Outbox
	producer sarama.SyncProducer
	cfg      Config
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// NewProducerConfig is the sarama configuration the broadcaster needs:
// synchronous sends acknowledged by every in-sync replica.
func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	return cfg
}

func New(outbox Outbox, producer sarama.SyncProducer, cfg Config, log *zap.Logger, m *metrics.Metrics) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{
		outbox:   outbox,
		producer: producer,
		cfg:      cfg,
		log:      log.Named("broadcaster"),
		metrics:  m,
	}
}

// NewFromBrokers dials brokers with NewProducerConfig.
func NewFromBrokers(outbox Outbox, brokers []string, cfg Config, log *zap.Logger, m *metrics.Metrics) (*Broadcaster, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, errors.Wrap(err, "broadcaster: producer")
	}
	return New(outbox, producer, cfg, log, m), nil
}

func (b *Broadcaster) Start(ctx context.Context) {
	b.log.Info("started", zap.String("topic", b.cfg.Topic), zap.Duration("interval", b.cfg.Interval))

	go func() {
		ticker := time.NewTicker(b.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := b.RunOnce(); err != nil {
					b.log.Error("pass failed", zap.Error(err))
				}
			}
		}
	}()
}

// RunOnce makes one pass over the pending entries and reports how many
// were acknowledged. A failed send marks the entry FAILED and moves on;
// only outbox errors abort the pass.
func (b *Broadcaster) RunOnce() (int, error) {
	acked, pending := 0, 0
	err := b.outbox.ScanPending(b.cfg.MaxRetries, b.cfg.BatchSize, func(rec exitwal.ExitRecord) error {
		pending++
		if err := b.outbox.MarkSent(rec.Seq); err != nil {
			return err
		}

		msg, err := b.message(rec)
		if err == nil {
			_, _, err = b.producer.SendMessage(msg)
		}
		if err != nil {
			b.log.Warn("send failed",
				zap.Uint64("seq", rec.Seq),
				zap.Uint32("retries", rec.Retries),
				zap.Error(err),
			)
			if b.metrics != nil {
				b.metrics.PublishFailures.WithLabelValues("outbox").Inc()
			}
			return b.outbox.MarkFailed(rec.Seq)
		}

		acked++
		return b.outbox.MarkAcked(rec.Seq)
	})
	if b.metrics != nil {
		b.metrics.OutboxPending.Set(float64(pending - acked))
	}
	return acked, err
}

func (b *Broadcaster) message(rec exitwal.ExitRecord) (*sarama.ProducerMessage, error) {
	env, err := codec.DecodeEnvelope(rec.Payload)
	if err != nil {
		return nil, errors.Wrapf(err, "broadcaster: seq %d", rec.Seq)
	}
	return &sarama.ProducerMessage{
		Topic: b.cfg.Topic,
		Key:   sarama.StringEncoder(env.Instrument),
		Value: sarama.ByteEncoder(rec.Payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(env.Kind.String())},
			{Key: []byte("session"), Value: []byte(env.Session)},
		},
	}, nil
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
