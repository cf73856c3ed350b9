package service

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"lobster/domain/orderbook"
	"lobster/feed"
	"lobster/infra/codec"
	entrywal "lobster/infra/wal/entry"
)

// Stats counts what a service has processed since it started.
type Stats struct {
	Events    uint64
	Fills     uint64
	Snapshots uint64
	Spreads   uint64
	Notices   uint64
}

func (a Stats) sub(b Stats) Stats {
	return Stats{
		Events:    a.Events - b.Events,
		Fills:     a.Fills - b.Fills,
		Snapshots: a.Snapshots - b.Snapshots,
		Spreads:   a.Spreads - b.Spreads,
		Notices:   a.Notices - b.Notices,
	}
}

// Ingest applies every event of src in order. It stops at the first fatal
// error, which it returns, or when ctx is done. The returned Stats cover
// this call only.
func (s *ReplayService) Ingest(ctx context.Context, src feed.Source) (Stats, error) {
	before := s.Stats()
	s.log.Info("ingest started")

	opened := false
	for src.Next() {
		if err := ctx.Err(); err != nil {
			return s.Stats().sub(before), err
		}
		ev := src.Event()
		if !opened {
			// Stamped with the feed's clock so the journal depends on the feed alone.
			if err := s.journalSession(ev.PriorityTime); err != nil {
				return s.Stats().sub(before), err
			}
			opened = true
		}
		if err := s.Apply(ctx, ev); err != nil {
			return s.Stats().sub(before), err
		}
	}
	if err := src.Err(); err != nil {
		return s.Stats().sub(before), errors.Wrap(err, "service: source")
	}

	st := s.Stats().sub(before)
	s.log.Info("ingest finished",
		zap.Uint64("events", st.Events),
		zap.Uint64("fills", st.Fills),
		zap.Uint64("snapshots", st.Snapshots),
		zap.Uint64("spreads", st.Spreads),
	)
	return st, nil
}

func (s *ReplayService) journalSession(at time.Time) error {
	j := s.deps.Journal
	if j == nil {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	rec := entrywal.NewSessionRecord(s.journalSeq.Next(), s.opts.Instrument, at.UnixNano())
	return errors.Wrap(j.Append(rec), "service: journal session")
}

// Apply journals ev, applies it to the book and publishes what the book
// recorded. A book error is fatal and sticky; journal and outbox errors
// are returned without touching the book.
func (s *ReplayService) Apply(ctx context.Context, ev orderbook.Event) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start := time.Now()
	if err := s.book.Halted(); err != nil {
		return errors.Mark(errors.Wrap(err, "service: book halted"), orderbook.ErrHalted)
	}

	seq := s.journalSeq.Next()
	if j := s.deps.Journal; j != nil {
		if err := j.Append(entrywal.NewEventRecord(seq, ev)); err != nil {
			return errors.Wrapf(err, "service: journal seq %d", seq)
		}
	}

	if err := s.applyLocked(ev, seq); err != nil {
		s.log.Error("event halted the book",
			zap.Uint64("seq", seq),
			zap.Stringer("event", ev),
			zap.Stringer("kind", orderbook.KindOf(err)),
			zap.Error(err),
		)
		if m := s.deps.Metrics; m != nil {
			m.FatalErrors.WithLabelValues(orderbook.KindOf(err).String()).Inc()
		}
		s.discard()
		return errors.Wrapf(err, "service: apply seq %d", seq)
	}

	err := s.flush(ctx, seq)
	if m := s.deps.Metrics; m != nil {
		m.EventsApplied.WithLabelValues(ev.Kind.String()).Inc()
		m.ApplyLatency.Observe(time.Since(start).Seconds())
	}
	return err
}

// applyLocked runs ev through the book under the write lock.
func (s *ReplayService) applyLocked(ev orderbook.Event, seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.book.Apply(ev); err != nil {
		return err
	}
	s.applied = seq
	s.last = ev
	s.stats.Events++
	s.stats.Fills += uint64(len(s.fills))
	s.stats.Snapshots += uint64(len(s.snaps))
	s.stats.Spreads += uint64(len(s.spreads))
	if m := s.deps.Metrics; m != nil {
		m.RestingOrders.WithLabelValues(orderbook.Buy.String()).Set(float64(s.book.OrderCount(orderbook.Buy)))
		m.RestingOrders.WithLabelValues(orderbook.Sell.String()).Set(float64(s.book.OrderCount(orderbook.Sell)))
	}
	return nil
}

func (s *ReplayService) discard() {
	s.fills = s.fills[:0]
	s.snaps = s.snaps[:0]
	s.spreads = s.spreads[:0]
}

// flush hands the records produced by the last event to the sinks. The
// outbox is the durable path and its errors are returned; Kafka and Redis
// failures are logged and counted only.
func (s *ReplayService) flush(ctx context.Context, seq uint64) error {
	defer s.discard()
	m := s.deps.Metrics

	for _, sn := range s.snaps {
		if m != nil {
			m.Snapshots.Inc()
		}
		if err := s.toOutbox(sn); err != nil {
			return err
		}
	}
	for _, sp := range s.spreads {
		if m != nil {
			m.SpreadSamples.Inc()
		}
		if err := s.toOutbox(sp); err != nil {
			return err
		}
	}
	if n := len(s.spreads); n > 0 && s.deps.Quotes != nil {
		if err := s.deps.Quotes.Put(ctx, s.opts.Instrument, s.spreads[n-1]); err != nil {
			s.log.Warn("quote cache update failed", zap.Error(err))
			if m != nil {
				m.PublishFailures.WithLabelValues("redis").Inc()
			}
		}
	}

	if len(s.fills) == 0 {
		return nil
	}
	envs := make([]codec.Envelope, 0, len(s.fills))
	for _, f := range s.fills {
		if m != nil {
			m.Fills.Inc()
			m.FilledVolume.Add(float64(f.Size))
		}
		env, err := codec.Wrap(s.session, s.opts.Instrument, seq, f)
		if err != nil {
			return err
		}
		envs = append(envs, env)
	}
	if s.deps.Fills != nil {
		if err := s.deps.Fills.PublishFills(ctx, envs); err != nil {
			s.log.Warn("fill publication failed", zap.Int("fills", len(envs)), zap.Error(err))
			if m != nil {
				m.PublishFailures.WithLabelValues("kafka").Inc()
			}
		}
	}
	return nil
}

func (s *ReplayService) toOutbox(v any) error {
	if s.deps.Outbox == nil {
		return nil
	}
	seq := s.outboxSeq.Next()
	env, err := codec.Wrap(s.session, s.opts.Instrument, seq, v)
	if err != nil {
		return err
	}
	if err := s.deps.Outbox.PutNew(seq, codec.EncodeEnvelope(env)); err != nil {
		return errors.Wrapf(err, "service: outbox seq %d", seq)
	}
	return nil
}
