package service

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"lobster/snapshot"
)

// WriteCheckpoint persists the book and drops journal segments and acked
// outbox entries the checkpoint covers. It returns the journal sequence
// the checkpoint reflects.
func (s *ReplayService) WriteCheckpoint(w *snapshot.Writer) (uint64, error) {
	s.mu.RLock()
	seq := s.applied
	snap := snapshot.Snapshot{
		Instrument: s.opts.Instrument,
		Seq:        seq,
		Last:       s.last,
		Book:       s.book.Checkpoint(),
	}
	s.mu.RUnlock()

	if j := s.deps.Journal; j != nil {
		// the checkpoint must never be ahead of the journal
		if err := j.Sync(); err != nil {
			return 0, errors.Wrap(err, "service: journal sync")
		}
	}
	if err := w.Write(snap); err != nil {
		return 0, err
	}

	if j := s.deps.Journal; j != nil {
		if err := j.TruncateBefore(seq); err != nil {
			return seq, errors.Wrap(err, "service: journal truncate")
		}
	}
	if o := s.deps.Outbox; o != nil {
		n, err := o.TruncateAckedUpTo(s.outboxSeq.Current())
		if err != nil {
			return seq, errors.Wrap(err, "service: outbox truncate")
		}
		s.log.Debug("outbox compacted", zap.Int("removed", n))
	}
	return seq, nil
}

// StartCheckpointJob writes a checkpoint to dir every interval until ctx
// is done.
func (s *ReplayService) StartCheckpointJob(ctx context.Context, dir string, interval time.Duration) {
	w := &snapshot.Writer{Dir: dir}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			seq, err := s.WriteCheckpoint(w)
			if err != nil {
				s.log.Error("checkpoint failed", zap.Error(err))
				continue
			}
			s.log.Info("checkpoint written", zap.Uint64("seq", seq))
		}
	}()
}
