package service

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"lobster/domain/orderbook"
	entrywal "lobster/infra/wal/entry"
	"lobster/snapshot"
)

// Restore replaces the book with a checkpoint. It must run before any
// event is applied.
func (s *ReplayService) Restore(snap *snapshot.Snapshot) error {
	if snap.Instrument != s.opts.Instrument {
		return errors.Newf("service: checkpoint is for %q, not %q", snap.Instrument, s.opts.Instrument)
	}
	book, err := orderbook.Restore(snap.Book, s.bookOptions()...)
	if err != nil {
		return errors.Wrap(err, "service: restore checkpoint")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	s.book = book
	s.applied = snap.Seq
	s.last = snap.Last
	s.mu.Unlock()
	s.journalSeq.Observe(snap.Seq)

	s.log.Info("checkpoint restored",
		zap.Uint64("seq", snap.Seq),
		zap.Time("created", snap.Created),
		zap.Stringer("phase", book.Phase()),
	)
	return nil
}

// ReplayJournal re-applies the journaled events after seq without
// journaling or publishing them again. An event that halted the book
// before halts it again; the replay then stops and the halt is visible
// through Status.
func (s *ReplayService) ReplayJournal(dir string, after uint64) (uint64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.replay = true
	defer func() { s.replay = false }()

	replayed := 0
	last, err := entrywal.Replay(dir, after, func(r *entrywal.Record) error {
		s.journalSeq.Observe(r.Seq)
		if r.Type != entrywal.RecordEvent {
			return nil
		}
		if s.book.Halted() != nil {
			return nil
		}
		ev, err := r.Event()
		if err != nil {
			return err
		}
		err = s.applyLocked(ev, r.Seq)
		s.discard()
		if err != nil {
			s.log.Warn("journal replay halted the book", zap.Uint64("seq", r.Seq), zap.Error(err))
			return nil
		}
		replayed++
		return nil
	})
	if err != nil {
		return last, errors.Wrap(err, "service: replay journal")
	}
	s.log.Info("journal replayed", zap.Uint64("after", after), zap.Uint64("last", last), zap.Int("events", replayed))
	return last, nil
}

// Recover restores the latest checkpoint in checkpointDir, if any, and
// replays the journal past it.
func (s *ReplayService) Recover(checkpointDir, journalDir string) error {
	var after uint64
	snap, err := snapshot.Load(checkpointDir)
	switch {
	case errors.Is(err, snapshot.ErrNoSnapshot):
		s.log.Info("no checkpoint, replaying the whole journal")
	case err != nil:
		return err
	default:
		if err := s.Restore(snap); err != nil {
			return err
		}
		after = snap.Seq
	}
	_, err = s.ReplayJournal(journalDir, after)
	return err
}
