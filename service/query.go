package service

import (
	"time"

	"lobster/domain/orderbook"
)

// TopOfBook is the best level of each side. HasBid and HasAsk are false
// for an empty side.
type TopOfBook struct {
	Bid, Ask       orderbook.Level
	HasBid, HasAsk bool
}

type Status struct {
	Session      string
	Instrument   string
	Phase        orderbook.Phase
	LastModified time.Time
	Halted       error
	JournalSeq   uint64
	BuyOrders    int
	SellOrders   int
	Stats        Stats
}

func (s *ReplayService) TopOfBook() TopOfBook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t TopOfBook
	t.Bid, t.HasBid = s.book.BestBid()
	t.Ask, t.HasAsk = s.book.BestAsk()
	return t
}

// Depth lists up to limit aggregated levels of side from best to worst.
// A limit <= 0 returns every level.
func (s *ReplayService) Depth(side orderbook.Side, limit int) []orderbook.Level {
	s.mu.RLock()
	levels := s.book.Depth(side)
	s.mu.RUnlock()

	if limit > 0 && len(levels) > limit {
		levels = levels[:limit]
	}
	return levels
}

func (s *ReplayService) Snapshots() []orderbook.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Snapshots()
}

// Spreads returns the spread samples in [from, to]. Zero bounds are open.
func (s *ReplayService) Spreads(from, to time.Time) []orderbook.SpreadSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if from.IsZero() && to.IsZero() {
		return s.book.Spreads()
	}
	if to.IsZero() {
		to = time.Unix(1<<62, 0)
	}
	return s.book.SpreadsBetween(from, to)
}

func (s *ReplayService) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *ReplayService) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Session:      s.session,
		Instrument:   s.opts.Instrument,
		Phase:        s.book.Phase(),
		LastModified: s.book.LastModified(),
		Halted:       s.book.Halted(),
		JournalSeq:   s.applied,
		BuyOrders:    s.book.OrderCount(orderbook.Buy),
		SellOrders:   s.book.OrderCount(orderbook.Sell),
		Stats:        s.stats,
	}
}

// LastEvent is the last event the book accepted, restored checkpoints
// included. ok is false before the first one.
func (s *ReplayService) LastEvent() (ev orderbook.Event, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.applied > 0
}
