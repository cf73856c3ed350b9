package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing sequence numbers for journal
// and outbox records. The zero value starts at 1.
type Sequencer struct {
	last atomic.Uint64
}

// New returns a sequencer whose next value is start+1.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last issued sequence.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}

// Observe moves the sequencer forward to v if it is behind. Replay calls
// it for every record it re-applies.
func (s *Sequencer) Observe(v uint64) {
	for {
		cur := s.last.Load()
		if v <= cur || s.last.CompareAndSwap(cur, v) {
			return
		}
	}
}
