package orderbook

import (
	"time"

	"github.com/cockroachdb/errors"
)

// NoticeKind names a tolerated irregularity in the feed. Notices are
// absorbed by the engine and handed to the caller for logging.
type NoticeKind uint8

const (
	NoticeUnknownCancel NoticeKind = iota + 1 // cancel/expire of an unknown sequence
	NoticeImplicitNew                         // update/reentry/trade of an unknown sequence
	NoticeDuplicateNew                        // new for a resting sequence, treated as replace
	NoticeTradeRepriced                       // trade at a price other than the posted one
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeUnknownCancel:
		return "unknown-cancel"
	case NoticeImplicitNew:
		return "implicit-new"
	case NoticeDuplicateNew:
		return "duplicate-new"
	case NoticeTradeRepriced:
		return "trade-repriced"
	default:
		return "notice"
	}
}

type Notice struct {
	Kind  NoticeKind
	Event Event
}

// Level is a non-empty ladder slot as seen from outside the book.
type Level struct {
	Price int64
	Size  int64
}

// SideBook owns the order database and price ladder of one side.
type SideBook struct {
	side   Side
	params Params
	levels []PriceLevel
	orders map[uint64]*Order
	best   int // best non-empty slot, -1 when the side is empty
	notify func(Notice)
}

// NewSideBook builds an empty side. notify may be nil.
func NewSideBook(side Side, p Params, notify func(Notice)) (*SideBook, error) {
	if !side.valid() {
		return nil, errors.Newf("invalid side %d", side)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if notify == nil {
		notify = func(Notice) {}
	}
	return &SideBook{
		side:   side,
		params: p,
		levels: make([]PriceLevel, p.BookSize()),
		orders: make(map[uint64]*Order),
		best:   -1,
		notify: notify,
	}, nil
}

func (s *SideBook) Side() Side { return s.side }

// Len is the number of resting orders.
func (s *SideBook) Len() int { return len(s.orders) }

// Order returns a copy of the resting order with the given sequence.
func (s *SideBook) Order(seq uint64) (Order, bool) {
	o, ok := s.orders[seq]
	if !ok {
		return Order{}, false
	}
	return o.view(), true
}

func (s *SideBook) Best() (Level, bool) {
	if s.best < 0 {
		return Level{}, false
	}
	return Level{Price: s.params.Price(s.best), Size: s.levels[s.best].Aggregate}, true
}

// Depth lists the non-empty slots from best to worst.
func (s *SideBook) Depth() []Level {
	var out []Level
	s.eachLevel(func(idx int, lvl *PriceLevel) {
		out = append(out, Level{Price: s.params.Price(idx), Size: lvl.Aggregate})
	})
	return out
}

// Queue lists the sequences resting at price in time priority.
func (s *SideBook) Queue(price int64) []uint64 {
	idx, ok := s.params.Index(price)
	if !ok {
		return nil
	}
	var out []uint64
	s.levels[idx].walk(func(o *Order) { out = append(out, o.Sequence) })
	return out
}

// Apply validates ev and applies it. A failed validation leaves the side
// untouched.
func (s *SideBook) Apply(ev Event) error {
	if err := s.validate(ev); err != nil {
		return err
	}
	return s.apply(ev)
}

func (s *SideBook) validate(ev Event) error {
	switch ev.Kind {
	case EventNew, EventUpdate, EventCancel, EventTrade, EventReentry, EventExpire:
	default:
		return eventErrorf(KindUnknownEventKind, ev, "venue code %d has no lifecycle mapping", ev.RawKind)
	}
	if ev.Side != s.side {
		return eventErrorf(KindMalformedEvent, ev, "routed to the %s side", s.side)
	}
	if ev.Size < 0 || ev.Executed < 0 {
		return eventErrorf(KindMalformedEvent, ev, "negative size or executed")
	}
	if ev.Executed > ev.Size {
		return eventErrorf(KindMalformedEvent, ev, "executed %d exceeds size %d", ev.Executed, ev.Size)
	}
	switch ev.Kind {
	case EventNew:
		if ev.Executed != 0 {
			return eventErrorf(KindMalformedEvent, ev, "new order already executed %d", ev.Executed)
		}
	case EventCancel, EventExpire:
		// the resting record's price is used, the event's is ignored
		return nil
	}
	if _, ok := s.params.Index(ev.Price); !ok {
		return eventErrorf(KindMalformedEvent, ev, "price outside [%d, %d)", s.params.PInf, s.params.PSup)
	}
	if ev.Kind == EventTrade {
		if o, ok := s.orders[ev.Sequence]; ok {
			if delta := ev.Executed - o.Executed; delta <= 0 {
				return eventErrorf(KindNonPositiveTrade, ev, "executed moves from %d to %d", o.Executed, ev.Executed)
			}
			if ev.Executed > o.Size {
				return eventErrorf(KindMalformedEvent, ev, "trade executes beyond resting size %d", o.Size)
			}
		}
	}
	return nil
}

func (s *SideBook) apply(ev Event) error {
	switch ev.Kind {
	case EventNew:
		if o, ok := s.orders[ev.Sequence]; ok {
			s.notify(Notice{Kind: NoticeDuplicateNew, Event: ev})
			if err := s.remove(o, ev); err != nil {
				return err
			}
		}
		return s.insert(ev)

	case EventUpdate, EventReentry:
		o, ok := s.orders[ev.Sequence]
		if !ok {
			s.notify(Notice{Kind: NoticeImplicitNew, Event: ev})
			return s.insert(ev)
		}
		if err := s.remove(o, ev); err != nil {
			return err
		}
		return s.insert(ev)

	case EventCancel, EventExpire:
		o, ok := s.orders[ev.Sequence]
		if !ok {
			s.notify(Notice{Kind: NoticeUnknownCancel, Event: ev})
			return nil
		}
		return s.remove(o, ev)

	case EventTrade:
		o, ok := s.orders[ev.Sequence]
		if !ok {
			s.notify(Notice{Kind: NoticeImplicitNew, Event: ev})
			return s.insert(ev)
		}
		if ev.Price != o.Price {
			s.notify(Notice{Kind: NoticeTradeRepriced, Event: ev})
			if err := s.reposition(o, ev); err != nil {
				return err
			}
		}
		return s.execute(o, ev.Executed-o.Executed, ev.PriorityTime, ev)
	}
	return eventErrorf(KindUnknownEventKind, ev, "venue code %d has no lifecycle mapping", ev.RawKind)
}

// ---- mutations ----

func (s *SideBook) insert(ev Event) error {
	if ev.Remaining() == 0 {
		return nil
	}
	idx, _ := s.params.Index(ev.Price)
	s.add(&Order{
		Sequence:     ev.Sequence,
		Size:         ev.Size,
		Executed:     ev.Executed,
		Price:        ev.Price,
		Side:         s.side,
		LastModified: ev.PriorityTime,
		slot:         idx,
	})
	return nil
}

func (s *SideBook) add(o *Order) {
	lvl := &s.levels[o.slot]
	lvl.enqueue(o)
	lvl.Aggregate += o.Remaining()
	s.orders[o.Sequence] = o
	s.occupy(o.slot)
}

func (s *SideBook) remove(o *Order, ev Event) error {
	lvl := &s.levels[o.slot]
	if err := s.debit(lvl, o.Remaining(), ev); err != nil {
		return err
	}
	lvl.unlink(o)
	delete(s.orders, o.Sequence)
	if lvl.Empty() {
		s.vacate(o.slot)
	}
	return nil
}

// reposition moves o to the tail of the slot for ev.Price.
func (s *SideBook) reposition(o *Order, ev Event) error {
	idx, _ := s.params.Index(ev.Price)
	if idx == o.slot {
		o.Price = ev.Price
		return nil
	}
	old := &s.levels[o.slot]
	if err := s.debit(old, o.Remaining(), ev); err != nil {
		return err
	}
	old.unlink(o)
	if old.Empty() {
		s.vacate(o.slot)
	}
	o.Price = ev.Price
	o.slot = idx
	lvl := &s.levels[idx]
	lvl.enqueue(o)
	lvl.Aggregate += o.Remaining()
	s.occupy(idx)
	return nil
}

// execute credits qty against o. A fully filled order leaves the book;
// a partial fill keeps its queue position.
func (s *SideBook) execute(o *Order, qty int64, at time.Time, ev Event) error {
	lvl := &s.levels[o.slot]
	if err := s.debit(lvl, qty, ev); err != nil {
		return err
	}
	o.Executed += qty
	o.LastModified = at
	if o.Remaining() > 0 {
		return nil
	}
	lvl.unlink(o)
	delete(s.orders, o.Sequence)
	if lvl.Empty() {
		s.vacate(o.slot)
	}
	return nil
}

func (s *SideBook) debit(lvl *PriceLevel, amount int64, ev Event) error {
	if lvl.Aggregate < amount {
		return eventErrorf(KindNegativeDepth, ev, "%s aggregate %d cannot absorb %d", s.side, lvl.Aggregate, amount)
	}
	lvl.Aggregate -= amount
	return nil
}

// ---- best slot tracking ----

func (s *SideBook) better(a, b int) bool {
	if s.side == Buy {
		return a > b
	}
	return a < b
}

func (s *SideBook) occupy(idx int) {
	if s.best < 0 || s.better(idx, s.best) {
		s.best = idx
	}
}

func (s *SideBook) vacate(idx int) {
	if idx != s.best {
		return
	}
	s.best = -1
	s.eachLevelFrom(idx, func(i int, _ *PriceLevel) bool {
		s.best = i
		return false
	})
}

func (s *SideBook) eachLevel(fn func(int, *PriceLevel)) {
	if s.best < 0 {
		return
	}
	s.eachLevelFrom(s.best, func(i int, lvl *PriceLevel) bool {
		fn(i, lvl)
		return true
	})
}

// eachLevelFrom walks non-empty slots from start toward worse prices.
func (s *SideBook) eachLevelFrom(start int, fn func(int, *PriceLevel) bool) {
	step := 1
	if s.side == Buy {
		step = -1
	}
	for i := start; i >= 0 && i < len(s.levels); i += step {
		if s.levels[i].Empty() {
			continue
		}
		if !fn(i, &s.levels[i]) {
			return
		}
	}
}

func (s *SideBook) head() *Order {
	if s.best < 0 {
		return nil
	}
	return s.levels[s.best].head
}

// Verify recomputes every slot from the order database and checks the
// accounting invariants.
func (s *SideBook) Verify() error {
	queued := 0
	best := -1
	for idx := range s.levels {
		lvl := &s.levels[idx]
		var sum int64
		n := 0
		for o := lvl.head; o != nil; o = o.next {
			if o.Remaining() <= 0 {
				return errors.Newf("%s seq %d rests with remaining %d", s.side, o.Sequence, o.Remaining())
			}
			if o.slot != idx {
				return errors.Newf("%s seq %d queued at slot %d but records slot %d", s.side, o.Sequence, idx, o.slot)
			}
			if s.orders[o.Sequence] != o {
				return errors.Newf("%s seq %d queued but missing from the order database", s.side, o.Sequence)
			}
			sum += o.Remaining()
			n++
		}
		if n != lvl.count {
			return errors.Newf("%s slot %d counts %d orders, queue holds %d", s.side, idx, lvl.count, n)
		}
		if sum != lvl.Aggregate {
			return errors.Newf("%s slot %d aggregate %d, queued remaining %d", s.side, idx, lvl.Aggregate, sum)
		}
		if n > 0 && (best < 0 || s.better(idx, best)) {
			best = idx
		}
		queued += n
	}
	if queued != len(s.orders) {
		return errors.Newf("%s order database holds %d orders, queues hold %d", s.side, len(s.orders), queued)
	}
	if best != s.best {
		return errors.Newf("%s best slot is %d, tracked %d", s.side, best, s.best)
	}
	return nil
}
