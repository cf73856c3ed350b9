package orderbook

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Option configures a Book.
type Option func(*Book)

// WithNoticeHandler receives tolerated feed irregularities.
func WithNoticeHandler(fn func(Notice)) Option {
	return func(b *Book) { b.onNotice = fn }
}

// WithFillHandler receives every execution produced by the matcher.
func WithFillHandler(fn func(Fill)) Option {
	return func(b *Book) { b.onFill = fn }
}

// WithSnapshotHandler receives each snapshot as it is recorded.
func WithSnapshotHandler(fn func(Snapshot)) Option {
	return func(b *Book) { b.rec.onSnapshot = fn }
}

// WithSpreadHandler receives each spread sample as it is recorded.
func WithSpreadHandler(fn func(SpreadSample)) Option {
	return func(b *Book) { b.rec.onSpread = fn }
}

// WithSchedule sets the times at which depth snapshots are captured.
func WithSchedule(times ...time.Time) Option {
	return func(b *Book) { b.rec.schedule(times...) }
}

// Book is the dual-side order book. It is single-writer: Apply must not
// be called concurrently with itself or with any query.
type Book struct {
	params Params
	sides  [2]*SideBook
	phase  Phase

	lastModified time.Time
	started      bool
	halted       error

	rec      *Recorder
	onNotice func(Notice)
	onFill   func(Fill)
}

func NewBook(p Params, opts ...Option) (*Book, error) {
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "book params")
	}
	b := &Book{
		params: p,
		phase:  p.Phase,
		rec:    newRecorder(),
	}
	for _, opt := range opts {
		opt(b)
	}
	notify := func(n Notice) {
		if b.onNotice != nil {
			b.onNotice(n)
		}
	}
	for _, side := range []Side{Buy, Sell} {
		sb, err := NewSideBook(side, p, notify)
		if err != nil {
			return nil, err
		}
		b.sides[side] = sb
	}
	return b, nil
}

// Apply processes one event. Any error is fatal: the book refuses every
// later event with ErrHalted.
func (b *Book) Apply(ev Event) error {
	if b.halted != nil {
		return errors.Mark(errors.Wrapf(b.halted, "rejecting %s", ev), ErrHalted)
	}
	if err := b.apply(ev); err != nil {
		b.halted = err
		return err
	}
	return nil
}

func (b *Book) apply(ev Event) error {
	if b.started && ev.PriorityTime.Before(b.lastModified) {
		return eventErrorf(KindOutOfOrderEvent, ev, "precedes last accepted time %s",
			b.lastModified.Format(time.RFC3339Nano))
	}
	if ev.Kind == EventUnknown || ev.Kind > EventExpire {
		return eventErrorf(KindUnknownEventKind, ev, "venue code %d has no lifecycle mapping", ev.RawKind)
	}
	if !ev.Side.valid() {
		return eventErrorf(KindMalformedEvent, ev, "unknown side")
	}
	side := b.sides[ev.Side]
	if err := side.validate(ev); err != nil {
		return err
	}

	b.rec.captureDue(ev.PriorityTime, b)

	switch {
	case b.phase == Closed && ev.Kind == EventTrade:
		b.phase = Opening
	case b.phase == Opening && ev.Kind != EventTrade:
		// flush whatever the auction left crossed before trading opens
		if err := b.match(ev); err != nil {
			return err
		}
		b.phase = Open
	}

	b.lastModified = ev.PriorityTime
	b.started = true

	if err := side.apply(ev); err != nil {
		return err
	}
	if b.phase == Open {
		if err := b.match(ev); err != nil {
			return err
		}
	}
	b.rec.sampleSpread(ev.PriorityTime, b)
	return nil
}

// Schedule adds snapshot times after construction.
func (b *Book) Schedule(times ...time.Time) {
	b.rec.schedule(times...)
}

// ---- queries ----

func (b *Book) Params() Params          { return b.params }
func (b *Book) Phase() Phase            { return b.phase }
func (b *Book) LastModified() time.Time { return b.lastModified }

// Halted returns the fatal error that stopped the book, if any.
func (b *Book) Halted() error { return b.halted }

func (b *Book) BestBid() (Level, bool) { return b.sides[Buy].Best() }
func (b *Book) BestAsk() (Level, bool) { return b.sides[Sell].Best() }

// Depth lists the non-empty slots of one side from best to worst.
func (b *Book) Depth(side Side) []Level {
	if !side.valid() {
		return nil
	}
	return b.sides[side].Depth()
}

func (b *Book) Order(side Side, seq uint64) (Order, bool) {
	if !side.valid() {
		return Order{}, false
	}
	return b.sides[side].Order(seq)
}

func (b *Book) OrderCount(side Side) int {
	if !side.valid() {
		return 0
	}
	return b.sides[side].Len()
}

// Queue lists the sequences resting at price on one side in time priority.
func (b *Book) Queue(side Side, price int64) []uint64 {
	if !side.valid() {
		return nil
	}
	return b.sides[side].Queue(price)
}

func (b *Book) Snapshots() []Snapshot { return b.rec.Snapshots() }

func (b *Book) Spreads() []SpreadSample { return b.rec.Spreads() }

// SpreadsBetween returns the spread samples with from <= Time <= to.
func (b *Book) SpreadsBetween(from, to time.Time) []SpreadSample {
	return b.rec.SpreadsBetween(from, to)
}

// PendingSchedule lists snapshot times not yet captured.
func (b *Book) PendingSchedule() []time.Time { return b.rec.pending() }

// Verify checks both sides' accounting and, once open, that the book is
// not left crossed.
func (b *Book) Verify() error {
	for _, s := range b.sides {
		if err := s.Verify(); err != nil {
			return err
		}
	}
	if b.phase != Open {
		return nil
	}
	bid, okb := b.BestBid()
	ask, oka := b.BestAsk()
	if okb && oka && bid.Price >= ask.Price {
		return errors.Newf("open book left crossed: bid %d >= ask %d", bid.Price, ask.Price)
	}
	return nil
}
