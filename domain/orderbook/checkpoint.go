package orderbook

import (
	"slices"
	"time"

	"github.com/cockroachdb/errors"
)

// RestingOrder is the persisted form of an Order.
type RestingOrder struct {
	Sequence     uint64
	Size         int64
	Executed     int64
	Price        int64
	LastModified time.Time
}

// Checkpoint is the complete state of a Book. Orders are listed from the
// best slot to the worst, each slot in time priority.
type Checkpoint struct {
	Params       Params
	Phase        Phase
	LastModified time.Time
	Started      bool

	Buy  []RestingOrder
	Sell []RestingOrder

	Schedule   []time.Time
	Snapshots  []Snapshot
	Spreads    []SpreadSample
	LastSpread time.Time
	Sampled    bool
}

func (b *Book) Checkpoint() Checkpoint {
	cp := Checkpoint{
		Params:       b.params,
		Phase:        b.phase,
		LastModified: b.lastModified,
		Started:      b.started,
		Schedule:     b.rec.pending(),
		Snapshots:    slices.Clone(b.rec.snapshots),
		Spreads:      slices.Clone(b.rec.spreads),
		LastSpread:   b.rec.lastSpread,
		Sampled:      b.rec.sampled,
	}
	cp.Buy = b.sides[Buy].resting()
	cp.Sell = b.sides[Sell].resting()
	return cp
}

func (s *SideBook) resting() []RestingOrder {
	out := make([]RestingOrder, 0, len(s.orders))
	s.eachLevel(func(_ int, lvl *PriceLevel) {
		lvl.walk(func(o *Order) {
			out = append(out, RestingOrder{
				Sequence:     o.Sequence,
				Size:         o.Size,
				Executed:     o.Executed,
				Price:        o.Price,
				LastModified: o.LastModified,
			})
		})
	})
	return out
}

// Restore rebuilds a Book from a checkpoint. Feeding it the events that
// followed the checkpoint gives the same state as a full replay.
func Restore(cp Checkpoint, opts ...Option) (*Book, error) {
	p := cp.Params
	p.Phase = cp.Phase
	b, err := NewBook(p, opts...)
	if err != nil {
		return nil, err
	}
	for _, side := range []Side{Buy, Sell} {
		orders := cp.Buy
		if side == Sell {
			orders = cp.Sell
		}
		if err := b.sides[side].restore(orders); err != nil {
			return nil, errors.Wrapf(err, "restore %s side", side)
		}
	}
	b.lastModified = cp.LastModified
	b.started = cp.Started
	b.rec.schedule(cp.Schedule...)
	b.rec.snapshots = slices.Clone(cp.Snapshots)
	b.rec.spreads = slices.Clone(cp.Spreads)
	b.rec.lastSpread = cp.LastSpread
	b.rec.sampled = cp.Sampled
	if err := b.Verify(); err != nil {
		return nil, errors.Wrap(err, "restored book")
	}
	return b, nil
}

func (s *SideBook) restore(orders []RestingOrder) error {
	for _, ro := range orders {
		if _, dup := s.orders[ro.Sequence]; dup {
			return errors.Newf("duplicate sequence %d", ro.Sequence)
		}
		if ro.Executed < 0 || ro.Executed >= ro.Size {
			return errors.Newf("seq %d has size %d and executed %d", ro.Sequence, ro.Size, ro.Executed)
		}
		idx, ok := s.params.Index(ro.Price)
		if !ok {
			return errors.Newf("seq %d price %d outside the ladder", ro.Sequence, ro.Price)
		}
		s.add(&Order{
			Sequence:     ro.Sequence,
			Size:         ro.Size,
			Executed:     ro.Executed,
			Price:        ro.Price,
			Side:         s.side,
			LastModified: ro.LastModified,
			slot:         idx,
		})
	}
	return nil
}
