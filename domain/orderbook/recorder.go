package orderbook

import (
	"slices"
	"sort"
	"time"

	"github.com/tidwall/btree"
)

// Snapshot is the full depth of both sides, tagged with the scheduled
// time that triggered it rather than the time of the triggering event.
type Snapshot struct {
	ScheduledTime time.Time
	Buy           []Level
	Sell          []Level
}

// SpreadSample is the top of book after an event.
type SpreadSample struct {
	Time     time.Time
	BidPrice int64
	BidSize  int64
	AskPrice int64
	AskSize  int64
}

func (s SpreadSample) Spread() int64 {
	return s.AskPrice - s.BidPrice
}

// Recorder samples the book on a schedule and on every new event time
// while open.
type Recorder struct {
	due       *btree.BTreeG[time.Time]
	snapshots []Snapshot
	spreads   []SpreadSample

	lastSpread time.Time
	sampled    bool

	onSnapshot func(Snapshot)
	onSpread   func(SpreadSample)
}

func newRecorder() *Recorder {
	return &Recorder{
		due: btree.NewBTreeG(func(a, b time.Time) bool { return a.Before(b) }),
	}
}

func (r *Recorder) schedule(times ...time.Time) {
	for _, t := range times {
		r.due.Set(t)
	}
}

func (r *Recorder) pending() []time.Time {
	out := make([]time.Time, 0, r.due.Len())
	r.due.Scan(func(t time.Time) bool {
		out = append(out, t)
		return true
	})
	return out
}

// captureDue records one snapshot per schedule entry strictly before t,
// using the state left by the events preceding t.
func (r *Recorder) captureDue(t time.Time, b *Book) {
	for {
		next, ok := r.due.Min()
		if !ok || !t.After(next) {
			return
		}
		r.due.PopMin()
		snap := Snapshot{
			ScheduledTime: next,
			Buy:           b.Depth(Buy),
			Sell:          b.Depth(Sell),
		}
		r.snapshots = append(r.snapshots, snap)
		if r.onSnapshot != nil {
			r.onSnapshot(snap)
		}
	}
}

// sampleSpread records the top of book when open, when t is strictly
// past the last sample, and when both sides have liquidity.
func (r *Recorder) sampleSpread(t time.Time, b *Book) {
	if b.phase != Open {
		return
	}
	if r.sampled && !t.After(r.lastSpread) {
		return
	}
	bid, okb := b.BestBid()
	ask, oka := b.BestAsk()
	if !okb || !oka {
		return
	}
	s := SpreadSample{
		Time:     t,
		BidPrice: bid.Price,
		BidSize:  bid.Size,
		AskPrice: ask.Price,
		AskSize:  ask.Size,
	}
	r.spreads = append(r.spreads, s)
	r.lastSpread = t
	r.sampled = true
	if r.onSpread != nil {
		r.onSpread(s)
	}
}

func (r *Recorder) Snapshots() []Snapshot {
	return slices.Clone(r.snapshots)
}

func (r *Recorder) Spreads() []SpreadSample {
	return slices.Clone(r.spreads)
}

func (r *Recorder) SpreadsBetween(from, to time.Time) []SpreadSample {
	lo := sort.Search(len(r.spreads), func(i int) bool {
		return !r.spreads[i].Time.Before(from)
	})
	hi := sort.Search(len(r.spreads), func(i int) bool {
		return r.spreads[i].Time.After(to)
	})
	if lo >= hi {
		return nil
	}
	return slices.Clone(r.spreads[lo:hi])
}
