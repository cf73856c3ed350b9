package feed

import (
	"sort"
	"time"

	"lobster/domain/orderbook"
)

// Source yields events in processing order.
//
//	for src.Next() {
//		ev := src.Event()
//	}
//	if err := src.Err(); err != nil { ... }
type Source interface {
	Next() bool
	Event() orderbook.Event
	Err() error
}

type SliceSource struct {
	events []orderbook.Event
	pos    int
}

func NewSliceSource(events []orderbook.Event) *SliceSource {
	return &SliceSource{events: events, pos: -1}
}

func (s *SliceSource) Next() bool {
	if s.pos+1 >= len(s.events) {
		s.pos = len(s.events)
		return false
	}
	s.pos++
	return true
}

func (s *SliceSource) Event() orderbook.Event { return s.events[s.pos] }
func (s *SliceSource) Err() error             { return nil }

// Load reads the archives and merges them into one stream ordered by
// priority time, then generation id. Records that tie on both keep their
// file order.
func Load(p Parser, paths ...string) ([]orderbook.Event, error) {
	var all []orderbook.Event
	for _, path := range paths {
		evs, err := p.ReadFile(path)
		if err != nil {
			return nil, err
		}
		all = append(all, evs...)
	}
	Sort(all)
	return all, nil
}

func Sort(evs []orderbook.Event) {
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Less(evs[j]) })
}

type untilSource struct {
	Source
	cutoff time.Time
	done   bool
}

// Until stops src after the last event at or before cutoff. A zero
// cutoff passes src through.
func Until(src Source, cutoff time.Time) Source {
	if cutoff.IsZero() {
		return src
	}
	return &untilSource{Source: src, cutoff: cutoff}
}

func (u *untilSource) Next() bool {
	if u.done {
		return false
	}
	if !u.Source.Next() {
		u.done = true
		return false
	}
	if u.Source.Event().PriorityTime.After(u.cutoff) {
		u.done = true
		return false
	}
	return true
}

type afterSource struct {
	Source
	last     orderbook.Event
	resuming bool
}

// After drops the events of src up to and including last in feed order,
// so a restarted ingest continues where the recovered book stopped.
// Events sharing last's (time, generation) key are skipped only up to the
// record identical to last; the ones after it were never applied.
func After(src Source, last orderbook.Event) Source {
	return &afterSource{Source: src, last: last, resuming: true}
}

func (a *afterSource) Next() bool {
	for a.Source.Next() {
		if !a.resuming {
			return true
		}
		ev := a.Source.Event()
		switch {
		case ev.Less(a.last):
			continue
		case a.last.Less(ev):
			a.resuming = false
			return true
		case sameRecord(ev, a.last):
			a.resuming = false
			continue
		default:
			// tied with last but not last itself: applied before it
			continue
		}
	}
	return false
}

func sameRecord(a, b orderbook.Event) bool {
	return a.PriorityTime.Equal(b.PriorityTime) &&
		a.GenerationID == b.GenerationID &&
		a.Sequence == b.Sequence &&
		a.Side == b.Side &&
		a.Kind == b.Kind &&
		a.RawKind == b.RawKind &&
		a.Price == b.Price &&
		a.Size == b.Size &&
		a.Executed == b.Executed
}
