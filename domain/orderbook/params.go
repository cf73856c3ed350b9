package orderbook

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Phase is the market phase of a Book. It only moves forward.
type Phase uint8

const (
	Closed Phase = iota
	Opening
	Open
)

func (p Phase) String() string {
	switch p {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Open:
		return "open"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// ParsePhase accepts the names produced by Phase.String.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "", "closed":
		return Closed, nil
	case "opening":
		return Opening, nil
	case "open":
		return Open, nil
	}
	return 0, errors.Newf("unknown phase %q", s)
}

// Params fixes the price ladder of a Book for its lifetime.
type Params struct {
	PInf     int64 // lowest tick price
	PSup     int64 // exclusive upper bound
	TickSize int64
	Phase    Phase // initial phase, normally Closed
}

func (p Params) Validate() error {
	if p.TickSize <= 0 {
		return errors.Newf("ticksize must be positive, got %d", p.TickSize)
	}
	if p.PSup <= p.PInf {
		return errors.Newf("psup (%d) must be greater than pinf (%d)", p.PSup, p.PInf)
	}
	if p.Phase > Open {
		return errors.Newf("invalid initial phase %d", p.Phase)
	}
	return nil
}

// BookSize is ceil((psup - pinf) / ticksize).
func (p Params) BookSize() int {
	return int((p.PSup - p.PInf + p.TickSize - 1) / p.TickSize)
}

// Index maps a price to its slot. ok is false outside [0, BookSize).
func (p Params) Index(price int64) (idx int, ok bool) {
	d := price - p.PInf
	if d < 0 {
		return 0, false
	}
	i := d / p.TickSize
	if i >= int64(p.BookSize()) {
		return 0, false
	}
	return int(i), true
}

// Price returns the lowest price of a slot.
func (p Params) Price(idx int) int64 {
	return p.PInf + int64(idx)*p.TickSize
}
