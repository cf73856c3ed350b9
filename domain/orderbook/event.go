package orderbook

import (
	"fmt"
	"time"
)

type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return fmt.Sprintf("side(%d)", int8(s))
	}
}

func (s Side) valid() bool { return s == Buy || s == Sell }

// ParseSide accepts the names produced by Side.String.
func ParseSide(s string) (Side, error) {
	switch s {
	case "buy", "bid":
		return Buy, nil
	case "sell", "ask":
		return Sell, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

// EventKind is the lifecycle step an Event describes. EventUnknown
// carries venue codes with no mapping; the engine rejects it.
type EventKind uint8

const (
	EventUnknown EventKind = iota
	EventNew
	EventUpdate
	EventCancel
	EventTrade
	EventReentry
	EventExpire
)

func (k EventKind) String() string {
	switch k {
	case EventNew:
		return "new"
	case EventUpdate:
		return "update"
	case EventCancel:
		return "cancel"
	case EventTrade:
		return "trade"
	case EventReentry:
		return "reentry"
	case EventExpire:
		return "expire"
	default:
		return "unknown"
	}
}

// Event is one exchange message about one order. Prices are integer
// ticks and sizes integer units; Executed is cumulative.
type Event struct {
	PriorityTime time.Time
	Sequence     uint64
	GenerationID uint64
	Side         Side
	Kind         EventKind
	RawKind      int32 // venue event code, kept for diagnostics
	Price        int64
	Size         int64
	Executed     int64
	Condition    int32
	State        string
}

func (e Event) Remaining() int64 {
	return e.Size - e.Executed
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s seq=%d gen=%d t=%s price=%d size=%d executed=%d",
		e.Kind, e.Side, e.Sequence, e.GenerationID,
		e.PriorityTime.Format("15:04:05.000000"), e.Price, e.Size, e.Executed)
}

// Less orders events by (PriorityTime, GenerationID).
func (e Event) Less(o Event) bool {
	if !e.PriorityTime.Equal(o.PriorityTime) {
		return e.PriorityTime.Before(o.PriorityTime)
	}
	return e.GenerationID < o.GenerationID
}
