package orderbook

import "time"

// Order is a resting order as held by one side's order database.
// Values handed out by the book are copies with the queue links cleared.
type Order struct {
	Sequence     uint64
	Size         int64
	Executed     int64
	Price        int64
	Side         Side
	LastModified time.Time

	slot int
	next *Order
	prev *Order
}

func (o *Order) Remaining() int64 {
	return o.Size - o.Executed
}

func (o *Order) view() Order {
	v := *o
	v.next, v.prev = nil, nil
	return v
}
