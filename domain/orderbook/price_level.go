package orderbook

// PriceLevel is one ladder slot: the aggregate remaining size and a FIFO
// queue of the orders resting at that price.
type PriceLevel struct {
	Aggregate int64

	head  *Order
	tail  *Order
	count int
}

func (p *PriceLevel) enqueue(o *Order) {
	o.next = nil
	if p.head == nil {
		o.prev = nil
		p.head = o
		p.tail = o
	} else {
		p.tail.next = o
		o.prev = p.tail
		p.tail = o
	}
	p.count++
}

func (p *PriceLevel) unlink(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		p.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		p.tail = o.prev
	}
	o.next, o.prev = nil, nil
	p.count--
}

func (p *PriceLevel) Empty() bool {
	return p.head == nil
}

func (p *PriceLevel) Len() int {
	return p.count
}

// walk visits queued orders from head to tail.
func (p *PriceLevel) walk(fn func(*Order)) {
	for o := p.head; o != nil; o = o.next {
		fn(o)
	}
}
