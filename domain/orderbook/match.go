package orderbook

import "time"

// Fill is one execution between the head orders of the best buy and
// sell slots.
type Fill struct {
	Time    time.Time
	BuySeq  uint64
	SellSeq uint64
	Price   int64
	Size    int64
}

// match resolves a crossed book. Each pass pops the head order of the
// best slot on both sides, so at least one order leaves per iteration.
func (b *Book) match(trigger Event) error {
	buy, sell := b.sides[Buy], b.sides[Sell]
	for {
		bid, okb := buy.Best()
		ask, oka := sell.Best()
		if !okb || !oka || bid.Price < ask.Price {
			return nil
		}
		bh, sh := buy.head(), sell.head()
		qty := min(bh.Remaining(), sh.Remaining())
		fill := Fill{
			Time:    trigger.PriorityTime,
			BuySeq:  bh.Sequence,
			SellSeq: sh.Sequence,
			Price:   tradePrice(bh, sh),
			Size:    qty,
		}
		if err := buy.execute(bh, qty, trigger.PriorityTime, trigger); err != nil {
			return err
		}
		if err := sell.execute(sh, qty, trigger.PriorityTime, trigger); err != nil {
			return err
		}
		if b.onFill != nil {
			b.onFill(fill)
		}
	}
}

// tradePrice is the price of whichever order rested first; on a tie the
// sell order's price.
func tradePrice(buy, sell *Order) int64 {
	if buy.LastModified.Before(sell.LastModified) {
		return buy.Price
	}
	return sell.Price
}
