// Package codec encodes book records in protobuf wire format.
//
// Messages are written with protowire directly so that the journal, the
// outbox and Kafka consumers share one schema without generated code:
//
//	Event    { 1 time, 2 seq, 3 gen, 4 side, 5 kind, 6 raw_kind, 7 price, 8 size, 9 executed, 10 condition, 11 state }
//	Fill     { 1 time, 2 buy_seq, 3 sell_seq, 4 price, 5 size }
//	Level    { 1 price, 2 size }
//	Snapshot { 1 scheduled_time, 2 repeated buy Level, 3 repeated sell Level }
//	Spread   { 1 time, 2 bid_price, 3 bid_size, 4 ask_price, 5 ask_size }
//	Envelope { 1 session, 2 instrument, 3 kind, 4 seq, 5 payload }
//
// Times are unix nanoseconds; the zero time is omitted.
package codec

import (
	"time"

	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"lobster/domain/orderbook"
)

var ErrCorruptRecord = errors.New("codec: corrupted record")

func appendInt(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	if t.IsZero() {
		return b
	}
	return appendInt(b, num, t.UnixNano())
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func toTime(v uint64) time.Time {
	return time.Unix(0, int64(v)).UTC()
}

// walk calls fn for every field of a message. fn returns the number of
// bytes it consumed from the value, or -1 to skip an unknown field.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Mark(protowire.ParseError(n), ErrCorruptRecord)
		}
		b = b[n:]
		used, err := fn(num, typ, b)
		if err != nil {
			return errors.Mark(err, ErrCorruptRecord)
		}
		if used < 0 {
			used = protowire.ConsumeFieldValue(num, typ, b)
			if used < 0 {
				return errors.Mark(protowire.ParseError(used), ErrCorruptRecord)
			}
		}
		b = b[used:]
	}
	return nil
}

func varint(typ protowire.Type, b []byte, dst *uint64) (int, error) {
	if typ != protowire.VarintType {
		return -1, nil
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = v
	return n, nil
}

func bytesField(typ protowire.Type, b []byte, dst *[]byte) (int, error) {
	if typ != protowire.BytesType {
		return -1, nil
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = v
	return n, nil
}

// ---- Event ----

func AppendEvent(b []byte, ev orderbook.Event) []byte {
	b = appendTime(b, 1, ev.PriorityTime)
	b = appendUint(b, 2, ev.Sequence)
	b = appendUint(b, 3, ev.GenerationID)
	b = appendUint(b, 4, uint64(ev.Side))
	b = appendUint(b, 5, uint64(ev.Kind))
	b = appendInt(b, 6, int64(ev.RawKind))
	b = appendInt(b, 7, ev.Price)
	b = appendInt(b, 8, ev.Size)
	b = appendInt(b, 9, ev.Executed)
	b = appendInt(b, 10, int64(ev.Condition))
	b = appendString(b, 11, ev.State)
	return b
}

func EncodeEvent(ev orderbook.Event) []byte {
	return AppendEvent(nil, ev)
}

func DecodeEvent(b []byte) (orderbook.Event, error) {
	var ev orderbook.Event
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		var u uint64
		var raw []byte
		var n int
		var err error
		switch num {
		case 11:
			n, err = bytesField(typ, v, &raw)
		default:
			n, err = varint(typ, v, &u)
		}
		if err != nil || n < 0 {
			return n, err
		}
		switch num {
		case 1:
			ev.PriorityTime = toTime(u)
		case 2:
			ev.Sequence = u
		case 3:
			ev.GenerationID = u
		case 4:
			ev.Side = orderbook.Side(u)
		case 5:
			ev.Kind = orderbook.EventKind(u)
		case 6:
			ev.RawKind = int32(u)
		case 7:
			ev.Price = int64(u)
		case 8:
			ev.Size = int64(u)
		case 9:
			ev.Executed = int64(u)
		case 10:
			ev.Condition = int32(u)
		case 11:
			ev.State = string(raw)
		}
		return n, nil
	})
	return ev, errors.Wrap(err, "decode event")
}

// ---- Fill ----

func EncodeFill(f orderbook.Fill) []byte {
	var b []byte
	b = appendTime(b, 1, f.Time)
	b = appendUint(b, 2, f.BuySeq)
	b = appendUint(b, 3, f.SellSeq)
	b = appendInt(b, 4, f.Price)
	b = appendInt(b, 5, f.Size)
	return b
}

func DecodeFill(b []byte) (orderbook.Fill, error) {
	var f orderbook.Fill
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		var u uint64
		n, err := varint(typ, v, &u)
		if err != nil || n < 0 {
			return n, err
		}
		switch num {
		case 1:
			f.Time = toTime(u)
		case 2:
			f.BuySeq = u
		case 3:
			f.SellSeq = u
		case 4:
			f.Price = int64(u)
		case 5:
			f.Size = int64(u)
		}
		return n, nil
	})
	return f, errors.Wrap(err, "decode fill")
}

// ---- Snapshot ----

func appendLevel(b []byte, num protowire.Number, l orderbook.Level) []byte {
	var m []byte
	m = appendInt(m, 1, l.Price)
	m = appendInt(m, 2, l.Size)
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

func decodeLevel(b []byte) (orderbook.Level, error) {
	var l orderbook.Level
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		var u uint64
		n, err := varint(typ, v, &u)
		if err != nil || n < 0 {
			return n, err
		}
		switch num {
		case 1:
			l.Price = int64(u)
		case 2:
			l.Size = int64(u)
		}
		return n, nil
	})
	return l, err
}

func EncodeSnapshot(s orderbook.Snapshot) []byte {
	var b []byte
	b = appendTime(b, 1, s.ScheduledTime)
	for _, l := range s.Buy {
		b = appendLevel(b, 2, l)
	}
	for _, l := range s.Sell {
		b = appendLevel(b, 3, l)
	}
	return b
}

func DecodeSnapshot(b []byte) (orderbook.Snapshot, error) {
	var s orderbook.Snapshot
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if num == 1 {
			var u uint64
			n, err := varint(typ, v, &u)
			if n > 0 {
				s.ScheduledTime = toTime(u)
			}
			return n, err
		}
		if num != 2 && num != 3 {
			return -1, nil
		}
		var raw []byte
		n, err := bytesField(typ, v, &raw)
		if err != nil || n < 0 {
			return n, err
		}
		l, err := decodeLevel(raw)
		if err != nil {
			return 0, err
		}
		if num == 2 {
			s.Buy = append(s.Buy, l)
		} else {
			s.Sell = append(s.Sell, l)
		}
		return n, nil
	})
	return s, errors.Wrap(err, "decode snapshot")
}

// ---- SpreadSample ----

func EncodeSpread(s orderbook.SpreadSample) []byte {
	var b []byte
	b = appendTime(b, 1, s.Time)
	b = appendInt(b, 2, s.BidPrice)
	b = appendInt(b, 3, s.BidSize)
	b = appendInt(b, 4, s.AskPrice)
	b = appendInt(b, 5, s.AskSize)
	return b
}

func DecodeSpread(b []byte) (orderbook.SpreadSample, error) {
	var s orderbook.SpreadSample
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		var u uint64
		n, err := varint(typ, v, &u)
		if err != nil || n < 0 {
			return n, err
		}
		switch num {
		case 1:
			s.Time = toTime(u)
		case 2:
			s.BidPrice = int64(u)
		case 3:
			s.BidSize = int64(u)
		case 4:
			s.AskPrice = int64(u)
		case 5:
			s.AskSize = int64(u)
		}
		return n, nil
	})
	return s, errors.Wrap(err, "decode spread")
}
