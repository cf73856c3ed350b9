package codec

import (
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"lobster/domain/orderbook"
)

// Kind tags the payload of an Envelope.
type Kind uint8

const (
	KindEvent Kind = iota + 1
	KindFill
	KindSnapshot
	KindSpread
)

func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindFill:
		return "fill"
	case KindSnapshot:
		return "snapshot"
	case KindSpread:
		return "spread"
	default:
		return "unknown"
	}
}

// Envelope wraps an encoded record with its origin so that consumers of
// the outbox and of Kafka can route it.
type Envelope struct {
	Session    string
	Instrument string
	Kind       Kind
	Seq        uint64
	Payload    []byte
}

func EncodeEnvelope(e Envelope) []byte {
	var b []byte
	b = appendString(b, 1, e.Session)
	b = appendString(b, 2, e.Instrument)
	b = appendUint(b, 3, uint64(e.Kind))
	b = appendUint(b, 4, e.Seq)
	b = appendBytes(b, 5, e.Payload)
	return b
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	var e Envelope
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 3, 4:
			var u uint64
			n, err := varint(typ, v, &u)
			if err != nil || n < 0 {
				return n, err
			}
			if num == 3 {
				e.Kind = Kind(u)
			} else {
				e.Seq = u
			}
			return n, nil
		case 1, 2, 5:
			var raw []byte
			n, err := bytesField(typ, v, &raw)
			if err != nil || n < 0 {
				return n, err
			}
			switch num {
			case 1:
				e.Session = string(raw)
			case 2:
				e.Instrument = string(raw)
			case 5:
				e.Payload = append([]byte(nil), raw...)
			}
			return n, nil
		}
		return -1, nil
	})
	return e, errors.Wrap(err, "decode envelope")
}

// Wrap encodes one of Event, Fill, Snapshot or SpreadSample into an
// Envelope.
func Wrap(session, instrument string, seq uint64, v any) (Envelope, error) {
	e := Envelope{Session: session, Instrument: instrument, Seq: seq}
	switch x := v.(type) {
	case orderbook.Event:
		e.Kind, e.Payload = KindEvent, EncodeEvent(x)
	case orderbook.Fill:
		e.Kind, e.Payload = KindFill, EncodeFill(x)
	case orderbook.Snapshot:
		e.Kind, e.Payload = KindSnapshot, EncodeSnapshot(x)
	case orderbook.SpreadSample:
		e.Kind, e.Payload = KindSpread, EncodeSpread(x)
	default:
		return Envelope{}, errors.Newf("codec: cannot wrap %T", v)
	}
	return e, nil
}

// Unwrap decodes the payload according to its kind.
func (e Envelope) Unwrap() (any, error) {
	switch e.Kind {
	case KindEvent:
		return DecodeEvent(e.Payload)
	case KindFill:
		return DecodeFill(e.Payload)
	case KindSnapshot:
		return DecodeSnapshot(e.Payload)
	case KindSpread:
		return DecodeSpread(e.Payload)
	}
	return nil, errors.Mark(errors.Newf("envelope kind %d", e.Kind), ErrCorruptRecord)
}
