package entry

import (
	"lobster/domain/orderbook"
	"lobster/infra/codec"
)

type RecordType uint8

const (
	// RecordEvent carries one codec-encoded orderbook.Event.
	RecordEvent RecordType = iota + 1
	// RecordSession marks the start of an ingestion session; the payload
	// is the instrument name.
	RecordSession
)

func (t RecordType) String() string {
	switch t {
	case RecordEvent:
		return "event"
	case RecordSession:
		return "session"
	default:
		return "unknown"
	}
}

type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

// NewEventRecord stamps the record with the event's priority time rather
// than the wall clock, so a journal written twice from the same feed is
// byte-identical.
func NewEventRecord(seq uint64, ev orderbook.Event) *Record {
	return &Record{
		Type: RecordEvent,
		Seq:  seq,
		Time: ev.PriorityTime.UnixNano(),
		Data: codec.EncodeEvent(ev),
	}
}

func NewSessionRecord(seq uint64, instrument string, at int64) *Record {
	return &Record{
		Type: RecordSession,
		Seq:  seq,
		Time: at,
		Data: []byte(instrument),
	}
}

// Event decodes the payload of a RecordEvent.
func (r *Record) Event() (orderbook.Event, error) {
	return codec.DecodeEvent(r.Data)
}
