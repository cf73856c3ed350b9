package orderbook

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrorKind classifies fatal conditions. Every kind halts the session.
type ErrorKind uint8

const (
	KindMalformedEvent ErrorKind = iota + 1
	KindNonPositiveTrade
	KindNegativeDepth
	KindOutOfOrderEvent
	KindUnknownEventKind
)

var (
	ErrMalformedEvent   = errors.New("malformed event")
	ErrNonPositiveTrade = errors.New("non-positive trade")
	ErrNegativeDepth    = errors.New("negative depth")
	ErrOutOfOrderEvent  = errors.New("out of order event")
	ErrUnknownEventKind = errors.New("unknown event kind")

	// ErrHalted is returned by Apply once a fatal error has been seen.
	ErrHalted = errors.New("book halted")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindMalformedEvent:
		return ErrMalformedEvent
	case KindNonPositiveTrade:
		return ErrNonPositiveTrade
	case KindNegativeDepth:
		return ErrNegativeDepth
	case KindOutOfOrderEvent:
		return ErrOutOfOrderEvent
	case KindUnknownEventKind:
		return ErrUnknownEventKind
	}
	return nil
}

func (k ErrorKind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return fmt.Sprintf("error kind %d", uint8(k))
}

// EventError reports the offending event and the violated invariant.
type EventError struct {
	Kind   ErrorKind
	Event  Event
	Reason string
}

func (e *EventError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Reason, e.Event)
}

func (e *EventError) Unwrap() error { return e.Kind.sentinel() }

func eventErrorf(kind ErrorKind, ev Event, format string, args ...any) error {
	return &EventError{Kind: kind, Event: ev, Reason: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err, or 0 when err carries none.
func KindOf(err error) ErrorKind {
	var ee *EventError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return 0
}
