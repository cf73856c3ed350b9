package feed

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/shopspring/decimal"

	"lobster/domain/orderbook"
)

// field positions in an OFER record
const (
	colSessionDate = 0
	colTicker      = 1
	colSide        = 2
	colSequence    = 3
	colGeneration  = 4
	colEventCode   = 5
	colTime        = 6
	colPrice       = 8
	colSize        = 9
	colExecuted    = 10
	colPrioDate    = 11
	colState       = 13
	colCondition   = 14

	minFields = colCondition + 1
)

const timeLayout = "2006-01-02 15:04:05.999999999"

var ErrBadRecord = errors.New("feed: bad record")

// EventKind maps a B3 event code. Codes without a lifecycle meaning in
// the book come back as EventUnknown.
func EventKind(code int) orderbook.EventKind {
	switch code {
	case 1:
		return orderbook.EventNew
	case 2:
		return orderbook.EventUpdate
	case 3:
		return orderbook.EventCancel
	case 4:
		return orderbook.EventTrade
	case 5:
		return orderbook.EventReentry
	case 11:
		return orderbook.EventExpire
	default:
		return orderbook.EventUnknown
	}
}

// Parser converts OFER records. The zero value keeps every instrument,
// quotes prices in whole units and reads times as UTC.
type Parser struct {
	// Instrument keeps only records of this ticker when set.
	Instrument string
	// PriceDecimals is how many decimal places survive in the integer
	// price, e.g. 2 turns "26.75" into 2675.
	PriceDecimals int32
	// SizeScale is the lot size: quantities are divided by it, truncating.
	// Zero or one keeps them in shares.
	SizeScale int64
	Location  *time.Location
}

func (p Parser) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// ParseRecord converts one record. ok is false when the record belongs to
// another instrument.
func (p Parser) ParseRecord(fields []string) (ev orderbook.Event, ok bool, err error) {
	if len(fields) < minFields {
		return ev, false, errors.Wrapf(ErrBadRecord, "%d fields, want at least %d", len(fields), minFields)
	}
	get := func(i int) string { return strings.TrimSpace(fields[i]) }

	if p.Instrument != "" && get(colTicker) != p.Instrument {
		return ev, false, nil
	}

	switch get(colSide) {
	case "1":
		ev.Side = orderbook.Buy
	case "2":
		ev.Side = orderbook.Sell
	default:
		return ev, false, errors.Wrapf(ErrBadRecord, "side %q", get(colSide))
	}

	if ev.Sequence, err = strconv.ParseUint(get(colSequence), 10, 64); err != nil {
		return ev, false, errors.Wrapf(ErrBadRecord, "sequence %q", get(colSequence))
	}
	if ev.GenerationID, err = strconv.ParseUint(get(colGeneration), 10, 64); err != nil {
		return ev, false, errors.Wrapf(ErrBadRecord, "generation %q", get(colGeneration))
	}

	code, err := strconv.Atoi(get(colEventCode))
	if err != nil {
		return ev, false, errors.Wrapf(ErrBadRecord, "event code %q", get(colEventCode))
	}
	ev.RawKind = int32(code)
	ev.Kind = EventKind(code)

	ev.PriorityTime, err = time.ParseInLocation(timeLayout, get(colPrioDate)+" "+get(colTime), p.location())
	if err != nil {
		return ev, false, errors.Wrapf(ErrBadRecord, "priority time %q %q", get(colPrioDate), get(colTime))
	}

	price, err := decimal.NewFromString(get(colPrice))
	if err != nil {
		return ev, false, errors.Wrapf(ErrBadRecord, "price %q", get(colPrice))
	}
	ev.Price = price.Shift(p.PriceDecimals).IntPart()

	if ev.Size, err = strconv.ParseInt(get(colSize), 10, 64); err != nil {
		return ev, false, errors.Wrapf(ErrBadRecord, "size %q", get(colSize))
	}
	if ev.Executed, err = strconv.ParseInt(get(colExecuted), 10, 64); err != nil {
		return ev, false, errors.Wrapf(ErrBadRecord, "executed %q", get(colExecuted))
	}
	if p.SizeScale > 1 {
		ev.Size /= p.SizeScale
		ev.Executed /= p.SizeScale
	}

	ev.State = get(colState)
	if c := get(colCondition); c != "" {
		cond, err := strconv.Atoi(c)
		if err != nil {
			return ev, false, errors.Wrapf(ErrBadRecord, "condition %q", c)
		}
		ev.Condition = int32(cond)
	}
	return ev, true, nil
}

func isControlLine(fields []string) bool {
	if len(fields) == 0 {
		return true
	}
	head := strings.TrimSpace(fields[0])
	return strings.HasPrefix(head, "RH") || strings.HasPrefix(head, "RT")
}

// Read parses every record of r in file order.
func (p Parser) Read(r io.Reader) ([]orderbook.Event, error) {
	cr := csv.NewReader(bufio.NewReaderSize(r, 1<<16))
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	var out []orderbook.Event
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, errors.Wrap(err, "feed: read")
		}
		if isControlLine(fields) {
			continue
		}
		ev, ok, err := p.ParseRecord(fields)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return out, errors.Wrapf(err, "line %d", line)
		}
		if ok {
			out = append(out, ev)
		}
	}
}

// ReadFile parses one archive, gunzipping it when the name ends in .gz.
func (p Parser) ReadFile(path string) ([]orderbook.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "feed: open")
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "feed: gunzip %s", path)
		}
		defer zr.Close()
		r = zr
	}
	evs, err := p.Read(r)
	return evs, errors.Wrapf(err, "feed: %s", path)
}
