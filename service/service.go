package service

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lobster/domain/orderbook"
	"lobster/infra/codec"
	"lobster/infra/metrics"
	"lobster/infra/sequence"
	entrywal "lobster/infra/wal/entry"
)

// Journal is the event write-ahead log.
type Journal interface {
	Append(*entrywal.Record) error
	Sync() error
	TruncateBefore(seq uint64) error
	LastSeq() uint64
}

// Outbox durably stores records awaiting broadcast.
type Outbox interface {
	PutNew(seq uint64, payload []byte) error
	TruncateAckedUpTo(seq uint64) (int, error)
	LastSeq() (uint64, error)
}

type FillPublisher interface {
	PublishFills(ctx context.Context, fills []codec.Envelope) error
}

type QuoteCache interface {
	Put(ctx context.Context, instrument string, s orderbook.SpreadSample) error
}

type Options struct {
	Instrument string
	Params     orderbook.Params
	Schedule   []time.Time
}

// Deps are the collaborators of a ReplayService. Everything but Logger
// is optional.
type Deps struct {
	Journal Journal
	Outbox  Outbox
	Fills   FillPublisher
	Quotes  QuoteCache
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

type ReplayService struct {
	opts Options
	deps Deps
	log  *zap.Logger

	session    string
	journalSeq *sequence.Sequencer
	outboxSeq  *sequence.Sequencer

	// writeMu serialises writers; mu guards the book against readers.
	writeMu sync.Mutex
	mu      sync.RWMutex
	book    *orderbook.Book
	applied uint64 // journal sequence of the last applied event
	last    orderbook.Event
	stats   Stats

	// filled by the book handlers during Apply, drained by flush
	fills   []orderbook.Fill
	snaps   []orderbook.Snapshot
	spreads []orderbook.SpreadSample
	replay  bool
}

func New(opts Options, deps Deps) (*ReplayService, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &ReplayService{
		opts:       opts,
		deps:       deps,
		session:    uuid.NewString(),
		journalSeq: sequence.New(0),
		outboxSeq:  sequence.New(0),
	}
	s.log = deps.Logger.With(
		zap.String("instrument", opts.Instrument),
		zap.String("session", s.session),
	)

	if deps.Journal != nil {
		s.journalSeq.Observe(deps.Journal.LastSeq())
	}
	if deps.Outbox != nil {
		last, err := deps.Outbox.LastSeq()
		if err != nil {
			return nil, errors.Wrap(err, "service: outbox last seq")
		}
		s.outboxSeq.Observe(last)
	}

	book, err := orderbook.NewBook(opts.Params, s.bookOptions(opts.Schedule...)...)
	if err != nil {
		return nil, err
	}
	s.book = book
	return s, nil
}

func (s *ReplayService) bookOptions(schedule ...time.Time) []orderbook.Option {
	return []orderbook.Option{
		orderbook.WithSchedule(schedule...),
		orderbook.WithNoticeHandler(s.onNotice),
		orderbook.WithFillHandler(func(f orderbook.Fill) { s.fills = append(s.fills, f) }),
		orderbook.WithSnapshotHandler(func(sn orderbook.Snapshot) { s.snaps = append(s.snaps, sn) }),
		orderbook.WithSpreadHandler(func(sp orderbook.SpreadSample) { s.spreads = append(s.spreads, sp) }),
	}
}

func (s *ReplayService) onNotice(n orderbook.Notice) {
	s.stats.Notices++
	if m := s.deps.Metrics; m != nil {
		m.Notices.WithLabelValues(n.Kind.String()).Inc()
	}
	if s.replay {
		return
	}
	s.log.Debug("feed irregularity absorbed",
		zap.Stringer("notice", n.Kind),
		zap.Stringer("event", n.Event),
	)
}

// Session identifies this process run on every published record.
func (s *ReplayService) Session() string { return s.session }

func (s *ReplayService) Instrument() string { return s.opts.Instrument }
