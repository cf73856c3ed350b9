package exit

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

// -------------------- State --------------------

type ExitState uint8

const (
	StateNew ExitState = iota
	StateSent
	StateAcked
	StateFailed
)

func (s ExitState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

var ErrNotFound = errors.New("exit wal: record not found")

// -------------------- Record --------------------

type ExitRecord struct {
	Seq         uint64
	State       ExitState
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

const recordHeader = 1 + 4 + 8

// binary encoding: [state:1][retries:4][lastAttempt:8][payload]
func encodeRecord(r ExitRecord) []byte {
	buf := make([]byte, recordHeader+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[recordHeader:], r.Payload)
	return buf
}

func decodeRecord(seq uint64, b []byte) (ExitRecord, error) {
	if len(b) < recordHeader {
		return ExitRecord{}, errors.Newf("exit wal: record %d has length %d", seq, len(b))
	}
	return ExitRecord{
		Seq:         seq,
		State:       ExitState(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     bytes.Clone(b[recordHeader:]),
	}, nil
}

// -------------------- WAL --------------------

// ExitWAL is the durable outbox between the book and downstream
// publishers. Entries move NEW -> SENT -> ACKED, or to FAILED for retry.
type ExitWAL struct {
	db  *pebble.DB
	now func() time.Time
}

func Open(dir string) (*ExitWAL, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "exit wal: open %s", dir)
	}
	return &ExitWAL{db: db, now: time.Now}, nil
}

func (w *ExitWAL) Close() error {
	return w.db.Close()
}

// -------------------- API --------------------

// PutNew stores a payload awaiting publication.
func (w *ExitWAL) PutNew(seq uint64, payload []byte) error {
	rec := ExitRecord{Seq: seq, State: StateNew, Payload: payload}
	return w.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
}

// UpdateState rewrites the state of an existing entry, keeping its payload.
func (w *ExitWAL) UpdateState(seq uint64, state ExitState, retries uint32) error {
	rec, err := w.Get(seq)
	if err != nil {
		return err
	}
	rec.State = state
	rec.Retries = retries
	rec.LastAttempt = w.now().UnixNano()
	return w.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
}

func (w *ExitWAL) MarkSent(seq uint64) error {
	rec, err := w.Get(seq)
	if err != nil {
		return err
	}
	return w.UpdateState(seq, StateSent, rec.Retries)
}

func (w *ExitWAL) MarkAcked(seq uint64) error {
	rec, err := w.Get(seq)
	if err != nil {
		return err
	}
	return w.UpdateState(seq, StateAcked, rec.Retries)
}

// MarkFailed records a failed attempt and bumps the retry counter.
func (w *ExitWAL) MarkFailed(seq uint64) error {
	rec, err := w.Get(seq)
	if err != nil {
		return err
	}
	return w.UpdateState(seq, StateFailed, rec.Retries+1)
}

// Delete removes an entry regardless of its state.
func (w *ExitWAL) Delete(seq uint64) error {
	return w.db.Delete(keyFor(seq), pebble.Sync)
}

func (w *ExitWAL) Get(seq uint64) (ExitRecord, error) {
	val, closer, err := w.db.Get(keyFor(seq))
	if errors.Is(err, pebble.ErrNotFound) {
		return ExitRecord{}, errors.Wrapf(ErrNotFound, "seq %d", seq)
	}
	if err != nil {
		return ExitRecord{}, err
	}
	defer closer.Close()

	return decodeRecord(seq, val)
}

// LastSeq returns the highest sequence in the outbox, or 0 when empty.
func (w *ExitWAL) LastSeq() (uint64, error) {
	iter, err := w.newIter()
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}

// -------------------- Scan --------------------

func (w *ExitWAL) newIter() (*pebble.Iterator, error) {
	return w.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
}

func (w *ExitWAL) scan(fn func(rec ExitRecord) (bool, error)) error {
	iter, err := w.newIter()
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		rec, err := decodeRecord(seq, iter.Value())
		if err != nil {
			return err
		}
		more, err := fn(rec)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return iter.Error()
}

// ScanByState iterates, in sequence order, all records in the given state.
func (w *ExitWAL) ScanByState(state ExitState, fn func(seq uint64, rec ExitRecord) error) error {
	return w.scan(func(rec ExitRecord) (bool, error) {
		if rec.State != state {
			return true, nil
		}
		return true, fn(rec.Seq, rec)
	})
}

// ScanPending visits NEW entries and FAILED entries with fewer than
// maxRetries attempts, at most limit of them (0 means no limit).
func (w *ExitWAL) ScanPending(maxRetries uint32, limit int, fn func(rec ExitRecord) error) error {
	seen := 0
	return w.scan(func(rec ExitRecord) (bool, error) {
		switch {
		case rec.State == StateNew:
		case rec.State == StateFailed && (maxRetries == 0 || rec.Retries < maxRetries):
		default:
			return true, nil
		}
		if err := fn(rec); err != nil {
			return false, err
		}
		seen++
		return limit == 0 || seen < limit, nil
	})
}

// TruncateAckedUpTo deletes ACKED entries with seq <= upTo and reports how
// many went.
func (w *ExitWAL) TruncateAckedUpTo(upTo uint64) (int, error) {
	batch := w.db.NewBatch()
	defer batch.Close()

	n := 0
	err := w.scan(func(rec ExitRecord) (bool, error) {
		if rec.Seq > upTo {
			return false, nil
		}
		if rec.State == StateAcked {
			if err := batch.Delete(keyFor(rec.Seq), nil); err != nil {
				return false, err
			}
			n++
		}
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, errors.Wrap(err, "exit wal: commit truncate")
	}
	return n, nil
}

// -------------------- Helpers --------------------

const keyPrefix = "out/"

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf(keyPrefix+"%020d", seq))
}

func parseKey(b []byte) (uint64, error) {
	var id uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte(keyPrefix))), "%d", &id)
	return id, errors.Wrapf(err, "exit wal: key %q", b)
}
