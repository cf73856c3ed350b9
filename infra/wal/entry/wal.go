package entry

import (
	"encoding/binary"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	headerSize = 1 + 8 + 8 + 4 // [type:1][seq:8][time:8][len:4]
	crcSize    = 4
)

var ErrNonMonotonicSeq = errors.New("entry wal: non-monotonic sequence")

type Config struct {
	Dir             string
	SegmentSize     int64
	SegmentDuration time.Duration
	// SyncEveryAppend fsyncs after each record instead of on rotate/Sync.
	SyncEveryAppend bool
}

type WAL struct {
	mu sync.Mutex

	dir        string
	segSize    int64
	segDur     time.Duration
	syncAll    bool
	current    *segment
	lastSeq    uint64
	lastRotate time.Time
}

// Open resumes the highest-numbered segment, trimming a torn record left
// at its tail by a crash.
func Open(cfg Config) (*WAL, error) {
	if cfg.Dir == "" {
		return nil, errors.New("entry wal: empty dir")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "entry wal: mkdir")
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = 64 << 20
	}

	files, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}
	var lastSeq uint64
	index := 0
	if n := len(files); n > 0 {
		index = segmentIndex(files[n-1])
		for _, path := range files[:n-1] {
			s, err := maxSeqInSegment(path)
			if err != nil {
				return nil, errors.Wrapf(err, "entry wal: scan %s", path)
			}
			lastSeq = max(lastSeq, s)
		}
		s, err := recoverSegment(files[n-1])
		if err != nil {
			return nil, err
		}
		lastSeq = max(lastSeq, s)
	}

	seg, err := openSegment(cfg.Dir, index)
	if err != nil {
		return nil, err
	}

	return &WAL{
		dir:        cfg.Dir,
		segSize:    cfg.SegmentSize,
		segDur:     cfg.SegmentDuration,
		syncAll:    cfg.SyncEveryAppend,
		current:    seg,
		lastSeq:    lastSeq,
		lastRotate: time.Now(),
	}, nil
}

// LastSeq is the highest sequence durably framed in the journal.
func (w *WAL) LastSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeq
}

func encodeFrame(r *Record) []byte {
	payloadLen := uint32(len(r.Data))

	// [type:1][seq:8][time:8][len:4][payload][crc:4]
	buf := make([]byte, headerSize+int(payloadLen)+crcSize)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[headerSize:], r.Data)

	crc := CRC32(buf[:headerSize+int(payloadLen)])
	binary.BigEndian.PutUint32(buf[headerSize+int(payloadLen):], crc)
	return buf
}

func (w *WAL) Append(r *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if r.Seq <= w.lastSeq {
		return errors.Wrapf(ErrNonMonotonicSeq, "seq %d after %d", r.Seq, w.lastSeq)
	}
	if err := w.current.append(encodeFrame(r)); err != nil {
		return errors.Wrap(err, "entry wal: append")
	}
	w.lastSeq = r.Seq
	if w.syncAll {
		if err := w.current.sync(); err != nil {
			return errors.Wrap(err, "entry wal: sync")
		}
	}

	if w.current.offset >= w.segSize ||
		(w.segDur > 0 && time.Since(w.lastRotate) >= w.segDur) {
		return w.rotate()
	}
	return nil
}

func (w *WAL) rotate() error {
	if err := w.current.sync(); err != nil {
		return errors.Wrap(err, "entry wal: sync before rotate")
	}
	_ = w.current.close()

	seg, err := openSegment(w.dir, w.current.index+1)
	if err != nil {
		return err
	}

	w.current = seg
	w.lastRotate = time.Now()
	return nil
}

func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current.sync()
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.current.sync(); err != nil {
		_ = w.current.close()
		return err
	}
	return w.current.close()
}

// TruncateBefore removes closed segments whose records all have seq <= seq.
// The active segment is never removed.
func (w *WAL) TruncateBefore(seq uint64) error {
	w.mu.Lock()
	active := w.current.path
	w.mu.Unlock()

	files, err := listSegments(w.dir)
	if err != nil {
		return err
	}

	for _, path := range files {
		if path == active {
			continue
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			if err := os.Remove(path); err != nil {
				return errors.Wrapf(err, "entry wal: remove %s", path)
			}
		}
	}
	return nil
}
