package entry

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

var ErrCorruptRecord = errors.New("entry wal: corrupt record")

const maxPayload = 16 << 20

type ReplayHandler func(*Record) error

// Replay feeds every record with Seq > after to fn in journal order and
// returns the last sequence handed to fn (after when none was). A
// torn record at the very end of the last segment is treated as the end
// of the journal.
func Replay(dir string, after uint64, fn ReplayHandler) (lastSeq uint64, err error) {
	files, err := listSegments(dir)
	if err != nil {
		return 0, err
	}

	lastSeq = after
	var prev uint64
	for i, path := range files {
		tail := i == len(files)-1
		err := replaySegment(path, tail, func(rec *Record) error {
			if rec.Seq <= prev {
				return errors.Wrapf(ErrNonMonotonicSeq, "seq %d after %d in %s", rec.Seq, prev, path)
			}
			prev = rec.Seq
			if rec.Seq <= after {
				return nil
			}
			lastSeq = rec.Seq
			return fn(rec)
		})
		if err != nil {
			return lastSeq, err
		}
	}

	return lastSeq, nil
}

func replaySegment(path string, tail bool, fn ReplayHandler) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "entry wal: open %s", path)
	}
	defer f.Close()

	for {
		rec, err := readRecord(f)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			if tail && isTorn(err) {
				return nil
			}
			return errors.Wrapf(err, "entry wal: read %s", path)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

func isTorn(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrCorruptRecord)
}

// recoverSegment returns the last good sequence of a segment and cuts any
// torn bytes after the last good record.
func recoverSegment(path string) (uint64, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return 0, errors.Wrapf(err, "entry wal: open %s", path)
	}
	defer f.Close()

	var lastSeq uint64
	var good int64
	for {
		rec, err := readRecord(f)
		if err == io.EOF {
			return lastSeq, nil
		}
		if err != nil {
			if !isTorn(err) {
				return lastSeq, errors.Wrapf(err, "entry wal: recover %s", path)
			}
			if err := f.Truncate(good); err != nil {
				return lastSeq, errors.Wrapf(err, "entry wal: truncate %s", path)
			}
			return lastSeq, nil
		}
		lastSeq = rec.Seq
		good += int64(headerSize + len(rec.Data) + crcSize)
	}
}

func readRecord(r io.Reader) (*Record, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	t := RecordType(header[0])
	seq := binary.BigEndian.Uint64(header[1:9])
	ts := binary.BigEndian.Uint64(header[9:17])
	l := binary.BigEndian.Uint32(header[17:21])
	if l > maxPayload {
		return nil, errors.Wrapf(ErrCorruptRecord, "payload length %d at seq %d", l, seq)
	}

	data := make([]byte, int(l)+crcSize)
	if _, err := io.ReadFull(r, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	payload := data[:l]
	crc := binary.BigEndian.Uint32(data[l:])

	if !CRC32Valid(append(header, payload...), crc) {
		return nil, errors.Wrapf(ErrCorruptRecord, "crc mismatch at seq %d", seq)
	}

	return &Record{
		Type: t,
		Seq:  seq,
		Time: int64(ts),
		Data: payload,
	}, nil
}
