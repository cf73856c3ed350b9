package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
)

type Writer struct {
	Dir string
}

// Write replaces the checkpoint atomically: the file is written under a
// temporary name, synced, then renamed over the previous one.
func (w *Writer) Write(s Snapshot) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return errors.Wrap(err, "snapshot: mkdir")
	}

	tmp, err := os.CreateTemp(w.Dir, fileName+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "snapshot: create")
	}
	defer os.Remove(tmp.Name())

	s.Version = currentVersion
	s.Created = time.Now().UTC()
	if err := gob.NewEncoder(tmp).Encode(&s); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "snapshot: encode")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "snapshot: sync")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "snapshot: close")
	}
	return errors.Wrap(os.Rename(tmp.Name(), filepath.Join(w.Dir, fileName)), "snapshot: rename")
}
