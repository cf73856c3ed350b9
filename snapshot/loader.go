package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// ErrNoSnapshot is returned by Load when the directory holds no checkpoint.
var ErrNoSnapshot = errors.New("snapshot: none")

func Load(dir string) (*Snapshot, error) {
	f, err := os.Open(filepath.Join(dir, fileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, errors.Wrap(err, "snapshot: open")
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, errors.Wrap(err, "snapshot: decode")
	}
	if s.Version != currentVersion {
		return nil, errors.Newf("snapshot: version %d, want %d", s.Version, currentVersion)
	}
	return &s, nil
}
