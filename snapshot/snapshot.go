package snapshot

import (
	"time"

	"lobster/domain/orderbook"
)

// Snapshot is the on-disk checkpoint.
type Snapshot struct {
	Version    int
	Instrument string
	// Seq is the last journal sequence reflected in Book.
	Seq     uint64
	Created time.Time
	// Last is the last event applied to Book; a resumed feed skips up to it.
	Last orderbook.Event
	Book orderbook.Checkpoint
}

const currentVersion = 1

const fileName = "checkpoint.bin"
