// Package snapshot persists book checkpoints. A checkpoint pairs the full
// state of a book with the journal sequence it covers, so a restart loads
// the file and replays only the journal tail.
package snapshot
