// Package service orchestrates the order book with its journal, outbox
// and downstream publishers.
//
// ReplayService is the only write entry point. Every event is journaled,
// applied to the book, and whatever the book recorded while applying it
// (fills, snapshots, spread samples) is handed to the outbox, Kafka and
// the quote cache. Readers use the query methods, which take a read lock.
package service
