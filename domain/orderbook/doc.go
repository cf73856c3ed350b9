// Package orderbook reconstructs a venue's limit order book from an
// ordered stream of order lifecycle events (new, update, cancel, trade,
// reentry, expire).
//
// Each side keeps an order database keyed by sequence number and a
// fixed-range price ladder whose slots hold the aggregate remaining size
// and a FIFO queue of resting orders. The Book routes events to the
// sides, drives the closed → opening → open phase machine, matches a
// crossed book with price-time priority once trading is open, and
// records depth snapshots and spread samples.
//
// The package is single-writer and deterministic: it performs no I/O and
// never reads the wall clock, so replaying the same events into a fresh
// Book always yields the same state.
package orderbook
