// Package feed turns B3 order-event archives (the OFER_CPA buy file and
// the OFER_VDA sell file of a session) into orderbook events.
//
// Records are ';'-delimited with padded fields; the first and last lines
// of an archive are RH/RT header and trailer lines and are skipped.
// Archives ending in .gz are decompressed on the fly.
package feed
