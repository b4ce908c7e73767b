// Package journal records inbound websocket messages to PostgreSQL.
//
// A Recorder owns a router that is attached to a connection. Every frame the
// router sees becomes an Entry on an in-memory queue, and a background loop
// writes entries to a Store in batches.
//
// The journal is append-only. Entries are keyed by a random UUID so a
// retried batch never duplicates rows.
package journal
