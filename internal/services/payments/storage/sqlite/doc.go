// Package sqlite persists the payments event log, saga instances, read models,
// projection checkpoints and the dispatch outbox in one SQLite database.
//
// Appends run in a single transaction that checks the stream version, inserts
// the batch and, when the outbox is enabled, enqueues each event for relay to
// the dispatch bus. A crash between append and publish therefore loses nothing:
// the relay picks the rows up on the next start.
package sqlite
