// Package app assembles the payments service.
//
// A Service owns one command engine, one dispatch bus and the two bus
// subscribers that react to appended events: the saga orchestrator, which
// drives authorize → process → settle and its compensation, and the
// projection applier, which maintains the read models served by the query
// methods. Run drives the background loops (bus delivery, saga deadlines and,
// for SQLite with an outbox, the outbox relay) until its context is done.
package app
