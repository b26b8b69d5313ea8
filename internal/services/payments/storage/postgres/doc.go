// Package postgres persists the payments event log and saga instances in
// Postgres for deployments that share one database across processes.
//
// Read models stay in the SQLite or memory stores; they are rebuilt from the
// log and do not need to be shared.
package postgres
