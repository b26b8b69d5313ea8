// Package projection folds the event log into query-friendly read models.
//
// Handlers are full-row upserts guarded by the last applied sequence of the
// source stream, so redelivered or stale events leave rows unchanged. Rows are
// eventually consistent with the log; Rebuild recreates them from position zero.
package projection
