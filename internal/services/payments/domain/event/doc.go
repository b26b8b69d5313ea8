// Package event defines the immutable event envelope and the registry that
// validates events before they are appended to an aggregate stream.
//
// Events are facts: once appended they are never edited. Everything downstream
// (aggregate folds, projections, the payment saga) reads the same envelope, so
// the envelope carries both per-stream ordering (Seq) and the store-assigned
// global Position used for projection rebuilds.
package event
