// Package storage defines the persistence contracts shared by the payment
// service: the append-only event store, projection read models, and
// projection checkpoints.
//
// Adapters live in subpackages (memory, sqlite, postgres). The saga package
// owns its instance store contract so that saga types do not leak here.
package storage
