// Package aggregate maps aggregate types to their decide/fold functions.
//
// Every payment aggregate (customer, authorization, processing, settlement)
// follows the same shape: a zero state, a pure Fold that derives state from one
// event, and a Decide that turns a command into events or rejections. The engine
// only talks to this registry, so adding an aggregate is a registration, not a
// new code path.
package aggregate
