// Package engine is the aggregate runtime: it validates a command, rebuilds the
// target aggregate by replay, asks its decider for a decision, and appends the
// resulting events under an optimistic expected-version check.
//
// Appended events are handed to the publisher once, in append order. Everything
// downstream of a successful append (projections, saga steps) is asynchronous
// and never reported back through Handle or Submit.
package engine
