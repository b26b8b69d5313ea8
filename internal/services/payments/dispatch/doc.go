// Package dispatch delivers appended events to in-process subscribers.
//
// Each subscriber gets its own set of partitions. An event goes to exactly one
// partition per subscriber, chosen by hashing the subscriber's partition key,
// and each partition is drained by a single worker. Events sharing a key are
// therefore handled one at a time and in publish order, while different keys
// proceed in parallel.
//
// Publish never blocks on a handler: partitions are unbounded queues, so a
// handler may itself cause new events to be published.
package dispatch
