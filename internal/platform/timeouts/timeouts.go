// Package timeouts defines shared timeout constants used across paysaga.
// Centralizing these values keeps defaults discoverable and prevents drift
// between the config layer and the runtime.
package timeouts

import "time"

// Shutdown limits how long telemetry and workers get to drain on exit.
const Shutdown = 5 * time.Second

// SagaDeadline is the default completion deadline armed when a saga leaves STARTED.
const SagaDeadline = 30 * time.Second

// CompensationDeadline bounds how long a compensating saga waits for the void
// confirmation before it is closed as FAILED without issuing more commands.
const CompensationDeadline = 60 * time.Second

// DeadlineSweep is how often expired saga deadlines are polled from storage.
const DeadlineSweep = time.Second

// OutboxPoll is how often the dispatch outbox relay polls for undelivered events.
const OutboxPoll = 250 * time.Millisecond
