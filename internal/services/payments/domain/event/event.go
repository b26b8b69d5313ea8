package event

import (
	"fmt"
	"time"
)

// Type identifies the event type string.
type Type string

// Event is a single fact appended to one aggregate's stream.
type Event struct {
	// AggregateID addresses the stream the event belongs to.
	AggregateID string
	// AggregateType tags the owning aggregate (customer, authorization, ...).
	AggregateType string
	// Seq is the 1-based position inside the aggregate stream. It equals the
	// aggregate version after this event is applied.
	Seq uint64
	// Position is the store-wide append order. It is only meaningful for
	// replaying the whole log; cross-stream causality is not implied.
	Position uint64
	Type     Type
	// Timestamp is when the deciding command was handled, in UTC.
	Timestamp time.Time
	// CorrelationID ties events of one payment transaction together.
	CorrelationID string
	// CausationID is the id of the command or event that caused this one.
	CausationID string
	PayloadJSON []byte
}

// ID returns the stable identity of a stored event: its stream and sequence.
// Duplicate deliveries of the same stored event share the same ID.
func (e Event) ID() string {
	return fmt.Sprintf("%s/%d", e.AggregateID, e.Seq)
}
