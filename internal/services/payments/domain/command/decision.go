package command

import (
	"errors"
	"strings"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
)

// Shared rejection codes used by every decider.
const (
	RejectionCodePayloadDecodeFailed    = "PAYLOAD_DECODE_FAILED"
	RejectionCodeCommandTypeUnsupported = "COMMAND_TYPE_UNSUPPORTED"
	RejectionCodeStateInvalid           = "AGGREGATE_STATE_INVALID"
)

// Decision represents the pure outcome of handling a command.
type Decision struct {
	Events     []event.Event
	Rejections []Rejection
}

// Rejection captures a domain-level reason a command was declined.
type Rejection struct {
	Code    string
	Message string
}

// Accept returns a decision that emits the provided events.
func Accept(events ...event.Event) Decision {
	return Decision{Events: append([]event.Event(nil), events...)}
}

// Reject returns a decision that carries the provided rejections.
func Reject(rejections ...Rejection) Decision {
	return Decision{Rejections: append([]Rejection(nil), rejections...)}
}

// Rejected reports whether the decision declined the command.
func (d Decision) Rejected() bool {
	return len(d.Rejections) > 0
}

// Reason joins rejection messages for the submitter.
func (d Decision) Reason() string {
	parts := make([]string, 0, len(d.Rejections))
	for _, r := range d.Rejections {
		parts = append(parts, r.Code+": "+r.Message)
	}
	return strings.Join(parts, "; ")
}

// Validate ensures the decision carries exactly one of events or rejections.
func (d Decision) Validate() error {
	if len(d.Events) == 0 && len(d.Rejections) == 0 {
		return errors.New("decision must emit events or rejections")
	}
	if len(d.Events) > 0 && len(d.Rejections) > 0 {
		return errors.New("decision cannot both emit events and reject")
	}
	return nil
}
