package emailclaim

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/command"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/customer"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
)

// AggregateType tags email reservation streams.
const AggregateType = "customer_email"

const (
	CommandTypeReserve command.Type = "customer_email.reserve"
	CommandTypeRelease command.Type = "customer_email.release"
	EventTypeReserved  event.Type   = "customer_email.reserved"
	EventTypeReleased  event.Type   = "customer_email.released"

	RejectionCodeTaken           = "CUSTOMER_EMAIL_TAKEN"
	RejectionCodeAlreadyReserved = "CUSTOMER_EMAIL_ALREADY_RESERVED"
	RejectionCodeEmailInvalid    = "CUSTOMER_EMAIL_INVALID"

	rejectionCodeCustomerRequired = "CUSTOMER_EMAIL_CUSTOMER_REQUIRED"
	rejectionCodeStreamMismatch   = "CUSTOMER_EMAIL_STREAM_MISMATCH"
	rejectionCodeNotHeld          = "CUSTOMER_EMAIL_NOT_HELD"

	streamPrefix = AggregateType + "/"
)

// StreamID returns the reservation stream of an email, or false when the
// address is invalid.
func StreamID(email string) (string, bool) {
	normalized, ok := customer.NormalizeEmail(email)
	if !ok {
		return "", false
	}
	return streamPrefix + normalized, true
}

// Decider decides email reservation commands.
type Decider struct{}

// Decide returns the decision for a reservation command against current state.
func (Decider) Decide(state State, cmd command.Command, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}
	switch cmd.Type {
	case CommandTypeReserve:
		return decideReserve(state, cmd, now)
	case CommandTypeRelease:
		return decideRelease(state, cmd, now)
	default:
		return command.Reject(command.Rejection{Code: command.RejectionCodeCommandTypeUnsupported, Message: "command type is not supported by customer_email"})
	}
}

func decideReserve(state State, cmd command.Command, now func() time.Time) command.Decision {
	var payload ReservePayload
	if err := json.Unmarshal(cmd.PayloadJSON, &payload); err != nil {
		return command.Reject(command.Rejection{Code: command.RejectionCodePayloadDecodeFailed, Message: err.Error()})
	}
	customerID := strings.TrimSpace(payload.CustomerID)
	if customerID == "" {
		return command.Reject(command.Rejection{Code: rejectionCodeCustomerRequired, Message: "customer id is required"})
	}
	email, ok := customer.NormalizeEmail(payload.Email)
	if !ok {
		return command.Reject(command.Rejection{Code: RejectionCodeEmailInvalid, Message: "email address is invalid"})
	}
	if cmd.AggregateID != streamPrefix+email {
		return command.Reject(command.Rejection{Code: rejectionCodeStreamMismatch, Message: "email does not match its reservation stream"})
	}
	if state.Reserved {
		if state.CustomerID == customerID {
			return command.Reject(command.Rejection{Code: RejectionCodeAlreadyReserved, Message: "email already reserved by this customer"})
		}
		return command.Reject(command.Rejection{Code: RejectionCodeTaken, Message: "email address is already registered"})
	}

	payloadJSON, _ := json.Marshal(ReservedPayload{CustomerID: customerID, Email: email})
	return command.Accept(command.NewEvent(cmd, EventTypeReserved, AggregateType, payloadJSON, now()))
}

func decideRelease(state State, cmd command.Command, now func() time.Time) command.Decision {
	var payload ReleasePayload
	if err := json.Unmarshal(cmd.PayloadJSON, &payload); err != nil {
		return command.Reject(command.Rejection{Code: command.RejectionCodePayloadDecodeFailed, Message: err.Error()})
	}
	customerID := strings.TrimSpace(payload.CustomerID)
	if !state.Reserved || state.CustomerID != customerID {
		return command.Reject(command.Rejection{Code: rejectionCodeNotHeld, Message: "email is not reserved by this customer"})
	}
	payloadJSON, _ := json.Marshal(ReleasedPayload{CustomerID: customerID})
	return command.Accept(command.NewEvent(cmd, EventTypeReleased, AggregateType, payloadJSON, now()))
}
