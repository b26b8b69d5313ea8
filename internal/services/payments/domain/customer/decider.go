package customer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/mail"
	"strings"
	"time"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/command"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
)

// AggregateType tags customer streams.
const AggregateType = "customer"

const (
	CommandTypeRegister         command.Type = "customer.register"
	CommandTypeAddPaymentMethod command.Type = "customer.add_payment_method"
	EventTypeRegistered         event.Type   = "customer.registered"
	EventTypePaymentMethodAdded event.Type   = "customer.payment_method_added"

	RejectionCodeAlreadyExists = "CUSTOMER_ALREADY_EXISTS"

	rejectionCodeNotFound      = "CUSTOMER_NOT_FOUND"
	rejectionCodeNameRequired  = "CUSTOMER_NAME_REQUIRED"
	rejectionCodeEmailInvalid  = "CUSTOMER_EMAIL_INVALID"
	rejectionCodeCardInvalid   = "PAYMENT_METHOD_INVALID"
	rejectionCodeCardDuplicate = "PAYMENT_METHOD_DUPLICATE"
)

// Decider decides customer commands. Email uniqueness across customers is
// held by the emailclaim reservation taken before registering.
type Decider struct{}

// Decide returns the decision for a customer command against current state.
func (d Decider) Decide(state State, cmd command.Command, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}
	switch cmd.Type {
	case CommandTypeRegister:
		return d.decideRegister(state, cmd, now)
	case CommandTypeAddPaymentMethod:
		return decideAddPaymentMethod(state, cmd, now)
	default:
		return command.Reject(command.Rejection{Code: command.RejectionCodeCommandTypeUnsupported, Message: "command type is not supported by customer"})
	}
}

func (Decider) decideRegister(state State, cmd command.Command, now func() time.Time) command.Decision {
	if state.Registered {
		return command.Reject(command.Rejection{Code: RejectionCodeAlreadyExists, Message: "customer already exists"})
	}
	var payload RegisterPayload
	if err := json.Unmarshal(cmd.PayloadJSON, &payload); err != nil {
		return command.Reject(command.Rejection{Code: command.RejectionCodePayloadDecodeFailed, Message: err.Error()})
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		return command.Reject(command.Rejection{Code: rejectionCodeNameRequired, Message: "customer name is required"})
	}
	email, ok := NormalizeEmail(payload.Email)
	if !ok {
		return command.Reject(command.Rejection{Code: rejectionCodeEmailInvalid, Message: "email address is invalid"})
	}

	payloadJSON, _ := json.Marshal(RegisteredPayload{Name: name, Email: email})
	return command.Accept(command.NewEvent(cmd, EventTypeRegistered, AggregateType, payloadJSON, now()))
}

func decideAddPaymentMethod(state State, cmd command.Command, now func() time.Time) command.Decision {
	if !state.Registered {
		return command.Reject(command.Rejection{Code: rejectionCodeNotFound, Message: "customer is not registered"})
	}
	var payload AddPaymentMethodPayload
	if err := json.Unmarshal(cmd.PayloadJSON, &payload); err != nil {
		return command.Reject(command.Rejection{Code: command.RejectionCodePayloadDecodeFailed, Message: err.Error()})
	}
	digits, ok := cardDigits(payload.CardNumber)
	if !ok {
		return command.Reject(command.Rejection{Code: rejectionCodeCardInvalid, Message: "card number must have 12 to 19 digits"})
	}
	fingerprint := Fingerprint(digits)
	if state.HasFingerprint(fingerprint) {
		return command.Reject(command.Rejection{Code: rejectionCodeCardDuplicate, Message: "payment method already on file"})
	}

	payloadJSON, _ := json.Marshal(PaymentMethodAddedPayload{
		Fingerprint: fingerprint,
		Brand:       strings.ToLower(strings.TrimSpace(payload.Brand)),
		Last4:       digits[len(digits)-4:],
	})
	return command.Accept(command.NewEvent(cmd, EventTypePaymentMethodAdded, AggregateType, payloadJSON, now()))
}

// NormalizeEmail lowercases and validates a bare email address.
func NormalizeEmail(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw || addr.Name != "" {
		return "", false
	}
	at := strings.LastIndex(addr.Address, "@")
	if at <= 0 || !strings.Contains(addr.Address[at+1:], ".") {
		return "", false
	}
	return strings.ToLower(addr.Address), true
}

// Fingerprint returns a stable hash for a card number.
func Fingerprint(digits string) string {
	sum := sha256.Sum256([]byte(digits))
	return hex.EncodeToString(sum[:])
}

func cardDigits(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-':
		default:
			return "", false
		}
	}
	digits := b.String()
	if len(digits) < 12 || len(digits) > 19 {
		return "", false
	}
	return digits, true
}
