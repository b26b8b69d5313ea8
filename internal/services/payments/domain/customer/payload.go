package customer

// RegisterPayload captures the payload for customer.register commands.
type RegisterPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RegisteredPayload captures the payload for customer.registered events.
type RegisteredPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AddPaymentMethodPayload captures the payload for customer.add_payment_method commands.
type AddPaymentMethodPayload struct {
	CardNumber string `json:"card_number"`
	Brand      string `json:"brand"`
}

// PaymentMethodAddedPayload captures the payload for customer.payment_method_added events.
type PaymentMethodAddedPayload struct {
	Fingerprint string `json:"fingerprint"`
	Brand       string `json:"brand"`
	Last4       string `json:"last4"`
}
