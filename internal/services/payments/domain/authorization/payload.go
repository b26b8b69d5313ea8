package authorization

// AuthorizePayload captures the payload for authorization.authorize commands.
type AuthorizePayload struct {
	CustomerID string `json:"customer_id"`
	MerchantID string `json:"merchant_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
}

// AuthorizedPayload captures the payload for payment.authorized events.
type AuthorizedPayload struct {
	CustomerID string `json:"customer_id"`
	MerchantID string `json:"merchant_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
}

// DeclinedPayload captures the payload for payment.authorization_declined events.
type DeclinedPayload struct {
	CustomerID string `json:"customer_id"`
	MerchantID string `json:"merchant_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	ReasonCode string `json:"reason_code"`
}

// VoidPayload captures the payload for authorization.void commands.
type VoidPayload struct {
	Reason string `json:"reason"`
}

// VoidedPayload captures the payload for authorization.voided events.
type VoidedPayload struct {
	Reason string `json:"reason"`
}
