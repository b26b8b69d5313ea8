package processing

// ProcessPayload captures the payload for processing.process commands.
type ProcessPayload struct {
	AuthorizationID string `json:"authorization_id"`
	MerchantID      string `json:"merchant_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

// ProcessedPayload captures the payload for payment.processed events.
type ProcessedPayload struct {
	AuthorizationID string `json:"authorization_id"`
	MerchantID      string `json:"merchant_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	ReferenceID     string `json:"reference_id"`
}

// FailedPayload captures the payload for payment.processing_failed events.
type FailedPayload struct {
	AuthorizationID string `json:"authorization_id"`
	MerchantID      string `json:"merchant_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Reason          string `json:"reason"`
}
