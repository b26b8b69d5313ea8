package settlement

// SettlePayload captures the payload for settlement.settle commands.
type SettlePayload struct {
	AuthorizationID string `json:"authorization_id"`
	ProcessingID    string `json:"processing_id"`
	MerchantID      string `json:"merchant_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

// SettledPayload captures the payload for payment.settled events.
type SettledPayload struct {
	AuthorizationID string `json:"authorization_id"`
	ProcessingID    string `json:"processing_id"`
	MerchantID      string `json:"merchant_id"`
	Amount          int64  `json:"amount"`
	Fee             int64  `json:"fee"`
	Net             int64  `json:"net"`
	Currency        string `json:"currency"`
	ReferenceID     string `json:"reference_id"`
}

// FailedPayload captures the payload for settlement.failed events.
type FailedPayload struct {
	AuthorizationID string `json:"authorization_id"`
	ProcessingID    string `json:"processing_id"`
	MerchantID      string `json:"merchant_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Reason          string `json:"reason"`
}
