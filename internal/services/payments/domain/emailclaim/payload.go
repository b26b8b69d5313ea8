package emailclaim

// ReservePayload captures the payload for customer_email.reserve commands.
type ReservePayload struct {
	CustomerID string `json:"customer_id"`
	Email      string `json:"email"`
}

// ReservedPayload captures the payload for customer_email.reserved events.
type ReservedPayload struct {
	CustomerID string `json:"customer_id"`
	Email      string `json:"email"`
}

// ReleasePayload captures the payload for customer_email.release commands.
type ReleasePayload struct {
	CustomerID string `json:"customer_id"`
}

// ReleasedPayload captures the payload for customer_email.released events.
type ReleasedPayload struct {
	CustomerID string `json:"customer_id"`
}
