package customer

// PaymentMethod is a card reference held by a customer.
type PaymentMethod struct {
	Fingerprint string
	Brand       string
	Last4       string
}

// State is the customer aggregate state.
type State struct {
	Registered     bool
	Name           string
	Email          string
	PaymentMethods []PaymentMethod
}

// HasFingerprint reports whether a card with fingerprint is already stored.
func (s State) HasFingerprint(fingerprint string) bool {
	for _, method := range s.PaymentMethods {
		if method.Fingerprint == fingerprint {
			return true
		}
	}
	return false
}
