package entity

// Student is the narrow student reference the billing core consumes from
// the enrollment system. Billing never needs more than identity, display
// name and class.
type Student struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	ClassID string `json:"class_id"`
}

// Payer is the guardian or other party a payment is attributed to.
type Payer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Contact string `json:"contact"`
}
