package entity

import "time"

// Notification status constants (outbox delivery lifecycle).
const (
	NotificationStatusPending = "PENDING"
	NotificationStatusSent    = "SENT"
	NotificationStatusFailed  = "FAILED"
)

// Notification is an outbox row recording an event that must reach the
// external notification sink. Delivery is decoupled from the financial
// transaction: rows are written after commit and drained by a worker with
// bounded retry, so a sink outage can never roll back a ledger change.
type Notification struct {
	ID          int64      `json:"id"`
	EventType   string     `json:"event_type"`
	InvoiceID   int64      `json:"invoice_id"`
	Recipient   string     `json:"recipient"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
