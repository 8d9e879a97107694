package event

// Type identifies the type of domain event
type Type string

const (
	TypeInvoiceIssued   Type = "invoice.issued"
	TypePaymentReceived Type = "payment.received"
	TypeOverdueReminder Type = "payment.overdue_reminder"
	TypeWaiverDecided   Type = "waiver.decided"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeInvoiceIssued,
		TypePaymentReceived,
		TypeOverdueReminder,
		TypeWaiverDecided:
		return true
	default:
		return false
	}
}
