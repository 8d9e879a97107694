package workflow

// States and triggers for the three billing lifecycles. The invoice
// machine models command-driven transitions; the amount-derived statuses
// (PARTIALLY_PAID, PAID) move back and forth as payment effects land, and
// the machine guards which commands remain legal from each of them.

// Invoice lifecycle.
const (
	InvoiceDraft         State = "DRAFT"
	InvoiceIssued        State = "ISSUED"
	InvoicePartiallyPaid State = "PARTIALLY_PAID"
	InvoicePaid          State = "PAID"
	InvoiceCancelled     State = "CANCELLED"

	TriggerIssue   Trigger = "ISSUE"
	TriggerPay     Trigger = "PAY"
	TriggerReverse Trigger = "REVERSE"
	TriggerCancel  Trigger = "CANCEL"
)

// Payment lifecycle.
const (
	PaymentPending   State = "PENDING"
	PaymentValidated State = "VALIDATED"
	PaymentCancelled State = "CANCELLED"

	TriggerValidate      Trigger = "VALIDATE"
	TriggerCancelPayment Trigger = "CANCEL"
)

// Waiver lifecycle.
const (
	WaiverPending   State = "PENDING"
	WaiverApproved  State = "APPROVED"
	WaiverRejected  State = "REJECTED"
	WaiverCancelled State = "CANCELLED"
	WaiverExpired   State = "EXPIRED"

	TriggerApprove      Trigger = "APPROVE"
	TriggerReject       Trigger = "REJECT"
	TriggerCancelWaiver Trigger = "CANCEL"
	TriggerExpire       Trigger = "EXPIRE"
)

// NewInvoiceLifecycle configures the invoice state machine. PAID and
// CANCELLED are terminal: no trigger leaves them except a payment reversal
// pulling PAID back to PARTIALLY_PAID.
func NewInvoiceLifecycle() StateMachineBuilder {
	b := NewBuilder()
	b.Configure(InvoiceDraft).
		Permit(TriggerIssue, InvoiceIssued).
		Permit(TriggerCancel, InvoiceCancelled)
	b.Configure(InvoiceIssued).
		Permit(TriggerPay, InvoicePartiallyPaid).
		Permit(TriggerCancel, InvoiceCancelled)
	b.Configure(InvoicePartiallyPaid).
		Permit(TriggerPay, InvoicePaid).
		Permit(TriggerReverse, InvoiceIssued).
		Permit(TriggerCancel, InvoiceCancelled)
	b.Configure(InvoicePaid).
		Permit(TriggerReverse, InvoicePartiallyPaid)
	return b
}

// NewPaymentLifecycle configures the payment state machine. A cancelled
// payment is terminal; cancelling it again is an invalid transition.
func NewPaymentLifecycle() StateMachineBuilder {
	b := NewBuilder()
	b.Configure(PaymentPending).
		Permit(TriggerValidate, PaymentValidated).
		Permit(TriggerCancelPayment, PaymentCancelled)
	b.Configure(PaymentValidated).
		Permit(TriggerCancelPayment, PaymentCancelled)
	return b
}

// NewWaiverLifecycle configures the waiver state machine. Every decision is
// terminal; retrying a rejected waiver means filing a new one.
func NewWaiverLifecycle() StateMachineBuilder {
	b := NewBuilder()
	b.Configure(WaiverPending).
		Permit(TriggerApprove, WaiverApproved).
		Permit(TriggerReject, WaiverRejected).
		Permit(TriggerCancelWaiver, WaiverCancelled).
		Permit(TriggerExpire, WaiverExpired)
	return b
}
