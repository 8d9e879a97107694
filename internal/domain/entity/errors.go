package entity

import "errors"

var (
	// ErrNotFound is returned when a referenced invoice, payment, waiver,
	// discount or scholarship does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for malformed input: empty line sets,
	// non-positive amounts, unrecognized statuses or payment methods.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState is returned when an operation is not legal from the
	// current status, e.g. validating an already-cancelled payment.
	ErrInvalidState = errors.New("invalid state")

	// ErrOverpayment is returned when applying a payment would push
	// amount_paid past amount_total. The caller must resubmit a smaller amount.
	ErrOverpayment = errors.New("payment exceeds remaining balance")

	// ErrInvariant is returned when a reversal would drive amount_paid
	// negative. This indicates a bug or double-cancellation upstream.
	ErrInvariant = errors.New("monetary invariant violation")

	// ErrConcurrency is returned when an optimistic version check loses
	// against a concurrent writer after bounded retries.
	ErrConcurrency = errors.New("concurrent modification detected")

	// ErrSequenceExhausted is returned when a reference counter would
	// overflow its fixed six-digit width for the year. Surfaced as a
	// configuration problem, never retried.
	ErrSequenceExhausted = errors.New("reference sequence exhausted")
)
