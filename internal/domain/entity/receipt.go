package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Receipt is an immutable proof-of-payment record, issued exactly once for
// a VALIDATED payment. It is never mutated after creation; a duplicate
// request is answered by re-reading the existing row.
type Receipt struct {
	ID                int64           `json:"id"`
	Reference         string          `json:"reference"`
	PaymentID         int64           `json:"payment_id"`
	PaymentReference  string          `json:"payment_reference"`
	InvoiceReference  string          `json:"invoice_reference"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	PayerID           string          `json:"payer_id"`
	PayerName         string          `json:"payer_name"`
	StudentName       string          `json:"student_name"`
	IssuedBy          string          `json:"issued_by"`
	IssuedAt          time.Time       `json:"issued_at"`
	VerificationToken string          `json:"verification_token"`
	Checksum          string          `json:"checksum"`
}

// ComputeChecksum derives the tamper-evidence digest embedded in the
// receipt's verification payload. Recomputing it over the stored fields
// must reproduce the stored value.
func (r *Receipt) ComputeChecksum() string {
	payload := fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		r.Reference, r.PaymentReference, r.InvoiceReference,
		r.Amount.String(), r.PayerID, r.VerificationToken)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Verify checks the stored checksum against a fresh computation.
func (r *Receipt) Verify() bool {
	return r.Checksum == r.ComputeChecksum()
}
