package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// WaiverStatus is the lifecycle status of a waiver request.
type WaiverStatus string

const (
	WaiverStatusPending   WaiverStatus = "PENDING"
	WaiverStatusApproved  WaiverStatus = "APPROVED"
	WaiverStatusRejected  WaiverStatus = "REJECTED"
	WaiverStatusCancelled WaiverStatus = "CANCELLED"
	WaiverStatusExpired   WaiverStatus = "EXPIRED"
)

// ParseWaiverStatus parses a stored waiver status string.
func ParseWaiverStatus(s string) (WaiverStatus, error) {
	switch WaiverStatus(s) {
	case WaiverStatusPending, WaiverStatusApproved, WaiverStatusRejected,
		WaiverStatusCancelled, WaiverStatusExpired:
		return WaiverStatus(s), nil
	default:
		return "", fmt.Errorf("%w: unknown waiver status %q", ErrValidation, s)
	}
}

// IsDecided returns true once the waiver has left PENDING. A decided
// waiver is terminal; retrying means filing a new one.
func (s WaiverStatus) IsDecided() bool { return s != WaiverStatusPending }

// String returns the string representation of the status.
func (s WaiverStatus) String() string { return string(s) }

// WaiverKind identifies what the exception changes.
type WaiverKind string

const (
	WaiverKindDeadlineExtension WaiverKind = "DEADLINE_EXTENSION"
	WaiverKindReduction         WaiverKind = "REDUCTION"
	WaiverKindExemption         WaiverKind = "EXEMPTION"
)

// ParseWaiverKind parses a client-supplied waiver kind.
func ParseWaiverKind(s string) (WaiverKind, error) {
	switch WaiverKind(s) {
	case WaiverKindDeadlineExtension, WaiverKindReduction, WaiverKindExemption:
		return WaiverKind(s), nil
	default:
		return "", fmt.Errorf("%w: unknown waiver kind %q", ErrValidation, s)
	}
}

// Waiver is a case-by-case administrative exception tied to one invoice.
// Once approved it reduces the invoice's effective total through the
// ledger; the granted amount never exceeds the requested one.
type Waiver struct {
	ID              int64           `json:"id"`
	InvoiceID       int64           `json:"invoice_id"`
	StudentID       string          `json:"student_id"`
	Kind            WaiverKind      `json:"kind"`
	Reason          string          `json:"reason"`
	RequestedAmount decimal.Decimal `json:"requested_amount"`
	GrantedAmount   decimal.Decimal `json:"granted_amount"`
	NewDueDate      *time.Time      `json:"new_due_date,omitempty"`
	Status          WaiverStatus    `json:"status"`
	DecisionReason  string          `json:"decision_reason,omitempty"`
	DecidedBy       string          `json:"decided_by,omitempty"`
	DecidedAt       *time.Time      `json:"decided_at,omitempty"`
	ExpiresAt       time.Time       `json:"expires_at"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Discount is a standing rule, percentage or fixed amount, with an
// eligibility window and an optional student target set. Rules marked
// cumulable may stack; otherwise only the highest-value one applies.
type Discount struct {
	ID          int64           `json:"id"`
	Label       string          `json:"label"`
	Percentage  decimal.Decimal `json:"percentage"`
	FixedAmount decimal.Decimal `json:"fixed_amount"`
	StartDate   *time.Time      `json:"start_date,omitempty"`
	EndDate     *time.Time      `json:"end_date,omitempty"`
	Active      bool            `json:"active"`
	Cumulable   bool            `json:"cumulable"`
	StudentIDs  []string        `json:"student_ids,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// InWindow reports whether the rule's eligibility window covers the date.
// Open-ended bounds are allowed on either side.
func (d *Discount) InWindow(on time.Time) bool {
	if d.StartDate != nil && on.Before(*d.StartDate) {
		return false
	}
	if d.EndDate != nil && on.After(*d.EndDate) {
		return false
	}
	return true
}

// Targets reports whether the rule applies to the student. An empty target
// set means the rule is open to all students.
func (d *Discount) Targets(studentID string) bool {
	if len(d.StudentIDs) == 0 {
		return true
	}
	for _, id := range d.StudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// ScholarshipStatus is the scholarship's own lifecycle, independent of any
// invoice status.
type ScholarshipStatus string

const (
	ScholarshipStatusActive     ScholarshipStatus = "ACTIVE"
	ScholarshipStatusSuspended  ScholarshipStatus = "SUSPENDED"
	ScholarshipStatusTerminated ScholarshipStatus = "TERMINATED"
)

// ParseScholarshipStatus parses a stored scholarship status string.
func ParseScholarshipStatus(s string) (ScholarshipStatus, error) {
	switch ScholarshipStatus(s) {
	case ScholarshipStatusActive, ScholarshipStatusSuspended, ScholarshipStatusTerminated:
		return ScholarshipStatus(s), nil
	default:
		return "", fmt.Errorf("%w: unknown scholarship status %q", ErrValidation, s)
	}
}

// String returns the string representation of the status.
func (s ScholarshipStatus) String() string { return string(s) }

// Scholarship is a standing award to one student covering a percentage of,
// or a capped fixed amount against, their invoices.
type Scholarship struct {
	ID          int64             `json:"id"`
	StudentID   string            `json:"student_id"`
	Label       string            `json:"label"`
	Percentage  decimal.Decimal   `json:"percentage"`
	FixedAmount decimal.Decimal   `json:"fixed_amount"`
	StartDate   *time.Time        `json:"start_date,omitempty"`
	EndDate     *time.Time        `json:"end_date,omitempty"`
	Status      ScholarshipStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Usable reports whether the scholarship can cover an invoice on the given
// date: its own status must be ACTIVE and the date inside its window.
func (s *Scholarship) Usable(on time.Time) bool {
	if s.Status != ScholarshipStatusActive {
		return false
	}
	if s.StartDate != nil && on.Before(*s.StartDate) {
		return false
	}
	if s.EndDate != nil && on.After(*s.EndDate) {
		return false
	}
	return true
}
