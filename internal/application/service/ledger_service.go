package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edusuite/school-billing/internal/application/dispatcher"
	"github.com/edusuite/school-billing/internal/application/port"
	"github.com/edusuite/school-billing/internal/domain/entity"
	"github.com/edusuite/school-billing/internal/domain/event"
	"github.com/edusuite/school-billing/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Document type prefixes for reference numbers.
const (
	DocTypeInvoice = "INV"
	DocTypePayment = "PAY"
	DocTypeReceipt = "REC"
)

// maxEffectRetries bounds how often an amount mutation is retried after an
// optimistic version conflict before ErrConcurrency is surfaced.
const maxEffectRetries = 3

// LineInput describes one priced item of a new invoice.
type LineInput struct {
	Description string
	UnitAmount  decimal.Decimal
	Quantity    int64
	Discount    decimal.Decimal
	TaxRate     decimal.Decimal
}

// CreateInvoiceInput carries everything needed to open an invoice in DRAFT.
type CreateInvoiceInput struct {
	StudentID string
	Currency  string
	DueDate   time.Time
	Lines     []LineInput
}

// LedgerService owns an invoice's totals, lines and status. It is the
// single writer of amount_paid: the two effect methods are the only code
// paths that change it, which is what keeps double-counting and
// negative-balance bugs out of the rest of the system.
type LedgerService interface {
	CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*entity.Invoice, error)
	Issue(ctx context.Context, invoiceID int64) (*entity.Invoice, error)
	Cancel(ctx context.Context, invoiceID int64) (*entity.Invoice, error)

	// ApplyPaymentEffect atomically increments amount_paid and re-derives
	// status. Called only by the payment processor at validation time.
	ApplyPaymentEffect(ctx context.Context, invoiceID int64, amount decimal.Decimal) (*entity.Invoice, error)

	// ReversePaymentEffect is the exact inverse, called when a validated
	// payment is cancelled.
	ReversePaymentEffect(ctx context.Context, invoiceID int64, amount decimal.Decimal) (*entity.Invoice, error)

	// ApplyAdjustment lowers the effective total by inserting a
	// compensating negative line. Rejected once any payment has been
	// applied against the original total.
	ApplyAdjustment(ctx context.Context, invoiceID int64, label string, amount decimal.Decimal) (*entity.Invoice, error)

	// ExtendDueDate moves the due date forward, clearing the overdue
	// label. Called when a deadline extension waiver is approved.
	ExtendDueDate(ctx context.Context, invoiceID int64, newDueDate time.Time) (*entity.Invoice, error)

	GetInvoice(ctx context.Context, invoiceID int64) (*entity.Invoice, error)
	ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]*entity.Invoice, error)
}

type ledgerServiceImpl struct {
	invoiceRepo port.InvoiceRepository
	sequences   port.SequenceRepository
	students    port.StudentDirectory
	txManager   port.TransactionManager
	events      dispatcher.Dispatcher
	currency    string
	now         func() time.Time
	logger      Logger
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(
	invoiceRepo port.InvoiceRepository,
	sequences port.SequenceRepository,
	students port.StudentDirectory,
	txManager port.TransactionManager,
	events dispatcher.Dispatcher,
	currency string,
	logger Logger,
) LedgerService {
	return &ledgerServiceImpl{
		invoiceRepo: invoiceRepo,
		sequences:   sequences,
		students:    students,
		txManager:   txManager,
		events:      events,
		currency:    currency,
		now:         time.Now,
		logger:      logger,
	}
}

// FormatReference builds a reference such as INV-2026-000042. The numeric
// portion is fixed at six digits; the sequence repository refuses to hand
// out values that would not fit.
func FormatReference(docType string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%06d", docType, year, seq)
}

// CreateInvoice computes amount_total from the lines and opens the invoice
// in DRAFT with amount_paid zero.
func (s *ledgerServiceImpl) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*entity.Invoice, error) {
	if len(in.Lines) == 0 {
		return nil, fmt.Errorf("%w: invoice requires at least one line", entity.ErrValidation)
	}

	if _, err := s.students.GetStudent(ctx, in.StudentID); err != nil {
		return nil, fmt.Errorf("student %s: %w", in.StudentID, err)
	}

	currency := in.Currency
	if currency == "" {
		currency = s.currency
	}

	now := s.now()
	total := decimal.Zero
	lines := make([]entity.Line, 0, len(in.Lines))
	for _, li := range in.Lines {
		line := entity.Line{
			Description: li.Description,
			UnitAmount:  li.UnitAmount,
			Quantity:    li.Quantity,
			Discount:    li.Discount,
			TaxRate:     li.TaxRate,
			CreatedAt:   now,
		}
		line.Total = line.ComputeTotal()
		if !line.Total.IsPositive() {
			return nil, fmt.Errorf("%w: line %q has non-positive total %s",
				entity.ErrValidation, li.Description, line.Total)
		}
		total = total.Add(line.Total)
		lines = append(lines, line)
	}

	seq, err := s.sequences.Next(ctx, DocTypeInvoice, now.Year())
	if err != nil {
		return nil, fmt.Errorf("invoice reference: %w", err)
	}

	inv := &entity.Invoice{
		Reference: FormatReference(DocTypeInvoice, now.Year(), seq),
		StudentID: in.StudentID,
		IssueDate: now,
		DueDate:   in.DueDate,
		Currency:  currency,
		Total:     total,
		Paid:      decimal.Zero,
		Status:    entity.InvoiceStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.invoiceRepo.Create(txCtx, inv); err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		for idx := range lines {
			lines[idx].InvoiceID = inv.ID
			if err := s.invoiceRepo.AddLine(txCtx, &lines[idx]); err != nil {
				return fmt.Errorf("create line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	inv.Lines = lines
	s.logger.Info("Invoice created",
		"reference", inv.Reference,
		"student_id", inv.StudentID,
		"amount_total", inv.Total.String(),
	)
	return inv, nil
}

// Issue moves a DRAFT invoice to ISSUED and fires the issued event.
func (s *ledgerServiceImpl) Issue(ctx context.Context, invoiceID int64) (*entity.Invoice, error) {
	var inv *entity.Invoice
	err := s.withRetry(ctx, func(txCtx context.Context) error {
		var err error
		inv, err = s.invoiceRepo.GetByID(txCtx, invoiceID)
		if err != nil {
			return err
		}

		machine := workflow.NewInvoiceLifecycle().Build(workflow.State(inv.Status))
		if err := machine.Fire(txCtx, workflow.TriggerIssue); err != nil {
			return fmt.Errorf("%w: cannot issue invoice %s from %s",
				entity.ErrInvalidState, inv.Reference, inv.Status)
		}

		ok, err := s.invoiceRepo.UpdateStatus(txCtx, inv.ID, entity.InvoiceStatusIssued, inv.Version)
		if err != nil {
			return err
		}
		if !ok {
			return entity.ErrConcurrency
		}
		inv.Status = entity.InvoiceStatusIssued
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		s.events.DispatchAsync(context.WithoutCancel(ctx), event.NewEvent(
			event.TypeInvoiceIssued, inv.ID, inv.Reference,
			map[string]interface{}{
				"student_id":   inv.StudentID,
				"amount_total": inv.Total.String(),
				"due_date":     inv.DueDate.Format(time.RFC3339),
			},
		))
	}
	return inv, nil
}

// Cancel is allowed from any state except PAID (and not twice).
func (s *ledgerServiceImpl) Cancel(ctx context.Context, invoiceID int64) (*entity.Invoice, error) {
	var inv *entity.Invoice
	err := s.withRetry(ctx, func(txCtx context.Context) error {
		var err error
		inv, err = s.invoiceRepo.GetByID(txCtx, invoiceID)
		if err != nil {
			return err
		}

		machine := workflow.NewInvoiceLifecycle().Build(workflow.State(inv.Status))
		if err := machine.Fire(txCtx, workflow.TriggerCancel); err != nil {
			return fmt.Errorf("%w: cannot cancel invoice %s from %s",
				entity.ErrInvalidState, inv.Reference, inv.Status)
		}

		ok, err := s.invoiceRepo.UpdateStatus(txCtx, inv.ID, entity.InvoiceStatusCancelled, inv.Version)
		if err != nil {
			return err
		}
		if !ok {
			return entity.ErrConcurrency
		}
		inv.Status = entity.InvoiceStatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// ApplyPaymentEffect increments amount_paid by amount within one unit of
// work. The overpayment check and the write happen against the same read
// snapshot, guarded by the version column, so two concurrent payments
// cannot both squeeze past the remaining balance. Money never lands on a
// DRAFT or CANCELLED invoice: the status check runs against the same
// snapshot, closing the window where an invoice is cancelled between a
// payment's admission and its validation.
func (s *ledgerServiceImpl) ApplyPaymentEffect(ctx context.Context, invoiceID int64, amount decimal.Decimal) (*entity.Invoice, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: effect amount must be positive, got %s", entity.ErrValidation, amount)
	}

	var inv *entity.Invoice
	err := s.withRetry(ctx, func(txCtx context.Context) error {
		var err error
		inv, err = s.invoiceRepo.GetByID(txCtx, invoiceID)
		if err != nil {
			return err
		}

		if inv.Status == entity.InvoiceStatusCancelled || inv.Status == entity.InvoiceStatusDraft {
			return fmt.Errorf("%w: cannot apply a payment to invoice %s in status %s",
				entity.ErrInvalidState, inv.Reference, inv.Status)
		}

		newPaid := inv.Paid.Add(amount)
		if newPaid.GreaterThan(inv.Total) {
			return fmt.Errorf("%w: %s + %s exceeds total %s on invoice %s",
				entity.ErrOverpayment, inv.Paid, amount, inv.Total, inv.Reference)
		}

		inv.Paid = newPaid
		status := inv.DeriveStatus()

		ok, err := s.invoiceRepo.UpdateAmounts(txCtx, inv.ID, inv.Paid, inv.Total, status, inv.Version)
		if err != nil {
			return err
		}
		if !ok {
			return entity.ErrConcurrency
		}
		inv.Status = status
		inv.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// ReversePaymentEffect decrements amount_paid by amount, re-deriving the
// status the same way. A decrement below zero is an invariant violation.
// On a CANCELLED invoice the amounts still move, since money applied before
// the cancellation must remain refundable, but the terminal status is
// preserved: a reversal never resurrects a cancelled invoice.
func (s *ledgerServiceImpl) ReversePaymentEffect(ctx context.Context, invoiceID int64, amount decimal.Decimal) (*entity.Invoice, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: effect amount must be positive, got %s", entity.ErrValidation, amount)
	}

	var inv *entity.Invoice
	err := s.withRetry(ctx, func(txCtx context.Context) error {
		var err error
		inv, err = s.invoiceRepo.GetByID(txCtx, invoiceID)
		if err != nil {
			return err
		}

		newPaid := inv.Paid.Sub(amount)
		if newPaid.IsNegative() {
			return fmt.Errorf("%w: reversing %s would drive amount_paid %s negative on invoice %s",
				entity.ErrInvariant, amount, inv.Paid, inv.Reference)
		}

		inv.Paid = newPaid
		status := inv.DeriveStatus()
		if inv.Status == entity.InvoiceStatusCancelled {
			status = entity.InvoiceStatusCancelled
		}

		ok, err := s.invoiceRepo.UpdateAmounts(txCtx, inv.ID, inv.Paid, inv.Total, status, inv.Version)
		if err != nil {
			return err
		}
		if !ok {
			return entity.ErrConcurrency
		}
		inv.Status = status
		inv.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// ApplyAdjustment lowers amount_total by inserting a compensating negative
// line. Only legal while amount_paid is zero: once money has been applied
// against the original total, the precedence between "adjustment changes
// total" and "payments already applied" is undecidable, so the request is
// rejected and a new invoice (or payment cancellation) is required first.
func (s *ledgerServiceImpl) ApplyAdjustment(ctx context.Context, invoiceID int64, label string, amount decimal.Decimal) (*entity.Invoice, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: adjustment amount must be positive, got %s", entity.ErrValidation, amount)
	}

	var inv *entity.Invoice
	err := s.withRetry(ctx, func(txCtx context.Context) error {
		var err error
		inv, err = s.invoiceRepo.GetByID(txCtx, invoiceID)
		if err != nil {
			return err
		}

		if inv.Status.IsTerminal() || !inv.Paid.IsZero() {
			return fmt.Errorf("%w: adjustments require an open invoice with no applied payments (invoice %s, status %s, paid %s)",
				entity.ErrInvalidState, inv.Reference, inv.Status, inv.Paid)
		}

		// Cap the reduction so the total floors at zero.
		reduction := amount
		if reduction.GreaterThan(inv.Total) {
			reduction = inv.Total
		}

		line := &entity.Line{
			InvoiceID:   inv.ID,
			Description: label,
			UnitAmount:  reduction.Neg(),
			Quantity:    1,
			Total:       reduction.Neg(),
			Adjustment:  true,
			CreatedAt:   s.now(),
		}
		if err := s.invoiceRepo.AddLine(txCtx, line); err != nil {
			return fmt.Errorf("add adjustment line: %w", err)
		}

		inv.Total = inv.Total.Sub(reduction)
		status := inv.Status
		if status != entity.InvoiceStatusDraft {
			status = inv.DeriveStatus()
		}

		ok, err := s.invoiceRepo.UpdateAmounts(txCtx, inv.ID, inv.Paid, inv.Total, status, inv.Version)
		if err != nil {
			return err
		}
		if !ok {
			return entity.ErrConcurrency
		}
		inv.Status = status
		inv.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Adjustment applied",
		"invoice", inv.Reference,
		"label", label,
		"amount", amount.String(),
		"new_total", inv.Total.String(),
	)
	return inv, nil
}

// ExtendDueDate pushes an invoice's due date later. Overdue is derived from
// due_date on every read, so the extension clears the label and stops the
// reminder scanner without any status write. The new date must actually
// extend the current one; an earlier date is not a deadline extension.
func (s *ledgerServiceImpl) ExtendDueDate(ctx context.Context, invoiceID int64, newDueDate time.Time) (*entity.Invoice, error) {
	var inv *entity.Invoice
	err := s.withRetry(ctx, func(txCtx context.Context) error {
		var err error
		inv, err = s.invoiceRepo.GetByID(txCtx, invoiceID)
		if err != nil {
			return err
		}

		if inv.Status.IsTerminal() {
			return fmt.Errorf("%w: cannot extend due date of invoice %s in status %s",
				entity.ErrInvalidState, inv.Reference, inv.Status)
		}
		if !newDueDate.After(inv.DueDate) {
			return fmt.Errorf("%w: new due date %s does not extend current due date %s",
				entity.ErrValidation,
				newDueDate.Format(time.RFC3339), inv.DueDate.Format(time.RFC3339))
		}

		ok, err := s.invoiceRepo.UpdateDueDate(txCtx, inv.ID, newDueDate, inv.Version)
		if err != nil {
			return err
		}
		if !ok {
			return entity.ErrConcurrency
		}
		inv.DueDate = newDueDate
		inv.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Due date extended",
		"invoice", inv.Reference,
		"new_due_date", inv.DueDate.Format(time.RFC3339),
	)
	return inv, nil
}

// GetInvoice loads an invoice with its lines; the returned status is the
// effective one, so unpaid invoices past due read as OVERDUE.
func (s *ledgerServiceImpl) GetInvoice(ctx context.Context, invoiceID int64) (*entity.Invoice, error) {
	inv, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	lines, err := s.invoiceRepo.GetLines(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	inv.Status = inv.EffectiveStatus(s.now())
	return inv, nil
}

// ListOverdue returns invoices still owing money past their due date.
func (s *ledgerServiceImpl) ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]*entity.Invoice, error) {
	return s.invoiceRepo.ListOverdue(ctx, asOf, limit)
}

// withRetry runs fn in its own transaction, retrying a bounded number of
// times on version conflicts. Inside a surrounding transaction no retry is
// attempted: the conflict must abort the whole enclosing unit of work.
func (s *ledgerServiceImpl) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txManager.InTransaction(ctx) {
		return fn(ctx)
	}

	var err error
	for attempt := 0; attempt < maxEffectRetries; attempt++ {
		err = s.txManager.WithTransaction(ctx, fn)
		if !errors.Is(err, entity.ErrConcurrency) {
			return err
		}
		s.logger.Info("Retrying after version conflict", "attempt", attempt+1)
	}
	return err
}
