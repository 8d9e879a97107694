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

// RecordPaymentInput carries everything needed to admit a payment in PENDING.
type RecordPaymentInput struct {
	InvoiceID int64
	PayerID   string
	Amount    decimal.Decimal
	Method    entity.PaymentMethod
}

// PaymentService validates, applies and reverses payments against the
// ledger. Validate and Cancel acting through the ledger's two effect
// methods are the only paths that change amount_paid.
type PaymentService interface {
	// RecordPayment admits a payment in PENDING. The ledger is not touched.
	RecordPayment(ctx context.Context, in RecordPaymentInput) (*entity.Payment, error)

	// Validate moves a PENDING payment to VALIDATED and applies its effect
	// to the ledger in the same unit of work. Receipt issuance and the
	// payment-received notification follow the commit and can never undo it.
	Validate(ctx context.Context, paymentID int64, validator string) (*entity.Payment, error)

	// Cancel cancels a payment. Cancelling a PENDING payment is a no-op on
	// the ledger; cancelling a VALIDATED one reverses its effect first.
	Cancel(ctx context.Context, paymentID int64, reason string) (*entity.Payment, error)

	GetPayment(ctx context.Context, paymentID int64) (*entity.Payment, error)
	ListForInvoice(ctx context.Context, invoiceID int64) ([]*entity.Payment, error)
}

type paymentServiceImpl struct {
	paymentRepo port.PaymentRepository
	invoiceRepo port.InvoiceRepository
	ledger      LedgerService
	receipts    ReceiptService
	sequences   port.SequenceRepository
	payers      port.PayerDirectory
	txManager   port.TransactionManager
	events      dispatcher.Dispatcher
	now         func() time.Time
	logger      Logger
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	paymentRepo port.PaymentRepository,
	invoiceRepo port.InvoiceRepository,
	ledger LedgerService,
	receipts ReceiptService,
	sequences port.SequenceRepository,
	payers port.PayerDirectory,
	txManager port.TransactionManager,
	events dispatcher.Dispatcher,
	logger Logger,
) PaymentService {
	return &paymentServiceImpl{
		paymentRepo: paymentRepo,
		invoiceRepo: invoiceRepo,
		ledger:      ledger,
		receipts:    receipts,
		sequences:   sequences,
		payers:      payers,
		txManager:   txManager,
		events:      events,
		now:         time.Now,
		logger:      logger,
	}
}

// RecordPayment admits a payment against an invoice. The admission check
// against the remaining balance is advisory; the authoritative check runs
// again inside the validation transaction.
func (s *paymentServiceImpl) RecordPayment(ctx context.Context, in RecordPaymentInput) (*entity.Payment, error) {
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive, got %s", entity.ErrValidation, in.Amount)
	}
	if _, err := entity.ParsePaymentMethod(in.Method.String()); err != nil {
		return nil, err
	}
	if _, err := s.payers.GetPayer(ctx, in.PayerID); err != nil {
		return nil, fmt.Errorf("payer %s: %w", in.PayerID, err)
	}

	inv, err := s.invoiceRepo.GetByID(ctx, in.InvoiceID)
	if err != nil {
		return nil, err
	}

	switch inv.Status {
	case entity.InvoiceStatusIssued, entity.InvoiceStatusPartiallyPaid:
		// accepts payments
	default:
		return nil, fmt.Errorf("%w: invoice %s does not accept payments in status %s",
			entity.ErrInvalidState, inv.Reference, inv.Status)
	}

	if in.Amount.GreaterThan(inv.Remaining()) {
		return nil, fmt.Errorf("%w: %s exceeds remaining %s on invoice %s",
			entity.ErrOverpayment, in.Amount, inv.Remaining(), inv.Reference)
	}

	now := s.now()
	seq, err := s.sequences.Next(ctx, DocTypePayment, now.Year())
	if err != nil {
		return nil, fmt.Errorf("payment reference: %w", err)
	}

	p := &entity.Payment{
		Reference: FormatReference(DocTypePayment, now.Year(), seq),
		InvoiceID: inv.ID,
		PayerID:   in.PayerID,
		Amount:    in.Amount,
		Method:    in.Method,
		Status:    entity.PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.paymentRepo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	s.logger.Info("Payment recorded",
		"reference", p.Reference,
		"invoice_id", p.InvoiceID,
		"amount", p.Amount.String(),
		"method", p.Method.String(),
	)
	return p, nil
}

// Validate applies the payment to the ledger and stamps the validator, all
// in one transaction. If the ledger rejects the effect, nothing of the
// validation survives.
func (s *paymentServiceImpl) Validate(ctx context.Context, paymentID int64, validator string) (*entity.Payment, error) {
	var p *entity.Payment

	unit := func(txCtx context.Context) error {
		var err error
		p, err = s.paymentRepo.GetByID(txCtx, paymentID)
		if err != nil {
			return err
		}

		machine := workflow.NewPaymentLifecycle().Build(workflow.State(p.Status))
		if err := machine.Fire(txCtx, workflow.TriggerValidate); err != nil {
			return fmt.Errorf("%w: cannot validate payment %s from %s",
				entity.ErrInvalidState, p.Reference, p.Status)
		}

		if _, err := s.ledger.ApplyPaymentEffect(txCtx, p.InvoiceID, p.Amount); err != nil {
			return err
		}

		now := s.now()
		ok, err := s.paymentRepo.UpdateStatus(txCtx, p.ID,
			entity.PaymentStatusPending, entity.PaymentStatusValidated, validator, "", now)
		if err != nil {
			return err
		}
		if !ok {
			return entity.ErrConcurrency
		}
		p.Status = entity.PaymentStatusValidated
		p.ValidatedBy = validator
		p.ValidatedAt = &now
		return nil
	}

	if err := s.runUnit(ctx, unit); err != nil {
		return nil, err
	}

	// Side effects after commit: both are logged-and-retried concerns, never
	// part of the financial transaction.
	s.issueReceipt(ctx, p)
	s.notifyReceived(ctx, p)

	s.logger.Info("Payment validated",
		"reference", p.Reference,
		"invoice_id", p.InvoiceID,
		"amount", p.Amount.String(),
		"validated_by", validator,
	)
	return p, nil
}

// Cancel records the reason and, for validated payments, exactly undoes the
// ledger effect so amounts return to their pre-validation values.
func (s *paymentServiceImpl) Cancel(ctx context.Context, paymentID int64, reason string) (*entity.Payment, error) {
	var p *entity.Payment

	unit := func(txCtx context.Context) error {
		var err error
		p, err = s.paymentRepo.GetByID(txCtx, paymentID)
		if err != nil {
			return err
		}

		machine := workflow.NewPaymentLifecycle().Build(workflow.State(p.Status))
		if err := machine.Fire(txCtx, workflow.TriggerCancelPayment); err != nil {
			return fmt.Errorf("%w: cannot cancel payment %s from %s",
				entity.ErrInvalidState, p.Reference, p.Status)
		}

		from := p.Status
		if from == entity.PaymentStatusValidated {
			if _, err := s.ledger.ReversePaymentEffect(txCtx, p.InvoiceID, p.Amount); err != nil {
				return err
			}
		}

		now := s.now()
		ok, err := s.paymentRepo.UpdateStatus(txCtx, p.ID,
			from, entity.PaymentStatusCancelled, "", reason, now)
		if err != nil {
			return err
		}
		if !ok {
			return entity.ErrConcurrency
		}
		p.Status = entity.PaymentStatusCancelled
		p.CancelReason = reason
		p.CancelledAt = &now
		return nil
	}

	if err := s.runUnit(ctx, unit); err != nil {
		return nil, err
	}

	s.logger.Info("Payment cancelled",
		"reference", p.Reference,
		"invoice_id", p.InvoiceID,
		"reason", reason,
	)
	return p, nil
}

// GetPayment retrieves a payment by ID
func (s *paymentServiceImpl) GetPayment(ctx context.Context, paymentID int64) (*entity.Payment, error) {
	return s.paymentRepo.GetByID(ctx, paymentID)
}

// ListForInvoice returns all payments recorded against an invoice
func (s *paymentServiceImpl) ListForInvoice(ctx context.Context, invoiceID int64) ([]*entity.Payment, error) {
	return s.paymentRepo.ListByInvoice(ctx, invoiceID)
}

// runUnit executes the unit of work in one transaction with bounded retry
// on version conflicts.
func (s *paymentServiceImpl) runUnit(ctx context.Context, unit func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < maxEffectRetries; attempt++ {
		err = s.txManager.WithTransaction(ctx, unit)
		if !errors.Is(err, entity.ErrConcurrency) {
			return err
		}
		s.logger.Info("Retrying payment unit after conflict", "attempt", attempt+1)
	}
	return err
}

func (s *paymentServiceImpl) issueReceipt(ctx context.Context, p *entity.Payment) {
	if s.receipts == nil {
		return
	}
	if _, err := s.receipts.Issue(context.WithoutCancel(ctx), p.ID, p.ValidatedBy); err != nil {
		// The backfill worker picks up validated payments without receipts.
		s.logger.Error("Receipt issuance failed, deferred to backfill",
			"payment", p.Reference, "error", err)
	}
}

func (s *paymentServiceImpl) notifyReceived(ctx context.Context, p *entity.Payment) {
	if s.events == nil {
		return
	}
	s.events.DispatchAsync(context.WithoutCancel(ctx), event.NewEvent(
		event.TypePaymentReceived, p.InvoiceID, "",
		map[string]interface{}{
			"payment_reference": p.Reference,
			"payer_id":          p.PayerID,
			"amount":            p.Amount.String(),
			"method":            p.Method.String(),
		},
	))
}
