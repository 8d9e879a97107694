package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edusuite/school-billing/internal/application/port"
	"github.com/edusuite/school-billing/internal/domain/entity"
)

// ReceiptService emits the immutable proof-of-payment record once a
// payment is validated. Re-issuing is forbidden; a duplicate request is a
// read of the existing receipt.
type ReceiptService interface {
	// Issue creates the 1:1 receipt for a VALIDATED payment that does not
	// already have one.
	Issue(ctx context.Context, paymentID int64, issuedBy string) (*entity.Receipt, error)

	// Get returns the existing receipt for a payment.
	Get(ctx context.Context, paymentID int64) (*entity.Receipt, error)

	// Download renders the receipt as a downloadable artifact.
	Download(ctx context.Context, paymentID int64) ([]byte, string, error)
}

type receiptServiceImpl struct {
	receiptRepo port.ReceiptRepository
	paymentRepo port.PaymentRepository
	invoiceRepo port.InvoiceRepository
	sequences   port.SequenceRepository
	students    port.StudentDirectory
	payers      port.PayerDirectory
	renderer    port.ReceiptRenderer
	txManager   port.TransactionManager
	now         func() time.Time
	logger      Logger
}

// NewReceiptService creates a new ReceiptService
func NewReceiptService(
	receiptRepo port.ReceiptRepository,
	paymentRepo port.PaymentRepository,
	invoiceRepo port.InvoiceRepository,
	sequences port.SequenceRepository,
	students port.StudentDirectory,
	payers port.PayerDirectory,
	renderer port.ReceiptRenderer,
	txManager port.TransactionManager,
	logger Logger,
) ReceiptService {
	return &receiptServiceImpl{
		receiptRepo: receiptRepo,
		paymentRepo: paymentRepo,
		invoiceRepo: invoiceRepo,
		sequences:   sequences,
		students:    students,
		payers:      payers,
		renderer:    renderer,
		txManager:   txManager,
		now:         time.Now,
		logger:      logger,
	}
}

// Issue emits the receipt for a validated payment.
func (s *receiptServiceImpl) Issue(ctx context.Context, paymentID int64, issuedBy string) (*entity.Receipt, error) {
	p, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != entity.PaymentStatusValidated {
		return nil, fmt.Errorf("%w: receipt requires a validated payment, %s is %s",
			entity.ErrInvalidState, p.Reference, p.Status)
	}

	if existing, err := s.receiptRepo.GetByPaymentID(ctx, paymentID); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: payment %s already has receipt %s",
			entity.ErrInvalidState, p.Reference, existing.Reference)
	} else if err != nil && !errors.Is(err, entity.ErrNotFound) {
		return nil, err
	}

	inv, err := s.invoiceRepo.GetByID(ctx, p.InvoiceID)
	if err != nil {
		return nil, err
	}

	payerName := p.PayerID
	if payer, err := s.payers.GetPayer(ctx, p.PayerID); err == nil {
		payerName = payer.Name
	}
	studentName := inv.StudentID
	if student, err := s.students.GetStudent(ctx, inv.StudentID); err == nil {
		studentName = student.Name
	}

	now := s.now()
	seq, err := s.sequences.Next(ctx, DocTypeReceipt, now.Year())
	if err != nil {
		return nil, fmt.Errorf("receipt reference: %w", err)
	}

	r := &entity.Receipt{
		Reference:         FormatReference(DocTypeReceipt, now.Year(), seq),
		PaymentID:         p.ID,
		PaymentReference:  p.Reference,
		InvoiceReference:  inv.Reference,
		Amount:            p.Amount,
		Currency:          inv.Currency,
		PayerID:           p.PayerID,
		PayerName:         payerName,
		StudentName:       studentName,
		IssuedBy:          issuedBy,
		IssuedAt:          now,
		VerificationToken: uuid.NewString(),
	}
	r.Checksum = r.ComputeChecksum()

	if err := s.receiptRepo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create receipt: %w", err)
	}

	s.logger.Info("Receipt issued",
		"reference", r.Reference,
		"payment", p.Reference,
		"amount", r.Amount.String(),
	)
	return r, nil
}

// Get returns the existing receipt for a payment.
func (s *receiptServiceImpl) Get(ctx context.Context, paymentID int64) (*entity.Receipt, error) {
	return s.receiptRepo.GetByPaymentID(ctx, paymentID)
}

// Download renders the stored receipt; the artifact is produced from the
// immutable row, so repeated downloads are byte-stable apart from the
// rendering library's own metadata.
func (s *receiptServiceImpl) Download(ctx context.Context, paymentID int64) ([]byte, string, error) {
	r, err := s.receiptRepo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, "", err
	}

	data, err := s.renderer.Render(r)
	if err != nil {
		return nil, "", fmt.Errorf("render receipt %s: %w", r.Reference, err)
	}

	filename := fmt.Sprintf("%s.xlsx", r.Reference)
	return data, filename, nil
}
