package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edusuite/school-billing/internal/domain/entity"
)

type mockPaymentRepo struct {
	createFunc       func(ctx context.Context, p *entity.Payment) error
	getByIDFunc      func(ctx context.Context, id int64) (*entity.Payment, error)
	updateStatusFunc func(ctx context.Context, id int64, from, to entity.PaymentStatus, validatedBy, cancelReason string, at time.Time) (bool, error)
}

func (m *mockPaymentRepo) Create(ctx context.Context, p *entity.Payment) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, p)
	}
	p.ID = 1
	return nil
}

func (m *mockPaymentRepo) GetByID(ctx context.Context, id int64) (*entity.Payment, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return &entity.Payment{
		ID:        id,
		Reference: "PAY-2026-000001",
		InvoiceID: 1,
		PayerID:   "PAYER-001",
		Amount:    decimal.NewFromInt(60000),
		Method:    entity.PaymentMethodTransfer,
		Status:    entity.PaymentStatusPending,
	}, nil
}

func (m *mockPaymentRepo) GetByReference(ctx context.Context, ref string) (*entity.Payment, error) {
	return nil, entity.ErrNotFound
}

func (m *mockPaymentRepo) UpdateStatus(ctx context.Context, id int64, from, to entity.PaymentStatus, validatedBy, cancelReason string, at time.Time) (bool, error) {
	if m.updateStatusFunc != nil {
		return m.updateStatusFunc(ctx, id, from, to, validatedBy, cancelReason, at)
	}
	return true, nil
}

func (m *mockPaymentRepo) ListByInvoice(ctx context.Context, invoiceID int64) ([]*entity.Payment, error) {
	return []*entity.Payment{}, nil
}

func (m *mockPaymentRepo) SumValidatedByInvoice(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (m *mockPaymentRepo) ListValidatedWithoutReceipt(ctx context.Context, limit int) ([]*entity.Payment, error) {
	return []*entity.Payment{}, nil
}

type mockPayerDirectory struct {
	getPayerFunc func(ctx context.Context, id string) (*entity.Payer, error)
}

func (m *mockPayerDirectory) GetPayer(ctx context.Context, id string) (*entity.Payer, error) {
	if m.getPayerFunc != nil {
		return m.getPayerFunc(ctx, id)
	}
	return &entity.Payer{ID: id, Name: "Mariam Diallo"}, nil
}

type mockLedgerService struct {
	applyFunc   func(ctx context.Context, invoiceID int64, amount decimal.Decimal) (*entity.Invoice, error)
	reverseFunc func(ctx context.Context, invoiceID int64, amount decimal.Decimal) (*entity.Invoice, error)
	extendFunc  func(ctx context.Context, invoiceID int64, newDueDate time.Time) (*entity.Invoice, error)
}

func (m *mockLedgerService) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*entity.Invoice, error) {
	return nil, errors.New("not implemented")
}

func (m *mockLedgerService) Issue(ctx context.Context, invoiceID int64) (*entity.Invoice, error) {
	return nil, errors.New("not implemented")
}

func (m *mockLedgerService) Cancel(ctx context.Context, invoiceID int64) (*entity.Invoice, error) {
	return nil, errors.New("not implemented")
}

func (m *mockLedgerService) ApplyPaymentEffect(ctx context.Context, invoiceID int64, amount decimal.Decimal) (*entity.Invoice, error) {
	if m.applyFunc != nil {
		return m.applyFunc(ctx, invoiceID, amount)
	}
	return &entity.Invoice{ID: invoiceID, Paid: amount, Status: entity.InvoiceStatusPartiallyPaid}, nil
}

func (m *mockLedgerService) ReversePaymentEffect(ctx context.Context, invoiceID int64, amount decimal.Decimal) (*entity.Invoice, error) {
	if m.reverseFunc != nil {
		return m.reverseFunc(ctx, invoiceID, amount)
	}
	return &entity.Invoice{ID: invoiceID, Paid: decimal.Zero, Status: entity.InvoiceStatusIssued}, nil
}

func (m *mockLedgerService) ApplyAdjustment(ctx context.Context, invoiceID int64, label string, amount decimal.Decimal) (*entity.Invoice, error) {
	return nil, errors.New("not implemented")
}

func (m *mockLedgerService) ExtendDueDate(ctx context.Context, invoiceID int64, newDueDate time.Time) (*entity.Invoice, error) {
	if m.extendFunc != nil {
		return m.extendFunc(ctx, invoiceID, newDueDate)
	}
	return nil, errors.New("not implemented")
}

func (m *mockLedgerService) GetInvoice(ctx context.Context, invoiceID int64) (*entity.Invoice, error) {
	return nil, errors.New("not implemented")
}

func (m *mockLedgerService) ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]*entity.Invoice, error) {
	return []*entity.Invoice{}, nil
}

func newTestPaymentService(paymentRepo *mockPaymentRepo, invoiceRepo *mockInvoiceRepo, ledger *mockLedgerService) PaymentService {
	return NewPaymentService(paymentRepo, invoiceRepo, ledger, nil,
		&mockSequenceRepo{}, &mockPayerDirectory{}, &mockTxManager{}, nil, &mockLogger{})
}

func TestPaymentService_RecordPayment(t *testing.T) {
	issuedInvoice := func(total, paid int64) func(ctx context.Context, id int64) (*entity.Invoice, error) {
		return func(ctx context.Context, id int64) (*entity.Invoice, error) {
			status := entity.InvoiceStatusIssued
			if paid > 0 {
				status = entity.InvoiceStatusPartiallyPaid
			}
			return &entity.Invoice{ID: id, Reference: "INV-2026-000001",
				Total: decimal.NewFromInt(total), Paid: decimal.NewFromInt(paid),
				Status: status, Version: 1}, nil
		}
	}

	tests := []struct {
		name    string
		input   RecordPaymentInput
		invoice func(ctx context.Context, id int64) (*entity.Invoice, error)
		wantErr error
	}{
		{
			name: "records pending payment",
			input: RecordPaymentInput{InvoiceID: 1, PayerID: "PAYER-001",
				Amount: decimal.NewFromInt(60000), Method: entity.PaymentMethodCash},
			invoice: issuedInvoice(100000, 0),
		},
		{
			name: "accepts payment on partially paid invoice",
			input: RecordPaymentInput{InvoiceID: 1, PayerID: "PAYER-001",
				Amount: decimal.NewFromInt(40000), Method: entity.PaymentMethodMobileMoney},
			invoice: issuedInvoice(100000, 60000),
		},
		{
			name: "rejects non-positive amount",
			input: RecordPaymentInput{InvoiceID: 1, PayerID: "PAYER-001",
				Amount: decimal.Zero, Method: entity.PaymentMethodCash},
			invoice: issuedInvoice(100000, 0),
			wantErr: entity.ErrValidation,
		},
		{
			name: "rejects unknown method",
			input: RecordPaymentInput{InvoiceID: 1, PayerID: "PAYER-001",
				Amount: decimal.NewFromInt(1000), Method: "BARTER"},
			invoice: issuedInvoice(100000, 0),
			wantErr: entity.ErrValidation,
		},
		{
			name: "rejects payment on draft invoice",
			input: RecordPaymentInput{InvoiceID: 1, PayerID: "PAYER-001",
				Amount: decimal.NewFromInt(1000), Method: entity.PaymentMethodCash},
			invoice: func(ctx context.Context, id int64) (*entity.Invoice, error) {
				return &entity.Invoice{ID: id, Reference: "INV-2026-000001",
					Total: decimal.NewFromInt(100000), Status: entity.InvoiceStatusDraft}, nil
			},
			wantErr: entity.ErrInvalidState,
		},
		{
			name: "rejects amount above remaining balance",
			input: RecordPaymentInput{InvoiceID: 1, PayerID: "PAYER-001",
				Amount: decimal.NewFromInt(40001), Method: entity.PaymentMethodCash},
			invoice: issuedInvoice(100000, 60000),
			wantErr: entity.ErrOverpayment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newTestPaymentService(&mockPaymentRepo{},
				&mockInvoiceRepo{getByIDFunc: tt.invoice}, &mockLedgerService{})

			p, err := service.RecordPayment(context.Background(), tt.input)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("RecordPayment() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("RecordPayment() error = %v", err)
			}
			if p.Status != entity.PaymentStatusPending {
				t.Errorf("RecordPayment() status = %s, want PENDING", p.Status)
			}
			if p.Reference == "" {
				t.Error("RecordPayment() did not assign a reference")
			}
		})
	}
}

func TestPaymentService_Validate(t *testing.T) {
	t.Run("applies ledger effect and stamps validator", func(t *testing.T) {
		var appliedAmount decimal.Decimal
		var writtenBy string
		ledger := &mockLedgerService{
			applyFunc: func(ctx context.Context, invoiceID int64, amount decimal.Decimal) (*entity.Invoice, error) {
				appliedAmount = amount
				return &entity.Invoice{ID: invoiceID, Paid: amount, Status: entity.InvoiceStatusPartiallyPaid}, nil
			},
		}
		repo := &mockPaymentRepo{
			updateStatusFunc: func(ctx context.Context, id int64, from, to entity.PaymentStatus, validatedBy, cancelReason string, at time.Time) (bool, error) {
				if from != entity.PaymentStatusPending || to != entity.PaymentStatusValidated {
					t.Errorf("UpdateStatus() from = %s to = %s", from, to)
				}
				writtenBy = validatedBy
				return true, nil
			},
		}

		p, err := newTestPaymentService(repo, &mockInvoiceRepo{}, ledger).Validate(context.Background(), 1, "bursar-01")
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if p.Status != entity.PaymentStatusValidated {
			t.Errorf("Validate() status = %s, want VALIDATED", p.Status)
		}
		if !appliedAmount.Equal(decimal.NewFromInt(60000)) {
			t.Errorf("Validate() applied amount = %s, want 60000", appliedAmount)
		}
		if writtenBy != "bursar-01" || p.ValidatedBy != "bursar-01" {
			t.Errorf("Validate() validated_by = %q / %q, want bursar-01", writtenBy, p.ValidatedBy)
		}
		if p.ValidatedAt == nil {
			t.Error("Validate() did not stamp validated_at")
		}
	})

	t.Run("ledger rejection aborts validation", func(t *testing.T) {
		ledger := &mockLedgerService{
			applyFunc: func(ctx context.Context, invoiceID int64, amount decimal.Decimal) (*entity.Invoice, error) {
				return nil, entity.ErrOverpayment
			},
		}
		statusWritten := false
		repo := &mockPaymentRepo{
			updateStatusFunc: func(ctx context.Context, id int64, from, to entity.PaymentStatus, validatedBy, cancelReason string, at time.Time) (bool, error) {
				statusWritten = true
				return true, nil
			},
		}

		_, err := newTestPaymentService(repo, &mockInvoiceRepo{}, ledger).Validate(context.Background(), 1, "bursar-01")
		if !errors.Is(err, entity.ErrOverpayment) {
			t.Errorf("Validate() error = %v, want ErrOverpayment", err)
		}
		if statusWritten {
			t.Error("Validate() wrote payment status despite ledger rejection")
		}
	})

	t.Run("cannot validate a cancelled payment", func(t *testing.T) {
		repo := &mockPaymentRepo{
			getByIDFunc: func(ctx context.Context, id int64) (*entity.Payment, error) {
				return &entity.Payment{ID: id, Reference: "PAY-2026-000001",
					InvoiceID: 1, Amount: decimal.NewFromInt(1000),
					Status: entity.PaymentStatusCancelled}, nil
			},
		}

		_, err := newTestPaymentService(repo, &mockInvoiceRepo{}, &mockLedgerService{}).Validate(context.Background(), 1, "bursar-01")
		if !errors.Is(err, entity.ErrInvalidState) {
			t.Errorf("Validate() error = %v, want ErrInvalidState", err)
		}
	})

	t.Run("lost status race surfaces concurrency error", func(t *testing.T) {
		attempts := 0
		repo := &mockPaymentRepo{
			updateStatusFunc: func(ctx context.Context, id int64, from, to entity.PaymentStatus, validatedBy, cancelReason string, at time.Time) (bool, error) {
				attempts++
				return false, nil
			},
		}

		_, err := newTestPaymentService(repo, &mockInvoiceRepo{}, &mockLedgerService{}).Validate(context.Background(), 1, "bursar-01")
		if !errors.Is(err, entity.ErrConcurrency) {
			t.Errorf("Validate() error = %v, want ErrConcurrency", err)
		}
		if attempts != maxEffectRetries {
			t.Errorf("expected %d attempts, got %d", maxEffectRetries, attempts)
		}
	})
}

func TestPaymentService_Cancel(t *testing.T) {
	t.Run("cancelling validated payment reverses ledger first", func(t *testing.T) {
		reversed := false
		ledger := &mockLedgerService{
			reverseFunc: func(ctx context.Context, invoiceID int64, amount decimal.Decimal) (*entity.Invoice, error) {
				reversed = true
				if !amount.Equal(decimal.NewFromInt(60000)) {
					t.Errorf("ReversePaymentEffect() amount = %s, want 60000", amount)
				}
				return &entity.Invoice{ID: invoiceID, Status: entity.InvoiceStatusIssued}, nil
			},
		}
		repo := &mockPaymentRepo{
			getByIDFunc: func(ctx context.Context, id int64) (*entity.Payment, error) {
				return &entity.Payment{ID: id, Reference: "PAY-2026-000001",
					InvoiceID: 1, Amount: decimal.NewFromInt(60000),
					Status: entity.PaymentStatusValidated}, nil
			},
		}

		p, err := newTestPaymentService(repo, &mockInvoiceRepo{}, ledger).Cancel(context.Background(), 1, "duplicate entry")
		if err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}
		if !reversed {
			t.Error("Cancel() did not reverse the ledger effect")
		}
		if p.Status != entity.PaymentStatusCancelled {
			t.Errorf("Cancel() status = %s, want CANCELLED", p.Status)
		}
		if p.CancelReason != "duplicate entry" {
			t.Errorf("Cancel() reason = %q", p.CancelReason)
		}
	})

	t.Run("cancelling pending payment skips the ledger", func(t *testing.T) {
		ledger := &mockLedgerService{
			reverseFunc: func(ctx context.Context, invoiceID int64, amount decimal.Decimal) (*entity.Invoice, error) {
				t.Error("ReversePaymentEffect() called for a pending payment")
				return nil, errors.New("unexpected")
			},
		}

		p, err := newTestPaymentService(&mockPaymentRepo{}, &mockInvoiceRepo{}, ledger).Cancel(context.Background(), 1, "payer withdrew")
		if err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}
		if p.Status != entity.PaymentStatusCancelled {
			t.Errorf("Cancel() status = %s, want CANCELLED", p.Status)
		}
	})

	t.Run("cannot cancel twice", func(t *testing.T) {
		repo := &mockPaymentRepo{
			getByIDFunc: func(ctx context.Context, id int64) (*entity.Payment, error) {
				return &entity.Payment{ID: id, Reference: "PAY-2026-000001",
					InvoiceID: 1, Amount: decimal.NewFromInt(1000),
					Status: entity.PaymentStatusCancelled}, nil
			},
		}

		_, err := newTestPaymentService(repo, &mockInvoiceRepo{}, &mockLedgerService{}).Cancel(context.Background(), 1, "again")
		if !errors.Is(err, entity.ErrInvalidState) {
			t.Errorf("Cancel() error = %v, want ErrInvalidState", err)
		}
	})
}
