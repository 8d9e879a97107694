package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edusuite/school-billing/internal/domain/entity"
)

type mockWaiverRepo struct {
	createFunc             func(ctx context.Context, w *entity.Waiver) error
	getByIDFunc            func(ctx context.Context, id int64) (*entity.Waiver, error)
	updateDecisionFunc     func(ctx context.Context, w *entity.Waiver) (bool, error)
	listPendingExpiredFunc func(ctx context.Context, asOf time.Time, limit int) ([]*entity.Waiver, error)
}

func (m *mockWaiverRepo) Create(ctx context.Context, w *entity.Waiver) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, w)
	}
	w.ID = 1
	return nil
}

func (m *mockWaiverRepo) GetByID(ctx context.Context, id int64) (*entity.Waiver, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return &entity.Waiver{
		ID:              id,
		InvoiceID:       1,
		StudentID:       "STU-001",
		Kind:            entity.WaiverKindReduction,
		Reason:          "family hardship",
		RequestedAmount: decimal.NewFromInt(20000),
		Status:          entity.WaiverStatusPending,
		ExpiresAt:       time.Now().AddDate(0, 1, 0),
	}, nil
}

func (m *mockWaiverRepo) UpdateDecision(ctx context.Context, w *entity.Waiver) (bool, error) {
	if m.updateDecisionFunc != nil {
		return m.updateDecisionFunc(ctx, w)
	}
	return true, nil
}

func (m *mockWaiverRepo) ListPendingExpired(ctx context.Context, asOf time.Time, limit int) ([]*entity.Waiver, error) {
	if m.listPendingExpiredFunc != nil {
		return m.listPendingExpiredFunc(ctx, asOf, limit)
	}
	return []*entity.Waiver{}, nil
}

func (m *mockWaiverRepo) ListByInvoice(ctx context.Context, invoiceID int64) ([]*entity.Waiver, error) {
	return []*entity.Waiver{}, nil
}

type mockDiscountRepo struct {
	getByIDsFunc func(ctx context.Context, ids []int64) ([]*entity.Discount, error)
}

func (m *mockDiscountRepo) Create(ctx context.Context, d *entity.Discount) error {
	d.ID = 1
	return nil
}

func (m *mockDiscountRepo) GetByID(ctx context.Context, id int64) (*entity.Discount, error) {
	return nil, entity.ErrNotFound
}

func (m *mockDiscountRepo) GetByIDs(ctx context.Context, ids []int64) ([]*entity.Discount, error) {
	if m.getByIDsFunc != nil {
		return m.getByIDsFunc(ctx, ids)
	}
	return []*entity.Discount{}, nil
}

func (m *mockDiscountRepo) ListActive(ctx context.Context, on time.Time) ([]*entity.Discount, error) {
	return []*entity.Discount{}, nil
}

type mockScholarshipRepo struct {
	createFunc  func(ctx context.Context, s *entity.Scholarship) error
	getByIDFunc func(ctx context.Context, id int64) (*entity.Scholarship, error)
}

func (m *mockScholarshipRepo) Create(ctx context.Context, s *entity.Scholarship) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, s)
	}
	s.ID = 1
	return nil
}

func (m *mockScholarshipRepo) GetByID(ctx context.Context, id int64) (*entity.Scholarship, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return &entity.Scholarship{ID: id, StudentID: "STU-001",
		Label: "Merit award", Percentage: decimal.NewFromInt(50),
		Status: entity.ScholarshipStatusActive}, nil
}

func (m *mockScholarshipRepo) UpdateStatus(ctx context.Context, id int64, status entity.ScholarshipStatus) error {
	return nil
}

func (m *mockScholarshipRepo) ListByStudent(ctx context.Context, studentID string) ([]*entity.Scholarship, error) {
	return []*entity.Scholarship{}, nil
}

func newTestAdjustmentService(waiverRepo *mockWaiverRepo, discountRepo *mockDiscountRepo,
	scholarshipRepo *mockScholarshipRepo, invoiceRepo *mockInvoiceRepo, ledger *mockLedgerService) AdjustmentService {
	return NewAdjustmentService(waiverRepo, discountRepo, scholarshipRepo, invoiceRepo,
		ledger, &mockTxManager{}, nil, &mockLogger{})
}

func TestAdjustmentService_FileWaiver(t *testing.T) {
	tests := []struct {
		name    string
		input   FileWaiverInput
		invoice func(ctx context.Context, id int64) (*entity.Invoice, error)
		wantErr error
	}{
		{
			name: "files a reduction waiver",
			input: FileWaiverInput{InvoiceID: 1, Kind: entity.WaiverKindReduction,
				Reason: "family hardship", RequestedAmount: decimal.NewFromInt(20000)},
		},
		{
			name: "deadline extension needs no amount",
			input: FileWaiverInput{InvoiceID: 1, Kind: entity.WaiverKindDeadlineExtension,
				Reason: "salary delay"},
		},
		{
			name: "reduction without amount rejected",
			input: FileWaiverInput{InvoiceID: 1, Kind: entity.WaiverKindReduction,
				Reason: "family hardship"},
			wantErr: entity.ErrValidation,
		},
		{
			name: "unknown kind rejected",
			input: FileWaiverInput{InvoiceID: 1, Kind: "AMNESTY",
				RequestedAmount: decimal.NewFromInt(1000)},
			wantErr: entity.ErrValidation,
		},
		{
			name: "cannot file against cancelled invoice",
			input: FileWaiverInput{InvoiceID: 1, Kind: entity.WaiverKindReduction,
				RequestedAmount: decimal.NewFromInt(1000)},
			invoice: func(ctx context.Context, id int64) (*entity.Invoice, error) {
				return &entity.Invoice{ID: id, Reference: "INV-2026-000001",
					Status: entity.InvoiceStatusCancelled}, nil
			},
			wantErr: entity.ErrInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newTestAdjustmentService(&mockWaiverRepo{}, &mockDiscountRepo{},
				&mockScholarshipRepo{}, &mockInvoiceRepo{getByIDFunc: tt.invoice}, &mockLedgerService{})

			w, err := service.FileWaiver(context.Background(), tt.input)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("FileWaiver() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FileWaiver() error = %v", err)
			}
			if w.Status != entity.WaiverStatusPending {
				t.Errorf("FileWaiver() status = %s, want PENDING", w.Status)
			}
			if w.ExpiresAt.IsZero() {
				t.Error("FileWaiver() did not default the expiry")
			}
		})
	}
}

func TestAdjustmentService_DecideWaiver(t *testing.T) {
	t.Run("approval feeds granted amount into the ledger", func(t *testing.T) {
		var adjusted decimal.Decimal
		ledger := &mockLedgerService{}
		ledgerAdjust := func(ctx context.Context, invoiceID int64, label string, amount decimal.Decimal) (*entity.Invoice, error) {
			adjusted = amount
			return &entity.Invoice{ID: invoiceID}, nil
		}
		service := NewAdjustmentService(&mockWaiverRepo{}, &mockDiscountRepo{},
			&mockScholarshipRepo{}, &mockInvoiceRepo{},
			&adjustingLedger{mockLedgerService: ledger, adjustFunc: ledgerAdjust},
			&mockTxManager{}, nil, &mockLogger{})

		w, err := service.DecideWaiver(context.Background(), 1, WaiverDecision{
			Approve: true, GrantedAmount: decimal.NewFromInt(15000), DecidedBy: "principal"})
		if err != nil {
			t.Fatalf("DecideWaiver() error = %v", err)
		}
		if w.Status != entity.WaiverStatusApproved {
			t.Errorf("DecideWaiver() status = %s, want APPROVED", w.Status)
		}
		if !adjusted.Equal(decimal.NewFromInt(15000)) {
			t.Errorf("DecideWaiver() adjusted = %s, want 15000", adjusted)
		}
		if !w.GrantedAmount.Equal(decimal.NewFromInt(15000)) {
			t.Errorf("DecideWaiver() granted = %s, want 15000", w.GrantedAmount)
		}
	})

	t.Run("zero granted amount defaults to requested", func(t *testing.T) {
		var adjusted decimal.Decimal
		service := NewAdjustmentService(&mockWaiverRepo{}, &mockDiscountRepo{},
			&mockScholarshipRepo{}, &mockInvoiceRepo{},
			&adjustingLedger{mockLedgerService: &mockLedgerService{},
				adjustFunc: func(ctx context.Context, invoiceID int64, label string, amount decimal.Decimal) (*entity.Invoice, error) {
					adjusted = amount
					return &entity.Invoice{ID: invoiceID}, nil
				}},
			&mockTxManager{}, nil, &mockLogger{})

		w, err := service.DecideWaiver(context.Background(), 1, WaiverDecision{
			Approve: true, DecidedBy: "principal"})
		if err != nil {
			t.Fatalf("DecideWaiver() error = %v", err)
		}
		if !adjusted.Equal(decimal.NewFromInt(20000)) || !w.GrantedAmount.Equal(decimal.NewFromInt(20000)) {
			t.Errorf("DecideWaiver() adjusted = %s, granted = %s, want requested 20000", adjusted, w.GrantedAmount)
		}
	})

	t.Run("approved deadline extension moves the invoice due date", func(t *testing.T) {
		newDue := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
		waiverRepo := &mockWaiverRepo{
			getByIDFunc: func(ctx context.Context, id int64) (*entity.Waiver, error) {
				return &entity.Waiver{ID: id, InvoiceID: 1, StudentID: "STU-001",
					Kind: entity.WaiverKindDeadlineExtension, Reason: "family hardship",
					NewDueDate: &newDue, Status: entity.WaiverStatusPending}, nil
			},
		}
		var extended time.Time
		ledger := &mockLedgerService{
			extendFunc: func(ctx context.Context, invoiceID int64, d time.Time) (*entity.Invoice, error) {
				extended = d
				return &entity.Invoice{ID: invoiceID, DueDate: d}, nil
			},
		}
		service := newTestAdjustmentService(waiverRepo, &mockDiscountRepo{},
			&mockScholarshipRepo{}, &mockInvoiceRepo{}, ledger)

		w, err := service.DecideWaiver(context.Background(), 1, WaiverDecision{
			Approve: true, DecidedBy: "principal"})
		if err != nil {
			t.Fatalf("DecideWaiver() error = %v", err)
		}
		if w.Status != entity.WaiverStatusApproved {
			t.Errorf("DecideWaiver() status = %s, want APPROVED", w.Status)
		}
		if !extended.Equal(newDue) {
			t.Errorf("DecideWaiver() extended due date = %s, want %s", extended, newDue)
		}
	})

	t.Run("extension failure aborts the approval", func(t *testing.T) {
		newDue := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
		waiverRepo := &mockWaiverRepo{
			getByIDFunc: func(ctx context.Context, id int64) (*entity.Waiver, error) {
				return &entity.Waiver{ID: id, InvoiceID: 1, StudentID: "STU-001",
					Kind: entity.WaiverKindDeadlineExtension, Reason: "family hardship",
					NewDueDate: &newDue, Status: entity.WaiverStatusPending}, nil
			},
			updateDecisionFunc: func(ctx context.Context, w *entity.Waiver) (bool, error) {
				t.Error("DecideWaiver() persisted a decision despite the ledger rejection")
				return true, nil
			},
		}
		ledger := &mockLedgerService{
			extendFunc: func(ctx context.Context, invoiceID int64, d time.Time) (*entity.Invoice, error) {
				return nil, entity.ErrInvalidState
			},
		}
		service := newTestAdjustmentService(waiverRepo, &mockDiscountRepo{},
			&mockScholarshipRepo{}, &mockInvoiceRepo{}, ledger)

		_, err := service.DecideWaiver(context.Background(), 1, WaiverDecision{
			Approve: true, DecidedBy: "principal"})
		if !errors.Is(err, entity.ErrInvalidState) {
			t.Errorf("DecideWaiver() error = %v, want ErrInvalidState", err)
		}
	})

	t.Run("granted above requested rejected", func(t *testing.T) {
		service := newTestAdjustmentService(&mockWaiverRepo{}, &mockDiscountRepo{},
			&mockScholarshipRepo{}, &mockInvoiceRepo{}, &mockLedgerService{})

		_, err := service.DecideWaiver(context.Background(), 1, WaiverDecision{
			Approve: true, GrantedAmount: decimal.NewFromInt(20001), DecidedBy: "principal"})
		if !errors.Is(err, entity.ErrValidation) {
			t.Errorf("DecideWaiver() error = %v, want ErrValidation", err)
		}
	})

	t.Run("rejection requires a reason", func(t *testing.T) {
		service := newTestAdjustmentService(&mockWaiverRepo{}, &mockDiscountRepo{},
			&mockScholarshipRepo{}, &mockInvoiceRepo{}, &mockLedgerService{})

		_, err := service.DecideWaiver(context.Background(), 1, WaiverDecision{
			Approve: false, DecidedBy: "principal"})
		if !errors.Is(err, entity.ErrValidation) {
			t.Errorf("DecideWaiver() error = %v, want ErrValidation", err)
		}
	})

	t.Run("rejects waiver with reason", func(t *testing.T) {
		var written *entity.Waiver
		repo := &mockWaiverRepo{
			updateDecisionFunc: func(ctx context.Context, w *entity.Waiver) (bool, error) {
				written = w
				return true, nil
			},
		}
		service := newTestAdjustmentService(repo, &mockDiscountRepo{},
			&mockScholarshipRepo{}, &mockInvoiceRepo{}, &mockLedgerService{})

		w, err := service.DecideWaiver(context.Background(), 1, WaiverDecision{
			Approve: false, Reason: "insufficient documentation", DecidedBy: "principal"})
		if err != nil {
			t.Fatalf("DecideWaiver() error = %v", err)
		}
		if w.Status != entity.WaiverStatusRejected || written.Status != entity.WaiverStatusRejected {
			t.Errorf("DecideWaiver() status = %s, want REJECTED", w.Status)
		}
		if w.DecidedAt == nil {
			t.Error("DecideWaiver() did not stamp decided_at")
		}
	})

	t.Run("already decided waiver is terminal", func(t *testing.T) {
		repo := &mockWaiverRepo{
			getByIDFunc: func(ctx context.Context, id int64) (*entity.Waiver, error) {
				return &entity.Waiver{ID: id, InvoiceID: 1,
					RequestedAmount: decimal.NewFromInt(1000),
					Status:          entity.WaiverStatusApproved}, nil
			},
		}
		service := newTestAdjustmentService(repo, &mockDiscountRepo{},
			&mockScholarshipRepo{}, &mockInvoiceRepo{}, &mockLedgerService{})

		_, err := service.DecideWaiver(context.Background(), 1, WaiverDecision{
			Approve: false, Reason: "late", DecidedBy: "principal"})
		if !errors.Is(err, entity.ErrInvalidState) {
			t.Errorf("DecideWaiver() error = %v, want ErrInvalidState", err)
		}
	})
}

func TestAdjustmentService_ExpireWaivers(t *testing.T) {
	now := time.Now()
	repo := &mockWaiverRepo{
		listPendingExpiredFunc: func(ctx context.Context, asOf time.Time, limit int) ([]*entity.Waiver, error) {
			return []*entity.Waiver{
				{ID: 1, Status: entity.WaiverStatusPending, ExpiresAt: now.Add(-time.Hour)},
				{ID: 2, Status: entity.WaiverStatusPending, ExpiresAt: now.Add(-2 * time.Hour)},
			}, nil
		},
	}
	service := newTestAdjustmentService(repo, &mockDiscountRepo{},
		&mockScholarshipRepo{}, &mockInvoiceRepo{}, &mockLedgerService{})

	expired, err := service.ExpireWaivers(context.Background(), now)
	if err != nil {
		t.Fatalf("ExpireWaivers() error = %v", err)
	}
	if expired != 2 {
		t.Errorf("ExpireWaivers() = %d, want 2", expired)
	}
}

func TestEvaluateDiscount(t *testing.T) {
	now := time.Now()
	past := now.Add(-24 * time.Hour)
	base := decimal.NewFromInt(100000)

	tests := []struct {
		name     string
		discount entity.Discount
		wantOK   bool
		want     string
	}{
		{
			name:     "percentage of base",
			discount: entity.Discount{ID: 1, Percentage: decimal.NewFromInt(10), Active: true},
			wantOK:   true,
			want:     "10000",
		},
		{
			name:     "fixed amount",
			discount: entity.Discount{ID: 2, FixedAmount: decimal.NewFromInt(7500), Active: true},
			wantOK:   true,
			want:     "7500",
		},
		{
			name:     "inactive rule yields nothing",
			discount: entity.Discount{ID: 3, Percentage: decimal.NewFromInt(10), Active: false},
		},
		{
			name: "window closed",
			discount: entity.Discount{ID: 4, Percentage: decimal.NewFromInt(10), Active: true,
				EndDate: &past},
		},
		{
			name: "targeted at another student",
			discount: entity.Discount{ID: 5, Percentage: decimal.NewFromInt(10), Active: true,
				StudentIDs: []string{"STU-999"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, ok := EvaluateDiscount(&tt.discount, "STU-001", base, now)
			if ok != tt.wantOK {
				t.Fatalf("EvaluateDiscount() ok = %v, want %v", ok, tt.wantOK)
			}
			if tt.wantOK && !amount.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("EvaluateDiscount() = %s, want %s", amount, tt.want)
			}
		})
	}
}

func TestResolveDiscounts(t *testing.T) {
	now := time.Now()
	base := decimal.NewFromInt(100000)

	t.Run("cumulable rules sum", func(t *testing.T) {
		discounts := []*entity.Discount{
			{ID: 1, Percentage: decimal.NewFromInt(10), Active: true, Cumulable: true},
			{ID: 2, FixedAmount: decimal.NewFromInt(5000), Active: true, Cumulable: true},
		}

		amount, ids := ResolveDiscounts(discounts, "STU-001", base, now)
		if !amount.Equal(decimal.NewFromInt(15000)) {
			t.Errorf("ResolveDiscounts() = %s, want 15000", amount)
		}
		if len(ids) != 2 {
			t.Errorf("ResolveDiscounts() applied %v, want both rules", ids)
		}
	})

	t.Run("non-cumulable rule forces highest single", func(t *testing.T) {
		discounts := []*entity.Discount{
			{ID: 1, Percentage: decimal.NewFromInt(10), Active: true, Cumulable: true},
			{ID: 2, FixedAmount: decimal.NewFromInt(25000), Active: true, Cumulable: false},
		}

		amount, ids := ResolveDiscounts(discounts, "STU-001", base, now)
		if !amount.Equal(decimal.NewFromInt(25000)) {
			t.Errorf("ResolveDiscounts() = %s, want 25000", amount)
		}
		if len(ids) != 1 || ids[0] != 2 {
			t.Errorf("ResolveDiscounts() applied %v, want [2]", ids)
		}
	})

	t.Run("equal value resolved by lower rule ID", func(t *testing.T) {
		discounts := []*entity.Discount{
			{ID: 7, FixedAmount: decimal.NewFromInt(5000), Active: true, Cumulable: false},
			{ID: 3, FixedAmount: decimal.NewFromInt(5000), Active: true, Cumulable: false},
		}

		_, ids := ResolveDiscounts(discounts, "STU-001", base, now)
		if len(ids) != 1 || ids[0] != 3 {
			t.Errorf("ResolveDiscounts() applied %v, want [3]", ids)
		}
	})

	t.Run("no eligible rules", func(t *testing.T) {
		discounts := []*entity.Discount{
			{ID: 1, Percentage: decimal.NewFromInt(10), Active: false},
		}

		amount, ids := ResolveDiscounts(discounts, "STU-001", base, now)
		if !amount.IsZero() || ids != nil {
			t.Errorf("ResolveDiscounts() = %s %v, want zero and nil", amount, ids)
		}
	})
}

func TestEvaluateScholarship(t *testing.T) {
	now := time.Now()
	invoiceAmount := decimal.NewFromInt(80000)

	t.Run("percentage of invoice", func(t *testing.T) {
		sch := &entity.Scholarship{Percentage: decimal.NewFromInt(50), Status: entity.ScholarshipStatusActive}
		if got := EvaluateScholarship(sch, invoiceAmount, now); !got.Equal(decimal.NewFromInt(40000)) {
			t.Errorf("EvaluateScholarship() = %s, want 40000", got)
		}
	})

	t.Run("fixed amount capped at invoice", func(t *testing.T) {
		sch := &entity.Scholarship{FixedAmount: decimal.NewFromInt(100000), Status: entity.ScholarshipStatusActive}
		if got := EvaluateScholarship(sch, invoiceAmount, now); !got.Equal(invoiceAmount) {
			t.Errorf("EvaluateScholarship() = %s, want %s", got, invoiceAmount)
		}
	})

	t.Run("suspended scholarship covers nothing", func(t *testing.T) {
		sch := &entity.Scholarship{Percentage: decimal.NewFromInt(50), Status: entity.ScholarshipStatusSuspended}
		if got := EvaluateScholarship(sch, invoiceAmount, now); !got.IsZero() {
			t.Errorf("EvaluateScholarship() = %s, want 0", got)
		}
	})
}

func TestAdjustmentService_ApplyDiscount(t *testing.T) {
	t.Run("resolves rules and adjusts the ledger", func(t *testing.T) {
		var label string
		var amount decimal.Decimal
		ledger := &adjustingLedger{mockLedgerService: &mockLedgerService{},
			adjustFunc: func(ctx context.Context, invoiceID int64, l string, a decimal.Decimal) (*entity.Invoice, error) {
				label, amount = l, a
				return &entity.Invoice{ID: invoiceID, Total: decimal.NewFromInt(90000)}, nil
			}}
		discountRepo := &mockDiscountRepo{
			getByIDsFunc: func(ctx context.Context, ids []int64) ([]*entity.Discount, error) {
				return []*entity.Discount{
					{ID: 1, Percentage: decimal.NewFromInt(10), Active: true, Cumulable: true},
				}, nil
			},
		}
		service := NewAdjustmentService(&mockWaiverRepo{}, discountRepo,
			&mockScholarshipRepo{}, &mockInvoiceRepo{}, ledger, &mockTxManager{}, nil, &mockLogger{})

		_, err := service.ApplyDiscount(context.Background(), 1, []int64{1})
		if err != nil {
			t.Fatalf("ApplyDiscount() error = %v", err)
		}
		if !amount.Equal(decimal.NewFromInt(10000)) {
			t.Errorf("ApplyDiscount() amount = %s, want 10000", amount)
		}
		if label == "" {
			t.Error("ApplyDiscount() did not label the adjustment")
		}
	})

	t.Run("unknown rule id", func(t *testing.T) {
		discountRepo := &mockDiscountRepo{
			getByIDsFunc: func(ctx context.Context, ids []int64) ([]*entity.Discount, error) {
				return []*entity.Discount{}, nil
			},
		}
		service := newTestAdjustmentService(&mockWaiverRepo{}, discountRepo,
			&mockScholarshipRepo{}, &mockInvoiceRepo{}, &mockLedgerService{})

		_, err := service.ApplyDiscount(context.Background(), 1, []int64{99})
		if !errors.Is(err, entity.ErrNotFound) {
			t.Errorf("ApplyDiscount() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("no applicable rule", func(t *testing.T) {
		discountRepo := &mockDiscountRepo{
			getByIDsFunc: func(ctx context.Context, ids []int64) ([]*entity.Discount, error) {
				return []*entity.Discount{
					{ID: 1, Percentage: decimal.NewFromInt(10), Active: false},
				}, nil
			},
		}
		service := newTestAdjustmentService(&mockWaiverRepo{}, discountRepo,
			&mockScholarshipRepo{}, &mockInvoiceRepo{}, &mockLedgerService{})

		_, err := service.ApplyDiscount(context.Background(), 1, []int64{1})
		if !errors.Is(err, entity.ErrValidation) {
			t.Errorf("ApplyDiscount() error = %v, want ErrValidation", err)
		}
	})
}

func TestAdjustmentService_Scholarships(t *testing.T) {
	t.Run("awards an active scholarship", func(t *testing.T) {
		service := newTestAdjustmentService(&mockWaiverRepo{}, &mockDiscountRepo{},
			&mockScholarshipRepo{}, &mockInvoiceRepo{}, &mockLedgerService{})

		sch, err := service.AwardScholarship(context.Background(), AwardScholarshipInput{
			StudentID: "STU-001", Label: "Merit award", Percentage: decimal.NewFromInt(50)})
		if err != nil {
			t.Fatalf("AwardScholarship() error = %v", err)
		}
		if sch.Status != entity.ScholarshipStatusActive {
			t.Errorf("AwardScholarship() status = %s, want ACTIVE", sch.Status)
		}
	})

	t.Run("needs a percentage or fixed amount", func(t *testing.T) {
		service := newTestAdjustmentService(&mockWaiverRepo{}, &mockDiscountRepo{},
			&mockScholarshipRepo{}, &mockInvoiceRepo{}, &mockLedgerService{})

		_, err := service.AwardScholarship(context.Background(), AwardScholarshipInput{
			StudentID: "STU-001", Label: "Empty"})
		if !errors.Is(err, entity.ErrValidation) {
			t.Errorf("AwardScholarship() error = %v, want ErrValidation", err)
		}
	})

	t.Run("percentage above 100 rejected", func(t *testing.T) {
		service := newTestAdjustmentService(&mockWaiverRepo{}, &mockDiscountRepo{},
			&mockScholarshipRepo{}, &mockInvoiceRepo{}, &mockLedgerService{})

		_, err := service.AwardScholarship(context.Background(), AwardScholarshipInput{
			StudentID: "STU-001", Label: "Over", Percentage: decimal.NewFromInt(120)})
		if !errors.Is(err, entity.ErrValidation) {
			t.Errorf("AwardScholarship() error = %v, want ErrValidation", err)
		}
	})

	t.Run("applies scholarship coverage through the ledger", func(t *testing.T) {
		var amount decimal.Decimal
		ledger := &adjustingLedger{mockLedgerService: &mockLedgerService{},
			adjustFunc: func(ctx context.Context, invoiceID int64, l string, a decimal.Decimal) (*entity.Invoice, error) {
				amount = a
				return &entity.Invoice{ID: invoiceID}, nil
			}}
		service := NewAdjustmentService(&mockWaiverRepo{}, &mockDiscountRepo{},
			&mockScholarshipRepo{}, &mockInvoiceRepo{}, ledger, &mockTxManager{}, nil, &mockLogger{})

		_, err := service.ApplyScholarship(context.Background(), 1, 1)
		if err != nil {
			t.Fatalf("ApplyScholarship() error = %v", err)
		}
		// 50% of the default 100000 invoice
		if !amount.Equal(decimal.NewFromInt(50000)) {
			t.Errorf("ApplyScholarship() amount = %s, want 50000", amount)
		}
	})

	t.Run("scholarship of another student rejected", func(t *testing.T) {
		scholarshipRepo := &mockScholarshipRepo{
			getByIDFunc: func(ctx context.Context, id int64) (*entity.Scholarship, error) {
				return &entity.Scholarship{ID: id, StudentID: "STU-OTHER",
					Percentage: decimal.NewFromInt(50),
					Status:     entity.ScholarshipStatusActive}, nil
			},
		}
		service := newTestAdjustmentService(&mockWaiverRepo{}, &mockDiscountRepo{},
			scholarshipRepo, &mockInvoiceRepo{}, &mockLedgerService{})

		_, err := service.ApplyScholarship(context.Background(), 1, 1)
		if !errors.Is(err, entity.ErrValidation) {
			t.Errorf("ApplyScholarship() error = %v, want ErrValidation", err)
		}
	})
}

// adjustingLedger overrides ApplyAdjustment on top of the base mock.
type adjustingLedger struct {
	*mockLedgerService
	adjustFunc func(ctx context.Context, invoiceID int64, label string, amount decimal.Decimal) (*entity.Invoice, error)
}

func (l *adjustingLedger) ApplyAdjustment(ctx context.Context, invoiceID int64, label string, amount decimal.Decimal) (*entity.Invoice, error) {
	if l.adjustFunc != nil {
		return l.adjustFunc(ctx, invoiceID, label, amount)
	}
	return &entity.Invoice{ID: invoiceID}, nil
}
