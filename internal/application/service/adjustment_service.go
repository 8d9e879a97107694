package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edusuite/school-billing/internal/application/dispatcher"
	"github.com/edusuite/school-billing/internal/application/port"
	"github.com/edusuite/school-billing/internal/domain/entity"
	"github.com/edusuite/school-billing/internal/domain/event"
	"github.com/edusuite/school-billing/internal/domain/workflow"
)

// FileWaiverInput carries a new waiver request.
type FileWaiverInput struct {
	InvoiceID       int64
	Kind            entity.WaiverKind
	Reason          string
	RequestedAmount decimal.Decimal
	NewDueDate      *time.Time
	ExpiresAt       time.Time
}

// WaiverDecision is a terminal decision on a pending waiver.
type WaiverDecision struct {
	Approve       bool
	GrantedAmount decimal.Decimal
	Reason        string
	DecidedBy     string
}

// AwardScholarshipInput creates a standing scholarship for one student.
type AwardScholarshipInput struct {
	StudentID   string
	Label       string
	Percentage  decimal.Decimal
	FixedAmount decimal.Decimal
	StartDate   *time.Time
	EndDate     *time.Time
}

// AdjustmentService evaluates waivers, discounts and scholarships against
// invoices. Every adjustment reaches the invoice as a reduction of
// amount_total through the ledger, never as an edit of amount_paid.
type AdjustmentService interface {
	FileWaiver(ctx context.Context, in FileWaiverInput) (*entity.Waiver, error)
	DecideWaiver(ctx context.Context, waiverID int64, decision WaiverDecision) (*entity.Waiver, error)
	ExpireWaivers(ctx context.Context, asOf time.Time) (int, error)
	GetWaiver(ctx context.Context, waiverID int64) (*entity.Waiver, error)

	ApplyDiscount(ctx context.Context, invoiceID int64, discountIDs []int64) (*entity.Invoice, error)

	AwardScholarship(ctx context.Context, in AwardScholarshipInput) (*entity.Scholarship, error)
	ApplyScholarship(ctx context.Context, invoiceID, scholarshipID int64) (*entity.Invoice, error)
}

type adjustmentServiceImpl struct {
	waiverRepo      port.WaiverRepository
	discountRepo    port.DiscountRepository
	scholarshipRepo port.ScholarshipRepository
	invoiceRepo     port.InvoiceRepository
	ledger          LedgerService
	txManager       port.TransactionManager
	events          dispatcher.Dispatcher
	now             func() time.Time
	logger          Logger
}

// NewAdjustmentService creates a new AdjustmentService
func NewAdjustmentService(
	waiverRepo port.WaiverRepository,
	discountRepo port.DiscountRepository,
	scholarshipRepo port.ScholarshipRepository,
	invoiceRepo port.InvoiceRepository,
	ledger LedgerService,
	txManager port.TransactionManager,
	events dispatcher.Dispatcher,
	logger Logger,
) AdjustmentService {
	return &adjustmentServiceImpl{
		waiverRepo:      waiverRepo,
		discountRepo:    discountRepo,
		scholarshipRepo: scholarshipRepo,
		invoiceRepo:     invoiceRepo,
		ledger:          ledger,
		txManager:       txManager,
		events:          events,
		now:             time.Now,
		logger:          logger,
	}
}

// FileWaiver opens a waiver request in PENDING against an existing invoice.
func (s *adjustmentServiceImpl) FileWaiver(ctx context.Context, in FileWaiverInput) (*entity.Waiver, error) {
	if _, err := entity.ParseWaiverKind(string(in.Kind)); err != nil {
		return nil, err
	}
	if in.Kind != entity.WaiverKindDeadlineExtension && !in.RequestedAmount.IsPositive() {
		return nil, fmt.Errorf("%w: waiver requested amount must be positive, got %s",
			entity.ErrValidation, in.RequestedAmount)
	}

	inv, err := s.invoiceRepo.GetByID(ctx, in.InvoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot file a waiver against invoice %s in status %s",
			entity.ErrInvalidState, inv.Reference, inv.Status)
	}

	now := s.now()
	expires := in.ExpiresAt
	if expires.IsZero() {
		expires = now.AddDate(0, 1, 0)
	}

	w := &entity.Waiver{
		InvoiceID:       inv.ID,
		StudentID:       inv.StudentID,
		Kind:            in.Kind,
		Reason:          in.Reason,
		RequestedAmount: in.RequestedAmount,
		NewDueDate:      in.NewDueDate,
		Status:          entity.WaiverStatusPending,
		ExpiresAt:       expires,
		CreatedAt:       now,
	}
	if err := s.waiverRepo.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("create waiver: %w", err)
	}

	s.logger.Info("Waiver filed",
		"waiver_id", w.ID,
		"invoice", inv.Reference,
		"kind", string(w.Kind),
		"requested", w.RequestedAmount.String(),
	)
	return w, nil
}

// DecideWaiver approves or rejects a pending waiver. Approval feeds the
// granted amount into the ledger inside the same unit of work, so a waiver
// can never be marked APPROVED without its reduction landing.
func (s *adjustmentServiceImpl) DecideWaiver(ctx context.Context, waiverID int64, decision WaiverDecision) (*entity.Waiver, error) {
	var w *entity.Waiver

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		w, err = s.waiverRepo.GetByID(txCtx, waiverID)
		if err != nil {
			return err
		}

		machine := workflow.NewWaiverLifecycle().Build(workflow.State(w.Status))
		trigger := workflow.TriggerReject
		if decision.Approve {
			trigger = workflow.TriggerApprove
		}
		if err := machine.Fire(txCtx, trigger); err != nil {
			return fmt.Errorf("%w: waiver %d already decided (%s)",
				entity.ErrInvalidState, w.ID, w.Status)
		}

		now := s.now()
		w.DecidedBy = decision.DecidedBy
		w.DecidedAt = &now
		w.DecisionReason = decision.Reason

		if decision.Approve {
			granted := decision.GrantedAmount
			if granted.IsZero() {
				granted = w.RequestedAmount
			}
			switch {
			case w.Kind == entity.WaiverKindDeadlineExtension:
				// extends the deadline only; no monetary effect
			case !granted.IsPositive():
				return fmt.Errorf("%w: granted amount must be positive", entity.ErrValidation)
			case granted.GreaterThan(w.RequestedAmount):
				return fmt.Errorf("%w: granted %s exceeds requested %s",
					entity.ErrValidation, granted, w.RequestedAmount)
			}

			w.Status = entity.WaiverStatusApproved
			w.GrantedAmount = granted

			if w.Kind == entity.WaiverKindDeadlineExtension {
				if w.NewDueDate == nil {
					return fmt.Errorf("%w: deadline extension waiver needs a new due date", entity.ErrValidation)
				}
				if _, err := s.ledger.ExtendDueDate(txCtx, w.InvoiceID, *w.NewDueDate); err != nil {
					return err
				}
			} else {
				label := fmt.Sprintf("Waiver: %s", w.Reason)
				if _, err := s.ledger.ApplyAdjustment(txCtx, w.InvoiceID, label, granted); err != nil {
					return err
				}
			}
		} else {
			if decision.Reason == "" {
				return fmt.Errorf("%w: rejection requires a reason", entity.ErrValidation)
			}
			w.Status = entity.WaiverStatusRejected
		}

		ok, err := s.waiverRepo.UpdateDecision(txCtx, w)
		if err != nil {
			return err
		}
		if !ok {
			return entity.ErrConcurrency
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		s.events.DispatchAsync(context.WithoutCancel(ctx), event.NewEvent(
			event.TypeWaiverDecided, w.InvoiceID, "",
			map[string]interface{}{
				"waiver_id":  w.ID,
				"student_id": w.StudentID,
				"status":     w.Status.String(),
				"granted":    w.GrantedAmount.String(),
			},
		))
	}

	s.logger.Info("Waiver decided",
		"waiver_id", w.ID,
		"status", w.Status.String(),
		"decided_by", decision.DecidedBy,
	)
	return w, nil
}

// ExpireWaivers sweeps pending waivers whose expiry has passed. The
// transition is time-based and independent of any human decision.
func (s *adjustmentServiceImpl) ExpireWaivers(ctx context.Context, asOf time.Time) (int, error) {
	pending, err := s.waiverRepo.ListPendingExpired(ctx, asOf, 100)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, w := range pending {
		w.Status = entity.WaiverStatusExpired
		ok, err := s.waiverRepo.UpdateDecision(ctx, w)
		if err != nil {
			s.logger.Error("Failed to expire waiver", "waiver_id", w.ID, "error", err)
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

// GetWaiver retrieves a waiver by ID
func (s *adjustmentServiceImpl) GetWaiver(ctx context.Context, waiverID int64) (*entity.Waiver, error) {
	return s.waiverRepo.GetByID(ctx, waiverID)
}

// EvaluateDiscount returns the amount a single rule yields against a base
// amount, and whether the student/date qualify at all.
func EvaluateDiscount(d *entity.Discount, studentID string, base decimal.Decimal, on time.Time) (decimal.Decimal, bool) {
	if !d.Active || !d.InWindow(on) || !d.Targets(studentID) {
		return decimal.Zero, false
	}
	if d.Percentage.IsPositive() {
		return base.Mul(d.Percentage).Div(decimal.NewFromInt(100)), true
	}
	return d.FixedAmount, true
}

// ResolveDiscounts combines several rules: amounts are summed only if every
// eligible rule is cumulable; otherwise the single highest-value rule wins,
// with equal values resolved by the lower rule ID.
func ResolveDiscounts(discounts []*entity.Discount, studentID string, base decimal.Decimal, on time.Time) (decimal.Decimal, []int64) {
	type hit struct {
		id     int64
		amount decimal.Decimal
	}

	var hits []hit
	allCumulable := true
	for _, d := range discounts {
		amount, ok := EvaluateDiscount(d, studentID, base, on)
		if !ok || !amount.IsPositive() {
			continue
		}
		hits = append(hits, hit{id: d.ID, amount: amount})
		if !d.Cumulable {
			allCumulable = false
		}
	}

	if len(hits) == 0 {
		return decimal.Zero, nil
	}

	if allCumulable {
		total := decimal.Zero
		ids := make([]int64, 0, len(hits))
		for _, h := range hits {
			total = total.Add(h.amount)
			ids = append(ids, h.id)
		}
		return total, ids
	}

	best := hits[0]
	for _, h := range hits[1:] {
		if h.amount.GreaterThan(best.amount) || (h.amount.Equal(best.amount) && h.id < best.id) {
			best = h
		}
	}
	return best.amount, []int64{best.id}
}

// EvaluateScholarship returns the amount a scholarship covers of an
// invoice: percentage of it if a percentage is set, otherwise the fixed
// amount capped at the invoice amount. Unusable scholarships yield zero.
func EvaluateScholarship(sch *entity.Scholarship, invoiceAmount decimal.Decimal, on time.Time) decimal.Decimal {
	if !sch.Usable(on) {
		return decimal.Zero
	}
	if sch.Percentage.IsPositive() {
		return invoiceAmount.Mul(sch.Percentage).Div(decimal.NewFromInt(100))
	}
	if sch.FixedAmount.GreaterThan(invoiceAmount) {
		return invoiceAmount
	}
	return sch.FixedAmount
}

// ApplyDiscount resolves the given rules against the invoice and feeds the
// combined amount into the ledger.
func (s *adjustmentServiceImpl) ApplyDiscount(ctx context.Context, invoiceID int64, discountIDs []int64) (*entity.Invoice, error) {
	if len(discountIDs) == 0 {
		return nil, fmt.Errorf("%w: no discount rules given", entity.ErrValidation)
	}

	inv, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	discounts, err := s.discountRepo.GetByIDs(ctx, discountIDs)
	if err != nil {
		return nil, err
	}
	if len(discounts) != len(discountIDs) {
		return nil, fmt.Errorf("%w: unknown discount rule", entity.ErrNotFound)
	}

	amount, applied := ResolveDiscounts(discounts, inv.StudentID, inv.Total, s.now())
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: no discount applies to invoice %s", entity.ErrValidation, inv.Reference)
	}

	label := fmt.Sprintf("Discount (rules %v)", applied)
	return s.ledger.ApplyAdjustment(ctx, invoiceID, label, amount)
}

// AwardScholarship creates a standing award in ACTIVE.
func (s *adjustmentServiceImpl) AwardScholarship(ctx context.Context, in AwardScholarshipInput) (*entity.Scholarship, error) {
	if !in.Percentage.IsPositive() && !in.FixedAmount.IsPositive() {
		return nil, fmt.Errorf("%w: scholarship needs a percentage or a fixed amount", entity.ErrValidation)
	}
	if in.Percentage.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("%w: scholarship percentage %s exceeds 100", entity.ErrValidation, in.Percentage)
	}

	sch := &entity.Scholarship{
		StudentID:   in.StudentID,
		Label:       in.Label,
		Percentage:  in.Percentage,
		FixedAmount: in.FixedAmount,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Status:      entity.ScholarshipStatusActive,
		CreatedAt:   s.now(),
	}
	if err := s.scholarshipRepo.Create(ctx, sch); err != nil {
		return nil, fmt.Errorf("create scholarship: %w", err)
	}

	s.logger.Info("Scholarship awarded",
		"scholarship_id", sch.ID,
		"student_id", sch.StudentID,
		"label", sch.Label,
	)
	return sch, nil
}

// ApplyScholarship covers part of the invoice with the scholarship.
func (s *adjustmentServiceImpl) ApplyScholarship(ctx context.Context, invoiceID, scholarshipID int64) (*entity.Invoice, error) {
	inv, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	sch, err := s.scholarshipRepo.GetByID(ctx, scholarshipID)
	if err != nil {
		return nil, err
	}
	if sch.StudentID != inv.StudentID {
		return nil, fmt.Errorf("%w: scholarship %d belongs to another student", entity.ErrValidation, sch.ID)
	}

	covered := EvaluateScholarship(sch, inv.Total, s.now())
	if !covered.IsPositive() {
		return nil, fmt.Errorf("%w: scholarship %d covers nothing on invoice %s",
			entity.ErrInvalidState, sch.ID, inv.Reference)
	}

	label := fmt.Sprintf("Scholarship: %s", sch.Label)
	return s.ledger.ApplyAdjustment(ctx, invoiceID, label, covered)
}
