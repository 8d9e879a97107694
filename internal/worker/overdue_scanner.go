package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edusuite/school-billing/internal/application/dispatcher"
	"github.com/edusuite/school-billing/internal/application/port"
	"github.com/edusuite/school-billing/internal/application/service"
	"github.com/edusuite/school-billing/internal/domain/event"
)

// OverdueScanner periodically walks the ledger for invoices past their due
// date and emits reminder events. The same sweep expires stale pending
// waivers and backfills receipts for validated payments whose post-commit
// issuance failed.
type OverdueScanner struct {
	ledger      service.LedgerService
	adjustments service.AdjustmentService
	receipts    service.ReceiptService
	paymentRepo port.PaymentRepository
	dispatcher  dispatcher.Dispatcher
	logger      *zap.Logger

	scanInterval time.Duration
	batchSize    int

	mu        sync.Mutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewOverdueScanner creates a new overdue scanner
func NewOverdueScanner(
	ledger service.LedgerService,
	adjustments service.AdjustmentService,
	receipts service.ReceiptService,
	paymentRepo port.PaymentRepository,
	d dispatcher.Dispatcher,
	scanInterval time.Duration,
	logger *zap.Logger,
) *OverdueScanner {
	if scanInterval <= 0 {
		scanInterval = time.Hour
	}
	return &OverdueScanner{
		ledger:       ledger,
		adjustments:  adjustments,
		receipts:     receipts,
		paymentRepo:  paymentRepo,
		dispatcher:   d,
		logger:       logger,
		scanInterval: scanInterval,
		batchSize:    100,
	}
}

// Start starts the scanning loop
func (s *OverdueScanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("overdue scanner is already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.isRunning = true

	s.logger.Info("OverdueScanner started",
		zap.Duration("scan_interval", s.scanInterval),
		zap.Int("batch_size", s.batchSize))

	go s.scanLoop()
	return nil
}

// Stop stops the scanning loop
func (s *OverdueScanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	s.isRunning = false
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("OverdueScanner stopped")
}

// Name returns the worker name for identification
func (s *OverdueScanner) Name() string {
	return "OverdueScanner"
}

func (s *OverdueScanner) scanLoop() {
	ticker := time.NewTicker(s.scanInterval)
	defer ticker.Stop()

	// Scan immediately on start
	s.Sweep(s.ctx, time.Now())

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.ctx, time.Now())
		}
	}
}

// Sweep runs one pass of all three housekeeping jobs. Failures are logged
// and retried on the next tick; the sweep never stops the worker.
func (s *OverdueScanner) Sweep(ctx context.Context, asOf time.Time) {
	s.remindOverdue(ctx, asOf)
	s.expireWaivers(ctx, asOf)
	s.backfillReceipts(ctx)
}

// remindOverdue emits a reminder event per invoice past due and still
// owing money. Reminder fan-out is idempotent downstream, so re-emitting
// on every tick is acceptable.
func (s *OverdueScanner) remindOverdue(ctx context.Context, asOf time.Time) {
	invoices, err := s.ledger.ListOverdue(ctx, asOf, s.batchSize)
	if err != nil {
		s.logger.Error("Failed to list overdue invoices", zap.Error(err))
		return
	}
	if len(invoices) == 0 {
		return
	}

	s.logger.Info("Overdue invoices found", zap.Int("count", len(invoices)))

	for _, inv := range invoices {
		evt := event.NewEvent(event.TypeOverdueReminder, inv.ID, inv.Reference, map[string]interface{}{
			"student_id":       inv.StudentID,
			"due_date":         inv.DueDate.Format(time.RFC3339),
			"amount_remaining": inv.Remaining().String(),
			"currency":         inv.Currency,
		})
		s.dispatcher.DispatchAsync(ctx, evt)
	}
}

func (s *OverdueScanner) expireWaivers(ctx context.Context, asOf time.Time) {
	expired, err := s.adjustments.ExpireWaivers(ctx, asOf)
	if err != nil {
		s.logger.Error("Failed to expire waivers", zap.Error(err))
		return
	}
	if expired > 0 {
		s.logger.Info("Pending waivers expired", zap.Int("count", expired))
	}
}

// backfillReceipts issues receipts for validated payments that missed
// their post-commit issuance, typically after a crash between the payment
// transaction and the receipt write.
func (s *OverdueScanner) backfillReceipts(ctx context.Context) {
	payments, err := s.paymentRepo.ListValidatedWithoutReceipt(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("Failed to list payments without receipt", zap.Error(err))
		return
	}

	for _, p := range payments {
		if _, err := s.receipts.Issue(ctx, p.ID, p.ValidatedBy); err != nil {
			s.logger.Error("Failed to backfill receipt",
				zap.Int64("payment_id", p.ID),
				zap.Error(err))
			continue
		}
		s.logger.Info("Receipt backfilled", zap.Int64("payment_id", p.ID))
	}
}
