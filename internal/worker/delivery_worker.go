package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edusuite/school-billing/internal/application/port"
)

// DeliveryWorker drains the notification outbox through the external sink.
// Each row is attempted with a bounded retry budget; rows that keep
// failing are parked as FAILED and left for operator inspection.
type DeliveryWorker struct {
	notificationRepo port.NotificationRepository
	sink             port.NotificationSink
	logger           *zap.Logger

	drainInterval time.Duration
	batchSize     int

	mu        sync.Mutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewDeliveryWorker creates a new outbox delivery worker
func NewDeliveryWorker(
	notificationRepo port.NotificationRepository,
	sink port.NotificationSink,
	drainInterval time.Duration,
	logger *zap.Logger,
) *DeliveryWorker {
	if drainInterval <= 0 {
		drainInterval = 10 * time.Second
	}
	return &DeliveryWorker{
		notificationRepo: notificationRepo,
		sink:             sink,
		logger:           logger,
		drainInterval:    drainInterval,
		batchSize:        50,
	}
}

// Start starts the drain loop
func (w *DeliveryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("delivery worker is already running")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.isRunning = true

	w.logger.Info("DeliveryWorker started",
		zap.Duration("drain_interval", w.drainInterval),
		zap.Int("batch_size", w.batchSize))

	go w.drainLoop()
	return nil
}

// Stop stops the drain loop
func (w *DeliveryWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isRunning {
		return
	}
	w.isRunning = false
	if w.cancel != nil {
		w.cancel()
	}
	w.logger.Info("DeliveryWorker stopped")
}

// Name returns the worker name for identification
func (w *DeliveryWorker) Name() string {
	return "DeliveryWorker"
}

func (w *DeliveryWorker) drainLoop() {
	ticker := time.NewTicker(w.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.Drain(w.ctx)
		}
	}
}

// Drain delivers one batch of pending outbox rows. Returns the number of
// rows successfully delivered.
func (w *DeliveryWorker) Drain(ctx context.Context) int {
	pending, err := w.notificationRepo.GetPending(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("Failed to load pending notifications", zap.Error(err))
		return 0
	}

	delivered := 0
	for _, n := range pending {
		if err := w.sink.Deliver(ctx, n); err != nil {
			w.logger.Error("Notification delivery failed",
				zap.Int64("id", n.ID),
				zap.Int("attempts", n.Attempts+1),
				zap.Error(err))
			if err := w.notificationRepo.MarkFailed(ctx, n.ID, n.Attempts+1, err.Error()); err != nil {
				w.logger.Error("Failed to record delivery failure",
					zap.Int64("id", n.ID),
					zap.Error(err))
			}
			continue
		}

		if err := w.notificationRepo.MarkSent(ctx, n.ID, time.Now()); err != nil {
			w.logger.Error("Failed to mark notification sent",
				zap.Int64("id", n.ID),
				zap.Error(err))
			continue
		}
		delivered++
	}

	if delivered > 0 {
		w.logger.Info("Notifications delivered", zap.Int("count", delivered))
	}
	return delivered
}
