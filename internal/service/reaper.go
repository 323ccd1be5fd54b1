package service

import (
	"context"
	"time"

	"order-payment-core/internal/metrics"
	"order-payment-core/internal/model"
	"order-payment-core/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReservationReaper force-releases reservations for checkouts that never
// heard back from the gateway, and retries releases that previously failed.
// It is the upper bound on how long stock can stay locked up by an abandoned
// cart.
type ReservationReaper struct {
	db          *gorm.DB
	orderRepo   repository.OrderRepository
	paymentRepo repository.PaymentRepository
	locker      InventoryLocker
	logger      *zap.Logger
	metrics     *metrics.Metrics

	ttl      time.Duration
	interval time.Duration
	batch    int
}

func NewReservationReaper(
	db *gorm.DB,
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	locker InventoryLocker,
	logger *zap.Logger,
	m *metrics.Metrics,
	ttl, interval time.Duration,
	batch int,
) *ReservationReaper {
	return &ReservationReaper{
		db:          db,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		locker:      locker,
		logger:      logger,
		metrics:     m,
		ttl:         ttl,
		interval:    interval,
		batch:       batch,
	}
}

// Run blocks until ctx is cancelled, sweeping on every tick.
func (r *ReservationReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep releases one batch of expired reservations.
func (r *ReservationReaper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.ttl)
	orders, err := r.orderRepo.FindExpiredReservations(ctx, cutoff, r.batch)
	if err != nil {
		r.logger.Error("reaper: list expired reservations", zap.Error(err))
		return
	}

	for _, order := range orders {
		if err := r.reap(ctx, order.ID, cutoff); err != nil {
			r.logger.Error("reaper: release reservation",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
			continue
		}
		r.metrics.ReservationsReaped.Inc()
	}
}

func (r *ReservationReaper) reap(ctx context.Context, orderID string, cutoff time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// re-check under the order row lock; a webhook may have won the race
		order, err := r.orderRepo.LockByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.StockState != model.StockStateReserved {
			return nil
		}
		awaiting := order.Status == model.OrderStatusCreated || order.Status == model.OrderStatusAwaitingPayment
		if awaiting && !order.CreatedAt.Before(cutoff) {
			return nil
		}

		if err := r.locker.Release(ctx, tx, orderID); err != nil {
			return err
		}

		if awaiting {
			if _, err := r.orderRepo.UpdateStatus(ctx, tx, orderID,
				[]string{model.OrderStatusCreated, model.OrderStatusAwaitingPayment},
				model.OrderStatusCancelled); err != nil {
				return err
			}
			if err := r.paymentRepo.MarkPendingFailedByOrderID(ctx, tx, orderID); err != nil {
				return err
			}
			r.logger.Info("reaper: cancelled abandoned checkout", zap.String("order_id", orderID))
		}

		return nil
	})
}
