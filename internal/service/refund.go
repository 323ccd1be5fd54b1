package service

import (
	"context"
	"errors"
	"fmt"

	"order-payment-core/internal/client"
	"order-payment-core/internal/dto"
	"order-payment-core/internal/metrics"
	"order-payment-core/internal/model"
	"order-payment-core/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNoRefundablePayment   = errors.New("order has no refundable payment")
	ErrRefundExceedsCaptured = errors.New("refund exceeds remaining captured amount")
)

type RefundService interface {
	Refund(ctx context.Context, orderID string, amount int64) (*dto.RefundResponse, error)
}

type refundServiceImpl struct {
	db            *gorm.DB
	gatewayClient client.GatewayClient
	orderRepo     repository.OrderRepository
	paymentRepo   repository.PaymentRepository
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

func NewRefundService(
	db *gorm.DB,
	gatewayClient client.GatewayClient,
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	logger *zap.Logger,
	m *metrics.Metrics,
) RefundService {
	return &refundServiceImpl{
		db:            db,
		gatewayClient: gatewayClient,
		orderRepo:     orderRepo,
		paymentRepo:   paymentRepo,
		logger:        logger,
		metrics:       m,
	}
}

// Refund issues a full (amount == 0) or partial refund. The payment row lock
// is held across the gateway call so concurrent refund requests cannot both
// pass the bound check; the running refunded sum never exceeds the captured
// amount.
func (s *refundServiceImpl) Refund(ctx context.Context, orderID string, amount int64) (*dto.RefundResponse, error) {
	var resp *dto.RefundResponse

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.paymentRepo.LockSucceededByOrderID(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoRefundablePayment
			}
			return fmt.Errorf("lock payment: %w", err)
		}

		remaining := payment.Amount - payment.RefundedAmount
		if amount == 0 {
			amount = remaining
		}
		if amount <= 0 || amount > remaining {
			return ErrRefundExceedsCaptured
		}

		refundID, err := s.gatewayClient.Refund(ctx, payment.IntentID, amount)
		if err != nil {
			return fmt.Errorf("gateway refund: %w", err)
		}

		paymentStatus := model.PaymentStatusPartiallyRefunded
		orderStatus := model.OrderStatusPartiallyRefunded
		if payment.RefundedAmount+amount == payment.Amount {
			paymentStatus = model.PaymentStatusRefunded
			orderStatus = model.OrderStatusRefunded
		}

		if err := s.paymentRepo.AddRefund(ctx, tx, payment.ID, amount, paymentStatus); err != nil {
			return fmt.Errorf("record refund: %w", err)
		}
		if _, err := s.orderRepo.UpdateStatus(ctx, tx, orderID,
			[]string{model.OrderStatusPaid, model.OrderStatusPartiallyRefunded},
			orderStatus); err != nil {
			return fmt.Errorf("mirror refund onto order: %w", err)
		}

		resp = &dto.RefundResponse{
			RefundID: refundID,
			Status:   paymentStatus,
		}
		return nil
	})
	if err != nil {
		s.metrics.Refunds.WithLabelValues("error").Inc()
		return nil, err
	}

	s.metrics.Refunds.WithLabelValues("ok").Inc()
	s.logger.Info("refund issued",
		zap.String("order_id", orderID),
		zap.String("refund_id", resp.RefundID),
		zap.Int64("amount", amount),
	)
	return resp, nil
}
