package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"order-payment-core/internal/client"
	"order-payment-core/internal/metrics"
	"order-payment-core/internal/model"
	"order-payment-core/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// WebhookOutcome tags what handling an event actually did. AlreadyProcessed
// is a successful no-op, not an error: the gateway may deliver any event
// more than once.
type WebhookOutcome string

const (
	WebhookApplied          WebhookOutcome = "applied"
	WebhookAlreadyProcessed WebhookOutcome = "already_processed"
	WebhookRejected         WebhookOutcome = "rejected"
)

const (
	eventIntentSucceeded = "payment_intent.succeeded"
	eventIntentFailed    = "payment_intent.payment_failed"
	eventDisputeCreated  = "charge.dispute.created"
	eventMethodAttached  = "payment_method.attached"
	eventChargeRefunded  = "charge.refunded"
)

type WebhookService interface {
	Handle(ctx context.Context, body []byte, signatureHeader string) (WebhookOutcome, error)
}

type webhookServiceImpl struct {
	db                *gorm.DB
	gatewayClient     client.GatewayClient
	locker            InventoryLocker
	orderRepo         repository.OrderRepository
	paymentRepo       repository.PaymentRepository
	webhookEventRepo  repository.WebhookEventRepository
	paymentMethodRepo repository.PaymentMethodRepository
	logger            *zap.Logger
	metrics           *metrics.Metrics
}

func NewWebhookService(
	db *gorm.DB,
	gatewayClient client.GatewayClient,
	locker InventoryLocker,
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	webhookEventRepo repository.WebhookEventRepository,
	paymentMethodRepo repository.PaymentMethodRepository,
	logger *zap.Logger,
	m *metrics.Metrics,
) WebhookService {
	return &webhookServiceImpl{
		db:                db,
		gatewayClient:     gatewayClient,
		locker:            locker,
		orderRepo:         orderRepo,
		paymentRepo:       paymentRepo,
		webhookEventRepo:  webhookEventRepo,
		paymentMethodRepo: paymentMethodRepo,
		logger:            logger,
		metrics:           m,
	}
}

// Handle verifies, deduplicates and applies one gateway event. The dedup
// insert and every business effect share a single transaction, so an event
// is either fully applied and recorded or not at all.
func (s *webhookServiceImpl) Handle(ctx context.Context, body []byte, signatureHeader string) (WebhookOutcome, error) {
	if err := s.gatewayClient.VerifySignature(body, signatureHeader); err != nil {
		// security event: signed by nobody we trust
		s.logger.Warn("webhook signature rejected", zap.Error(err))
		s.metrics.WebhookEvents.WithLabelValues("unknown", string(WebhookRejected)).Inc()
		return WebhookRejected, err
	}

	var event model.GatewayWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.metrics.WebhookEvents.WithLabelValues("unknown", string(WebhookRejected)).Inc()
		return WebhookRejected, fmt.Errorf("decode webhook payload: %w", err)
	}
	if event.ID == "" || event.Type == "" {
		s.metrics.WebhookEvents.WithLabelValues("unknown", string(WebhookRejected)).Inc()
		return WebhookRejected, fmt.Errorf("webhook payload missing event id or type")
	}

	outcome := WebhookApplied
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.webhookEventRepo.InsertIfAbsent(ctx, tx, event.ID, event.Type)
		if err != nil {
			return fmt.Errorf("record webhook event: %w", err)
		}
		if !inserted {
			outcome = WebhookAlreadyProcessed
			return nil
		}

		switch event.Type {
		case eventIntentSucceeded:
			return s.handleIntentSucceeded(ctx, tx, &event.Data.Object)
		case eventIntentFailed:
			return s.handleIntentFailed(ctx, tx, &event.Data.Object)
		case eventDisputeCreated:
			return s.handleDisputeCreated(ctx, tx, &event.Data.Object)
		case eventMethodAttached:
			return s.handleMethodAttached(ctx, tx, &event.Data.Object)
		case eventChargeRefunded:
			return s.handleChargeRefunded(ctx, tx, &event.Data.Object)
		default:
			// unknown event types are persisted as processed and ignored
			s.logger.Info("ignoring webhook event type", zap.String("type", event.Type))
			return nil
		}
	})
	if err != nil {
		s.metrics.WebhookEvents.WithLabelValues(event.Type, "error").Inc()
		return WebhookRejected, err
	}

	s.metrics.WebhookEvents.WithLabelValues(event.Type, string(outcome)).Inc()
	return outcome, nil
}

// handleIntentSucceeded commits the reservation and marks payment and order
// paid. The order row lock serializes this against any other webhook for the
// same order.
func (s *webhookServiceImpl) handleIntentSucceeded(ctx context.Context, tx *gorm.DB, obj *model.GatewayObject) error {
	payment, err := s.paymentRepo.FindByIntentID(ctx, tx, obj.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Info("succeeded event for unknown intent", zap.String("intent_id", obj.ID))
			return nil
		}
		return fmt.Errorf("find payment by intent: %w", err)
	}

	order, err := s.orderRepo.LockByID(ctx, tx, payment.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("lock order: %w", err)
	}
	if order.Status == model.OrderStatusPaid {
		return nil // already applied
	}

	// an order reaches PAID only when the confirmed amount equals its total
	if obj.Amount != order.Amount {
		s.logger.Error("gateway-confirmed amount does not match order total",
			zap.String("order_id", order.ID),
			zap.Int64("confirmed", obj.Amount),
			zap.Int64("total", order.Amount),
		)
		return s.orderRepo.FlagForReview(ctx, tx, order.ID)
	}

	if err := s.locker.Commit(ctx, tx, order.ID); err != nil {
		return fmt.Errorf("commit reservation: %w", err)
	}
	if err := s.paymentRepo.MarkStatus(ctx, tx, payment.ID, model.PaymentStatusSucceeded); err != nil {
		return fmt.Errorf("mark payment succeeded: %w", err)
	}
	if _, err := s.orderRepo.UpdateStatus(ctx, tx, order.ID,
		[]string{model.OrderStatusCreated, model.OrderStatusAwaitingPayment},
		model.OrderStatusPaid); err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}

	return nil
}

func (s *webhookServiceImpl) handleIntentFailed(ctx context.Context, tx *gorm.DB, obj *model.GatewayObject) error {
	payment, err := s.paymentRepo.FindByIntentID(ctx, tx, obj.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("find payment by intent: %w", err)
	}

	order, err := s.orderRepo.LockByID(ctx, tx, payment.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("lock order: %w", err)
	}
	if order.Status == model.OrderStatusPaid {
		return nil // a late failure event never un-pays an order
	}

	if err := s.paymentRepo.MarkStatus(ctx, tx, payment.ID, model.PaymentStatusFailed); err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	if _, err := s.orderRepo.UpdateStatus(ctx, tx, order.ID,
		[]string{model.OrderStatusCreated, model.OrderStatusAwaitingPayment},
		model.OrderStatusFailed); err != nil {
		return fmt.Errorf("mark order failed: %w", err)
	}

	return s.locker.Release(ctx, tx, order.ID)
}

// handleDisputeCreated only flags the order; disputes are resolved by a
// human, never by an automatic status change.
func (s *webhookServiceImpl) handleDisputeCreated(ctx context.Context, tx *gorm.DB, obj *model.GatewayObject) error {
	payment, err := s.paymentRepo.FindByIntentID(ctx, tx, obj.PaymentIntentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("dispute for unknown intent", zap.String("intent_id", obj.PaymentIntentID))
			return nil
		}
		return fmt.Errorf("find payment by intent: %w", err)
	}

	if _, err := s.orderRepo.LockByID(ctx, tx, payment.OrderID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("lock order: %w", err)
	}

	return s.orderRepo.FlagForReview(ctx, tx, payment.OrderID)
}

func (s *webhookServiceImpl) handleMethodAttached(ctx context.Context, tx *gorm.DB, obj *model.GatewayObject) error {
	if obj.ID == "" || obj.CustomerID == "" {
		return fmt.Errorf("method attached event missing token or customer id")
	}

	return s.paymentMethodRepo.Upsert(ctx, tx, &model.PaymentMethod{
		OwnerID:      obj.CustomerID,
		GatewayToken: obj.ID,
		LastFour:     obj.Card.LastFour,
		Brand:        obj.Card.Brand,
	})
}

// handleChargeRefunded corroborates a refund previously issued through the
// refund manager; only then is is_refunded trusted.
func (s *webhookServiceImpl) handleChargeRefunded(ctx context.Context, tx *gorm.DB, obj *model.GatewayObject) error {
	payment, err := s.paymentRepo.FindByIntentID(ctx, tx, obj.PaymentIntentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("find payment by intent: %w", err)
	}

	if _, err := s.orderRepo.LockByID(ctx, tx, payment.OrderID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("lock order: %w", err)
	}

	if obj.AmountRefunded >= payment.Amount {
		return s.paymentRepo.SetRefundCorroborated(ctx, tx, payment.ID)
	}
	return nil
}
