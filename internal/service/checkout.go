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

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrOrderNotFound = errors.New("order not found")

type CheckoutService interface {
	Checkout(ctx context.Context, buyerID string, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error)
	GetOrder(ctx context.Context, orderID string) (*dto.OrderResponse, error)
}

type checkoutServiceImpl struct {
	db            *gorm.DB
	gatewayClient client.GatewayClient
	locker        InventoryLocker
	productRepo   repository.ProductRepository
	orderRepo     repository.OrderRepository
	paymentRepo   repository.PaymentRepository
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

func NewCheckoutService(
	db *gorm.DB,
	gatewayClient client.GatewayClient,
	locker InventoryLocker,
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	logger *zap.Logger,
	m *metrics.Metrics,
) CheckoutService {
	return &checkoutServiceImpl{
		db:            db,
		gatewayClient: gatewayClient,
		locker:        locker,
		productRepo:   productRepo,
		orderRepo:     orderRepo,
		paymentRepo:   paymentRepo,
		logger:        logger,
		metrics:       m,
	}
}

// Checkout runs the saga: create the order, reserve stock, create the payment
// intent. Inventory reservation always precedes intent creation; a gateway
// failure after a successful reservation triggers the compensating release.
func (s *checkoutServiceImpl) Checkout(ctx context.Context, buyerID string, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("checkout requires at least one item")
	}

	productIDs := make([]string, len(req.Items))
	itemQuantityMap := make(map[string]int64)
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item quantity must be positive")
		}
		productIDs[i] = item.ProductID
		itemQuantityMap[item.ProductID] += item.Quantity
	}

	products, err := s.productRepo.FindMany(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	if len(products) != len(itemQuantityMap) {
		return nil, fmt.Errorf("some products not found")
	}

	orderID := uuid.NewString()
	currency := products[0].Currency

	// unit prices are snapshotted here; the total is never re-derived later
	totalAmount := int64(0)
	orderItems := make([]*model.OrderItem, len(products))
	reserveItems := make([]ReserveItem, len(products))
	for i, product := range products {
		if product.Currency != currency {
			return nil, fmt.Errorf("mixed currencies in one order")
		}
		quantity := itemQuantityMap[product.ID]
		totalAmount += product.Price * quantity

		orderItems[i] = &model.OrderItem{
			OrderID:   orderID,
			ProductID: product.ID,
			Quantity:  quantity,
			UnitPrice: product.Price,
			Currency:  product.Currency,
		}
		reserveItems[i] = ReserveItem{ProductID: product.ID, Quantity: quantity}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.Create(ctx, tx, &model.Order{
			ID:         orderID,
			BuyerID:    buyerID,
			Status:     model.OrderStatusCreated,
			Amount:     totalAmount,
			Currency:   currency,
			StockState: model.StockStateNone,
		}); err != nil {
			return fmt.Errorf("store order in db: %w", err)
		}

		if err := s.orderRepo.CreateOrderItems(ctx, tx, orderItems); err != nil {
			return fmt.Errorf("store order items in db: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.locker.Reserve(ctx, orderID, reserveItems); err != nil {
		s.failOrder(ctx, orderID)
		result := "out_of_stock"
		var lockTimeout *LockTimeoutError
		if errors.As(err, &lockTimeout) {
			result = "lock_timeout"
		}
		s.metrics.CheckoutAttempts.WithLabelValues(result).Inc()
		return nil, fmt.Errorf("reserve inventory: %w", err)
	}

	attempts, err := s.paymentRepo.CountByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("count payment attempts: %w", err)
	}

	intent, err := s.gatewayClient.CreateIntent(ctx, &client.CreateIntentRequest{
		OrderID:     orderID,
		Amount:      totalAmount,
		Currency:    currency,
		MethodToken: req.SavedMethodToken,
		Attempt:     int(attempts) + 1,
	})
	if err != nil {
		// compensating action: the reservation must not outlive the saga
		if relErr := s.locker.Release(ctx, nil, orderID); relErr != nil {
			// the reaper retries releases that failed here
			s.logger.Error("compensating release failed",
				zap.String("order_id", orderID),
				zap.Error(relErr),
			)
		}
		s.failOrder(ctx, orderID)
		s.metrics.CheckoutAttempts.WithLabelValues("gateway_error").Inc()
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.paymentRepo.Create(ctx, tx, &model.Payment{
			ID:            uuid.NewString(),
			OrderID:       orderID,
			IntentID:      intent.IntentID,
			Amount:        totalAmount,
			Currency:      currency,
			Status:        model.PaymentStatusPending,
			AttemptNumber: int(attempts) + 1,
		}); err != nil {
			return fmt.Errorf("store payment in db: %w", err)
		}

		_, err := s.orderRepo.UpdateStatus(ctx, tx, orderID,
			[]string{model.OrderStatusCreated}, model.OrderStatusAwaitingPayment)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.CheckoutAttempts.WithLabelValues("awaiting_payment").Inc()

	return &dto.CheckoutResponse{
		OrderID:      orderID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

func (s *checkoutServiceImpl) GetOrder(ctx context.Context, orderID string) (*dto.OrderResponse, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	items, err := s.orderRepo.GetOrderItems(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}

	itemResponses := make([]*dto.OrderItemResponse, len(items))
	for i, item := range items {
		itemResponses[i] = &dto.OrderItemResponse{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	return &dto.OrderResponse{
		OrderID:   order.ID,
		Status:    order.Status,
		Amount:    order.Amount,
		Currency:  order.Currency,
		Items:     itemResponses,
		CreatedAt: order.CreatedAt,
	}, nil
}

func (s *checkoutServiceImpl) failOrder(ctx context.Context, orderID string) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.orderRepo.UpdateStatus(ctx, tx, orderID,
			[]string{model.OrderStatusCreated, model.OrderStatusAwaitingPayment},
			model.OrderStatusFailed)
		return err
	})
	if err != nil {
		s.logger.Error("mark order failed", zap.String("order_id", orderID), zap.Error(err))
	}
}
