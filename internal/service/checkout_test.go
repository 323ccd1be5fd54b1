package service_test

import (
	"context"
	"testing"

	"order-payment-core/internal/client"
	"order-payment-core/internal/dto"
	"order-payment-core/internal/metrics"
	"order-payment-core/internal/model"
	"order-payment-core/internal/repository"
	"order-payment-core/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func buildCheckout(t *testing.T, db *gorm.DB, gateway client.GatewayClient) service.CheckoutService {
	t.Helper()
	orderRepo := repository.NewOrderRepository(db)
	inventoryRepo := repository.NewInventoryRepository(db)
	locker := service.NewInventoryLocker(db, orderRepo, inventoryRepo, zap.NewNop(), testLockRetries, testLockBackoff)
	return service.NewCheckoutService(
		db, gateway, locker,
		repository.NewProductRepository(db),
		orderRepo,
		repository.NewPaymentRepository(db),
		zap.NewNop(), metrics.NewNop(),
	)
}

func TestCheckoutHappyPath(t *testing.T) {
	db := newTestDB(t)
	gateway := &fakeGateway{intentID: "pi_1", clientSecret: "cs_1"}
	svc := buildCheckout(t, db, gateway)

	seedProduct(t, db, "sku-a", 250)
	seedProduct(t, db, "sku-b", 100)
	seedInventory(t, db, "sku-a", 5)
	seedInventory(t, db, "sku-b", 5)

	resp, err := svc.Checkout(context.Background(), "buyer-1", &dto.CheckoutRequest{
		Items: []*dto.Item{
			{ProductID: "sku-a", Quantity: 2},
			{ProductID: "sku-b", Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", resp.ClientSecret)
	require.NotEmpty(t, resp.OrderID)

	order := getOrder(t, db, resp.OrderID)
	assert.Equal(t, model.OrderStatusAwaitingPayment, order.Status)
	assert.Equal(t, model.StockStateReserved, order.StockState)
	// total is the snapshot sum: 2*250 + 1*100
	assert.Equal(t, int64(600), order.Amount)

	payment := getPayment(t, db, resp.OrderID)
	assert.Equal(t, model.PaymentStatusPending, payment.Status)
	assert.Equal(t, "pi_1", payment.IntentID)
	assert.Equal(t, order.Amount, payment.Amount)
	assert.Equal(t, 1, payment.AttemptNumber)

	assert.Equal(t, int64(3), getInventory(t, db, "sku-a").AvailableQuantity)
	assert.Equal(t, int64(2), getInventory(t, db, "sku-a").ReservedQuantity)

	require.NotNil(t, gateway.lastCreate)
	assert.Equal(t, int64(600), gateway.lastCreate.Amount)
	assert.Equal(t, 1, gateway.lastCreate.Attempt)
}

func TestCheckoutOutOfStockFailsOrderWithoutIntent(t *testing.T) {
	db := newTestDB(t)
	gateway := &fakeGateway{intentID: "pi_1", clientSecret: "cs_1"}
	svc := buildCheckout(t, db, gateway)

	seedProduct(t, db, "sku-a", 250)
	seedInventory(t, db, "sku-a", 1)

	_, err := svc.Checkout(context.Background(), "buyer-1", &dto.CheckoutRequest{
		Items: []*dto.Item{{ProductID: "sku-a", Quantity: 2}},
	})

	var oos *service.OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, "sku-a", oos.ProductID)
	// no payment intent is created after a failed reservation
	assert.Equal(t, 0, gateway.createCalls)

	var order model.Order
	require.NoError(t, db.Where("buyer_id = ?", "buyer-1").First(&order).Error)
	assert.Equal(t, model.OrderStatusFailed, order.Status)
	assert.Equal(t, int64(1), getInventory(t, db, "sku-a").AvailableQuantity)
}

func TestCheckoutGatewayFailureReleasesReservation(t *testing.T) {
	db := newTestDB(t)
	gateway := &fakeGateway{
		createErr: &client.GatewayError{Class: client.GatewayFatal, Message: "malformed request"},
	}
	svc := buildCheckout(t, db, gateway)

	seedProduct(t, db, "sku-a", 250)
	seedInventory(t, db, "sku-a", 5)

	_, err := svc.Checkout(context.Background(), "buyer-1", &dto.CheckoutRequest{
		Items: []*dto.Item{{ProductID: "sku-a", Quantity: 2}},
	})
	require.Error(t, err)

	var order model.Order
	require.NoError(t, db.Where("buyer_id = ?", "buyer-1").First(&order).Error)
	assert.Equal(t, model.OrderStatusFailed, order.Status)
	assert.Equal(t, model.StockStateReleased, order.StockState)

	// compensating release returned every unit
	rec := getInventory(t, db, "sku-a")
	assert.Equal(t, int64(5), rec.AvailableQuantity)
	assert.Equal(t, int64(0), rec.ReservedQuantity)

	// no payment row is left pending
	var count int64
	require.NoError(t, db.Model(&model.Payment{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestCheckoutDeclinedPropagates(t *testing.T) {
	db := newTestDB(t)
	gateway := &fakeGateway{
		createErr: &client.GatewayError{Class: client.GatewayDeclined, Message: "card declined"},
	}
	svc := buildCheckout(t, db, gateway)

	seedProduct(t, db, "sku-a", 250)
	seedInventory(t, db, "sku-a", 5)

	_, err := svc.Checkout(context.Background(), "buyer-1", &dto.CheckoutRequest{
		Items: []*dto.Item{{ProductID: "sku-a", Quantity: 1}},
	})
	require.True(t, client.IsGatewayDeclined(err))
	assert.Equal(t, int64(5), getInventory(t, db, "sku-a").AvailableQuantity)
}

func TestCheckoutUnknownProductRejected(t *testing.T) {
	db := newTestDB(t)
	svc := buildCheckout(t, db, &fakeGateway{})

	seedProduct(t, db, "sku-a", 250)

	_, err := svc.Checkout(context.Background(), "buyer-1", &dto.CheckoutRequest{
		Items: []*dto.Item{
			{ProductID: "sku-a", Quantity: 1},
			{ProductID: "sku-missing", Quantity: 1},
		},
	})
	require.Error(t, err)
}

func TestCheckoutPassesSavedMethodToken(t *testing.T) {
	db := newTestDB(t)
	gateway := &fakeGateway{intentID: "pi_1", clientSecret: "cs_1"}
	svc := buildCheckout(t, db, gateway)

	seedProduct(t, db, "sku-a", 250)
	seedInventory(t, db, "sku-a", 5)

	_, err := svc.Checkout(context.Background(), "buyer-1", &dto.CheckoutRequest{
		Items:            []*dto.Item{{ProductID: "sku-a", Quantity: 1}},
		SavedMethodToken: "pm_saved",
	})
	require.NoError(t, err)
	assert.Equal(t, "pm_saved", gateway.lastCreate.MethodToken)
}
