package service_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"order-payment-core/internal/client"
	"order-payment-core/internal/model"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a per-test in-memory database. A single-connection pool
// serializes transactions, standing in for the row locks the production
// postgres setup uses.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, client.Migrate(db))
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, id string, price int64) {
	t.Helper()
	require.NoError(t, db.Create(&model.Product{ID: id, Price: price, Currency: "USD"}).Error)
}

func seedInventory(t *testing.T, db *gorm.DB, productID string, available int64) {
	t.Helper()
	require.NoError(t, db.Create(&model.InventoryRecord{
		ProductID:         productID,
		AvailableQuantity: available,
	}).Error)
}

func seedOrder(t *testing.T, db *gorm.DB, id, status, stockState string, amount int64) {
	t.Helper()
	require.NoError(t, db.Create(&model.Order{
		ID:         id,
		BuyerID:    "buyer-1",
		Status:     status,
		Amount:     amount,
		Currency:   "USD",
		StockState: stockState,
	}).Error)
}

func seedOrderItem(t *testing.T, db *gorm.DB, orderID, productID string, qty, unitPrice int64) {
	t.Helper()
	require.NoError(t, db.Create(&model.OrderItem{
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  qty,
		UnitPrice: unitPrice,
		Currency:  "USD",
	}).Error)
}

func getInventory(t *testing.T, db *gorm.DB, productID string) *model.InventoryRecord {
	t.Helper()
	var rec model.InventoryRecord
	require.NoError(t, db.Where("product_id = ?", productID).First(&rec).Error)
	return &rec
}

func getOrder(t *testing.T, db *gorm.DB, orderID string) *model.Order {
	t.Helper()
	var order model.Order
	require.NoError(t, db.Where("id = ?", orderID).First(&order).Error)
	return &order
}

func getPayment(t *testing.T, db *gorm.DB, orderID string) *model.Payment {
	t.Helper()
	var payment model.Payment
	require.NoError(t, db.Where("order_id = ?", orderID).First(&payment).Error)
	return &payment
}

// ---- fake gateway client ----

type fakeGateway struct {
	intentID     string
	clientSecret string
	refundID     string

	createErr error
	refundErr error
	verifyErr error

	createCalls int
	lastCreate  *client.CreateIntentRequest
	refundCalls int
	lastRefund  int64
}

func (f *fakeGateway) CreateIntent(_ context.Context, req *client.CreateIntentRequest) (*client.CreateIntentResponse, error) {
	f.createCalls++
	f.lastCreate = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &client.CreateIntentResponse{
		IntentID:     f.intentID,
		ClientSecret: f.clientSecret,
	}, nil
}

func (f *fakeGateway) ConfirmIntent(_ context.Context, _ string) error {
	return nil
}

func (f *fakeGateway) Refund(_ context.Context, _ string, amount int64) (string, error) {
	f.refundCalls++
	f.lastRefund = amount
	if f.refundErr != nil {
		return "", f.refundErr
	}
	return f.refundID, nil
}

func (f *fakeGateway) VerifySignature(_ []byte, _ string) error {
	return f.verifyErr
}

const (
	testLockRetries = 3
	testLockBackoff = time.Millisecond
)
