package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"order-payment-core/internal/model"
	"order-payment-core/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	assert.NoError(t, err)
	return gormDB, mock
}

func TestUpdateStatus_TransitionsGuardedStatus(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewOrderRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := repo.UpdateStatus(context.Background(), gormDB, "order-1",
		[]string{model.OrderStatusCreated}, model.OrderStatusAwaitingPayment)
	assert.NoError(t, err)
	assert.True(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_NoOpWhenAlreadyTransitioned(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewOrderRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	updated, err := repo.UpdateStatus(context.Background(), gormDB, "order-1",
		[]string{model.OrderStatusAwaitingPayment}, model.OrderStatusPaid)
	assert.NoError(t, err)
	assert.False(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStockState_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewOrderRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.SetStockState(context.Background(), gormDB, "order-missing", model.StockStateReleased)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockByID_TakesRowLock(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewOrderRepository(gormDB)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "buyer_id", "status", "amount", "currency", "stock_state", "created_at", "updated_at"}).
		AddRow("order-1", "buyer-1", model.OrderStatusAwaitingPayment, int64(500), "USD", model.StockStateReserved, now, now)

	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs("order-1", 1).
		WillReturnRows(rows)

	order, err := repo.LockByID(context.Background(), gormDB, "order-1")
	assert.NoError(t, err)
	assert.Equal(t, model.OrderStatusAwaitingPayment, order.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindExpiredReservations_ScansMatches(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewOrderRepository(gormDB)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "buyer_id", "status", "amount", "currency", "stock_state", "created_at", "updated_at"}).
		AddRow("order-1", "buyer-1", model.OrderStatusAwaitingPayment, int64(500), "USD", model.StockStateReserved, now.Add(-time.Hour), now).
		AddRow("order-2", "buyer-2", model.OrderStatusFailed, int64(300), "USD", model.StockStateReserved, now, now)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders"`)).
		WillReturnRows(rows)

	orders, err := repo.FindExpiredReservations(context.Background(), now.Add(-30*time.Minute), 100)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "order-1", orders[0].ID)
	assert.Equal(t, "order-2", orders[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
